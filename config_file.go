package gourdianguard

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// secretAlphabet is the character set of generated secrets.
const secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GeneratedSecretLength is the length of secrets produced by RotateSecrets.
const GeneratedSecretLength = 64

// LoadConfig reads a YAML configuration file and validates it.
//
// Keys missing from the file keep the values of DefaultConfig, except guards,
// which must be listed explicitly. Durations are written as Go duration strings
// ("15m", "2h", "168h").
//
// Example file:
//
//	algorithm: HS256
//	issuer: api.example.com
//	persist_sessions: true
//	access:
//	  secret_key: <at least 32 characters>
//	  ttl: 2h
//	refresh:
//	  secret_key: <at least 32 characters>
//	  ttl: 168h
//	guards:
//	  user:
//	    identity_field: id
//	    max_sessions: 3
//	redis:
//	  addr: 127.0.0.1:6379
//	  key_prefix: "myapp:"
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newError(ErrConfiguration, fmt.Sprintf("failed to read config file: %v", err))
	}

	cfg := DefaultConfig("", "")
	cfg.Guards = nil

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, newError(ErrConfiguration, fmt.Sprintf("failed to parse config file %s: %v", path, err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RotateSecrets replaces access.secret_key and refresh.secret_key in the YAML file
// at path with two fresh, distinct random secrets and returns them.
//
// The file is edited as a YAML document tree, so comments and unrelated keys
// survive. It is replaced atomically and keeps its permissions.
func RotateSecrets(path string) (accessSecret, refreshSecret string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read config file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", "", fmt.Errorf("failed to parse config file: %w", err)
	}

	var root *yaml.Node
	switch {
	case doc.Kind == 0:
		doc = yaml.Node{Kind: yaml.DocumentNode}
		root = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc.Content = []*yaml.Node{root}
	case doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode:
		root = doc.Content[0]
	default:
		return "", "", fmt.Errorf("config file %s is not a YAML mapping", path)
	}

	if accessSecret, err = GenerateSecret(GeneratedSecretLength); err != nil {
		return "", "", err
	}
	for {
		if refreshSecret, err = GenerateSecret(GeneratedSecretLength); err != nil {
			return "", "", err
		}
		if refreshSecret != accessSecret {
			break
		}
	}

	for section, secret := range map[string]string{"access": accessSecret, "refresh": refreshSecret} {
		node, err := mappingChild(root, section)
		if err != nil {
			return "", "", err
		}
		setScalar(node, "secret_key", secret)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", "", fmt.Errorf("failed to encode config file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", "", fmt.Errorf("failed to encode config file: %w", err)
	}

	if err := writeFileAtomic(path, buf.Bytes(), info.Mode().Perm()); err != nil {
		return "", "", err
	}
	return accessSecret, refreshSecret, nil
}

// GenerateSecret returns a random alphanumeric string of length n read from
// crypto/rand.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("secret length must be positive")
	}

	limit := big.NewInt(int64(len(secretAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate secret: %w", err)
		}
		out[i] = secretAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// mappingChild returns the mapping stored under key, creating it when absent.
func mappingChild(parent *yaml.Node, key string) (*yaml.Node, error) {
	for i := 0; i+1 < len(parent.Content); i += 2 {
		if parent.Content[i].Value != key {
			continue
		}
		child := parent.Content[i+1]
		if child.Kind == yaml.ScalarNode && child.Tag == "!!null" {
			child.Kind = yaml.MappingNode
			child.Tag = "!!map"
			child.Value = ""
		}
		if child.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("config key %q is not a mapping", key)
		}
		return child, nil
	}

	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		child,
	)
	return child, nil
}

// setScalar sets key to a string value, keeping any comment attached to it.
func setScalar(parent *yaml.Node, key, value string) {
	for i := 0; i+1 < len(parent.Content); i += 2 {
		if parent.Content[i].Value == key {
			v := parent.Content[i+1]
			v.Kind = yaml.ScalarNode
			v.Tag = "!!str"
			v.Style = 0
			v.Value = value
			v.Content = nil
			return
		}
	}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
