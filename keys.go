package gourdianguard

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// keyPair holds the signing and verification keys of one token kind.
// For HMAC both are the same []byte.
type keyPair struct {
	signKey   interface{} // []byte, *rsa.PrivateKey or *ecdsa.PrivateKey
	verifyKey interface{} // []byte, *rsa.PublicKey or *ecdsa.PublicKey
}

func signingMethodFor(algorithm string) (jwt.SigningMethod, error) {
	switch algorithm {
	case "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	case "RS256":
		return jwt.SigningMethodRS256, nil
	case "RS384":
		return jwt.SigningMethodRS384, nil
	case "RS512":
		return jwt.SigningMethodRS512, nil
	case "ES256":
		return jwt.SigningMethodES256, nil
	case "ES384":
		return jwt.SigningMethodES384, nil
	case "ES512":
		return jwt.SigningMethodES512, nil
	default:
		return nil, newError(ErrConfiguration, fmt.Sprintf("unsupported algorithm: %q", algorithm))
	}
}

func isSymmetric(algorithm string) bool {
	switch algorithm {
	case "HS256", "HS384", "HS512":
		return true
	}
	return false
}

// loadKeyPair resolves the key material of one token kind for the given method.
func loadKeyPair(method jwt.SigningMethod, kc TokenKindConfig) (keyPair, error) {
	alg := method.Alg()
	if isSymmetric(alg) {
		if kc.SecretKey == "" {
			return keyPair{}, fmt.Errorf("secret key is required for %s", alg)
		}
		secret := []byte(kc.SecretKey)
		return keyPair{signKey: secret, verifyKey: secret}, nil
	}

	if kc.PrivateKeyPath == "" || kc.PublicKeyPath == "" {
		return keyPair{}, fmt.Errorf("private and public key paths are required for %s", alg)
	}
	if err := checkFilePermissions(kc.PrivateKeyPath, 0600); err != nil {
		return keyPair{}, fmt.Errorf("insecure private key file permissions: %w", err)
	}

	privateKeyBytes, err := os.ReadFile(kc.PrivateKeyPath)
	if err != nil {
		return keyPair{}, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyBytes, err := os.ReadFile(kc.PublicKeyPath)
	if err != nil {
		return keyPair{}, fmt.Errorf("failed to read public key file: %w", err)
	}

	var kp keyPair
	switch alg {
	case "RS256", "RS384", "RS512":
		if kp.signKey, err = parseRSAPrivateKey(privateKeyBytes); err != nil {
			return keyPair{}, fmt.Errorf("failed to parse RSA private key: %w", err)
		}
		if kp.verifyKey, err = parseRSAPublicKey(publicKeyBytes); err != nil {
			return keyPair{}, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
	case "ES256", "ES384", "ES512":
		if kp.signKey, err = parseECDSAPrivateKey(privateKeyBytes); err != nil {
			return keyPair{}, fmt.Errorf("failed to parse ECDSA private key: %w", err)
		}
		if kp.verifyKey, err = parseECDSAPublicKey(publicKeyBytes); err != nil {
			return keyPair{}, fmt.Errorf("failed to parse ECDSA public key: %w", err)
		}
	default:
		return keyPair{}, fmt.Errorf("unsupported algorithm for asymmetric signing: %s", alg)
	}
	return kp, nil
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the RSA private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}
	pkcs8Key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
	}
	rsaKey, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not a valid RSA private key")
	}
	return rsaKey, nil
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	pub, err := parsePublicKey(pemBytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not a valid RSA public key")
	}
	return rsaPub, nil
}

func parseECDSAPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the ECDSA private key")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}
	pkcs8Key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA private key: %w", err)
	}
	ecKey, ok := pkcs8Key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not a valid ECDSA private key")
	}
	return ecKey, nil
}

func parseECDSAPublicKey(pemBytes []byte) (*ecdsa.PublicKey, error) {
	pub, err := parsePublicKey(pemBytes)
	if err != nil {
		return nil, err
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not a valid ECDSA public key")
	}
	return ecdsaPub, nil
}

// parsePublicKey accepts a PKIX public key or an X.509 certificate.
func parsePublicKey(pemBytes []byte) (interface{}, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err == nil {
		return pub, nil
	}
	cert, certErr := x509.ParseCertificate(block.Bytes)
	if certErr != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return cert.PublicKey, nil
}

func checkFilePermissions(path string, requiredPerm os.FileMode) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	actualPerm := info.Mode().Perm()
	if actualPerm&^requiredPerm != 0 {
		return fmt.Errorf("file %s has permissions %#o, expected %#o", path, actualPerm, requiredPerm)
	}
	return nil
}
