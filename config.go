package gourdianguard

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenType represents the kind of token (access or refresh).
type TokenType string

const (
	AccessToken  TokenType = "access"  // Short-lived, authorizes requests
	RefreshToken TokenType = "refresh" // Long-lived, only mints new access tokens
)

// Leeway is the clock-skew allowance applied when validating exp, nbf and iat.
// It is applied at verification only, never at issuance.
const Leeway = 60 * time.Second

// Session capacity modes for GuardConfig.MaxSessions.
const (
	Unlimited     = -1 // Any number of sessions per client type
	SingleSession = 0  // A new login replaces every existing session of the identity
)

// reservedGuardChars may not appear in guard names: ':' separates the guard from
// the identity in store keys and the rest are glob metacharacters.
const reservedGuardChars = ":*?[]\\"

// DefaultClientType is used when a login does not declare its client type.
const DefaultClientType = "web"

// MaxClientTypeLength bounds the client type stored with every session.
const MaxClientTypeLength = 32

// Config holds the complete, immutable configuration of a Service.
//
// It is built once (by hand, with DefaultConfig or with LoadConfig) and passed to
// NewService and NewTokenCodec; nothing reads configuration from global state.
//
// Fields:
//   - Algorithm: HS256/384/512, RS256/384/512 or ES256/384/512
//   - Issuer: value of the iss claim
//   - PersistSessions: whether issued sessions are tracked in a SessionStore
//   - AccessToken / RefreshToken: key material and default TTL per token kind
//   - Guards: per-guard identity field and session limits
//   - Redis: connection settings used by NewRedisSessionStoreFromConfig
type Config struct {
	Algorithm       string                 `yaml:"algorithm"`
	Issuer          string                 `yaml:"issuer"`
	PersistSessions bool                   `yaml:"persist_sessions"`
	AccessToken     TokenKindConfig        `yaml:"access"`
	RefreshToken    TokenKindConfig        `yaml:"refresh"`
	Guards          map[string]GuardConfig `yaml:"guards"`
	Redis           RedisConfig            `yaml:"redis"`
}

// TokenKindConfig holds the key material and default lifetime of one token kind.
// Symmetric algorithms use SecretKey; asymmetric ones use the PEM key files.
type TokenKindConfig struct {
	SecretKey      string        `yaml:"secret_key"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	PublicKeyPath  string        `yaml:"public_key_path"`
	TTL            time.Duration `yaml:"ttl"`
}

// GuardConfig configures one authentication domain.
type GuardConfig struct {
	IdentityField string        `yaml:"identity_field"` // key inside the extend claim holding the identity
	MaxSessions   int           `yaml:"max_sessions"`   // per client type: -1 unlimited, 0 single session, N>0 capped
	AccessTTL     time.Duration `yaml:"access_ttl"`     // overrides AccessToken.TTL when set
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`    // overrides RefreshToken.TTL when set
}

// RedisConfig holds the connection settings of the shared session store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Options converts the config into go-redis client options.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

// DefaultConfig returns an HS256 configuration with a single "user" guard keyed by
// "id", unlimited sessions, 2h access tokens and 7 day refresh tokens.
func DefaultConfig(accessSecret, refreshSecret string) Config {
	return Config{
		Algorithm:       "HS256",
		Issuer:          "gourdianguard",
		PersistSessions: true,
		AccessToken: TokenKindConfig{
			SecretKey: accessSecret,
			TTL:       2 * time.Hour,
		},
		RefreshToken: TokenKindConfig{
			SecretKey: refreshSecret,
			TTL:       7 * 24 * time.Hour,
		},
		Guards: map[string]GuardConfig{
			"user": {IdentityField: "id", MaxSessions: Unlimited},
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
			DB:   15,
		},
	}
}

// Guard returns the configuration of the named guard.
func (c Config) Guard(name string) (GuardConfig, error) {
	g, ok := c.Guards[name]
	if !ok {
		return GuardConfig{}, newError(ErrConfiguration, fmt.Sprintf("guard %q is not configured", name))
	}
	return g, nil
}

// accessTTL resolves the access lifetime: explicit request, guard default, install default.
func (c Config) accessTTL(g GuardConfig, requested time.Duration) time.Duration {
	switch {
	case requested > 0:
		return requested
	case g.AccessTTL > 0:
		return g.AccessTTL
	default:
		return c.AccessToken.TTL
	}
}

func (c Config) refreshTTL(g GuardConfig, requested time.Duration) time.Duration {
	switch {
	case requested > 0:
		return requested
	case g.RefreshTTL > 0:
		return g.RefreshTTL
	default:
		return c.RefreshToken.TTL
	}
}

// Validate checks that every required section is present and consistent.
// All failures are ErrConfiguration.
func (c Config) Validate() error {
	if _, err := signingMethodFor(c.Algorithm); err != nil {
		return err
	}
	if c.AccessToken.TTL <= 0 {
		return newError(ErrConfiguration, "access token TTL must be positive")
	}
	if c.RefreshToken.TTL <= 0 {
		return newError(ErrConfiguration, "refresh token TTL must be positive")
	}
	if c.RefreshToken.TTL < c.AccessToken.TTL {
		return newError(ErrConfiguration, "refresh token TTL must not be shorter than access token TTL")
	}
	if isSymmetric(c.Algorithm) {
		for kind, kc := range map[TokenType]TokenKindConfig{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken} {
			if kc.SecretKey == "" {
				return newError(ErrConfiguration, fmt.Sprintf("%s secret key is required for %s", kind, c.Algorithm))
			}
			if len(kc.SecretKey) < 32 {
				return newError(ErrConfiguration, fmt.Sprintf("%s secret key must be at least 32 bytes", kind))
			}
		}
	} else {
		for kind, kc := range map[TokenType]TokenKindConfig{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken} {
			if kc.PrivateKeyPath == "" || kc.PublicKeyPath == "" {
				return newError(ErrConfiguration, fmt.Sprintf("%s private and public key paths are required for %s", kind, c.Algorithm))
			}
		}
	}
	if len(c.Guards) == 0 {
		return newError(ErrConfiguration, "at least one guard must be configured")
	}
	for name, g := range c.Guards {
		if strings.TrimSpace(name) == "" {
			return newError(ErrConfiguration, "guard name cannot be empty")
		}
		if strings.ContainsAny(name, reservedGuardChars) {
			return newError(ErrConfiguration, fmt.Sprintf("guard name %q must not contain any of %q", name, reservedGuardChars))
		}
		if g.IdentityField == "" {
			return newError(ErrConfiguration, fmt.Sprintf("guard %q has no identity field", name))
		}
		if g.AccessTTL < 0 || g.RefreshTTL < 0 {
			return newError(ErrConfiguration, fmt.Sprintf("guard %q has a negative TTL", name))
		}
	}
	return nil
}
