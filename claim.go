package gourdianguard

import (
	"time"
)

// TokenClaims is the decoded payload of an access or refresh token.
//
// Access and refresh claims produced by the same login share Issuer, IssuedAt,
// Extend and Guard; they differ in ID, ExpiresAt and TokenType.
//
// Fields:
//   - ID: jti claim, unique per token
//   - Issuer: iss claim
//   - IssuedAt: iat claim
//   - ExpiresAt: exp claim
//   - NotBefore: nbf claim, zero when absent
//   - Extend: caller supplied extension data, holds the identity field
//   - Guard: guard the token was issued for
//   - TokenType: access or refresh
type TokenClaims struct {
	ID        string         `json:"jti"`
	Issuer    string         `json:"iss"`
	IssuedAt  time.Time      `json:"iat"`
	ExpiresAt time.Time      `json:"exp"`
	NotBefore time.Time      `json:"nbf,omitempty"`
	Extend    map[string]any `json:"extend"`
	Guard     string         `json:"guard"`
	TokenType TokenType      `json:"typ"`
}

// TokenPair is returned by Issue.
type TokenPair struct {
	TokenType        string `json:"token_type"`         // always "Bearer"
	ExpiresIn        int64  `json:"expires_in"`         // access TTL in seconds
	RefreshExpiresIn int64  `json:"refresh_expires_in"` // refresh TTL in seconds
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueOptions tunes a single Issue call. Zero values fall back to configuration.
type IssueOptions struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ClientType string
}
