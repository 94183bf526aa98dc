package gourdianguard

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec signs and verifies access and refresh tokens.
//
// Key and algorithm selection is a pure function of the Config it was built
// from: symmetric algorithms use one shared secret per token kind, asymmetric ones
// one key pair per token kind. A TokenCodec is safe for concurrent use.
type TokenCodec struct {
	signingMethod jwt.SigningMethod
	keys          map[TokenType]keyPair
	now           func() time.Time
}

// NewTokenCodec loads the key material for both token kinds.
//
// Parameters:
//   - config: validated configuration
//
// Returns:
//   - *TokenCodec: ready to sign and verify
//   - error: ErrConfiguration when the algorithm or key material is unusable
func NewTokenCodec(config Config) (*TokenCodec, error) {
	method, err := signingMethodFor(config.Algorithm)
	if err != nil {
		return nil, err
	}

	codec := &TokenCodec{
		signingMethod: method,
		keys:          make(map[TokenType]keyPair, 2),
		now:           time.Now,
	}
	for kind, kc := range map[TokenType]TokenKindConfig{
		AccessToken:  config.AccessToken,
		RefreshToken: config.RefreshToken,
	} {
		kp, err := loadKeyPair(method, kc)
		if err != nil {
			return nil, newError(ErrConfiguration, fmt.Sprintf("failed to initialize %s keys: %v", kind, err))
		}
		codec.keys[kind] = kp
	}
	return codec, nil
}

// Algorithm returns the configured JWT algorithm name.
func (c *TokenCodec) Algorithm() string {
	return c.signingMethod.Alg()
}

// Sign produces a compact signed token for claims using the signing key of kind.
// claims.TokenType is forced to kind.
func (c *TokenCodec) Sign(claims TokenClaims, kind TokenType) (string, error) {
	kp, ok := c.keys[kind]
	if !ok {
		return "", newError(ErrSigning, fmt.Sprintf("unknown token type: %q", kind))
	}
	claims.TokenType = kind

	token := jwt.NewWithClaims(c.signingMethod, toMapClaims(claims))
	signed, err := token.SignedString(kp.signKey)
	if err != nil {
		return "", newError(ErrSigning, fmt.Sprintf("failed to sign %s token: %v", kind, err))
	}
	return signed, nil
}

// Verify checks the signature of tokenString with the verification key of kind,
// validates exp (required), nbf and iat with a fixed Leeway, and checks that the
// token was issued for expectedGuard and for kind. Numbers inside Extend are
// returned as json.Number so integer identities survive unrounded.
func (c *TokenCodec) Verify(tokenString string, kind TokenType, expectedGuard string) (*TokenClaims, error) {
	kp, ok := c.keys[kind]
	if !ok {
		return nil, newError(ErrInvalidSignature, fmt.Sprintf("unknown token type: %q", kind))
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.signingMethod.Alg()}),
		jwt.WithLeeway(Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithJSONNumber(),
		jwt.WithTimeFunc(c.now),
	)

	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return kp.verifyKey, nil
	})
	if err != nil {
		return nil, translateParseError(err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, newError(ErrMalformedClaims, "invalid token claims")
	}

	claims, err := mapToClaims(mapClaims)
	if err != nil {
		return nil, newError(ErrMalformedClaims, err.Error())
	}
	if claims.Guard != expectedGuard {
		return nil, ErrGuardMismatch
	}
	if claims.TokenType != "" && claims.TokenType != kind {
		return nil, newError(ErrInvalidSignature, fmt.Sprintf("invalid token type: expected %s", kind))
	}
	return claims, nil
}

// translateParseError maps golang-jwt validation errors onto the error taxonomy.
func translateParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(ErrMalformedClaims, err.Error())
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(ErrInvalidSignature, err.Error())
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	default:
		return newError(ErrMalformedClaims, err.Error())
	}
}
