package gourdianguard

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// toMapClaims converts claims to jwt.MapClaims. Times are encoded as NumericDate
// seconds; nbf is only present when set.
func toMapClaims(claims TokenClaims) jwt.MapClaims {
	m := jwt.MapClaims{
		"jti":    claims.ID,
		"iss":    claims.Issuer,
		"iat":    claims.IssuedAt.Unix(),
		"exp":    claims.ExpiresAt.Unix(),
		"extend": claims.Extend,
		"guard":  claims.Guard,
		"typ":    string(claims.TokenType),
	}
	if !claims.NotBefore.IsZero() {
		m["nbf"] = claims.NotBefore.Unix()
	}
	return m
}

// mapToClaims converts verified JWT claims back to TokenClaims.
func mapToClaims(claims jwt.MapClaims) (*TokenClaims, error) {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("invalid exp claim")
	}
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("invalid iat claim: %w", err)
	}
	nbf, err := claims.GetNotBefore()
	if err != nil {
		return nil, fmt.Errorf("invalid nbf claim: %w", err)
	}
	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, fmt.Errorf("invalid iss claim: %w", err)
	}

	extend, ok := claims["extend"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid extend claim")
	}
	guard, ok := claims["guard"].(string)
	if !ok || guard == "" {
		return nil, fmt.Errorf("missing or invalid guard claim")
	}

	out := &TokenClaims{
		Issuer:    iss,
		ExpiresAt: exp.Time,
		Extend:    extend,
		Guard:     guard,
	}
	if iat != nil {
		out.IssuedAt = iat.Time
	}
	if nbf != nil {
		out.NotBefore = nbf.Time
	}
	if jti, ok := claims["jti"].(string); ok {
		out.ID = jti
	}
	if typ, ok := claims["typ"].(string); ok {
		out.TokenType = TokenType(typ)
	}
	return out, nil
}

// identityValue extracts the identity key from extension data. Strings are used as
// is and numbers are rendered in base 10, so 42 and 42.0 address the same set.
func identityValue(extend map[string]any, field string) (string, error) {
	raw, ok := extend[field]
	if !ok || raw == nil {
		return "", fmt.Errorf("extend claim has no %q field", field)
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("identity field %q is empty", field)
		}
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("identity field %q is not a finite number", field)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case json.Number:
		return numberIdentity(v, field)
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("identity field %q has unsupported type %T", field, raw)
	}
}

// numberIdentity renders a decoded JSON number the way identityValue renders the
// Go value it was encoded from.
func numberIdentity(n json.Number, field string) (string, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return strconv.FormatUint(u, 10), nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("identity field %q is not a finite number", field)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// seconds renders a duration as whole seconds for TokenPair.
func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
