package httpauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gourdian25/gourdianguard"
	"github.com/rs/zerolog"
)

// Request parameter names read by Guard.
const (
	TokenParam      = "_token"
	ClientTypeParam = "client_type"
)

const bearerPrefix = "Bearer "

// Option configures a Guard.
type Option func(*Guard)

// WithSessionSlots enables the session slot as the last token source and makes
// Issue and Refresh store the access token there.
func WithSessionSlots(slots SessionSlots) Option {
	return func(g *Guard) { g.slots = slots }
}

// WithLogger sets the logger used when an error response cannot be written.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// Guard binds one guard of a Service to HTTP requests.
type Guard struct {
	service *gourdianguard.GuardService
	slots   SessionSlots
	logger  zerolog.Logger
}

// New returns a Guard for the named guard of service.
func New(service *gourdianguard.Service, guard string, opts ...Option) (*Guard, error) {
	gs, err := service.Guard(guard)
	if err != nil {
		return nil, err
	}

	g := &Guard{service: gs, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SlotName is the session slot the guard's access token is kept in.
func (g *Guard) SlotName() string {
	return "token_" + g.service.Name()
}

// Token finds the credential of r. See TokenFromRequest.
func (g *Guard) Token(r *http.Request) (string, error) {
	return TokenFromRequest(r, g.slots, g.SlotName())
}

// TokenFromRequest looks for a token in, in order: the Authorization header
// ("Bearer <token>"), the _token request parameter (a "Bearer " prefix is
// tolerated) and the named session slot. slots may be nil.
func TokenFromRequest(r *http.Request, slots SessionSlots, slotName string) (string, error) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		if token := strings.TrimSpace(header[len(bearerPrefix):]); token != "" {
			return token, nil
		}
	}

	if param := r.FormValue(TokenParam); param != "" {
		param = strings.TrimSpace(strings.TrimPrefix(param, bearerPrefix))
		if param != "" {
			return param, nil
		}
	}

	if slots != nil {
		if token := slots.Get(r, slotName); token != "" {
			return token, nil
		}
	}

	return "", gourdianguard.ErrMissingCredential
}

// Issue logs the caller in. When opts.ClientType is empty the client_type
// request parameter is used, falling back to "web". The access token is kept in
// the session slot when slots are configured.
func (g *Guard) Issue(w http.ResponseWriter, r *http.Request, extend map[string]any, opts gourdianguard.IssueOptions) (*gourdianguard.TokenPair, error) {
	if opts.ClientType == "" {
		opts.ClientType = r.FormValue(ClientTypeParam)
	}

	pair, err := g.service.Issue(r.Context(), extend, opts)
	if err != nil {
		return nil, err
	}

	if g.slots != nil {
		g.slots.Set(w, r, g.SlotName(), pair.AccessToken)
	}
	return pair, nil
}

// Verify verifies the request's token as a token of kind.
func (g *Guard) Verify(r *http.Request, kind gourdianguard.TokenType) (*gourdianguard.TokenClaims, error) {
	token, err := g.Token(r)
	if err != nil {
		return nil, err
	}
	return g.service.Verify(r.Context(), token, kind)
}

// Refresh treats the request's token as a refresh token and mints a new access
// token, valid for ttl (the configured default when zero).
func (g *Guard) Refresh(w http.ResponseWriter, r *http.Request, ttl time.Duration) (*gourdianguard.RefreshResult, error) {
	token, err := g.Token(r)
	if err != nil {
		return nil, err
	}

	result, err := g.service.Refresh(r.Context(), token, ttl)
	if err != nil {
		return nil, err
	}

	if g.slots != nil {
		g.slots.Set(w, r, g.SlotName(), result.AccessToken)
	}
	return result, nil
}

// Revoke logs the request's session out, or every session of its identity when
// all is true, and clears the session slot.
func (g *Guard) Revoke(w http.ResponseWriter, r *http.Request, all bool) error {
	token, err := g.Token(r)
	if err != nil {
		return err
	}

	if err := g.service.Revoke(r.Context(), token, all); err != nil {
		return err
	}

	if g.slots != nil {
		g.slots.Clear(w, r, g.SlotName())
	}
	return nil
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*gourdianguard.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*gourdianguard.TokenClaims)
	return claims, ok
}

// Middleware rejects requests without a valid access token and puts the
// verified claims on the request context.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Verify(r, gourdianguard.AccessToken)
		if err != nil {
			g.WriteError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError renders err as a JSON body with the status of its error class.
// Errors outside the taxonomy become a generic 500.
func (g *Guard) WriteError(w http.ResponseWriter, err error) {
	body := errorResponse{Code: "internal_error", Message: "internal server error"}

	var e *gourdianguard.Error
	if errors.As(err, &e) {
		body = errorResponse{Code: string(e.Code), Message: e.Message}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gourdianguard.HTTPStatus(err))
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		g.logger.Warn().Err(encErr).Msg("failed to write error response")
	}
}
