// gourdianguard.go

package gourdianguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics makes the Service report to m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service issues, verifies, refreshes and revokes token pairs for every guard
// of its Config.
//
// A Service holds no mutable state besides its store: the configuration is
// copied at construction and never changes, so a Service is safe for concurrent
// use by any number of request handlers.
type Service struct {
	config  Config
	codec   *TokenCodec
	store   SessionStore
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewService validates config and builds a Service.
//
// Parameters:
//   - config: token, key and guard configuration
//   - store: session store, required when config.PersistSessions is true
//   - opts: logger, metrics and clock options
//
// Returns:
//   - *Service: ready for use
//   - error: ErrConfiguration when the configuration or key material is unusable
func NewService(config Config, store SessionStore, opts ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.PersistSessions && store == nil {
		return nil, newError(ErrConfiguration, "a session store is required when sessions are persisted")
	}

	codec, err := NewTokenCodec(config)
	if err != nil {
		return nil, err
	}

	guards := make(map[string]GuardConfig, len(config.Guards))
	for name, g := range config.Guards {
		guards[name] = g
	}
	config.Guards = guards

	s := &Service{
		config: config,
		codec:  codec,
		store:  store,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	codec.now = s.now

	return s, nil
}

// Config returns a copy of the configuration the Service was built with.
func (s *Service) Config() Config {
	c := s.config
	c.Guards = make(map[string]GuardConfig, len(s.config.Guards))
	for name, g := range s.config.Guards {
		c.Guards[name] = g
	}
	return c
}

// Guard returns a handle bound to one guard. It fails with ErrConfiguration when
// the guard is not configured.
func (s *Service) Guard(name string) (*GuardService, error) {
	if _, err := s.config.Guard(name); err != nil {
		return nil, err
	}
	return &GuardService{service: s, guard: name}, nil
}

// Issue signs a new access/refresh pair for the identity found in extend and,
// when sessions are persisted, records the login under the guard's capacity
// policy.
func (s *Service) Issue(ctx context.Context, guard string, extend map[string]any, opts IssueOptions) (*TokenPair, error) {
	g, err := s.config.Guard(guard)
	if err != nil {
		return nil, err
	}

	identity, err := identityValue(extend, g.IdentityField)
	if err != nil {
		return nil, newError(ErrMalformedClaims, err.Error())
	}

	accessTTL := s.config.accessTTL(g, opts.AccessTTL)
	refreshTTL := s.config.refreshTTL(g, opts.RefreshTTL)
	clientType := normalizeClientType(opts.ClientType)
	if len(clientType) > MaxClientTypeLength {
		return nil, newError(ErrMalformedClaims, fmt.Sprintf("client type exceeds %d characters", MaxClientTypeLength))
	}

	// Claims carry whole seconds; keep the stored record on the same instant.
	now := s.now().Truncate(time.Second)

	payload := make(map[string]any, len(extend))
	for k, v := range extend {
		payload[k] = v
	}

	base := TokenClaims{
		Issuer:   s.config.Issuer,
		IssuedAt: now,
		Extend:   payload,
		Guard:    guard,
	}

	accessClaims := base
	accessClaims.ID = uuid.NewString()
	accessClaims.ExpiresAt = now.Add(accessTTL)

	refreshClaims := base
	refreshClaims.ID = uuid.NewString()
	refreshClaims.ExpiresAt = now.Add(refreshTTL)

	accessToken, err := s.codec.Sign(accessClaims, AccessToken)
	if err != nil {
		s.logger.Warn().Err(err).Str("guard", guard).Msg("failed to sign access token")
		return nil, err
	}
	refreshToken, err := s.codec.Sign(refreshClaims, RefreshToken)
	if err != nil {
		s.logger.Warn().Err(err).Str("guard", guard).Msg("failed to sign refresh token")
		return nil, err
	}

	evicted := 0
	if s.config.PersistSessions {
		record := SessionRecord{
			ID:              uuid.New(),
			AccessToken:     accessToken,
			RefreshToken:    refreshToken,
			ClientType:      clientType,
			AccessIssuedAt:  now,
			AccessTTL:       accessTTL,
			RefreshIssuedAt: now,
			RefreshTTL:      refreshTTL,
		}
		evicted, err = s.store.Insert(ctx, guard, identity, record, g.MaxSessions)
		if err != nil {
			return nil, s.storeError("insert", guard, identity, err)
		}
	}

	s.metrics.tokenIssued(guard, clientType, evicted)
	s.logger.Debug().
		Str("guard", guard).
		Str("identity", identity).
		Str("client_type", clientType).
		Int("evicted", evicted).
		Msg("token pair issued")

	return &TokenPair{
		TokenType:        "Bearer",
		ExpiresIn:        seconds(accessTTL),
		RefreshExpiresIn: seconds(refreshTTL),
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
	}, nil
}

// Verify checks token as a token of kind issued for guard. With persisted
// sessions the token must also still belong to a live session; a revoked,
// evicted or swept token fails with ErrExpired, exactly like a lapsed one.
func (s *Service) Verify(ctx context.Context, guard, token string, kind TokenType) (*TokenClaims, error) {
	claims, _, err := s.verify(ctx, guard, token, kind)
	s.metrics.verified(guard, kind, err)
	return claims, err
}

func (s *Service) verify(ctx context.Context, guard, token string, kind TokenType) (*TokenClaims, string, error) {
	g, err := s.config.Guard(guard)
	if err != nil {
		return nil, "", err
	}
	if token == "" {
		return nil, "", ErrMissingCredential
	}

	claims, err := s.codec.Verify(token, kind, guard)
	if err != nil {
		return nil, "", err
	}

	identity, err := identityValue(claims.Extend, g.IdentityField)
	if err != nil {
		return nil, "", newError(ErrMalformedClaims, err.Error())
	}

	if s.config.PersistSessions {
		if err := s.store.ConfirmMembership(ctx, guard, identity, token, kind); err != nil {
			return nil, "", s.storeError("confirm membership", guard, identity, err)
		}
	}
	return claims, identity, nil
}

// Refresh verifies refreshToken and signs a new access token carrying the same
// extension data, valid for accessTTL (the guard default when zero). With
// persisted sessions the owning session is rebound to the new access token, so
// the access token it replaces stops verifying.
//
// The new token expires at now+accessTTL, not at the refresh token's expiry
// plus accessTTL. This holds in stateless mode too.
func (s *Service) Refresh(ctx context.Context, guard, refreshToken string, accessTTL time.Duration) (*RefreshResult, error) {
	result, err := s.refresh(ctx, guard, refreshToken, accessTTL)
	s.metrics.refreshed(guard, err)
	return result, err
}

func (s *Service) refresh(ctx context.Context, guard, refreshToken string, accessTTL time.Duration) (*RefreshResult, error) {
	claims, identity, err := s.verify(ctx, guard, refreshToken, RefreshToken)
	if err != nil {
		return nil, err
	}

	g, _ := s.config.Guard(guard)
	ttl := s.config.accessTTL(g, accessTTL)
	now := s.now().Truncate(time.Second)

	accessClaims := *claims
	accessClaims.ID = uuid.NewString()
	accessClaims.IssuedAt = now
	accessClaims.ExpiresAt = now.Add(ttl)

	accessToken, err := s.codec.Sign(accessClaims, AccessToken)
	if err != nil {
		s.logger.Warn().Err(err).Str("guard", guard).Msg("failed to sign refreshed access token")
		return nil, err
	}

	if s.config.PersistSessions {
		if err := s.store.ReplaceAccess(ctx, guard, identity, refreshToken, accessToken, now, ttl); err != nil {
			return nil, s.storeError("replace access token", guard, identity, err)
		}
	}

	s.logger.Debug().Str("guard", guard).Str("identity", identity).Msg("access token refreshed")

	return &RefreshResult{
		AccessToken: accessToken,
		ExpiresAt:   accessClaims.ExpiresAt,
	}, nil
}

// Revoke ends the session that accessToken belongs to, or every session of the
// identity when all is true. The token must still verify, so revoking a session
// twice fails with ErrExpired the second time.
func (s *Service) Revoke(ctx context.Context, guard, accessToken string, all bool) error {
	_, identity, err := s.verify(ctx, guard, accessToken, AccessToken)
	if err != nil {
		return err
	}
	if !s.config.PersistSessions {
		return nil
	}

	if all {
		err = s.store.RevokeAll(ctx, guard, identity)
	} else {
		err = s.store.RevokeOne(ctx, guard, identity, accessToken)
	}
	if err != nil {
		return s.storeError("revoke", guard, identity, err)
	}

	s.metrics.revoked(guard, all)
	s.logger.Debug().Str("guard", guard).Str("identity", identity).Bool("all", all).Msg("session revoked")
	return nil
}

// Sessions lists the live sessions of the identity accessToken belongs to.
func (s *Service) Sessions(ctx context.Context, guard, accessToken string) ([]SessionRecord, error) {
	_, identity, err := s.verify(ctx, guard, accessToken, AccessToken)
	if err != nil {
		return nil, err
	}
	if !s.config.PersistSessions {
		return nil, nil
	}

	records, err := s.store.Sessions(ctx, guard, identity)
	if err != nil {
		return nil, s.storeError("list sessions", guard, identity, err)
	}
	return records, nil
}

// Sweep runs a maintenance pass over every session set of guard. It needs a
// store that supports full scans; the bundled stores all do.
func (s *Service) Sweep(ctx context.Context, guard string) (int, error) {
	if _, err := s.config.Guard(guard); err != nil {
		return 0, err
	}
	sweeper, ok := s.store.(GuardSweeper)
	if !ok {
		return 0, newError(ErrConfiguration, "session store does not support sweeping")
	}

	n, err := sweeper.SweepAll(ctx, guard)
	if err != nil {
		return n, s.storeError("sweep", guard, "", err)
	}
	return n, nil
}

// storeError translates a store failure into the caller-facing taxonomy and logs
// the cause, which is not exposed.
func (s *Service) storeError(op, guard, identity string, err error) error {
	if errors.Is(err, ErrSessionNotFound) {
		return ErrExpired
	}

	s.logger.Warn().
		Err(err).
		Str("op", op).
		Str("guard", guard).
		Str("identity", identity).
		Msg("session store failure")

	return newError(ErrStoreUnavailable, fmt.Sprintf("session store unavailable during %s", op))
}

func normalizeClientType(clientType string) string {
	clientType = strings.ToLower(strings.TrimSpace(clientType))
	if clientType == "" {
		return DefaultClientType
	}
	return clientType
}

// GuardService is a Service bound to one guard.
type GuardService struct {
	service *Service
	guard   string
}

// Name returns the guard name.
func (g *GuardService) Name() string { return g.guard }

func (g *GuardService) Issue(ctx context.Context, extend map[string]any, opts IssueOptions) (*TokenPair, error) {
	return g.service.Issue(ctx, g.guard, extend, opts)
}

func (g *GuardService) Verify(ctx context.Context, token string, kind TokenType) (*TokenClaims, error) {
	return g.service.Verify(ctx, g.guard, token, kind)
}

func (g *GuardService) Refresh(ctx context.Context, refreshToken string, accessTTL time.Duration) (*RefreshResult, error) {
	return g.service.Refresh(ctx, g.guard, refreshToken, accessTTL)
}

func (g *GuardService) Revoke(ctx context.Context, accessToken string, all bool) error {
	return g.service.Revoke(ctx, g.guard, accessToken, all)
}

func (g *GuardService) Sessions(ctx context.Context, accessToken string) ([]SessionRecord, error) {
	return g.service.Sessions(ctx, g.guard, accessToken)
}
