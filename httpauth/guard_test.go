package httpauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gourdian25/gourdianguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuard(t *testing.T, opts ...Option) *Guard {
	t.Helper()

	cfg := gourdianguard.DefaultConfig(
		"httpauth-access-secret-32-bytes-long-1234",
		"httpauth-refresh-secret-32-bytes-long-123",
	)
	cfg.Guards["admin"] = gourdianguard.GuardConfig{IdentityField: "admin_id", MaxSessions: gourdianguard.SingleSession}

	store := gourdianguard.NewMemorySessionStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	service, err := gourdianguard.NewService(cfg, store)
	require.NoError(t, err)

	guard, err := New(service, "user", opts...)
	require.NoError(t, err)
	return guard
}

func issue(t *testing.T, g *Guard) *gourdianguard.TokenPair {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	pair, err := g.Issue(httptest.NewRecorder(), r, map[string]any{"id": "42"}, gourdianguard.IssueOptions{})
	require.NoError(t, err)
	return pair
}

func TestTokenFromRequest(t *testing.T) {
	slots := NewCookieSlots(false)

	t.Run("Authorization Header Wins", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?_token=from-param", nil)
		r.Header.Set("Authorization", "Bearer from-header")
		r.AddCookie(&http.Cookie{Name: "token_user", Value: "from-slot"})

		token, err := TokenFromRequest(r, slots, "token_user")
		require.NoError(t, err)
		assert.Equal(t, "from-header", token)
	})

	t.Run("Query Parameter", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?_token=from-param", nil)
		r.AddCookie(&http.Cookie{Name: "token_user", Value: "from-slot"})

		token, err := TokenFromRequest(r, slots, "token_user")
		require.NoError(t, err)
		assert.Equal(t, "from-param", token)
	})

	t.Run("Form Parameter With Bearer Prefix", func(t *testing.T) {
		form := url.Values{TokenParam: {"Bearer from-form"}}
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		token, err := TokenFromRequest(r, nil, "token_user")
		require.NoError(t, err)
		assert.Equal(t, "from-form", token)
	})

	t.Run("Session Slot", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "token_user", Value: "from-slot"})

		token, err := TokenFromRequest(r, slots, "token_user")
		require.NoError(t, err)
		assert.Equal(t, "from-slot", token)
	})

	t.Run("Non Bearer Header Is Ignored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		_, err := TokenFromRequest(r, slots, "token_user")
		assert.ErrorIs(t, err, gourdianguard.ErrMissingCredential)
	})

	t.Run("Nothing Found", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer ")

		_, err := TokenFromRequest(r, slots, "token_user")
		assert.ErrorIs(t, err, gourdianguard.ErrMissingCredential)
	})
}

func TestGuard(t *testing.T) {
	t.Run("Unknown Guard", func(t *testing.T) {
		cfg := gourdianguard.DefaultConfig(
			"httpauth-access-secret-32-bytes-long-1234",
			"httpauth-refresh-secret-32-bytes-long-123",
		)
		store := gourdianguard.NewMemorySessionStore(time.Hour)
		t.Cleanup(func() { _ = store.Close() })

		service, err := gourdianguard.NewService(cfg, store)
		require.NoError(t, err)

		_, err = New(service, "ghost")
		assert.ErrorIs(t, err, gourdianguard.ErrConfiguration)
	})

	t.Run("Issue Stores The Slot", func(t *testing.T) {
		g := testGuard(t, WithSessionSlots(NewCookieSlots(true)))
		assert.Equal(t, "token_user", g.SlotName())

		form := url.Values{ClientTypeParam: {"Mobile"}}
		r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()

		pair, err := g.Issue(w, r, map[string]any{"id": "42"}, gourdianguard.IssueOptions{})
		require.NoError(t, err)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "token_user", cookies[0].Name)
		assert.Equal(t, pair.AccessToken, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)

		verify := httptest.NewRequest(http.MethodGet, "/me", nil)
		verify.AddCookie(cookies[0])
		claims, err := g.Verify(verify, gourdianguard.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "42", claims.Extend["id"])

		sessions, err := g.service.Sessions(verify.Context(), pair.AccessToken)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "mobile", sessions[0].ClientType)
	})

	t.Run("Refresh Then Revoke", func(t *testing.T) {
		g := testGuard(t, WithSessionSlots(NewCookieSlots(false)))
		pair := issue(t, g)

		r := httptest.NewRequest(http.MethodPost, "/refresh", nil)
		r.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		w := httptest.NewRecorder()
		result, err := g.Refresh(w, r, 0)
		require.NoError(t, err)
		require.Len(t, w.Result().Cookies(), 1)
		assert.Equal(t, result.AccessToken, w.Result().Cookies()[0].Value)

		r = httptest.NewRequest(http.MethodPost, "/logout", nil)
		r.Header.Set("Authorization", "Bearer "+result.AccessToken)
		w = httptest.NewRecorder()
		require.NoError(t, g.Revoke(w, r, false))

		cleared := w.Result().Cookies()
		require.Len(t, cleared, 1)
		assert.Empty(t, cleared[0].Value)
		assert.Equal(t, -1, cleared[0].MaxAge)

		err = g.Revoke(httptest.NewRecorder(), r, false)
		assert.ErrorIs(t, err, gourdianguard.ErrExpired)
	})

	t.Run("Refresh Without Token", func(t *testing.T) {
		g := testGuard(t)
		_, err := g.Refresh(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/refresh", nil), 0)
		assert.ErrorIs(t, err, gourdianguard.ErrMissingCredential)
	})
}

func TestMiddleware(t *testing.T) {
	g := testGuard(t)
	pair := issue(t, g)

	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.Extend["id"].(string)))
	}))

	t.Run("Valid Token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "42", w.Body.String())
	})

	t.Run("Missing Token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var body errorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, string(gourdianguard.CodeMissingCredential), body.Code)
	})

	t.Run("Refresh Token Is Rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		r.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("No Claims Outside Middleware", func(t *testing.T) {
		_, ok := ClaimsFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
		assert.False(t, ok)
	})
}

func TestWriteError(t *testing.T) {
	g := testGuard(t)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Expired", gourdianguard.ErrExpired, http.StatusPaymentRequired, "expired"},
		{"Not Yet Valid", gourdianguard.ErrNotYetValid, http.StatusForbidden, "not_yet_valid"},
		{"Store Unavailable", gourdianguard.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
		{"Foreign Error", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			g.WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotContains(t, body.Message, assert.AnError.Error())
		})
	}
}
