package httpauth

import (
	"net/http"
)

// SessionSlots is the server-side session storage a Guard keeps the current
// access token in, under a slot named "token_<guard>".
type SessionSlots interface {
	Get(r *http.Request, name string) string
	Set(w http.ResponseWriter, r *http.Request, name, value string)
	Clear(w http.ResponseWriter, r *http.Request, name string)
}

// CookieSlots keeps slots in HttpOnly cookies.
type CookieSlots struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int // seconds, 0 for a browser-session cookie
}

// NewCookieSlots returns cookie slots scoped to "/" with SameSite=Lax.
func NewCookieSlots(secure bool) *CookieSlots {
	return &CookieSlots{
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *CookieSlots) Get(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (c *CookieSlots) Set(w http.ResponseWriter, _ *http.Request, name, value string) {
	http.SetCookie(w, c.cookie(name, value, c.MaxAge))
}

func (c *CookieSlots) Clear(w http.ResponseWriter, _ *http.Request, name string) {
	http.SetCookie(w, c.cookie(name, "", -1))
}

func (c *CookieSlots) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	}
}
