package gourdianguard

import (
	"time"

	"github.com/google/uuid"
)

// SessionRecord is the stored state of one login: its token pair, client type,
// issue times and lifetimes.
//
// A record is access-valid while now < AccessIssuedAt+AccessTTL and
// refresh-valid while now < RefreshIssuedAt+RefreshTTL. Once the access half
// lapses AccessToken is cleared but the record stays until the refresh half
// lapses too.
type SessionRecord struct {
	ID              uuid.UUID
	AccessToken     string
	RefreshToken    string
	ClientType      string
	AccessIssuedAt  time.Time
	AccessTTL       time.Duration
	RefreshIssuedAt time.Time
	RefreshTTL      time.Duration
}

// AccessExpiresAt is the instant the access half stops being valid.
func (r SessionRecord) AccessExpiresAt() time.Time {
	return r.AccessIssuedAt.Add(r.AccessTTL)
}

// RefreshExpiresAt is the instant the record stops being valid.
func (r SessionRecord) RefreshExpiresAt() time.Time {
	return r.RefreshIssuedAt.Add(r.RefreshTTL)
}

// IsAccessValid reports whether the access half is live at now.
func (r SessionRecord) IsAccessValid(now time.Time) bool {
	return r.AccessToken != "" && now.Before(r.AccessExpiresAt())
}

// IsRefreshValid reports whether the record is live at now.
func (r SessionRecord) IsRefreshValid(now time.Time) bool {
	return now.Before(r.RefreshExpiresAt())
}

// tokenFor returns the token of the given kind.
func (r SessionRecord) tokenFor(kind TokenType) string {
	if kind == RefreshToken {
		return r.RefreshToken
	}
	return r.AccessToken
}

// SessionSet is the ordered list of records of one (guard, identity) pair.
// Insertion order is preserved; index 0 is the oldest login.
type SessionSet []SessionRecord

// admit applies the capacity policy for record.ClientType and appends record.
// It returns the number of records evicted.
//
//   - limit < 0: append unconditionally
//   - limit == 0: the set is replaced by record alone
//   - limit > 0: oldest records of the same client type are evicted until there
//     is room for record
func (s SessionSet) admit(record SessionRecord, limit int) (SessionSet, int) {
	if limit == SingleSession {
		return SessionSet{record}, len(s)
	}
	if limit < 0 {
		return append(s, record), 0
	}

	count := 0
	for _, r := range s {
		if r.ClientType == record.ClientType {
			count++
		}
	}

	evicted := 0
	out := make(SessionSet, 0, len(s)+1)
	for _, r := range s {
		if r.ClientType == record.ClientType && count-evicted >= limit {
			evicted++
			continue
		}
		out = append(out, r)
	}
	return append(out, record), evicted
}

// sweep drops refresh-expired records and clears the access token of
// access-expired ones. It reports whether anything changed.
func (s SessionSet) sweep(now time.Time) (SessionSet, bool) {
	changed := false
	out := s[:0:0]
	for _, r := range s {
		if !r.IsRefreshValid(now) {
			changed = true
			continue
		}
		if r.AccessToken != "" && !now.Before(r.AccessExpiresAt()) {
			r.AccessToken = ""
			changed = true
		}
		out = append(out, r)
	}
	return out, changed
}

// indexOf returns the position of the record whose token of kind equals token.
func (s SessionSet) indexOf(token string, kind TokenType) int {
	if token == "" {
		return -1
	}
	for i, r := range s {
		if r.tokenFor(kind) == token {
			return i
		}
	}
	return -1
}

// confirm sweeps the set and then looks for a live record holding token.
// A matching token whose own lifetime has lapsed was already dropped (refresh)
// or cleared (access) by the sweep, so it is reported as not found.
func (s SessionSet) confirm(token string, kind TokenType, now time.Time) (SessionSet, bool, bool) {
	out, changed := s.sweep(now)
	return out, out.indexOf(token, kind) >= 0, changed
}

// removeAccess drops the record whose access token equals accessToken.
func (s SessionSet) removeAccess(accessToken string) (SessionSet, bool) {
	i := s.indexOf(accessToken, AccessToken)
	if i < 0 {
		return s, false
	}
	out := make(SessionSet, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...), true
}

// latestExpiry is the furthest refresh expiry in the set, used as the store TTL.
func (s SessionSet) latestExpiry() time.Time {
	var latest time.Time
	for _, r := range s {
		if exp := r.RefreshExpiresAt(); exp.After(latest) {
			latest = exp
		}
	}
	return latest
}

// live returns the records that are still refresh-valid, with the access token
// hidden for access-expired ones. It never mutates s.
func (s SessionSet) live(now time.Time) []SessionRecord {
	out := make([]SessionRecord, 0, len(s))
	for _, r := range s {
		if !r.IsRefreshValid(now) {
			continue
		}
		if !r.IsAccessValid(now) {
			r.AccessToken = ""
		}
		out = append(out, r)
	}
	return out
}
