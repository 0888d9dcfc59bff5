// Package session holds the bounded-lifetime conversation session model and
// the typed per-chat session data persisted on client records.
package session

import (
	"strings"
	"time"
)

const (
	// NominalLifetime is the lifetime the chat-AI service grants a freshly
	// issued session.
	NominalLifetime = 10800 * time.Second

	// RenewalTolerance is the slack around NominalLifetime within which a
	// session counts as freshly issued and an explicit renewal is refused.
	RenewalTolerance = 60 * time.Second

	DefaultLanguage = "en"
)

// Session is a handle to a conversation held by the external chat-AI service.
// Sessions are replaced, never mutated in place: when one expires or the
// service rejects it, a new session with a new ID takes its place.
type Session struct {
	ID        string    `json:"id"`
	Language  string    `json:"language"`
	Available bool      `json:"available"`
	Expires   time.Time `json:"expires"`
}

// Expired reports whether the session is invalid at the given instant.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !now.Before(s.Expires)
}

// Renewable reports whether an explicit renewal request should be honored.
// A session whose remaining lifetime is within RenewalTolerance of
// NominalLifetime was just issued and is not renewable yet.
func (s *Session) Renewable(now time.Time) bool {
	if s == nil {
		return true
	}
	miss := s.Expires.Sub(now) - NominalLifetime
	if miss < 0 {
		miss = -miss
	}
	return miss > RenewalTolerance
}

// Data is the typed session data stored on a chat's client record.
type Data struct {
	DefaultLanguage string `json:"default_language,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
}

// NormalizeLanguage returns a usable locale for new sessions, falling back to
// DefaultLanguage when the sender carries none.
func NormalizeLanguage(code string) string {
	code = strings.TrimSpace(strings.ToLower(code))
	if code == "" {
		return DefaultLanguage
	}
	return code
}
