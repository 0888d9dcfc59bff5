package coffeehouse

import "errors"

// SessionError means the gateway rejected the session itself: expired on the
// remote side, revoked, or unknown. The bot handles it by replacing the
// session and retrying once.
type SessionError struct {
	Code    string
	Message string
}

func (e *SessionError) Error() string {
	if e == nil {
		return "coffeehouse: session rejected"
	}
	if e.Message != "" {
		return "coffeehouse: session rejected: " + e.Message
	}
	return "coffeehouse: session rejected (" + e.Code + ")"
}

// IsSessionError reports whether err (anywhere in its chain) is a session
// rejection.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}

func isSessionErrorCode(code string) bool {
	switch code {
	case "INVALID_SESSION", "SESSION_EXPIRED", "SESSION_NOT_FOUND":
		return true
	}
	return false
}
