package domain

import "fmt"

// Error is a constant sentinel error.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrAuth means the login endpoint rejected the credentials. The user
	// may retry; the system never does.
	ErrAuth Error = "invalid credentials"

	// ErrNoToken means an authenticated call was attempted with no session.
	// Fatal to the session: triggers logout and the return-to-login hook.
	ErrNoToken Error = "no session token"

	// ErrSessionExpired means the server rejected a token we did present.
	// Handled exactly like ErrNoToken.
	ErrSessionExpired Error = "session expired"
)

// RequestError is any other non-2xx response, carrying the server-provided
// message for the caller to surface. Not retried automatically.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}
