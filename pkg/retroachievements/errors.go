package retroachievements

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthenticated is returned when credentials are missing or the
// service rejects them.
var ErrNotAuthenticated = errors.New("not logged in to RetroAchievements")

// HTTPError is a non-success answer from the remote service.
type HTTPError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed with status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Endpoint, e.Status, e.Body)
}

// Unwrap lets errors.Is(err, ErrNotAuthenticated) match rejected credentials.
func (e *HTTPError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrNotAuthenticated
	}
	return nil
}

// ProtocolError is a 200 answer whose body could not be understood.
type ProtocolError struct {
	Endpoint string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected %s response: %v", e.Endpoint, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

var errInvalidJSON = errors.New("body is not valid JSON")
