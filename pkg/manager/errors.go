package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/sw33tLie/emuchievements/pkg/connectivity"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
)

var (
	// ErrRefreshInProgress is returned by RefreshAll while a cycle runs.
	ErrRefreshInProgress = errors.New("a refresh is already in progress")
	// ErrUnknownApplication is returned for app ids missing from the library.
	ErrUnknownApplication = errors.New("application not found in library")
)

// ErrorKind names the class of err for user facing messages.
func ErrorKind(err error) string {
	var (
		httpErr  *retroachievements.HTTPError
		protoErr *retroachievements.ProtocolError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, retroachievements.ErrNotAuthenticated):
		return "NotAuthenticated"
	case errors.Is(err, connectivity.ErrNetworkUnavailable):
		return "NetworkUnavailable"
	case errors.As(err, &httpErr):
		return "HttpError"
	case errors.As(err, &protoErr):
		return "ProtocolError"
	case errors.Is(err, ErrRefreshInProgress):
		return "RefreshInProgress"
	case errors.Is(err, ErrUnknownApplication):
		return "UnknownApplication"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	default:
		return "Error"
	}
}

// ErrorMessage renders err as "<Kind>: <message>".
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", ErrorKind(err), err)
}
