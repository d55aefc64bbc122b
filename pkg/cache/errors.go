package cache

import "errors"

// ErrSchemaMismatch marks a persisted document written by an incompatible
// version. Load recovers from it by resetting the document; it is only
// reported through the Notifier.
var ErrSchemaMismatch = errors.New("settings schema version mismatch")

var (
	errPacketRange = errors.New("packet index out of range")
	errNoWrite     = errors.New("no write in progress")
)
