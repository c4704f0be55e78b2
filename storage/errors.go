package storage

import "errors"

var (
	// ErrHashMismatch is returned when a server reports a digest other than
	// the payload's.
	ErrHashMismatch = errors.New("storage: descriptor sha256 mismatch")
	ErrNoServers    = errors.New("storage: no servers")
)
