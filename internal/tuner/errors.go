package tuner

import "errors"

var (
	// ErrUpstreamUnavailable wraps every failure to launch or relay a stream.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotScheduled means no entry covers the channel right now.
	ErrNotScheduled = errors.New("nothing scheduled on channel")

	// ErrUnknownToken means the segment or key token is not in the current chunklist.
	ErrUnknownToken = errors.New("unknown segment token")

	// ErrUnknownChunklist means the chunklist id was not in the master playlist.
	ErrUnknownChunklist = errors.New("unknown chunklist")

	// ErrSessionNotFound means no session exists for the channel.
	ErrSessionNotFound = errors.New("session not found")
)
