package models

import "errors"

var (
	// ErrNotFound reports a missing record, as opposed to a transient
	// persistence failure.
	ErrNotFound = errors.New("record not found")

	// ErrDecode reports a malformed or truncated feed frame. Frames
	// failing with ErrDecode are logged and discarded, never propagated.
	ErrDecode = errors.New("frame decode failed")

	// ErrUnsupportedMode reports a recognized but undecoded subscription
	// mode (full market depth).
	ErrUnsupportedMode = errors.New("unsupported subscription mode")

	// ErrNotConfigured reports a feed operation attempted before
	// credentials were configured.
	ErrNotConfigured = errors.New("feed not configured")

	// ErrReconnectExhausted reports that reconnect attempts exceeded the
	// configured maximum. The connection stays Failed until reconfigured.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrNotActive reports deactivation of an instance that has no
	// running worker. Idempotent deactivation surfaces this, not a crash.
	ErrNotActive = errors.New("instance not active")
)
