package server

import "errors"

var (
	// ErrHandshake is returned when a connection does not open with a text
	// frame carrying the display name.
	ErrHandshake = errors.New("name handshake failed")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrHubClosed is returned when a connection arrives after shutdown began.
	ErrHubClosed = errors.New("hub is shutting down")
)
