package server

import (
	"errors"
)

// Sentinel errors for connection and delivery error conditions.
var (
	// ErrAuthenticationFailed is returned by AuthFunc implementations when
	// the handshake does not resolve to a verified user. The connection is
	// rejected without a registry entry.
	ErrAuthenticationFailed = errors.New("server: authentication failed")

	// ErrConnExists is returned when a connection id is registered twice.
	ErrConnExists = errors.New("server: connection already registered")

	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("server: connection closed")

	// ErrSendQueueFull is returned when a connection's outbound queue is
	// full. The delivery path treats this as a slow or dead consumer and
	// closes the connection.
	ErrSendQueueFull = errors.New("server: send queue full")
)
