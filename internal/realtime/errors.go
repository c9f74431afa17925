package realtime

import "errors"

// Sentinel errors for channel operations.
var (
	// ErrNotConnected is returned by room operations while a session is
	// open but the socket is down (connecting or waiting to retry).
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrClosed is returned by room operations when no session is open.
	ErrClosed = errors.New("realtime: channel closed")

	// ErrDialFailed wraps connection failures recorded in LastError.
	ErrDialFailed = errors.New("realtime: dial failed")

	// ErrRejected means the server refused the token at handshake.
	// The channel stops retrying until the next Open.
	ErrRejected = errors.New("realtime: token rejected")

	// ErrInvalidRoom is returned for an empty room id.
	ErrInvalidRoom = errors.New("realtime: invalid room id")
)
