package seriallink

import (
	"errors"
	"fmt"
)

// Errors returned by Link operations. Lifecycle misuse surfaces as a value
// wrapping ErrInvalidState so callers can match the whole family with a
// single errors.Is check. Transport failures are never returned to the
// host; the worker converts them into Disconnected events and reconnects.
var (
	// ErrInvalidState is the base error for operations invoked in the
	// wrong lifecycle state.
	ErrInvalidState = errors.New("seriallink: invalid state")

	// ErrAlreadyRunning is returned by Start when the link is running.
	ErrAlreadyRunning = fmt.Errorf("%w: already running", ErrInvalidState)

	// ErrNotRunning is returned by Stop, Drain, Tick, ReadMessage and
	// Send when the link is not running.
	ErrNotRunning = fmt.Errorf("%w: not running", ErrInvalidState)

	// ErrInvalidConfig is returned by Start when the configuration fails
	// validation. The wrapped message names the offending field.
	ErrInvalidConfig = errors.New("seriallink: invalid config")

	// ErrClosed is returned by transport methods used after Close.
	ErrClosed = errors.New("seriallink: transport closed")
)

// errLineTooLong is reported by a transport when the device keeps sending
// bytes without ever producing a delimiter. The worker treats it like any
// other I/O failure and reopens the transport.
var errLineTooLong = errors.New("seriallink: line exceeds maximum length without delimiter")
