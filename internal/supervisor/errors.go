package supervisor

import "errors"

// Domain errors for receiver supervision.
var (
	// ErrConnectFailure marks a transient connect failure. Transports
	// should wrap it; any error without ErrConfigurationFault is treated
	// as transient.
	ErrConnectFailure = errors.New("supervisor: connect failed")

	// ErrConfigurationFault marks an unrecoverable local error such as an
	// invalid receiver address. The supervisor stops retrying.
	ErrConfigurationFault = errors.New("supervisor: configuration fault")

	// ErrSinkUnavailable wraps notification sink failures. They are logged
	// and never affect reconnection.
	ErrSinkUnavailable = errors.New("supervisor: notification sink unavailable")

	// ErrNotConnected is returned by Send when no channel is live.
	ErrNotConnected = errors.New("supervisor: receiver not connected")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("supervisor: already started")

	// ErrInvalidOptions is returned by New for incomplete options.
	ErrInvalidOptions = errors.New("supervisor: invalid options")
)
