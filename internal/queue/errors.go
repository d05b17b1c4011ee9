package queue

import "errors"

// Domain errors for queue operations.
var (
	// ErrIndexOutOfRange is returned when a move targets an index at or
	// beyond the queue boundary. The queue is left unchanged.
	ErrIndexOutOfRange = errors.New("queue: index out of range")

	// ErrUnknownOrder is returned for an OrderType outside the strategy table.
	ErrUnknownOrder = errors.New("queue: unknown order type")
)
