package events

import "time"

// Type identifies an event kind.
type Type string

// Event types.
const (
	// TypeStatus is published after a receiver pushed a new status.
	TypeStatus Type = "receiver.status"

	// TypeConnectivity is published on every connection state change.
	TypeConnectivity Type = "receiver.connectivity"

	// TypeUnreachable is published once per failure episode when the
	// reconnect attempts run past the end of the backoff table.
	TypeUnreachable Type = "receiver.unreachable"

	// TypeFaulted is published when a receiver stops retrying because of
	// a configuration fault.
	TypeFaulted Type = "receiver.faulted"
)

// Event is a receiver change signal.
type Event struct {
	Type     Type   `json:"type"`
	DeviceID string `json:"device_id"`

	// State is the connection state for connectivity events.
	State string `json:"state,omitempty"`

	// Attempts is the failed attempt count for connectivity and
	// unreachable events.
	Attempts int `json:"attempts,omitempty"`

	// RetryIn is the backoff delay before the next connect attempt.
	RetryIn time.Duration `json:"retry_in,omitempty"`

	// Error describes the last failure, if any.
	Error string `json:"error,omitempty"`

	// Seq is assigned by the bus and increases with every Publish.
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}
