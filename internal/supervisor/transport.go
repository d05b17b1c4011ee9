package supervisor

import (
	"context"
	"time"

	"github.com/nerrad567/castlogic-core/internal/queue"
	"github.com/nerrad567/castlogic-core/internal/status"
)

// Command types understood by receivers.
const (
	CommandLoadQueue = "queue.load"
	CommandPlay      = "play"
	CommandPause     = "pause"
	CommandStop      = "stop"
	CommandVolume    = "volume"
)

// Command is an instruction sent to a receiver over its channel.
type Command struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// QueueLoad is the payload of a CommandLoadQueue command. Items is the
// complete queue the receiver should hold.
type QueueLoad struct {
	PlanID string            `json:"plan_id,omitempty"`
	Method string            `json:"method,omitempty"`
	Items  []queue.QueueItem `json:"items"`
}

// PushFunc receives status pushes from an open channel.
type PushFunc func(status.ReceiverStatus)

// Transport opens control channels to receivers.
//
// Open must honour ctx and bound its own connect time; a timeout is just
// another failure. It must wrap ErrConfigurationFault for failures that
// retrying cannot fix. push may be called from any goroutine, including
// before Open returns.
type Transport interface {
	Open(ctx context.Context, address string, push PushFunc) (Channel, error)
}

// Channel is one live control connection.
type Channel interface {
	// Send delivers a command to the receiver.
	Send(ctx context.Context, cmd Command) error

	// Done is closed when the connection drops or is closed.
	Done() <-chan struct{}

	// Err explains why Done was closed. Nil after a plain Close.
	Err() error

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Notice describes a receiver that stayed unreachable through the whole
// backoff table.
type Notice struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Address    string    `json:"address"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	Since      time.Time `json:"since"`
}

// NotificationSink reports unreachable receivers to the outside world.
type NotificationSink interface {
	NotifyUnreachable(ctx context.Context, n Notice) error
}
