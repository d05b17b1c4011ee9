// Package telemetry records receiver history to the time-series store.
package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/castlogic-core/internal/events"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/castlogic-core/internal/status"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

// SubscriberName is the name the Recorder registers on the event bus.
const SubscriberName = "telemetry"

// Writer is the subset of the InfluxDB client used by Recorder.
// *influxdb.Client satisfies it.
type Writer interface {
	WriteReceiverStatus(s influxdb.ReceiverSample)
	WriteConnectivity(deviceID, state string, connected bool, attempts int, ts time.Time)
}

// StatusSource looks up the latest mirrored status of a device.
type StatusSource interface {
	Get(deviceID string) (status.ReceiverStatus, bool)
}

// Subscriber is the subset of the event bus used by Recorder.
type Subscriber interface {
	Subscribe(name string, h events.Handler) events.Subscription
	Unsubscribe(id string) bool
}

// Recorder turns receiver events into time-series points.
type Recorder struct {
	writer Writer
	source StatusSource
	sub    events.Subscription
	bus    Subscriber
}

// NewRecorder creates a Recorder reading statuses from source.
func NewRecorder(writer Writer, source StatusSource) *Recorder {
	return &Recorder{writer: writer, source: source}
}

// Attach subscribes the recorder to bus.
func (r *Recorder) Attach(bus Subscriber) {
	r.bus = bus
	r.sub = bus.Subscribe(SubscriberName, r.Handle)
}

// Detach removes the recorder's subscription.
func (r *Recorder) Detach() {
	if r.bus != nil {
		r.bus.Unsubscribe(r.sub.ID)
		r.bus = nil
	}
}

// Handle writes the point for ev. Other event types are ignored.
func (r *Recorder) Handle(_ context.Context, ev events.Event) error {
	switch ev.Type {
	case events.TypeStatus:
		st, ok := r.source.Get(ev.DeviceID)
		if !ok {
			return nil
		}
		r.writer.WriteReceiverStatus(influxdb.ReceiverSample{
			DeviceID:    ev.DeviceID,
			Name:        st.Name,
			Volume:      st.Volume,
			Muted:       st.Muted,
			Stopped:     st.Stopped,
			MediaStatus: st.MediaStatus,
			QueueLength: len(st.Queue),
			Timestamp:   ev.Timestamp,
		})
	case events.TypeConnectivity:
		connected := ev.State == string(supervisor.StateConnected)
		r.writer.WriteConnectivity(ev.DeviceID, ev.State, connected, ev.Attempts, ev.Timestamp)
	}
	return nil
}
