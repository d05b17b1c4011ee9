package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Cast Logic.
const (
	MeasurementReceiverStatus       = "receiver_status"
	MeasurementReceiverConnectivity = "receiver_connectivity"
)

// ReceiverSample is one status reading from a receiver.
type ReceiverSample struct {
	DeviceID    string
	Name        string
	Volume      float64
	Muted       bool
	Stopped     bool
	MediaStatus string
	QueueLength int
	Timestamp   time.Time
}

// NewReceiverStatusPoint builds the receiver_status point for s.
// A zero Timestamp means now.
func NewReceiverStatusPoint(s ReceiverSample) *write.Point {
	tags := map[string]string{"device_id": s.DeviceID}
	if s.Name != "" {
		tags["name"] = s.Name
	}
	if s.MediaStatus != "" {
		tags["media_status"] = s.MediaStatus
	}

	return write.NewPoint(
		MeasurementReceiverStatus,
		tags,
		map[string]any{
			"volume":       s.Volume,
			"muted":        s.Muted,
			"stopped":      s.Stopped,
			"queue_length": s.QueueLength,
		},
		orNow(s.Timestamp),
	)
}

// NewConnectivityPoint builds the receiver_connectivity point for a state
// change. connected is 1 while the receiver's control channel is up.
func NewConnectivityPoint(deviceID, state string, connected bool, attempts int, ts time.Time) *write.Point {
	up := 0
	if connected {
		up = 1
	}
	return write.NewPoint(
		MeasurementReceiverConnectivity,
		map[string]string{
			"device_id": deviceID,
			"state":     state,
		},
		map[string]any{
			"connected": up,
			"attempts":  attempts,
		},
		orNow(ts),
	)
}

// WriteReceiverStatus records a receiver status reading.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteReceiverStatus(s ReceiverSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewReceiverStatusPoint(s))
}

// WriteConnectivity records a receiver connection state change.
func (c *Client) WriteConnectivity(deviceID, state string, connected bool, attempts int, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewConnectivityPoint(deviceID, state, connected, attempts, ts))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("hub_stats",
//	    map[string]string{"site": "home"},
//	    map[string]any{"receivers": 4, "subscribers": 2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func orNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
