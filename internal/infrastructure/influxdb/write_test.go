package influxdb_test

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/castlogic-core/internal/infrastructure/influxdb"
)

func tags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fields(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestNewReceiverStatusPoint(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	p := influxdb.NewReceiverStatusPoint(influxdb.ReceiverSample{
		DeviceID:    "kitchen",
		Name:        "Kitchen",
		Volume:      0.5,
		Muted:       true,
		MediaStatus: "PAUSED",
		QueueLength: 4,
		Timestamp:   at,
	})

	if p.Name() != influxdb.MeasurementReceiverStatus {
		t.Errorf("Name() = %q, want %q", p.Name(), influxdb.MeasurementReceiverStatus)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	gotTags := tags(p)
	if gotTags["device_id"] != "kitchen" || gotTags["name"] != "Kitchen" || gotTags["media_status"] != "PAUSED" {
		t.Errorf("tags = %v", gotTags)
	}

	gotFields := fields(p)
	if gotFields["volume"] != 0.5 {
		t.Errorf("volume = %v, want 0.5", gotFields["volume"])
	}
	if gotFields["muted"] != true || gotFields["stopped"] != false {
		t.Errorf("muted/stopped = %v/%v", gotFields["muted"], gotFields["stopped"])
	}
	if gotFields["queue_length"] != int64(4) {
		t.Errorf("queue_length = %v (%T), want int64 4", gotFields["queue_length"], gotFields["queue_length"])
	}
}

func TestNewReceiverStatusPoint_OptionalTags(t *testing.T) {
	p := influxdb.NewReceiverStatusPoint(influxdb.ReceiverSample{DeviceID: "kitchen"})

	gotTags := tags(p)
	if _, ok := gotTags["name"]; ok {
		t.Error("empty name should not be tagged")
	}
	if _, ok := gotTags["media_status"]; ok {
		t.Error("empty media status should not be tagged")
	}
	if p.Time().IsZero() {
		t.Error("zero timestamp should default to now")
	}
}

func TestNewConnectivityPoint(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		want      int64
	}{
		{name: "connected", connected: true, want: 1},
		{name: "disconnected", connected: false, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := influxdb.NewConnectivityPoint("kitchen", tt.name, tt.connected, 3, time.Now())

			if p.Name() != influxdb.MeasurementReceiverConnectivity {
				t.Errorf("Name() = %q", p.Name())
			}
			if got := tags(p)["state"]; got != tt.name {
				t.Errorf("state tag = %q, want %q", got, tt.name)
			}
			f := fields(p)
			if f["connected"] != tt.want {
				t.Errorf("connected = %v, want %d", f["connected"], tt.want)
			}
			if f["attempts"] != int64(3) {
				t.Errorf("attempts = %v, want 3", f["attempts"])
			}
		})
	}
}
