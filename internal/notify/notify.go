// Package notify delivers receiver alerts outside the hub.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/castlogic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

// AlertReceiverUnreachable is the alert ID used in the alert topic.
const AlertReceiverUnreachable = "receiver-unreachable"

// Severity levels carried in alerts.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Publisher is the subset of the MQTT client used by MQTTSink.
type Publisher interface {
	PublishJSON(topic string, v any, qos byte, retained bool) error
}

// Alert is the JSON body published for an unreachable receiver.
type Alert struct {
	ID         string    `json:"id"`
	Alert      string    `json:"alert"`
	Severity   string    `json:"severity"`
	SiteID     string    `json:"site_id,omitempty"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Address    string    `json:"address"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	Since      time.Time `json:"since"`
	RaisedAt   time.Time `json:"raised_at"`
}

// MQTTSink publishes unreachable notices to the core alert topic.
type MQTTSink struct {
	pub    Publisher
	topic  string
	siteID string
	now    func() time.Time
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher, siteID string) *MQTTSink {
	return &MQTTSink{
		pub:    pub,
		topic:  mqtt.Topics{}.CoreAlert(AlertReceiverUnreachable),
		siteID: siteID,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Topic returns the topic alerts are published to.
func (s *MQTTSink) Topic() string {
	return s.topic
}

// NotifyUnreachable publishes n at QoS 1, not retained.
func (s *MQTTSink) NotifyUnreachable(ctx context.Context, n supervisor.Notice) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", supervisor.ErrSinkUnavailable, err)
	}
	alert := Alert{
		ID:         uuid.NewString(),
		Alert:      AlertReceiverUnreachable,
		Severity:   SeverityWarning,
		SiteID:     s.siteID,
		DeviceID:   n.DeviceID,
		DeviceName: n.DeviceName,
		Address:    n.Address,
		Attempts:   n.Attempts,
		LastError:  n.LastError,
		Since:      n.Since,
		RaisedAt:   s.now(),
	}
	if err := s.pub.PublishJSON(s.topic, alert, 1, false); err != nil {
		return fmt.Errorf("%w: %w", supervisor.ErrSinkUnavailable, err)
	}
	return nil
}

// Logger is the logging interface used by LogSink.
type Logger interface {
	Warn(msg string, args ...any)
}

// LogSink writes unreachable notices to a logger.
type LogSink struct {
	Logger Logger
}

// NotifyUnreachable logs n at warn level.
func (s LogSink) NotifyUnreachable(_ context.Context, n supervisor.Notice) error {
	if s.Logger == nil {
		return fmt.Errorf("%w: no logger", supervisor.ErrSinkUnavailable)
	}
	s.Logger.Warn("receiver unreachable",
		"device_id", n.DeviceID,
		"device_name", n.DeviceName,
		"address", n.Address,
		"attempts", n.Attempts,
		"last_error", n.LastError,
		"since", n.Since,
	)
	return nil
}

// Sink is implemented by MQTTSink and LogSink.
type Sink interface {
	NotifyUnreachable(ctx context.Context, n supervisor.Notice) error
}

// Fallback tries Primary and hands the notice to Secondary when Primary
// fails. The Primary error is returned only if Secondary fails too.
type Fallback struct {
	Primary   Sink
	Secondary Sink
}

// NotifyUnreachable implements supervisor.NotificationSink.
func (f Fallback) NotifyUnreachable(ctx context.Context, n supervisor.Notice) error {
	err := f.Primary.NotifyUnreachable(ctx, n)
	if err == nil || f.Secondary == nil {
		return err
	}
	if secErr := f.Secondary.NotifyUnreachable(ctx, n); secErr != nil {
		return errors.Join(err, secErr)
	}
	return nil
}
