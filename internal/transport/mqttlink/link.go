package mqttlink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/castlogic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/castlogic-core/internal/status"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

// DefaultConnectTimeout bounds the wait for online presence in Open.
const DefaultConnectTimeout = 5 * time.Second

// Broker is the subset of the MQTT client used by Link.
// *mqtt.Client satisfies it.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, qos byte, retained bool) error
	IsConnected() bool
}

// Logger is the logging interface used by Link.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Link.
type Options struct {
	Topics         mqtt.Topics
	QoS            byte
	ConnectTimeout time.Duration
}

// Link implements supervisor.Transport over an MQTT broker.
type Link struct {
	broker         Broker
	topics         mqtt.Topics
	qos            byte
	connectTimeout time.Duration
	logger         Logger

	mu     sync.Mutex
	active map[string]*channel // keyed by address
}

// New creates a Link. Call BrokerLost from the broker's disconnect
// callback so open channels drop with the connection.
func New(broker Broker, opts Options) *Link {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.QoS > 2 {
		opts.QoS = 1
	}
	return &Link{
		broker:         broker,
		topics:         opts.Topics,
		qos:            opts.QoS,
		connectTimeout: opts.ConnectTimeout,
		logger:         noopLogger{},
		active:         make(map[string]*channel),
	}
}

// SetLogger sets the logger.
func (l *Link) SetLogger(logger Logger) {
	l.logger = logger
}

// Open subscribes to the receiver's presence topic and waits for it to
// report online, then starts forwarding status pushes to push.
func (l *Link) Open(ctx context.Context, address string, push supervisor.PushFunc) (supervisor.Channel, error) {
	if !mqtt.ValidTopicLevel(address) {
		return nil, fmt.Errorf("%w: %w: %q", supervisor.ErrConfigurationFault, ErrInvalidAddress, address)
	}
	if !l.broker.IsConnected() {
		return nil, fmt.Errorf("%w: %w", supervisor.ErrConnectFailure, mqtt.ErrNotConnected)
	}

	ch := newChannel(l, address, push)

	// A live channel owns its address until it drops; a second receiver
	// configured with the same address can never connect. A dropped
	// channel that its owner has not closed yet is replaced, and its
	// later Close leaves this one's topics alone.
	l.mu.Lock()
	if prev := l.active[address]; prev != nil && !prev.closed() {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %w: %q", supervisor.ErrConfigurationFault, ErrAddressInUse, address)
	}
	l.active[address] = ch
	l.mu.Unlock()

	if err := l.broker.Subscribe(ch.presenceTopic, l.qos, ch.handlePresence); err != nil {
		l.release(ch)
		return nil, fmt.Errorf("%w: presence: %w", supervisor.ErrConnectFailure, err)
	}

	timer := time.NewTimer(l.connectTimeout)
	defer timer.Stop()

	select {
	case <-ch.online:
	case <-ch.done:
		l.release(ch)
		return nil, fmt.Errorf("%w: %w", supervisor.ErrConnectFailure, ch.Err())
	case <-timer.C:
		l.release(ch)
		return nil, fmt.Errorf("%w: %w", supervisor.ErrConnectFailure, ErrPresenceTimeout)
	case <-ctx.Done():
		l.release(ch)
		return nil, ctx.Err()
	}

	if err := l.broker.Subscribe(ch.statusTopic, l.qos, ch.handleStatus); err != nil {
		l.release(ch)
		return nil, fmt.Errorf("%w: status: %w", supervisor.ErrConnectFailure, err)
	}

	l.logger.Debug("receiver channel open", "address", address)
	return ch, nil
}

// BrokerLost drops every open channel.
func (l *Link) BrokerLost(err error) {
	l.mu.Lock()
	open := make([]*channel, 0, len(l.active))
	for _, ch := range l.active {
		open = append(open, ch)
	}
	l.mu.Unlock()

	cause := ErrBrokerLost
	if err != nil {
		cause = fmt.Errorf("%w: %w", ErrBrokerLost, err)
	}
	for _, ch := range open {
		ch.drop(cause)
	}
	if len(open) > 0 {
		l.logger.Warn("broker lost, receiver channels dropped", "count", len(open), "error", err)
	}
}

// release unsubscribes ch's topics if ch still owns its address.
func (l *Link) release(ch *channel) {
	ch.drop(nil)

	l.mu.Lock()
	owner := l.active[ch.address] == ch
	if owner {
		delete(l.active, ch.address)
	}
	l.mu.Unlock()

	if !owner {
		return
	}
	for _, topic := range []string{ch.presenceTopic, ch.statusTopic} {
		if err := l.broker.Unsubscribe(topic); err != nil {
			l.logger.Debug("unsubscribe receiver topic", "topic", topic, "error", err)
		}
	}
}

// openChannels reports the number of channels currently registered.
func (l *Link) openChannels() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

type channel struct {
	link          *Link
	address       string
	push          supervisor.PushFunc
	presenceTopic string
	statusTopic   string
	commandTopic  string

	online     chan struct{}
	onlineOnce sync.Once
	done       chan struct{}

	mu   sync.Mutex
	err  error
	shut bool
}

func newChannel(l *Link, address string, push supervisor.PushFunc) *channel {
	return &channel{
		link:          l,
		address:       address,
		push:          push,
		presenceTopic: l.topics.ReceiverPresence(address),
		statusTopic:   l.topics.ReceiverStatus(address),
		commandTopic:  l.topics.ReceiverCommand(address),
		online:        make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Send publishes cmd to the receiver's command topic.
func (c *channel) Send(ctx context.Context, cmd supervisor.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed() {
		return ErrChannelClosed
	}
	return c.link.broker.PublishJSON(c.commandTopic, cmd, c.link.qos, false)
}

func (c *channel) Done() <-chan struct{} { return c.done }

func (c *channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *channel) Close() error {
	c.link.release(c)
	return nil
}

func (c *channel) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shut
}

// drop closes done once, recording cause.
func (c *channel) drop(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shut {
		return
	}
	c.shut = true
	c.err = cause
	close(c.done)
}

// handlePresence runs on the broker's delivery goroutine and must not block.
func (c *channel) handlePresence(_ string, payload []byte) error {
	switch parsePresence(payload) {
	case mqtt.PresenceOnline:
		c.onlineOnce.Do(func() { close(c.online) })
	case mqtt.PresenceOffline:
		c.drop(ErrReceiverOffline)
	default:
		return fmt.Errorf("unrecognised presence %q", payload)
	}
	return nil
}

func (c *channel) handleStatus(_ string, payload []byte) error {
	if c.closed() {
		return nil
	}
	var st status.ReceiverStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("decoding status from %s: %w", c.address, err)
	}
	st.ClampVolume()
	c.push(st)
	return nil
}

// parsePresence accepts a bare "online"/"offline" payload or a JSON object
// with a status field.
func parsePresence(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var p struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return ""
		}
		s = p.Status
	}
	return strings.ToLower(strings.TrimSpace(s))
}
