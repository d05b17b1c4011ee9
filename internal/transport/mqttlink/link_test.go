package mqttlink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/castlogic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/castlogic-core/internal/status"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakeBroker delivers retained messages on Subscribe and records publishes.
type fakeBroker struct {
	mu           sync.Mutex
	connected    bool
	handlers     map[string]mqtt.MessageHandler
	retained     map[string][]byte
	published    []published
	unsubscribed []string
	subErr       error
	pubErr       error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
		retained:  make(map[string][]byte),
	}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	if b.subErr != nil {
		b.mu.Unlock()
		return b.subErr
	}
	b.handlers[topic] = handler
	payload, ok := b.retained[topic]
	b.mu.Unlock()

	if ok {
		_ = handler(topic, payload)
	}
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	b.unsubscribed = append(b.unsubscribed, topic)
	return nil
}

func (b *fakeBroker) PublishJSON(topic string, v any, qos byte, retained bool) error {
	if b.pubErr != nil {
		return b.pubErr
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic, payload, qos, retained})
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) retain(topic, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained[topic] = []byte(payload)
}

// deliver sends a live message to the current subscriber of topic.
func (b *fakeBroker) deliver(t *testing.T, topic, payload string) error {
	t.Helper()
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("no subscriber for %s", topic)
	}
	return h(topic, []byte(payload))
}

func (b *fakeBroker) subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

type pushRecorder struct {
	mu     sync.Mutex
	pushes []status.ReceiverStatus
}

func (r *pushRecorder) push(st status.ReceiverStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, st)
}

func (r *pushRecorder) all() []status.ReceiverStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.ReceiverStatus(nil), r.pushes...)
}

var topics = mqtt.Topics{}

func newTestLink(b *fakeBroker) *Link {
	return New(b, Options{QoS: 1, ConnectTimeout: 50 * time.Millisecond})
}

func openOnline(t *testing.T, b *fakeBroker, l *Link, address string, rec *pushRecorder) supervisor.Channel {
	t.Helper()
	b.retain(topics.ReceiverPresence(address), "online")
	ch, err := l.Open(context.Background(), address, rec.push)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return ch
}

func TestOpen_InvalidAddress(t *testing.T) {
	l := newTestLink(newFakeBroker())

	for _, addr := range []string{"", "a/b", "kitchen+", "#"} {
		_, err := l.Open(context.Background(), addr, func(status.ReceiverStatus) {})
		if !errors.Is(err, supervisor.ErrConfigurationFault) {
			t.Errorf("Open(%q) error = %v, want ErrConfigurationFault", addr, err)
		}
		if !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Open(%q) error = %v, want ErrInvalidAddress", addr, err)
		}
	}
}

func TestOpen_BrokerDisconnected(t *testing.T) {
	b := newFakeBroker()
	b.connected = false
	l := newTestLink(b)

	_, err := l.Open(context.Background(), "kitchen", func(status.ReceiverStatus) {})
	if !errors.Is(err, supervisor.ErrConnectFailure) {
		t.Errorf("Open() error = %v, want ErrConnectFailure", err)
	}
	if errors.Is(err, supervisor.ErrConfigurationFault) {
		t.Error("broker outage must not be a configuration fault")
	}
}

func TestOpen_SubscribeError(t *testing.T) {
	b := newFakeBroker()
	b.subErr = mqtt.ErrSubscribeFailed
	l := newTestLink(b)

	_, err := l.Open(context.Background(), "kitchen", func(status.ReceiverStatus) {})
	if !errors.Is(err, supervisor.ErrConnectFailure) || !errors.Is(err, mqtt.ErrSubscribeFailed) {
		t.Errorf("Open() error = %v, want ErrConnectFailure wrapping ErrSubscribeFailed", err)
	}
	if l.openChannels() != 0 {
		t.Errorf("openChannels() = %d, want 0", l.openChannels())
	}
}

func TestOpen_PresenceTimeout(t *testing.T) {
	b := newFakeBroker()
	l := newTestLink(b)

	_, err := l.Open(context.Background(), "kitchen", func(status.ReceiverStatus) {})
	if !errors.Is(err, ErrPresenceTimeout) || !errors.Is(err, supervisor.ErrConnectFailure) {
		t.Errorf("Open() error = %v, want ErrConnectFailure wrapping ErrPresenceTimeout", err)
	}
	if b.subscribed(topics.ReceiverPresence("kitchen")) {
		t.Error("presence topic still subscribed after failed open")
	}
}

func TestOpen_RetainedOffline(t *testing.T) {
	b := newFakeBroker()
	b.retain(topics.ReceiverPresence("kitchen"), "offline")
	l := newTestLink(b)

	_, err := l.Open(context.Background(), "kitchen", func(status.ReceiverStatus) {})
	if !errors.Is(err, ErrReceiverOffline) {
		t.Errorf("Open() error = %v, want ErrReceiverOffline", err)
	}
}

func TestOpen_ContextCancelled(t *testing.T) {
	b := newFakeBroker()
	l := New(b, Options{ConnectTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Open(ctx, "kitchen", func(status.ReceiverStatus) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Open() error = %v, want context.Canceled", err)
	}
}

func TestOpen_LateOnline(t *testing.T) {
	b := newFakeBroker()
	l := New(b, Options{ConnectTimeout: 2 * time.Second})

	go func() {
		for !b.subscribed(topics.ReceiverPresence("kitchen")) {
			time.Sleep(time.Millisecond)
		}
		_ = b.deliver(t, topics.ReceiverPresence("kitchen"), `{"status":"ONLINE"}`)
	}()

	ch, err := l.Open(context.Background(), "kitchen", func(status.ReceiverStatus) {})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ch.Close()

	if !b.subscribed(topics.ReceiverStatus("kitchen")) {
		t.Error("status topic not subscribed after open")
	}
}

func TestChannel_StatusPush(t *testing.T) {
	b := newFakeBroker()
	l := newTestLink(b)
	rec := &pushRecorder{}
	ch := openOnline(t, b, l, "kitchen", rec)
	defer ch.Close()

	if err := b.deliver(t, topics.ReceiverStatus("kitchen"), `{"id":"kitchen","volume":1.7,"media_status":"PLAYING"}`); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if err := b.deliver(t, topics.ReceiverStatus("kitchen"), `not json`); err == nil {
		t.Error("deliver(bad json) error = nil, want decode error")
	}

	pushes := rec.all()
	if len(pushes) != 1 {
		t.Fatalf("got %d pushes, want 1", len(pushes))
	}
	if pushes[0].Volume != 1 {
		t.Errorf("Volume = %v, want clamped to 1", pushes[0].Volume)
	}
	if pushes[0].MediaStatus != status.MediaPlaying {
		t.Errorf("MediaStatus = %q, want %q", pushes[0].MediaStatus, status.MediaPlaying)
	}
}

func TestChannel_Send(t *testing.T) {
	b := newFakeBroker()
	l := newTestLink(b)
	ch := openOnline(t, b, l, "kitchen", &pushRecorder{})

	cmd := supervisor.Command{Type: supervisor.CommandVolume, Payload: 0.4}
	if err := ch.Send(context.Background(), cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(b.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(b.published))
	}
	got := b.published[0]
	if got.topic != topics.ReceiverCommand("kitchen") {
		t.Errorf("topic = %q, want %q", got.topic, topics.ReceiverCommand("kitchen"))
	}
	if got.retained {
		t.Error("commands must not be retained")
	}
	var decoded supervisor.Command
	if err := json.Unmarshal(got.payload, &decoded); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if decoded.Type != supervisor.CommandVolume {
		t.Errorf("Type = %q, want %q", decoded.Type, supervisor.CommandVolume)
	}

	ch.Close()
	if err := ch.Send(context.Background(), cmd); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Send() after Close error = %v, want ErrChannelClosed", err)
	}
}

func TestChannel_OfflineDrops(t *testing.T) {
	b := newFakeBroker()
	l := newTestLink(b)
	ch := openOnline(t, b, l, "kitchen", &pushRecorder{})

	if err := b.deliver(t, topics.ReceiverPresence("kitchen"), "offline"); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("channel not dropped on offline presence")
	}
	if !errors.Is(ch.Err(), ErrReceiverOffline) {
		t.Errorf("Err() = %v, want ErrReceiverOffline", ch.Err())
	}
}

func TestChannel_CloseUnsubscribes(t *testing.T) {
	b := newFakeBroker()
	l := newTestLink(b)
	ch := openOnline(t, b, l, "kitchen", &pushRecorder{})

	if err := ch.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if ch.Err() != nil {
		t.Errorf("Err() after Close = %v, want nil", ch.Err())
	}
	for _, topic := range []string{topics.ReceiverPresence("kitchen"), topics.ReceiverStatus("kitchen")} {
		if b.subscribed(topic) {
			t.Errorf("%s still subscribed after Close", topic)
		}
	}
}

func TestLink_BrokerLost(t *testing.T) {
	b := newFakeBroker()
	l := newTestLink(b)
	kitchen := openOnline(t, b, l, "kitchen", &pushRecorder{})
	lounge := openOnline(t, b, l, "lounge", &pushRecorder{})

	l.BrokerLost(errors.New("EOF"))

	for name, ch := range map[string]supervisor.Channel{"kitchen": kitchen, "lounge": lounge} {
		select {
		case <-ch.Done():
		default:
			t.Errorf("%s channel not dropped", name)
		}
		if !errors.Is(ch.Err(), ErrBrokerLost) {
			t.Errorf("%s Err() = %v, want ErrBrokerLost", name, ch.Err())
		}
	}
}

func TestLink_StaleCloseKeepsNewSubscription(t *testing.T) {
	b := newFakeBroker()
	l := newTestLink(b)
	old := openOnline(t, b, l, "kitchen", &pushRecorder{})

	// Dropped but not yet closed by its owner.
	l.BrokerLost(nil)
	fresh := openOnline(t, b, l, "kitchen", &pushRecorder{})
	defer fresh.Close()

	old.Close()
	if !b.subscribed(topics.ReceiverStatus("kitchen")) {
		t.Error("closing the stale channel removed the new subscription")
	}
	if l.openChannels() != 1 {
		t.Errorf("openChannels() = %d, want 1", l.openChannels())
	}
}

func TestOpen_AddressHeldByLiveChannel(t *testing.T) {
	b := newFakeBroker()
	l := newTestLink(b)
	first := openOnline(t, b, l, "kitchen", &pushRecorder{})
	defer first.Close()

	_, err := l.Open(context.Background(), "kitchen", (&pushRecorder{}).push)
	if !errors.Is(err, supervisor.ErrConfigurationFault) || !errors.Is(err, ErrAddressInUse) {
		t.Fatalf("second Open() error = %v, want ConfigurationFault and ErrAddressInUse", err)
	}

	select {
	case <-first.Done():
		t.Fatal("live channel dropped by a competing Open")
	default:
	}
	if !b.subscribed(topics.ReceiverStatus("kitchen")) {
		t.Error("competing Open removed the live subscription")
	}

	// Once the owner closes, the address is free again.
	first.Close()
	again := openOnline(t, b, l, "kitchen", &pushRecorder{})
	again.Close()
}

func TestLink_SharedAddressDoesNotSpin(t *testing.T) {
	b := newFakeBroker()
	b.retain(topics.ReceiverPresence("kitchen"), "online")
	l := newTestLink(b)
	mirror := status.NewMirror()

	var (
		mu    sync.Mutex
		opens int
	)
	counting := transportFunc(func(ctx context.Context, address string, push supervisor.PushFunc) (supervisor.Channel, error) {
		mu.Lock()
		opens++
		mu.Unlock()
		return l.Open(ctx, address, push)
	})

	newSup := func(id string) *supervisor.Supervisor {
		sup, err := supervisor.New(supervisor.Options{
			DeviceID:  id,
			Name:      id,
			Address:   "kitchen",
			Transport: counting,
			Mirror:    mirror,
		})
		if err != nil {
			t.Fatalf("supervisor.New(%s) error = %v", id, err)
		}
		return sup
	}
	a, c := newSup("kitchen-a"), newSup("kitchen-b")
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()
	defer c.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.State() == supervisor.StateFaulted || c.State() == supervisor.StateFaulted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	faulted := 0
	for _, sup := range []*supervisor.Supervisor{a, c} {
		if sup.State() == supervisor.StateFaulted {
			faulted++
		} else if sup.State() != supervisor.StateConnected {
			t.Errorf("%s state = %s, want connected", sup.DeviceID(), sup.State())
		}
	}
	if faulted != 1 {
		t.Errorf("faulted supervisors = %d, want 1", faulted)
	}

	mu.Lock()
	defer mu.Unlock()
	if opens > 2 {
		t.Errorf("Open called %d times, want 2", opens)
	}
}

// transportFunc adapts a function to supervisor.Transport.
type transportFunc func(ctx context.Context, address string, push supervisor.PushFunc) (supervisor.Channel, error)

func (f transportFunc) Open(ctx context.Context, address string, push supervisor.PushFunc) (supervisor.Channel, error) {
	return f(ctx, address, push)
}

func TestParsePresence(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"online", "online"},
		{" OFFLINE\n", "offline"},
		{`{"status":"online","ts":1}`, "online"},
		{`{"status":`, ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := parsePresence([]byte(tt.payload)); got != tt.want {
			t.Errorf("parsePresence(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}
