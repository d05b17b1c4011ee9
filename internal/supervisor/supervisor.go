package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/castlogic-core/internal/events"
	"github.com/nerrad567/castlogic-core/internal/status"
)

// State is the connection state of a receiver.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFaulted      State = "faulted"
)

// sinkTimeout bounds a single unreachable notification.
const sinkTimeout = 10 * time.Second

// Logger defines the logging interface used by the supervisor.
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

type noopPublisher struct{}

func (noopPublisher) Publish(events.Event) {}

// Options configures a Supervisor.
type Options struct {
	// DeviceID, Name and Address identify the receiver.
	DeviceID string
	Name     string
	Address  string

	// Transport opens the control channel. Required.
	Transport Transport

	// Mirror receives status pushes. Required; New claims the receiver's
	// writer and Stop releases it.
	Mirror *status.Mirror

	// Events receives connectivity and status signals. Optional.
	Events events.Publisher

	// Sink is told once per failure episode that the receiver is
	// unreachable. Optional.
	Sink NotificationSink

	// Backoff overrides DefaultBackoff.
	Backoff []time.Duration

	// Wait overrides the backoff wait. Tests use it to run without delays.
	Wait WaitFunc

	// OnStatus is called with every status applied to the mirror, while
	// the supervisor's lock is held. It must not call back into the
	// Supervisor.
	OnStatus func(deviceID string, s status.ReceiverStatus)

	// Now overrides time.Now.
	Now func() time.Time

	Logger Logger
}

// Stats is a point-in-time view of a supervisor.
type Stats struct {
	DeviceID       string        `json:"device_id"`
	State          State         `json:"state"`
	Attempts       int           `json:"attempts"`
	NextDelay      time.Duration `json:"next_delay,omitempty"`
	Unreachable    bool          `json:"unreachable"`
	LastError      string        `json:"last_error,omitempty"`
	ConnectedSince time.Time     `json:"connected_since,omitzero"`
	LastAttempt    time.Time     `json:"last_attempt,omitzero"`
}

// Supervisor owns the control connection of one receiver.
type Supervisor struct {
	opts   Options
	logger Logger
	writer *status.Writer

	mu             sync.RWMutex
	state          State
	channel        Channel
	generation     uint64
	pending        *status.ReceiverStatus
	attempts       int
	nextDelay      time.Duration
	unreachable    bool
	episodeStart   time.Time
	lastErr        error
	connectedSince time.Time
	lastAttempt    time.Time

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	sinks   sync.WaitGroup
}

// New validates opts and claims the receiver's status writer.
func New(opts Options) (*Supervisor, error) {
	switch {
	case opts.DeviceID == "":
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidOptions)
	case opts.Transport == nil:
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidOptions)
	case opts.Mirror == nil:
		return nil, fmt.Errorf("%w: status mirror is required", ErrInvalidOptions)
	}

	if len(opts.Backoff) == 0 {
		opts.Backoff = DefaultBackoff
	}
	opts.Backoff = slices.Clone(opts.Backoff)
	if opts.Wait == nil {
		opts.Wait = waitForBackoff
	}
	if opts.Events == nil {
		opts.Events = noopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	writer, err := opts.Mirror.Claim(opts.DeviceID)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		opts:   opts,
		logger: logger,
		writer: writer,
		state:  StateDisconnected,
	}, nil
}

// SetLogger sets the logger for the supervisor. Call before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// DeviceID returns the supervised receiver's ID.
func (s *Supervisor) DeviceID() string {
	return s.opts.DeviceID
}

// Start launches the connection loop. It returns immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	return nil
}

// Stop cancels any pending wait or in-flight attempt, closes the live
// channel and waits for the loop to exit. It is safe to call more than
// once and before Start.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.writer.Release()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.sinks.Wait()
	return nil
}

// Done is closed when the loop has exited, either after Stop or after a
// configuration fault. Nil before Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns current statistics.
func (s *Supervisor) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		DeviceID:       s.opts.DeviceID,
		State:          s.state,
		Attempts:       s.attempts,
		NextDelay:      s.nextDelay,
		Unreachable:    s.unreachable,
		ConnectedSince: s.connectedSince,
		LastAttempt:    s.lastAttempt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Send delivers cmd over the live channel.
func (s *Supervisor) Send(ctx context.Context, cmd Command) error {
	s.mu.RLock()
	ch, state := s.channel, s.state
	s.mu.RUnlock()

	if state != StateConnected || ch == nil {
		return fmt.Errorf("%w: %s is %s", ErrNotConnected, s.opts.DeviceID, state)
	}
	if err := ch.Send(ctx, cmd); err != nil {
		return fmt.Errorf("sending %s to %s: %w", cmd.Type, s.opts.DeviceID, err)
	}
	return nil
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer s.writer.Release()

	attempt := 0
	for {
		if ctx.Err() != nil {
			s.exit()
			return
		}

		gen := s.beginAttempt()
		ch, err := s.opts.Transport.Open(ctx, s.opts.Address, s.pushHandler(gen))
		if err != nil {
			if ctx.Err() != nil {
				s.exit()
				return
			}
			if errors.Is(err, ErrConfigurationFault) {
				s.fault(err)
				return
			}

			delay := delayFor(s.opts.Backoff, attempt)
			s.attemptFailed(attempt, delay, err)
			if attempt == len(s.opts.Backoff) {
				s.reportUnreachable(ctx, attempt+1, err)
			}
			attempt++

			if err := s.opts.Wait(ctx, delay); err != nil {
				s.exit()
				return
			}
			continue
		}

		if !s.connected(ctx, ch) {
			ch.Close() //nolint:errcheck // stopping
			s.exit()
			return
		}
		attempt = 0

		select {
		case <-ctx.Done():
			s.dropped(ch, nil)
			s.exit()
			return
		case <-ch.Done():
			s.dropped(ch, ch.Err())
		}
	}
}

// beginAttempt invalidates pushes from earlier channels and moves to
// Connecting. It returns the generation for the new attempt.
func (s *Supervisor) beginAttempt() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.pending = nil
	s.lastAttempt = s.opts.Now()
	s.transitionLocked(StateConnecting, nil)
	return s.generation
}

func (s *Supervisor) attemptFailed(attempt int, delay time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt == 0 {
		s.episodeStart = s.opts.Now()
	}
	s.attempts = attempt + 1
	s.nextDelay = delay
	s.lastErr = err
	s.generation++
	s.pending = nil
	s.transitionLocked(StateDisconnected, err)

	s.logger.Debug("receiver connect failed",
		"device_id", s.opts.DeviceID,
		"attempt", attempt+1,
		"retry_in", delay,
		"error", err,
	)
}

// connected records the live channel and flushes any held push. It
// reports false if the loop was stopped while Open was returning.
func (s *Supervisor) connected(ctx context.Context, ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}

	wasUnreachable := s.unreachable
	s.channel = ch
	s.attempts = 0
	s.nextDelay = 0
	s.unreachable = false
	s.lastErr = nil
	s.connectedSince = s.opts.Now()
	s.transitionLocked(StateConnected, nil)

	if pending := s.pending; pending != nil {
		s.pending = nil
		s.applyLocked(*pending)
	}

	s.logger.Info("receiver connected",
		"device_id", s.opts.DeviceID,
		"address", s.opts.Address,
		"recovered", wasUnreachable,
	)
	return true
}

func (s *Supervisor) dropped(ch Channel, cause error) {
	s.mu.Lock()
	s.channel = nil
	s.generation++
	s.pending = nil
	s.connectedSince = time.Time{}
	if cause != nil {
		s.lastErr = cause
	}
	s.transitionLocked(StateDisconnected, cause)
	s.mu.Unlock()

	if err := ch.Close(); err != nil {
		s.logger.Debug("closing receiver channel", "device_id", s.opts.DeviceID, "error", err)
	}
	if cause != nil {
		s.logger.Warn("receiver connection dropped", "device_id", s.opts.DeviceID, "error", cause)
	}
}

// exit settles the state when the loop stops for any reason but a fault.
func (s *Supervisor) exit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.pending = nil
	s.channel = nil
	if s.state != StateDisconnected {
		s.transitionLocked(StateDisconnected, nil)
	}
	s.logger.Info("receiver supervisor stopped", "device_id", s.opts.DeviceID)
}

func (s *Supervisor) fault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.pending = nil
	s.lastErr = err
	s.transitionLocked(StateFaulted, err)
	s.opts.Events.Publish(events.Event{
		Type:     events.TypeFaulted,
		DeviceID: s.opts.DeviceID,
		State:    string(StateFaulted),
		Error:    err.Error(),
	})

	s.logger.Error("receiver faulted, not retrying",
		"device_id", s.opts.DeviceID,
		"address", s.opts.Address,
		"error", err,
	)
}

// reportUnreachable emits the once-per-episode diagnostic. The sink runs
// in the background so it cannot hold up the next attempt; Stop cancels it.
func (s *Supervisor) reportUnreachable(ctx context.Context, attempts int, err error) {
	s.mu.Lock()
	s.unreachable = true
	notice := Notice{
		DeviceID:   s.opts.DeviceID,
		DeviceName: s.opts.Name,
		Address:    s.opts.Address,
		Attempts:   attempts,
		LastError:  err.Error(),
		Since:      s.episodeStart,
	}
	s.opts.Events.Publish(events.Event{
		Type:     events.TypeUnreachable,
		DeviceID: s.opts.DeviceID,
		State:    string(s.state),
		Attempts: attempts,
		Error:    err.Error(),
	})
	s.mu.Unlock()

	s.logger.Warn("receiver unreachable after many attempts",
		"device_id", s.opts.DeviceID,
		"address", s.opts.Address,
		"attempts", attempts,
		"error", err,
	)

	if s.opts.Sink == nil {
		return
	}
	s.sinks.Add(1)
	go func() {
		defer s.sinks.Done()
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		defer cancel()
		if err := s.opts.Sink.NotifyUnreachable(sinkCtx, notice); err != nil {
			s.logger.Warn("unreachable notification failed",
				"device_id", s.opts.DeviceID,
				"error", fmt.Errorf("%w: %w", ErrSinkUnavailable, err),
			)
		}
	}()
}

// pushHandler returns the PushFunc for one attempt. Pushes are dropped
// once the attempt is superseded and held until Connected.
func (s *Supervisor) pushHandler(gen uint64) PushFunc {
	return func(st status.ReceiverStatus) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if gen != s.generation {
			s.logger.Debug("dropping status push from stale channel", "device_id", s.opts.DeviceID)
			return
		}
		if st.ReceivedAt.IsZero() {
			st.ReceivedAt = s.opts.Now()
		}
		if s.state != StateConnected {
			held := st.Clone()
			s.pending = &held
			return
		}
		s.applyLocked(st)
	}
}

func (s *Supervisor) applyLocked(st status.ReceiverStatus) {
	s.writer.Set(st)
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(s.opts.DeviceID, st.Clone())
	}
	s.opts.Events.Publish(events.Event{
		Type:     events.TypeStatus,
		DeviceID: s.opts.DeviceID,
	})
}

func (s *Supervisor) transitionLocked(next State, cause error) {
	s.state = next
	ev := events.Event{
		Type:     events.TypeConnectivity,
		DeviceID: s.opts.DeviceID,
		State:    string(next),
		Attempts: s.attempts,
	}
	if next == StateDisconnected {
		ev.RetryIn = s.nextDelay
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	s.opts.Events.Publish(ev)
}
