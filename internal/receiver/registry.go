package receiver

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/castlogic-core/internal/events"
	"github.com/nerrad567/castlogic-core/internal/queue"
	"github.com/nerrad567/castlogic-core/internal/status"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options wires the registry to the rest of the core.
type Options struct {
	Repository Repository
	Mirror     *status.Mirror
	Transport  supervisor.Transport

	// Queues adopts the queue snapshot of every status push. Optional.
	Queues *queue.Engine

	Events  events.Publisher
	Sink    supervisor.NotificationSink
	Backoff []time.Duration

	// Wait is handed to every supervisor. Tests use it to skip delays.
	Wait supervisor.WaitFunc
}

// Registry caches receivers and runs one supervisor per receiver.
//
// All public methods are thread-safe.
type Registry struct {
	opts   Options
	logger Logger

	cacheMu sync.RWMutex
	cache   map[string]Device

	supMu       sync.Mutex
	supervisors map[string]*supervisor.Supervisor
}

// NewRegistry creates a receiver registry.
func NewRegistry(opts Options) *Registry {
	if opts.Mirror == nil {
		opts.Mirror = status.NewMirror()
	}
	return &Registry{
		opts:   opts,
		logger: noopLogger{},
		cache:  make(map[string]Device),
	}
}

// SetLogger sets the logger for the registry and the supervisors it starts.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Mirror returns the status mirror the supervisors write to.
func (r *Registry) Mirror() *status.Mirror {
	return r.opts.Mirror
}

// RefreshCache reloads all receivers from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.opts.Repository.List(ctx)
	if err != nil {
		return fmt.Errorf("loading receivers: %w", err)
	}

	cache := make(map[string]Device, len(devices))
	for _, d := range devices {
		cache[d.ID] = d
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("receiver cache refreshed", "count", len(devices))
	return nil
}

// Seed stores the given receivers unless their IDs already exist.
// It returns the number of receivers written. Call RefreshCache afterwards.
func (r *Registry) Seed(ctx context.Context, devices []Device) (int, error) {
	created := 0
	for _, d := range devices {
		if d.Type == "" {
			d.Type = TypeSpeaker
		}
		if err := d.Validate(); err != nil {
			return created, fmt.Errorf("seeding receiver %q: %w", d.ID, err)
		}
		ok, err := r.opts.Repository.CreateIfNotExists(ctx, &d)
		if err != nil {
			return created, fmt.Errorf("seeding receiver %q: %w", d.ID, err)
		}
		if ok {
			created++
			r.logger.Info("receiver seeded", "device_id", d.ID, "name", d.Name)
		}
	}
	return created, nil
}

// Get returns a receiver by ID, falling back to the repository on a
// cache miss.
func (r *Registry) Get(ctx context.Context, id string) (Device, error) {
	r.cacheMu.RLock()
	d, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return d, nil
	}

	stored, err := r.opts.Repository.GetByID(ctx, id)
	if err != nil {
		return Device{}, err
	}

	r.cacheMu.Lock()
	r.cache[stored.ID] = *stored
	r.cacheMu.Unlock()

	return *stored, nil
}

// List returns all cached receivers ordered by name, then ID.
func (r *Registry) List() []Device {
	r.cacheMu.RLock()
	devices := lo.Values(r.cache)
	r.cacheMu.RUnlock()

	slices.SortFunc(devices, func(a, b Device) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return devices
}

// FindByName returns every receiver whose name matches, ignoring case and
// surrounding whitespace.
func (r *Registry) FindByName(name string) []Device {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return lo.Filter(r.List(), func(d Device, _ int) bool {
		return strings.EqualFold(strings.TrimSpace(d.Name), name)
	})
}

// Start creates and starts a supervisor for every cached receiver.
func (r *Registry) Start(ctx context.Context) error {
	r.supMu.Lock()
	defer r.supMu.Unlock()

	if r.supervisors != nil {
		return ErrRegistryRunning
	}

	devices := r.List()
	owners := make(map[string]string, len(devices))
	for _, d := range devices {
		if other, taken := owners[d.Address]; taken {
			return fmt.Errorf("receivers %q and %q: %w: %q", other, d.ID, ErrAddressInUse, d.Address)
		}
		owners[d.Address] = d.ID
	}

	sups := make(map[string]*supervisor.Supervisor, len(devices))
	for _, d := range devices {
		sup, err := supervisor.New(supervisor.Options{
			DeviceID:  d.ID,
			Name:      d.Name,
			Address:   d.Address,
			Transport: r.opts.Transport,
			Mirror:    r.opts.Mirror,
			Events:    r.opts.Events,
			Sink:      r.opts.Sink,
			Backoff:   r.opts.Backoff,
			Wait:      r.opts.Wait,
			OnStatus:  r.adoptQueue,
			Logger:    r.logger,
		})
		if err != nil {
			for _, created := range sups {
				created.Stop() //nolint:errcheck // unwinding, never started
			}
			return fmt.Errorf("supervising receiver %q: %w", d.ID, err)
		}
		sups[d.ID] = sup
	}

	for _, sup := range sups {
		if err := sup.Start(ctx); err != nil {
			return fmt.Errorf("starting supervisor for %q: %w", sup.DeviceID(), err)
		}
	}
	r.supervisors = sups

	r.logger.Info("receiver supervisors started", "count", len(sups))
	return nil
}

// Stop stops every supervisor in parallel and waits for them to exit.
func (r *Registry) Stop() error {
	r.supMu.Lock()
	sups := r.supervisors
	r.supervisors = nil
	r.supMu.Unlock()

	var g errgroup.Group
	for _, sup := range sups {
		g.Go(sup.Stop)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stopping supervisors: %w", err)
	}
	if len(sups) > 0 {
		r.logger.Info("receiver supervisors stopped", "count", len(sups))
	}
	return nil
}

// Supervisor returns the running supervisor for a receiver.
func (r *Registry) Supervisor(id string) (*supervisor.Supervisor, bool) {
	r.supMu.Lock()
	defer r.supMu.Unlock()
	sup, ok := r.supervisors[id]
	return sup, ok
}

// Stats returns a snapshot of every running supervisor ordered by ID.
func (r *Registry) Stats() []supervisor.Stats {
	r.supMu.Lock()
	ids := slices.Sorted(maps.Keys(r.supervisors))
	sups := lo.Map(ids, func(id string, _ int) *supervisor.Supervisor {
		return r.supervisors[id]
	})
	r.supMu.Unlock()

	return lo.Map(sups, func(s *supervisor.Supervisor, _ int) supervisor.Stats {
		return s.Snapshot()
	})
}

// GetStatus returns the last status the receiver pushed. The boolean is
// false while the status is unknown.
func (r *Registry) GetStatus(id string) (status.ReceiverStatus, bool) {
	return r.opts.Mirror.Get(id)
}

// Send delivers a command to a receiver over its live control channel.
func (r *Registry) Send(ctx context.Context, id string, cmd supervisor.Command) error {
	sup, ok := r.Supervisor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return sup.Send(ctx, cmd)
}

// adoptQueue mirrors the receiver's reported queue into the queue engine.
func (r *Registry) adoptQueue(deviceID string, s status.ReceiverStatus) {
	if r.opts.Queues == nil {
		return
	}
	r.opts.Queues.Replace(deviceID, s.Queue)
}
