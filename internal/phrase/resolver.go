package phrase

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nerrad567/castlogic-core/internal/queue"
	"github.com/nerrad567/castlogic-core/internal/receiver"
)

// Logger defines the logging interface used by the Resolver.
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

// Devices looks receivers up by name.
type Devices interface {
	FindByName(name string) []receiver.Device
}

// DefaultSource is used when neither the phrase nor the resolver name one.
const DefaultSource = "library"

// Option configures a Resolver.
type Option func(*Resolver)

// WithRand sets the random source used by the shuffle order.
func WithRand(rng *rand.Rand) Option {
	return func(r *Resolver) {
		if rng != nil {
			r.rng = rng
		}
	}
}

// WithDefaultSource sets the source used when a phrase names none.
func WithDefaultSource(source string) Option {
	return func(r *Resolver) {
		if s := strings.ToLower(strings.TrimSpace(source)); s != "" {
			r.defaultSource = s
		}
	}
}

// WithClock overrides time.Now for plan timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// Resolver turns phrases into plans.
type Resolver struct {
	devices       Devices
	defaultSource string
	now           func() time.Time
	logger        Logger

	mu       sync.RWMutex
	catalogs map[string]Catalog

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewResolver creates a resolver that finds receivers through devices.
func NewResolver(devices Devices, opts ...Option) *Resolver {
	r := &Resolver{
		devices:       devices,
		defaultSource: DefaultSource,
		now:           time.Now,
		logger:        noopLogger{},
		catalogs:      make(map[string]Catalog),
		rng:           rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register makes c available under the given source name.
func (r *Resolver) Register(source string, c Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalogs[strings.ToLower(strings.TrimSpace(source))] = c
}

// Sources lists the registered source names.
func (r *Resolver) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.catalogs))
}

// Resolve builds a playback plan for p.
func (r *Resolver) Resolve(ctx context.Context, p LanguagePhrase) (*Plan, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	device, err := r.resolveDevice(p.DeviceName)
	if err != nil {
		return nil, err
	}

	source := p.Source
	if source == "" {
		source = r.defaultSource
	}
	r.mu.RLock()
	catalog, ok := r.catalogs[source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	found, err := catalog.Query(ctx, Query{Term: p.SearchTerm, MediaType: p.MediaType})
	if err != nil {
		return nil, fmt.Errorf("querying %s catalog: %w", source, err)
	}

	matched := lo.Filter(found, func(it CatalogItem, _ int) bool {
		return matchesTerm(it, p.SearchTerm) &&
			matchesPath(it.Path, p.PathTerm) &&
			(p.MediaType == "" || strings.EqualFold(it.MediaType, p.MediaType))
	})

	r.rngMu.Lock()
	ordered, err := queue.Order(matched, p.Order, r.rng)
	r.rngMu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, fmt.Errorf("%w: %q on %s", ErrNotFound, p.SearchTerm, source)
	}

	plan := &Plan{
		ID:          uuid.NewString(),
		Device:      device,
		Items:       lo.Map(ordered, func(it CatalogItem, i int) queue.QueueItem { return it.QueueItem(i) }),
		Method:      p.Method,
		Order:       p.Order,
		Source:      source,
		RequestedBy: p.RequestedBy,
		CreatedAt:   r.now().UTC(),
	}

	r.logger.Debug("phrase resolved",
		"plan_id", plan.ID,
		"device_id", device.ID,
		"source", source,
		"order", p.Order,
		"method", p.Method,
		"items", len(plan.Items),
	)
	return plan, nil
}

func (r *Resolver) resolveDevice(name string) (receiver.Device, error) {
	matches := r.devices.FindByName(name)
	if len(matches) != 1 {
		return receiver.Device{}, fmt.Errorf("%w: %d receivers named %q", ErrAmbiguousDevice, len(matches), name)
	}
	return matches[0], nil
}

// matchesTerm reports whether term appears in the title, the subtitle or
// any path segment, ignoring case. An empty term matches everything.
func matchesTerm(it CatalogItem, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(it.Title), term) ||
		strings.Contains(strings.ToLower(it.Subtitle), term) {
		return true
	}
	return slices.ContainsFunc(splitPath(it.Path), func(seg string) bool {
		return strings.Contains(seg, term)
	})
}

// matchesPath reports whether every segment of pathTerm matches a segment
// of itemPath, in order. Segments compare case-insensitively by substring.
func matchesPath(itemPath, pathTerm string) bool {
	want := splitPath(pathTerm)
	if len(want) == 0 {
		return true
	}
	have := splitPath(itemPath)

	i := 0
	for _, seg := range have {
		if strings.Contains(seg, want[i]) {
			i++
			if i == len(want) {
				return true
			}
		}
	}
	return false
}

func splitPath(p string) []string {
	return lo.FilterMap(strings.Split(p, "/"), func(seg string, _ int) (string, bool) {
		seg = strings.ToLower(strings.TrimSpace(seg))
		return seg, seg != ""
	})
}
