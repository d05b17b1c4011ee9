package queue

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Engine owns the playback queue of every receiver.
//
// Thread Safety:
//   - Operations on one receiver hold that receiver's mutex.
//   - Operations on different receivers run in parallel.
//   - Returned slices are copies; callers may modify them freely.
type Engine struct {
	mu     sync.Mutex // guards queues map
	queues map[string]*deviceQueue

	rngMu sync.Mutex // *rand.Rand is not safe for concurrent use
	rng   *rand.Rand
}

type deviceQueue struct {
	mu    sync.Mutex
	items []QueueItem
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used by Shuffle and OrderBy(Shuffle).
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// NewEngine creates an empty queue engine. Without WithRand it seeds a
// PCG source from the runtime's random generator.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{queues: make(map[string]*deviceQueue)}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // not security sensitive
	}
	return e
}

func (e *Engine) queue(deviceID string) *deviceQueue {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.queues[deviceID]
	if !ok {
		q = &deviceQueue{}
		e.queues[deviceID] = q
	}
	return q
}

// Items returns a copy of the receiver's queue.
func (e *Engine) Items(deviceID string) []QueueItem {
	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return Clone(q.items)
}

// Len returns the number of items queued for the receiver.
func (e *Engine) Len(deviceID string) int {
	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Replace swaps the whole queue for items, renumbered from 0.
func (e *Engine) Replace(deviceID string, items []QueueItem) []QueueItem {
	next := Clone(items)
	renumber(next)

	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = next
	return Clone(next)
}

// Append adds items to the end of the queue.
func (e *Engine) Append(deviceID string, items ...QueueItem) []QueueItem {
	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]QueueItem, 0, len(q.items)+len(items))
	next = append(next, q.items...)
	next = append(next, items...)
	renumber(next)
	q.items = next
	return Clone(next)
}

// InsertNext places items directly after the playing item, or at the
// front when nothing is playing.
func (e *Engine) InsertNext(deviceID string, items ...QueueItem) []QueueItem {
	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()

	at := 0
	for i, it := range q.items {
		if it.IsPlaying {
			at = i + 1
			break
		}
	}

	next := make([]QueueItem, 0, len(q.items)+len(items))
	next = append(next, q.items[:at]...)
	next = append(next, items...)
	next = append(next, q.items[at:]...)
	renumber(next)
	q.items = next
	return Clone(next)
}

// Clear empties the queue.
func (e *Engine) Clear(deviceID string) {
	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// MoveUp swaps the item at index i with the one before it.
func (e *Engine) MoveUp(deviceID string, i int) ([]QueueItem, error) {
	return e.swap(deviceID, i, i-1)
}

// MoveDown swaps the item at index i with the one after it.
func (e *Engine) MoveDown(deviceID string, i int) ([]QueueItem, error) {
	return e.swap(deviceID, i, i+1)
}

func (e *Engine) swap(deviceID string, i, j int) ([]QueueItem, error) {
	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if i < 0 || i >= n || j < 0 || j >= n {
		return nil, fmt.Errorf("%w: index %d in queue of %d", ErrIndexOutOfRange, i, n)
	}

	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].OrderID = i
	q.items[j].OrderID = j
	return Clone(q.items), nil
}

// DrainN removes up to k items from the front and returns them in their
// original order, together with the queue left behind. A shorter queue
// yields fewer items; k <= 0 yields none. The remaining items are
// renumbered from 0.
func (e *Engine) DrainN(deviceID string, k int) (drained, remaining []QueueItem) {
	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()

	k = max(0, min(k, len(q.items)))
	drained = Clone(q.items[:k])

	rest := Clone(q.items[k:])
	renumber(rest)
	q.items = rest
	return drained, Clone(rest)
}

// Shuffle replaces the queue with a uniformly random permutation of itself.
func (e *Engine) Shuffle(deviceID string) []QueueItem {
	items, _ := e.OrderBy(deviceID, Shuffle) //nolint:errcheck // Shuffle is always in the table
	return items
}

// OrderBy replaces the queue with the result of strategy ot. Filtering
// strategies (Played, Unplayed, Watch) drop the items they exclude.
func (e *Engine) OrderBy(deviceID string, ot OrderType) ([]QueueItem, error) {
	if !ot.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrder, ot)
	}

	q := e.queue(deviceID)
	q.mu.Lock()
	defer q.mu.Unlock()

	e.rngMu.Lock()
	next, err := Order(q.items, ot, e.rng)
	e.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	renumber(next)
	q.items = next
	return Clone(next), nil
}

// Devices returns the IDs of receivers with a queue (possibly empty).
func (e *Engine) Devices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.queues))
	for id := range e.queues {
		ids = append(ids, id)
	}
	return ids
}
