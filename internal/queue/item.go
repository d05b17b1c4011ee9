package queue

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"
)

// QueueItem is one entry in a receiver's playback queue.
//
// OrderID is the item's position and changes as the queue is reordered.
// ItemID is the stable identity of the media and never changes.
type QueueItem struct {
	OrderID   int           `json:"order_id"`
	ItemID    string        `json:"item_id"`
	Title     string        `json:"title"`
	Subtitle  string        `json:"subtitle,omitempty"`
	IsPlaying bool          `json:"is_playing"`
	Runtime   time.Duration `json:"runtime"`

	// Ordering attributes used by OrderBy.
	Played   bool      `json:"played,omitempty"`
	Progress float64   `json:"progress,omitempty"`
	AddedAt  time.Time `json:"added_at,omitzero"`
}

// Sortable is implemented by anything the ordering strategies can rank.
type Sortable interface {
	IsPlayed() bool
	PlayedRatio() float64
	Timestamp() time.Time
	Duration() time.Duration
}

func (q QueueItem) IsPlayed() bool          { return q.Played }
func (q QueueItem) PlayedRatio() float64    { return q.Progress }
func (q QueueItem) Timestamp() time.Time    { return q.AddedAt }
func (q QueueItem) Duration() time.Duration { return q.Runtime }

// Equal reports whether two items hold the same values in every field.
func (q QueueItem) Equal(other QueueItem) bool {
	return q.OrderID == other.OrderID &&
		q.ItemID == other.ItemID &&
		q.Title == other.Title &&
		q.Subtitle == other.Subtitle &&
		q.IsPlaying == other.IsPlaying &&
		q.Runtime == other.Runtime &&
		q.Played == other.Played &&
		q.Progress == other.Progress &&
		q.AddedAt.Equal(other.AddedAt)
}

// Hash returns a structural hash consistent with Equal.
func (q QueueItem) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte

	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:]) //nolint:errcheck // hash writes never fail
	}
	writeString := func(s string) {
		writeInt(int64(len(s)))
		h.Write([]byte(s)) //nolint:errcheck // hash writes never fail
	}
	writeBool := func(b bool) {
		if b {
			writeInt(1)
		} else {
			writeInt(0)
		}
	}

	writeInt(int64(q.OrderID))
	writeString(q.ItemID)
	writeString(q.Title)
	writeString(q.Subtitle)
	writeBool(q.IsPlaying)
	writeInt(int64(q.Runtime))
	writeBool(q.Played)
	progress := q.Progress
	if progress == 0 {
		progress = 0 // fold -0 into +0 so equal items hash equally
	}
	writeInt(int64(math.Float64bits(progress)))
	if q.AddedAt.IsZero() {
		writeInt(0)
	} else {
		writeInt(q.AddedAt.UnixNano())
	}
	return h.Sum64()
}

// renumber rewrites OrderID to match each item's position.
func renumber(items []QueueItem) {
	for i := range items {
		items[i].OrderID = i
	}
}

// Clone returns a copy of items.
func Clone(items []QueueItem) []QueueItem {
	if items == nil {
		return nil
	}
	out := make([]QueueItem, len(items))
	copy(out, items)
	return out
}
