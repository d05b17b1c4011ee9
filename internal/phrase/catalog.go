package phrase

import (
	"context"
	"time"

	"github.com/nerrad567/castlogic-core/internal/queue"
)

// Query narrows a catalog lookup. Catalogs may return a superset; the
// Resolver applies the exact matching rules itself.
type Query struct {
	Term      string
	MediaType string
	Limit     int // zero returns every match
}

// CatalogItem is one playable item offered by a catalog.
type CatalogItem struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Subtitle   string        `json:"subtitle,omitempty"`
	Path       string        `json:"path,omitempty"`
	MediaType  string        `json:"media_type,omitempty"`
	Runtime    time.Duration `json:"runtime"`
	AddedAt    time.Time     `json:"added_at"`
	ReleasedAt time.Time     `json:"released_at,omitzero"`
	Played     bool          `json:"played"`
	Progress   float64       `json:"progress"`
}

func (c CatalogItem) IsPlayed() bool          { return c.Played }
func (c CatalogItem) PlayedRatio() float64    { return c.Progress }
func (c CatalogItem) Duration() time.Duration { return c.Runtime }

// Timestamp is the release time when known, otherwise the time the item
// was added to the catalog.
func (c CatalogItem) Timestamp() time.Time {
	if !c.ReleasedAt.IsZero() {
		return c.ReleasedAt
	}
	return c.AddedAt
}

// QueueItem converts c into a queue entry at position order.
func (c CatalogItem) QueueItem(order int) queue.QueueItem {
	return queue.QueueItem{
		OrderID:  order,
		ItemID:   c.ID,
		Title:    c.Title,
		Subtitle: c.Subtitle,
		Runtime:  c.Runtime,
		Played:   c.Played,
		Progress: c.Progress,
		AddedAt:  c.Timestamp(),
	}
}

// Catalog is a source of playable items.
type Catalog interface {
	Query(ctx context.Context, q Query) ([]CatalogItem, error)
}

// CatalogFunc adapts a function to the Catalog interface.
type CatalogFunc func(ctx context.Context, q Query) ([]CatalogItem, error)

// Query calls f.
func (f CatalogFunc) Query(ctx context.Context, q Query) ([]CatalogItem, error) {
	return f(ctx, q)
}
