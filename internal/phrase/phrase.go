package phrase

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/castlogic-core/internal/queue"
	"github.com/nerrad567/castlogic-core/internal/receiver"
)

// PlaybackMethod says where a plan's items go in the receiver's queue.
type PlaybackMethod string

const (
	MethodNow  PlaybackMethod = "now"  // replace the queue and play
	MethodNext PlaybackMethod = "next" // insert after the playing item
	MethodLast PlaybackMethod = "last" // append
)

// ParsePlaybackMethod maps a case-insensitive name to a PlaybackMethod.
// An empty name means MethodNow.
func ParsePlaybackMethod(s string) (PlaybackMethod, error) {
	m := PlaybackMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return MethodNow, nil
	case MethodNow, MethodNext, MethodLast:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown playback method %q", ErrInvalidPhrase, s)
}

// LanguagePhrase is a structured playback request.
type LanguagePhrase struct {
	SearchTerm  string          `json:"search_term"`
	DeviceName  string          `json:"device"`
	RequestedBy string          `json:"requested_by,omitempty"`
	PathTerm    string          `json:"path_term,omitempty"`
	Order       queue.OrderType `json:"order,omitempty"`
	Method      PlaybackMethod  `json:"method,omitempty"`
	Source      string          `json:"source,omitempty"`
	MediaType   string          `json:"media_type,omitempty"`
}

// Normalize fills defaults and validates p.
func (p LanguagePhrase) Normalize() (LanguagePhrase, error) {
	if strings.TrimSpace(p.DeviceName) == "" {
		return p, fmt.Errorf("%w: device is required", ErrInvalidPhrase)
	}

	ot, err := queue.ParseOrderType(string(p.Order))
	if err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidPhrase, err)
	}
	p.Order = ot

	if p.Method, err = ParsePlaybackMethod(string(p.Method)); err != nil {
		return p, err
	}

	p.SearchTerm = strings.TrimSpace(p.SearchTerm)
	p.Source = strings.ToLower(strings.TrimSpace(p.Source))
	p.MediaType = strings.TrimSpace(p.MediaType)
	return p, nil
}

// Plan is the outcome of resolving a phrase.
type Plan struct {
	ID          string            `json:"id"`
	Device      receiver.Device   `json:"device"`
	Items       []queue.QueueItem `json:"items"`
	Method      PlaybackMethod    `json:"method"`
	Order       queue.OrderType   `json:"order"`
	Source      string            `json:"source"`
	RequestedBy string            `json:"requested_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Apply places the plan's items in the receiver's queue according to
// Method and returns the resulting queue.
func (p *Plan) Apply(q *queue.Engine) []queue.QueueItem {
	switch p.Method {
	case MethodNext:
		return q.InsertNext(p.Device.ID, p.Items...)
	case MethodLast:
		return q.Append(p.Device.ID, p.Items...)
	default:
		return q.Replace(p.Device.ID, p.Items)
	}
}
