package status

import (
	"slices"
	"time"

	"github.com/nerrad567/castlogic-core/internal/queue"
)

// Media playback states reported by receivers.
const (
	MediaIdle      = "IDLE"
	MediaBuffering = "BUFFERING"
	MediaPlaying   = "PLAYING"
	MediaPaused    = "PAUSED"
)

// MediaInfo describes the media loaded on a receiver.
type MediaInfo struct {
	ItemID      string        `json:"item_id"`
	Title       string        `json:"title"`
	Subtitle    string        `json:"subtitle,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// ReceiverStatus is a snapshot of one receiver as last reported by it.
type ReceiverStatus struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Address          string            `json:"address"`
	MediaInitialized bool              `json:"media_initialized"`
	Stopped          bool              `json:"stopped"`
	Volume           float64           `json:"volume"`
	Muted            bool              `json:"muted"`
	MediaStatus      string            `json:"media_status,omitempty"`
	Media            *MediaInfo        `json:"media,omitempty"`
	CurrentRuntime   time.Duration     `json:"current_runtime"`
	Queue            []queue.QueueItem `json:"queue"`

	// ReceivedAt is stamped by the hub when the push arrives.
	ReceivedAt time.Time `json:"received_at"`
}

// Clone returns a deep copy of s.
func (s ReceiverStatus) Clone() ReceiverStatus {
	out := s
	if s.Media != nil {
		m := *s.Media
		out.Media = &m
	}
	out.Queue = slices.Clone(s.Queue)
	return out
}

// ClampVolume forces Volume into [0, 1].
func (s *ReceiverStatus) ClampVolume() {
	s.Volume = min(max(s.Volume, 0), 1)
}

// Playing returns the queue item flagged as playing, if any.
func (s ReceiverStatus) Playing() (queue.QueueItem, bool) {
	for _, it := range s.Queue {
		if it.IsPlaying {
			return it, true
		}
	}
	return queue.QueueItem{}, false
}
