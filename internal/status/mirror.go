package status

import (
	"fmt"
	"sort"
	"sync"
)

// Mirror holds the latest ReceiverStatus per receiver.
//
// Thread Safety:
//   - Get and Devices take a read lock and return copies.
//   - Writes replace the stored snapshot under the write lock.
type Mirror struct {
	mu       sync.RWMutex
	statuses map[string]ReceiverStatus
	writers  map[string]*Writer
}

// NewMirror creates an empty mirror. Every receiver starts Unknown.
func NewMirror() *Mirror {
	return &Mirror{
		statuses: make(map[string]ReceiverStatus),
		writers:  make(map[string]*Writer),
	}
}

// Get returns the receiver's last status. The boolean is false while the
// status is Unknown (no push has been accepted yet).
func (m *Mirror) Get(deviceID string) (ReceiverStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.statuses[deviceID]
	if !ok {
		return ReceiverStatus{}, false
	}
	return s.Clone(), true
}

// Devices returns the IDs of receivers with a known status, sorted.
func (m *Mirror) Devices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.statuses))
	for id := range m.statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Claim returns the only Writer for deviceID. It fails with
// ErrWriterClaimed until the current writer is released.
func (m *Mirror) Claim(deviceID string) (*Writer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.writers[deviceID]; taken {
		return nil, fmt.Errorf("%w: %s", ErrWriterClaimed, deviceID)
	}
	w := &Writer{mirror: m, deviceID: deviceID}
	m.writers[deviceID] = w
	return w, nil
}

// Writer replaces one receiver's status in a Mirror.
type Writer struct {
	mirror   *Mirror
	deviceID string
}

// DeviceID returns the receiver this writer owns.
func (w *Writer) DeviceID() string {
	return w.deviceID
}

// Set stores a copy of s as the receiver's status. Calls after Release
// are ignored.
func (w *Writer) Set(s ReceiverStatus) {
	snapshot := s.Clone()

	m := w.mirror
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writers[w.deviceID] != w {
		return
	}
	m.statuses[w.deviceID] = snapshot
}

// Release gives up the claim. The last status stays readable.
func (w *Writer) Release() {
	m := w.mirror
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writers[w.deviceID] == w {
		delete(m.writers, w.deviceID)
	}
}
