package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/castlogic-core/internal/queue"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

// queueResponse is the body returned by queue reads and edits.
type queueResponse struct {
	DeviceID  string            `json:"device_id"`
	Items     []queue.QueueItem `json:"items"`
	Drained   []queue.QueueItem `json:"drained,omitempty"`
	Synced    *bool             `json:"synced,omitempty"`
	SyncError string            `json:"sync_error,omitempty"`
}

// moveRequest is the body of move-up and move-down.
type moveRequest struct {
	Index *int `json:"index"`
}

// drainRequest is the body of drain.
type drainRequest struct {
	Count int `json:"count"`
}

// orderRequest is the body of order.
type orderRequest struct {
	Order string `json:"order"`
}

// handleGetQueue returns the receiver's queue as held by the hub.
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupReceiver(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, queueResponse{
		DeviceID: d.ID,
		Items:    nonNil(s.queues.Items(d.ID)),
	})
}

func (s *Server) handleQueueMoveUp(w http.ResponseWriter, r *http.Request) {
	s.handleQueueMove(w, r, s.queues.MoveUp)
}

func (s *Server) handleQueueMoveDown(w http.ResponseWriter, r *http.Request) {
	s.handleQueueMove(w, r, s.queues.MoveDown)
}

func (s *Server) handleQueueMove(w http.ResponseWriter, r *http.Request, move func(string, int) ([]queue.QueueItem, error)) {
	d, ok := s.lookupReceiver(w, r)
	if !ok {
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "index is required")
		return
	}

	items, err := move(d.ID, *req.Index)
	if err != nil {
		if errors.Is(err, queue.ErrIndexOutOfRange) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		writeInternalError(w, "failed to move queue item")
		return
	}
	s.writeSyncedQueue(r.Context(), w, d.ID, items, nil)
}

// handleQueueDrain removes up to count items from the front of the queue.
func (s *Server) handleQueueDrain(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupReceiver(w, r)
	if !ok {
		return
	}

	var req drainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Count < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "count must not be negative")
		return
	}

	drained, remaining := s.queues.DrainN(d.ID, req.Count)
	s.writeSyncedQueue(r.Context(), w, d.ID, remaining, nonNil(drained))
}

// handleQueueShuffle randomly permutes the queue.
func (s *Server) handleQueueShuffle(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupReceiver(w, r)
	if !ok {
		return
	}
	s.writeSyncedQueue(r.Context(), w, d.ID, s.queues.Shuffle(d.ID), nil)
}

// handleQueueOrder reorders (or filters) the queue by a named strategy.
func (s *Server) handleQueueOrder(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupReceiver(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	ot, err := queue.ParseOrderType(req.Order)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	items, err := s.queues.OrderBy(d.ID, ot)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	s.writeSyncedQueue(r.Context(), w, d.ID, items, nil)
}

// writeSyncedQueue pushes items to the receiver and writes the queue
// response. The local edit stands even when the receiver is unreachable.
func (s *Server) writeSyncedQueue(ctx context.Context, w http.ResponseWriter, deviceID string, items, drained []queue.QueueItem) {
	resp := queueResponse{
		DeviceID: deviceID,
		Items:    nonNil(items),
		Drained:  drained,
	}
	synced, err := s.syncQueue(ctx, deviceID, supervisor.QueueLoad{Items: resp.Items})
	resp.Synced = &synced
	if err != nil {
		resp.SyncError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// syncQueue sends a queue.load command carrying load to the receiver.
func (s *Server) syncQueue(ctx context.Context, deviceID string, load supervisor.QueueLoad) (bool, error) {
	err := s.receivers.Send(ctx, deviceID, supervisor.Command{
		Type:    supervisor.CommandLoadQueue,
		Payload: load,
	})
	if err != nil {
		s.logger.Debug("queue sync failed", "device_id", deviceID, "error", err)
		return false, err
	}
	return true, nil
}

func nonNil(items []queue.QueueItem) []queue.QueueItem {
	if items == nil {
		return []queue.QueueItem{}
	}
	return items
}
