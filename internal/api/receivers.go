package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/nerrad567/castlogic-core/internal/receiver"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

// receiverView is a registered receiver with its connection summary.
type receiverView struct {
	receiver.Device
	State       supervisor.State  `json:"state"`
	StatusKnown bool              `json:"status_known"`
	Connection  *supervisor.Stats `json:"connection,omitempty"`
}

func (s *Server) viewOf(d receiver.Device, stats map[string]supervisor.Stats, detailed bool) receiverView {
	v := receiverView{Device: d, State: supervisor.StateDisconnected}
	if st, ok := stats[d.ID]; ok {
		v.State = st.State
		if detailed {
			v.Connection = &st
		}
	}
	_, v.StatusKnown = s.receivers.GetStatus(d.ID)
	return v
}

func (s *Server) statsByID() map[string]supervisor.Stats {
	return lo.KeyBy(s.receivers.Stats(), func(st supervisor.Stats) string { return st.DeviceID })
}

// handleListReceivers returns every registered receiver.
func (s *Server) handleListReceivers(w http.ResponseWriter, _ *http.Request) {
	stats := s.statsByID()
	views := lo.Map(s.receivers.List(), func(d receiver.Device, _ int) receiverView {
		return s.viewOf(d, stats, false)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"receivers": views,
		"count":     len(views),
	})
}

// handleGetReceiver returns one receiver with its connection stats.
func (s *Server) handleGetReceiver(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupReceiver(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(d, s.statsByID(), true))
}

// handleGetReceiverStatus returns the last status the receiver pushed.
func (s *Server) handleGetReceiverStatus(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupReceiver(w, r)
	if !ok {
		return
	}
	st, known := s.receivers.GetStatus(d.ID)
	if !known {
		writeNotFound(w, "receiver has not reported a status yet")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// lookupReceiver resolves the {id} URL parameter, writing a 404 if the
// receiver is not registered.
func (s *Server) lookupReceiver(w http.ResponseWriter, r *http.Request) (receiver.Device, bool) {
	id := chi.URLParam(r, "id")
	d, err := s.receivers.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, receiver.ErrDeviceNotFound) {
			writeNotFound(w, "receiver not found")
			return receiver.Device{}, false
		}
		s.logger.Error("receiver lookup failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to load receiver")
		return receiver.Device{}, false
	}
	return d, true
}
