package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/castlogic-core/internal/auth"
	"github.com/nerrad567/castlogic-core/internal/phrase"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

// playResponse is the body returned by POST /phrases/play.
type playResponse struct {
	Plan *phrase.Plan `json:"plan"`
	queueResponse
}

// handleListSources returns the registered catalog sources.
func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.planner.Sources()})
}

// handleResolvePhrase resolves a phrase into a plan without touching any queue.
func (s *Server) handleResolvePhrase(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handlePlayPhrase resolves a phrase, applies the plan to the receiver's
// queue by its method and sends the resulting queue to the receiver.
func (s *Server) handlePlayPhrase(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.resolve(w, r)
	if !ok {
		return
	}

	items := nonNil(plan.Apply(s.queues))
	resp := playResponse{
		Plan:          plan,
		queueResponse: queueResponse{DeviceID: plan.Device.ID, Items: items},
	}

	synced, err := s.syncQueue(r.Context(), plan.Device.ID, supervisor.QueueLoad{
		PlanID: plan.ID,
		Method: string(plan.Method),
		Items:  items,
	})
	resp.Synced = &synced
	if err != nil {
		resp.SyncError = err.Error()
	}

	s.logger.Info("phrase played",
		"plan_id", plan.ID,
		"device_id", plan.Device.ID,
		"method", plan.Method,
		"items", len(plan.Items),
		"synced", synced,
	)
	writeJSON(w, http.StatusOK, resp)
}

// resolve decodes the phrase body and runs the planner, writing the error
// response on failure.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (*phrase.Plan, bool) {
	var p phrase.LanguagePhrase
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return nil, false
	}
	if p.RequestedBy == "" {
		if caller, ok := auth.CallerFrom(r.Context()); ok {
			p.RequestedBy = caller.ID
		}
	}

	plan, err := s.planner.Resolve(r.Context(), p)
	if err != nil {
		s.writePhraseError(w, err)
		return nil, false
	}
	return plan, true
}

func (s *Server) writePhraseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, phrase.ErrInvalidPhrase), errors.Is(err, phrase.ErrUnknownSource):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, phrase.ErrAmbiguousDevice):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, phrase.ErrNotFound):
		writeNotFound(w, err.Error())
	default:
		s.logger.Error("phrase resolution failed", "error", err)
		writeInternalError(w, "failed to resolve phrase")
	}
}
