package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/castlogic-core/internal/auth"
)

// tokenRequest is the request body for POST /auth/token.
type tokenRequest struct {
	APIKey string `json:"api_key"`
}

// tokenResponse is the response body for POST /auth/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleIssueToken exchanges an API key for a short-lived JWT. The key may
// be sent in the body or in the X-API-Key header.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(auth.HeaderAPIKey)
	if key == "" {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		key = req.APIKey
	}
	if key == "" {
		writeBadRequest(w, "api_key is required")
		return
	}

	token, ttl, err := s.gate.IssueToken(key)
	if err != nil {
		if errors.Is(err, auth.ErrKeyInvalid) {
			writeUnauthorized(w, "invalid API key")
			return
		}
		s.logger.Error("token issue failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}
