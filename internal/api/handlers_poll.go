package api

import (
	"net/http"
	"strings"
	"time"

	apperrors "github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/job"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// pollEndpointInfo is returned on unauthenticated GET probes so schedulers
// and humans can discover the trigger without running it.
type pollEndpointInfo struct {
	Endpoint      string `json:"endpoint"`
	Method        string `json:"method"`
	Description   string `json:"description"`
	Authenticated bool   `json:"authenticated"`
}

// authorizePoll implements the trigger handshake: no Authorization header
// returns endpoint metadata with a 200, a wrong token returns 401, and a
// matching bearer token lets the job run. Returns true when the caller may
// proceed.
func (s *Server) authorizePoll(w http.ResponseWriter, r *http.Request, description string) bool {
	if s.config.PollBearerSecret == "" {
		respondError(w, http.StatusForbidden, "POLL_DISABLED", "Poll triggers are not configured on this instance", nil)
		return false
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		respondJSON(w, http.StatusOK, pollEndpointInfo{
			Endpoint:      r.URL.Path,
			Method:        "POST",
			Description:   description,
			Authenticated: false,
		})
		return false
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token != s.config.PollBearerSecret {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid bearer token", nil)
		return false
	}

	return true
}

// pollFailureResponse carries the error alongside whatever the cycle
// measured before it died, so callers still see stage timings on failures.
type pollFailureResponse struct {
	Success   bool               `json:"success"`
	Timestamp time.Time          `json:"timestamp"`
	Error     types.ServiceError `json:"error"`
	Timings   job.Timings        `json:"timings,omitempty"`
}

func respondPollFailure(w http.ResponseWriter, err error, timestamp time.Time, timings job.Timings) {
	catErr := apperrors.Categorize(err)
	respondJSON(w, catErr.StatusCode, pollFailureResponse{
		Success:   false,
		Timestamp: timestamp,
		Error:     *catErr.ToServiceError(),
		Timings:   timings,
	})
}

// handlePollBlocks triggers one block poll cycle synchronously.
func (s *Server) handlePollBlocks(w http.ResponseWriter, r *http.Request) {
	if !s.authorizePoll(w, r, "Fetch finalized blocks since the last cursor and update production counters") {
		return
	}

	result, err := s.blockJob.Run(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Block poll failed")
		if result != nil {
			respondPollFailure(w, err, result.Timestamp, result.Timings)
		} else {
			respondCategorized(w, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handlePollNodes triggers one node poll cycle synchronously.
func (s *Server) handlePollNodes(w http.ResponseWriter, r *http.Request) {
	if !s.authorizePoll(w, r, "Diff the dashboard node summary against tracked state and refresh validator visibility") {
		return
	}

	result, err := s.nodeJob.Run(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Node poll failed")
		if result != nil {
			respondPollFailure(w, err, result.Timestamp, result.Timings)
		} else {
			respondCategorized(w, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handlePollValidators triggers one validator registry refresh synchronously.
func (s *Server) handlePollValidators(w http.ResponseWriter, r *http.Request) {
	if !s.authorizePoll(w, r, "Refresh the on-chain validator registry and reconcile reporting linkage") {
		return
	}

	result, err := s.validatorJob.Run(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Validator poll failed")
		if result != nil {
			respondPollFailure(w, err, result.Timestamp, result.Timings)
		} else {
			respondCategorized(w, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}
