package marketplace

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request, actor Actor) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/marketplace/disputes"), "/")
	parts := strings.Split(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		disputes, err := s.ledger.ListDisputes(r.Context(), marketplace.DisputeFilter{
			Status:  marketplace.DisputeStatus(r.URL.Query().Get("status")),
			AgentID: r.URL.Query().Get("agent_id"),
			TaskID:  r.URL.Query().Get("task_id"),
		})
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, map[string]interface{}{
			"disputes":    disputes,
			"total_count": len(disputes),
		})
		return
	}

	disputeID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		d, err := s.ledger.GetDispute(r.Context(), disputeID)
		if err != nil {
			Fail(w, err)
			return
		}
		votes, _ := s.ledger.ListJuryVotes(r.Context(), disputeID)
		JSON(w, http.StatusOK, map[string]interface{}{
			"dispute":    d,
			"jury_votes": votes,
		})
		return
	}

	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch parts[1] {
	case "resolve":
		var body struct {
			Decision marketplace.DisputeOutcome `json:"decision"`
			Notes    string                     `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		d, err := s.disputes.Resolve(r.Context(), disputeID, actor.ID, actor.Role, body.Decision, body.Notes)
		if err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("dispute_resolved", disputeID, actor.ID, string(body.Decision)))
		JSON(w, http.StatusOK, d)
	default:
		Error(w, http.StatusNotFound, "unknown dispute action")
	}
}
