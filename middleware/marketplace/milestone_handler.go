package marketplace

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func (s *Server) handleMilestones(w http.ResponseWriter, r *http.Request, actor Actor) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/marketplace/milestones"), "/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		Error(w, http.StatusBadRequest, "milestone id required")
		return
	}
	milestoneID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		ms, err := s.ledger.GetMilestone(r.Context(), milestoneID)
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, ms)
		return
	}

	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch parts[1] {
	case "submit":
		var body struct {
			Deliverable string `json:"deliverable"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		ms, err := s.review.SubmitMilestone(r.Context(), milestoneID, actor.ID, body.Deliverable)
		if err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("milestone_submitted", milestoneID, actor.ID, "milestone sent for review"))
		JSON(w, http.StatusOK, ms)
	case "review":
		var body struct {
			Decision marketplace.ReviewDecision `json:"decision"`
			Notes    string                     `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		ms, err := s.review.ReviewMilestone(r.Context(), milestoneID, actor.ID, body.Decision, body.Notes)
		if err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("milestone_reviewed", milestoneID, actor.ID, string(body.Decision)))
		JSON(w, http.StatusOK, ms)
	default:
		Error(w, http.StatusNotFound, "unknown milestone action")
	}
}
