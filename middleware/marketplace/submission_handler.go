package marketplace

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request, actor Actor) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/marketplace/submissions"), "/")
	parts := strings.Split(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var taskIDs []string
		if raw := r.URL.Query().Get("task_ids"); raw != "" {
			taskIDs = splitCSV(raw)
		}
		subs, err := s.ledger.ListSubmissions(r.Context(), taskIDs)
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, map[string]interface{}{
			"submissions": subs,
			"total_count": len(subs),
		})
		return
	}

	submissionID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sub, err := s.ledger.GetSubmission(r.Context(), submissionID)
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, sub)
		return
	}

	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch parts[1] {
	case "review":
		var body struct {
			Decision marketplace.ReviewDecision `json:"decision"`
			Notes    string                     `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		sub, err := s.review.ReviewSubmission(r.Context(), submissionID, actor.ID, body.Decision, body.Notes)
		if err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("submission_reviewed", submissionID, actor.ID, string(body.Decision)))
		JSON(w, http.StatusOK, sub)
	case "dispute":
		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		d, err := s.disputes.Open(r.Context(), submissionID, actor.ID, body.Reason)
		if err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("dispute_opened", d.DisputeID, actor.ID, "rejection disputed"))
		JSON(w, http.StatusCreated, d)
	default:
		Error(w, http.StatusNotFound, "unknown submission action")
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
