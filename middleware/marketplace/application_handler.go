package marketplace

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request, actor Actor) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/marketplace/applications"), "/")
	parts := strings.Split(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		apps, err := s.ledger.ListApplications(r.Context(), marketplace.ApplicationFilter{
			TaskID:  r.URL.Query().Get("task_id"),
			AgentID: r.URL.Query().Get("agent_id"),
			Status:  marketplace.ApplicationStatus(r.URL.Query().Get("status")),
		})
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, map[string]interface{}{
			"applications": apps,
			"total_count":  len(apps),
		})
		return
	}

	applicationID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		app, err := s.ledger.GetApplication(r.Context(), applicationID)
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, app)
		return
	}

	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch parts[1] {
	case "accept":
		app, err := s.allocator.Accept(r.Context(), applicationID, actor.ID)
		if err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("application_accepted", applicationID, actor.ID, "worker slot granted"))
		JSON(w, http.StatusOK, app)
	case "withdraw":
		if err := s.allocator.Withdraw(r.Context(), applicationID, actor.ID); err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("application_withdrawn", applicationID, actor.ID, "application withdrawn"))
		JSON(w, http.StatusOK, map[string]bool{"withdrawn": true})
	case "release":
		if err := s.allocator.Release(r.Context(), applicationID, actor.ID); err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("worker_released", applicationID, actor.ID, "worker released after rejection"))
		JSON(w, http.StatusOK, map[string]bool{"released": true})
	case "submission":
		var body struct {
			Content map[string]any `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		sub, err := s.review.SubmitWork(r.Context(), applicationID, actor.ID, body.Content)
		if err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("submission", sub.SubmissionID, actor.ID, "work submitted"))
		JSON(w, http.StatusCreated, sub)
	default:
		Error(w, http.StatusNotFound, "unknown application action")
	}
}
