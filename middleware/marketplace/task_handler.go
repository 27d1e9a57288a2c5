package marketplace

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request, actor Actor) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/marketplace/tasks"), "/")
	parts := strings.Split(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			s.listTasks(w, r)
		case http.MethodPost:
			s.createTask(w, r, actor)
		default:
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	taskID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			task, err := s.ledger.GetTask(r.Context(), taskID)
			if err != nil {
				Fail(w, err)
				return
			}
			JSON(w, http.StatusOK, task)
		case http.MethodPatch, http.MethodPut:
			s.updateTask(w, r, taskID, actor)
		case http.MethodDelete:
			if err := s.tasks.DeleteDraft(r.Context(), taskID, actor.ID); err != nil {
				Fail(w, err)
				return
			}
			JSON(w, http.StatusOK, map[string]bool{"deleted": true})
		default:
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch parts[1] {
	case "activate":
		s.activateTask(w, r, taskID, actor)
	case "cancel":
		s.cancelTask(w, r, taskID, actor)
	case "applications":
		s.taskApplications(w, r, taskID, actor)
	case "status":
		s.taskStatus(w, r, taskID)
	case "milestones":
		s.taskMilestones(w, r, taskID)
	case "funding-qr":
		s.taskFundingQR(w, r, taskID)
	default:
		Error(w, http.StatusNotFound, "unknown task action")
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	filter := marketplace.TaskFilter{
		Status:    marketplace.TaskStatus(r.URL.Query().Get("status")),
		CreatorID: r.URL.Query().Get("creator_id"),
		Limit:     intFromQuery(r, "limit", 50),
		Offset:    intFromQuery(r, "offset", 0),
	}
	tasks, err := s.ledger.ListTasks(r.Context(), filter)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request, actor Actor) {
	var draft marketplace.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	draft.CreatorID = actor.ID
	task, err := s.tasks.Create(r.Context(), draft)
	if err != nil {
		Fail(w, err)
		return
	}
	s.recordEvent(nowEvent("task_created", task.TaskID, actor.ID, "task drafted"))
	JSON(w, http.StatusCreated, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request, taskID string, actor Actor) {
	var upd marketplace.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	task, err := s.tasks.Update(r.Context(), taskID, actor.ID, upd)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, task)
}

func (s *Server) activateTask(w http.ResponseWriter, r *http.Request, taskID string, actor Actor) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		EscrowWalletID string `json:"escrow_wallet_id"`
		EscrowAddress  string `json:"escrow_address"`
		PaymentChain   string `json:"payment_chain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	task, err := s.tasks.Activate(r.Context(), taskID, actor.ID, body.EscrowWalletID, body.EscrowAddress, body.PaymentChain)
	if err != nil {
		Fail(w, err)
		return
	}
	s.recordEvent(nowEvent("task_activated", taskID, actor.ID, "task funded and live"))
	JSON(w, http.StatusOK, task)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request, taskID string, actor Actor) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		RefundAddress string `json:"refund_address"`
	}
	// Body is optional; fall back to the actor's bound wallet.
	_ = json.NewDecoder(r.Body).Decode(&body)
	refundAddress := body.RefundAddress
	if refundAddress == "" {
		refundAddress = actor.Wallet
	}
	task, err := s.tasks.Cancel(r.Context(), taskID, actor.ID, refundAddress)
	if err != nil {
		Fail(w, err)
		return
	}
	s.recordEvent(nowEvent("task_cancelled", taskID, actor.ID, "task cancelled with refund"))
	JSON(w, http.StatusOK, task)
}

func (s *Server) taskApplications(w http.ResponseWriter, r *http.Request, taskID string, actor Actor) {
	switch r.Method {
	case http.MethodGet:
		apps, err := s.ledger.ListApplications(r.Context(), marketplace.ApplicationFilter{
			TaskID: taskID,
			Status: marketplace.ApplicationStatus(r.URL.Query().Get("status")),
		})
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, map[string]interface{}{
			"applications": apps,
			"total_count":  len(apps),
		})
	case http.MethodPost:
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		app, err := s.allocator.Apply(r.Context(), taskID, actor.ID, body.Message)
		if err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("application", taskID, actor.ID, "agent applied"))
		JSON(w, http.StatusCreated, app)
	default:
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) taskStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := marketplace.RecomputeTaskStatus(r.Context(), s.ledger, taskID)
	if err != nil {
		Fail(w, err)
		return
	}
	task, err := s.ledger.GetTask(r.Context(), taskID)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"task_id":         taskID,
		"status":          status,
		"current_workers": task.CurrentWorkers,
		"max_workers":     task.MaxWorkers,
		"completed_at":    task.CompletedAt,
	})
}

func (s *Server) taskMilestones(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ms, err := s.ledger.ListMilestones(r.Context(), taskID)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"milestones": ms,
		"count":      len(ms),
	})
}

// taskFundingQR returns a PNG QR code for the task's escrow deposit.
func (s *Server) taskFundingQR(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	task, err := s.ledger.GetTask(r.Context(), taskID)
	if err != nil {
		Fail(w, err)
		return
	}
	if task.EscrowAddress == "" {
		Error(w, http.StatusBadRequest, "task has no escrow address yet")
		return
	}
	png, err := s.fundingQR.GenerateFundingQR(task.PaymentChain, task.EscrowAddress, task.TotalBudgetCents)
	if err != nil {
		Fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func intFromQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
