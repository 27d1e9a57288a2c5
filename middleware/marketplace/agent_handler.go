package marketplace

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request, actor Actor) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/marketplace/agents"), "/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		Error(w, http.StatusBadRequest, "agent id required")
		return
	}
	agentID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		agent, err := s.ledger.GetAgent(r.Context(), agentID)
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, agent)
		return
	}

	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if actor.ID != agentID {
		Error(w, http.StatusForbidden, "agents may only verify their own wallet")
		return
	}

	switch parts[1] {
	case "challenge":
		var body struct {
			Wallet string `json:"wallet_address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		if strings.TrimSpace(body.Wallet) == "" {
			Error(w, http.StatusBadRequest, "wallet_address required")
			return
		}
		ch, err := s.challenges.Issue(agentID, strings.TrimSpace(body.Wallet))
		if err != nil {
			Fail(w, err)
			return
		}
		JSON(w, http.StatusOK, ch)
	case "verify":
		var body struct {
			Wallet    string `json:"wallet_address"`
			Signature string `json:"signature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		if !s.challenges.Verify(agentID, body.Signature) {
			Error(w, http.StatusForbidden, "verification failed or challenge expired")
			return
		}
		agent, err := s.ledger.GetAgent(r.Context(), agentID)
		if err != nil && !errors.Is(err, marketplace.ErrNotFound) {
			Fail(w, err)
			return
		}
		agent.AgentID = agentID
		agent.WalletAddress = strings.TrimSpace(body.Wallet)
		agent.Verified = true
		if agent.CreatedAt.IsZero() {
			agent.CreatedAt = time.Now()
		}
		if err := s.ledger.UpsertAgent(r.Context(), agent); err != nil {
			Fail(w, err)
			return
		}
		s.recordEvent(nowEvent("agent_verified", agentID, agentID, "wallet verified"))
		JSON(w, http.StatusOK, agent)
	default:
		Error(w, http.StatusNotFound, "unknown agent action")
	}
}
