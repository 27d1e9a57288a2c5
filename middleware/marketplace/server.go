package marketplace

import (
	"net/http"
	"sync"
	"time"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
	"github.com/vinccirom/taskforce-platform-sub001/services"
	auth "github.com/vinccirom/taskforce-platform-sub001/storage/auth"
)

// Actor is the authenticated caller resolved from an API key.
type Actor struct {
	ID     string
	Role   marketplace.Role
	Wallet string
}

// Server wires handlers for the marketplace HTTP API.
type Server struct {
	ledger      marketplace.Ledger
	tasks       *marketplace.TaskService
	allocator   *marketplace.SlotAllocator
	review      *marketplace.ReviewOrchestrator
	disputes    *marketplace.DisputeAdjudicator
	apiKeys     auth.APIKeyValidator
	challenges  *auth.ChallengeStore
	fundingQR   *services.FundingQRService
	events      []marketplace.Event
	eventsMu    sync.Mutex
	listenersMu sync.Mutex
	listeners   []chan marketplace.Event
}

// NewServer builds a Server around the settlement engines.
func NewServer(
	ledger marketplace.Ledger,
	tasks *marketplace.TaskService,
	allocator *marketplace.SlotAllocator,
	review *marketplace.ReviewOrchestrator,
	disputes *marketplace.DisputeAdjudicator,
	apiKeys auth.APIKeyValidator,
	challenges *auth.ChallengeStore,
) *Server {
	return &Server{
		ledger:     ledger,
		tasks:      tasks,
		allocator:  allocator,
		review:     review,
		disputes:   disputes,
		apiKeys:    apiKeys,
		challenges: challenges,
		fundingQR:  services.NewFundingQRService(),
	}
}

// RegisterRoutes attaches handlers to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/marketplace/tasks", s.authWrap(s.handleTasks))
	mux.HandleFunc("/api/marketplace/tasks/", s.authWrap(s.handleTasks))
	mux.HandleFunc("/api/marketplace/applications", s.authWrap(s.handleApplications))
	mux.HandleFunc("/api/marketplace/applications/", s.authWrap(s.handleApplications))
	mux.HandleFunc("/api/marketplace/submissions", s.authWrap(s.handleSubmissions))
	mux.HandleFunc("/api/marketplace/submissions/", s.authWrap(s.handleSubmissions))
	mux.HandleFunc("/api/marketplace/milestones/", s.authWrap(s.handleMilestones))
	mux.HandleFunc("/api/marketplace/disputes", s.authWrap(s.handleDisputes))
	mux.HandleFunc("/api/marketplace/disputes/", s.authWrap(s.handleDisputes))
	mux.HandleFunc("/api/marketplace/agents/", s.authWrap(s.handleAgents))
	mux.HandleFunc("/api/marketplace/events", s.authWrap(s.handleEvents))
}

// authWrap resolves the actor behind X-API-Key and rejects unknown keys.
// With no key store configured the API runs open (local development) and
// the actor is taken from the X-Actor-ID / X-Actor-Role headers.
func (s *Server) authWrap(next func(http.ResponseWriter, *http.Request, Actor)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKeys == nil {
			role := marketplace.Role(r.Header.Get("X-Actor-Role"))
			if role == "" {
				role = marketplace.RoleAgent
			}
			next(w, r, Actor{ID: r.Header.Get("X-Actor-ID"), Role: role})
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			Error(w, http.StatusUnauthorized, "API key required")
			return
		}
		rec, ok := s.apiKeys.Get(key)
		if !ok {
			Error(w, http.StatusForbidden, "invalid api key")
			return
		}
		next(w, r, Actor{ID: rec.ActorID, Role: rec.Role, Wallet: rec.Wallet})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordEvent appends to the bounded in-memory feed and fans out to
// subscribed listeners.
func (s *Server) recordEvent(e marketplace.Event) {
	s.eventsMu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > 500 {
		s.events = s.events[len(s.events)-500:]
	}
	s.eventsMu.Unlock()

	s.listenersMu.Lock()
	for _, ch := range s.listeners {
		select {
		case ch <- e:
		default:
		}
	}
	s.listenersMu.Unlock()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, actor Actor) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.eventsMu.Lock()
	out := make([]marketplace.Event, len(s.events))
	copy(out, s.events)
	s.eventsMu.Unlock()
	JSON(w, http.StatusOK, map[string]interface{}{
		"events": out,
		"count":  len(out),
	})
}

// Subscribe returns a channel receiving future events. Intended for
// in-process consumers such as the MCP bridge.
func (s *Server) Subscribe() chan marketplace.Event {
	ch := make(chan marketplace.Event, 16)
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenersMu.Unlock()
	return ch
}

func nowEvent(eventType, entityID, actor, message string) marketplace.Event {
	return marketplace.Event{
		Type:      eventType,
		EntityID:  entityID,
		Actor:     actor,
		Message:   message,
		CreatedAt: time.Now(),
	}
}
