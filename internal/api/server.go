// Package api provides the HTTP server for ChoreQuest. It exposes the
// query surface for the UI layer (balances, credibility, review queues,
// badges), the task lifecycle endpoints, and a live SSE event feed.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chorequest/chorequest/internal/app/badges"
	"github.com/chorequest/chorequest/internal/app/ledger"
	"github.com/chorequest/chorequest/internal/app/trust"
	"github.com/chorequest/chorequest/internal/app/workflow"
	"github.com/chorequest/chorequest/internal/domain"
)

// EvidenceBlobStore is the storage surface the photo endpoints need:
// the domain-facing write side plus read-back for serving.
type EvidenceBlobStore interface {
	domain.EvidenceStore
	Resolve(url string) ([]byte, error)
}

// Server is the ChoreQuest HTTP API server.
type Server struct {
	ledger   *ledger.Service
	trust    *trust.Engine
	workflow *workflow.Service
	badges   *badges.Tracker
	catalog  domain.TemplateCatalog

	metricsEnabled bool
	hub            *EventHub         // nil disables the live feed
	evidence       EvidenceBlobStore // nil disables photo upload
}

// NewServer creates a new API server.
func NewServer(led *ledger.Service, tr *trust.Engine, wf *workflow.Service, bt *badges.Tracker, cat domain.TemplateCatalog) *Server {
	return &Server{ledger: led, trust: tr, workflow: wf, badges: bt, catalog: cat}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetEventHub sets the live SSE event hub.
func (s *Server) SetEventHub(h *EventHub) { s.hub = h }

// SetEvidenceStore enables the photo upload and fetch endpoints.
func (s *Server) SetEvidenceStore(store EvidenceBlobStore) { s.evidence = store }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// User queries
		r.Get("/users/{userID}/balance", s.handleBalance)
		r.Get("/users/{userID}/credibility", s.handleCredibility)
		r.Get("/users/{userID}/transactions", s.handleTransactions)
		r.Get("/users/{userID}/badges", s.handleBadges)
		r.Get("/users/{userID}/tasks", s.handleChildTasks)

		// Ledger mutations
		r.Post("/users/{userID}/redeem", s.handleRedeem)
		r.Post("/users/{userID}/grant", s.handleGrant)

		// Task lifecycle
		r.Post("/tasks", s.handleClaim)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Post("/tasks/{taskID}/start", s.handleStart)
		r.Post("/tasks/{taskID}/submit", s.handleSubmit)
		r.Post("/tasks/{taskID}/approve", s.handleApprove)
		r.Post("/tasks/{taskID}/decline", s.handleDecline)
		r.Post("/tasks/{taskID}/appeal", s.handleAppeal)

		// Review queue and authority
		r.Get("/reviews/pending", s.handlePendingReviews)
		r.Post("/authority", s.handleGrantAuthority)

		// Catalog
		r.Get("/templates", s.handleTemplates)

		// Evidence photos
		if s.evidence != nil {
			r.Post("/evidence", s.handleUploadEvidence)
			r.Get("/evidence/{digest}", s.handleGetEvidence)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if s.hub != nil {
		r.Get("/api/events/live", s.hub.HandleEventsSSE)
	}

	return r
}

// ─── User Queries ───────────────────────────────────────────────────────────

// GET /api/users/{userID}/balance
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.ledger.Balance(chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// GET /api/users/{userID}/credibility
func (s *Server) handleCredibility(w http.ResponseWriter, r *http.Request) {
	status, err := s.trust.Status(chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GET /api/users/{userID}/transactions
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.Transactions(chi.URLParam(r, "userID"), 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// GET /api/users/{userID}/badges
func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	progress, err := s.badges.Progress(chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": progress})
}

// GET /api/users/{userID}/tasks
func (s *Server) handleChildTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.workflow.ListByChild(chi.URLParam(r, "userID"), 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// ─── Ledger Mutations ───────────────────────────────────────────────────────

// POST /api/users/{userID}/redeem
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int    `json:"amount"`
		Notes  string `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userID")
	rate, err := s.trust.ConversionRate(userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.ledger.Redeem(userID, req.Amount, req.Notes); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"redeemed_xp":     req.Amount,
		"minutes":         domain.MinutesValue(req.Amount, rate),
		"conversion_rate": rate,
	})
}

// POST /api/users/{userID}/grant
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.Grant(chi.URLParam(r, "userID"), req.Amount, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

// ─── Task Lifecycle ─────────────────────────────────────────────────────────

// POST /api/tasks
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string     `json:"template_id"`
		ChildID    string     `json:"child_id"`
		AssignedBy string     `json:"assigned_by"`
		Level      int        `json:"level"`
		DueDate    *time.Time `json:"due_date"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.workflow.Claim(workflow.ClaimRequest{
		TemplateID: req.TemplateID,
		ChildID:    req.ChildID,
		AssignedBy: req.AssignedBy,
		Level:      req.Level,
		DueDate:    req.DueDate,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GET /api/tasks/{taskID}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	a, err := s.workflow.Get(chi.URLParam(r, "taskID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// POST /api/tasks/{taskID}/start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChildID string `json:"child_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.workflow.Start(chi.URLParam(r, "taskID"), req.ChildID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// POST /api/tasks/{taskID}/submit
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChildID  string `json:"child_id"`
		PhotoURL string `json:"photo_url"`
		Notes    string `json:"notes"`
		Minutes  int    `json:"minutes"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.workflow.Submit(chi.URLParam(r, "taskID"), req.ChildID, req.PhotoURL, req.Notes, req.Minutes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// POST /api/tasks/{taskID}/approve
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReviewerID    string `json:"reviewer_id"`
		Notes         string `json:"notes"`
		LevelOverride *int   `json:"level_override"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.workflow.Approve(chi.URLParam(r, "taskID"), req.ReviewerID, req.Notes, req.LevelOverride)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Badge check rides on the decision, after the atomic unit commits.
	// The approval itself already succeeded, so a badge failure degrades
	// the response rather than failing it; the next evaluation retries.
	newBadges, badgeErr := s.badges.EvaluateBadges(a.ChildID)
	if badgeErr != nil {
		log.Printf("api: badge evaluation for %s: %v", a.ChildID, badgeErr)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":       a,
		"new_badges": newBadges,
	})
}

// POST /api/tasks/{taskID}/decline
func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReviewerID string `json:"reviewer_id"`
		Reason     string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.workflow.Decline(chi.URLParam(r, "taskID"), req.ReviewerID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// POST /api/tasks/{taskID}/appeal
func (s *Server) handleAppeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChildID string `json:"child_id"`
		Notes   string `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.workflow.Appeal(chi.URLParam(r, "taskID"), req.ChildID, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ─── Reviews & Authority ────────────────────────────────────────────────────

// GET /api/reviews/pending?reviewer=ID
func (s *Server) handlePendingReviews(w http.ResponseWriter, r *http.Request) {
	reviewer := r.URL.Query().Get("reviewer")
	if reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer query parameter required")
		return
	}
	pending, err := s.workflow.PendingReviews(reviewer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

// POST /api/authority
func (s *Server) handleGrantAuthority(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GuardianID string `json:"guardian_id"`
		ChildID    string `json:"child_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.workflow.GrantReviewAuthority(req.GuardianID, req.ChildID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

// GET /api/templates
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": s.catalog.ListTemplates()})
}

// ─── Evidence Photos ────────────────────────────────────────────────────────

// POST /api/evidence — raw photo bytes in the body. Returns the opaque
// URL to pass to the submit endpoint.
func (s *Server) handleUploadEvidence(w http.ResponseWriter, r *http.Request) {
	const maxPhotoBytes = 16 << 20
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPhotoBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read photo body")
		return
	}
	if len(data) > maxPhotoBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "photo exceeds 16MB limit")
		return
	}
	url, err := s.evidence.StoreEvidence(data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"photo_url": url})
}

// GET /api/evidence/{digest}
func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	data, err := s.evidence.Resolve("evidence://" + chi.URLParam(r, "digest"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ─── Response Helpers ───────────────────────────────────────────────────────

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeDomainError maps the error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStateConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}
