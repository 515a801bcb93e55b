package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BIDS-Xu-Lab/opendx/internal/agent"
	"github.com/BIDS-Xu-Lab/opendx/internal/ratelimit"
	"github.com/BIDS-Xu-Lab/opendx/internal/relay"
	"github.com/BIDS-Xu-Lab/opendx/internal/store"
	"github.com/BIDS-Xu-Lab/opendx/internal/usertoken"
	"github.com/BIDS-Xu-Lab/opendx/internal/util"
	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

const historyLimit = 100

// Config wires required dependencies for the HTTP server.
type Config struct {
	Store          store.Store
	Streamer       agent.Streamer
	TokenVerifier  *usertoken.Verifier // nil: every caller is anonymous
	ChatLimiter    *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the case relay HTTP endpoints.
type Server struct {
	store          store.Store
	orchestrator   *relay.Orchestrator
	tokenVerifier  *usertoken.Verifier
	chatLimiter    *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		store:          cfg.Store,
		orchestrator:   relay.New(cfg.Store, cfg.Streamer),
		tokenVerifier:  cfg.TokenVerifier,
		chatLimiter:    cfg.ChatLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/cases/", s.handleCaseByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	CaseText string `json:"case_text"`
}

// handleChat starts one relay interaction and streams its events over SSE.
// Errors are reported as HTTP statuses only until the stream opens; after
// that every fault is a single in-band error event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowChat(w, r) {
		s.audit(r, "chat.start", "rate_limited")
		return
	}

	subject := ""
	if s.tokenVerifier != nil {
		subject = s.tokenVerifier.OptionalSubject(r)
	}

	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.CaseText) == "" {
		writeError(w, http.StatusUnprocessableEntity, "case_text is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if subject == "" {
		s.audit(r, "chat.start", "success", "mode", "anonymous")
	} else {
		s.audit(r, "chat.start", "success", "mode", "authenticated", "user_id", subject)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.orchestrator.Run(r.Context(), relay.Interaction{
		OwnerID:  subject,
		CaseText: req.CaseText,
	}, func(ev domain.RelayEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	subject, ok := s.requireSubject(w, r, "history.authorize")
	if !ok {
		return
	}
	cases, err := s.store.ListCases(subject, historyLimit)
	if err != nil {
		slog.Error("list cases failed", "error", err, "request_id", util.RequestIDFromRequest(r))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": cases,
		"count": len(cases),
	})
}

// /api/cases/{id}/full
func (s *Server) handleCaseByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/cases/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) != 2 || parts[1] != "full" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	subject, ok := s.requireSubject(w, r, "case.authorize")
	if !ok {
		return
	}
	full, found, err := s.store.GetCaseWithMessages(id, subject)
	if err != nil {
		slog.Error("load case failed", "case_id", id, "error", err, "request_id", util.RequestIDFromRequest(r))
		writeError(w, http.StatusInternalServerError, "failed to load case")
		return
	}
	if !found {
		// Cases owned by someone else are reported identically to absent ones.
		writeError(w, http.StatusNotFound, "case not found")
		return
	}
	writeJSON(w, http.StatusOK, full)
}

// requireSubject resolves the verified subject or writes a 401.
func (s *Server) requireSubject(w http.ResponseWriter, r *http.Request, event string) (string, bool) {
	if s.tokenVerifier == nil {
		s.audit(r, event, "fail", "reason", "verifier_disabled")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	subject, err := s.tokenVerifier.SubjectFromRequest(r)
	if err != nil {
		s.audit(r, event, "fail", "reason", "invalid_or_missing_token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	s.audit(r, event, "success", "user_id", subject)
	return subject, true
}

func (s *Server) allowChat(w http.ResponseWriter, r *http.Request) bool {
	if s.chatLimiter == nil {
		return true
	}
	if s.chatLimiter.Allow(util.ClientIP(r, s.trustedProxies)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many chat requests")
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
