package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/decivue/decivue/internal/auth"
	"github.com/decivue/decivue/internal/conflicts"
	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/ratelimit"
	"github.com/decivue/decivue/internal/service/evaluation"
	"github.com/decivue/decivue/internal/storage"
)

// Server is the Decivue HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying Handlers for access to SeedAdmin etc.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	// Required dependencies.
	DB       *storage.DB
	JWTMgr   *auth.JWTManager
	EvalSvc  *evaluation.Service
	Detector *conflicts.Detector
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter ratelimit.Limiter

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		EvalSvc:             cfg.EvalSvc,
		Detector:            cfg.Detector,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Rate limit rules. Reads and writes get independent buckets per
	// user; auth is limited by IP since no identity exists yet.
	queryRL := ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{Prefix: "query"}, userKeyFunc, reqIDFunc)
	mutateRL := ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{Prefix: "mutate"}, userKeyFunc, reqIDFunc)
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{Prefix: "auth"}, ratelimit.IPKeyFunc, reqIDFunc)

	readRole := requireRole(model.RoleReader)
	editRole := requireRole(model.RoleEditor)
	adminOnly := requireRole(model.RoleAdmin)

	mux := http.NewServeMux()

	// Auth (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Decisions.
	mux.Handle("POST /v1/decisions", mutateRL(editRole(http.HandlerFunc(h.HandleCreateDecision))))
	mux.Handle("GET /v1/decisions", queryRL(readRole(http.HandlerFunc(h.HandleListDecisions))))
	mux.Handle("GET /v1/decisions/{id}", queryRL(readRole(http.HandlerFunc(h.HandleGetDecision))))
	mux.Handle("PATCH /v1/decisions/{id}", mutateRL(editRole(http.HandlerFunc(h.HandleUpdateDecision))))
	mux.Handle("DELETE /v1/decisions/{id}", adminOnly(http.HandlerFunc(h.HandleDeleteDecision)))

	// Governance (admin).
	mux.Handle("POST /v1/decisions/{id}/lock", adminOnly(http.HandlerFunc(h.HandleLockDecision)))
	mux.Handle("POST /v1/decisions/{id}/unlock", adminOnly(http.HandlerFunc(h.HandleUnlockDecision)))

	// Review and evaluation.
	mux.Handle("POST /v1/decisions/{id}/review", mutateRL(editRole(http.HandlerFunc(h.HandleReviewDecision))))
	mux.Handle("POST /v1/decisions/{id}/evaluate", mutateRL(editRole(http.HandlerFunc(h.HandleEvaluateDecision))))
	mux.Handle("GET /v1/decisions/{id}/history", queryRL(readRole(http.HandlerFunc(h.HandleEvaluationHistory))))
	mux.Handle("GET /v1/decisions/{id}/versions", queryRL(readRole(http.HandlerFunc(h.HandleDecisionVersions))))
	mux.Handle("GET /v1/decisions/{id}/violations", queryRL(readRole(http.HandlerFunc(h.HandleDecisionViolations))))
	mux.Handle("GET /v1/reviews/due", queryRL(readRole(http.HandlerFunc(h.HandleReviewQueue))))

	// Assumptions.
	mux.Handle("POST /v1/assumptions", mutateRL(editRole(http.HandlerFunc(h.HandleCreateAssumption))))
	mux.Handle("GET /v1/assumptions", queryRL(readRole(http.HandlerFunc(h.HandleListAssumptions))))
	mux.Handle("GET /v1/assumptions/{id}", queryRL(readRole(http.HandlerFunc(h.HandleGetAssumption))))
	mux.Handle("PATCH /v1/assumptions/{id}/status", mutateRL(editRole(http.HandlerFunc(h.HandleUpdateAssumptionStatus))))
	mux.Handle("DELETE /v1/assumptions/{id}", adminOnly(http.HandlerFunc(h.HandleDeleteAssumption)))
	mux.Handle("POST /v1/assumptions/{id}/detect", mutateRL(editRole(http.HandlerFunc(h.HandleDetectConflicts))))

	// Decision/assumption links.
	mux.Handle("POST /v1/decisions/{id}/assumptions/{assumption_id}", mutateRL(editRole(http.HandlerFunc(h.HandleLinkAssumption))))
	mux.Handle("DELETE /v1/decisions/{id}/assumptions/{assumption_id}", mutateRL(editRole(http.HandlerFunc(h.HandleUnlinkAssumption))))

	// Constraints and violations.
	mux.Handle("POST /v1/constraints", mutateRL(editRole(http.HandlerFunc(h.HandleCreateConstraint))))
	mux.Handle("GET /v1/constraints", queryRL(readRole(http.HandlerFunc(h.HandleListConstraints))))
	mux.Handle("GET /v1/constraints/{id}", queryRL(readRole(http.HandlerFunc(h.HandleGetConstraint))))
	mux.Handle("PATCH /v1/constraints/{id}", mutateRL(editRole(http.HandlerFunc(h.HandleUpdateConstraint))))
	mux.Handle("POST /v1/decisions/{id}/constraints/{constraint_id}", mutateRL(editRole(http.HandlerFunc(h.HandleLinkConstraint))))
	mux.Handle("POST /v1/constraints/{id}/violations", mutateRL(editRole(http.HandlerFunc(h.HandleRecordViolation))))
	mux.Handle("POST /v1/violations/{id}/resolve", mutateRL(editRole(http.HandlerFunc(h.HandleResolveViolation))))

	// Conflicts.
	mux.Handle("GET /v1/conflicts/assumptions", queryRL(readRole(http.HandlerFunc(h.HandleListAssumptionConflicts))))
	mux.Handle("POST /v1/conflicts/assumptions/{id}/resolve", mutateRL(editRole(http.HandlerFunc(h.HandleResolveAssumptionConflict))))
	mux.Handle("GET /v1/conflicts/decisions", queryRL(readRole(http.HandlerFunc(h.HandleListDecisionConflicts))))
	mux.Handle("POST /v1/conflicts/decisions", mutateRL(editRole(http.HandlerFunc(h.HandleCreateDecisionConflict))))
	mux.Handle("POST /v1/conflicts/decisions/{id}/resolve", mutateRL(editRole(http.HandlerFunc(h.HandleResolveDecisionConflict))))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// userKeyFunc extracts the user ID from the request context for rate
// limiting. Returns empty string for admins (exempt).
func userKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		return ""
	}
	return claims.UserID
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
