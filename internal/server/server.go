// Package server provides the HTTP REST API for studyforge.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/assessment"
	"github.com/jonathan/studyforge/internal/extraction"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/logger"
	"github.com/jonathan/studyforge/internal/server/middleware"
	"github.com/jonathan/studyforge/internal/server/ratelimit"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

// Store is the persistence the server reads and writes through. Both
// db.DB and memstore.Store satisfy it.
type Store interface {
	extraction.Courses
	extraction.Questions
	extraction.Assessments
	extraction.Plans
	assessment.Repository
	CreateCourse(ctx context.Context, c *types.Course) error
	ListCourses(ctx context.Context, subjectID uuid.UUID) ([]types.Course, error)
	GetPlanByAssessment(ctx context.Context, assessmentID uuid.UUID) (*types.Plan, error)
}

// Options configure a Server.
type Options struct {
	Port    int
	Store   Store
	Engine  *extraction.Engine
	Model   llm.Completer
	JWT     *JWTService
	Limiter *ratelimit.Limiter // optional
	Log     *logger.Logger
	// Ping reports whether backing services are reachable; optional.
	Ping func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	store       Store
	engine      *extraction.Engine
	model       llm.Completer
	assessments *assessment.Service
	validator   *validation.Validator
	jwt         *JWTService
	rateLimiter *ratelimit.Limiter
	ping        func(ctx context.Context) error
	log         *logger.Logger
}

// New creates a new server instance
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		store:       opts.Store,
		engine:      opts.Engine,
		model:       opts.Model,
		assessments: assessment.NewService(opts.Store),
		validator:   validation.New(),
		jwt:         opts.JWT,
		rateLimiter: opts.Limiter,
		ping:        opts.Ping,
		log:         log,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // question generation chains three model calls
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()

	// Courses and questions
	api.HandleFunc("POST /courses", s.handleCreateCourse)
	api.HandleFunc("GET /courses", s.handleListCourses)
	api.HandleFunc("GET /courses/{id}/questions", s.handleListQuestions)
	api.HandleFunc("POST /courses/{id}/questions", s.handleGenerateQuestions)
	api.HandleFunc("POST /courses/{id}/topics", s.handleClusterTopics)
	api.HandleFunc("POST /courses/{id}/difficulty", s.handleAssignDifficulty)

	// Assessments and what is derived from them
	api.HandleFunc("POST /assessments", s.handleSubmitAssessment)
	api.HandleFunc("GET /assessments/{id}", s.handleGetAssessment)
	api.HandleFunc("POST /assessments/{id}/suggestions", s.handleSuggestions)
	api.HandleFunc("POST /assessments/{id}/plan", s.handleCreatePlan)
	api.HandleFunc("GET /assessments/{id}/plan", s.handleGetPlan)

	authed := middleware.Auth(s.jwt.AsTokenValidator(), func(w http.ResponseWriter, _ *http.Request) {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
	})(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/", authed)

	var h http.Handler = s.withCORS(mux)
	if s.rateLimiter != nil {
		h = s.withRateLimit(h)
	}
	return s.withLogging(h)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients that exceed their endpoint budget.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.log.Warn("health check failed", "error", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, errorBody{Error: message})
}

// fail maps err to a status and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	s.jsonResponse(w, status, describe(err, status))
}

// clientID identifies the caller for rate limiting by remote IP.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.log.Warn("rate limit exceeded", "client", clientID(r), "path", r.URL.Path, "limit", info.Limit)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
