package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ArcaneAIAutomation/opspilot/pkg/health"
	"github.com/ArcaneAIAutomation/opspilot/pkg/metrics"
	"github.com/ArcaneAIAutomation/opspilot/pkg/module"
	"github.com/ArcaneAIAutomation/opspilot/pkg/ratelimit"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/security"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// Options configures the HTTP server.
type Options struct {
	Port    int
	Auth    *security.Authenticator
	Limiter *ratelimit.Limiter
	Kernel  *module.Kernel
	Clock   scheduler.Clock
	Logger  zerolog.Logger
}

// Server is the HTTP gate server.
type Server struct {
	opts      Options
	router    chi.Router
	srv       *http.Server
	startedAt time.Time
}

// NewServer builds the router with the middleware chain request-log →
// rate-limit → auth.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = scheduler.System
	}
	s := &Server{opts: opts, startedAt: opts.Clock.Now()}

	r := chi.NewRouter()
	r.Use(s.requestLog)
	r.Use(s.rateLimit)
	r.Use(s.authenticate)

	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)
	r.Handle("/metrics", metrics.Handler())

	s.router = r
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.opts.Logger.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleLiveness always answers 200 while the process runs.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness answers 503 when any module reports unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	var moduleHealths map[string]types.Health
	if s.opts.Kernel != nil {
		moduleHealths = s.opts.Kernel.HealthAll(r.Context())
	}
	report := health.Report{
		Status:    health.Aggregate(moduleHealths),
		Timestamp: s.opts.Clock.Now(),
		Modules:   moduleHealths,
		Uptime:    s.opts.Clock.Now().Sub(s.startedAt).String(),
	}
	status := http.StatusOK
	if report.Status == types.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
		s.opts.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		decision := s.opts.Limiter.TryAcquire(clientKey(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(decision.ResetAt).Seconds())+1))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Auth == nil || s.opts.Auth.Public(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		identity, ok := s.opts.Auth.Authenticate(bearerToken(r), r.Header.Get("X-API-Key"))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		s.opts.Logger.Debug().Str("subject", identity.Subject).Str("role", string(identity.Role)).
			Str("path", r.URL.Path).Msg("authenticated request")
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(auth, "Bearer "); found {
		return token
	}
	return ""
}

// clientKey buckets rate-limit windows by remote address.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
