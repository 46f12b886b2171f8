package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/opspilot/pkg/events"
	"github.com/ArcaneAIAutomation/opspilot/pkg/health"
	"github.com/ArcaneAIAutomation/opspilot/pkg/log"
	"github.com/ArcaneAIAutomation/opspilot/pkg/module"
	"github.com/ArcaneAIAutomation/opspilot/pkg/ratelimit"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/security"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = scheduler.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	}
	opts.Logger = zerolog.Nop()
	return NewServer(opts)
}

func get(t *testing.T, s *Server, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:4711"
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestLivenessAlways200(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := get(t, s, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestReadinessWithoutKernel(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := get(t, s, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// unhealthyModule always reports unhealthy.
type unhealthyModule struct{}

func (unhealthyModule) Manifest() types.Manifest {
	return types.Manifest{ID: "connector.sick", Version: "1.0.0", Category: types.CategoryConnector}
}
func (unhealthyModule) Initialize(context.Context, *module.Context) error { return nil }
func (unhealthyModule) Start(context.Context) error                      { return nil }
func (unhealthyModule) Stop(context.Context) error                       { return nil }
func (unhealthyModule) Destroy(context.Context) error                    { return nil }
func (unhealthyModule) Health(context.Context) types.Health {
	return types.Health{Status: types.Unhealthy, Message: "backend unreachable"}
}

func TestReadiness503WhenModuleUnhealthy(t *testing.T) {
	log.Init(log.Config{Level: log.ErrorLevel, Output: io.Discard})
	ctx := context.Background()
	clock := scheduler.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStore()
	bus := events.NewBus(zerolog.Nop())
	sched := scheduler.NewScheduler(clock, zerolog.Nop())
	t.Cleanup(sched.Stop)
	kernel := module.NewKernel(store, bus, nil, sched, zerolog.Nop())
	require.NoError(t, kernel.Register(unhealthyModule{}))
	require.NoError(t, kernel.InitializeAll(ctx, nil))
	require.NoError(t, kernel.StartAll(ctx))

	s := newTestServer(t, Options{Kernel: kernel, Clock: clock})
	rec := get(t, s, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, types.Unhealthy, report.Status)
	assert.Equal(t, "backend unreachable", report.Modules["connector.sick"].Message)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := get(t, s, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "opspilot_")
}

func TestAuthRequired(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := security.NewTokenVerifier("secret", "opspilot", clock)
	auth := security.NewAuthenticator(
		tokens,
		security.NewAPIKeyVerifier([]string{"key-1"}),
		security.NewPublicPaths([]string{"/healthz"}),
	)
	s := newTestServer(t, Options{Auth: auth, Clock: clock})

	t.Run("public path skips auth", func(t *testing.T) {
		rec := get(t, s, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("protected path rejects anonymous", func(t *testing.T) {
		rec := get(t, s, "/readyz", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer token admits", func(t *testing.T) {
		token, err := tokens.Sign(security.Claims{
			Subject:  "alice",
			Role:     security.RoleAdmin,
			IssuedAt: clock.Now().Unix(),
			Issuer:   "opspilot",
		})
		require.NoError(t, err)
		rec := get(t, s, "/readyz", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("api key admits", func(t *testing.T) {
		rec := get(t, s, "/readyz", func(r *http.Request) {
			r.Header.Set("X-API-Key", "key-1")
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong api key rejected", func(t *testing.T) {
		rec := get(t, s, "/readyz", func(r *http.Request) {
			r.Header.Set("X-API-Key", "key-2")
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestServer(t, Options{
		Limiter: ratelimit.NewLimiter(2, time.Minute, clock),
		Clock:   clock,
	})

	assert.Equal(t, http.StatusOK, get(t, s, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz", nil).Code)

	rec := get(t, s, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	// Another client has its own window.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.2:4711"
	other := httptest.NewRecorder()
	s.Handler().ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)

	// The window slides.
	clock.Advance(61 * time.Second)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz", nil).Code)
}
