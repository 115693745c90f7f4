package agent

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pkmiec/passenger/internal/config"
	"github.com/pkmiec/passenger/internal/metrics"
	"github.com/pkmiec/passenger/internal/pool"
	"github.com/pkmiec/passenger/internal/spawningkit"
)

// stubSpawner hands out fake processes without touching the OS
type stubSpawner struct {
	nextPID int
}

func (s *stubSpawner) Spawn(ctx context.Context, spec spawningkit.AppSpec, generation int) (*spawningkit.Result, error) {
	s.nextPID++
	return &spawningkit.Result{PID: 20_000_000 + s.nextPID, Concurrency: 1}, nil
}

func newTestServer(t *testing.T) (*Server, *pool.Pool) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := prometheus.NewRegistry()
	gauges := metrics.NewPoolGauges(registry)

	cfg := config.DefaultAgentConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.Pool.SelfChecking = true

	p, err := pool.New(pool.Config{
		Pool:    cfg.Pool,
		Spawner: &stubSpawner{},
		Logger:  logger,
		Gauges:  gauges,
	})
	require.NoError(t, err)
	t.Cleanup(p.Destroy)

	return NewServer(cfg, p, logger, registry), p
}

func TestHandleStatus(t *testing.T) {
	server, p := newTestServer(t)

	session, err := p.Get(context.Background(), pool.Options{
		AppRoot:      "/apps/a",
		StartCommand: []string{"ruby", "app.rb"},
	})
	require.NoError(t, err)
	defer session.Close()

	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Max pool size")
	assert.Contains(t, rec.Body.String(), "/apps/a")
}

func TestHandleStatusXML(t *testing.T) {
	server, p := newTestServer(t)

	session, err := p.Get(context.Background(), pool.Options{
		AppRoot:      "/apps/a",
		StartCommand: []string{"ruby", "app.rb"},
	})
	require.NoError(t, err)
	defer session.Close()

	rec := httptest.NewRecorder()
	server.handleStatusXML(rec, httptest.NewRequest(http.MethodGet, "/status.xml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<supergroups>")
	assert.NotContains(t, rec.Body.String(), "<secret>", "secrets must be opt-in")

	rec = httptest.NewRecorder()
	server.handleStatusXML(rec, httptest.NewRequest(http.MethodGet, "/status.xml?secrets=true", nil))
	assert.Contains(t, rec.Body.String(), "<secret>")
}

func TestPublishHealthMirrorsLifeStatus(t *testing.T) {
	server, p := newTestServer(t)

	server.publishHealth()
	resp, err := server.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	p.PrepareForShutdown()
	server.publishHealth()
	resp, err = server.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
