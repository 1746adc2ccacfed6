package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runbox/internal/config"
	"runbox/internal/jsvm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Log:     config.LogConfig{Level: "info", Format: "console"},
		Storage: config.StorageConfig{Path: filepath.Join(dir, "data.db")},
		Gateway: config.GatewayConfig{
			Host:           "127.0.0.1",
			Port:           0,
			AllowedOrigins: []string{"*"},
		},
		Runner: config.RunnerConfig{
			Timeout:          2 * time.Second,
			PoolSize:         2,
			AcquireTimeout:   time.Second,
			MaxCallStackSize: 512,
		},
		Maintenance: config.MaintenanceConfig{Enabled: true, CleanupSchedule: "@every 1h"},
	}
}

func startServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Config: cfg, Version: "test", Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func TestNewServerRequiresConfig(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestServerStartStop(t *testing.T) {
	srv := startServer(t, testConfig(t))

	assert.True(t, srv.IsRunning())
	assert.False(t, srv.StartedAt().IsZero())
	require.NotEmpty(t, srv.Addr())

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
	assert.Empty(t, srv.Addr())
	assert.NoError(t, srv.Stop(), "second stop is a no-op")
}

func TestServerRunsExercise(t *testing.T) {
	srv := startServer(t, testConfig(t))

	body := strings.NewReader(`{"code":"console.log([1,2,3].map((n: number) => n * 2).join(','))","module":"module-1-templating"}`)
	resp, err := http.Post("http://"+srv.Addr()+"/api/v1/run", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var res jsvm.RunResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Nil(t, res.Error)
	assert.Equal(t, []string{"2,4,6"}, res.Output)
}

func TestServerCustomCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "course.yaml")
	cfg.Catalog.Watch = true
	require.NoError(t, os.WriteFile(cfg.Catalog.Path, []byte(`schema_version: "1.0.0"
title: Mini
days:
  - day: 1
    title: Only day
    modules:
      - slug: solo
        title: Solo
        run_in_browser: true
        exercises:
          - slug: 01-one
            title: One
`), 0o644))

	srv := startServer(t, cfg)

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/modules/solo")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + srv.Addr() + "/api/v1/modules/module-1-templating")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerStartFailsOnBadCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")

	srv, err := NewServer(ServerConfig{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Error(t, srv.Start())
	assert.False(t, srv.IsRunning())
}

func TestRunnerConfig(t *testing.T) {
	rc := RunnerConfig(config.RunnerConfig{Timeout: time.Second, PoolSize: 3, Advisory: "local only"})
	assert.Equal(t, time.Second, rc.Timeout)
	assert.Equal(t, 3, rc.PoolSize)
	assert.Equal(t, "local only", rc.Advisory)
}
