// Package server wires storage, catalog, runner, progress, maintenance and
// the gateway into one process. Both `runbox serve` and tests use it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"runbox/internal/catalog"
	"runbox/internal/config"
	"runbox/internal/cron"
	"runbox/internal/gateway"
	"runbox/internal/metrics"
	"runbox/internal/progress"
	"runbox/internal/runner"
	"runbox/internal/storage"
)

// Server is the runbox server running in-process.
type Server struct {
	cfg     *config.Config
	version string
	logger  zerolog.Logger

	db            *storage.DB
	catalog       *catalog.Store
	watcher       *catalog.Watcher
	runner        *runner.Runner
	cronScheduler *cron.Scheduler
	gatewayServer *gateway.Server
	listener      net.Listener

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	errChan   chan error
}

// ServerConfig holds what the server needs besides the loaded config.
type ServerConfig struct {
	Config  *config.Config
	Version string
	Logger  zerolog.Logger
}

// NewServer creates a new server instance. Nothing is opened until Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	return &Server{
		cfg:     cfg.Config,
		version: cfg.Version,
		logger:  cfg.Logger,
		errChan: make(chan error, 1),
	}, nil
}

// ErrorChan returns the error channel for monitoring server errors.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Start opens every component and starts serving HTTP in the background.
// On failure everything opened so far is closed again.
func (s *Server) Start() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	defer func() {
		if err != nil {
			s.closeLocked(context.Background())
		}
	}()

	s.logger.Info().Msg("Starting runbox server...")

	if s.db, err = storage.Open(s.cfg.Storage.Path); err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	catalogPath, err := config.ExpandPath(s.cfg.Catalog.Path)
	if err != nil {
		return err
	}
	manifest, err := LoadManifest(catalogPath)
	if err != nil {
		return err
	}
	s.catalog = catalog.NewStore(manifest)

	if catalogPath != "" && s.cfg.Catalog.Watch {
		if s.watcher, err = catalog.NewWatcher(s.catalog, catalogPath, s.logger); err != nil {
			return fmt.Errorf("create catalog watcher: %w", err)
		}
		if err = s.watcher.Start(); err != nil {
			return fmt.Errorf("watch catalog: %w", err)
		}
	}

	m := metrics.New()
	r := runner.New(RunnerConfig(s.cfg.Runner), s.catalog,
		s.logger.With().Str("component", "runner").Logger(),
		runner.WithRecorder(m))
	s.runner = r
	if err = m.RegisterPoolGauge(func() int { return r.PoolStats().Active }); err != nil {
		return fmt.Errorf("register pool gauge: %w", err)
	}

	progressStore := progress.NewStore(s.db, s.catalog,
		progress.WithCodeTTL(s.cfg.Progress.CodeTTL),
		progress.WithLogger(s.logger.With().Str("component", "progress").Logger()))

	if s.cfg.Maintenance.Enabled {
		s.cronScheduler = cron.NewScheduler(s.logger.With().Str("component", "cron").Logger())
		job := cron.NewCleanupJob(s.cfg.Maintenance.CleanupSchedule, s.db, s.logger)
		if err = s.cronScheduler.Add(job); err != nil {
			return fmt.Errorf("schedule cleanup: %w", err)
		}
		if err = s.cronScheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	s.gatewayServer = gateway.NewServer(s.cfg.Gateway, gateway.Deps{
		Runner:   s.runner,
		Catalog:  s.catalog,
		Progress: progressStore,
		Metrics:  m,
		Version:  s.version,
	}, s.logger.With().Str("component", "gateway").Logger())

	if s.listener, err = net.Listen("tcp", s.cfg.Gateway.Addr()); err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Gateway.Addr(), err)
	}

	go func(gw *gateway.Server, ln net.Listener) {
		if err := gw.Serve(ln); err != nil {
			select {
			case s.errChan <- err:
			default:
			}
		}
	}(s.gatewayServer, s.listener)

	s.running = true
	s.startedAt = time.Now()
	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("runbox server started")
	return nil
}

// Stop shuts every component down in reverse start order.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	s.logger.Info().Msg("Stopping runbox server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.closeLocked(ctx)

	s.running = false
	s.logger.Info().Msg("runbox server stopped")
	return err
}

func (s *Server) closeLocked(ctx context.Context) error {
	var errs []error

	if s.gatewayServer != nil {
		if err := s.gatewayServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.gatewayServer = nil
	} else if s.listener != nil {
		s.listener.Close()
	}
	s.listener = nil

	if s.cronScheduler != nil {
		if err := s.cronScheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		s.cronScheduler = nil
	}
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	if s.runner != nil {
		if err := s.runner.Close(); err != nil {
			errs = append(errs, err)
		}
		s.runner = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
		s.db = nil
	}
	return errors.Join(errs...)
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the address the gateway listens on, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// StartedAt returns when the server last started.
func (s *Server) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// RunnerConfig maps the runner section of the config file.
func RunnerConfig(c config.RunnerConfig) runner.Config {
	return runner.Config{
		Timeout:          c.Timeout,
		PoolSize:         c.PoolSize,
		WarmVMs:          c.WarmVMs,
		AcquireTimeout:   c.AcquireTimeout,
		MaxCallStackSize: c.MaxCallStackSize,
		Advisory:         c.Advisory,
	}
}

// LoadManifest reads the catalog file, or the built-in one when path is empty.
func LoadManifest(path string) (*catalog.Manifest, error) {
	path, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return catalog.Default(), nil
	}
	m, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return m, nil
}
