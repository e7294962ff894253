// Package server wires the tenantd components together and runs them.
//
// The server owns the shared infrastructure (registry database, Redis state
// store, blob store), the lifecycle orchestrator, and the background workers
// (checkpoint sweeper, event router, situational poller). Serve blocks until
// the context is cancelled, then shuts everything down gracefully: active
// tenants are paused so their state is flushed and checkpointed before the
// process exits.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/pkg/blob"
	"github.com/mkarlsen/tenantd/pkg/checkpoint"
	"github.com/mkarlsen/tenantd/pkg/config"
	"github.com/mkarlsen/tenantd/pkg/lock"
	"github.com/mkarlsen/tenantd/pkg/metrics"
	prommetrics "github.com/mkarlsen/tenantd/pkg/metrics/prometheus"
	"github.com/mkarlsen/tenantd/pkg/orchestrator"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/router"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// Server holds every running component of a tenantd process.
type Server struct {
	cfg *config.Config

	reg    *registry.GORMStore
	states *state.RedisStore
	blobs  *blob.S3Store

	locks       *lock.Service
	checkpoints *checkpoint.Service
	sweeper     *checkpoint.Sweeper
	orch        *orchestrator.Orchestrator
	router      *router.Router
	poller      *router.Poller

	metricsSrv *http.Server
}

// New builds a server from configuration. Infrastructure connections are
// established eagerly so misconfiguration fails at startup, not first use.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	reg, err := config.CreateRegistry(cfg)
	if err != nil {
		return nil, err
	}

	states, err := config.CreateStateStore(cfg)
	if err != nil {
		reg.Close()
		return nil, err
	}

	blobs, err := config.CreateBlobStore(ctx, cfg)
	if err != nil {
		states.Close()
		reg.Close()
		return nil, err
	}

	locks := config.CreateLockService(states, prommetrics.NewLockMetrics())

	ledger := orchestrator.NewLedger()
	checkpoints := checkpoint.NewService(
		states, blobs, reg, cfg.Checkpoint.IndexSize, prommetrics.NewCheckpointMetrics())
	sweeper := checkpoint.NewSweeper(checkpoints, ledger, cfg.Checkpoint.Sweeper)

	runtime := orchestrator.NewDockerRuntime(cfg.Runtime)
	orch := orchestrator.New(
		cfg.Orchestrator, reg, states, blobs, checkpoints, runtime, ledger,
		prommetrics.NewLifecycleMetrics())

	invoker := router.NewWebhookInvoker(cfg.Router.Webhook)
	rtr := router.New(
		cfg.Router.Subscriptions, invoker, states, reg, prommetrics.NewRouterMetrics())
	poller := router.NewPoller(rtr, ledger, cfg.Router.Poller)

	s := &Server{
		cfg:         cfg,
		reg:         reg,
		states:      states,
		blobs:       blobs,
		locks:       locks,
		checkpoints: checkpoints,
		sweeper:     sweeper,
		orch:        orch,
		router:      rtr,
		poller:      poller,
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
	}

	return s, nil
}

// Orchestrator exposes the lifecycle orchestrator for callers that drive
// tenants directly (the CLI does).
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}

// Registry exposes the tenant registry.
func (s *Server) Registry() *registry.GORMStore {
	return s.reg
}

// Locks exposes the lock service.
func (s *Server) Locks() *lock.Service {
	return s.locks
}

// Checkpoints exposes the checkpoint service.
func (s *Server) Checkpoints() *checkpoint.Service {
	return s.checkpoints
}

// Close releases the infrastructure connections without touching tenants.
// Short-lived callers (the CLI) use this; a serving process goes through
// shutdown instead, which pauses active tenants first.
func (s *Server) Close() error {
	var errs []error
	if err := s.blobs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("blob store: %w", err))
	}
	if err := s.states.Close(); err != nil {
		errs = append(errs, fmt.Errorf("state store: %w", err))
	}
	if err := s.reg.Close(); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}
	return errors.Join(errs...)
}

// Serve starts the background workers and blocks until ctx is cancelled or
// a component fails. Shutdown is graceful within the configured timeout.
//
// Tenants left active by an earlier process are adopted into the ledger
// first, so the sweeper, the poller, and shutdown pause see them.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.orch.AdoptActive(ctx); err != nil {
		return fmt.Errorf("failed to adopt active tenants: %w", err)
	}
	if err := s.router.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event router: %w", err)
	}
	s.sweeper.Start(ctx)
	s.poller.Start(ctx)

	errCh := make(chan error, 1)
	if s.metricsSrv != nil {
		logger.Info("Metrics endpoint listening", logger.KeyEndpoint, s.metricsSrv.Addr)
		go func() {
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
	}

	logger.Info("Server running",
		"active_cap", s.cfg.Orchestrator.MaxActiveTenants,
		"sweep_interval", s.cfg.Checkpoint.Sweeper.Interval,
		"subscribers", len(s.cfg.Router.Subscriptions))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.shutdown()
		return err
	}

	s.shutdown()
	return nil
}

// shutdown pauses every active tenant, stops the workers, and closes the
// infrastructure connections. Pause failures are logged per tenant; the
// shutdown continues regardless so the process can exit.
func (s *Server) shutdown() {
	logger.Info("Shutting down", "timeout", s.cfg.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// Stop producing new work before suspending tenants.
	s.poller.Stop()
	s.router.Stop()

	if err := s.orch.PauseAll(ctx); err != nil {
		var partial *orchestrator.PartialFailureError
		if errors.As(err, &partial) {
			for id, perr := range partial.Errors {
				logger.Error("Failed to pause tenant during shutdown",
					logger.KeyTenant, id, logger.KeyError, perr)
			}
		} else {
			logger.Error("Failed to pause tenants during shutdown", logger.KeyError, err)
		}
	}

	s.sweeper.Stop()

	if s.metricsSrv != nil {
		shutdownCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown error", logger.KeyError, err)
		}
		cancelMetrics()
	}

	if err := s.blobs.Close(); err != nil {
		logger.Warn("Blob store close error", logger.KeyError, err)
	}
	if err := s.states.Close(); err != nil {
		logger.Warn("State store close error", logger.KeyError, err)
	}
	if err := s.reg.Close(); err != nil {
		logger.Warn("Registry close error", logger.KeyError, err)
	}

	logger.Info("Shutdown complete")
}
