package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/mkarlsen/tenantd/internal/logger"
)

// TenantLister provides the set of tenants the sweeper snapshots. The
// orchestrator's active-tenant ledger implements this.
type TenantLister interface {
	ActiveTenantIDs() []string
}

// SweeperConfig holds configuration for the periodic sweeper.
type SweeperConfig struct {
	// Interval between sweeps. Default: 5 minutes.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// SaveTimeout bounds a single tenant's snapshot. Default: 1 minute.
	SaveTimeout time.Duration `mapstructure:"save_timeout" yaml:"save_timeout"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *SweeperConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = 5 * time.Minute
	}
	if c.SaveTimeout == 0 {
		c.SaveTimeout = time.Minute
	}
}

// Sweeper periodically snapshots every tracked tenant.
//
// Sweeps run on the ticker goroutine itself, so two sweeps never overlap:
// a slow sweep delays the next tick rather than racing it. One tenant's
// failure is logged and does not stop the rest of the sweep.
type Sweeper struct {
	service *Service
	tenants TenantLister
	cfg     SweeperConfig

	mu        sync.Mutex
	started   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewSweeper creates a sweeper over the given tenant set.
func NewSweeper(service *Service, tenants TenantLister, cfg SweeperConfig) *Sweeper {
	cfg.ApplyDefaults()
	return &Sweeper{
		service:   service,
		tenants:   tenants,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins periodic sweeping. Calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	logger.Info("Starting checkpoint sweeper", "interval", s.cfg.Interval)
	go s.run(ctx)
}

// Stop halts sweeping and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.stoppedCh
	logger.Info("Checkpoint sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce snapshots every tracked tenant, isolating per-tenant failures.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ids := s.tenants.ActiveTenantIDs()
	if len(ids) == 0 {
		return
	}

	start := time.Now()
	var failed int
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		saveCtx, cancel := context.WithTimeout(ctx, s.cfg.SaveTimeout)
		_, err := s.service.Save(saveCtx, id)
		cancel()
		if err != nil {
			failed++
			logger.Error("Periodic checkpoint failed",
				logger.KeyTenant, id,
				logger.KeyError, err)
		}
	}

	logger.Debug("Checkpoint sweep completed",
		logger.KeyCount, len(ids),
		"failed", failed,
		logger.KeyDurationMs, time.Since(start).Milliseconds())
}
