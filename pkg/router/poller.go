package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// TenantLister provides the tenants whose state the poller probes.
type TenantLister interface {
	ActiveTenantIDs() []string
}

// PollerConfig configures the situational poller.
type PollerConfig struct {
	// Interval between evaluation rounds. Default: 30s.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *PollerConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
}

// Poller evaluates situational subscriptions against per-tenant state on a
// fixed interval.
//
// Rounds run on the ticker goroutine, so two rounds never overlap: a slow
// round delays the next tick. One predicate's failure is logged and does
// not stop the rest of the round.
type Poller struct {
	router  *Router
	tenants TenantLister
	cfg     PollerConfig
	now     func() time.Time

	mu        sync.Mutex
	started   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewPoller creates a situational poller over the router's subscription
// table.
func NewPoller(router *Router, tenants TenantLister, cfg PollerConfig) *Poller {
	cfg.ApplyDefaults()
	return &Poller{
		router:    router,
		tenants:   tenants,
		cfg:       cfg,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins periodic evaluation. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	logger.Info("Starting situational poller", "interval", p.cfg.Interval)
	go p.run(ctx)
}

// Stop halts polling and waits for an in-flight round to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopCh)
	<-p.stoppedCh
	logger.Info("Situational poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce evaluates every situational subscription against every tracked
// tenant, dispatching on each predicate that holds.
func (p *Poller) PollOnce(ctx context.Context) {
	ids := p.tenants.ActiveTenantIDs()
	for _, sub := range p.router.subs {
		if sub.Condition == nil {
			continue
		}
		for _, tenantID := range ids {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			default:
			}

			holds, err := p.evaluate(ctx, tenantID, sub.Condition)
			if err != nil {
				logger.Warn("Situational predicate failed",
					logger.KeySubscriber, sub.Subscriber,
					logger.KeyTenant, tenantID,
					logger.KeyError, err)
				continue
			}
			if holds {
				p.router.dispatch(ctx, sub, "situational:"+sub.Condition.Kind,
					map[string]any{"tenant_id": tenantID})
			}
		}
	}
}

// evaluate runs one predicate against one tenant's state.
func (p *Poller) evaluate(ctx context.Context, tenantID string, cond *Condition) (bool, error) {
	switch cond.Kind {
	case CondEquals:
		val, ok, err := p.router.states.StateField(ctx, tenantID, cond.Field)
		if err != nil {
			return false, err
		}
		return ok && val == cond.Value, nil

	case CondCountAtLeast:
		queue := cond.Queue
		if queue == "" {
			queue = state.QueuePending
		}
		n, err := p.router.states.QueueLen(ctx, tenantID, queue)
		if err != nil {
			return false, err
		}
		return n >= cond.Count, nil

	case CondElapsed:
		val, ok, err := p.router.states.StateField(ctx, tenantID, cond.Field)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		at, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return false, fmt.Errorf("field %s is not a timestamp: %w", cond.Field, err)
		}
		return p.now().Sub(at) >= cond.Elapsed, nil

	default:
		return false, fmt.Errorf("unknown condition kind %q", cond.Kind)
	}
}
