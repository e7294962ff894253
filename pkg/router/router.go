// Package router matches bus events and periodic state probes against a
// declarative subscriber table.
//
// Three trigger kinds are supported per subscription:
//
//   - event: fires on a named bus event, via an event-name index built once
//     at startup.
//   - situational: a predicate over per-tenant shared state, evaluated on a
//     fixed polling interval. Needed because the condition can become true
//     without any discrete event announcing it.
//   - probabilistic: rolled independently on every discrete event with a
//     fixed chance, additive to any deterministic match.
//
// Subscriber failures are logged and counted, never propagated: one failing
// subscriber cannot block its siblings for the same trigger.
//
// Subscribers are stateless between invocations; the registry carries a
// per-tenant per-subscriber context blob on their behalf. A tenant-scoped
// trigger delivers the stored blob alongside the payload, and a subscriber's
// successful JSON response replaces it.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// Condition kinds for situational subscriptions.
const (
	CondEquals       = "equals"
	CondCountAtLeast = "count_at_least"
	CondElapsed      = "elapsed"
)

// Condition is a situational predicate over per-tenant state.
type Condition struct {
	// Kind selects the predicate: equals, count_at_least, elapsed.
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Field is the state-hash field for equals and elapsed.
	Field string `mapstructure:"field" yaml:"field"`

	// Value is the expected field value for equals.
	Value string `mapstructure:"value" yaml:"value"`

	// Queue and Count are for count_at_least: fire when the queue holds at
	// least Count entries.
	Queue string `mapstructure:"queue" yaml:"queue"`
	Count int64  `mapstructure:"count" yaml:"count"`

	// Elapsed is the duration threshold for elapsed: fire when now minus
	// the field's RFC3339 timestamp reaches it.
	Elapsed time.Duration `mapstructure:"elapsed" yaml:"elapsed"`
}

// Subscription is one row of the static subscriber table, loaded from
// configuration at startup.
type Subscription struct {
	// Subscriber is the unique subscriber name.
	Subscriber string `mapstructure:"subscriber" yaml:"subscriber"`

	// Tier groups subscribers for operators; the router does not interpret it.
	Tier string `mapstructure:"tier" yaml:"tier"`

	// Endpoint is the invocation target passed to the Invoker.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Event names the bus event this subscription fires on. Empty for
	// purely situational or probabilistic subscriptions.
	Event string `mapstructure:"event" yaml:"event"`

	// Condition makes the subscription situational.
	Condition *Condition `mapstructure:"condition" yaml:"condition"`

	// Chance in (0,1] makes the subscription probabilistic: rolled on
	// every discrete event, additive to deterministic matches.
	Chance float64 `mapstructure:"chance" yaml:"chance"`
}

// Metrics provides observability for dispatches. Pass nil to disable.
type Metrics interface {
	RecordDispatch(subscriber, trigger string, err error)
}

// ContextStore persists the per-tenant per-subscriber context blob carried
// between invocations. Pass nil to disable context delivery.
type ContextStore interface {
	GetSubscriberContext(ctx context.Context, tenantID, subscriber string) (*registry.SubscriberContext, error)
	PutSubscriberContext(ctx context.Context, sc *registry.SubscriberContext) error
}

// Router dispatches triggers to subscribers.
type Router struct {
	subs     []Subscription
	byEvent  map[string][]Subscription // event-name index, built once
	rolled   []Subscription            // subscriptions with a chance
	invoker  Invoker
	states   state.Store
	contexts ContextStore
	metrics  Metrics
	roll     func() float64

	mu        sync.Mutex
	started   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New builds a router over a static subscription table.
func New(subs []Subscription, invoker Invoker, states state.Store, contexts ContextStore, metrics Metrics) *Router {
	byEvent := make(map[string][]Subscription)
	var rolled []Subscription
	for _, sub := range subs {
		if sub.Event != "" {
			byEvent[sub.Event] = append(byEvent[sub.Event], sub)
		}
		if sub.Chance > 0 {
			rolled = append(rolled, sub)
		}
	}
	return &Router{
		subs:      subs,
		byEvent:   byEvent,
		rolled:    rolled,
		invoker:   invoker,
		states:    states,
		contexts:  contexts,
		metrics:   metrics,
		roll:      rand.Float64,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start consumes the global event bus until Stop or context cancellation.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	stream, err := r.states.SubscribeEvents(ctx)
	if err != nil {
		return err
	}

	logger.Info("Starting event router", logger.KeyCount, len(r.subs))
	go r.run(ctx, stream)
	return nil
}

// Stop halts event consumption and waits for the loop to exit.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	close(r.stopCh)
	<-r.stoppedCh
	logger.Info("Event router stopped")
}

func (r *Router) run(ctx context.Context, stream state.EventStream) {
	defer close(r.stoppedCh)
	defer stream.Close()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-stream.Events():
			if !ok {
				return
			}
			r.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent dispatches one discrete bus event: every subscription indexed
// under the event name fires, and every probabilistic subscription rolls its
// independent chance. Router observability events are skipped to avoid
// self-feedback.
func (r *Router) HandleEvent(ctx context.Context, event state.Event) {
	if isObservabilityEvent(event.Name) {
		return
	}

	fired := make(map[string]bool)
	for _, sub := range r.byEvent[event.Name] {
		r.dispatch(ctx, sub, event.Name, event.Payload)
		fired[sub.Subscriber] = true
	}
	for _, sub := range r.rolled {
		if fired[sub.Subscriber] {
			continue
		}
		if r.roll() < sub.Chance {
			r.dispatch(ctx, sub, "chance:"+event.Name, event.Payload)
		}
	}
}

// dispatch invokes one subscriber with the trigger payload. Failures are
// logged and counted, never returned. For tenant-scoped triggers the stored
// subscriber context rides along, and a successful JSON response becomes
// the stored context for the next invocation on that tenant.
func (r *Router) dispatch(ctx context.Context, sub Subscription, trigger string, payload map[string]any) {
	body := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		body[k] = v
	}
	body["subscriber"] = sub.Subscriber
	body["triggered_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	tenantID, _ := payload["tenant_id"].(string)
	if r.contexts != nil && tenantID != "" {
		sc, cerr := r.contexts.GetSubscriberContext(ctx, tenantID, sub.Subscriber)
		switch {
		case cerr == nil && sc.Context != "":
			body["context"] = json.RawMessage(sc.Context)
		case cerr != nil && !errors.Is(cerr, registry.ErrContextNotFound):
			logger.Warn("Failed to load subscriber context",
				logger.KeySubscriber, sub.Subscriber,
				logger.KeyTenant, tenantID,
				logger.KeyError, cerr)
		}
	}

	resp, err := r.invoker.Invoke(ctx, sub, body)
	if r.metrics != nil {
		r.metrics.RecordDispatch(sub.Subscriber, trigger, err)
	}

	if err == nil && r.contexts != nil && tenantID != "" && len(resp) > 0 && json.Valid(resp) {
		if perr := r.contexts.PutSubscriberContext(ctx, &registry.SubscriberContext{
			TenantID:   tenantID,
			Subscriber: sub.Subscriber,
			Context:    string(resp),
		}); perr != nil {
			logger.Warn("Failed to store subscriber context",
				logger.KeySubscriber, sub.Subscriber,
				logger.KeyTenant, tenantID,
				logger.KeyError, perr)
		}
	}

	result := map[string]any{
		"subscriber": sub.Subscriber,
		"trigger":    trigger,
		"ok":         err == nil,
	}
	if err != nil {
		logger.Error("Subscriber invocation failed",
			logger.KeySubscriber, sub.Subscriber,
			logger.KeyTrigger, trigger,
			logger.KeyEndpoint, sub.Endpoint,
			logger.KeyError, err)
	} else {
		logger.Debug("Subscriber invoked",
			logger.KeySubscriber, sub.Subscriber,
			logger.KeyTrigger, trigger)
	}
	if perr := r.states.PublishEvent(ctx, "router:dispatch", result); perr != nil {
		logger.Warn("Failed to publish dispatch event", logger.KeyError, perr)
	}
}

// isObservabilityEvent reports whether the event is the router's own
// dispatch telemetry.
func isObservabilityEvent(name string) bool {
	return len(name) >= 7 && name[:7] == "router:"
}
