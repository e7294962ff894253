package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/state"
)

type invocation struct {
	subscriber string
	payload    map[string]any
}

// fakeInvoker records invocations, can fail selected subscribers, and can
// answer with a canned response body.
type fakeInvoker struct {
	mu       sync.Mutex
	calls    []invocation
	fail     map[string]bool
	response []byte
}

func (f *fakeInvoker) Invoke(_ context.Context, sub Subscription, payload map[string]any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invocation{subscriber: sub.Subscriber, payload: payload})
	if f.fail[sub.Subscriber] {
		return nil, errors.New("subscriber exploded")
	}
	return f.response, nil
}

func (f *fakeInvoker) invoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.subscriber
	}
	return names
}

type staticLister []string

func (l staticLister) ActiveTenantIDs() []string { return l }

func TestEventDispatchExactness(t *testing.T) {
	ctx := context.Background()
	states := state.NewMemoryStore()
	invoker := &fakeInvoker{}

	subs := []Subscription{
		{Subscriber: "a", Event: "x", Endpoint: "http://a"},
		{Subscriber: "b", Endpoint: "http://b", Condition: &Condition{
			Kind: CondEquals, Field: "phase", Value: "review",
		}},
	}
	r := New(subs, invoker, states, nil, nil)
	poller := NewPoller(r, staticLister{"t1"}, PollerConfig{Interval: time.Hour})

	// Publishing "x" invokes exactly A.
	r.HandleEvent(ctx, state.Event{Name: "x", Payload: map[string]any{"k": "v"}})
	if got := invoker.invoked(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected exactly [a], got %v", got)
	}

	// P does not hold yet: a poll invokes nobody new.
	poller.PollOnce(ctx)
	if got := invoker.invoked(); len(got) != 1 {
		t.Fatalf("predicate fired while false: %v", got)
	}

	// Once P holds, the poll invokes B.
	states.SetStateFields(ctx, "t1", map[string]string{"phase": "review"})
	poller.PollOnce(ctx)
	if got := invoker.invoked(); len(got) != 2 || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
}

func TestFailingSubscriberDoesNotBlockSiblings(t *testing.T) {
	ctx := context.Background()
	states := state.NewMemoryStore()
	invoker := &fakeInvoker{fail: map[string]bool{"first": true}}

	subs := []Subscription{
		{Subscriber: "first", Event: "x", Endpoint: "http://first"},
		{Subscriber: "second", Event: "x", Endpoint: "http://second"},
	}
	r := New(subs, invoker, states, nil, nil)

	r.HandleEvent(ctx, state.Event{Name: "x"})
	got := invoker.invoked()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("expected both subscribers attempted, got %v", got)
	}
}

func TestProbabilisticDispatch(t *testing.T) {
	ctx := context.Background()
	states := state.NewMemoryStore()

	subs := []Subscription{
		{Subscriber: "lucky", Endpoint: "http://lucky", Chance: 0.5},
	}

	t.Run("fires when the roll lands", func(t *testing.T) {
		invoker := &fakeInvoker{}
		r := New(subs, invoker, states, nil, nil)
		r.roll = func() float64 { return 0.1 }

		r.HandleEvent(ctx, state.Event{Name: "anything"})
		if got := invoker.invoked(); len(got) != 1 || got[0] != "lucky" {
			t.Errorf("expected probabilistic fire, got %v", got)
		}
	})

	t.Run("silent when the roll misses", func(t *testing.T) {
		invoker := &fakeInvoker{}
		r := New(subs, invoker, states, nil, nil)
		r.roll = func() float64 { return 0.9 }

		r.HandleEvent(ctx, state.Event{Name: "anything"})
		if got := invoker.invoked(); len(got) != 0 {
			t.Errorf("expected no fire, got %v", got)
		}
	})

	t.Run("additive, not double", func(t *testing.T) {
		both := []Subscription{
			{Subscriber: "lucky", Event: "x", Endpoint: "http://lucky", Chance: 1},
		}
		invoker := &fakeInvoker{}
		r := New(both, invoker, states, nil, nil)
		r.roll = func() float64 { return 0 }

		r.HandleEvent(ctx, state.Event{Name: "x"})
		if got := invoker.invoked(); len(got) != 1 {
			t.Errorf("event match plus chance should fire once, got %v", got)
		}
	})
}

func TestDispatchPayloadShape(t *testing.T) {
	ctx := context.Background()
	states := state.NewMemoryStore()
	invoker := &fakeInvoker{}

	r := New([]Subscription{
		{Subscriber: "a", Event: "tenant:created", Endpoint: "http://a"},
	}, invoker, states, nil, nil)

	r.HandleEvent(ctx, state.Event{
		Name:    "tenant:created",
		Payload: map[string]any{"tenant_id": "t1"},
	})

	if len(invoker.calls) != 1 {
		t.Fatalf("expected one invocation, got %d", len(invoker.calls))
	}
	payload := invoker.calls[0].payload
	if payload["subscriber"] != "a" {
		t.Errorf("payload missing subscriber: %+v", payload)
	}
	if payload["tenant_id"] != "t1" {
		t.Errorf("payload missing event fields: %+v", payload)
	}
	if _, ok := payload["triggered_at"].(string); !ok {
		t.Errorf("payload missing triggered_at: %+v", payload)
	}
}

func TestDispatchEmitsObservabilityEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := state.NewMemoryStore()
	invoker := &fakeInvoker{}

	stream, err := states.SubscribeEvents(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	r := New([]Subscription{
		{Subscriber: "a", Event: "x", Endpoint: "http://a"},
	}, invoker, states, nil, nil)
	r.HandleEvent(ctx, state.Event{Name: "x"})

	select {
	case e := <-stream.Events():
		if e.Name != "router:dispatch" {
			t.Fatalf("expected router:dispatch, got %s", e.Name)
		}
		if e.Payload["subscriber"] != "a" || e.Payload["ok"] != true {
			t.Errorf("unexpected dispatch payload %+v", e.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no observability event emitted")
	}

	// The router must not dispatch on its own telemetry.
	r.HandleEvent(ctx, state.Event{Name: "router:dispatch"})
	if len(invoker.invoked()) != 1 {
		t.Error("router dispatched on its own observability event")
	}
}

func TestSituationalConditions(t *testing.T) {
	ctx := context.Background()

	newPoller := func(cond *Condition) (*Poller, *fakeInvoker, *state.MemoryStore) {
		states := state.NewMemoryStore()
		invoker := &fakeInvoker{}
		r := New([]Subscription{
			{Subscriber: "s", Endpoint: "http://s", Condition: cond},
		}, invoker, states, nil, nil)
		return NewPoller(r, staticLister{"t1"}, PollerConfig{Interval: time.Hour}), invoker, states
	}

	t.Run("count_at_least", func(t *testing.T) {
		poller, invoker, states := newPoller(&Condition{
			Kind: CondCountAtLeast, Queue: state.QueueReview, Count: 2,
		})

		states.PushQueue(ctx, "t1", state.QueueReview, state.QueueEntry{Path: "a", Priority: 1})
		poller.PollOnce(ctx)
		if len(invoker.invoked()) != 0 {
			t.Fatal("fired below threshold")
		}

		states.PushQueue(ctx, "t1", state.QueueReview, state.QueueEntry{Path: "b", Priority: 2})
		poller.PollOnce(ctx)
		if len(invoker.invoked()) != 1 {
			t.Fatal("did not fire at threshold")
		}
	})

	t.Run("elapsed", func(t *testing.T) {
		poller, invoker, states := newPoller(&Condition{
			Kind: CondElapsed, Field: "last_activity", Elapsed: time.Hour,
		})
		base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
		states.SetStateFields(ctx, "t1", map[string]string{
			"last_activity": base.Format(time.RFC3339),
		})

		poller.now = func() time.Time { return base.Add(30 * time.Minute) }
		poller.PollOnce(ctx)
		if len(invoker.invoked()) != 0 {
			t.Fatal("fired before the threshold elapsed")
		}

		poller.now = func() time.Time { return base.Add(2 * time.Hour) }
		poller.PollOnce(ctx)
		if len(invoker.invoked()) != 1 {
			t.Fatal("did not fire after the threshold elapsed")
		}
	})

	t.Run("unknown kind is isolated", func(t *testing.T) {
		poller, invoker, _ := newPoller(&Condition{Kind: "bogus"})
		poller.PollOnce(ctx)
		if len(invoker.invoked()) != 0 {
			t.Fatal("unknown predicate fired")
		}
	})
}

func TestStartStopConsumesBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := state.NewMemoryStore()
	invoker := &fakeInvoker{}

	r := New([]Subscription{
		{Subscriber: "a", Event: "tenant:created", Endpoint: "http://a"},
	}, invoker, states, nil, nil)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	states.PublishEvent(ctx, "tenant:created", map[string]any{"tenant_id": "t1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(invoker.invoked()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	if got := invoker.invoked(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected bus-driven dispatch, got %v", got)
	}
}

func TestWebhookInvoker(t *testing.T) {
	ctx := context.Background()

	t.Run("success posts payload and returns the response", func(t *testing.T) {
		var received map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			_ = json.NewDecoder(req.Body).Decode(&received)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"seen":1}`))
		}))
		defer server.Close()

		invoker := NewWebhookInvoker(WebhookConfig{Timeout: time.Second})
		sub := Subscription{Subscriber: "a", Endpoint: server.URL}
		resp, err := invoker.Invoke(ctx, sub, map[string]any{"subscriber": "a", "k": "v"})
		if err != nil {
			t.Fatalf("invoke failed: %v", err)
		}
		if received["k"] != "v" {
			t.Errorf("payload not delivered: %+v", received)
		}
		if string(resp) != `{"seen":1}` {
			t.Errorf("response body not returned: %q", resp)
		}
	})

	t.Run("non-2xx is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		invoker := NewWebhookInvoker(WebhookConfig{Timeout: time.Second})
		_, err := invoker.Invoke(ctx, Subscription{Subscriber: "a", Endpoint: server.URL}, map[string]any{})
		if err == nil {
			t.Fatal("expected error for 500 response")
		}
	})

	t.Run("unreachable endpoint is a failure", func(t *testing.T) {
		invoker := NewWebhookInvoker(WebhookConfig{Timeout: 100 * time.Millisecond})
		_, err := invoker.Invoke(ctx, Subscription{Subscriber: "a", Endpoint: "http://127.0.0.1:1/x"}, map[string]any{})
		if err == nil {
			t.Fatal("expected error for unreachable endpoint")
		}
	})
}

func TestSubscriberContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	states := state.NewMemoryStore()
	contexts := registry.NewMemoryStore()
	invoker := &fakeInvoker{response: []byte(`{"iterations":3}`)}

	r := New([]Subscription{
		{Subscriber: "a", Event: "tenant:progress", Endpoint: "http://a"},
	}, invoker, states, contexts, nil)

	// First invocation has no stored context; the JSON response becomes it.
	r.HandleEvent(ctx, state.Event{
		Name:    "tenant:progress",
		Payload: map[string]any{"tenant_id": "t1"},
	})
	if _, ok := invoker.calls[0].payload["context"]; ok {
		t.Error("first invocation should carry no context")
	}
	sc, err := contexts.GetSubscriberContext(ctx, "t1", "a")
	if err != nil {
		t.Fatalf("context not stored: %v", err)
	}
	if sc.Context != `{"iterations":3}` {
		t.Errorf("stored context %q", sc.Context)
	}

	// The second invocation on the same tenant carries it back.
	r.HandleEvent(ctx, state.Event{
		Name:    "tenant:progress",
		Payload: map[string]any{"tenant_id": "t1"},
	})
	got, ok := invoker.calls[1].payload["context"].(json.RawMessage)
	if !ok || string(got) != `{"iterations":3}` {
		t.Errorf("context not delivered: %v", invoker.calls[1].payload["context"])
	}

	// A different tenant starts clean.
	r.HandleEvent(ctx, state.Event{
		Name:    "tenant:progress",
		Payload: map[string]any{"tenant_id": "t2"},
	})
	if _, ok := invoker.calls[2].payload["context"]; ok {
		t.Error("context leaked across tenants")
	}
}

func TestSubscriberContextSkipsNonJSONResponse(t *testing.T) {
	ctx := context.Background()
	states := state.NewMemoryStore()
	contexts := registry.NewMemoryStore()
	invoker := &fakeInvoker{response: []byte("ok")}

	r := New([]Subscription{
		{Subscriber: "a", Event: "tenant:progress", Endpoint: "http://a"},
	}, invoker, states, contexts, nil)

	r.HandleEvent(ctx, state.Event{
		Name:    "tenant:progress",
		Payload: map[string]any{"tenant_id": "t1"},
	})
	if _, err := contexts.GetSubscriberContext(ctx, "t1", "a"); !errors.Is(err, registry.ErrContextNotFound) {
		t.Errorf("non-JSON response must not be stored as context, got %v", err)
	}
}
