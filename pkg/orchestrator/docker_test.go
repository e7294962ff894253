package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// scriptedCLI replaces the runtime's command runner, recording every
// invocation and answering by subcommand.
type scriptedCLI struct {
	calls   [][]string
	respond map[string]func(args []string) ([]byte, error)
}

func (c *scriptedCLI) run(_ context.Context, args ...string) ([]byte, error) {
	c.calls = append(c.calls, args)
	if fn, ok := c.respond[args[0]]; ok {
		return fn(args)
	}
	return nil, nil
}

func (c *scriptedCLI) subcommands() []string {
	names := make([]string, len(c.calls))
	for i, call := range c.calls {
		names[i] = call[0]
	}
	return names
}

func newScriptedRuntime(respond map[string]func(args []string) ([]byte, error)) (*DockerRuntime, *scriptedCLI) {
	cli := &scriptedCLI{respond: respond}
	rt := NewDockerRuntime(DockerConfig{})
	rt.run = cli.run
	return rt, cli
}

func noSuchContainer(name string) error {
	return fmt.Errorf("Error: No such container: %s", name)
}

func TestDockerStartClearsStaleContainer(t *testing.T) {
	ctx := context.Background()

	t.Run("leftover container is replaced", func(t *testing.T) {
		// rm succeeds: a container with the tenant's name survived an
		// earlier process and is cleared before run.
		rt, cli := newScriptedRuntime(map[string]func([]string) ([]byte, error){
			"run": func([]string) ([]byte, error) { return []byte("abc123\n"), nil },
		})
		h, err := rt.RequestContainer(ctx, "t1", Limits{})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if err := h.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if got := cli.subcommands(); len(got) != 2 || got[0] != "rm" || got[1] != "run" {
			t.Fatalf("expected [rm run], got %v", got)
		}
		if name := cli.calls[0][2]; name != "tenantd-t1" {
			t.Errorf("rm targeted %q", name)
		}
	})

	t.Run("no leftover is not an error", func(t *testing.T) {
		rt, cli := newScriptedRuntime(map[string]func([]string) ([]byte, error){
			"rm":  func(args []string) ([]byte, error) { return nil, noSuchContainer(args[2]) },
			"run": func([]string) ([]byte, error) { return []byte("abc123\n"), nil },
		})
		h, _ := rt.RequestContainer(ctx, "t1", Limits{})
		if err := h.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if got := cli.subcommands(); len(got) != 2 || got[1] != "run" {
			t.Fatalf("expected [rm run], got %v", got)
		}
	})

	t.Run("daemon failure surfaces", func(t *testing.T) {
		rt, _ := newScriptedRuntime(map[string]func([]string) ([]byte, error){
			"rm": func([]string) ([]byte, error) { return nil, errors.New("cannot connect to the docker daemon") },
		})
		h, _ := rt.RequestContainer(ctx, "t1", Limits{})
		if err := h.Start(ctx); err == nil {
			t.Fatal("expected error when the stale container cannot be cleared")
		}
	})
}

func TestDockerStartAfterCreateUsesStart(t *testing.T) {
	ctx := context.Background()
	rt, cli := newScriptedRuntime(map[string]func([]string) ([]byte, error){
		"run": func([]string) ([]byte, error) { return []byte("abc123\n"), nil },
	})

	h, _ := rt.RequestContainer(ctx, "t1", Limits{})
	if err := h.Start(ctx); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := h.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := h.Start(ctx); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	got := cli.subcommands()
	if len(got) != 4 || got[3] != "start" {
		t.Fatalf("expected the second start to reuse the container, got %v", got)
	}
}

func TestDockerLookupContainer(t *testing.T) {
	ctx := context.Background()

	t.Run("existing container reattaches by name", func(t *testing.T) {
		rt, cli := newScriptedRuntime(map[string]func([]string) ([]byte, error){
			"inspect": func([]string) ([]byte, error) { return []byte("exited\n"), nil },
		})

		h, ok, err := rt.LookupContainer(ctx, "t1")
		if err != nil || !ok {
			t.Fatalf("lookup failed: ok=%v err=%v", ok, err)
		}
		if h.ID() != "tenantd-t1" {
			t.Errorf("unexpected handle identity %q", h.ID())
		}

		// The reattached handle starts in place instead of recreating.
		if err := h.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if got := cli.subcommands(); got[len(got)-1] != "start" {
			t.Errorf("expected docker start, got %v", got)
		}
	})

	t.Run("missing container", func(t *testing.T) {
		rt, _ := newScriptedRuntime(map[string]func([]string) ([]byte, error){
			"inspect": func(args []string) ([]byte, error) { return nil, noSuchContainer(args[3]) },
		})
		_, ok, err := rt.LookupContainer(ctx, "t1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("lookup reported a container that does not exist")
		}
	})

	t.Run("daemon failure surfaces", func(t *testing.T) {
		rt, _ := newScriptedRuntime(map[string]func([]string) ([]byte, error){
			"inspect": func([]string) ([]byte, error) { return nil, errors.New("cannot connect to the docker daemon") },
		})
		if _, _, err := rt.LookupContainer(ctx, "t1"); err == nil {
			t.Fatal("expected daemon error to surface")
		}
	})
}
