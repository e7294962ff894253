package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mkarlsen/tenantd/internal/logger"
)

// DockerConfig configures the Docker-CLI-backed container runtime.
type DockerConfig struct {
	// Binary is the docker client binary. Default: "docker" (podman works
	// too, its CLI is compatible for the subcommands used here).
	Binary string `mapstructure:"binary" yaml:"binary"`

	// Image is the worker image run for every tenant.
	Image string `mapstructure:"image" yaml:"image"`

	// Network is the docker network containers join. Empty uses the
	// runtime default.
	Network string `mapstructure:"network" yaml:"network"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *DockerConfig) ApplyDefaults() {
	if c.Binary == "" {
		c.Binary = "docker"
	}
	if c.Image == "" {
		c.Image = "tenantd-worker:latest"
	}
}

// DockerRuntime implements ContainerRuntime by shelling out to the docker
// CLI. Each tenant gets one named container; the name doubles as the stable
// handle identity across stop/start cycles and across orchestrator
// processes.
type DockerRuntime struct {
	cfg DockerConfig
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// NewDockerRuntime creates a docker-backed runtime.
func NewDockerRuntime(cfg DockerConfig) *DockerRuntime {
	cfg.ApplyDefaults()
	r := &DockerRuntime{cfg: cfg}
	r.run = r.exec
	return r
}

// containerName is the tenant's stable container name.
func containerName(tenantID string) string {
	return "tenantd-" + tenantID
}

func (r *DockerRuntime) RequestContainer(_ context.Context, tenantID string, limits Limits) (Handle, error) {
	return &dockerHandle{
		rt:     r,
		name:   containerName(tenantID),
		limits: limits,
		env:    make(map[string]string),
	}, nil
}

// LookupContainer reattaches to an existing container by the tenant's
// stable name. The returned handle starts with plain docker start; env and
// limits were fixed when the container was created.
func (r *DockerRuntime) LookupContainer(ctx context.Context, tenantID string) (Handle, bool, error) {
	name := containerName(tenantID)
	if _, err := r.run(ctx, "inspect", "-f", "{{.State.Status}}", name); err != nil {
		if isNoSuchContainer(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &dockerHandle{
		rt:      r,
		name:    name,
		env:     make(map[string]string),
		created: true,
	}, true, nil
}

func (r *DockerRuntime) exec(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.cfg.Binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s %s: %s", r.cfg.Binary, args[0], msg)
	}
	return stdout.Bytes(), nil
}

// dockerHandle is one tenant's container. Env accumulates until the first
// Start creates the container; docker fixes env at creation, so later
// SetEnv calls only take effect if the container is recreated.
type dockerHandle struct {
	rt     *DockerRuntime
	name   string
	limits Limits

	mu      sync.Mutex
	env     map[string]string
	created bool
}

func (h *dockerHandle) ID() string { return h.name }

func (h *dockerHandle) SetEnv(_ context.Context, env map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.created {
		return fmt.Errorf("container %s already created, env is fixed", h.name)
	}
	for k, v := range env {
		h.env[k] = v
	}
	return nil
}

func (h *dockerHandle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.created {
		_, err := h.rt.run(ctx, "start", h.name)
		return err
	}

	// A container with this name may survive a crashed orchestrator. The
	// name is the identity, so any leftover belongs to this tenant: clear
	// it before run, or the name collision fails every retry.
	if _, err := h.rt.run(ctx, "rm", "-f", h.name); err != nil && !isNoSuchContainer(err) {
		return err
	}

	args := []string{"run", "-d", "--name", h.name}
	if h.limits.CPUs > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%g", h.limits.CPUs))
	}
	if h.limits.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", h.limits.MemoryMB))
	}
	if h.rt.cfg.Network != "" {
		args = append(args, "--network", h.rt.cfg.Network)
	}
	for k, v := range h.env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, h.rt.cfg.Image)

	if _, err := h.rt.run(ctx, args...); err != nil {
		return err
	}
	h.created = true

	logger.Debug("Container started",
		logger.KeyContainer, h.name,
		"image", h.rt.cfg.Image)
	return nil
}

func (h *dockerHandle) Stop(ctx context.Context) error {
	_, err := h.rt.run(ctx, "stop", h.name)
	return err
}

func (h *dockerHandle) Remove(ctx context.Context) error {
	_, err := h.rt.run(ctx, "rm", "-f", h.name)
	if err != nil && isNoSuchContainer(err) {
		return nil
	}
	return err
}

func (h *dockerHandle) Exec(ctx context.Context, argv []string) ([]byte, error) {
	args := append([]string{"exec", h.name}, argv...)
	return h.rt.run(ctx, args...)
}

func (h *dockerHandle) Status(ctx context.Context) (ContainerStatus, error) {
	out, err := h.rt.run(ctx, "inspect", "-f", "{{.State.Status}}", h.name)
	if err != nil {
		if isNoSuchContainer(err) {
			return ContainerGone, nil
		}
		return "", err
	}

	switch strings.TrimSpace(string(out)) {
	case "running":
		return ContainerRunning, nil
	case "created":
		return ContainerCreated, nil
	case "exited", "paused", "dead":
		return ContainerStopped, nil
	default:
		return ContainerStopped, nil
	}
}

func isNoSuchContainer(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such container") ||
		strings.Contains(msg, "no such object")
}
