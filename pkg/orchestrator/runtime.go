package orchestrator

import (
	"context"
)

// ContainerStatus is the coarse runtime status of a tenant container.
type ContainerStatus string

const (
	ContainerCreated ContainerStatus = "created"
	ContainerRunning ContainerStatus = "running"
	ContainerStopped ContainerStatus = "stopped"
	ContainerGone    ContainerStatus = "gone"
)

// Limits caps a container's resources.
type Limits struct {
	CPUs     float64 `mapstructure:"cpus" yaml:"cpus"`
	MemoryMB int64   `mapstructure:"memory_mb" yaml:"memory_mb"`
}

// Handle is the orchestrator's view of one container. The orchestrator never
// inspects container internals beyond these calls.
type Handle interface {
	// ID returns the runtime's container identifier.
	ID() string

	// Start launches the container.
	Start(ctx context.Context) error

	// Stop halts the container without destroying it. A stopped container
	// can be started again with its filesystem intact.
	Stop(ctx context.Context) error

	// Remove destroys the container and its filesystem.
	Remove(ctx context.Context) error

	// Exec runs argv inside the running container and returns its standard
	// output. Archive streams tar output through this, so stderr is kept
	// out of the returned bytes.
	Exec(ctx context.Context, argv []string) ([]byte, error)

	// Status returns the container's current runtime status.
	Status(ctx context.Context) (ContainerStatus, error)

	// SetEnv sets environment variables applied on the next Start.
	SetEnv(ctx context.Context, env map[string]string) error
}

// ContainerRuntime provisions containers for tenants.
type ContainerRuntime interface {
	// RequestContainer allocates a new container bound to the tenant.
	// The container is created but not started.
	RequestContainer(ctx context.Context, tenantID string, limits Limits) (Handle, error)

	// LookupContainer finds the tenant's existing container, whether this
	// process or an earlier one created it. ok is false when the tenant
	// has no container.
	LookupContainer(ctx context.Context, tenantID string) (Handle, bool, error)
}
