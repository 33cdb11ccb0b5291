package sandbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrContainerNotFound is returned when an operation references a container
// id that is not in the runtime's table.
type ErrContainerNotFound struct {
	ID string
}

func (e ErrContainerNotFound) Error() string {
	return fmt.Sprintf("container %q not found", e.ID)
}

// ErrUnsupportedBackend is returned by NewRuntime for sandbox types that
// have no single-host implementation.
type ErrUnsupportedBackend struct {
	Type Type
}

func (e ErrUnsupportedBackend) Error() string {
	return fmt.Sprintf("sandbox type %q has no runtime on this host", e.Type)
}

// ExecResult is the structured outcome of one command execution inside a
// sandbox. Command failures, including timeouts, are reported here rather
// than as errors so a single failed command does not abort the caller's
// workflow.
type ExecResult struct {
	// Success is true when the command ran to completion with exit code 0.
	Success bool `json:"success"`

	// Output is the combined stdout and stderr of the command.
	Output string `json:"output"`

	// ExitCode is the command's exit code, or -1 when it never produced one.
	ExitCode int `json:"returnCode"`

	// Err carries the failure category ("timeout", engine error text) when
	// Success is false for a reason other than a non-zero exit code.
	Err string `json:"error,omitempty"`
}

// ContainerInfo is the runtime's record of one tracked container. The
// options snapshot is immutable once the container is created.
type ContainerInfo struct {
	ID        string         `json:"containerId"`
	Name      string         `json:"name"`
	Options   RuntimeOptions `json:"options"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ContainerStatus is a live inspection result. When inspection fails the
// Status field is "unknown" and Err holds the reason; the call itself does
// not error for a tracked container.
type ContainerStatus struct {
	ID          string    `json:"containerId"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	CPUUsage    uint64    `json:"cpuUsage"`
	MemoryUsage uint64    `json:"memoryUsage"`
	CreatedAt   time.Time `json:"createdAt"`
	Err         string    `json:"error,omitempty"`
}

// ContainerRuntime owns the physical lifecycle of sandboxes on one host.
// Implementations keep their own table of known containers; all table
// mutation is serialized internally. Command execution inside an
// already-registered container is deliberately not serialized: two
// concurrent ExecuteCommand calls against the same container both reach
// the engine. Callers that need per-container exclusivity must provide it
// themselves.
type ContainerRuntime interface {
	// CreateContainer builds and starts a sandbox from the options,
	// registers it, and returns its id. The container is not registered
	// when creation fails.
	CreateContainer(ctx context.Context, opts RuntimeOptions) (string, error)

	// ExecuteCommand runs a shell command inside the container under the
	// given timeout. It returns an error only for an unknown container id;
	// command failures and timeouts come back as a structured ExecResult.
	ExecuteCommand(ctx context.Context, containerID, command string, timeout time.Duration) (ExecResult, error)

	// CopyToContainer copies a host file into the container.
	CopyToContainer(ctx context.Context, containerID, hostPath, containerPath string) error

	// CopyFromContainer copies a container file to the host.
	CopyFromContainer(ctx context.Context, containerID, containerPath, hostPath string) error

	// Status inspects the live state of a tracked container.
	Status(ctx context.Context, containerID string) (ContainerStatus, error)

	// StopContainer stops a running container. Stopping an already stopped
	// container is not an error.
	StopContainer(ctx context.Context, containerID string) error

	// RemoveContainer stops the container if needed, deletes it from the
	// engine and drops it from the table. The table entry is removed only
	// after the engine delete succeeds.
	RemoveContainer(ctx context.Context, containerID string, force bool) error

	// Containers returns a snapshot of all tracked containers.
	Containers() []ContainerInfo

	// CleanupAll removes every tracked container, best effort: a failure
	// on one container is logged and does not stop the rest.
	CleanupAll(ctx context.Context) error

	// Close releases engine resources. Tracked containers are not removed.
	Close() error
}

// NewRuntime constructs the runtime for the profile's sandbox type.
// Kubernetes and remote types are rejected with ErrUnsupportedBackend.
func NewRuntime(cfg Config, logger *zap.Logger) (ContainerRuntime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypeDocker:
		return NewDockerRuntime(cfg, logger)
	case TypeLocal:
		return NewLocalRuntime(cfg, logger)
	default:
		return nil, ErrUnsupportedBackend{Type: cfg.Type}
	}
}
