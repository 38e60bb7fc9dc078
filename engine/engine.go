// Package engine drives a container engine (docker, podman, or nerdctl)
// through its command-line interface. It translates lifecycle intents into
// subprocess invocations and parses the engine's output.
package engine

import (
	"context"
	"time"
)

// ID is the engine-assigned container identifier, as returned by
// `<engine> create` (full form, not truncated).
type ID string

// Engine provides container lifecycle operations.
// Implementations must be safe for concurrent use.
type Engine interface {
	// Variant reports which engine binary this instance drives.
	Variant() Variant

	// Create creates a new container but does not start it.
	// Returns the container ID on success.
	Create(ctx context.Context, cfg CreateConfig) (ID, error)

	// Start starts a previously created container.
	Start(ctx context.Context, id ID) error

	// Inspect returns the current state and port bindings of a container.
	Inspect(ctx context.Context, id ID) (InspectResult, error)

	// Logs returns container log output (stdout and stderr combined).
	// A non-zero since restricts output to entries after that time.
	Logs(ctx context.Context, id ID, since time.Time) (string, error)

	// Exec runs a command inside a running container. A non-zero command
	// exit code is reported in the result, not as an error.
	Exec(ctx context.Context, id ID, cmd []string) (ExecResult, error)

	// Stop stops a running container, giving it grace to shut down before
	// it is killed.
	Stop(ctx context.Context, id ID, grace time.Duration) error

	// Remove removes a container. The container must be stopped first.
	Remove(ctx context.Context, id ID) error

	// List returns containers (running or not) carrying the given label key.
	List(ctx context.Context, label string) ([]Summary, error)

	// ComposeUp starts all services of a compose project in the background
	// and returns the container ID for each service.
	ComposeUp(ctx context.Context, project ComposeProject) (map[string]ID, error)

	// ComposeDown stops and removes all services of a compose project.
	ComposeDown(ctx context.Context, project ComposeProject) error
}

// CreateConfig specifies container creation parameters.
type CreateConfig struct {
	// Image is the image reference (e.g., "postgres:16-alpine").
	Image string

	// Name is the container name. Must be unique on the engine.
	Name string

	// Env contains environment variables to set in the container.
	Env map[string]string

	// Ports are the port publications to request.
	Ports []PortSpec

	// Mounts are bind mounts from the host into the container.
	Mounts []Mount

	// Cmd overrides the image command.
	Cmd []string

	// Labels are attached to the container for later discovery.
	Labels map[string]string
}

// PortSpec publishes a container port. Host 0 requests a dynamically
// assigned host port.
type PortSpec struct {
	Container int
	Host      int
}

// Mount is a bind mount from the host into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ComposeProject locates a compose project on disk. Name overrides the
// engine's default project naming where the engine supports it; Dir is the
// directory containing the compose file and is always the working directory
// of compose invocations.
type ComposeProject struct {
	Dir  string
	Name string
}

// ExecResult is the outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// InspectResult is the subset of `<engine> inspect` output this package
// consumes.
type InspectResult struct {
	ID    ID
	State ContainerState
	Ports PortMap
}

// ContainerState describes the process state of a container.
type ContainerState struct {
	// Status is the engine's state string: "created", "running",
	// "paused", "exited", "dead".
	Status   string
	Running  bool
	ExitCode int
	Health   Health
}

// Exited reports whether the container process has terminated.
func (s ContainerState) Exited() bool {
	return s.Status == "exited" || s.Status == "dead"
}

// Health is the engine-reported health check status. Status is empty when
// the image declares no health check.
type Health struct {
	Status string // "starting", "healthy", "unhealthy"
}

// PortBinding is one host-side binding of a published container port.
type PortBinding struct {
	HostIP   string `json:"HostIp"`
	HostPort string `json:"HostPort"`
}

// PortMap maps "port/proto" keys (e.g., "5432/tcp") to host bindings.
type PortMap map[string][]PortBinding

// Summary is one row of `<engine> ps`.
type Summary struct {
	ID     ID
	Name   string
	Image  string
	Status string
}
