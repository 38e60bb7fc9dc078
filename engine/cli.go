package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CLI implements Engine by spawning the engine's command-line client.
type CLI struct {
	variant Variant
	runner  Runner
	version string
	logger  *slog.Logger
}

// Option configures a CLI engine.
type Option func(*CLI)

// WithRunner substitutes the subprocess runner. Used by tests.
func WithRunner(r Runner) Option {
	return func(c *CLI) { c.runner = r }
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *CLI) { c.logger = l }
}

// New creates an Engine driving the given variant's CLI. The binary is not
// probed; use Detect to find a working engine.
func New(variant Variant, opts ...Option) *CLI {
	c := &CLI{
		variant: variant,
		runner:  execRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.logger = c.logger.With(slog.String("engine", string(variant)))
	return c
}

// Variant reports which engine binary this instance drives.
func (c *CLI) Variant() Variant { return c.variant }

// Version returns the engine client version discovered by Detect, or an
// empty string when the engine was selected explicitly.
func (c *CLI) Version() string { return c.version }

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	stdout, _, err := c.runner.Exec(ctx, "", string(c.variant), args...)
	return stdout, err
}

// Create creates a new container but does not start it.
func (c *CLI) Create(ctx context.Context, cfg CreateConfig) (ID, error) {
	args := []string{"create", "--name", cfg.Name}

	// Deterministic flag order keeps invocations reproducible.
	for _, k := range sortedKeys(cfg.Env) {
		args = append(args, "--env", k+"="+cfg.Env[k])
	}
	for _, k := range sortedKeys(cfg.Labels) {
		args = append(args, "--label", k+"="+cfg.Labels[k])
	}
	for _, p := range cfg.Ports {
		args = append(args, "--publish", p.publishArg())
	}
	for _, m := range cfg.Mounts {
		args = append(args, "--volume", m.volumeArg())
	}

	args = append(args, cfg.Image)
	args = append(args, cfg.Cmd...)

	out, err := c.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	id := ID(strings.TrimSpace(out))
	if id == "" {
		return "", &ParseError{Output: out, Err: errors.New("create returned no container id")}
	}
	c.logger.Debug("container created", slog.String("id", string(id)), slog.String("image", cfg.Image))
	return id, nil
}

func (p PortSpec) publishArg() string {
	if p.Host > 0 {
		return fmt.Sprintf("%d:%d", p.Host, p.Container)
	}
	return strconv.Itoa(p.Container)
}

func (m Mount) volumeArg() string {
	arg := m.Source + ":" + m.Target
	if m.ReadOnly {
		arg += ":ro"
	}
	return arg
}

// Start starts a previously created container.
func (c *CLI) Start(ctx context.Context, id ID) error {
	if _, err := c.run(ctx, "start", string(id)); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	c.logger.Debug("container started", slog.String("id", string(id)))
	return nil
}

// Inspect returns the current state and port bindings of a container.
func (c *CLI) Inspect(ctx context.Context, id ID) (InspectResult, error) {
	out, err := c.run(ctx, "inspect", string(id))
	if err != nil {
		return InspectResult{}, fmt.Errorf("inspect container: %w", err)
	}
	var parsed inspectJSON
	if err := decodeFirst(out, &parsed); err != nil {
		return InspectResult{}, err
	}
	return parsed.toResult(), nil
}

// Logs returns container log output, stdout and stderr combined. The CLI
// demultiplexes container streams onto its own stdout and stderr; both are
// captured.
func (c *CLI) Logs(ctx context.Context, id ID, since time.Time) (string, error) {
	args := []string{"logs"}
	if !since.IsZero() {
		args = append(args, "--since", since.UTC().Format(time.RFC3339Nano))
	}
	args = append(args, string(id))

	stdout, stderr, err := c.runner.Exec(ctx, "", string(c.variant), args...)
	if err != nil {
		return "", fmt.Errorf("read container logs: %w", err)
	}
	return stdout + stderr, nil
}

// Exec runs a command inside a running container. The command's own exit
// code is data, not an error.
func (c *CLI) Exec(ctx context.Context, id ID, cmd []string) (ExecResult, error) {
	args := append([]string{"exec", string(id)}, cmd...)
	stdout, stderr, err := c.runner.Exec(ctx, "", string(c.variant), args...)
	if err != nil {
		var engineErr *Error
		if errors.As(err, &engineErr) {
			return ExecResult{
				ExitCode: engineErr.ExitCode,
				Stdout:   stdout,
				Stderr:   engineErr.Stderr,
			}, nil
		}
		return ExecResult{}, fmt.Errorf("exec in container: %w", err)
	}
	return ExecResult{ExitCode: 0, Stdout: stdout, Stderr: stderr}, nil
}

// Stop stops a running container, killing it after the grace period.
func (c *CLI) Stop(ctx context.Context, id ID, grace time.Duration) error {
	secs := int(grace.Seconds())
	if _, err := c.run(ctx, "stop", "--time", strconv.Itoa(secs), string(id)); err != nil {
		return fmt.Errorf("stop container: %w", err)
	}
	c.logger.Debug("container stopped", slog.String("id", string(id)))
	return nil
}

// Remove removes a stopped container.
func (c *CLI) Remove(ctx context.Context, id ID) error {
	if _, err := c.run(ctx, "rm", string(id)); err != nil {
		return fmt.Errorf("remove container: %w", err)
	}
	c.logger.Debug("container removed", slog.String("id", string(id)))
	return nil
}

// List returns all containers carrying the given label key.
func (c *CLI) List(ctx context.Context, label string) ([]Summary, error) {
	out, err := c.run(ctx, "ps", "--all", "--no-trunc",
		"--filter", "label="+label, c.variant.jsonFormatArg())
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	var result []Summary
	err = decodeEach(out, func(row psJSON) {
		result = append(result, Summary{
			ID:     ID(row.ID),
			Name:   row.Names,
			Image:  row.Image,
			Status: row.Status,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *CLI) composeArgs(project ComposeProject, rest ...string) (string, []string) {
	bin, args := c.variant.composeInvocation()
	if project.Name != "" && c.variant.composeSupportsProjectName() {
		args = append(args, "-p", project.Name)
	}
	return bin, append(args, rest...)
}

// ComposeUp starts all services of a compose project and resolves the
// container ID behind each service name.
func (c *CLI) ComposeUp(ctx context.Context, project ComposeProject) (map[string]ID, error) {
	bin, args := c.composeArgs(project, "up", "--detach")
	if _, _, err := c.runner.Exec(ctx, project.Dir, bin, args...); err != nil {
		return nil, fmt.Errorf("compose up: %w", err)
	}

	bin, args = c.composeArgs(project, "ps", "--all", "--format", "json")
	out, _, err := c.runner.Exec(ctx, project.Dir, bin, args...)
	if err != nil {
		return nil, fmt.Errorf("compose ps: %w", err)
	}

	services := make(map[string]ID)
	err = decodeEach(out, func(row composePSJSON) {
		if row.Service != "" {
			services[row.Service] = ID(row.ID)
		}
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("compose project up",
		slog.String("project", project.Name), slog.Int("services", len(services)))
	return services, nil
}

// ComposeDown stops and removes all services of a compose project.
func (c *CLI) ComposeDown(ctx context.Context, project ComposeProject) error {
	bin, args := c.composeArgs(project, "down")
	if _, _, err := c.runner.Exec(ctx, project.Dir, bin, args...); err != nil {
		return fmt.Errorf("compose down: %w", err)
	}
	c.logger.Debug("compose project down", slog.String("project", project.Name))
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Verify CLI implements Engine.
var _ Engine = (*CLI)(nil)
