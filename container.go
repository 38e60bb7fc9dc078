package berth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/RevCBH/berth/engine"
	"github.com/RevCBH/berth/wait"
	"go.uber.org/multierr"
)

// State is the lifecycle phase of a container handle. Transitions only move
// forward.
type State string

const (
	StateRequested State = "requested"
	StateCreated   State = "created"
	StateStarted   State = "started"
	StateReady     State = "ready"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
	StateRemoved   State = "removed"
)

// Container is a handle on a running container. It owns teardown: Close
// stops and removes the container unless Detach was called first.
type Container struct {
	eng       engine.Engine
	resolver  *PortResolver
	logger    *slog.Logger
	stopGrace time.Duration

	spec     Spec
	identity Identity

	mu       sync.Mutex
	state    State
	detached bool
	torndown bool
}

// Run creates and starts a container and suspends until it is ready. It
// returns only once every wait strategy succeeds (Ready) or the evaluation
// fails (Failed).
//
// Engine errors during create or start are fatal and propagate immediately;
// nothing is retried. A readiness failure or timeout returns the error
// together with a non-nil handle: the container is deliberately left
// running so its logs stay inspectable, and the caller may stop it through
// the handle.
func Run(ctx context.Context, spec Spec, opts ...Option) (*Container, error) {
	o := buildOptions(opts)
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger := o.logger.With(slog.String("logger", "berth"))

	ref, err := spec.validate()
	if err != nil {
		return nil, fmt.Errorf("invalid container spec: %w", err)
	}

	eng := o.eng
	if eng == nil {
		if o.variant != "" {
			eng = engine.New(o.variant, engine.WithLogger(o.logger))
		} else {
			eng, err = engine.Detect(ctx, engine.WithLogger(o.logger))
			if err != nil {
				return nil, err
			}
		}
	}

	prefix := spec.Name
	if prefix == "" {
		prefix = ref.ShortName()
	}
	label := newLabel(prefix)

	c := &Container{
		eng:       eng,
		resolver:  NewPortResolver(eng),
		logger:    logger.With(slog.String("container", label)),
		stopGrace: o.stopGrace,
		spec:      spec,
		identity:  Identity{Label: label},
		state:     StateRequested,
	}

	id, err := eng.Create(ctx, spec.createConfig(ref, label))
	if err != nil {
		return nil, err
	}
	c.identity.ID = id
	c.transition(StateCreated)

	if err := eng.Start(ctx, id); err != nil {
		// The created container would leak; remove it before propagating.
		cleanupCtx := context.WithoutCancel(ctx)
		if rmErr := eng.Remove(cleanupCtx, id); rmErr != nil {
			c.logger.Error("remove container after start failure", slog.Any("error", rmErr))
		}
		return nil, err
	}
	c.transition(StateStarted)
	c.logger.Info("container started",
		slog.String("id", string(id)), slog.String("image", spec.Image))

	evaluator := wait.NewEvaluator(wait.WithLogger(o.logger))
	if err := evaluator.Evaluate(ctx, containerTarget{c}, spec.Wait, o.policy); err != nil {
		c.transition(StateFailed)
		c.logger.Warn("container not ready, left running for inspection", slog.Any("error", err))
		return c, err
	}

	// Resolve declared ports now so callers can read them without a context.
	for _, p := range spec.Ports {
		hostPort, err := c.resolver.Resolve(ctx, id, p.Container())
		if err != nil {
			c.transition(StateFailed)
			return c, err
		}
		p.Bind(hostPort)
	}

	c.transition(StateReady)
	c.logger.Info("container ready")
	return c, nil
}

// transition moves the lifecycle forward. Calls are already ordered by the
// control flow; the lock only guards against concurrent readers.
func (c *Container) transition(next State) {
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
}

// Identity returns the engine ID and unique label of the container.
func (c *Container) Identity() Identity { return c.identity }

// State returns the current lifecycle phase.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Host is the address to reach published ports on.
func (c *Container) Host() string { return "127.0.0.1" }

// HostPort resolves a container port to its bound host port.
func (c *Container) HostPort(ctx context.Context, containerPort int) (int, error) {
	hostPort, err := c.resolver.Resolve(ctx, c.identity.ID, containerPort)
	if err != nil {
		return 0, err
	}
	for _, p := range c.spec.Ports {
		if p.Container() == containerPort {
			p.Bind(hostPort)
		}
	}
	return hostPort, nil
}

// Logs returns the container's full log output.
func (c *Container) Logs(ctx context.Context) (string, error) {
	return c.eng.Logs(ctx, c.identity.ID, time.Time{})
}

// Exec runs a command inside the container.
func (c *Container) Exec(ctx context.Context, cmd []string) (engine.ExecResult, error) {
	return c.eng.Exec(ctx, c.identity.ID, cmd)
}

// Detach opts the container out of teardown: Close becomes a no-op and the
// container keeps running after the test ends.
func (c *Container) Detach() {
	c.mu.Lock()
	c.detached = true
	c.mu.Unlock()
	c.logger.Info("container detached, teardown disabled")
}

// Stop stops the container without removing it.
func (c *Container) Stop(ctx context.Context) error {
	if err := c.eng.Stop(ctx, c.identity.ID, c.stopGrace); err != nil {
		return err
	}
	c.transition(StateStopped)
	return nil
}

// Close stops and removes the container. It is idempotent: the second and
// later calls do nothing and return nil. Cleanup errors are aggregated and
// returned but teardown always proceeds through both steps.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		c.logger.Info("container detached, skipping teardown")
		return nil
	}
	if c.torndown {
		c.mu.Unlock()
		return nil
	}
	c.torndown = true
	c.mu.Unlock()

	// Teardown must run even when the test's context is already canceled.
	ctx = context.WithoutCancel(ctx)

	var errs error
	if err := c.eng.Stop(ctx, c.identity.ID, c.stopGrace); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("teardown stop: %w", err))
	} else {
		c.transition(StateStopped)
	}
	if err := c.eng.Remove(ctx, c.identity.ID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("teardown remove: %w", err))
	} else {
		c.transition(StateRemoved)
	}
	if errs == nil {
		c.logger.Info("container removed")
	}
	return errs
}

// containerTarget adapts a Container to the wait.Target probe surface.
type containerTarget struct {
	c *Container
}

func (t containerTarget) State(ctx context.Context) (engine.ContainerState, error) {
	result, err := t.c.eng.Inspect(ctx, t.c.identity.ID)
	if err != nil {
		return engine.ContainerState{}, err
	}
	return result.State, nil
}

func (t containerTarget) Exec(ctx context.Context, cmd []string) (engine.ExecResult, error) {
	return t.c.eng.Exec(ctx, t.c.identity.ID, cmd)
}

func (t containerTarget) Logs(ctx context.Context, since time.Time) (string, error) {
	return t.c.eng.Logs(ctx, t.c.identity.ID, since)
}

func (t containerTarget) HostPort(ctx context.Context, containerPort int) (int, error) {
	return t.c.resolver.Resolve(ctx, t.c.identity.ID, containerPort)
}

func (t containerTarget) Host() string { return t.c.Host() }
