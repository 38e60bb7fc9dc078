package compose

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/RevCBH/berth"
	"github.com/RevCBH/berth/engine"
	"github.com/RevCBH/berth/wait"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type options struct {
	eng    engine.Engine
	logger *slog.Logger
	policy wait.Policy
	name   string
}

// Option configures a Project.
type Option func(*options)

// WithEngine uses a specific engine instead of auto-detecting one.
func WithEngine(eng engine.Engine) Option {
	return func(o *options) { o.eng = eng }
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPolicy overrides the readiness evaluation policy applied per service.
func WithPolicy(p wait.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithName sets the human-readable prefix of the generated project
// directory name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Project is a group of services run together through the engine's compose
// implementation. The generated compose file lives in a guard-owned temp
// directory whose name is the engine-side project name.
type Project struct {
	eng      engine.Engine
	resolver *berth.PortResolver
	logger   *slog.Logger
	policy   wait.Policy

	dir      *TempDir
	services []Service

	mu       sync.Mutex
	ids      map[string]engine.ID
	started  bool
	downed   bool
	detached bool
}

// New validates the services, allocates the project directory and writes
// the compose file. The engine is not contacted until Up.
func New(services []Service, opts ...Option) (*Project, error) {
	o := &options{policy: wait.DefaultPolicy, name: "compose"}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger := o.logger.With(slog.String("logger", "berth.compose"))

	if len(services) == 0 {
		return nil, fmt.Errorf("project has no services")
	}
	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if err := svc.validate(); err != nil {
			return nil, err
		}
		if seen[svc.Name] {
			return nil, fmt.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = true
	}

	dir, err := NewTempDir(o.name, logger)
	if err != nil {
		return nil, err
	}
	content, err := renderFile(services)
	if err != nil {
		dir.Release()
		return nil, err
	}
	if err := dir.WriteFile(FileName, content); err != nil {
		dir.Release()
		return nil, err
	}

	return &Project{
		eng:      o.eng,
		logger:   logger.With(slog.String("project", dir.Name())),
		policy:   o.policy,
		dir:      dir,
		services: services,
	}, nil
}

// Dir is the project directory holding the generated compose file.
func (p *Project) Dir() string { return p.dir.Path() }

// Name is the engine-side project name.
func (p *Project) Name() string { return p.dir.Name() }

// Up starts every service and suspends until all wait sets are satisfied.
// Readiness is evaluated per service concurrently. If any service fails,
// the whole project is brought down exactly once before the error
// surfaces, so nothing keeps running after a failed Up.
func (p *Project) Up(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("project %s already started", p.Name())
	}
	p.started = true
	p.mu.Unlock()

	eng := p.eng
	if eng == nil {
		detected, err := engine.Detect(ctx, engine.WithLogger(p.logger))
		if err != nil {
			return err
		}
		eng = detected
		p.eng = eng
	}
	p.resolver = berth.NewPortResolver(eng)

	ids, err := eng.ComposeUp(ctx, p.engineProject())
	if err != nil {
		return fmt.Errorf("start project %s: %w", p.Name(), err)
	}
	p.mu.Lock()
	p.ids = ids
	p.mu.Unlock()
	p.logger.Info("project up", slog.Int("services", len(ids)))

	for _, svc := range p.services {
		if _, ok := ids[svc.Name]; !ok {
			return p.rollback(ctx, fmt.Errorf("service %s not reported by compose", svc.Name))
		}
	}

	evaluator := wait.NewEvaluator(wait.WithLogger(p.logger))
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range p.services {
		if len(svc.Wait) == 0 {
			continue
		}
		target := serviceTarget{eng: eng, id: ids[svc.Name], resolver: p.resolver}
		g.Go(func() error {
			if err := evaluator.Evaluate(gctx, target, svc.Wait, p.policy); err != nil {
				return fmt.Errorf("service %s: %w", svc.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return p.rollback(ctx, err)
	}

	// Resolve declared ports so callers can read them without a context.
	for _, svc := range p.services {
		id := ids[svc.Name]
		for _, port := range svc.Ports {
			hostPort, err := p.resolver.Resolve(ctx, id, port.Container())
			if err != nil {
				return p.rollback(ctx, fmt.Errorf("service %s: %w", svc.Name, err))
			}
			port.Bind(hostPort)
		}
	}
	p.logger.Info("project ready")
	return nil
}

// rollback tears the project down after a failed Up. The engine's own down
// already stops services in reverse dependency order; its errors are
// attached to the original failure, never replacing it.
func (p *Project) rollback(ctx context.Context, cause error) error {
	p.logger.Warn("project failed, rolling back", slog.Any("error", cause))
	if err := p.Down(context.WithoutCancel(ctx)); err != nil {
		return multierr.Append(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}

// ServiceID returns the container ID compose assigned to a service. Valid
// after Up.
func (p *Project) ServiceID(service string) (engine.ID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.ids[service]
	return id, ok
}

// Host is the address to reach published service ports on.
func (p *Project) Host() string { return "127.0.0.1" }

// HostPort resolves a service's container port to its bound host port.
func (p *Project) HostPort(ctx context.Context, service string, containerPort int) (int, error) {
	id, ok := p.ServiceID(service)
	if !ok {
		return 0, fmt.Errorf("unknown service %q", service)
	}
	return p.resolver.Resolve(ctx, id, containerPort)
}

// Logs returns a service's full log output.
func (p *Project) Logs(ctx context.Context, service string) (string, error) {
	id, ok := p.ServiceID(service)
	if !ok {
		return "", fmt.Errorf("unknown service %q", service)
	}
	return p.eng.Logs(ctx, id, time.Time{})
}

// Down stops and removes all services. It is idempotent: later calls do
// nothing and return nil.
func (p *Project) Down(ctx context.Context) error {
	p.mu.Lock()
	if p.downed || !p.started {
		p.mu.Unlock()
		return nil
	}
	p.downed = true
	p.mu.Unlock()

	if err := p.eng.ComposeDown(ctx, p.engineProject()); err != nil {
		return fmt.Errorf("stop project %s: %w", p.Name(), err)
	}
	p.logger.Info("project down")
	return nil
}

// Detach opts the project out of teardown: Close leaves the services
// running and the project directory on disk.
func (p *Project) Detach() {
	p.mu.Lock()
	p.detached = true
	p.mu.Unlock()
	p.dir.Detach()
	p.logger.Info("project detached, teardown disabled")
}

// Close brings the project down and releases the project directory unless
// detached. Teardown runs even when the caller's context is already
// canceled. Errors from both steps are aggregated.
func (p *Project) Close(ctx context.Context) error {
	p.mu.Lock()
	detached := p.detached
	p.mu.Unlock()
	if detached {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	var errs error
	if err := p.Down(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := p.dir.Release(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// serviceTarget adapts one compose service to the wait.Target probe
// surface.
type serviceTarget struct {
	eng      engine.Engine
	id       engine.ID
	resolver *berth.PortResolver
}

func (t serviceTarget) State(ctx context.Context) (engine.ContainerState, error) {
	result, err := t.eng.Inspect(ctx, t.id)
	if err != nil {
		return engine.ContainerState{}, err
	}
	return result.State, nil
}

func (t serviceTarget) Exec(ctx context.Context, cmd []string) (engine.ExecResult, error) {
	return t.eng.Exec(ctx, t.id, cmd)
}

func (t serviceTarget) Logs(ctx context.Context, since time.Time) (string, error) {
	return t.eng.Logs(ctx, t.id, since)
}

func (t serviceTarget) HostPort(ctx context.Context, containerPort int) (int, error) {
	return t.resolver.Resolve(ctx, t.id, containerPort)
}

func (t serviceTarget) Host() string { return "127.0.0.1" }
