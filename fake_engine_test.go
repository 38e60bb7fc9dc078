package berth

import (
	"context"
	"sync"
	"time"

	"github.com/RevCBH/berth/engine"
)

// fakeEngine is a scriptable engine.Engine recording call counts.
type fakeEngine struct {
	mu     sync.Mutex
	counts map[string]int

	createID  engine.ID
	createErr error
	startErr  error
	stopErr   error
	removeErr error

	inspectResult engine.InspectResult
	inspectErr    error
	inspectDelay  time.Duration

	logs string

	lastCreate engine.CreateConfig
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		counts:   make(map[string]int),
		createID: "abc123",
		inspectResult: engine.InspectResult{
			ID:    "abc123",
			State: engine.ContainerState{Status: "running", Running: true},
			Ports: engine.PortMap{
				"80/tcp": {{HostIP: "0.0.0.0", HostPort: "32768"}},
			},
		},
	}
}

func (f *fakeEngine) record(op string) {
	f.mu.Lock()
	f.counts[op]++
	f.mu.Unlock()
}

func (f *fakeEngine) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

func (f *fakeEngine) Variant() engine.Variant { return engine.Docker }

func (f *fakeEngine) Create(ctx context.Context, cfg engine.CreateConfig) (engine.ID, error) {
	f.record("create")
	f.mu.Lock()
	f.lastCreate = cfg
	f.mu.Unlock()
	return f.createID, f.createErr
}

func (f *fakeEngine) Start(ctx context.Context, id engine.ID) error {
	f.record("start")
	return f.startErr
}

func (f *fakeEngine) Inspect(ctx context.Context, id engine.ID) (engine.InspectResult, error) {
	if f.inspectDelay > 0 {
		time.Sleep(f.inspectDelay)
	}
	f.record("inspect")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inspectResult, f.inspectErr
}

func (f *fakeEngine) Logs(ctx context.Context, id engine.ID, since time.Time) (string, error) {
	f.record("logs")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, nil
}

func (f *fakeEngine) Exec(ctx context.Context, id engine.ID, cmd []string) (engine.ExecResult, error) {
	f.record("exec")
	return engine.ExecResult{}, nil
}

func (f *fakeEngine) Stop(ctx context.Context, id engine.ID, grace time.Duration) error {
	f.record("stop")
	return f.stopErr
}

func (f *fakeEngine) Remove(ctx context.Context, id engine.ID) error {
	f.record("remove")
	return f.removeErr
}

func (f *fakeEngine) List(ctx context.Context, label string) ([]engine.Summary, error) {
	f.record("list")
	return nil, nil
}

func (f *fakeEngine) ComposeUp(ctx context.Context, p engine.ComposeProject) (map[string]engine.ID, error) {
	f.record("composeUp")
	return nil, nil
}

func (f *fakeEngine) ComposeDown(ctx context.Context, p engine.ComposeProject) error {
	f.record("composeDown")
	return nil
}

var _ engine.Engine = (*fakeEngine)(nil)
