package compose

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/RevCBH/berth"
	"github.com/RevCBH/berth/engine"
	"github.com/RevCBH/berth/wait"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeComposeEngine scripts compose behavior per service.
type fakeComposeEngine struct {
	mu sync.Mutex

	upIDs  map[string]engine.ID
	upErr  error
	downs  int
	ups    int
	lastUp engine.ComposeProject

	inspect map[engine.ID]engine.InspectResult
}

func newFakeComposeEngine() *fakeComposeEngine {
	return &fakeComposeEngine{
		upIDs:   map[string]engine.ID{},
		inspect: map[engine.ID]engine.InspectResult{},
	}
}

func (f *fakeComposeEngine) addService(name string, id engine.ID, health string, ports engine.PortMap) {
	f.upIDs[name] = id
	f.inspect[id] = engine.InspectResult{
		ID:    id,
		State: engine.ContainerState{Status: "running", Running: true, Health: engine.Health{Status: health}},
		Ports: ports,
	}
}

func (f *fakeComposeEngine) Variant() engine.Variant { return engine.Docker }

func (f *fakeComposeEngine) Create(ctx context.Context, cfg engine.CreateConfig) (engine.ID, error) {
	return "", errors.New("not used")
}
func (f *fakeComposeEngine) Start(ctx context.Context, id engine.ID) error { return nil }

func (f *fakeComposeEngine) Inspect(ctx context.Context, id engine.ID) (engine.InspectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inspect[id], nil
}

func (f *fakeComposeEngine) Logs(ctx context.Context, id engine.ID, since time.Time) (string, error) {
	return "", nil
}

func (f *fakeComposeEngine) Exec(ctx context.Context, id engine.ID, cmd []string) (engine.ExecResult, error) {
	return engine.ExecResult{}, nil
}

func (f *fakeComposeEngine) Stop(ctx context.Context, id engine.ID, grace time.Duration) error {
	return nil
}
func (f *fakeComposeEngine) Remove(ctx context.Context, id engine.ID) error { return nil }

func (f *fakeComposeEngine) List(ctx context.Context, label string) ([]engine.Summary, error) {
	return nil, nil
}

func (f *fakeComposeEngine) ComposeUp(ctx context.Context, p engine.ComposeProject) (map[string]engine.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ups++
	f.lastUp = p
	return f.upIDs, f.upErr
}

func (f *fakeComposeEngine) ComposeDown(ctx context.Context, p engine.ComposeProject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downs++
	return nil
}

func (f *fakeComposeEngine) downCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downs
}

var _ engine.Engine = (*fakeComposeEngine)(nil)

func webPorts(hostPort string) engine.PortMap {
	return engine.PortMap{"80/tcp": {{HostIP: "0.0.0.0", HostPort: hostPort}}}
}

func TestProjectUpReady(t *testing.T) {
	eng := newFakeComposeEngine()
	eng.addService("web", "web-1", "healthy", webPorts("32768"))
	eng.addService("db", "db-1", "healthy", nil)

	webPort := berth.Port(80)
	p, err := New([]Service{
		{Name: "db", Image: "postgres:16", Wait: []wait.Strategy{wait.ForHealthCheck()}},
		{Name: "web", Image: "nginx:1.25", Ports: []*berth.ExposedPort{webPort}, DependsOn: []string{"db"}},
	}, WithEngine(eng))
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.NoError(t, p.Up(context.Background()))

	assert.Equal(t, p.Name(), eng.lastUp.Name, "directory name is the project name")
	assert.Equal(t, p.Dir(), eng.lastUp.Dir)

	host, err := webPort.Host()
	require.NoError(t, err)
	assert.Equal(t, 32768, host)

	id, ok := p.ServiceID("db")
	require.True(t, ok)
	assert.Equal(t, engine.ID("db-1"), id)
}

func TestProjectUpFailureRollsBackOnce(t *testing.T) {
	eng := newFakeComposeEngine()
	eng.addService("a", "a-1", "healthy", nil)
	eng.addService("b", "b-1", "unhealthy", nil)

	p, err := New([]Service{
		{Name: "a", Image: "redis:7", Wait: []wait.Strategy{wait.ForHealthCheck()}},
		{Name: "b", Image: "postgres:16", Wait: []wait.Strategy{wait.ForHealthCheck()}},
	}, WithEngine(eng))
	require.NoError(t, err)
	defer p.Close(context.Background())

	err = p.Up(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service b")
	assert.Equal(t, 1, eng.downCount(), "rollback runs down exactly once")

	// Close after a rolled-back Up must not run down again.
	require.NoError(t, p.Down(context.Background()))
	assert.Equal(t, 1, eng.downCount())
}

func TestProjectUpComposeErrorSurfaces(t *testing.T) {
	eng := newFakeComposeEngine()
	eng.upErr = &engine.Error{Binary: "docker", Args: []string{"compose", "up"}, ExitCode: 1, Stderr: "boom"}

	p, err := New([]Service{{Name: "a", Image: "redis:7"}}, WithEngine(eng))
	require.NoError(t, err)
	defer p.Close(context.Background())

	err = p.Up(context.Background())
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, 0, eng.downCount(), "nothing started, nothing to roll back")
}

func TestProjectUpMissingServiceRollsBack(t *testing.T) {
	eng := newFakeComposeEngine()
	eng.addService("a", "a-1", "healthy", nil)
	// "ghost" never appears in compose ps output.

	p, err := New([]Service{
		{Name: "a", Image: "redis:7"},
		{Name: "ghost", Image: "redis:7"},
	}, WithEngine(eng))
	require.NoError(t, err)
	defer p.Close(context.Background())

	err = p.Up(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
	assert.Equal(t, 1, eng.downCount())
}

func TestProjectCloseRemovesDirAndRunsDown(t *testing.T) {
	eng := newFakeComposeEngine()
	eng.addService("a", "a-1", "healthy", nil)

	p, err := New([]Service{{Name: "a", Image: "redis:7"}}, WithEngine(eng))
	require.NoError(t, err)
	require.NoError(t, p.Up(context.Background()))

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 1, eng.downCount())
	_, statErr := os.Stat(p.Dir())
	assert.True(t, os.IsNotExist(statErr), "project dir must be gone after close")

	// Idempotent.
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 1, eng.downCount())
}

func TestProjectDetachKeepsEverything(t *testing.T) {
	eng := newFakeComposeEngine()
	eng.addService("a", "a-1", "healthy", nil)

	p, err := New([]Service{{Name: "a", Image: "redis:7"}}, WithEngine(eng))
	require.NoError(t, err)
	require.NoError(t, p.Up(context.Background()))

	p.Detach()
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 0, eng.downCount(), "detached project keeps running")
	_, statErr := os.Stat(p.Dir())
	assert.NoError(t, statErr, "detached project dir stays on disk")

	// A later explicit release still removes the directory.
	require.NoError(t, p.dir.Release())
	_, statErr = os.Stat(p.Dir())
	assert.True(t, os.IsNotExist(statErr), "explicit release must remove the detached dir")
}

func TestProjectHostPort(t *testing.T) {
	eng := newFakeComposeEngine()
	eng.addService("web", "web-1", "", webPorts("41000"))

	p, err := New([]Service{{Name: "web", Image: "nginx:1.25"}}, WithEngine(eng))
	require.NoError(t, err)
	defer p.Close(context.Background())
	require.NoError(t, p.Up(context.Background()))

	port, err := p.HostPort(context.Background(), "web", 80)
	require.NoError(t, err)
	assert.Equal(t, 41000, port)

	_, err = p.HostPort(context.Background(), "nope", 80)
	assert.Error(t, err)
}

func TestProjectUpTwice(t *testing.T) {
	eng := newFakeComposeEngine()
	eng.addService("a", "a-1", "healthy", nil)

	p, err := New([]Service{{Name: "a", Image: "redis:7"}}, WithEngine(eng))
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.NoError(t, p.Up(context.Background()))
	assert.Error(t, p.Up(context.Background()))
	assert.Equal(t, 1, eng.ups)
}
