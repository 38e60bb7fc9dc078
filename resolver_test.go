package berth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RevCBH/berth/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortResolver_MemoizesInspect(t *testing.T) {
	eng := newFakeEngine()
	r := NewPortResolver(eng)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "abc123", 80)
	require.NoError(t, err)
	assert.Equal(t, 32768, first)

	second, err := r.Resolve(ctx, "abc123", 80)
	require.NoError(t, err)
	assert.Equal(t, 32768, second)

	assert.Equal(t, 1, eng.count("inspect"), "second resolve must hit the cache")
}

func TestPortResolver_ConcurrentCallsSingleFlight(t *testing.T) {
	eng := newFakeEngine()
	eng.inspectDelay = 50 * time.Millisecond
	r := NewPortResolver(eng)

	const n = 16
	results := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := r.Resolve(context.Background(), "abc123", 80)
			require.NoError(t, err)
			results[i] = port
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, eng.count("inspect"), "concurrent resolves must collapse into one inspect")
	for _, port := range results {
		assert.Equal(t, 32768, port)
	}
}

func TestPortResolver_PortNotBound(t *testing.T) {
	eng := newFakeEngine()
	eng.inspectResult.Ports = engine.PortMap{}
	r := NewPortResolver(eng)

	_, err := r.Resolve(context.Background(), "abc123", 80)
	require.ErrorIs(t, err, ErrPortNotBound)
}

func TestPortResolver_FailuresAreNotCached(t *testing.T) {
	eng := newFakeEngine()
	eng.inspectResult.Ports = engine.PortMap{}
	r := NewPortResolver(eng)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "abc123", 80)
	require.ErrorIs(t, err, ErrPortNotBound)

	// The binding appears later (container finished booting).
	eng.mu.Lock()
	eng.inspectResult.Ports = engine.PortMap{"80/tcp": {{HostPort: "32768"}}}
	eng.mu.Unlock()

	port, err := r.Resolve(ctx, "abc123", 80)
	require.NoError(t, err)
	assert.Equal(t, 32768, port)
	assert.Equal(t, 2, eng.count("inspect"))
}

func TestPortResolver_SkipsIPv6Bindings(t *testing.T) {
	eng := newFakeEngine()
	eng.inspectResult.Ports = engine.PortMap{
		"80/tcp": {
			{HostIP: "::", HostPort: "32769"},
			{HostIP: "0.0.0.0", HostPort: "32768"},
		},
	}
	r := NewPortResolver(eng)

	port, err := r.Resolve(context.Background(), "abc123", 80)
	require.NoError(t, err)
	assert.Equal(t, 32768, port, "first IPv4 binding wins")
}

func TestPortResolver_DistinctPortsResolveIndependently(t *testing.T) {
	eng := newFakeEngine()
	eng.inspectResult.Ports = engine.PortMap{
		"80/tcp":   {{HostPort: "32768"}},
		"5432/tcp": {{HostPort: "32769"}},
	}
	r := NewPortResolver(eng)
	ctx := context.Background()

	web, err := r.Resolve(ctx, "abc123", 80)
	require.NoError(t, err)
	db, err := r.Resolve(ctx, "abc123", 5432)
	require.NoError(t, err)
	assert.Equal(t, 32768, web)
	assert.Equal(t, 32769, db)
}
