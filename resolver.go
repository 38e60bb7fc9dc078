package berth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/RevCBH/berth/engine"
	"golang.org/x/sync/singleflight"
)

// ErrPortNotBound is returned when the engine reports no host binding for a
// container port, e.g. because the container crashed before binding.
var ErrPortNotBound = errors.New("container port not bound to a host port")

// PortResolver resolves container ports to their externally bound host
// ports. Results are memoized per (container, port); concurrent calls for
// the same key collapse into a single inspect. Failed lookups are not
// cached, so callers may retry while a container is still coming up.
type PortResolver struct {
	eng   engine.Engine
	group singleflight.Group

	mu    sync.Mutex
	cache map[portKey]int
}

type portKey struct {
	id   engine.ID
	port int
}

func NewPortResolver(eng engine.Engine) *PortResolver {
	return &PortResolver{
		eng:   eng,
		cache: make(map[portKey]int),
	}
}

// Resolve returns the host port bound to containerPort on the given
// container.
func (r *PortResolver) Resolve(ctx context.Context, id engine.ID, containerPort int) (int, error) {
	key := portKey{id: id, port: containerPort}
	r.mu.Lock()
	if host, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return host, nil
	}
	r.mu.Unlock()

	host, err, _ := r.group.Do(fmt.Sprintf("%s:%d", id, containerPort), func() (any, error) {
		result, err := r.eng.Inspect(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("resolve port %d: %w", containerPort, err)
		}
		hostPort, err := hostPortFor(result.Ports, containerPort)
		if err != nil {
			return 0, err
		}
		r.mu.Lock()
		r.cache[key] = hostPort
		r.mu.Unlock()
		return hostPort, nil
	})
	if err != nil {
		return 0, err
	}
	return host.(int), nil
}

// hostPortFor selects the first IPv4 binding for a container port, by
// convention.
func hostPortFor(ports engine.PortMap, containerPort int) (int, error) {
	bindings := ports[fmt.Sprintf("%d/tcp", containerPort)]
	for _, binding := range bindings {
		if binding.HostPort == "" || !isIPv4Binding(binding.HostIP) {
			continue
		}
		port, err := strconv.Atoi(binding.HostPort)
		if err != nil {
			return 0, fmt.Errorf("parse host port %q: %w", binding.HostPort, err)
		}
		return port, nil
	}
	return 0, fmt.Errorf("%w: container port %d", ErrPortNotBound, containerPort)
}

// isIPv4Binding accepts an empty host IP (engines omit it for the default
// binding) or any IPv4 address.
func isIPv4Binding(hostIP string) bool {
	if hostIP == "" {
		return true
	}
	ip := net.ParseIP(hostIP)
	return ip != nil && ip.To4() != nil
}
