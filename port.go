package berth

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/RevCBH/berth/engine"
)

// ExposedPort is a container port with a lazily resolved host port. The
// resolution state lives in a shared cell: copies of an ExposedPort observe
// the same transition from unresolved to resolved, which happens exactly
// once.
type ExposedPort struct {
	container int
	fixedHost int
	cell      *portCell
}

type portCell struct {
	mu       sync.Mutex
	hostPort int
	bound    bool
}

// Port declares a container port whose host port the engine assigns
// dynamically.
func Port(containerPort int) *ExposedPort {
	return &ExposedPort{container: containerPort, cell: &portCell{}}
}

// FixedPort declares a container port published on a fixed host port.
func FixedPort(containerPort, hostPort int) *ExposedPort {
	return &ExposedPort{
		container: containerPort,
		fixedHost: hostPort,
		cell:      &portCell{hostPort: hostPort, bound: true},
	}
}

// ParsePort parses a "host:container" mapping such as "8080:80".
func ParsePort(s string) (*ExposedPort, error) {
	host, container, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid port mapping %q: want \"host:container\"", s)
	}
	hostPort, err := strconv.Atoi(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host port in %q: %w", s, err)
	}
	containerPort, err := strconv.Atoi(container)
	if err != nil {
		return nil, fmt.Errorf("invalid container port in %q: %w", s, err)
	}
	return FixedPort(containerPort, hostPort), nil
}

// Container returns the container-internal port number.
func (p *ExposedPort) Container() int { return p.container }

// Host returns the bound host port, or ErrPortNotBound when resolution has
// not happened yet.
func (p *ExposedPort) Host() (int, error) {
	p.cell.mu.Lock()
	defer p.cell.mu.Unlock()
	if !p.cell.bound {
		return 0, fmt.Errorf("%w: container port %d", ErrPortNotBound, p.container)
	}
	return p.cell.hostPort, nil
}

// Bind records the resolved host port. The first bind wins; later binds
// for the same cell are ignored, keeping resolution single-shot.
func (p *ExposedPort) Bind(hostPort int) {
	p.cell.mu.Lock()
	defer p.cell.mu.Unlock()
	if !p.cell.bound {
		p.cell.hostPort = hostPort
		p.cell.bound = true
	}
}

// Mapping renders the port as a publish entry: "host:container" for a
// fixed port, just the container port for a dynamic one.
func (p *ExposedPort) Mapping() string {
	if p.fixedHost != 0 {
		return strconv.Itoa(p.fixedHost) + ":" + strconv.Itoa(p.container)
	}
	return strconv.Itoa(p.container)
}

func (p *ExposedPort) spec() engine.PortSpec {
	return engine.PortSpec{Container: p.container, Host: p.fixedHost}
}

func (p *ExposedPort) String() string {
	if host, err := p.Host(); err == nil {
		return fmt.Sprintf("%d -> %d", host, p.container)
	}
	return fmt.Sprintf("unresolved (%d)", p.container)
}
