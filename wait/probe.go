package wait

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RevCBH/berth/engine"
)

// Target is the container surface a strategy probes. The root package's
// container handle and the compose orchestrator's service handles both
// satisfy it.
type Target interface {
	// State returns the engine-reported process state.
	State(ctx context.Context) (engine.ContainerState, error)

	// Exec runs a command inside the container.
	Exec(ctx context.Context, cmd []string) (engine.ExecResult, error)

	// Logs returns log output since the given time (zero means all).
	Logs(ctx context.Context, since time.Time) (string, error)

	// HostPort resolves a container port to its bound host port.
	HostPort(ctx context.Context, containerPort int) (int, error)

	// Host is the address host-side probes connect to.
	Host() string
}

// terminalError marks a condition that can never become ready, so polling
// must stop immediately instead of waiting out the timeout.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

func terminalf(format string, args ...any) error {
	return &terminalError{err: fmt.Errorf(format, args...)}
}

// prober carries per-evaluation probe state. The log cursor lives here so
// that a Strategy value stays reusable across evaluations.
type prober struct {
	strategy     Strategy
	seenLogLines int
}

// probe runs one readiness check. It returns nil when satisfied, a
// *terminalError when the container can never become ready, and any other
// error when the check should be retried.
func (p *prober) probe(ctx context.Context, t Target) error {
	s := p.strategy
	switch s.kind {
	case KindHealthCheck:
		return p.probeHealth(ctx, t)
	case KindLog:
		return p.probeLog(ctx, t)
	case KindHTTP:
		return p.probeHTTP(ctx, t)
	case KindTCP:
		return p.probeTCP(ctx, t)
	case KindExit:
		return p.probeExit(ctx, t)
	default:
		return terminalf("unknown wait strategy %q", s.kind)
	}
}

func (p *prober) probeHealth(ctx context.Context, t Target) error {
	state, err := t.State(ctx)
	if err != nil {
		return err
	}
	if state.Exited() {
		return terminalf("container exited with code %d before becoming ready", state.ExitCode)
	}

	if len(p.strategy.cmd) > 0 {
		result, err := t.Exec(ctx, p.strategy.cmd)
		if err != nil {
			return err
		}
		if result.ExitCode != p.strategy.exitCode {
			return fmt.Errorf("health command exited %d, want %d", result.ExitCode, p.strategy.exitCode)
		}
		return nil
	}

	switch state.Health.Status {
	case "healthy":
		return nil
	case "unhealthy":
		return terminalf("engine reports container unhealthy")
	case "":
		return terminalf("image declares no health check")
	default: // "starting"
		return fmt.Errorf("health status %q", state.Health.Status)
	}
}

func (p *prober) probeExit(ctx context.Context, t Target) error {
	state, err := t.State(ctx)
	if err != nil {
		return err
	}
	if !state.Exited() {
		return fmt.Errorf("container still %s", state.Status)
	}
	if state.ExitCode != p.strategy.exitCode {
		return terminalf("container exited with code %d, want %d", state.ExitCode, p.strategy.exitCode)
	}
	return nil
}

func (p *prober) probeLog(ctx context.Context, t Target) error {
	out, err := t.Logs(ctx, time.Time{})
	if err != nil {
		return err
	}
	lines := strings.Split(out, "\n")
	// The final element is either "" (log ends in a newline) or a line
	// still being written; only newline-terminated lines go behind the
	// cursor, so a partial line is seen again once it is complete.
	complete := len(lines) - 1
	tail := lines[complete]

	// A shrinking log means the container restarted; start over.
	if p.seenLogLines > complete {
		p.seenLogLines = 0
	}
	fresh := lines[p.seenLogLines:complete]
	p.seenLogLines = complete

	for _, line := range fresh {
		if p.strategy.pattern.MatchString(line) {
			return nil
		}
	}
	if tail != "" && p.strategy.pattern.MatchString(tail) {
		return nil
	}
	return fmt.Errorf("no log line matching %q yet", p.strategy.pattern)
}

func (p *prober) probeTCP(ctx context.Context, t Target) error {
	hostPort, err := t.HostPort(ctx, p.strategy.port)
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(t.Host(), strconv.Itoa(hostPort)))
	if err != nil {
		return fmt.Errorf("port %d not accepting connections: %w", p.strategy.port, err)
	}
	return conn.Close()
}

func (p *prober) probeHTTP(ctx context.Context, t Target) error {
	s := p.strategy
	hostPort, err := t.HostPort(ctx, s.port)
	if err != nil {
		return err
	}

	scheme := "http"
	client := &http.Client{}
	if s.https {
		scheme = "https"
		if s.insecure {
			client.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}
	path := s.path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(t.Host(), strconv.Itoa(hostPort)), path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return terminalf("build request for %s: %v", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	for _, code := range s.codes {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("GET %s returned %d, want one of %v", url, resp.StatusCode, s.codes)
}
