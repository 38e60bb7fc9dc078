// Package wait evaluates readiness probes against started containers.
package wait

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind discriminates the closed set of strategy variants.
type Kind string

const (
	KindHealthCheck Kind = "healthcheck"
	KindLog         Kind = "log"
	KindHTTP        Kind = "http"
	KindTCP         Kind = "tcp"
	KindExit        Kind = "exit"
)

// Strategy is one readiness probe. Construct with the For* functions;
// the zero value is not valid. Strategies are values: With* methods return
// modified copies.
type Strategy struct {
	kind Kind

	// timeout/interval of 0 defer to the evaluation policy.
	timeout  time.Duration
	interval time.Duration

	cmd      []string       // healthcheck: command run via engine exec
	exitCode int            // healthcheck/exit: expected exit code
	pattern  *regexp.Regexp // log
	port     int            // http/tcp: container port
	path     string         // http
	codes    []int          // http: accepted status codes
	https    bool           // http
	insecure bool           // http: skip TLS verification
}

// ForHealthCheck waits until the engine reports the container healthy.
// With a command, the command is run inside the container instead and
// exit code 0 means healthy.
func ForHealthCheck(cmd ...string) Strategy {
	return Strategy{kind: KindHealthCheck, cmd: cmd}
}

// ForLog waits until a log line matches the pattern. Lines are consumed
// incrementally; a matched or scanned line is never rescanned.
func ForLog(pattern *regexp.Regexp) Strategy {
	return Strategy{kind: KindLog, pattern: pattern}
}

// ForHTTP waits until a GET against the resolved host port returns one of
// the expected status codes. Codes defaults to 200 when empty.
func ForHTTP(containerPort int, path string, codes ...int) Strategy {
	if len(codes) == 0 {
		codes = []int{200}
	}
	return Strategy{kind: KindHTTP, port: containerPort, path: path, codes: codes}
}

// ForTCP waits until a raw TCP connection to the resolved host port
// succeeds.
func ForTCP(containerPort int) Strategy {
	return Strategy{kind: KindTCP, port: containerPort}
}

// ForExit waits until the container process has exited with the given code.
func ForExit(code int) Strategy {
	return Strategy{kind: KindExit, exitCode: code}
}

// WithExitCode changes the exit code a health-check command must return.
func (s Strategy) WithExitCode(code int) Strategy {
	s.exitCode = code
	return s
}

// WithTLS switches an HTTP strategy to HTTPS. insecure disables certificate
// verification for self-signed endpoints.
func (s Strategy) WithTLS(insecure bool) Strategy {
	s.https = true
	s.insecure = insecure
	return s
}

// WithTimeout overrides the policy timeout for this strategy only.
func (s Strategy) WithTimeout(d time.Duration) Strategy {
	s.timeout = d
	return s
}

// WithInterval overrides the policy polling interval for this strategy only.
func (s Strategy) WithInterval(d time.Duration) Strategy {
	s.interval = d
	return s
}

// Kind returns the strategy variant.
func (s Strategy) Kind() Kind { return s.kind }

// Describe renders the strategy for diagnostics, e.g. in timeout errors.
func (s Strategy) Describe() string {
	switch s.kind {
	case KindHealthCheck:
		if len(s.cmd) > 0 {
			return fmt.Sprintf("health check %q exits %d", strings.Join(s.cmd, " "), s.exitCode)
		}
		return "engine health check reports healthy"
	case KindLog:
		return fmt.Sprintf("log line matches %q", s.pattern)
	case KindHTTP:
		scheme := "http"
		if s.https {
			scheme = "https"
		}
		return fmt.Sprintf("%s GET :%d%s returns %v", scheme, s.port, s.path, s.codes)
	case KindTCP:
		return fmt.Sprintf("tcp port %d accepts connections", s.port)
	case KindExit:
		return fmt.Sprintf("container exits with code %d", s.exitCode)
	default:
		return string(s.kind)
	}
}
