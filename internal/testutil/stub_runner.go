// Package testutil provides test doubles shared across packages.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StubRunner is an engine.Runner that replays canned subprocess responses.
// Stubs are keyed by the full command line and consumed in FIFO order;
// defaults answer any remaining calls for their key.
type StubRunner struct {
	mu       sync.Mutex
	stubs    map[string][]stubResponse
	defaults map[string]stubResponse
	calls    []string
}

type stubResponse struct {
	out    string
	errOut string
	err    error
}

func NewStubRunner() *StubRunner {
	return &StubRunner{
		stubs:    make(map[string][]stubResponse),
		defaults: make(map[string]stubResponse),
	}
}

// Stub queues one response for the given command line.
func (s *StubRunner) Stub(cmdline string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[cmdline] = append(s.stubs[cmdline], stubResponse{out: out, err: err})
}

// StubStderr queues one response that also carries stderr output.
func (s *StubRunner) StubStderr(cmdline string, out, errOut string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[cmdline] = append(s.stubs[cmdline], stubResponse{out: out, errOut: errOut, err: err})
}

// StubDefault answers any call for the given command line once queued
// responses are exhausted.
func (s *StubRunner) StubDefault(cmdline string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[cmdline] = stubResponse{out: out, err: err}
}

func (s *StubRunner) Exec(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	key := name
	if len(args) > 0 {
		key += " " + strings.Join(args, " ")
	}
	s.mu.Lock()
	s.calls = append(s.calls, key)
	queue := s.stubs[key]
	if len(queue) == 0 {
		if resp, ok := s.defaults[key]; ok {
			s.mu.Unlock()
			return resp.out, resp.errOut, resp.err
		}
		s.mu.Unlock()
		return "", "", fmt.Errorf("unexpected engine call: %s", key)
	}
	resp := queue[0]
	s.stubs[key] = queue[1:]
	s.mu.Unlock()
	return resp.out, resp.errOut, resp.err
}

// Calls returns every command line seen, in order.
func (s *StubRunner) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallsFor counts calls whose command line starts with the given prefix.
func (s *StubRunner) CallsFor(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if strings.HasPrefix(call, prefix) {
			count++
		}
	}
	return count
}
