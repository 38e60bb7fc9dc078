package wait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Policy bounds an evaluation. The zero value takes the defaults.
type Policy struct {
	// Timeout is the overall wall-clock deadline, measured from the start
	// of the evaluation and independent of per-strategy intervals.
	Timeout time.Duration

	// Interval is the default delay between polls of one strategy.
	Interval time.Duration

	// MaxAttempts caps polls per strategy. 0 means bounded by Timeout only.
	MaxAttempts int

	// ProbeTimeout bounds a single probe call so a hanging endpoint cannot
	// stall the evaluation.
	ProbeTimeout time.Duration
}

// DefaultPolicy matches the engine-side conventions: poll every half
// second, give up after thirty.
var DefaultPolicy = Policy{
	Timeout:      30 * time.Second,
	Interval:     500 * time.Millisecond,
	ProbeTimeout: 2 * time.Second,
}

func (p Policy) withDefaults() Policy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy.Timeout
	}
	if p.Interval <= 0 {
		p.Interval = DefaultPolicy.Interval
	}
	if p.ProbeTimeout <= 0 {
		p.ProbeTimeout = DefaultPolicy.ProbeTimeout
	}
	return p
}

// TimeoutError reports an evaluation that ran out of time or attempts.
// Unsatisfied lists the strategies that never succeeded, in declaration
// order.
type TimeoutError struct {
	Timeout     time.Duration
	Unsatisfied []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("container not ready within %s: unsatisfied: %s",
		e.Timeout, strings.Join(e.Unsatisfied, "; "))
}

// strategyTimeout and strategyFailure discriminate, inside the group, why a
// strategy's polling loop stopped. timeout is the deadline that actually
// fired: a per-strategy override when one was set, the policy deadline
// otherwise.
type strategyTimeout struct {
	desc    string
	timeout time.Duration
	err     error
}

func (e *strategyTimeout) Error() string { return e.desc + ": " + e.err.Error() }
func (e *strategyTimeout) Unwrap() error { return e.err }

type strategyFailure struct {
	desc string
	err  error
}

func (e *strategyFailure) Error() string { return e.desc + ": " + e.err.Error() }
func (e *strategyFailure) Unwrap() error { return e.err }

// Evaluator polls readiness strategies until all succeed, any fails
// terminally, or the policy deadline passes.
type Evaluator struct {
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// Evaluate runs all strategies as an all-of composite. Each unsatisfied
// strategy polls on its own interval and leaves the active set once it
// succeeds. A terminal failure from any strategy cancels the rest and is
// returned immediately; exceeding the deadline returns a *TimeoutError
// listing every strategy that never succeeded.
func (e *Evaluator) Evaluate(ctx context.Context, target Target, strategies []Strategy, policy Policy) error {
	if len(strategies) == 0 {
		return nil
	}
	policy = policy.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	satisfied := make([]atomic.Bool, len(strategies))
	g, gctx := errgroup.WithContext(ctx)

	for i, s := range strategies {
		g.Go(func() error {
			interval := s.interval
			if interval <= 0 {
				interval = policy.Interval
			}
			sctx := gctx
			deadline := policy.Timeout
			if s.timeout > 0 {
				deadline = s.timeout
				var scancel context.CancelFunc
				sctx, scancel = context.WithTimeout(gctx, s.timeout)
				defer scancel()
			}

			var backoff retry.Backoff = retry.NewConstant(interval)
			if policy.MaxAttempts > 0 {
				backoff = retry.WithMaxRetries(uint64(policy.MaxAttempts-1), backoff)
			}

			p := &prober{strategy: s}
			err := retry.Do(sctx, backoff, func(ctx context.Context) error {
				pctx, pcancel := context.WithTimeout(ctx, policy.ProbeTimeout)
				defer pcancel()

				err := p.probe(pctx, target)
				if err == nil {
					return nil
				}
				var term *terminalError
				if errors.As(err, &term) {
					return err // fatal, stops the retry loop
				}
				e.logger.Debug("strategy not yet satisfied",
					slog.String("strategy", s.Describe()), slog.Any("reason", err))
				return retry.RetryableError(err)
			})
			if err == nil {
				satisfied[i].Store(true)
				e.logger.Debug("strategy satisfied", slog.String("strategy", s.Describe()))
				return nil
			}

			var term *terminalError
			if errors.As(err, &term) {
				return &strategyFailure{desc: s.Describe(), err: term.Unwrap()}
			}
			return &strategyTimeout{desc: s.Describe(), timeout: deadline, err: err}
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}

	var failure *strategyFailure
	if errors.As(err, &failure) {
		return fmt.Errorf("readiness check failed: %s: %w", failure.desc, failure.err)
	}

	var unsatisfied []string
	for i, s := range strategies {
		if !satisfied[i].Load() {
			unsatisfied = append(unsatisfied, s.Describe())
		}
	}

	// Report the deadline that actually fired, which may be a single
	// strategy's override rather than the policy's.
	timeout := policy.Timeout
	var st *strategyTimeout
	if errors.As(err, &st) {
		timeout = st.timeout
	}
	return &TimeoutError{Timeout: timeout, Unsatisfied: unsatisfied}
}
