package berth

import (
	"log/slog"
	"os"
	"time"

	"github.com/RevCBH/berth/engine"
	"github.com/RevCBH/berth/wait"
)

type options struct {
	eng       engine.Engine
	variant   engine.Variant // forced engine, skips auto-detection
	logger    *slog.Logger
	policy    wait.Policy
	stopGrace time.Duration
}

// Option configures Run behavior.
type Option func(*options)

// WithEngine uses a specific engine instead of auto-detecting one.
func WithEngine(eng engine.Engine) Option {
	return func(o *options) { o.eng = eng }
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPolicy overrides the readiness evaluation policy.
func WithPolicy(p wait.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithStopGrace sets how long teardown waits for the container to stop
// before it is killed. Defaults to 10 seconds.
func WithStopGrace(d time.Duration) Option {
	return func(o *options) { o.stopGrace = d }
}

// envOverrides maps environment variables to option defaults, applied
// before explicit options so code always wins over environment.
var envOverrides = []struct {
	envVar string
	apply  func(*options, string)
}{
	{
		envVar: "BERTH_ENGINE",
		apply: func(o *options, v string) {
			o.variant = engine.Variant(v)
		},
	},
	{
		envVar: "BERTH_WAIT_TIMEOUT",
		apply: func(o *options, v string) {
			if d, err := time.ParseDuration(v); err == nil {
				o.policy.Timeout = d
			}
		},
	},
	{
		envVar: "BERTH_WAIT_INTERVAL",
		apply: func(o *options, v string) {
			if d, err := time.ParseDuration(v); err == nil {
				o.policy.Interval = d
			}
		},
	},
}

func buildOptions(opts []Option) *options {
	o := &options{
		policy:    wait.DefaultPolicy,
		stopGrace: 10 * time.Second,
	}
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(o, val)
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
