package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/RevCBH/berth/engine"
	"github.com/spf13/cobra"
)

// App represents the CLI application with all wired dependencies
type App struct {
	// Root command
	rootCmd *cobra.Command

	// Runtime state
	verbose bool

	// Engine override, used by tests. When nil, commands detect one.
	eng engine.Engine

	// probe checks a single engine variant; swapped out in tests.
	probe func(ctx context.Context, v engine.Variant) (string, error)

	// Version information
	version string
	commit  string
	date    string
}

// New creates a new CLI application
func New() *App {
	app := &App{
		probe: func(ctx context.Context, v engine.Variant) (string, error) {
			return engine.Probe(ctx, v)
		},
	}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.commit = commit
	a.date = date
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "berth",
		Short: "Ephemeral test containers over docker, podman or nerdctl",
		Long: `Berth runs throwaway containers for tests through whichever
container engine CLI is installed, and cleans up after itself.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add persistent flags
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(NewDoctorCmd(a))
	a.rootCmd.AddCommand(NewPruneCmd(a))
	a.rootCmd.AddCommand(NewVersionCmd(a))
}

// logger returns the app logger: debug to stderr when verbose, otherwise
// silent.
func (a *App) logger() *slog.Logger {
	if a.verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// resolveEngine returns the injected engine or detects one.
func (a *App) resolveEngine(ctx context.Context) (engine.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}
	return engine.Detect(ctx, engine.WithLogger(a.logger()))
}
