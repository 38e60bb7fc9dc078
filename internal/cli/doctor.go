package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/RevCBH/berth/engine"
	"github.com/spf13/cobra"
)

// DoctorOptions holds flags for the doctor command
type DoctorOptions struct {
	Timeout time.Duration // Per-engine probe timeout
}

// NewDoctorCmd creates the doctor command
func NewDoctorCmd(app *App) *cobra.Command {
	opts := DoctorOptions{
		Timeout: 5 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check which container engines are installed",
		Long: `Doctor probes every supported container engine and reports which
ones respond, along with their client versions. The first available engine
in priority order is the one tests will use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), app, cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", opts.Timeout,
		"Per-engine probe timeout")

	return cmd
}

func runDoctor(ctx context.Context, app *App, cmd *cobra.Command, opts DoctorOptions) error {
	out := cmd.OutOrStdout()

	var selected engine.Variant
	for _, variant := range engine.Variants() {
		probeCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		version, err := app.probe(probeCtx, variant)
		cancel()

		if err != nil {
			fmt.Fprintf(out, "%-8s not available\n", variant)
			continue
		}
		fmt.Fprintf(out, "%-8s %s\n", variant, version)
		if selected == "" {
			selected = variant
		}
	}

	if selected == "" {
		return engine.ErrNotInstalled
	}
	fmt.Fprintf(out, "\nselected: %s\n", selected)
	return nil
}
