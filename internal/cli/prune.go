package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/RevCBH/berth"
	"github.com/RevCBH/berth/engine"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// PruneOptions holds flags for the prune command
type PruneOptions struct {
	DryRun bool          // List what would be removed without touching it
	Grace  time.Duration // Stop grace period per container
}

// NewPruneCmd creates the prune command
func NewPruneCmd(app *App) *cobra.Command {
	opts := PruneOptions{
		Grace: 10 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove leaked test containers",
		Long: `Prune finds containers carrying the managed label, which marks every
container created by this tool, and stops and removes them. Containers that
outlived their test run, for example after a crashed process or a detach,
are cleaned up this way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), app, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"List matching containers without removing them")
	cmd.Flags().DurationVar(&opts.Grace, "grace", opts.Grace,
		"How long to wait for each container to stop")

	return cmd
}

func runPrune(ctx context.Context, app *App, cmd *cobra.Command, opts PruneOptions) error {
	out := cmd.OutOrStdout()

	eng, err := app.resolveEngine(ctx)
	if err != nil {
		return err
	}

	containers, err := eng.List(ctx, berth.ManagedLabel)
	if err != nil {
		return fmt.Errorf("list managed containers: %w", err)
	}
	if len(containers) == 0 {
		fmt.Fprintln(out, "no managed containers found")
		return nil
	}

	var errs error
	removed := 0
	for _, c := range containers {
		name := containerName(c)
		if opts.DryRun {
			fmt.Fprintf(out, "would remove %s (%s)\n", name, c.ID)
			continue
		}
		if err := eng.Stop(ctx, c.ID, opts.Grace); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", name, err))
		}
		if err := eng.Remove(ctx, c.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		fmt.Fprintf(out, "removed %s (%s)\n", name, c.ID)
		removed++
	}

	if !opts.DryRun {
		fmt.Fprintf(out, "removed %d of %d managed containers\n", removed, len(containers))
	}
	return errs
}

func containerName(c engine.Summary) string {
	if c.Name != "" {
		return c.Name
	}
	return string(c.ID)
}
