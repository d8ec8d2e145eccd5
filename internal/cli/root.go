// Package cli exposes the export and report runs as cobra commands.
package cli

import (
	"context"
	"fmt"
	"odoo-rpa/internal/bootstrap"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/usecase"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// runner starts the application graph, hands the services to fn and stops
// the graph again whatever fn returns.
type runner func(ctx context.Context, fn func(ctx context.Context, svc *usecase.Service) error) error

func newRootCmd(run runner) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "odoo-rpa",
		Short:         "Exports Odoo list views through the browser and ships them on.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(
		newExportCmd(run),
		newReportCmd(run),
		newJobsCmd(),
	)

	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := newRootCmd(runApp).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runApp(ctx context.Context, fn func(ctx context.Context, svc *usecase.Service) error) (err error) {
	var svc *usecase.Service

	app := bootstrap.NewApp(fx.Populate(&svc))
	if err := app.Err(); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
		defer cancel()

		if stopErr := app.Stop(stopCtx); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	return fn(ctx, svc)
}

func printRun(cmd *cobra.Command, run *entity.Run) {
	if run == nil {
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s\n", run.ID, run.Status)

	for _, step := range run.Steps {
		status := "ok"
		if !step.Success {
			status = "FAILED"
		}

		name := step.Name
		if step.Job != "" {
			name = step.Job + "/" + step.Name
		}

		line := fmt.Sprintf("  %-20s %-6s", name, status)
		if step.Path != "" {
			line += " " + step.Path
		}
		if step.Error != "" {
			line += " " + step.Error
		}

		fmt.Fprintln(out, line)
	}
}
