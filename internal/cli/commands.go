package cli

import (
	"context"
	"fmt"
	"odoo-rpa/internal/odoo"
	"odoo-rpa/internal/usecase"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newExportCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "export [jobs...]",
		Short: "Log in to Odoo and run the named export jobs, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Typos fail here, before a browser is started.
			if _, err := odoo.LookupJobs(args...); err != nil {
				return err
			}

			return run(cmd.Context(), func(ctx context.Context, svc *usecase.Service) error {
				result, err := svc.Export.Run(ctx, args...)
				printRun(cmd, result)

				return err
			})
		},
	}
}

func newReportCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Build the PDF report from the newest export and mail it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), func(ctx context.Context, svc *usecase.Service) error {
				result, err := svc.Report.Run(ctx)
				printRun(cmd, result)

				return err
			})
		},
	}
}

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the known export jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFORMAT\tENDPOINT\tDESCRIPTION")

			for _, job := range odoo.Jobs() {
				format := string(job.Format)
				if job.ConvertXLSX {
					format += "->xlsx"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", job.Name, format, job.Endpoint, job.Description)
			}

			return w.Flush()
		},
	}
}
