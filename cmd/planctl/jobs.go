package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plan-intel/internal/common"
)

func (c *cli) enqueueCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Upload a PDF or image and queue it for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.NewEnqueuer().Enqueue(cmd.Context(), owner, filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			return c.printJSON(job)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner segment of the object key (default anonymous)")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status and error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.Jobs.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.printJSON(job)
		},
	}
}

func (c *cli) resultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <job-id>",
		Short: "Print the stored analysis as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			ok, err := a.Jobs.Exists(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: job %s", common.ErrNotFound, id)
			}
			analysis, err := a.Analyses.GetByJobID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("job %s has no analysis yet: %w", id, err)
			}
			return c.printJSON(analysis)
		},
	}
}

func (c *cli) artifactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts <job-id>",
		Short: "List the artifacts recorded for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			arts, err := a.Artifacts.ListByJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.printJSON(arts)
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Write the takeoff workbook (.xlsx) for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.Export.ExportAnalysisXLSX(cmd.Context(), id)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("takeoff-%s.xlsx", id)
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "wrote %s (%d bytes)\n", out, len(b))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (default takeoff-<job-id>.xlsx)")
	return cmd
}

func (c *cli) processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <job-id>",
		Short: "Claim one queued job and process it in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			proc, err := a.NewProcessor()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.Worker.JobTimeout)
			defer cancel()
			if err := proc.ProcessByID(ctx, id); err != nil {
				return err
			}

			job, err := a.Jobs.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.printJSON(job)
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the job, artifact and analysis tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.DB.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "schema up to date")
			return nil
		},
	}
}
