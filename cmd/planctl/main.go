package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plan-intel/internal/app"
	"github.com/joseph-ayodele/plan-intel/internal/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

type cli struct {
	cfg    *common.Config
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "planctl",
		Short:         "Enqueue, inspect and run construction plan jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.cfg = common.LoadConfig()
			c.logger = common.NewLoggerTo(c.cfg.Log, cmd.ErrOrStderr())
			c.out = cmd.OutOrStdout()
			return nil
		},
	}
	root.AddCommand(
		c.enqueueCmd(),
		c.enqueueDirCmd(),
		c.watchCmd(),
		c.inspectCmd(),
		c.statusCmd(),
		c.resultCmd(),
		c.artifactsCmd(),
		c.exportCmd(),
		c.processCmd(),
		c.migrateCmd(),
	)
	return root
}

// open connects the stores. withModel also requires the model settings.
func (c *cli) open(ctx context.Context, withModel bool) (*app.App, error) {
	validate := c.cfg.ValidateStore
	if withModel {
		validate = c.cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, err
	}
	return app.Open(ctx, c.cfg, c.logger)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseJobID(s string) (uuid.UUID, error) {
	return common.ParseUUID("job_id", s)
}
