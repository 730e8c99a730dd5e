package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plan-intel/internal/ingest"
	"github.com/joseph-ayodele/plan-intel/internal/render"
	"github.com/joseph-ayodele/plan-intel/internal/selector"
)

func (c *cli) enqueueDirCmd() *cobra.Command {
	var (
		owner      string
		skipHidden bool
	)
	cmd := &cobra.Command{
		Use:   "enqueue-dir <dir>",
		Short: "Queue every PDF and image under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			results, stats, err := ingest.EnqueueDirectory(cmd.Context(), a.NewEnqueuer(), owner, args[0], skipHidden)
			if err != nil {
				return err
			}
			return c.printJSON(map[string]any{"stats": stats, "results": results})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner segment of the object keys")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and dot directories")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var (
		owner    string
		initial  bool
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Queue plan files as they appear under one or more directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			paths, _, err := ingest.StartWatcher(cmd.Context(), ingest.WatchConfig{
				Roots:       args,
				InitialScan: initial,
				Debounce:    debounce,
			}, c.logger)
			if err != nil {
				return err
			}
			stats := ingest.Follow(cmd.Context(), a.NewEnqueuer(), owner, paths, c.logger)
			return c.printJSON(stats)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner segment of the object keys")
	cmd.Flags().BoolVar(&initial, "initial-scan", false, "also queue files already present")
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "wait this long after the last write before queueing")
	return cmd
}

type pageReport struct {
	PageNo     int      `json:"page_no"`
	Chars      int      `json:"chars"`
	Categories []string `json:"categories"`
	Snippet    string   `json:"snippet,omitempty"`
}

// inspectCmd shows what the selector would send to the model, without touching the database.
func (c *cli) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "Print PDF metadata, page categories and the page selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			r := render.NewRenderer(render.Config{
				Pdftoppm:  c.cfg.Render.Pdftoppm,
				Tesseract: c.cfg.Render.Tesseract,
				DPI:       c.cfg.Render.DPI,
				MaxPages:  c.cfg.Render.MaxPages,
			}, c.logger)

			meta, err := r.Metadata(ctx, path)
			if err != nil {
				return err
			}
			texts, err := r.PageTexts(ctx, path)
			if err != nil {
				return err
			}

			cat := selector.Categorize(texts)
			pages := make([]pageReport, len(texts))
			for i, t := range texts {
				pages[i] = pageReport{
					PageNo:     i,
					Chars:      len(t),
					Categories: selector.CategoriesOf(cat, i),
					Snippet:    snippet(t, 80),
				}
			}
			return c.printJSON(map[string]any{
				"metadata":       meta,
				"pages":          pages,
				"categorization": cat,
				"fallback":       selector.ShouldProcessAllPages(cat),
				"selection":      selector.EffectiveSelection(cat, len(texts), c.cfg.Worker.FallbackPages),
			})
		},
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
