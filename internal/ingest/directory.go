package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

// Enqueuer is the part of core.Enqueuer ingestion needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, owner, filename string, data []byte) (*entity.PlanJob, error)
}

type FileResult struct {
	Path  string `json:"path"`
	JobID string `json:"job_id,omitempty"`
	Err   string `json:"error,omitempty"`
}

type DirStats struct {
	Scanned   uint32 `json:"scanned"`
	Matched   uint32 `json:"matched"`
	Succeeded uint32 `json:"succeeded"`
	Failed    uint32 `json:"failed"`
}

// Allowed reports whether path has an extension accepted for plan uploads.
func Allowed(path string) bool {
	_, ok := constants.KindForExt(filepath.Ext(path))
	return ok
}

// EnqueueFile reads one local file and queues it.
func EnqueueFile(ctx context.Context, enq Enqueuer, owner, path string) (*entity.PlanJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return enq.Enqueue(ctx, owner, filepath.Base(path), data)
}

// EnqueueDirectory walks root and queues every plan file it finds. One bad file does not stop the walk.
func EnqueueDirectory(ctx context.Context, enq Enqueuer, owner, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Allowed(path) {
			return nil
		}
		stats.Matched++

		job, err := EnqueueFile(ctx, enq, owner, path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, FileResult{Path: path, JobID: job.ID.String()})
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
