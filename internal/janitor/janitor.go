// Package janitor periodically removes scratch directories left behind by
// jobs whose records have expired, and purges expired status entries from
// backends that do not expire them on their own.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Yudee-19/video-downloader/internal/logger"
)

// DefaultSchedule runs a sweep every ten minutes.
const DefaultSchedule = "@every 10m"

// JobLookup reports whether a job still has a record.
type JobLookup interface {
	JobExists(ctx context.Context, id string) (bool, error)
}

// Purger drops expired status entries.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Config configures a Janitor.
type Config struct {
	ScratchDir string
	// Schedule is a cron spec or descriptor such as "@every 10m"
	Schedule string
	// MaxAge protects directories younger than this even without a record
	MaxAge time.Duration
	Jobs   JobLookup
	Store  Purger
}

// Result summarises one sweep.
type Result struct {
	Removed int
	Kept    int
	Purged  int64
}

// Janitor sweeps the scratch directory on a cron schedule.
type Janitor struct {
	cfg  Config
	cron *cron.Cron
	log  *logger.Logger
	now  func() time.Time

	mu      sync.Mutex
	started bool
}

// New creates a Janitor. The schedule is validated here so a bad spec fails
// at startup.
func New(cfg Config) (*Janitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}

	j := &Janitor{
		cfg:  cfg,
		cron: cron.New(),
		log:  logger.Default().WithComponent("janitor"),
		now:  time.Now,
	}

	if _, err := j.cron.AddFunc(cfg.Schedule, j.run); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

// Start begins running sweeps in the background.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.cron.Start()
	j.log.Info(context.Background(), "janitor started", map[string]interface{}{
		"schedule": j.cfg.Schedule,
		"max_age":  j.cfg.MaxAge.String(),
	})
}

// Stop stops scheduling and waits for a running sweep or ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return nil
	}
	j.started = false
	j.mu.Unlock()

	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := j.Sweep(ctx)
	fields := map[string]interface{}{
		"removed": res.Removed,
		"kept":    res.Kept,
		"purged":  res.Purged,
	}
	if err != nil {
		j.log.Error(ctx, "janitor sweep failed", err, fields)
		return
	}
	if res.Removed > 0 || res.Purged > 0 {
		j.log.Info(ctx, "janitor sweep finished", fields)
	}
}

// Sweep removes job directories that are older than MaxAge and whose job
// record is gone, then purges expired status entries.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	var res Result

	entries, err := os.ReadDir(j.cfg.ScratchDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("failed to read scratch dir: %w", err)
	}

	cutoff := j.now().Add(-j.cfg.MaxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			res.Kept++
			continue
		}

		id := entry.Name()
		if j.cfg.Jobs != nil {
			exists, err := j.cfg.Jobs.JobExists(ctx, id)
			if err != nil {
				// store trouble; try again next sweep
				j.log.Warn(ctx, "failed to look up job, keeping directory", map[string]interface{}{
					"job_id": id,
					"error":  err.Error(),
				})
				res.Kept++
				continue
			}
			if exists {
				res.Kept++
				continue
			}
		}

		if err := os.RemoveAll(filepath.Join(j.cfg.ScratchDir, id)); err != nil {
			j.log.Warn(ctx, "failed to remove orphaned job directory", map[string]interface{}{
				"job_id": id,
				"error":  err.Error(),
			})
			res.Kept++
			continue
		}
		res.Removed++
	}

	if j.cfg.Store != nil {
		n, err := j.cfg.Store.Purge(ctx)
		res.Purged = n
		if err != nil {
			return res, fmt.Errorf("failed to purge status store: %w", err)
		}
	}
	return res, nil
}
