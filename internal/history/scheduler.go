package history

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/statement-parser/internal/metrics"
)

// ScratchPrefix marks files the service stages in the scratch directory.
const ScratchPrefix = "upload-"

// Pruner deletes results older than a retention period.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// SchedulerConfig configures the maintenance jobs.
type SchedulerConfig struct {
	// Schedule is a cron spec; "@hourly" when empty.
	Schedule   string
	Retention  time.Duration
	ScratchDir string
	// ScratchMaxAge is how old a leftover scratch file must be before it is swept.
	ScratchMaxAge time.Duration
}

// Scheduler runs history pruning and scratch sweeping on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	cfg     SchedulerConfig
	pruner  Pruner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewScheduler builds the scheduler. pruner may be nil when history is disabled.
func NewScheduler(cfg SchedulerConfig, pruner Pruner, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}
	if cfg.ScratchMaxAge <= 0 {
		cfg.ScratchMaxAge = time.Hour
	}
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Scheduler{cron: c, cfg: cfg, pruner: pruner, metrics: m, logger: logger}
}

// Start registers the maintenance job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("history.scheduler.started", "schedule", s.cfg.Schedule, "jobs", len(s.cron.Entries()))
	return nil
}

// Stop stops scheduling; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("history.scheduler.stopping")
	return s.cron.Stop()
}

// RunOnce prunes history and sweeps the scratch directory.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if s.pruner != nil && s.cfg.Retention > 0 {
		n, err := s.pruner.Prune(ctx, s.cfg.Retention)
		if err != nil {
			s.logger.Error("history.prune.failed", "error", err)
		} else {
			s.metrics.Pruned(n)
		}
	}
	if s.cfg.ScratchDir != "" {
		removed, err := SweepScratch(s.cfg.ScratchDir, s.cfg.ScratchMaxAge, time.Now())
		if err != nil {
			s.logger.Error("history.scratch.sweep_failed", "dir", s.cfg.ScratchDir, "error", err)
			return
		}
		if removed > 0 {
			s.logger.Info("history.scratch.swept", "dir", s.cfg.ScratchDir, "removed", removed)
		}
	}
}

// SweepScratch removes staged upload files in dir last modified before
// now-maxAge. Other files are left alone.
func SweepScratch(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), ScratchPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
