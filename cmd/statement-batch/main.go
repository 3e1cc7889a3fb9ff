package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statement-parser/internal/app"
	"github.com/joseph-ayodele/statement-parser/internal/async"
	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/export"
	"github.com/joseph-ayodele/statement-parser/internal/history"
	"github.com/joseph-ayodele/statement-parser/internal/ingest"
	"github.com/joseph-ayodele/statement-parser/internal/metrics"
	"github.com/joseph-ayodele/statement-parser/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// collector gathers finished jobs from the worker goroutines.
type collector struct {
	mu       sync.Mutex
	rows     []export.Row
	failed   int
	currency string
	hist     *history.Service
	logger   *slog.Logger
}

func (c *collector) handle(job async.Job, res entity.StatementResult, err error) {
	name := filepath.Base(job.Path)
	if err != nil {
		c.logger.Error("batch.file.failed", "path", job.Path, "error", err)
		c.mu.Lock()
		c.failed++
		c.mu.Unlock()
		return
	}
	res = *pipeline.Success(res).Data

	id := uuid.NewString()
	at := time.Now().UTC()
	if c.hist != nil {
		if data, rerr := os.ReadFile(job.Path); rerr == nil {
			if rec, herr := c.hist.Record(context.Background(), name, data, res); herr != nil {
				c.logger.Error("batch.history.save_failed", "path", job.Path, "error", herr)
			} else {
				id, at = rec.ID.String(), rec.CreatedAt
			}
		}
	}
	c.logger.Info("batch.file.ok", "path", job.Path, "bank", res.Bank, "elapsed_ms", time.Since(job.SubmittedAt).Milliseconds())

	c.mu.Lock()
	c.rows = append(c.rows, export.RowFromResult(id, name, at, res, c.currency))
	c.mu.Unlock()
}

func (c *collector) write(out string) error {
	c.mu.Lock()
	rows := append([]export.Row(nil), c.rows...)
	c.mu.Unlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].FileName < rows[j].FileName })

	if strings.EqualFold(filepath.Ext(out), ".csv") {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := export.WriteCSV(f, rows); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	data, err := export.WriteXLSX(rows)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func main() {
	var (
		dir      = flag.String("dir", "", "directory of statement PDFs (required)")
		out      = flag.String("out", "", "output file, .xlsx or .csv (defaults to statements.xlsx next to --dir)")
		watch    = flag.Bool("watch", false, "keep watching --dir for new statements until interrupted")
		workers  = flag.Int("workers", 4, "number of concurrent workers")
		timeout  = flag.Duration("timeout", 3*time.Minute, "per-document processing timeout")
		currency = flag.String("currency", export.DefaultCurrency, "currency used to display amounts")
		hidden   = flag.Bool("hidden", false, "include hidden files and directories")
		record   = flag.Bool("record", false, "also save results to the history store (HISTORY_DSN)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "statements.xlsx")
	}
	if *workers <= 0 {
		printError("Error: --workers must be positive\n")
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	logger := common.InitLogger(os.Stdout, cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processor, err := app.NewProcessor(cfg, logger, metrics.New())
	if err != nil {
		logger.Error("failed to build processor", "error", err)
		os.Exit(1)
	}

	col := &collector{currency: *currency, logger: logger}
	if *record {
		hist, err := app.OpenHistory(ctx, cfg.History, logger)
		if err != nil {
			logger.Error("failed to open history", "error", err)
			os.Exit(1)
		}
		if hist == nil {
			logger.Warn("HISTORY_DSN not set, --record ignored")
		} else {
			defer hist.Close()
			col.hist = hist
		}
	}

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(*workers),
		async.WithQueueSize(*workers*4),
		async.WithProcessTimeout(*timeout),
		async.WithResultHandler(col.handle),
	)

	start := time.Now()
	if *watch {
		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       []string{*dir},
			InitialScan: true,
			Debounce:    500 * time.Millisecond,
			SkipHidden:  !*hidden,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to start watcher", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("watching for statements", "dir", *dir)
		for events != nil || errs != nil {
			select {
			case p, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if err := queue.Enqueue(ctx, async.Job{Path: p}); err != nil {
					logger.Warn("batch.enqueue.failed", "path", p, "error", err)
				}
			case werr, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Error("batch.watch.error", "error", werr)
			}
		}
	} else {
		paths, stats, err := ingest.Discover(*dir, nil, !*hidden)
		if err != nil {
			logger.Error("failed to scan directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("scan complete", "dir", *dir, "scanned", stats.Scanned, "matched", stats.Matched, "skipped", stats.Skipped, "failed", stats.Failed)
		for _, p := range paths {
			if err := queue.Enqueue(ctx, async.Job{Path: p}); err != nil {
				logger.Warn("batch.enqueue.failed", "path", p, "error", err)
				break
			}
		}
	}

	queue.Shutdown(context.Background())

	if err := col.write(*out); err != nil {
		logger.Error("failed to write output", "out", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("batch complete",
		"out", *out,
		"ok", len(col.rows),
		"failed", col.failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if col.failed > 0 {
		os.Exit(3)
	}
}
