package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner supervises a fixed set of workers. The first worker error cancels
// the rest.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Len reports how many workers the runner manages.
func (r *Runner) Len() int { return len(r.workers) }

// Run starts every worker and blocks until all have returned. A worker
// error is returned wrapped with the worker's name.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := workerName(w)
		g.Go(func() error {
			slog.LogAttrs(gctx, slog.LevelInfo, "worker started", slog.String("worker", name))
			err := w.Run(gctx)
			if err != nil {
				slog.LogAttrs(gctx, slog.LevelError, "worker failed",
					slog.String("worker", name),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("worker %s: %w", name, err)
			}
			slog.LogAttrs(gctx, slog.LevelDebug, "worker stopped", slog.String("worker", name))
			return nil
		})
	}
	return g.Wait()
}

func workerName(w Worker) string {
	if n, ok := w.(Named); ok {
		return n.Name()
	}
	return "unknown"
}
