package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"keyword_forwarder/internal/model"
)

// Reporter receives the finished run summary for external reporting.
// The orchestrator never formats human-readable output itself.
type Reporter interface {
	Report(ctx context.Context, summary model.Summary)
}

// Orchestrator runs all configured sources, isolating failures and
// aggregating their statistics.
type Orchestrator struct {
	runner   *Runner
	reporter Reporter
	log      *slog.Logger
	workers  int
}

// NewOrchestrator creates an Orchestrator. workers > 1 enables the
// worker pool; the cursor store's compare-and-set keeps concurrent
// cursor writes safe either way.
func NewOrchestrator(r *Runner, reporter Reporter, workers int, log *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{runner: r, reporter: reporter, log: log, workers: workers}
}

// RunAll processes every source to completion or failure. A failing
// source never prevents the remaining ones from running; its error is
// carried in the summary instead.
func (o *Orchestrator) RunAll(ctx context.Context, sources []model.Source) model.Summary {
	summary := model.Summary{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
		Sources: make([]model.SourceStats, len(sources)),
	}

	o.log.Info("run started", "run_id", summary.RunID, "sources", len(sources))

	if o.workers == 1 || len(sources) <= 1 {
		for i, src := range sources {
			summary.Sources[i] = o.runner.Run(ctx, src)
		}
	} else {
		o.runPool(ctx, sources, summary.Sources)
	}

	summary.Finished = time.Now().UTC()

	t := summary.Totals()
	o.log.Info("run finished",
		"run_id", summary.RunID,
		"scanned", t.Scanned,
		"matched", t.Matched,
		"forwarded", t.Forwarded,
		"copied", t.Copied,
		"failed", t.Failed,
		"source_failures", t.Fatal,
	)

	if o.reporter != nil {
		o.reporter.Report(ctx, summary)
	}
	return summary
}

// runPool fans sources out to a bounded set of workers; results land at
// the source's configured index so reporting order stays stable.
func (o *Orchestrator) runPool(ctx context.Context, sources []model.Source, results []model.SourceStats) {
	type job struct {
		idx int
		src model.Source
	}

	jobs := make(chan job)
	var wg sync.WaitGroup

	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = o.runner.Run(ctx, j.src)
			}
		}()
	}

	for i, src := range sources {
		jobs <- job{idx: i, src: src}
	}
	close(jobs)
	wg.Wait()
}

// Watch re-runs the batch every interval until ctx is cancelled. The
// first run happens immediately.
func (o *Orchestrator) Watch(ctx context.Context, sources []model.Source, interval time.Duration) {
	o.RunAll(ctx, sources)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunAll(ctx, sources)
		}
	}
}
