// Package prefetch fills a dataset's full streamline cache in the
// background.
package prefetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/dataset"
	"github.com/agentic-research/pvf/internal/ingest"
	"github.com/agentic-research/pvf/internal/metrics"
)

// Committer accepts streamline entries for the dataset installed under a
// generation. It rejects writes for replaced generations with
// dataset.ErrStaleGeneration.
type Committer interface {
	CommitStreamlines(gen uint64, entries map[int]any) error
}

type task struct {
	id     string
	gen    uint64
	source string
	cancel context.CancelFunc
	done   chan struct{}

	windows   atomic.Int64
	loaded    atomic.Int64
	failed    atomic.Int64
	entries   atomic.Int64
	discarded atomic.Bool
}

// Prefetcher runs at most one prefetch task at a time. Starting a task
// cancels the previous one; anything the old task still commits is rejected
// by the Committer because its generation is no longer active.
type Prefetcher struct {
	store   Committer
	workers int

	mu      sync.Mutex
	current *task
}

func New(store Committer, workers int) *Prefetcher {
	if workers < 1 {
		workers = 1
	}
	return &Prefetcher{store: store, workers: workers}
}

// Start launches a prefetch of corpus for generation gen and returns the task
// id. It never blocks on I/O.
func (p *Prefetcher) Start(gen uint64, corpus ingest.Corpus) string {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:     uuid.NewString(),
		gen:    gen,
		source: corpus.Source(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	prev := p.current
	p.current = t
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	go p.run(ctx, t, corpus)
	return t.id
}

func (p *Prefetcher) run(ctx context.Context, t *task, corpus ingest.Corpus) {
	defer close(t.done)
	defer t.cancel()
	start := time.Now()
	log := slog.With("task", t.id, "generation", t.gen, "source", t.source)

	windows, err := corpus.Windows(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("prefetch: cancelled", "loaded", 0)
			return
		}
		log.Warn("prefetch: cannot list streamline windows", "err", err)
		return
	}
	t.windows.Store(int64(len(windows)))
	log.Info("prefetch: started", "windows", len(windows), "workers", p.workers)

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for _, w := range windows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.fetch(ctx, t, corpus, w, log)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case t.discarded.Load():
		log.Info("prefetch: dataset replaced, results discarded")
	case ctx.Err() != nil:
		log.Info("prefetch: cancelled", "loaded", t.loaded.Load())
	default:
		log.Info("prefetch: completed",
			"loaded", t.loaded.Load(),
			"failed", t.failed.Load(),
			"entries", t.entries.Load(),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}
}

// fetch loads and commits one window. Failures are logged and counted.
func (p *Prefetcher) fetch(ctx context.Context, t *task, corpus ingest.Corpus, w ingest.Window, log *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	entries, err := corpus.Load(ctx, w)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.failed.Add(1)
		metrics.PrefetchWindows.WithLabelValues("failed").Inc()
		log.Warn("prefetch: skipped window", "window", w.Name, "err", err)
		return
	}
	if err := p.store.CommitStreamlines(t.gen, entries); err != nil {
		if errors.Is(err, dataset.ErrStaleGeneration) {
			if !t.discarded.Swap(true) {
				log.Warn("prefetch: stale generation, stopping", "window", w.Name)
			}
			metrics.PrefetchWindows.WithLabelValues("discarded").Inc()
			t.cancel()
			return
		}
		t.failed.Add(1)
		metrics.PrefetchWindows.WithLabelValues("failed").Inc()
		log.Warn("prefetch: commit failed", "window", w.Name, "err", err)
		return
	}
	t.loaded.Add(1)
	t.entries.Add(int64(len(entries)))
	metrics.PrefetchWindows.WithLabelValues("loaded").Inc()
	log.Debug("prefetch: merged window", "window", w.Name, "entries", len(entries))
}

// Status reports the current task, or nil when none was started.
func (p *Prefetcher) Status() *api.PrefetchStatus {
	p.mu.Lock()
	t := p.current
	p.mu.Unlock()
	if t == nil {
		return nil
	}

	done := false
	select {
	case <-t.done:
		done = true
	default:
	}
	return &api.PrefetchStatus{
		TaskID:     t.id,
		Generation: t.gen,
		Source:     t.source,
		Windows:    int(t.windows.Load()),
		Loaded:     int(t.loaded.Load()),
		Failed:     int(t.failed.Load()),
		Entries:    int(t.entries.Load()),
		Done:       done,
		Discarded:  t.discarded.Load(),
	}
}

// Wait blocks until the current task finishes or ctx is done.
func (p *Prefetcher) Wait(ctx context.Context) error {
	p.mu.Lock()
	t := p.current
	p.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the current task and waits for it to exit.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	t := p.current
	p.mu.Unlock()
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}
