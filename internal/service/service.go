// Package service is the application context of the PVF server: it owns the
// active dataset and exposes the operations every transport calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/dataset"
	"github.com/agentic-research/pvf/internal/ingest"
	"github.com/agentic-research/pvf/internal/metrics"
	"github.com/agentic-research/pvf/internal/prefetch"
	"github.com/agentic-research/pvf/internal/project"
)

// Publisher announces a newly installed dataset to out-of-process readers.
type Publisher interface {
	Publish(generation uint64, dimension, timePoints int, metadataPath string) error
}

// Config wires a Service.
type Config struct {
	// FS is rooted at the subjects directory.
	FS billy.Filesystem
	// Root is the OS path of FS. Streamline packs are only used when set,
	// since SQLite needs a real file.
	Root string

	Overrides       ingest.Overrides
	PrefetchWorkers int
	// FrameCacheSize bounds the number of projected time indices kept in
	// memory; 0 disables the cache.
	FrameCacheSize int

	Publisher Publisher
}

type frameKey struct {
	gen uint64
	t   int
}

type Service struct {
	fs        billy.Filesystem
	root      string
	loader    *ingest.Loader
	store     *dataset.Store
	prefetch  *prefetch.Prefetcher
	frames    *lru.Cache[frameKey, *project.Frames]
	publisher Publisher

	loadMu sync.Mutex
	loads  singleflight.Group
}

func New(cfg Config) (*Service, error) {
	if cfg.FS == nil {
		return nil, errors.New("service: no subjects filesystem")
	}
	store := dataset.NewStore()
	s := &Service{
		fs:        cfg.FS,
		root:      cfg.Root,
		loader:    ingest.NewLoader(cfg.FS, cfg.Overrides),
		store:     store,
		prefetch:  prefetch.New(store, cfg.PrefetchWorkers),
		publisher: cfg.Publisher,
	}
	if cfg.FrameCacheSize > 0 {
		c, err := lru.New[frameKey, *project.Frames](cfg.FrameCacheSize)
		if err != nil {
			return nil, fmt.Errorf("frame cache: %w", err)
		}
		s.frames = c
	}
	return s, nil
}

// Close stops the background prefetch.
func (s *Service) Close() {
	s.prefetch.Stop()
}

func (s *Service) ListSubjects() ([]string, error) {
	return ingest.ListSubjects(s.fs)
}

func (s *Service) ListSubjectFiles(subjectID string) ([]string, error) {
	return ingest.ListSubjectFiles(s.fs, subjectID)
}

// LoadDataset makes (subjectID, metadataFile) the active dataset and returns
// its time-0 slice. When the pair is already active nothing is reread.
// Concurrent loads are serialized and identical concurrent loads share one
// read, which runs to completion even if the caller that started it goes
// away. A failed load leaves the previous dataset in place.
func (s *Service) LoadDataset(ctx context.Context, subjectID, metadataFile string) (*api.SlicePayload, error) {
	id := dataset.Identity{SubjectID: subjectID, MetadataFile: metadataFile}
	if s.store.Matches(id) {
		slog.Debug("service: dataset already active", "subject", subjectID, "file", metadataFile)
		ds, err := s.store.Guard(id)
		if err == nil {
			return s.loadResponse(ds)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The shared load outlives any one caller; each caller stops waiting
	// when its own ctx is done.
	ch := s.loads.DoChan(id.String(), func() (any, error) {
		return s.load(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.Debug("service: joined in-flight load", "subject", subjectID, "file", metadataFile)
		}
		return s.loadResponse(res.Val.(*dataset.Dataset))
	}
}

func (s *Service) load(ctx context.Context, id dataset.Identity) (*dataset.Dataset, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	// Another load may have installed id while this one waited.
	if ds, err := s.store.Guard(id); err == nil {
		return ds, nil
	}

	start := time.Now()
	ds, err := s.loader.Load(ctx, id)
	if err != nil {
		metrics.LoadDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		slog.Error("service: load failed, keeping previous dataset", "subject", id.SubjectID, "file", id.MetadataFile, "err", err)
		return nil, err
	}

	gen := s.store.Swap(ds)
	if s.frames != nil {
		s.frames.Purge()
	}
	metrics.LoadDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	metrics.LoadWarnings.Add(float64(len(ds.Warnings)))
	metrics.ActiveGeneration.Set(float64(gen))

	corpus := s.corpusFor(ds)
	taskID := s.prefetch.Start(gen, corpus)
	slog.Info("service: dataset installed",
		"subject", id.SubjectID,
		"file", id.MetadataFile,
		"generation", gen,
		"prefetch_task", taskID,
		"prefetch_source", corpus.Source(),
	)

	if s.publisher != nil {
		path := filepath.Join(s.root, id.SubjectID, id.MetadataFile)
		if err := s.publisher.Publish(gen, ds.Dimension, ds.NumTimePoints, path); err != nil {
			slog.Warn("service: publish generation failed", "generation", gen, "err", err)
		}
	}
	return ds, nil
}

func (s *Service) loadResponse(ds *dataset.Dataset) (*api.SlicePayload, error) {
	p, err := s.SliceOf(ds, 0)
	if err != nil {
		return nil, err
	}
	p.Warnings = ds.Warnings
	return p, nil
}

// corpusFor prefers the SQLite pack of ds when one exists on disk.
func (s *Service) corpusFor(ds *dataset.Dataset) ingest.Corpus {
	if ds.StreamlinePack != "" && s.root != "" {
		return &ingest.PackCorpus{DBPath: filepath.Join(s.root, filepath.FromSlash(ds.StreamlinePack))}
	}
	return &ingest.DirCorpus{FS: s.fs, Dir: ds.StreamlineDir}
}

// GetSlice returns the slice at t of the active dataset. It is rejected with
// dataset.ErrIdentityMismatch unless (subjectID, metadataFile) is active.
func (s *Service) GetSlice(subjectID, metadataFile string, t int) (*api.SlicePayload, error) {
	ds, err := s.store.Guard(dataset.Identity{SubjectID: subjectID, MetadataFile: metadataFile})
	if err != nil {
		metrics.SliceRequests.WithLabelValues("mismatch").Inc()
		return nil, err
	}
	return s.SliceOf(ds, t)
}

// SliceOf projects ds at t, reusing cached frames of the same generation.
func (s *Service) SliceOf(ds *dataset.Dataset, t int) (*api.SlicePayload, error) {
	if err := ds.CheckTime(t); err != nil {
		metrics.SliceRequests.WithLabelValues("out_of_range").Inc()
		return nil, err
	}

	frames, err := s.framesOf(ds, t)
	if err != nil {
		return nil, err
	}
	p, err := project.Slice(ds, t, frames)
	if err != nil {
		return nil, err
	}
	metrics.SliceRequests.WithLabelValues("ok").Inc()
	return p, nil
}

func (s *Service) framesOf(ds *dataset.Dataset, t int) (*project.Frames, error) {
	key := frameKey{gen: ds.Generation, t: t}
	if s.frames != nil {
		if f, ok := s.frames.Get(key); ok {
			metrics.FrameCache.WithLabelValues("hit").Inc()
			return f, nil
		}
		metrics.FrameCache.WithLabelValues("miss").Inc()
	}
	f, err := project.ProjectFrames(ds, t)
	if err != nil {
		return nil, err
	}
	if s.frames != nil {
		s.frames.Add(key, f)
	}
	return f, nil
}

// Arrows returns the masked arrow projection at t of the active dataset.
func (s *Service) Arrows(subjectID, metadataFile string, t int) (*api.Arrows, error) {
	ds, err := s.store.Guard(dataset.Identity{SubjectID: subjectID, MetadataFile: metadataFile})
	if err != nil {
		return nil, err
	}
	return project.Arrows(ds, t)
}

// RefreshStreamlines rereads the streamline window file covering t and merges it
// into the full cache of the active dataset. It returns the number of
// entries merged.
func (s *Service) RefreshStreamlines(ctx context.Context, subjectID, metadataFile string, t int) (int, error) {
	ds, err := s.store.Guard(dataset.Identity{SubjectID: subjectID, MetadataFile: metadataFile})
	if err != nil {
		return 0, err
	}
	if err := ds.CheckTime(t); err != nil {
		return 0, err
	}

	// Always the window files: a pack is a snapshot and would hide rewrites.
	corpus := &ingest.DirCorpus{FS: s.fs, Dir: ds.StreamlineDir}
	w, err := ingest.WindowFor(ctx, corpus, t)
	if err != nil {
		return 0, err
	}
	entries, err := corpus.Load(ctx, w)
	if err != nil {
		return 0, fmt.Errorf("refresh %s: %w", w.Name, err)
	}
	if err := s.store.CommitStreamlines(ds.Generation, entries); err != nil {
		return 0, err
	}
	slog.Info("service: streamlines refreshed", "window", w.Name, "entries", len(entries), "generation", ds.Generation)
	return len(entries), nil
}

// Active returns the active dataset.
func (s *Service) Active() (*dataset.Dataset, error) {
	return s.store.Current()
}

// Status describes the active dataset and its prefetch.
func (s *Service) Status() api.Status {
	st := api.Status{Prefetch: s.prefetch.Status()}
	ds, err := s.store.Current()
	if err != nil {
		return st
	}
	st.Loaded = true
	st.SubjectID = ds.SubjectID
	st.MetadataFile = ds.MetadataFile
	st.Generation = ds.Generation
	st.Dimension = ds.Dimension
	st.NumTimePoints = ds.NumTimePoints
	st.Warnings = ds.Warnings
	return st
}

// WaitPrefetch blocks until the current streamline prefetch finishes.
func (s *Service) WaitPrefetch(ctx context.Context) error {
	return s.prefetch.Wait(ctx)
}
