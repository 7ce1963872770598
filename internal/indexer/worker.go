package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/store"
)

// Worker indexes finalized episodes in the background, decoupled from
// the query path. A single goroutine drains the queue, so index writes
// are naturally serialized. Queries running before an episode's entry
// lands simply don't see it yet; nothing blocks waiting for it.
type Worker struct {
	ix      *Indexer
	store   store.Store
	log     *zap.Logger
	queue   chan string
	done    chan struct{}
	wg      sync.WaitGroup
	onIndex func(*model.IndexEntry)
}

// NewWorker creates a background indexing worker. onIndex, if set, is
// invoked after each entry commits (used to refresh the in-memory
// inverted index).
func NewWorker(ix *Indexer, st store.Store, onIndex func(*model.IndexEntry), log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		ix:      ix,
		store:   st,
		log:     log,
		queue:   make(chan string, 256),
		done:    make(chan struct{}),
		onIndex: onIndex,
	}
}

// Start launches the single drain goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.done:
				return
			case id := <-w.queue:
				w.process(id)
			}
		}
	}()
}

// Stop drains nothing further and waits for the in-flight episode.
func (w *Worker) Stop() {
	close(w.done)
	w.wg.Wait()
}

// Enqueue schedules an episode for indexing. Fire-and-forget: the
// caller returns immediately once the id is queued.
func (w *Worker) Enqueue(episodeID string) {
	select {
	case w.queue <- episodeID:
	case <-w.done:
	}
}

func (w *Worker) process(id string) {
	ctx := context.Background()
	ep, err := w.store.LoadEpisode(ctx, id)
	if err != nil {
		w.log.Warn("index worker: load failed", zap.String("episode", id), zap.Error(err))
		return
	}
	entry, err := w.ix.Index(ctx, ep)
	if err != nil {
		w.log.Warn("index worker: index failed", zap.String("episode", id), zap.Error(err))
		return
	}
	if w.onIndex != nil {
		w.onIndex(entry)
	}
}

// ReindexAll rebuilds entries for every stored episode. Entry
// construction runs with bounded parallelism; writes serialize through
// the store. Existing entries are replaced, never duplicated.
func (ix *Indexer) ReindexAll(ctx context.Context, parallelism int) (int, error) {
	if parallelism <= 0 {
		parallelism = 4
	}

	episodes, err := ix.store.ListEpisodes(ctx, store.EpisodeFilter{Limit: 1 << 30})
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, meta := range episodes {
		id := meta.ID
		g.Go(func() error {
			ep, err := ix.store.LoadEpisode(gctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil // evicted mid-reindex
				}
				return err
			}
			_, err = ix.Index(gctx, ep)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(episodes), nil
}
