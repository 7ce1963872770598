// Package service wires the memory subsystems into one explicitly
// constructed engine with an open/close lifecycle. Callers hold a
// reference; there is no process-wide instance.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/indexer"
	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/relevance"
	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/internal/summarize"
	"github.com/mnemo-ai/mnemo/internal/synth"
)

// QueryResult is handed to the response-generation collaborator: the
// ranked targets plus the synthesized contextual rules.
type QueryResult struct {
	Matches []relevance.Match      `json:"matches"`
	Rules   []model.ContextualRule `json:"rules"`
}

// Engine is the memory service. One instance serves one conversation
// session; construct with Open, release with Close.
type Engine struct {
	cfg       config.Config
	log       *zap.Logger
	store     *store.SQLiteStore
	indexer   *indexer.Indexer
	worker    *indexer.Worker
	relevance *relevance.Engine
	synth     *synth.Synthesizer

	session []model.Turn
	started time.Time
}

// Open constructs the engine: opens the store, rebuilds the in-memory
// retrieval index, and starts the background indexing worker.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	st, err := store.NewSQLiteStore(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	summarizer, err := summarize.NewFromConfig(cfg.Summarizer)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("summarizer: %w", err)
	}

	rel := relevance.NewEngine(st, cfg.Relevance, log)
	if err := rel.Load(ctx); err != nil {
		st.Close()
		return nil, err
	}

	ix := indexer.New(st, summarizer, cfg.Weights, log)
	e := &Engine{
		cfg:       cfg,
		log:       log,
		store:     st,
		indexer:   ix,
		relevance: rel,
		synth:     synth.New(cfg.Rules, log),
	}
	e.worker = indexer.NewWorker(ix, st, rel.Apply, log)
	e.worker.Start()

	return e, nil
}

// Close stops background work and releases the store.
func (e *Engine) Close() error {
	e.worker.Stop()
	return e.store.Close()
}

// Store exposes the persistence layer for read-side callers (CLI
// listings, export, stats).
func (e *Engine) Store() *store.SQLiteStore { return e.store }

// Indexer exposes explicit re-index operations.
func (e *Engine) Indexer() *indexer.Indexer { return e.indexer }

// ObserveTurn buffers a live session turn. Nothing is persisted until
// Finalize; in-progress sessions are invisible to retrieval. Observing
// a turn also advances contextual-rule TTLs.
func (e *Engine) ObserveTurn(speaker model.Speaker, text string) {
	if len(e.session) == 0 {
		e.started = time.Now().UTC()
	}
	e.session = append(e.session, model.Turn{
		Speaker: speaker,
		Text:    text,
		At:      time.Now().UTC(),
	})
	e.synth.ObserveTurn()
}

// Finalize persists the buffered session as an immutable episode,
// queues it for background indexing, and applies retention. The
// session buffer resets on success.
func (e *Engine) Finalize(ctx context.Context) (*model.Episode, error) {
	ep, err := e.FinalizeTurns(ctx, e.session, model.SessionMeta{
		StartedAt: e.started,
		EndedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	e.session = nil
	e.synth.Reset()
	return ep, nil
}

// FinalizeTurns persists an explicit turn list (import, ingest).
func (e *Engine) FinalizeTurns(ctx context.Context, turns []model.Turn, meta model.SessionMeta) (*model.Episode, error) {
	ep, err := e.store.FinalizeEpisode(ctx, turns, meta)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	// Fire-and-forget: the query path must never wait on indexing.
	e.worker.Enqueue(ep.ID)

	if max := e.cfg.Retention.MaxEpisodes; max > 0 {
		evicted, err := e.store.EvictEpisodes(ctx, max)
		if err != nil {
			e.log.Warn("retention eviction failed", zap.Error(err))
		} else if len(evicted) > 0 {
			e.relevance.Forget(evicted)
		}
	}

	return ep, nil
}

// Query ranks stored memory against the prompt and synthesizes the
// contextual rules for this exchange. A memory failure degrades to the
// synthesizer's fallback path instead of blocking the turn.
func (e *Engine) Query(ctx context.Context, prompt string, maxResults int) (*QueryResult, error) {
	matches, err := e.relevance.Query(ctx, prompt, maxResults)
	if err != nil {
		e.log.Warn("relevance query failed, degrading to fallback", zap.Error(err))
		matches = nil
	}

	rules := e.synth.Synthesize(prompt, matches, e.recentWindow(6))
	return &QueryResult{Matches: matches, Rules: rules}, nil
}

// Learn records or merges a core memory item.
func (e *Engine) Learn(ctx context.Context, p store.LearnParams) (*model.CoreItem, error) {
	return e.store.LearnCoreItem(ctx, p)
}

// Principles returns the active core memory working set.
func (e *Engine) Principles(ctx context.Context) ([]model.CoreItem, error) {
	return e.store.ActiveCoreItems(ctx)
}

// ActiveRules returns the live contextual rule set.
func (e *Engine) ActiveRules() []model.ContextualRule {
	return e.synth.ActiveRules()
}

// RecordViolation reports that a response broke a contextual rule.
func (e *Engine) RecordViolation(ruleID string) {
	e.synth.RecordViolation(ruleID)
}

// Reindex rebuilds the index entry for one episode and refreshes the
// retrieval index.
func (e *Engine) Reindex(ctx context.Context, episodeID string) (*model.IndexEntry, error) {
	ep, err := e.store.LoadEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	entry, err := e.indexer.Index(ctx, ep)
	if err != nil {
		return nil, err
	}
	e.relevance.Apply(entry)
	return entry, nil
}

// ReindexAll rebuilds every entry and reloads the retrieval index.
func (e *Engine) ReindexAll(ctx context.Context, parallelism int) (int, error) {
	n, err := e.indexer.ReindexAll(ctx, parallelism)
	if err != nil {
		return n, err
	}
	return n, e.relevance.Load(ctx)
}

func (e *Engine) recentWindow(n int) []model.Turn {
	if len(e.session) <= n {
		return e.session
	}
	return e.session[len(e.session)-n:]
}
