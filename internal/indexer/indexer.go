// Package indexer derives searchable semantic index entries from
// finalized episodes.
package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/internal/summarize"
	"github.com/mnemo-ai/mnemo/internal/token"
)

const (
	maxInvokeKeys  = 12
	maxTitleLen    = 80
	maxSummaryLen  = 400
	summaryTimeout = 15 * time.Second
)

// Indexer builds index entries for episodes. Summarization is
// delegated to the external collaborator when one is configured; on
// failure the local heuristic takes over so indexing never fails
// outright.
type Indexer struct {
	store      store.Store
	summarizer summarize.Summarizer // may be nil
	weights    model.RankWeights
	log        *zap.Logger
}

// New creates an Indexer. summarizer may be nil to run heuristic-only.
func New(st store.Store, summarizer summarize.Summarizer, weights model.RankWeights, log *zap.Logger) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{store: st, summarizer: summarizer, weights: weights, log: log}
}

// Index builds and persists the index entry for an episode. Re-running
// it replaces the previous entry; it never duplicates. Store writes are
// serialized by the store's single-writer discipline.
func (ix *Indexer) Index(ctx context.Context, ep *model.Episode) (*model.IndexEntry, error) {
	entry := ix.Build(ctx, ep)
	if err := ix.store.PutIndexEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("index episode %s: %w", ep.ID, err)
	}
	ix.log.Debug("episode indexed",
		zap.String("episode", ep.ID),
		zap.Int("keys", len(entry.InvokeKeys)),
		zap.Float64("composite", entry.Composite))
	return entry, nil
}

// Build derives the entry without persisting it.
func (ix *Indexer) Build(ctx context.Context, ep *model.Episode) *model.IndexEntry {
	text := ep.Text()

	title, summary, topics := ix.summarizeOrFallback(ctx, text)

	// Invoke keys blend collaborator topics with frequency-derived
	// keywords from the full content, so an episode with no explicit
	// trigger phrase still ends up retrievable. Multi-word topics are
	// tokenized so keys and prompt tokens share one namespace.
	keys := token.Unique(token.Tokenize(strings.Join(topics, " ")), token.Keywords(text, 8))
	if len(keys) > maxInvokeKeys {
		keys = keys[:maxInvokeKeys]
	}

	a := Assess(ep)
	entry := &model.IndexEntry{
		EpisodeID:    ep.ID,
		Title:        title,
		Summary:      summary,
		InvokeKeys:   keys,
		QualityLevel: a.QualityLevel,
		Learning:     a.Learning,
		Complexity:   a.Complexity,
		Emotional:    a.Emotional,
		IndexedAt:    time.Now().UTC(),
	}
	entry.Composite = entry.ComputeComposite(ix.weights)
	return entry
}

func (ix *Indexer) summarizeOrFallback(ctx context.Context, text string) (title, summary string, topics []string) {
	if ix.summarizer != nil {
		sctx, cancel := context.WithTimeout(ctx, summaryTimeout)
		defer cancel()
		if r, err := ix.summarizer.Summarize(sctx, text); err == nil {
			return truncate(r.Title, maxTitleLen), truncate(r.Summary, maxSummaryLen), r.Topics
		} else {
			ix.log.Warn("summarizer failed, using heuristic", zap.Error(err))
		}
	}
	return heuristicSummary(text)
}

// heuristicSummary is the local fallback: leading text as title, a
// leading excerpt as summary, frequency keywords as topics.
func heuristicSummary(text string) (title, summary string, topics []string) {
	lead := text
	if i := strings.IndexByte(lead, '\n'); i >= 0 {
		lead = lead[:i]
	}
	// Strip the speaker prefix from the leading line.
	if i := strings.Index(lead, ": "); i >= 0 && i < 12 {
		lead = lead[i+2:]
	}
	title = truncate(strings.TrimSpace(lead), maxTitleLen)
	if title == "" {
		title = "untitled conversation"
	}
	summary = truncate(strings.TrimSpace(text), maxSummaryLen)
	topics = token.Keywords(text, 8)
	return title, summary, topics
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
