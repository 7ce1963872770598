package relevance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/internal/token"
)

// Score blend: invoke-key match dominates, lexical similarity refines,
// composite rank boosts well-regarded targets.
const (
	wMatch     = 0.55
	wSimilar   = 0.30
	wComposite = 0.15
)

// TargetKind distinguishes ranked result types.
type TargetKind string

const (
	TargetEpisode   TargetKind = "episode"
	TargetPrinciple TargetKind = "principle"
)

// Match is one ranked retrieval result.
type Match struct {
	Kind      TargetKind        `json:"kind"`
	Episode   *model.IndexEntry `json:"episode,omitempty"`
	Principle *model.CoreItem   `json:"principle,omitempty"`
	Score     float64           `json:"score"`
}

// ID returns the stable identity of the matched target.
func (m Match) ID() string {
	if m.Kind == TargetEpisode {
		return m.Episode.EpisodeID
	}
	return m.Principle.ID
}

// Engine holds the in-memory retrieval index: committed index entries
// plus the inverted invoke-key map, guarded by a single-writer lock.
// It is rebuilt from the store on open and updated as entries commit,
// so the query path never touches disk for candidate selection and
// never blocks on in-flight indexing.
type Engine struct {
	store      store.Store
	classifier Classifier
	cutoff     float64
	maxResults int
	log        *zap.Logger

	mu       sync.RWMutex
	entries  map[string]*model.IndexEntry
	inverted map[string][]string // invoke key -> sorted episode ids
}

// NewEngine creates an engine with an empty index; call Load before
// serving queries.
func NewEngine(st store.Store, cfg config.Relevance, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Engine{
		store:      st,
		classifier: NewClassifier(cfg.Classifier),
		cutoff:     cfg.Cutoff,
		maxResults: maxResults,
		log:        log,
		entries:    make(map[string]*model.IndexEntry),
		inverted:   make(map[string][]string),
	}
}

// Load rebuilds the in-memory index from persisted state. Corrupt
// entries were already skipped by the store.
func (e *Engine) Load(ctx context.Context) error {
	entries, err := e.store.AllIndexEntries(ctx)
	if err != nil {
		return fmt.Errorf("load relevance index: %w", err)
	}

	fresh := make(map[string]*model.IndexEntry, len(entries))
	inverted := make(map[string][]string)
	for i := range entries {
		en := &entries[i]
		fresh[en.EpisodeID] = en
		for _, k := range en.InvokeKeys {
			inverted[k] = append(inverted[k], en.EpisodeID)
		}
	}
	for k := range inverted {
		sort.Strings(inverted[k])
	}

	e.mu.Lock()
	e.entries = fresh
	e.inverted = inverted
	e.mu.Unlock()

	e.log.Debug("relevance index loaded", zap.Int("entries", len(fresh)))
	return nil
}

// Apply folds one freshly committed index entry into the in-memory
// index. Called by the indexing worker after each commit.
func (e *Engine) Apply(entry *model.IndexEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.entries[entry.EpisodeID]; ok {
		for _, k := range old.InvokeKeys {
			e.inverted[k] = removeID(e.inverted[k], old.EpisodeID)
			if len(e.inverted[k]) == 0 {
				delete(e.inverted, k)
			}
		}
	}
	e.entries[entry.EpisodeID] = entry
	for _, k := range entry.InvokeKeys {
		ids := append(e.inverted[k], entry.EpisodeID)
		sort.Strings(ids)
		e.inverted[k] = ids
	}
}

// Forget drops evicted episodes from the in-memory index.
func (e *Engine) Forget(episodeIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range episodeIDs {
		entry, ok := e.entries[id]
		if !ok {
			continue
		}
		for _, k := range entry.InvokeKeys {
			e.inverted[k] = removeID(e.inverted[k], id)
			if len(e.inverted[k]) == 0 {
				delete(e.inverted, k)
			}
		}
		delete(e.entries, id)
	}
}

// Query ranks stored episodes and core principles against the prompt.
// Identical (prompt, memory state) pairs always yield identical output:
// scoring is pure and ties break on target id. Candidate episodes come
// from the inverted index, so cost follows match count, not corpus
// size.
func (e *Engine) Query(ctx context.Context, prompt string, maxResults int) ([]Match, error) {
	if maxResults <= 0 {
		maxResults = e.maxResults
	}

	promptTokens := token.Tokenize(prompt)
	promptVec := textVector(prompt)

	var matches []Match

	// Episodes: pre-filter through the inverted index.
	e.mu.RLock()
	candidates := make(map[string]*model.IndexEntry)
	for _, t := range promptTokens {
		for _, id := range e.inverted[t] {
			candidates[id] = e.entries[id]
		}
	}
	e.mu.RUnlock()

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		en := candidates[id]
		match := e.classifier.Score(promptTokens, en.InvokeKeys)
		if match == 0 {
			continue
		}
		sim := cosine(promptVec, textVector(en.Title, en.Summary, strings.Join(en.InvokeKeys, " ")))
		score := wMatch*match + wSimilar*sim + wComposite*en.Composite
		if score < e.cutoff {
			continue
		}
		matches = append(matches, Match{Kind: TargetEpisode, Episode: en, Score: score})
	}

	// Principles: the working set is small, scan it all.
	items, err := e.store.ActiveCoreItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("query core memory: %w", err)
	}
	for i := range items {
		it := &items[i]
		ruleText := it.Name + " " + it.Description + " " + strings.Join(it.Rules, " ")
		keys := token.Unique(token.Tokenize(ruleText))
		match := e.classifier.Score(promptTokens, keys)
		if match == 0 {
			continue
		}
		sim := cosine(promptVec, textVector(ruleText))
		boost := clampPriority(it.Priority)
		score := wMatch*match + wSimilar*sim + wComposite*boost
		if score < e.cutoff {
			continue
		}
		matches = append(matches, Match{Kind: TargetPrinciple, Principle: it, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID() < matches[j].ID()
	})

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

// clampPriority maps an integer priority onto [0,1] for boosting.
func clampPriority(p int) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 10 {
		return 1
	}
	return float64(p) / 10.0
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
