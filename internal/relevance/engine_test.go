package relevance

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	e := NewEngine(s, config.Default().Relevance, nil)
	return e, s
}

func addIndexed(t *testing.T, e *Engine, s *store.SQLiteStore, text string, keys []string, quality int) string {
	t.Helper()
	ctx := context.Background()
	turns := []model.Turn{{Speaker: model.SpeakerUser, Text: text, At: time.Now().UTC()}}
	ep, err := s.FinalizeEpisode(ctx, turns, model.SessionMeta{EndedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	entry := &model.IndexEntry{
		EpisodeID:    ep.ID,
		Title:        text,
		Summary:      text,
		InvokeKeys:   keys,
		QualityLevel: quality,
	}
	entry.Composite = entry.ComputeComposite(model.DefaultRankWeights())
	if err := s.PutIndexEntry(ctx, entry); err != nil {
		t.Fatalf("index: %v", err)
	}
	e.Apply(entry)
	return ep.ID
}

func TestQueryDeterministic(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)

	addIndexed(t, e, s, "chat about telescope lenses", []string{"telescope", "lenses"}, 4)
	addIndexed(t, e, s, "chat about telescope mounts", []string{"telescope", "mounts"}, 3)
	s.LearnCoreItem(ctx, store.LearnParams{
		Category: model.CategoryPreference, Name: "telescope shopping",
		Description: "prefers budget telescope gear", Priority: 5,
	})

	first, err := e.Query(ctx, "which telescope should I buy", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	second, err := e.Query(ctx, "which telescope should I buy", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if len(first) == 0 {
		t.Fatal("expected results")
	}
	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID() != second[i].ID() || first[i].Score != second[i].Score {
			t.Errorf("position %d differs between identical queries", i)
		}
	}
}

func TestRankingPrefersHigherComposite(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)

	// A: on-topic, high composite. B: unrelated topic, low composite,
	// but one of its keys also appears in the query.
	aID := addIndexed(t, e, s, "deep dive on rust lifetimes", []string{"rust", "lifetimes", "borrowing"}, 5)
	bID := addIndexed(t, e, s, "small talk mentioning rust once", []string{"rust", "weather", "smalltalk"}, 1)

	matches, err := e.Query(ctx, "explain rust lifetimes and borrowing", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	posA, posB := -1, -1
	for i, m := range matches {
		switch m.ID() {
		case aID:
			posA = i
		case bID:
			posB = i
		}
	}
	if posA == -1 {
		t.Fatal("A missing from results")
	}
	if posB != -1 && posA > posB {
		t.Errorf("A (rank %d) must place at or above B (rank %d)", posA, posB)
	}
}

func TestNonEmptyRetrieval(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)

	shared := []string{"piano", "practice", "scales"}
	want := map[string]bool{}
	want[addIndexed(t, e, s, "piano practice session one", shared, 3)] = true
	want[addIndexed(t, e, s, "piano practice session two", shared, 4)] = true
	want[addIndexed(t, e, s, "piano practice session three", shared, 2)] = true
	addIndexed(t, e, s, "tax filing deadline chat", []string{"taxes", "deadline"}, 4)
	addIndexed(t, e, s, "car repair quote chat", []string{"car", "repair"}, 3)

	s.LearnCoreItem(ctx, store.LearnParams{
		Category: model.CategoryPreference, Name: "morning practice",
		Description: "prefers piano practice reminders in the morning", Priority: 3,
	})

	matches, err := e.Query(ctx, "how should I structure piano practice scales", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("clearly relevant stored content must never return empty")
	}

	found := 0
	for _, m := range matches {
		if m.Kind == TargetEpisode && want[m.ID()] {
			found++
		}
		if m.Kind == TargetEpisode && !want[m.ID()] {
			t.Errorf("unrelated episode %s leaked past the cutoff", m.ID())
		}
	}
	if found != 3 {
		t.Errorf("expected all 3 sharing episodes, got %d", found)
	}
}

func TestQueryToleratesUnindexedEpisode(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)

	addIndexed(t, e, s, "indexed chat about cycling", []string{"cycling", "routes"}, 3)

	// Finalized moments ago; its index entry has not landed yet.
	turns := []model.Turn{{Speaker: model.SpeakerUser, Text: "fresh cycling chat", At: time.Now().UTC()}}
	if _, err := s.FinalizeEpisode(ctx, turns, model.SessionMeta{EndedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	matches, err := e.Query(ctx, "plan a cycling route", 10)
	if err != nil {
		t.Fatalf("query must not block or fail on in-flight indexing: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected only the indexed episode, got %d results", len(matches))
	}
}

func TestLoadRebuildsFromStore(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)

	id := addIndexed(t, e, s, "persisted knitting chat", []string{"knitting", "yarn"}, 3)

	// A second engine over the same store starts cold and loads.
	e2 := NewEngine(s, config.Default().Relevance, nil)
	if err := e2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	matches, err := e2.Query(ctx, "knitting yarn question", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID() != id {
		t.Fatalf("rebuilt index missed the persisted entry: %+v", matches)
	}
}

func TestForgetRemovesEvicted(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)

	id := addIndexed(t, e, s, "soon evicted chat", []string{"transient"}, 2)
	e.Forget([]string{id})

	matches, err := e.Query(ctx, "transient topic", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, m := range matches {
		if m.ID() == id {
			t.Error("forgotten episode still retrievable")
		}
	}
}

func TestCutoffFiltersNoise(t *testing.T) {
	e, s := newTestEngine(t)
	addIndexed(t, e, s, "single faint overlap", []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}, 1)

	e.cutoff = 0.5
	matches, err := e.Query(context.Background(), "alpha unrelated everything else", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("high cutoff should filter the faint match, got %d", len(matches))
	}
}

func TestClassifierStrategies(t *testing.T) {
	prompt := []string{"indexing", "database"}

	rule := RuleClassifier{}
	if rule.Score(prompt, []string{"indexing"}) == 0 {
		t.Error("exact overlap must score")
	}
	if rule.Score(prompt, []string{"index"}) != 0 {
		t.Error("rule classifier matches exact keys only")
	}

	sim := SimilarityClassifier{}
	if sim.Score(prompt, []string{"index"}) == 0 {
		t.Error("similarity classifier should credit shared prefixes")
	}

	if !reflect.DeepEqual(NewClassifier("similarity"), SimilarityClassifier{}) {
		t.Error("similarity strategy not selectable")
	}
	if !reflect.DeepEqual(NewClassifier("rules"), RuleClassifier{}) {
		t.Error("rules strategy not selectable")
	}
}
