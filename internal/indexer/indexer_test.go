package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/internal/summarize"
)

// summarizeFunc adapts a function to the Summarizer interface.
type summarizeFunc func(ctx context.Context, text string) (*summarize.Result, error)

func (f summarizeFunc) Summarize(ctx context.Context, text string) (*summarize.Result, error) {
	return f(ctx, text)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEpisode(t *testing.T, s *store.SQLiteStore, texts ...string) *model.Episode {
	t.Helper()
	base := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	var turns []model.Turn
	for i, txt := range texts {
		sp := model.SpeakerUser
		if i%2 == 1 {
			sp = model.SpeakerAssistant
		}
		turns = append(turns, model.Turn{Speaker: sp, Text: txt, At: base.Add(time.Duration(i) * time.Minute)})
	}
	ep, err := s.FinalizeEpisode(context.Background(), turns, model.SessionMeta{EndedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	return ep
}

func TestIndexWithCollaborator(t *testing.T) {
	s := newTestStore(t)
	ep := testEpisode(t, s, "help me plan a garden", "start with soil testing")

	fake := summarizeFunc(func(ctx context.Context, text string) (*summarize.Result, error) {
		return &summarize.Result{
			Title:   "Garden planning",
			Summary: "Planning a garden, starting from soil.",
			Topics:  []string{"gardening", "soil testing"},
		}, nil
	})

	ix := New(s, fake, model.DefaultRankWeights(), nil)
	entry, err := ix.Index(context.Background(), ep)
	require.NoError(t, err)

	assert.Equal(t, "Garden planning", entry.Title)
	assert.Contains(t, entry.InvokeKeys, "gardening")
	// Multi-word topics land as individual keys.
	assert.Contains(t, entry.InvokeKeys, "soil")
	assert.Contains(t, entry.InvokeKeys, "testing")
	assert.GreaterOrEqual(t, entry.QualityLevel, 1)
	assert.LessOrEqual(t, entry.QualityLevel, 5)
}

func TestIndexFallsBackOnCollaboratorFailure(t *testing.T) {
	s := newTestStore(t)
	ep := testEpisode(t, s, "my sourdough starter keeps dying", "feed it twice daily with equal flour and water")

	failing := summarizeFunc(func(ctx context.Context, text string) (*summarize.Result, error) {
		return nil, errors.New("collaborator timeout")
	})

	ix := New(s, failing, model.DefaultRankWeights(), nil)
	entry, err := ix.Index(context.Background(), ep)
	require.NoError(t, err, "collaborator failure must not fail indexing")

	assert.NotEmpty(t, entry.Title, "heuristic title from leading text")
	assert.NotEmpty(t, entry.Summary)
	assert.NotEmpty(t, entry.InvokeKeys, "fallback must still produce invoke keys")
	assert.Contains(t, entry.InvokeKeys, "sourdough")
}

func TestInvokeKeysWithoutTriggerPhrases(t *testing.T) {
	// General conversational content with no "principle"/"rule"
	// trigger words must still yield usable keys.
	s := newTestStore(t)
	ep := testEpisode(t, s,
		"we talked yesterday regarding the москва trip and trains",
		"trains from the station leave hourly, book the morning one")

	ix := New(s, nil, model.DefaultRankWeights(), nil)
	entry, err := ix.Index(context.Background(), ep)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.InvokeKeys)
	assert.Contains(t, entry.InvokeKeys, "trains")
}

func TestIndexIdempotent(t *testing.T) {
	s := newTestStore(t)
	ep := testEpisode(t, s, "repeat after me", "after me")

	ix := New(s, nil, model.DefaultRankWeights(), nil)
	ctx := context.Background()

	first, err := ix.Index(ctx, ep)
	require.NoError(t, err)
	second, err := ix.Index(ctx, ep)
	require.NoError(t, err)

	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.InvokeKeys, second.InvokeKeys)
	assert.Equal(t, first.Composite, second.Composite)

	all, err := s.AllIndexEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "re-indexing must never duplicate")
}

func TestAssessDeterministic(t *testing.T) {
	s := newTestStore(t)
	ep := testEpisode(t, s,
		"why does my sql query time out?",
		"the database misses an index on that column, add one and re-test")

	a := Assess(ep)
	b := Assess(ep)
	assert.Equal(t, a, b, "same input must always produce the same assessment")

	assert.GreaterOrEqual(t, a.QualityLevel, 1)
	assert.LessOrEqual(t, a.QualityLevel, 5)
	for _, v := range []float64{a.Learning, a.Complexity, a.Emotional} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Greater(t, a.Complexity, 0.0, "technical content should register")
}

func TestWorkerIndexesInBackground(t *testing.T) {
	s := newTestStore(t)
	ep := testEpisode(t, s, "background indexing check", "noted")

	ix := New(s, nil, model.DefaultRankWeights(), nil)
	var applied []*model.IndexEntry
	done := make(chan struct{})
	w := NewWorker(ix, s, func(e *model.IndexEntry) {
		applied = append(applied, e)
		close(done)
	}, nil)
	w.Start()
	defer w.Stop()

	w.Enqueue(ep.ID)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not index in time")
	}

	require.Len(t, applied, 1)
	assert.Equal(t, ep.ID, applied[0].EpisodeID)

	entry, err := s.GetIndexEntry(context.Background(), ep.ID)
	require.NoError(t, err)
	assert.Equal(t, applied[0].Title, entry.Title)
}

func TestReindexAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	testEpisode(t, s, "first conversation about kayaks", "paddle tips")
	testEpisode(t, s, "second conversation about maps", "contour lines")
	testEpisode(t, s, "third conversation about knots", "bowline first")

	ix := New(s, nil, model.DefaultRankWeights(), nil)
	n, err := ix.ReindexAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := s.AllIndexEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Running again replaces, never duplicates.
	_, err = ix.ReindexAll(ctx, 2)
	require.NoError(t, err)
	all, _ = s.AllIndexEntries(ctx)
	assert.Len(t, all, 3)
}
