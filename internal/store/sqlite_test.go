package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemo-ai/mnemo/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTurns(texts ...string) []model.Turn {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var turns []model.Turn
	for i, txt := range texts {
		sp := model.SpeakerUser
		if i%2 == 1 {
			sp = model.SpeakerAssistant
		}
		turns = append(turns, model.Turn{Speaker: sp, Text: txt, At: base.Add(time.Duration(i) * time.Second)})
	}
	return turns
}

func TestFinalizeAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	turns := testTurns("how do I tune a guitar", "start with the low E string")
	ep, err := s.FinalizeEpisode(ctx, turns, model.SessionMeta{})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if ep.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if ep.Meta.TurnCount != 2 {
		t.Errorf("expected turn count 2, got %d", ep.Meta.TurnCount)
	}

	got, err := s.LoadEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got.Turns))
	}
	if got.Turns[0].Text != "how do I tune a guitar" {
		t.Errorf("turn 0 mismatch: %q", got.Turns[0].Text)
	}
	if got.Turns[1].Speaker != model.SpeakerAssistant {
		t.Errorf("turn 1 speaker mismatch: %q", got.Turns[1].Speaker)
	}
}

func TestFinalizeEmptyFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FinalizeEpisode(context.Background(), nil, model.SessionMeta{})
	if !errors.Is(err, ErrEmptyEpisode) {
		t.Errorf("expected ErrEmptyEpisode, got %v", err)
	}
}

func TestFinalizeInvalidSpeaker(t *testing.T) {
	s := newTestStore(t)
	turns := []model.Turn{{Speaker: "narrator", Text: "hi"}}
	if _, err := s.FinalizeEpisode(context.Background(), turns, model.SessionMeta{}); err == nil {
		t.Error("expected error for invalid speaker")
	}
}

func TestEpisodeIDDeterministic(t *testing.T) {
	turns := testTurns("hello", "hi there")
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := EpisodeID(turns, end)
	b := EpisodeID(turns, end)
	if a != b {
		t.Errorf("same content+time should give same id: %s vs %s", a, b)
	}

	c := EpisodeID(testTurns("different"), end)
	if a == c {
		t.Error("different content should give different id")
	}
	d := EpisodeID(turns, end.Add(time.Minute))
	if a == d {
		t.Error("different end time should give different id")
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	turns := testTurns("ping", "pong")
	meta := model.SessionMeta{EndedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	first, err := s.FinalizeEpisode(ctx, turns, meta)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	second, err := s.FinalizeEpisode(ctx, turns, meta)
	if err != nil {
		t.Fatalf("repeat finalize: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same id, got %s and %s", first.ID, second.ID)
	}

	eps, _ := s.ListEpisodes(ctx, EpisodeFilter{})
	if len(eps) != 1 {
		t.Errorf("expected 1 episode, got %d", len(eps))
	}
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadEpisode(context.Background(), "01ZZZZZZZZZZZZZZZZZZZZZZZZ")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEvictionRespectsCapAndIndexing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		meta := model.SessionMeta{EndedAt: time.Date(2026, 3, 1, 12, i, 0, 0, time.UTC)}
		ep, err := s.FinalizeEpisode(ctx, testTurns("topic number", string(rune('a'+i))), meta)
		if err != nil {
			t.Fatalf("finalize %d: %v", i, err)
		}
		ids = append(ids, ep.ID)
	}

	// Index only the first three; the rest are still in flight.
	for _, id := range ids[:3] {
		entry := &model.IndexEntry{
			EpisodeID: id, Title: "t", Summary: "s",
			InvokeKeys: []string{"topic"}, QualityLevel: 3,
		}
		if err := s.PutIndexEntry(ctx, entry); err != nil {
			t.Fatalf("index: %v", err)
		}
	}

	evicted, err := s.EvictEpisodes(ctx, 3)
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if len(evicted) != 2 {
		t.Fatalf("expected 2 evicted, got %d", len(evicted))
	}
	for _, id := range evicted {
		if id == ids[3] || id == ids[4] {
			t.Errorf("unindexed episode %s must never be evicted", id)
		}
		if _, err := s.LoadEpisode(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("evicted episode %s still loadable", id)
		}
	}

	// Unindexed survivors remain.
	for _, id := range ids[3:] {
		if _, err := s.LoadEpisode(ctx, id); err != nil {
			t.Errorf("unindexed episode %s should survive: %v", id, err)
		}
	}
}
