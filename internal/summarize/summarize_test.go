package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnemo-ai/mnemo/internal/config"
)

type summarizeFunc func(ctx context.Context, text string) (*Result, error)

func (f summarizeFunc) Summarize(ctx context.Context, text string) (*Result, error) {
	return f(ctx, text)
}

func TestParseResult(t *testing.T) {
	r, err := parseResult(`{"title": "Gasket repair", "summary": "Replacing a worn gasket.", "topics": ["espresso", "repair"]}`)
	if err != nil {
		t.Fatalf("parseResult: %v", err)
	}
	if r.Title != "Gasket repair" || len(r.Topics) != 2 {
		t.Fatalf("unexpected result: %+v", r)
	}

	if _, err := parseResult("not json"); err == nil {
		t.Fatal("malformed response should fail")
	}
	if _, err := parseResult(`{"topics": ["a"]}`); err == nil {
		t.Fatal("response without title or summary should fail")
	}
}

func TestCachedCallsInnerOnce(t *testing.T) {
	calls := 0
	inner := summarizeFunc(func(ctx context.Context, text string) (*Result, error) {
		calls++
		return &Result{Title: "t", Summary: "s"}, nil
	})

	c, err := NewCached(inner, 8)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Summarize(ctx, "same episode text"); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatalf("inner called %d times, want 1", calls)
	}

	if _, err := c.Summarize(ctx, "different text"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("inner called %d times, want 2", calls)
	}
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	calls := 0
	inner := summarizeFunc(func(ctx context.Context, text string) (*Result, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("transient")
		}
		return &Result{Title: "t", Summary: "s"}, nil
	})

	c, err := NewCached(inner, 8)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := c.Summarize(ctx, "text"); err == nil {
		t.Fatal("first call should fail")
	}
	if _, err := c.Summarize(ctx, "text"); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
}

func TestOllamaSummarizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Format != "json" || req.Stream {
			t.Errorf("unexpected request options: %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Response: `{"title": "Trip", "summary": "Planning a trip.", "topics": ["travel"]}`,
		})
	}))
	defer srv.Close()

	s := NewOllamaSummarizer(srv.URL, "test-model", 0)
	r, err := s.Summarize(context.Background(), "user: let's plan a trip")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if r.Title != "Trip" {
		t.Fatalf("title = %q", r.Title)
	}
}

func TestOpenAISummarizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		fmt.Fprint(w, `{"choices": [{"message": {"role": "assistant", "content": "{\"title\": \"Trip\", \"summary\": \"Planning.\", \"topics\": []}"}}]}`)
	}))
	defer srv.Close()

	s := NewOpenAISummarizer(srv.URL, "sk-test", "test-model", 0)
	r, err := s.Summarize(context.Background(), "user: let's plan a trip")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if r.Title != "Trip" {
		t.Fatalf("title = %q", r.Title)
	}
}

func TestNewFromConfig(t *testing.T) {
	s, err := NewFromConfig(config.Summarizer{Provider: ""})
	if err != nil || s != nil {
		t.Fatalf("empty provider should yield nil summarizer, got %v, %v", s, err)
	}
	if _, err := NewFromConfig(config.Summarizer{Provider: "magic"}); err == nil {
		t.Fatal("unknown provider should fail")
	}
	s, err = NewFromConfig(config.Summarizer{Provider: "ollama"})
	if err != nil || s == nil {
		t.Fatalf("ollama provider: %v, %v", s, err)
	}
}
