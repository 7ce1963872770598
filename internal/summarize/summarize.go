// Package summarize provides a pluggable interface to the external
// summarization collaborator.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mnemo-ai/mnemo/internal/config"
)

// Result is the collaborator's extraction for one episode.
type Result struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

// Summarizer produces a title/summary/topic extraction for episode
// text. It may fail or time out; callers must degrade gracefully.
type Summarizer interface {
	Summarize(ctx context.Context, episodeText string) (*Result, error)
}

const summaryPrompt = `Summarize the following conversation. Respond with JSON only:
{"title": "<short title>", "summary": "<2-3 sentence summary>", "topics": ["<topic>", ...]}

Conversation:
`

// --- Ollama provider ---

// OllamaSummarizer uses a local Ollama instance.
type OllamaSummarizer struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaSummarizer creates a summarizer against Ollama's generate API.
func NewOllamaSummarizer(baseURL, model string, timeout time.Duration) *OllamaSummarizer {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaSummarizer{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OllamaSummarizer) Summarize(ctx context.Context, episodeText string) (*Result, error) {
	body, _ := json.Marshal(ollamaRequest{
		Model:  o.model,
		Prompt: summaryPrompt + episodeText,
		Stream: false,
		Format: "json",
	})
	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(b))
	}

	var or ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, err
	}
	return parseResult(or.Response)
}

// --- OpenAI-compatible provider ---

// OpenAISummarizer uses any OpenAI-compatible chat completions API.
type OpenAISummarizer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAISummarizer creates a summarizer against an OpenAI-compatible API.
func NewOpenAISummarizer(baseURL, apiKey, model string, timeout time.Duration) *OpenAISummarizer {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAISummarizer{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OpenAISummarizer) Summarize(ctx context.Context, episodeText string) (*Result, error) {
	body, _ := json.Marshal(chatRequest{
		Model:    o.model,
		Messages: []chatMessage{{Role: "user", Content: summaryPrompt + episodeText}},
	})
	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, string(b))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, err
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("no completion returned")
	}
	return parseResult(cr.Choices[0].Message.Content)
}

func parseResult(raw string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("parse summary response: %w", err)
	}
	if r.Title == "" && r.Summary == "" {
		return nil, fmt.Errorf("empty summary response")
	}
	return &r, nil
}

// --- Caching wrapper ---

// Cached wraps a Summarizer with an LRU response cache keyed by
// episode text and collapses duplicate in-flight calls.
type Cached struct {
	inner Summarizer
	cache *lru.Cache[string, *Result]
	group singleflight.Group
}

// NewCached wraps inner with a cache of the given size.
func NewCached(inner Summarizer, size int) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, *Result](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: c}, nil
}

func (c *Cached) Summarize(ctx context.Context, episodeText string) (*Result, error) {
	if r, ok := c.cache.Get(episodeText); ok {
		return r, nil
	}
	v, err, _ := c.group.Do(episodeText, func() (interface{}, error) {
		r, err := c.inner.Summarize(ctx, episodeText)
		if err != nil {
			return nil, err
		}
		c.cache.Add(episodeText, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// NewFromConfig creates a summarizer per the configured provider.
// Returns nil when no provider is configured; the indexer then relies
// on its local heuristic.
func NewFromConfig(cfg config.Summarizer) (Summarizer, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var inner Summarizer
	switch cfg.Provider {
	case "ollama":
		inner = NewOllamaSummarizer(cfg.BaseURL, cfg.Model, timeout)
	case "openai":
		inner = NewOpenAISummarizer(cfg.BaseURL, cfg.APIKey, cfg.Model, timeout)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
	return NewCached(inner, cfg.CacheSize)
}
