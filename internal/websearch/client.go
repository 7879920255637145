// Package websearch augments LLM prompts with live search results from the
// Tavily API. Results are cached briefly so repeated questions within a
// conversation do not burn quota.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/resilience"
)

const (
	defaultEndpoint = "https://api.tavily.com/search"
	cacheTTL        = 5 * time.Minute

	retryAttempts = 2
	retryBackoff  = 200 * time.Millisecond
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Searcher is the search collaborator consumed by the orchestrator.
type Searcher interface {
	// Search runs a query and returns a prompt-ready context block, or ""
	// when nothing useful came back.
	Search(ctx context.Context, query string) (string, error)
}

// Client talks to the Tavily search API over HTTP.
type Client struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	block   string
	expires time.Time
}

// NewClient creates a Tavily search client. An empty API key produces a
// client whose Search always returns "".
func NewClient(apiKey string, maxResults int, logger zerolog.Logger) *Client {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Client{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "websearch").Logger(),
		cache:      make(map[string]cacheEntry),
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Search runs the query against Tavily and formats the hits into a numbered
// context block for prompt assembly.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	if c.apiKey == "" {
		return "", nil
	}

	key := strings.ToLower(strings.TrimSpace(query))
	if block, ok := c.cached(key); ok {
		c.logger.Debug().Str("query", query).Msg("Search cache hit")
		return block, nil
	}

	body, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  c.maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode search request: %w", err)
	}

	// Rate limits and upstream hiccups are worth one more try; anything
	// else fails the search immediately.
	var parsed searchResponse
	err = resilience.Retry(func() error {
		var postErr error
		parsed, postErr = c.post(ctx, body)
		return postErr
	}, &resilience.RetryConfig{
		MaxAttempts:       retryAttempts,
		InitialBackoff:    retryBackoff,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}, func(err error) bool {
		return resilience.IsRetryable(err) || resilience.IsRetryableNetworkError(err)
	})
	if err != nil {
		return "", err
	}

	block := formatResults(parsed)
	c.store(key, block)

	c.logger.Debug().
		Str("query", query).
		Int("results", len(parsed.Results)).
		Msg("Search completed")
	return block, nil
}

// post performs one API call. Rate-limit and server-side failures come
// back marked retryable.
func (c *Client) post(ctx context.Context, body []byte) (searchResponse, error) {
	var parsed searchResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return parsed, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return parsed, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := fmt.Errorf("search API returned %d: %s", resp.StatusCode, string(payload))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return parsed, resilience.NewRetryableError(apiErr)
		}
		return parsed, apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return parsed, fmt.Errorf("failed to decode search response: %w", err)
	}
	return parsed, nil
}

func (c *Client) cached(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expires) {
		delete(c.cache, key)
		return "", false
	}
	return entry.block, true
}

func (c *Client) store(key, block string) {
	c.mu.Lock()
	c.cache[key] = cacheEntry{block: block, expires: time.Now().Add(cacheTTL)}
	c.mu.Unlock()
}

// formatResults renders the hits as a numbered list the LLM can cite from.
func formatResults(resp searchResponse) string {
	if len(resp.Results) == 0 && resp.Answer == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("Web search results:\n")
	if resp.Answer != "" {
		b.WriteString("Summary: ")
		b.WriteString(resp.Answer)
		b.WriteString("\n")
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s (%s)\n   %s\n", i+1, r.Title, r.URL, snippet(r.Content))
	}
	return b.String()
}

func snippet(content string) string {
	const max = 300
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	// Back up to a rune boundary so multi-byte characters survive the cut.
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// searchIndicators trigger search for queries that look like factual
// questions about current state of the world.
var searchIndicators = []string{
	"latest", "current", "today", "news", "weather", "price",
	"recent", "right now", "this year", "who won", "score",
	"stock", "happening", "update on",
}

// LooksSearchWorthy reports whether an utterance would benefit from live
// search results. Conversational chit-chat skips the round trip.
func LooksSearchWorthy(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, ind := range searchIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
