// Package search provides the web_search tool used by the budget estimator to
// look up current grocery prices.
//
// The tool issues a GET request against an HTML search endpoint (DuckDuckGo's
// HTML frontend by default), extracts result titles, links and snippets with
// goquery and caches answers per normalized query in an LRU cache.
package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/tool"
)

// Name is the tool name exposed to models.
const Name = "web_search"

// DefaultEndpoint is the HTML search frontend queried when none is configured.
const DefaultEndpoint = "https://html.duckduckgo.com/html/"

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Response is returned to the model.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Cached  bool     `json:"cached"`
}

// Options configures the search tool.
type Options struct {
	// Endpoint receives the query as parameter "q".
	Endpoint   string
	HTTPClient *http.Client
	// Timeout bounds one search request.
	Timeout    time.Duration
	CacheSize  int
	MaxResults int
	UserAgent  string
	Logger     logging.Logger
}

// Tool is a web search tool. It is safe for concurrent use.
type Tool struct {
	opts  Options
	cache *lru.Cache[string, []Result]
}

var _ tool.Tool = (*Tool)(nil)

// New creates the web_search tool.
func New(optFns ...func(o *Options)) (*Tool, error) {
	opts := Options{
		Endpoint:   DefaultEndpoint,
		Timeout:    10 * time.Second,
		CacheSize:  128,
		MaxResults: 5,
		UserAgent:  "messplanner/1.0 (+https://github.com/hupe1980/messplanner)",
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}

	if _, err := url.Parse(opts.Endpoint); err != nil || opts.Endpoint == "" {
		return nil, fmt.Errorf("invalid search endpoint %q", opts.Endpoint)
	}

	cache, err := lru.New[string, []Result](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}

	return &Tool{opts: opts, cache: cache}, nil
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return Name }

// Description implements tool.Tool.
func (t *Tool) Description() string {
	return "Search the web for current information such as grocery and vegetable prices in India. Returns titles, links and snippets."
}

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query, e.g. \"chicken price per kg Delhi today\"",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum number of results (default %d)", t.opts.MaxResults),
			},
		},
		"required": []string{"query"},
	}
}

// Call implements tool.Tool.
func (t *Tool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, tool.NewToolError(Name, "query must not be empty", tool.CodeValidation)
	}

	limit := t.opts.MaxResults
	if n, ok := args["max_results"].(float64); ok && n > 0 && int(n) < limit {
		limit = int(n)
	}

	resp, err := t.Search(tc.Context(), query)
	if err != nil {
		return nil, tool.NewToolError(Name, err.Error(), tool.CodeExecution)
	}

	if len(resp.Results) > limit {
		resp.Results = resp.Results[:limit]
	}

	tc.Logger().Debug("tool.web_search.done", "query", query, "results", len(resp.Results), "cached", resp.Cached)

	return resp, nil
}

// Search runs a query, consulting the cache first.
func (t *Tool) Search(ctx context.Context, query string) (*Response, error) {
	key := cacheKey(query)
	if hits, ok := t.cache.Get(key); ok {
		return &Response{Query: query, Results: hits, Cached: true}, nil
	}

	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	req, err := t.newRequest(ctx, query)
	if err != nil {
		return nil, err
	}

	res, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned HTTP %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	hits := extractResults(doc, t.opts.MaxResults)
	t.cache.Add(key, hits)

	t.opts.Logger.Debug("search.fetched", "query", query, "results", len(hits))

	return &Response{Query: query, Results: hits}, nil
}

func (t *Tool) newRequest(ctx context.Context, query string) (*http.Request, error) {
	u, err := url.Parse(t.opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", t.opts.UserAgent)
	req.Header.Set("Accept", "text/html")

	return req, nil
}

// extractResults reads DuckDuckGo style markup (div.result with a.result__a
// and .result__snippet). Pages without that markup fall back to plain anchors.
func extractResults(doc *goquery.Document, limit int) []Result {
	var out []Result

	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		title := collapse(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		out = append(out, Result{
			Title:   title,
			URL:     resolveLink(href),
			Snippet: collapse(s.Find(".result__snippet").First().Text()),
		})
		return len(out) < limit
	})

	if len(out) > 0 {
		return out
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		title := collapse(s.Text())
		if title == "" || !strings.HasPrefix(href, "http") {
			return true
		}
		out = append(out, Result{Title: title, URL: href})
		return len(out) < limit
	})

	return out
}

// resolveLink unwraps DuckDuckGo redirect links ("//duckduckgo.com/l/?uddg=...").
func resolveLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func cacheKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
