package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/internal/testutil"
	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/tool"
)

const resultsPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fchicken&rut=x">Chicken price
   today</a>
  <a class="result__snippet">Broiler chicken ₹220/kg in Delhi</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/paneer">Paneer rates</a>
  <div class="result__snippet">Paneer ₹380/kg</div>
</div>
<div class="result"><a class="result__a" href="">broken</a></div>
</body></html>`

func newServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NotEmpty(t, r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newToolContext() *core.ToolContext {
	runCtx := core.NewRunContext(context.Background(), testutil.DefaultKey, "run-1",
		core.AgentInfo{Name: "budget_estimator", Type: "model"}, core.Content{}, 0,
		make(chan core.Event, 1), nil, core.NewSession(testutil.DefaultKey), nil, nil, logging.NoOpLogger{})
	return core.NewToolContext(runCtx, "call-1")
}

func TestSearch_ExtractsAndCaches(t *testing.T) {
	srv, hits := newServer(t, http.StatusOK, resultsPage)
	s, err := New(func(o *Options) { o.Endpoint = srv.URL })
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), "Chicken  price Delhi")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.False(t, resp.Cached)
	assert.Equal(t, Result{
		Title:   "Chicken price today",
		URL:     "https://example.com/chicken",
		Snippet: "Broiler chicken ₹220/kg in Delhi",
	}, resp.Results[0])
	assert.Equal(t, "https://example.com/paneer", resp.Results[1].URL)

	again, err := s.Search(context.Background(), "chicken price delhi")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, resp.Results, again.Results)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSearch_FallbackAnchors(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `<p><a href="https://a.example/dal">Dal prices</a><a href="/local">skip</a></p>`)
	s, err := New(func(o *Options) { o.Endpoint = srv.URL })
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), "dal")
	require.NoError(t, err)
	assert.Equal(t, []Result{{Title: "Dal prices", URL: "https://a.example/dal"}}, resp.Results)
}

func TestSearch_HTTPError(t *testing.T) {
	srv, _ := newServer(t, http.StatusTooManyRequests, "slow down")
	s, err := New(func(o *Options) { o.Endpoint = srv.URL })
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "rice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTool_Call(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, resultsPage)
	s, err := New(func(o *Options) { o.Endpoint = srv.URL })
	require.NoError(t, err)

	out, err := s.Call(newToolContext(), map[string]any{"query": "chicken", "max_results": float64(1)})
	require.NoError(t, err)
	resp, ok := out.(*Response)
	require.True(t, ok)
	assert.Len(t, resp.Results, 1)

	_, err = s.Call(newToolContext(), map[string]any{"query": "  "})
	var toolErr *tool.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}

func TestTool_CallUpstreamFailure(t *testing.T) {
	srv, _ := newServer(t, http.StatusInternalServerError, "")
	s, err := New(func(o *Options) { o.Endpoint = srv.URL })
	require.NoError(t, err)

	_, err = s.Call(newToolContext(), map[string]any{"query": "onion price"})
	var toolErr *tool.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, tool.CodeExecution, toolErr.Code)
}

func TestNew_InvalidEndpoint(t *testing.T) {
	_, err := New(func(o *Options) { o.Endpoint = "" })
	assert.Error(t, err)
}

func TestResolveLink(t *testing.T) {
	assert.Equal(t, "https://x.example/a b", resolveLink("//duckduckgo.com/l/?uddg=https%3A%2F%2Fx.example%2Fa%20b"))
	assert.Equal(t, "https://cdn.example/x", resolveLink("//cdn.example/x"))
	assert.Equal(t, "https://plain.example", resolveLink("https://plain.example"))
}
