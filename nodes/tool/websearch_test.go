package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/agentgraph/engine"
	bravesearch "github.com/smallnest/agentgraph/tool"
)

func TestWebSearchTool_ProvideMissingAPIKeyErrors(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "")
	h := &webSearchHandle{}
	_, err := h.Provide(context.Background(), engine.NodeInit{NodeID: "ws-1"})
	assert.Error(t, err)
}

func TestWebSearchTool_ProvideMapsConfigIntoOptions(t *testing.T) {
	h := &webSearchHandle{}
	instance, err := h.Provide(context.Background(), engine.NodeInit{
		NodeID: "ws-1",
		Config: map[string]any{
			"apiKey":  "test-key",
			"count":   5,
			"country": "CN",
			"lang":    "zh",
		},
	})
	require.NoError(t, err)

	ws := instance.(*webSearchTool)
	assert.Equal(t, "test-key", ws.search.APIKey)
	assert.Equal(t, 5, ws.search.Count)
	assert.Equal(t, "CN", ws.search.Country)
	assert.Equal(t, "zh", ws.search.Lang)
	assert.Equal(t, "Brave_Search", ws.ToolSpec().Name)
}

func TestWebSearchTool_ExecuteMissingQueryErrors(t *testing.T) {
	search, err := bravesearch.NewBraveSearch("test-key")
	require.NoError(t, err)
	ws := &webSearchTool{nodeID: "ws-1", search: search}

	_, err = ws.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestWebSearchTool_ExecuteCallsBraveAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"Go","url":"https://go.dev","description":"lang"}]}}`))
	}))
	defer srv.Close()

	search, err := bravesearch.NewBraveSearch("test-key", bravesearch.WithBraveBaseURL(srv.URL))
	require.NoError(t, err)
	ws := &webSearchTool{nodeID: "ws-1", search: search}

	out, err := ws.Execute(context.Background(), map[string]any{"query": "golang"})
	require.NoError(t, err)
	assert.Contains(t, out, "go.dev")
}

func TestWebSearchTool_ProvideFallsBackToEnvAPIKey(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "env-key")
	h := &webSearchHandle{}
	instance, err := h.Provide(context.Background(), engine.NodeInit{NodeID: "ws-1"})
	require.NoError(t, err)
	assert.Equal(t, "env-key", instance.(*webSearchTool).search.APIKey)
}
