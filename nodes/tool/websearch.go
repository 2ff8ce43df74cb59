package tool

import (
	"context"
	"fmt"

	"github.com/smallnest/agentgraph/engine"
	bravesearch "github.com/smallnest/agentgraph/tool"
)

// WebSearchTemplateID is the template id graphs reference for a Brave
// Search tool node.
const WebSearchTemplateID = "tool.websearch"

type webSearchTool struct {
	nodeID string
	spec   engine.ToolSpec
	search *bravesearch.BraveSearch
}

func (t *webSearchTool) ToolSpec() engine.ToolSpec {
	return t.spec
}

func (t *webSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("websearch tool %q: missing required argument %q", t.nodeID, "query")
	}
	return t.search.Call(ctx, query)
}

type webSearchHandle struct{}

func (h *webSearchHandle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	apiKey, _ := init.Config["apiKey"].(string)
	var opts []bravesearch.BraveOption
	if count, ok := init.Config["count"].(int); ok && count > 0 {
		opts = append(opts, bravesearch.WithBraveCount(count))
	}
	if country, ok := init.Config["country"].(string); ok && country != "" {
		opts = append(opts, bravesearch.WithBraveCountry(country))
	}
	if lang, ok := init.Config["lang"].(string); ok && lang != "" {
		opts = append(opts, bravesearch.WithBraveLang(lang))
	}

	search, err := bravesearch.NewBraveSearch(apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("websearch tool %q: %w", init.NodeID, err)
	}

	return &webSearchTool{
		nodeID: init.NodeID,
		spec: engine.ToolSpec{
			Name:        search.Name(),
			Description: search.Description(),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "the search query"},
				},
				"required": []string{"query"},
			},
		},
		search: search,
	}, nil
}

func (h *webSearchHandle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	return nil
}

func (h *webSearchHandle) Destroy(ctx context.Context, instance any) error {
	return nil
}

// NewWebSearchTemplate registers the Brave Search tool template.
func NewWebSearchTemplate() *engine.Template {
	return &engine.Template{
		ID:      WebSearchTemplateID,
		Kind:    engine.NodeKindTool,
		Inputs:  nil,
		Outputs: nil,
		Create:  func() engine.NodeHandle { return &webSearchHandle{} },
	}
}
