// Package knowledge implements Knowledge-kind node templates: text, which
// ingests a local text/markdown/HTML file at Provide time and exposes it
// to a wired SimpleAgent as a search_knowledge tool.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/agentgraph/engine"
)

// TextTemplateID is the template id graphs reference for a text/markdown/
// HTML knowledge node.
const TextTemplateID = "knowledge.text"

// document is one ingested, plain-text passage.
type document struct {
	id      string
	content string
}

type textKnowledge struct {
	nodeID string
	source string
	docs   []document
}

func (k *textKnowledge) ToolSpec() engine.ToolSpec {
	return engine.ToolSpec{
		Name:        "search_knowledge",
		Description: fmt.Sprintf("Search the ingested knowledge source %q for passages matching a query.", k.source),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "keywords to search for"},
			},
			"required": []string{"query"},
		},
	}
}

func (k *textKnowledge) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("search_knowledge %q: missing required argument %q", k.nodeID, "query")
	}
	terms := strings.Fields(strings.ToLower(query))

	var matches []string
	for _, doc := range k.docs {
		lower := strings.ToLower(doc.content)
		hit := false
		for _, term := range terms {
			if strings.Contains(lower, term) {
				hit = true
				break
			}
		}
		if hit {
			matches = append(matches, doc.content)
		}
	}
	if len(matches) == 0 {
		return "no matching passages found", nil
	}
	return strings.Join(matches, "\n---\n"), nil
}

type handle struct{}

func (h *handle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	path, _ := init.Config["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("knowledge %q: missing required config %q", init.NodeID, "path")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge %q: read %q: %w", init.NodeID, path, err)
	}

	text, err := toPlainText(path, raw)
	if err != nil {
		return nil, fmt.Errorf("knowledge %q: %w", init.NodeID, err)
	}

	splitOn, _ := init.Config["splitOn"].(string)
	if splitOn == "" {
		splitOn = "\n\n"
	}

	k := &textKnowledge{nodeID: init.NodeID, source: path}
	for i, para := range strings.Split(text, splitOn) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		k.docs = append(k.docs, document{id: fmt.Sprintf("%s#%d", path, i), content: para})
	}

	return k, nil
}

func (h *handle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	return nil
}

func (h *handle) Destroy(ctx context.Context, instance any) error {
	return nil
}

// toPlainText converts raw content to sanitized plain text depending on the
// file's extension: Markdown is rendered to HTML first, HTML (rendered or
// native) is stripped to text via goquery after sanitizing with bluemonday,
// anything else is passed through unchanged.
func toPlainText(path string, raw []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		extensions := parser.CommonExtensions | parser.AutoHeadingIDs
		p := parser.NewWithExtensions(extensions)
		doc := p.Parse(raw)
		renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
		return htmlToText(markdown.Render(doc, renderer))
	case ".html", ".htm":
		return htmlToText(raw)
	default:
		return string(raw), nil
	}
}

func htmlToText(htmlBytes []byte) (string, error) {
	clean := bluemonday.UGCPolicy().SanitizeBytes(htmlBytes)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(clean)))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return doc.Text(), nil
}

// NewTemplate registers the text/markdown/HTML knowledge template.
func NewTemplate() *engine.Template {
	return &engine.Template{
		ID:      TextTemplateID,
		Kind:    engine.NodeKindKnowledge,
		Inputs:  nil,
		Outputs: nil,
		Create:  func() engine.NodeHandle { return &handle{} },
	}
}
