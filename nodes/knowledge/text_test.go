package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/agentgraph/engine"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTextKnowledge_PlainTextSplitsOnBlankLines(t *testing.T) {
	path := writeTemp(t, "notes.txt", "first passage about onions\n\nsecond passage about garlic\n")

	h := &handle{}
	instance, err := h.Provide(context.Background(), engine.NodeInit{NodeID: "kb-1", Config: map[string]any{"path": path}})
	require.NoError(t, err)

	k := instance.(*textKnowledge)
	require.Len(t, k.docs, 2)

	out, err := k.Execute(context.Background(), map[string]any{"query": "garlic"})
	require.NoError(t, err)
	assert.Contains(t, out, "garlic")
	assert.NotContains(t, out, "onions")
}

func TestTextKnowledge_NoMatchReturnsFriendlyMessage(t *testing.T) {
	path := writeTemp(t, "notes.txt", "only passage here\n")
	h := &handle{}
	instance, err := h.Provide(context.Background(), engine.NodeInit{NodeID: "kb-1", Config: map[string]any{"path": path}})
	require.NoError(t, err)

	out, err := instance.(*textKnowledge).Execute(context.Background(), map[string]any{"query": "nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "no matching passages found", out)
}

func TestTextKnowledge_MissingPathErrors(t *testing.T) {
	h := &handle{}
	_, err := h.Provide(context.Background(), engine.NodeInit{NodeID: "kb-1"})
	assert.Error(t, err)
}

func TestTextKnowledge_MarkdownIsStrippedToPlainText(t *testing.T) {
	path := writeTemp(t, "notes.md", "# Title\n\nSome **bold** passage about cucumbers.\n")
	h := &handle{}
	instance, err := h.Provide(context.Background(), engine.NodeInit{NodeID: "kb-1", Config: map[string]any{"path": path}})
	require.NoError(t, err)

	k := instance.(*textKnowledge)
	require.NotEmpty(t, k.docs)
	for _, doc := range k.docs {
		assert.NotContains(t, doc.content, "**")
		assert.NotContains(t, doc.content, "#")
	}
}

func TestTextKnowledge_ExecuteMissingQueryErrors(t *testing.T) {
	path := writeTemp(t, "notes.txt", "passage\n")
	h := &handle{}
	instance, err := h.Provide(context.Background(), engine.NodeInit{NodeID: "kb-1", Config: map[string]any{"path": path}})
	require.NoError(t, err)

	_, err = instance.(*textKnowledge).Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}
