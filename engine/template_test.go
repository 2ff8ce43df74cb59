package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRegistry_GetMissing(t *testing.T) {
	r := NewTemplateRegistry()
	_, err := r.Get("missing")
	assert.True(t, IsKind(err, ErrTemplateNotRegistered))
}

func TestTemplateRegistry_RegisterAndAll(t *testing.T) {
	r := NewTemplateRegistry()
	r.Register(simpleTemplate("a", NodeKindTool, nil, nil, func() NodeHandle { return &fakeHandle{} }))
	r.Register(simpleTemplate("b", NodeKindRuntime, nil, nil, func() NodeHandle { return &fakeHandle{} }))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, NodeKindTool, got.Kind)

	assert.Len(t, r.All(), 2)
}
