package llmbackend

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/agentgraph/engine"
)

func TestToOpenAIMessages_SystemPromptPrepended(t *testing.T) {
	req := engine.InvocationRequest{
		SystemPrompt: "be concise",
		Messages:     []engine.Message{{Role: engine.RoleHuman, Content: "hi"}},
	}
	out := toOpenAIMessages(req)
	require.Len(t, out, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, out[0].Role)
	assert.Equal(t, "be concise", out[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, out[1].Role)
}

func TestToOpenAIMessage_ToolMessageCarriesToolName(t *testing.T) {
	msg := toOpenAIMessage(engine.Message{Role: engine.RoleTool, ToolName: "search", Content: "result"})
	assert.Equal(t, openai.ChatMessageRoleTool, msg.Role)
	assert.Equal(t, "search", msg.Name)
	assert.Equal(t, "result", msg.Content)
}

func TestToOpenAIMessage_AIMessageCarriesToolCalls(t *testing.T) {
	msg := toOpenAIMessage(engine.Message{
		Role: engine.RoleAI,
		ToolCalls: []engine.ToolCall{
			{ID: "1", Name: "search", Arguments: map[string]any{"query": "go"}},
		},
	})
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "search", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"query":"go"}`, msg.ToolCalls[0].Function.Arguments)
}

func TestToOpenAIRole_UnknownDefaultsToUser(t *testing.T) {
	assert.Equal(t, openai.ChatMessageRoleUser, toOpenAIRole(engine.MessageRole("bogus")))
}

func TestToOpenAITools_MapsSpecs(t *testing.T) {
	tools := toOpenAITools([]engine.ToolSpec{{Name: "search", Description: "searches the web"}})
	require.Len(t, tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, tools[0].Type)
	assert.Equal(t, "search", tools[0].Function.Name)
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, isReasoningModel("o1-preview"))
	assert.True(t, isReasoningModel("o3-mini"))
	assert.False(t, isReasoningModel("gpt-4o"))
}

func TestToTokenSnapshot_MapsUsageFields(t *testing.T) {
	snap := toTokenSnapshot(openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	assert.Equal(t, 10, snap.InputTokens)
	assert.Equal(t, 5, snap.OutputTokens)
	assert.Equal(t, 15, snap.TotalTokens)
}

func TestOpenAIBackend_SupportsFlags(t *testing.T) {
	b := NewOpenAIBackend("test-key", nil)
	assert.False(t, b.SupportsResponsesAPI("gpt-4o"))
	assert.True(t, b.SupportsReasoning("o1-mini"))
	assert.False(t, b.SupportsReasoning("gpt-4o"))
	assert.True(t, b.SupportsParallelToolCall("gpt-4o"))
	assert.True(t, b.SupportsStreaming("gpt-4o"))
}
