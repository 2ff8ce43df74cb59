// Package llmbackend provides concrete engine.InvocationBackend
// implementations: LangchainBackend wraps any langchaingo llms.Model, and
// OpenAIBackend talks to the OpenAI chat completions API directly through
// go-openai, assembling streamed tool-call fragments itself.
package llmbackend

import (
	"context"
	"encoding/json"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/agentgraph/engine"
	"github.com/smallnest/agentgraph/log"
)

// LangchainBackend adapts a langchaingo llms.Model to engine.InvocationBackend.
// It does not stream token-by-token tool call deltas. Once GenerateContent
// returns, a non-streaming call yields the turn's content as one chunk, then
// one chunk per tool call, then a Done chunk; a streaming call forwards
// content deltas as they arrive instead of the single content chunk.
type LangchainBackend struct {
	model  llms.Model
	logger log.Logger
}

// NewLangchainBackend wraps model. A nil logger defaults to a no-op logger.
func NewLangchainBackend(model llms.Model, logger log.Logger) *LangchainBackend {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &LangchainBackend{model: model, logger: logger}
}

func (b *LangchainBackend) Invoke(ctx context.Context, req engine.InvocationRequest) (<-chan engine.InvocationChunk, error) {
	content := toLangchainMessages(req)

	var opts []llms.CallOption
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toLangchainTools(req.Tools)))
	}

	out := make(chan engine.InvocationChunk)

	if req.Streaming {
		var text []byte
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			text = append(text, chunk...)
			select {
			case out <- engine.InvocationChunk{ContentDelta: string(chunk)}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}))
	}

	go func() {
		defer close(out)

		resp, err := b.model.GenerateContent(ctx, content, opts...)
		if err != nil {
			b.logger.Error("langchain backend: generate content: %v", err)
			return
		}
		if len(resp.Choices) == 0 {
			b.logger.Warn("langchain backend: empty choice set")
			return
		}

		choice := resp.Choices[0]
		if !req.Streaming && choice.Content != "" {
			out <- engine.InvocationChunk{ContentDelta: choice.Content}
		}
		for _, tc := range choice.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args)
			out <- engine.InvocationChunk{
				ToolCallDelta: &engine.ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: args},
			}
		}
		out <- engine.InvocationChunk{Done: true}
	}()

	return out, nil
}

func (b *LangchainBackend) SupportsResponsesAPI(model string) bool    { return false }
func (b *LangchainBackend) SupportsReasoning(model string) bool       { return false }
func (b *LangchainBackend) SupportsParallelToolCall(model string) bool { return true }
func (b *LangchainBackend) SupportsStreaming(model string) bool       { return true }

func toLangchainMessages(req engine.InvocationRequest) []llms.MessageContent {
	var out []llms.MessageContent
	if req.SystemPrompt != "" {
		out = append(out, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.SystemPrompt)},
		})
	}
	for _, m := range req.Messages {
		out = append(out, llms.MessageContent{Role: toLangchainRole(m.Role), Parts: toLangchainParts(m)})
	}
	return out
}

func toLangchainRole(role engine.MessageRole) llms.ChatMessageType {
	switch role {
	case engine.RoleHuman:
		return llms.ChatMessageTypeHuman
	case engine.RoleAI:
		return llms.ChatMessageTypeAI
	case engine.RoleSystem:
		return llms.ChatMessageTypeSystem
	case engine.RoleTool, engine.RoleToolShell:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}

func toLangchainParts(m engine.Message) []llms.ContentPart {
	if m.Role == engine.RoleTool || m.Role == engine.RoleToolShell {
		return []llms.ContentPart{llms.ToolCallResponse{Name: m.ToolName, Content: m.Content}}
	}

	var parts []llms.ContentPart
	if m.Content != "" {
		parts = append(parts, llms.TextPart(m.Content))
	}
	for _, tc := range m.ToolCalls {
		argsJSON, _ := json.Marshal(tc.Arguments)
		parts = append(parts, llms.ToolCall{
			ID:   tc.ID,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      tc.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	return parts
}

func toLangchainTools(specs []engine.ToolSpec) []llms.Tool {
	out := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
