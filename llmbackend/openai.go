package llmbackend

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/agentgraph/engine"
	"github.com/smallnest/agentgraph/log"
)

// OpenAIBackend talks to the OpenAI chat completions API directly. When
// streaming, content deltas are forwarded as they arrive, while tool-call
// argument fragments are accumulated per call index and each call is emitted
// whole, in first-seen order, after the stream ends.
type OpenAIBackend struct {
	client *openai.Client
	logger log.Logger
}

// NewOpenAIBackend builds a backend around an API key. A nil logger defaults
// to a no-op logger.
func NewOpenAIBackend(apiKey string, logger log.Logger) *OpenAIBackend {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &OpenAIBackend{client: openai.NewClient(apiKey), logger: logger}
}

func (b *OpenAIBackend) Invoke(ctx context.Context, req engine.InvocationRequest) (<-chan engine.InvocationChunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req),
		Stream:   req.Streaming,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
		if req.ParallelToolCalls {
			chatReq.ParallelToolCalls = true
		}
	}
	if req.ToolChoice != "" {
		chatReq.ToolChoice = req.ToolChoice
	}

	out := make(chan engine.InvocationChunk)

	if !req.Streaming {
		go b.invokeOnce(ctx, chatReq, out)
		return out, nil
	}

	stream, err := b.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		close(out)
		return nil, err
	}

	go b.drainStream(stream, out)
	return out, nil
}

func (b *OpenAIBackend) invokeOnce(ctx context.Context, chatReq openai.ChatCompletionRequest, out chan<- engine.InvocationChunk) {
	defer close(out)

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		b.logger.Error("openai backend: create chat completion: %v", err)
		return
	}
	if len(resp.Choices) == 0 {
		b.logger.Warn("openai backend: empty choice set")
		return
	}

	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		out <- engine.InvocationChunk{ContentDelta: choice.Message.Content}
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out <- engine.InvocationChunk{ToolCallDelta: &engine.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}}
	}
	out <- engine.InvocationChunk{Done: true, Usage: toTokenSnapshot(resp.Usage)}
}

// pendingCall accumulates one tool call's argument fragments across stream
// deltas, keyed by its index in the choice's tool_calls array.
type pendingCall struct {
	id   string
	name string
	args string
}

func (b *OpenAIBackend) drainStream(stream *openai.ChatCompletionStream, out chan<- engine.InvocationChunk) {
	defer close(out)
	defer stream.Close()

	pending := map[int]*pendingCall{}
	var order []int

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			b.logger.Error("openai backend: stream recv: %v", err)
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			out <- engine.InvocationChunk{ContentDelta: delta.Content}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &pendingCall{}
				pending[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args += tc.Function.Arguments
		}
	}

	for _, idx := range order {
		call := pending[idx]
		var args map[string]any
		_ = json.Unmarshal([]byte(call.args), &args)
		out <- engine.InvocationChunk{ToolCallDelta: &engine.ToolCall{ID: call.id, Name: call.name, Arguments: args}}
	}
	out <- engine.InvocationChunk{Done: true}
}

func (b *OpenAIBackend) SupportsResponsesAPI(model string) bool     { return false }
func (b *OpenAIBackend) SupportsReasoning(model string) bool        { return isReasoningModel(model) }
func (b *OpenAIBackend) SupportsParallelToolCall(model string) bool { return true }
func (b *OpenAIBackend) SupportsStreaming(model string) bool        { return true }

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func toOpenAIMessages(req engine.InvocationRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		out = append(out, toOpenAIMessage(m))
	}
	return out
}

func toOpenAIMessage(m engine.Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: toOpenAIRole(m.Role), Content: m.Content}
	if m.Role == engine.RoleTool || m.Role == engine.RoleToolShell {
		msg.Name = m.ToolName
	}
	for _, tc := range m.ToolCalls {
		argsJSON, _ := json.Marshal(tc.Arguments)
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	return msg
}

func toOpenAIRole(role engine.MessageRole) string {
	switch role {
	case engine.RoleHuman:
		return openai.ChatMessageRoleUser
	case engine.RoleAI:
		return openai.ChatMessageRoleAssistant
	case engine.RoleSystem:
		return openai.ChatMessageRoleSystem
	case engine.RoleTool, engine.RoleToolShell:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func toOpenAITools(specs []engine.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

func toTokenSnapshot(usage openai.Usage) engine.TokenSnapshot {
	return engine.TokenSnapshot{
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		TotalTokens:  usage.TotalTokens,
	}
}
