package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/smallnest/agentgraph/engine"
	"github.com/smallnest/agentgraph/graph"
)

// maxParallelToolCalls bounds the worker pool toolsNode spins up to execute
// a single turn's tool calls concurrently.
const maxParallelToolCalls = 8

const (
	nodeSummarize      = "summarize"
	nodeInvokeLLM      = "invoke_llm"
	nodeTools          = "tools"
	nodeToolUsageGuard = "tool_usage_guard"
	nodeInjectPending  = "inject_pending"
)

// buildInnerGraph wires AgentCore's five-node reasoning loop: summarize folds
// old history before every model call, invoke_llm runs one turn, tools
// executes whatever the model asked for, tool_usage_guard forces a decision
// out of a model that replied with no tool calls at all, and inject_pending
// splices in messages a concurrent runOrAppend queued while this run was in
// flight.
func buildInnerGraph(backend engine.InvocationBackend) (*graph.StateRunnable[AgentState], error) {
	g := graph.NewStateGraph[AgentState]()

	g.AddNode(nodeSummarize, "folds old messages into a running summary once the token budget is exceeded", summarizeNode())
	g.AddNode(nodeInvokeLLM, "runs one model turn against the current message window", invokeLLMNode(backend))
	g.AddNode(nodeTools, "executes every tool call the last model turn requested", toolsNode())
	g.AddNode(nodeToolUsageGuard, "forces a model that returned no tool calls toward a deliberate finish", toolUsageGuardNode())
	g.AddNode(nodeInjectPending, "splices queued runOrAppend messages back into the active turn", injectPendingNode())

	g.SetEntryPoint(nodeSummarize)
	g.AddEdge(nodeSummarize, nodeInvokeLLM)

	g.AddConditionalEdge(nodeInvokeLLM, func(ctx context.Context, state AgentState) string {
		if len(state.LastToolCalls) > 0 {
			return nodeTools
		}
		return nodeToolUsageGuard
	})

	g.AddConditionalEdge(nodeToolUsageGuard, func(ctx context.Context, state AgentState) string {
		if state.GuardActive {
			return nodeInvokeLLM
		}
		return graph.END
	})

	g.AddConditionalEdge(nodeTools, func(ctx context.Context, state AgentState) string {
		hasPending := state.Pending != nil && state.Pending.Len() > 0
		switch {
		case state.FinishCalled && hasPending:
			return nodeInjectPending
		case !state.FinishCalled && hasPending && state.InjectMode == InjectAfterToolCall:
			return nodeInjectPending
		case state.FinishCalled:
			return graph.END
		default:
			return nodeSummarize
		}
	})

	g.AddEdge(nodeInjectPending, nodeSummarize)

	return g.Compile()
}

func summarizeNode() func(ctx context.Context, state AgentState) (AgentState, error) {
	return func(ctx context.Context, state AgentState) (AgentState, error) {
		if state.SummarizeMaxTokens <= 0 {
			return state, nil
		}
		total := messagesTokenCount(state.Messages)
		if total <= state.SummarizeMaxTokens {
			return state, nil
		}

		keepFrom := len(state.Messages)
		kept := 0
		for i := len(state.Messages) - 1; i >= 0; i-- {
			kept += estimateTokens(state.Messages[i].Content)
			keepFrom = i
			if kept > state.SummarizeKeepTokens {
				break
			}
		}
		folded := state.Messages[:keepFrom]
		tail := state.Messages[keepFrom:]
		if len(folded) == 0 {
			return state, nil
		}

		var b strings.Builder
		if state.Summary != "" {
			b.WriteString(state.Summary)
			b.WriteString("\n")
		}
		for _, m := range folded {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		state.Summary = b.String()

		summaryMsg := engine.Message{
			ID:        uuid.NewString(),
			ThreadID:  state.ThreadID,
			Role:      engine.RoleSystem,
			Content:   "Summary of earlier conversation:\n" + state.Summary,
			CreatedAt: time.Now(),
		}
		state.Messages = append([]engine.Message{summaryMsg}, cloneMessages(tail)...)
		return state, nil
	}
}

func invokeLLMNode(backend engine.InvocationBackend) func(ctx context.Context, state AgentState) (AgentState, error) {
	return func(ctx context.Context, state AgentState) (AgentState, error) {
		req := engine.InvocationRequest{
			Model:             state.Model,
			Messages:          state.Messages,
			Tools:             toolSpecs(state.Tools),
			SystemPrompt:      state.SystemPrompt,
			ParallelToolCalls: true,
			Reasoning:         state.Reasoning,
			Streaming:         true,
		}

		chunks, err := backend.Invoke(ctx, req)
		if err != nil {
			return state, fmt.Errorf("invoke_llm: %w", err)
		}

		var content strings.Builder
		var toolCalls []engine.ToolCall
		toolCallIndex := map[string]int{}
		reasoningID := state.ReasoningID
		reasoningContent := state.ReasoningContent

		for chunk := range chunks {
			if chunk.ReasoningDelta != "" {
				if chunk.ReasoningID != "" && chunk.ReasoningID != reasoningID {
					reasoningID = chunk.ReasoningID
					reasoningContent = ""
				}
				reasoningContent += chunk.ReasoningDelta
			}
			if chunk.ContentDelta != "" {
				content.WriteString(chunk.ContentDelta)
			}
			if chunk.ToolCallDelta != nil {
				tc := *chunk.ToolCallDelta
				if idx, ok := toolCallIndex[tc.ID]; ok {
					toolCalls[idx] = tc
				} else {
					toolCallIndex[tc.ID] = len(toolCalls)
					toolCalls = append(toolCalls, tc)
				}
			}
			if chunk.Done {
				state.Usage.InputTokens += chunk.Usage.InputTokens
				state.Usage.CachedInputTokens += chunk.Usage.CachedInputTokens
				state.Usage.OutputTokens += chunk.Usage.OutputTokens
				state.Usage.ReasoningTokens += chunk.Usage.ReasoningTokens
				state.Usage.TotalTokens += chunk.Usage.TotalTokens
				state.Usage.TotalPrice += chunk.Usage.TotalPrice
				if chunk.Usage.CurrentContext > 0 {
					state.Usage.CurrentContext = chunk.Usage.CurrentContext
				}
			}
		}

		aiMsg := engine.Message{
			ID:        uuid.NewString(),
			ThreadID:  state.ThreadID,
			Role:      engine.RoleAI,
			Content:   content.String(),
			ToolCalls: toolCalls,
			CreatedAt: time.Now(),
		}
		state.Messages = append(cloneMessages(state.Messages), aiMsg)
		state.LastToolCalls = toolCalls
		state.ReasoningID = reasoningID
		state.ReasoningContent = reasoningContent
		state.Iteration++
		return state, nil
	}
}

// toolsNode runs every tool call from the model's last turn through a bounded
// ants worker pool, so independent calls (a websearch alongside a shell exec,
// say) overlap instead of serializing behind each other. Results are written
// back into a pre-sized slice by call index so message order matches the
// order the model requested the calls in, regardless of completion order.
func toolsNode() func(ctx context.Context, state AgentState) (AgentState, error) {
	return func(ctx context.Context, state AgentState) (AgentState, error) {
		bindings := make(map[string]ToolBinding, len(state.Tools))
		for _, t := range state.Tools {
			bindings[t.Spec.Name] = t
		}

		runnable := make([]engine.ToolCall, 0, len(state.LastToolCalls))
		for _, call := range state.LastToolCalls {
			if call.Name != FinishToolName {
				runnable = append(runnable, call)
			}
		}

		results := make([]engine.Message, len(runnable))
		if len(runnable) > 0 {
			size := len(runnable)
			if size > maxParallelToolCalls {
				size = maxParallelToolCalls
			}
			pool, err := ants.NewPool(size)
			if err != nil {
				return state, fmt.Errorf("tools: create worker pool: %w", err)
			}
			defer pool.Release()

			var wg sync.WaitGroup
			for i, call := range runnable {
				idx, call := i, call
				wg.Add(1)
				submitErr := pool.Submit(func() {
					defer wg.Done()
					results[idx] = runToolCall(ctx, state, bindings, call)
				})
				if submitErr != nil {
					wg.Done()
					results[idx] = runToolCall(ctx, state, bindings, call)
				}
			}
			wg.Wait()
		}

		state.Messages = append(cloneMessages(state.Messages), results...)
		state.FinishCalled = hasFinishCall(state.LastToolCalls)
		return state, nil
	}
}

func runToolCall(ctx context.Context, state AgentState, bindings map[string]ToolBinding, call engine.ToolCall) engine.Message {
	binding, ok := bindings[call.Name]
	if !ok {
		return engine.Message{
			ID:        uuid.NewString(),
			ThreadID:  state.ThreadID,
			Role:      engine.RoleTool,
			ToolName:  call.Name,
			Content:   fmt.Sprintf("error: unknown tool %q", call.Name),
			CreatedAt: time.Now(),
		}
	}

	result, err := binding.Execute(ctx, call.Arguments)
	if err != nil {
		result = fmt.Sprintf("error: %s", err)
	}
	return engine.Message{
		ID:        uuid.NewString(),
		ThreadID:  state.ThreadID,
		Role:      engine.RoleTool,
		ToolName:  call.Name,
		Content:   result,
		CreatedAt: time.Now(),
	}
}

func toolUsageGuardNode() func(ctx context.Context, state AgentState) (AgentState, error) {
	return func(ctx context.Context, state AgentState) (AgentState, error) {
		if state.GuardCount >= state.MaxGuardRetries {
			state.GuardActive = false
			state.GuardExhausted = true
			return state, nil
		}

		state.GuardCount++
		state.GuardActive = true
		state.Messages = append(cloneMessages(state.Messages), engine.Message{
			ID:        uuid.NewString(),
			ThreadID:  state.ThreadID,
			Role:      engine.RoleSystem,
			Content:   "You must either call a tool or call finish to end your turn.",
			CreatedAt: time.Now(),
		})
		return state, nil
	}
}

func injectPendingNode() func(ctx context.Context, state AgentState) (AgentState, error) {
	return func(ctx context.Context, state AgentState) (AgentState, error) {
		if state.Pending == nil {
			return state, nil
		}
		pending := state.Pending.Drain()
		if len(pending) == 0 {
			return state, nil
		}
		state.Messages = append(cloneMessages(state.Messages), pending...)
		state.FinishCalled = false
		return state, nil
	}
}

func toolSpecs(tools []ToolBinding) []engine.ToolSpec {
	specs := make([]engine.ToolSpec, 0, len(tools)+1)
	for _, t := range tools {
		specs = append(specs, t.Spec)
	}
	specs = append(specs, engine.ToolSpec{
		Name:        FinishToolName,
		Description: "Call this when your reply to the user is complete and no further tool calls are needed.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	})
	return specs
}
