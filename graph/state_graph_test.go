package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	Count int
	Log   []string
}

func TestStateGraph_LinearInvoke(t *testing.T) {
	g := NewStateGraph[counterState]()
	g.AddNode("inc", "increment", func(_ context.Context, s counterState) (counterState, error) {
		s.Count++
		s.Log = append(s.Log, "inc")
		return s, nil
	})
	g.AddNode("double", "double", func(_ context.Context, s counterState) (counterState, error) {
		s.Count *= 2
		s.Log = append(s.Log, "double")
		return s, nil
	})
	g.SetEntryPoint("inc")
	g.AddEdge("inc", "double")
	g.AddEdge("double", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	final, err := runnable.Invoke(context.Background(), counterState{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, final.Count)
	assert.Equal(t, []string{"inc", "double"}, final.Log)
}

func TestStateGraph_ConditionalEdge(t *testing.T) {
	g := NewStateGraph[counterState]()
	g.AddNode("check", "branch", func(_ context.Context, s counterState) (counterState, error) {
		s.Count++
		return s, nil
	})
	g.AddNode("loopback", "loop", func(_ context.Context, s counterState) (counterState, error) {
		return s, nil
	})
	g.SetEntryPoint("check")
	g.AddConditionalEdge("check", func(_ context.Context, s counterState) string {
		if s.Count < 3 {
			return "loopback"
		}
		return END
	})
	g.AddEdge("loopback", "check")

	runnable, err := g.Compile()
	require.NoError(t, err)

	final, err := runnable.Invoke(context.Background(), counterState{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, final.Count)
}

func TestStateGraph_MissingEntryPoint(t *testing.T) {
	g := NewStateGraph[counterState]()
	_, err := g.Compile()
	assert.ErrorIs(t, err, ErrEntryPointNotSet)
}

func TestStateGraph_DanglingEdge(t *testing.T) {
	g := NewStateGraph[counterState]()
	g.AddNode("a", "", func(_ context.Context, s counterState) (counterState, error) { return s, nil })
	g.SetEntryPoint("a")
	g.AddEdge("a", "missing")

	_, err := g.Compile()
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestStateGraph_MaxIterations(t *testing.T) {
	g := NewStateGraph[counterState]()
	g.AddNode("spin", "", func(_ context.Context, s counterState) (counterState, error) {
		s.Count++
		return s, nil
	})
	g.SetEntryPoint("spin")
	g.AddEdge("spin", "spin")

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = runnable.Invoke(context.Background(), counterState{}, 5)
	assert.ErrorIs(t, err, ErrMaxIterations)
}

func TestStateGraph_RetryThenSucceed(t *testing.T) {
	g := NewStateGraph[counterState]()
	attempts := 0
	g.AddNode("flaky", "", func(_ context.Context, s counterState) (counterState, error) {
		attempts++
		if attempts < 3 {
			return s, errors.New("transient")
		}
		s.Count = attempts
		return s, nil
	})
	g.SetEntryPoint("flaky")
	g.AddEdge("flaky", END)
	g.SetRetryPolicy(&RetryConfig{MaxAttempts: 5, InitialDelay: 0, BackoffFactor: 1})

	runnable, err := g.Compile()
	require.NoError(t, err)

	final, err := runnable.Invoke(context.Background(), counterState{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, final.Count)
}

func TestStateGraph_ListenerNotifiedInOrder(t *testing.T) {
	g := NewStateGraph[counterState]()
	g.AddNode("a", "", func(_ context.Context, s counterState) (counterState, error) { return s, nil })
	g.AddNode("b", "", func(_ context.Context, s counterState) (counterState, error) { return s, nil })
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	var events []string
	runnable.AddListener(NodeListenerFunc[counterState](func(_ context.Context, event NodeEvent, nodeName string, _ counterState, _ error) {
		events = append(events, nodeName+":"+string(event))
	}))

	_, err = runnable.Invoke(context.Background(), counterState{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"a:node_start", "a:node_complete",
		"b:node_start", "b:node_complete",
	}, events)
}
