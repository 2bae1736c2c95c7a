//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/event"
)

func trailSchema() *StateSchema {
	return NewStateSchema().
		AddField("trail", StateField{
			Type:    reflect.TypeOf([]any{}),
			Reducer: AppendReducer,
			Default: func() any { return []any{} },
		}).
		AddField("counter", StateField{Type: reflect.TypeOf(0)})
}

func appendTrail(id string) NodeFunc {
	return func(ctx context.Context, state State) (any, error) {
		return State{"trail": []any{id}}, nil
	}
}

func newTestExecutor(t *testing.T, g *Graph, opts ...ExecutorOption) *Executor {
	t.Helper()
	exec, err := NewExecutor(g, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec
}

func TestInvokeLinearGraph(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", appendTrail("a")).
		AddNode("b", appendTrail("b")).
		AddEdge("a", "b").
		SetEntryPoint("a").
		SetFinishPoint("b").
		MustCompile()

	exec := newTestExecutor(t, g)
	final, err := exec.Invoke(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, final["trail"])
}

func TestInvokeAppliesDefaults(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", func(ctx context.Context, state State) (any, error) {
			// Defaults are visible before any node writes.
			_, ok := state["trail"].([]any)
			if !ok {
				return nil, errors.New("trail default missing")
			}
			return nil, nil
		}).
		SetEntryPoint("a").
		SetFinishPoint("a").
		MustCompile()

	exec := newTestExecutor(t, g)
	_, err := exec.Invoke(context.Background(), nil)
	require.NoError(t, err)
}

func TestParallelMergeIsDeterministic(t *testing.T) {
	// Fan out to three nodes appending to the same field; the merge order
	// is ascending node ID regardless of completion order.
	g := NewStateGraph(trailSchema()).
		AddNode("fan", appendTrail("fan")).
		AddNode("w1", appendTrail("w1")).
		AddNode("w2", appendTrail("w2")).
		AddNode("w3", appendTrail("w3")).
		AddEdge("fan", "w1").
		AddEdge("fan", "w2").
		AddEdge("fan", "w3").
		SetEntryPoint("fan").
		SetFinishPoint("w1").
		SetFinishPoint("w2").
		SetFinishPoint("w3").
		MustCompile()

	for i := 0; i < 20; i++ {
		exec := newTestExecutor(t, g)
		final, err := exec.Invoke(context.Background(), State{})
		require.NoError(t, err)
		assert.Equal(t, []any{"fan", "w1", "w2", "w3"}, final["trail"])
	}
}

func TestConditionalRouting(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("decide", func(ctx context.Context, state State) (any, error) {
			return State{"counter": 1}, nil
		}).
		AddNode("odd", appendTrail("odd")).
		AddNode("even", appendTrail("even")).
		AddConditionalEdges("decide", func(ctx context.Context, state State) (string, error) {
			// Routing sees the merged post-superstep state.
			if state["counter"].(int)%2 == 1 {
				return "odd", nil
			}
			return "even", nil
		}, map[string]string{"odd": "odd", "even": "even"}).
		SetEntryPoint("decide").
		SetFinishPoint("odd").
		SetFinishPoint("even").
		MustCompile()

	exec := newTestExecutor(t, g)
	final, err := exec.Invoke(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, []any{"odd"}, final["trail"])
}

func TestConditionalRoutingUnknownResult(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("decide", passNode).
		AddNode("next", appendTrail("next")).
		AddConditionalEdges("decide", func(ctx context.Context, state State) (string, error) {
			return "nowhere", nil
		}, map[string]string{"somewhere": "next"}).
		SetEntryPoint("decide").
		SetFinishPoint("next").
		MustCompile()

	exec := newTestExecutor(t, g)
	_, err := exec.Invoke(context.Background(), State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNode)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestMultiConditionalFanOut(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("fan", appendTrail("fan")).
		AddNode("w1", appendTrail("w1")).
		AddNode("w2", appendTrail("w2")).
		AddMultiConditionalEdges("fan", func(ctx context.Context, state State) ([]string, error) {
			return []string{"w2", "w1"}, nil
		}, map[string]string{"w1": "w1", "w2": "w2"}).
		SetEntryPoint("fan").
		SetFinishPoint("w1").
		SetFinishPoint("w2").
		MustCompile()

	exec := newTestExecutor(t, g)
	final, err := exec.Invoke(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, []any{"fan", "w1", "w2"}, final["trail"])
}

func TestCommandGoToOverridesEdges(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", func(ctx context.Context, state State) (any, error) {
			return (&Command{Update: State{"trail": []any{"a"}}}).WithGoTo("c"), nil
		}).
		AddNode("b", appendTrail("b")).
		AddNode("c", appendTrail("c")).
		AddEdge("a", "b").
		SetEntryPoint("a").
		SetFinishPoint("b").
		SetFinishPoint("c").
		MustCompile()

	exec := newTestExecutor(t, g)
	final, err := exec.Invoke(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "c"}, final["trail"])
}

func TestNodeErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	g := NewStateGraph(trailSchema()).
		AddNode("fails", func(ctx context.Context, state State) (any, error) {
			return nil, boom
		}).
		SetEntryPoint("fails").
		SetFinishPoint("fails").
		MustCompile()

	exec := newTestExecutor(t, g)
	_, err := exec.Invoke(context.Background(), State{})
	require.Error(t, err)
	var ne *NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "fails", ne.NodeID)
	assert.ErrorIs(t, err, boom)
}

func TestInvalidResultType(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("bad", func(ctx context.Context, state State) (any, error) {
			return 42, nil
		}).
		SetEntryPoint("bad").
		SetFinishPoint("bad").
		MustCompile()

	exec := newTestExecutor(t, g)
	_, err := exec.Invoke(context.Background(), State{})
	require.Error(t, err)
	var ne *NodeError
	require.ErrorAs(t, err, &ne)
	assert.Contains(t, ne.Error(), "invalid result type")
}

func TestRecursionLimit(t *testing.T) {
	var runs atomic.Int32
	g := NewStateGraph(trailSchema()).
		AddNode("loop", func(ctx context.Context, state State) (any, error) {
			runs.Add(1)
			return nil, nil
		}).
		AddEdge("loop", "loop").
		SetEntryPoint("loop").
		MustCompile()

	exec := newTestExecutor(t, g)
	_, err := exec.Invoke(context.Background(), State{}, WithRecursionLimit(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecursionLimit)
	assert.Equal(t, int32(3), runs.Load())
}

func TestContextCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewStateGraph(trailSchema()).
		AddNode("loop", func(ctx context.Context, state State) (any, error) {
			cancel()
			return nil, nil
		}).
		AddEdge("loop", "loop").
		SetEntryPoint("loop").
		MustCompile()

	exec := newTestExecutor(t, g)
	_, err := exec.Invoke(ctx, State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosedExecutor(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", passNode).
		SetEntryPoint("a").
		SetFinishPoint("a").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)
	require.NoError(t, exec.Close())

	_, err = exec.Invoke(context.Background(), State{})
	assert.ErrorIs(t, err, ErrExecutorClosed)
	_, err = exec.Stream(context.Background(), State{})
	assert.ErrorIs(t, err, ErrExecutorClosed)
}

func TestStateInspectionRequiresSaver(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", passNode).
		SetEntryPoint("a").
		SetFinishPoint("a").
		MustCompile()
	exec := newTestExecutor(t, g)

	_, err := exec.CurrentState(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrPersistenceRequired)
	_, err = exec.StateHistory(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrPersistenceRequired)
}

func TestInterruptWithoutSaver(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("approval", func(ctx context.Context, state State) (any, error) {
			_, err := Interrupt(ctx, "need input")
			return nil, err
		}).
		SetEntryPoint("approval").
		SetFinishPoint("approval").
		MustCompile()

	exec := newTestExecutor(t, g)
	_, err := exec.Invoke(context.Background(), State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceRequired)
}

func collectEvents(t *testing.T, ch <-chan *event.Event) []*event.Event {
	t.Helper()
	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	return events
}

func TestStreamEventsMode(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", appendTrail("a")).
		AddNode("b", appendTrail("b")).
		AddEdge("a", "b").
		SetEntryPoint("a").
		SetFinishPoint("b").
		MustCompile()

	exec := newTestExecutor(t, g)
	ch, err := exec.Stream(context.Background(), State{}, WithInvocationID("inv-1"))
	require.NoError(t, err)
	events := collectEvents(t, ch)

	var types []event.Type
	for _, evt := range events {
		assert.Equal(t, "inv-1", evt.InvocationID)
		types = append(types, evt.Type)
	}
	assert.Equal(t, []event.Type{
		event.TypeNodeStart, event.TypeNodeEnd,
		event.TypeNodeStart, event.TypeNodeEnd,
		event.TypeGraphEnd,
	}, types)

	last := events[len(events)-1]
	assert.Equal(t, []any{"a", "b"}, last.State["trail"])
}

func TestStreamUpdatesAndValuesModes(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", appendTrail("a")).
		AddNode("b", appendTrail("b")).
		AddEdge("a", "b").
		SetEntryPoint("a").
		SetFinishPoint("b").
		MustCompile()

	exec := newTestExecutor(t, g)
	ch, err := exec.Stream(context.Background(), State{},
		WithStreamModes(StreamModeUpdates, StreamModeValues))
	require.NoError(t, err)
	events := collectEvents(t, ch)

	var updates, values []*event.Event
	for _, evt := range events {
		switch evt.Type {
		case event.TypeStateUpdate:
			updates = append(updates, evt)
		case event.TypeStateValues:
			values = append(values, evt)
		default:
			t.Fatalf("unexpected event type %s in updates/values stream", evt.Type)
		}
	}
	require.Len(t, updates, 2)
	assert.Equal(t, "a", updates[0].NodeID)
	assert.Equal(t, []any{"a"}, updates[0].Delta["trail"])
	assert.Equal(t, "b", updates[1].NodeID)
	assert.Equal(t, []any{"b"}, updates[1].Delta["trail"])

	require.Len(t, values, 2)
	assert.Equal(t, []any{"a"}, values[0].State["trail"])
	assert.Equal(t, []any{"a", "b"}, values[1].State["trail"])
}

func TestStreamErrorEvent(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("fails", func(ctx context.Context, state State) (any, error) {
			return nil, errors.New("boom")
		}).
		SetEntryPoint("fails").
		SetFinishPoint("fails").
		MustCompile()

	exec := newTestExecutor(t, g)
	ch, err := exec.Stream(context.Background(), State{})
	require.NoError(t, err)
	events := collectEvents(t, ch)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, event.TypeError, last.Type)
	assert.Equal(t, string(StreamModeEvents), last.Mode)
	require.NotNil(t, last.Error)
	assert.Equal(t, ErrorTypeNodeExecution, last.Error.Type)
	assert.Contains(t, last.Error.Message, "boom")
}

func TestStreamErrorEventWithoutEventsMode(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("fails", func(ctx context.Context, state State) (any, error) {
			return nil, errors.New("boom")
		}).
		SetEntryPoint("fails").
		SetFinishPoint("fails").
		MustCompile()

	exec := newTestExecutor(t, g)
	ch, err := exec.Stream(context.Background(), State{},
		WithStreamModes(StreamModeUpdates))
	require.NoError(t, err)
	events := collectEvents(t, ch)

	// The terminal error still surfaces, but carries no mode tag since
	// the events mode did not produce it.
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, event.TypeError, last.Type)
	assert.Empty(t, last.Mode)
	require.NotNil(t, last.Error)
	assert.Contains(t, last.Error.Message, "boom")
}

func TestSubgraphExecution(t *testing.T) {
	sub := NewStateGraph(trailSchema()).
		AddNode("inner1", appendTrail("inner1")).
		AddNode("inner2", appendTrail("inner2")).
		AddEdge("inner1", "inner2").
		SetEntryPoint("inner1").
		SetFinishPoint("inner2").
		MustCompile()

	g := NewStateGraph(trailSchema()).
		AddNode("before", appendTrail("before")).
		AddSubgraph("sub", sub).
		AddNode("after", appendTrail("after")).
		AddEdge("before", "sub").
		AddEdge("sub", "after").
		SetEntryPoint("before").
		SetFinishPoint("after").
		MustCompile()

	exec := newTestExecutor(t, g)
	final, err := exec.Invoke(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, []any{"before", "inner1", "inner2", "after"}, final["trail"])
}

func TestSubgraphEventForwarding(t *testing.T) {
	sub := NewStateGraph(trailSchema()).
		AddNode("inner", appendTrail("inner")).
		SetEntryPoint("inner").
		SetFinishPoint("inner").
		MustCompile()

	g := NewStateGraph(trailSchema()).
		AddSubgraph("sub", sub).
		SetEntryPoint("sub").
		SetFinishPoint("sub").
		MustCompile()

	// Without forwarding, only top-level node events surface.
	exec := newTestExecutor(t, g)
	ch, err := exec.Stream(context.Background(), State{})
	require.NoError(t, err)
	for _, evt := range collectEvents(t, ch) {
		assert.NotEqual(t, "inner", evt.NodeID)
	}

	// With forwarding, inner events carry the nested path.
	ch, err = exec.Stream(context.Background(), State{}, WithSubgraphEvents(true))
	require.NoError(t, err)
	var innerEvents []*event.Event
	for _, evt := range collectEvents(t, ch) {
		if evt.NodeID == "inner" {
			innerEvents = append(innerEvents, evt)
		}
	}
	require.NotEmpty(t, innerEvents)
	for _, evt := range innerEvents {
		assert.Equal(t, []string{"sub"}, evt.Path)
	}
}

func TestImplicitEndForSinkNodes(t *testing.T) {
	// A node without outgoing edges routes to End instead of hanging.
	g := NewStateGraph(trailSchema()).
		AddNode("only", appendTrail("only")).
		SetEntryPoint("only").
		MustCompile()

	exec := newTestExecutor(t, g)
	final, err := exec.Invoke(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, []any{"only"}, final["trail"])
}

func TestRunsDoNotShareState(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", appendTrail("a")).
		SetEntryPoint("a").
		SetFinishPoint("a").
		MustCompile()
	exec := newTestExecutor(t, g)

	results := make(chan []any, 8)
	for i := 0; i < 8; i++ {
		go func() {
			final, err := exec.Invoke(context.Background(), State{})
			if err != nil {
				results <- nil
				return
			}
			results <- final["trail"].([]any)
		}()
	}
	for i := 0; i < 8; i++ {
		trail := <-results
		require.NotNil(t, trail)
		assert.Equal(t, []any{"a"}, trail)
	}
}

func TestRouteErrorPropagates(t *testing.T) {
	condErr := fmt.Errorf("router exploded")
	g := NewStateGraph(trailSchema()).
		AddNode("a", passNode).
		AddNode("b", passNode).
		AddConditionalEdges("a", func(ctx context.Context, state State) (string, error) {
			return "", condErr
		}, map[string]string{"go": "b"}).
		SetEntryPoint("a").
		SetFinishPoint("b").
		MustCompile()

	exec := newTestExecutor(t, g)
	_, err := exec.Invoke(context.Background(), State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, condErr)
}
