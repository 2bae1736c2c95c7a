//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/event"
)

// memorySaver is a minimal in-process CheckpointSaver for executor tests.
// The real implementations live under graph/checkpoint.
type memorySaver struct {
	chains map[string][]*Checkpoint
}

func newMemorySaver() *memorySaver {
	return &memorySaver{chains: make(map[string][]*Checkpoint)}
}

func (s *memorySaver) Put(ctx context.Context, ckpt *Checkpoint) error {
	s.chains[ckpt.ThreadID] = append(s.chains[ckpt.ThreadID], ckpt.Copy())
	return nil
}

func (s *memorySaver) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	chain := s.chains[threadID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1].Copy(), nil
}

func (s *memorySaver) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	chain := s.chains[threadID]
	out := make([]*Checkpoint, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Copy())
	}
	return out, nil
}

func (s *memorySaver) DeleteThread(ctx context.Context, threadID string) error {
	delete(s.chains, threadID)
	return nil
}

func (s *memorySaver) Close() error { return nil }

func TestCheckpointPerSuperstep(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", appendTrail("a")).
		AddNode("b", appendTrail("b")).
		AddEdge("a", "b").
		SetEntryPoint("a").
		SetFinishPoint("b").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))
	_, err := exec.Invoke(context.Background(), State{}, WithThreadID("t1"))
	require.NoError(t, err)

	history, err := exec.StateHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest first.
	assert.Equal(t, 2, history[0].Meta.Step)
	assert.Equal(t, 1, history[1].Meta.Step)
	assert.Equal(t, CheckpointSourceLoop, history[0].Meta.Source)

	// Parent links form a linear chain.
	assert.Equal(t, history[1].ID, history[0].ParentID)
	assert.Empty(t, history[1].ParentID)

	// Intermediate checkpoint captures the post-superstep state and the
	// pending frontier.
	assert.Equal(t, []any{"a"}, history[1].State["trail"])
	assert.Equal(t, []string{"b"}, history[1].NextNodes)
	assert.Equal(t, []any{"a", "b"}, history[0].State["trail"])
	assert.Empty(t, history[0].NextNodes)

	latest, err := exec.CurrentState(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, history[0].ID, latest.ID)
}

func TestCheckpointIDsAreChainOrdered(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", appendTrail("a")).
		AddNode("b", appendTrail("b")).
		AddEdge("a", "b").
		SetEntryPoint("a").
		SetFinishPoint("b").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))
	_, err := exec.Invoke(context.Background(), State{}, WithThreadID("t1"))
	require.NoError(t, err)

	history, err := exec.StateHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Greater(t, history[0].ID, history[1].ID)
}

func TestInterruptProducesSingleCheckpoint(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("approval", func(ctx context.Context, state State) (any, error) {
			value, err := Interrupt(ctx, "please approve")
			if err != nil {
				return nil, err
			}
			return State{"counter": 1, "trail": []any{value}}, nil
		}).
		SetEntryPoint("approval").
		SetFinishPoint("approval").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))

	_, err := exec.Invoke(context.Background(), State{}, WithThreadID("t1"))
	require.Error(t, err)
	ie, ok := AsInterruptError(err)
	require.True(t, ok)
	assert.Equal(t, "please approve", ie.Value)
	assert.Equal(t, "approval", ie.NodeID)

	history, err := exec.StateHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	ckpt := history[0]
	assert.Equal(t, CheckpointSourceInterrupt, ckpt.Meta.Source)
	assert.Equal(t, []string{"approval"}, ckpt.NextNodes)
	require.NotNil(t, ckpt.Interrupt)
	assert.Equal(t, "approval", ckpt.Interrupt.NodeID)
	assert.Equal(t, ie.TaskID, ckpt.Interrupt.TaskID)
	assert.Equal(t, "please approve", ckpt.Interrupt.Value)
}

func TestResumeRerunsInterruptedNode(t *testing.T) {
	var runs atomic.Int32
	g := NewStateGraph(trailSchema()).
		AddNode("approval", func(ctx context.Context, state State) (any, error) {
			runs.Add(1)
			value, err := Interrupt(ctx, "decision?")
			if err != nil {
				return nil, err
			}
			return State{"trail": []any{value}}, nil
		}).
		SetEntryPoint("approval").
		SetFinishPoint("approval").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))

	_, err := exec.Invoke(context.Background(), State{}, WithThreadID("t1"))
	require.True(t, IsInterruptError(err))
	require.Equal(t, int32(1), runs.Load())

	final, err := exec.Resume(context.Background(), ResumeWith("approved"), WithThreadID("t1"))
	require.NoError(t, err)
	// The node re-ran from the start; the resume value replayed at the
	// interrupt call site.
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, []any{"approved"}, final["trail"])

	history, err := exec.StateHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].Interrupt)
	assert.Empty(t, history[0].NextNodes)
	// The re-run superstep keeps the original step number.
	assert.Equal(t, history[1].Meta.Step, history[0].Meta.Step)
}

func TestSequentialInterruptsReplayInOrder(t *testing.T) {
	var runs atomic.Int32
	g := NewStateGraph(trailSchema()).
		AddNode("form", func(ctx context.Context, state State) (any, error) {
			runs.Add(1)
			first, err := Interrupt(ctx, "first?")
			if err != nil {
				return nil, err
			}
			second, err := Interrupt(ctx, "second?")
			if err != nil {
				return nil, err
			}
			return State{"trail": []any{first, second}}, nil
		}).
		SetEntryPoint("form").
		SetFinishPoint("form").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))

	_, err := exec.Invoke(context.Background(), State{}, WithThreadID("t1"))
	ie, ok := AsInterruptError(err)
	require.True(t, ok)
	assert.Equal(t, "first?", ie.Value)

	_, err = exec.Resume(context.Background(), ResumeWith("one"), WithThreadID("t1"))
	ie, ok = AsInterruptError(err)
	require.True(t, ok)
	assert.Equal(t, "second?", ie.Value)

	final, err := exec.Resume(context.Background(), ResumeWith("two"), WithThreadID("t1"))
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two"}, final["trail"])
	assert.Equal(t, int32(3), runs.Load())
}

func TestResumeWithoutPendingInterrupt(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("a", appendTrail("a")).
		SetEntryPoint("a").
		SetFinishPoint("a").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))

	// Unknown thread.
	_, err := exec.Resume(context.Background(), ResumeWith("x"), WithThreadID("ghost"))
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)

	// Completed thread.
	_, err = exec.Invoke(context.Background(), State{}, WithThreadID("t1"))
	require.NoError(t, err)
	_, err = exec.Resume(context.Background(), ResumeWith("x"), WithThreadID("t1"))
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)

	// The failed resume left the history untouched.
	history, err := exec.StateHistory(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestResumeWithStateUpdate(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("approval", func(ctx context.Context, state State) (any, error) {
			if _, err := Interrupt(ctx, "go?"); err != nil {
				return nil, err
			}
			return State{"trail": []any{state["counter"]}}, nil
		}).
		SetEntryPoint("approval").
		SetFinishPoint("approval").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))

	_, err := exec.Invoke(context.Background(), State{"counter": 1}, WithThreadID("t1"))
	require.True(t, IsInterruptError(err))

	cmd := ResumeWith("yes").WithUpdate(State{"counter": 99})
	final, err := exec.Resume(context.Background(), cmd, WithThreadID("t1"))
	require.NoError(t, err)
	assert.Equal(t, []any{99}, final["trail"])
}

func TestStreamEmitsInterruptEvent(t *testing.T) {
	g := NewStateGraph(trailSchema()).
		AddNode("approval", func(ctx context.Context, state State) (any, error) {
			_, err := Interrupt(ctx, "halt")
			return nil, err
		}).
		SetEntryPoint("approval").
		SetFinishPoint("approval").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))

	ch, err := exec.Stream(context.Background(), State{}, WithThreadID("t1"))
	require.NoError(t, err)
	events := collectEvents(t, ch)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, event.TypeGraphInterrupt, last.Type)
	assert.Equal(t, "halt", last.Interrupt)
	assert.Equal(t, "approval", last.NodeID)
}

func TestInterruptDiscardsSiblingUpdates(t *testing.T) {
	// When one frontier node suspends, nothing from that superstep
	// commits; resume re-runs the whole frontier.
	var writerRuns atomic.Int32
	g := NewStateGraph(trailSchema()).
		AddNode("fan", appendTrail("fan")).
		AddNode("writer", func(ctx context.Context, state State) (any, error) {
			writerRuns.Add(1)
			return State{"trail": []any{"writer"}}, nil
		}).
		AddNode("gate", func(ctx context.Context, state State) (any, error) {
			value, err := Interrupt(ctx, "open?")
			if err != nil {
				return nil, err
			}
			return State{"trail": []any{value}}, nil
		}).
		AddEdge("fan", "writer").
		AddEdge("fan", "gate").
		SetEntryPoint("fan").
		SetFinishPoint("writer").
		SetFinishPoint("gate").
		MustCompile()

	saver := newMemorySaver()
	exec := newTestExecutor(t, g, WithCheckpointSaver(saver))

	_, err := exec.Invoke(context.Background(), State{}, WithThreadID("t1"))
	require.True(t, IsInterruptError(err))

	latest, err := exec.CurrentState(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	// The interrupt checkpoint holds the pre-superstep state and both
	// frontier nodes as pending.
	assert.Equal(t, []any{"fan"}, latest.State["trail"])
	assert.Equal(t, []string{"gate", "writer"}, latest.NextNodes)

	final, err := exec.Resume(context.Background(), ResumeWith("opened"), WithThreadID("t1"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), writerRuns.Load())
	assert.ElementsMatch(t, []any{"fan", "opened", "writer"}, final["trail"])
}
