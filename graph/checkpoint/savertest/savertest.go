//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

// Package savertest exercises the graph.CheckpointSaver contract. Every
// saver implementation runs this suite from its own tests, so the
// implementations cannot drift apart on ordering or copy semantics.
package savertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/graph"
)

// Factory returns a fresh, empty saver for one subtest. Cleanup goes
// through t.Cleanup.
type Factory func(t *testing.T) graph.CheckpointSaver

// Run verifies the CheckpointSaver contract against savers built by the
// factory: unknown threads are empty rather than errors, Latest and List
// follow insertion order even when checkpoints share a step number, and
// interrupt state survives storage.
func Run(t *testing.T, factory Factory) {
	t.Run("UnknownThreadIsEmpty", func(t *testing.T) {
		saver := factory(t)
		ctx := context.Background()

		latest, err := saver.Latest(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, latest)

		list, err := saver.List(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("LatestFollowsPuts", func(t *testing.T) {
		saver := factory(t)
		ctx := context.Background()

		first := checkpointAt("t1", 1)
		require.NoError(t, saver.Put(ctx, first))
		second := checkpointAt("t1", 2)
		second.ParentID = first.ID
		require.NoError(t, saver.Put(ctx, second))

		latest, err := saver.Latest(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, second.ID, latest.ID)
		assert.Equal(t, first.ID, latest.ParentID)
		assert.Equal(t, float64(2), latest.State["step"])
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		saver := factory(t)
		ctx := context.Background()
		for step := 1; step <= 3; step++ {
			require.NoError(t, saver.Put(ctx, checkpointAt("t1", step)))
		}

		list, err := saver.List(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, 3, list[0].Meta.Step)
		assert.Equal(t, 2, list[1].Meta.Step)
		assert.Equal(t, 1, list[2].Meta.Step)
	})

	// A resumed superstep commits under the same step number as the
	// interrupt checkpoint it supersedes, and the random ID suffix may
	// sort either way. The commit must still win Latest.
	t.Run("SameStepInterruptThenCommit", func(t *testing.T) {
		saver := factory(t)
		ctx := context.Background()

		interrupted := checkpointAt("t1", 1)
		interrupted.ID = "00000001-zzzzzzzz"
		interrupted.Meta.Source = graph.CheckpointSourceInterrupt
		interrupted.NextNodes = []string{"approval"}
		interrupted.Interrupt = &graph.InterruptState{
			NodeID: "approval",
			TaskID: "approval:0",
			Value:  "approve?",
			Step:   1,
		}
		require.NoError(t, saver.Put(ctx, interrupted))

		committed := checkpointAt("t1", 1)
		committed.ID = "00000001-aaaaaaaa"
		committed.ParentID = interrupted.ID
		require.NoError(t, saver.Put(ctx, committed))

		latest, err := saver.Latest(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, committed.ID, latest.ID)
		assert.Nil(t, latest.Interrupt)

		list, err := saver.List(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, committed.ID, list[0].ID)
		assert.Equal(t, interrupted.ID, list[1].ID)
	})

	t.Run("InterruptStateSurvives", func(t *testing.T) {
		saver := factory(t)
		ctx := context.Background()

		ckpt := checkpointAt("t1", 1)
		ckpt.Meta.Source = graph.CheckpointSourceInterrupt
		ckpt.NextNodes = []string{"approval"}
		ckpt.Interrupt = &graph.InterruptState{
			NodeID:       "approval",
			TaskID:       "approval:0",
			Value:        "approve?",
			ResumeValues: map[string]any{"ask:0": "yes"},
			Step:         1,
		}
		require.NoError(t, saver.Put(ctx, ckpt))

		latest, err := saver.Latest(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, latest)
		require.NotNil(t, latest.Interrupt)
		assert.Equal(t, "approval:0", latest.Interrupt.TaskID)
		assert.Equal(t, "approve?", latest.Interrupt.Value)
		assert.Equal(t, "yes", latest.Interrupt.ResumeValues["ask:0"])
		assert.Equal(t, []string{"approval"}, latest.NextNodes)
	})

	t.Run("DeleteThreadScopedToThread", func(t *testing.T) {
		saver := factory(t)
		ctx := context.Background()
		require.NoError(t, saver.Put(ctx, checkpointAt("t1", 1)))
		require.NoError(t, saver.Put(ctx, checkpointAt("t2", 1)))

		require.NoError(t, saver.DeleteThread(ctx, "t1"))

		latest, err := saver.Latest(ctx, "t1")
		require.NoError(t, err)
		assert.Nil(t, latest)

		latest, err = saver.Latest(ctx, "t2")
		require.NoError(t, err)
		require.NotNil(t, latest)
	})
}

func checkpointAt(threadID string, step int) *graph.Checkpoint {
	return &graph.Checkpoint{
		ID:        graph.NewCheckpointID(step),
		ThreadID:  threadID,
		State:     graph.State{"step": float64(step)},
		Meta:      graph.CheckpointMetadata{Source: graph.CheckpointSourceLoop, Step: step},
		Timestamp: time.Now().UTC(),
	}
}
