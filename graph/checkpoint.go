//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Checkpoint metadata sources.
const (
	// CheckpointSourceLoop marks a checkpoint committed at the end of a
	// superstep.
	CheckpointSourceLoop = "loop"
	// CheckpointSourceInterrupt marks a checkpoint written when a node
	// suspended the run.
	CheckpointSourceInterrupt = "interrupt"
)

// DefaultMaxCheckpointsPerThread bounds per-thread history in the
// in-memory saver.
const DefaultMaxCheckpointsPerThread = 100

// Checkpoint is a durable snapshot of state plus run metadata, one per
// committed (or interrupted) superstep. Checkpoints are immutable once
// written and form a single linear chain per thread.
type Checkpoint struct {
	// ID is the unique identifier of the checkpoint. IDs embed the step
	// number for readability; chain order is the order of Put calls.
	ID string `json:"id"`
	// ThreadID is the logical execution identity owning this checkpoint.
	ThreadID string `json:"thread_id"`
	// ParentID references the immediately preceding checkpoint of the
	// thread, empty for the first one.
	ParentID string `json:"parent_id,omitempty"`
	// State is the full merged state at the end of the superstep.
	State State `json:"state"`
	// Meta carries step number and source.
	Meta CheckpointMetadata `json:"meta"`
	// NextNodes lists the nodes pending execution when the checkpoint was
	// written. Empty when the run completed.
	NextNodes []string `json:"next_nodes,omitempty"`
	// Interrupt holds the pending interrupt, if the run is suspended.
	Interrupt *InterruptState `json:"interrupt,omitempty"`
	// Timestamp is when the checkpoint was created.
	Timestamp time.Time `json:"ts"`
}

// CheckpointMetadata describes how a checkpoint came to be.
type CheckpointMetadata struct {
	// Source is one of the CheckpointSource constants.
	Source string `json:"source"`
	// Step is the superstep number, starting at 1.
	Step int `json:"step"`
}

// InterruptState captures a pending interrupt inside a checkpoint.
type InterruptState struct {
	// NodeID is the node whose executor suspended.
	NodeID string `json:"node_id"`
	// TaskID addresses the suspended call site; derived from the node's
	// subgraph path, node ID and call index.
	TaskID string `json:"task_id"`
	// Value is the payload passed to Interrupt.
	Value any `json:"value"`
	// ResumeValues are the resume values consumed so far, keyed by task
	// ID. Replayed on re-entry so earlier call sites return the same
	// value again.
	ResumeValues map[string]any `json:"resume_values,omitempty"`
	// Step is the superstep in which the interrupt occurred.
	Step int `json:"step"`
	// Path locates the node inside nested subgraphs.
	Path []string `json:"path,omitempty"`
}

// Copy creates a copy of the checkpoint with its own top-level
// containers. State values are cloned via State.Clone, so data nested
// inside a state field stays shared and must be treated as read-only.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	clone := *c
	clone.State = c.State.Clone()
	clone.NextNodes = append([]string(nil), c.NextNodes...)
	if c.Interrupt != nil {
		is := *c.Interrupt
		is.Path = append([]string(nil), c.Interrupt.Path...)
		if c.Interrupt.ResumeValues != nil {
			is.ResumeValues = make(map[string]any, len(c.Interrupt.ResumeValues))
			for k, v := range c.Interrupt.ResumeValues {
				is.ResumeValues[k] = v
			}
		}
		clone.Interrupt = &is
	}
	return &clone
}

// CheckpointSaver is the storage contract for checkpoint logs. Checkpoints
// are keyed strictly by thread; implementations must serialize their own
// writes. An unknown thread is not an error: Latest returns (nil, nil) and
// List returns an empty slice.
type CheckpointSaver interface {
	// Put appends a checkpoint to its thread's chain.
	Put(ctx context.Context, checkpoint *Checkpoint) error
	// Latest returns the newest checkpoint of a thread, or nil.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	// List returns all checkpoints of a thread, newest first.
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)
	// DeleteThread removes all checkpoints of a thread.
	DeleteThread(ctx context.Context, threadID string) error
	// Close releases resources held by the saver.
	Close() error
}

// NewCheckpointID derives a checkpoint ID from the step number. The
// zero-padded step prefix orders IDs across distinct steps; the random
// suffix keeps them unique across threads and runs. Step prefixes are not
// unique within a thread (a resumed superstep commits under the same step
// as the interrupt checkpoint it replaces), so savers must order by
// insertion, not by ID.
func NewCheckpointID(step int) string {
	return fmt.Sprintf("%08d-%s", step, uuid.NewString()[:8])
}
