//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"

	"github.com/loomhq/loom/event"
)

// StreamMode selects which events Executor.Stream produces. Several modes
// may be combined in one run; every event is tagged with the mode that
// produced it.
type StreamMode string

const (
	// StreamModeValues emits the full merged state after every superstep.
	StreamModeValues StreamMode = "values"
	// StreamModeUpdates emits one event per node per superstep carrying
	// only that node's partial update.
	StreamModeUpdates StreamMode = "updates"
	// StreamModeEvents emits structured node.start/node.end events plus a
	// terminal graph.end or error event.
	StreamModeEvents StreamMode = "events"
)

// RunOption configures a single run of Invoke, Resume or Stream.
type RunOption func(*runOptions)

type runOptions struct {
	threadID       string
	recursionLimit int
	invocationID   string
	command        *Command
	streamModes    []StreamMode
	subgraphEvents bool
}

// WithThreadID binds the run to a thread, enabling checkpointing and
// resume against the bound saver. A previously unused thread ID starts a
// fresh thread.
func WithThreadID(threadID string) RunOption {
	return func(o *runOptions) {
		o.threadID = threadID
	}
}

// WithRecursionLimit overrides the executor's superstep limit for this run.
func WithRecursionLimit(limit int) RunOption {
	return func(o *runOptions) {
		if limit > 0 {
			o.recursionLimit = limit
		}
	}
}

// WithInvocationID sets an explicit invocation ID, mostly for tests and
// log correlation. A random one is generated otherwise.
func WithInvocationID(id string) RunOption {
	return func(o *runOptions) {
		o.invocationID = id
	}
}

// WithCommand supplies a resume directive instead of a fresh initial
// state. Requires a pending interrupt on the thread.
func WithCommand(cmd *Command) RunOption {
	return func(o *runOptions) {
		o.command = cmd
	}
}

// WithStreamModes selects the stream modes for Stream. Defaults to
// StreamModeEvents when none are given. Ignored by Invoke.
func WithStreamModes(modes ...StreamMode) RunOption {
	return func(o *runOptions) {
		o.streamModes = modes
	}
}

// WithSubgraphEvents forwards node events from inside subgraphs with their
// nested path. Only top-level events surface otherwise.
func WithSubgraphEvents(enabled bool) RunOption {
	return func(o *runOptions) {
		o.subgraphEvents = enabled
	}
}

// emit delivers an event to the run's channel, dropping it when the run
// context is cancelled so a slow consumer cannot wedge the scheduler.
func (e *Executor) emit(ctx context.Context, ec *execContext, evt *event.Event) {
	if ec.eventChan == nil {
		return
	}
	select {
	case ec.eventChan <- evt:
	case <-ctx.Done():
	}
}

func (e *Executor) emitNodeStart(ctx context.Context, ec *execContext, nodeID string, step int) {
	if !ec.modes[StreamModeEvents] {
		return
	}
	e.emit(ctx, ec, event.New(ec.invocationID, AuthorGraphExecutor,
		event.WithType(event.TypeNodeStart),
		event.WithMode(string(StreamModeEvents)),
		event.WithNodeID(nodeID),
		event.WithPath(ec.path),
		event.WithStep(step),
	))
}

func (e *Executor) emitNodeEnd(ctx context.Context, ec *execContext, nodeID string, step int) {
	if !ec.modes[StreamModeEvents] {
		return
	}
	e.emit(ctx, ec, event.New(ec.invocationID, AuthorGraphExecutor,
		event.WithType(event.TypeNodeEnd),
		event.WithMode(string(StreamModeEvents)),
		event.WithNodeID(nodeID),
		event.WithPath(ec.path),
		event.WithStep(step),
	))
}

// emitUpdates emits one state.update event per node that produced a
// non-empty update, in ascending node-ID order.
func (e *Executor) emitUpdates(ctx context.Context, ec *execContext, results []nodeResult, step int) {
	if !ec.modes[StreamModeUpdates] {
		return
	}
	for _, r := range results {
		if r.update == nil {
			continue
		}
		e.emit(ctx, ec, event.New(ec.invocationID, AuthorGraphExecutor,
			event.WithType(event.TypeStateUpdate),
			event.WithMode(string(StreamModeUpdates)),
			event.WithNodeID(r.nodeID),
			event.WithPath(ec.path),
			event.WithStep(step),
			event.WithDelta(r.update.Clone()),
		))
	}
}

// emitValues emits the full merged state after a committed superstep.
func (e *Executor) emitValues(ctx context.Context, ec *execContext, merged State, step int) {
	if !ec.modes[StreamModeValues] {
		return
	}
	e.emit(ctx, ec, event.New(ec.invocationID, AuthorGraphExecutor,
		event.WithType(event.TypeStateValues),
		event.WithMode(string(StreamModeValues)),
		event.WithPath(ec.path),
		event.WithStep(step),
		event.WithState(merged.Clone()),
	))
}
