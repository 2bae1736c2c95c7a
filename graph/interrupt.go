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
	"strconv"
	"strings"
	"sync"
	"time"
)

// InterruptError carries a suspension out of a node executor. It is not a
// failure: the run is checkpointed as interrupted and can be continued
// with Executor.Resume.
type InterruptError struct {
	// Value is the payload that was passed to Interrupt.
	Value any
	// NodeID is the node whose executor suspended.
	NodeID string
	// TaskID addresses the suspended call site.
	TaskID string
	// Step is the superstep in which the interrupt occurred.
	Step int
	// Path locates the node inside nested subgraphs, empty at top level.
	Path []string
	// Timestamp is when the interrupt occurred.
	Timestamp time.Time
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("graph interrupted at node %s (step %d): %v", e.NodeID, e.Step, e.Value)
}

// AsInterruptError extracts an InterruptError from an error chain.
func AsInterruptError(err error) (*InterruptError, bool) {
	var ie *InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsInterruptError reports whether the error chain contains an interrupt.
func IsInterruptError(err error) bool {
	_, ok := AsInterruptError(err)
	return ok
}

// interruptTracker is installed into the node invocation context by the
// executor. It assigns call-site indices in call order and resolves resume
// values seeded from the loaded checkpoint and the resume command.
type interruptTracker struct {
	nodeID     string
	path       []string
	step       int
	persistent bool

	mu           sync.Mutex
	calls        int
	resumeValues map[string]any
}

type interruptTrackerKey struct{}

func withInterruptTracker(ctx context.Context, t *interruptTracker) context.Context {
	return context.WithValue(ctx, interruptTrackerKey{}, t)
}

// taskKey derives the stable identity of an interrupt call site from the
// node's subgraph path, node ID and call index within the invocation.
func taskKey(path []string, nodeID string, call int) string {
	segments := make([]string, 0, len(path)+1)
	segments = append(segments, path...)
	segments = append(segments, nodeID)
	return strings.Join(segments, ".") + ":" + strconv.Itoa(call)
}

// Interrupt suspends the current node executor and surfaces value to the
// caller. On the first execution of a call site it returns a non-nil error
// carrying the payload; the executor checkpoints the run as interrupted.
// When the thread is resumed with a matching value, the same call site
// returns that value immediately instead of suspending.
//
// The engine re-invokes the node from its start on every resume, so node
// logic ahead of the first unresolved Interrupt call must be idempotent.
// Call sites are matched by call order within one invocation, which lets a
// node hold several sequential interrupts.
func Interrupt(ctx context.Context, value any) (any, error) {
	t, ok := ctx.Value(interruptTrackerKey{}).(*interruptTracker)
	if !ok {
		return nil, errors.New("interrupt called outside of a node invocation")
	}
	if !t.persistent {
		return nil, fmt.Errorf("node %s: %w", t.nodeID, ErrPersistenceRequired)
	}
	t.mu.Lock()
	call := t.calls
	t.calls++
	key := taskKey(t.path, t.nodeID, call)
	resume, found := t.resumeValues[key]
	t.mu.Unlock()
	if found {
		return resume, nil
	}
	return nil, &InterruptError{
		Value:     value,
		NodeID:    t.nodeID,
		TaskID:    key,
		Step:      t.step,
		Path:      append([]string(nil), t.path...),
		Timestamp: time.Now().UTC(),
	}
}
