//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the builder, compiler and executor. Callers
// should match them with errors.Is since they are usually wrapped with
// additional context.
var (
	// ErrDuplicateNode is returned when a node ID is registered twice or
	// collides with the Start/End sentinels.
	ErrDuplicateNode = errors.New("duplicate node id")
	// ErrUnknownNode is returned when an edge endpoint or router result
	// references a node that was never registered.
	ErrUnknownNode = errors.New("unknown node id")
	// ErrNoEntryPoint is returned by Compile when Start has no outgoing edge.
	ErrNoEntryPoint = errors.New("graph has no entry point")
	// ErrRecursionLimit is returned when a run exceeds its superstep limit.
	ErrRecursionLimit = errors.New("recursion limit exceeded")
	// ErrNoPendingInterrupt is returned when a resume command is supplied
	// but the thread has no pending interrupt.
	ErrNoPendingInterrupt = errors.New("no pending interrupt")
	// ErrPersistenceRequired is returned when Interrupt is called on an
	// executor without a bound checkpoint saver.
	ErrPersistenceRequired = errors.New("interrupt requires a checkpoint saver")
	// ErrExecutorClosed is returned when a run is started on a closed executor.
	ErrExecutorClosed = errors.New("executor is closed")
)

// Error type strings used in error events.
const (
	ErrorTypeGraphExecution = "graph_execution_error"
	ErrorTypeNodeExecution  = "node_execution_error"
	ErrorTypeRecursionLimit = "recursion_limit_error"
)

// NodeError wraps a failure raised by a node executor. The run terminates
// with the last successful checkpoint retained; the failed superstep is not
// committed.
type NodeError struct {
	// NodeID is the node whose executor failed.
	NodeID string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error { return e.Err }
