//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"time"
)

// NodeCallbackContext provides context information for node callbacks.
type NodeCallbackContext struct {
	// NodeID is the ID of the node being executed.
	NodeID string
	// NodeName is the display name of the node being executed.
	NodeName string
	// StepNumber is the current superstep number.
	StepNumber int
	// ExecutionStartTime is when the node invocation started.
	ExecutionStartTime time.Time
	// InvocationID identifies this run.
	InvocationID string
}

// BeforeNodeCallback is called before a node is executed.
// Returns (customResult, error).
// - customResult: if not nil, this result is used and node execution is skipped.
// - error: if not nil, the node fails with this error.
type BeforeNodeCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
) (any, error)

// AfterNodeCallback is called after a node is executed.
// Returns (customResult, error).
// - customResult: if not nil, this result replaces the node's result.
// - error: if not nil, the node fails with this error.
type AfterNodeCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	result any,
	nodeErr error,
) (any, error)

// OnNodeErrorCallback is called when a node execution fails. It cannot
// change the error; use it for logging and monitoring.
type OnNodeErrorCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	err error,
)

// NodeCallbacks holds callbacks for node operations.
type NodeCallbacks struct {
	// BeforeNode callbacks run before the node executes, in order.
	BeforeNode []BeforeNodeCallback
	// AfterNode callbacks run after the node executes, in order.
	AfterNode []AfterNodeCallback
	// OnNodeError callbacks run when a node execution fails.
	OnNodeError []OnNodeErrorCallback
}

// NewNodeCallbacks creates a new NodeCallbacks instance.
func NewNodeCallbacks() *NodeCallbacks {
	return &NodeCallbacks{}
}

// RegisterBeforeNode registers a before node callback.
func (c *NodeCallbacks) RegisterBeforeNode(cb BeforeNodeCallback) *NodeCallbacks {
	c.BeforeNode = append(c.BeforeNode, cb)
	return c
}

// RegisterAfterNode registers an after node callback.
func (c *NodeCallbacks) RegisterAfterNode(cb AfterNodeCallback) *NodeCallbacks {
	c.AfterNode = append(c.AfterNode, cb)
	return c
}

// RegisterOnNodeError registers an on node error callback.
func (c *NodeCallbacks) RegisterOnNodeError(cb OnNodeErrorCallback) *NodeCallbacks {
	c.OnNodeError = append(c.OnNodeError, cb)
	return c
}

// RunBeforeNode runs all before node callbacks in order. The first
// callback returning a custom result short-circuits the rest.
func (c *NodeCallbacks) RunBeforeNode(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
) (any, error) {
	for _, cb := range c.BeforeNode {
		customResult, err := cb(ctx, callbackCtx, state)
		if err != nil {
			return nil, err
		}
		if customResult != nil {
			return customResult, nil
		}
	}
	return nil, nil
}

// RunAfterNode runs all after node callbacks in order. The first callback
// returning a custom result short-circuits the rest.
func (c *NodeCallbacks) RunAfterNode(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	result any,
	nodeErr error,
) (any, error) {
	for _, cb := range c.AfterNode {
		customResult, err := cb(ctx, callbackCtx, state, result, nodeErr)
		if err != nil {
			return nil, err
		}
		if customResult != nil {
			return customResult, nil
		}
	}
	return nil, nil
}

// RunOnNodeError runs all on node error callbacks in order.
func (c *NodeCallbacks) RunOnNodeError(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	err error,
) {
	for _, cb := range c.OnNodeError {
		cb(ctx, callbackCtx, state, err)
	}
}
