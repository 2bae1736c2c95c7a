//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

// Command combines a state update with routing and resume directives. It
// serves two roles: a node may return a *Command to update state and jump
// to a specific node, and a caller passes one to Executor.Resume to
// continue a suspended thread.
type Command struct {
	// Update is merged into the state before execution continues.
	Update State
	// GoTo overrides edge routing with an explicit target node.
	GoTo string
	// Resume is the value injected at the pending interrupt call site.
	Resume any
	// ResumeMap maps task IDs to resume values for addressing specific
	// interrupt call sites.
	ResumeMap map[string]any
}

// ResumeWith builds a resume command carrying a single value for the
// pending interrupt.
func ResumeWith(value any) *Command {
	return &Command{Resume: value}
}

// WithUpdate sets the state update applied before execution continues.
func (c *Command) WithUpdate(update State) *Command {
	c.Update = update
	return c
}

// WithGoTo overrides edge routing with an explicit target node.
func (c *Command) WithGoTo(nodeID string) *Command {
	c.GoTo = nodeID
	return c
}

// AddResumeValue adds a resume value addressed to a specific task ID.
func (c *Command) AddResumeValue(taskID string, value any) *Command {
	if c.ResumeMap == nil {
		c.ResumeMap = make(map[string]any)
	}
	c.ResumeMap[taskID] = value
	return c
}
