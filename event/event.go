//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

// Package event provides the event system for graph execution.
package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of execution event.
type Type string

// Event types emitted during graph execution.
const (
	// TypeNodeStart marks the start of a node invocation.
	TypeNodeStart Type = "node.start"
	// TypeNodeEnd marks the completion of a node invocation.
	TypeNodeEnd Type = "node.end"
	// TypeStateUpdate carries a single node's partial state update.
	TypeStateUpdate Type = "state.update"
	// TypeStateValues carries the full merged state after a superstep.
	TypeStateValues Type = "state.values"
	// TypeGraphEnd marks successful completion of a run and carries the
	// final state.
	TypeGraphEnd Type = "graph.end"
	// TypeGraphInterrupt marks a run suspended by an interrupt.
	TypeGraphInterrupt Type = "graph.interrupt"
	// TypeError is the terminal event of a failed run.
	TypeError Type = "error"
)

// Event represents a single observable occurrence during a graph run.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`
	// InvocationID identifies the run that produced the event.
	InvocationID string `json:"invocationId"`
	// Author is the component that emitted the event.
	Author string `json:"author"`
	// Type is the event type.
	Type Type `json:"type"`
	// Mode is the stream mode that produced this event.
	Mode string `json:"mode,omitempty"`
	// NodeID is the node the event refers to, if any.
	NodeID string `json:"nodeId,omitempty"`
	// Path locates the node inside nested subgraphs. It is empty for
	// top-level nodes.
	Path []string `json:"path,omitempty"`
	// Step is the superstep number the event belongs to.
	Step int `json:"step,omitempty"`
	// State is the full state payload (values and graph.end events).
	State map[string]any `json:"state,omitempty"`
	// Delta is a single node's partial update (update events).
	Delta map[string]any `json:"delta,omitempty"`
	// Interrupt is the payload of a graph.interrupt event.
	Interrupt any `json:"interrupt,omitempty"`
	// Error describes the failure for error events.
	Error *ErrorDetail `json:"error,omitempty"`
	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes a run failure carried by an error event.
type ErrorDetail struct {
	// Type classifies the error.
	Type string `json:"type"`
	// Message is the human-readable error message.
	Message string `json:"message"`
}

// DottedPath returns the path joined with dots, or "" for top-level nodes.
func (e *Event) DottedPath() string {
	return strings.Join(e.Path, ".")
}

// Clone creates a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Path != nil {
		clone.Path = append([]string(nil), e.Path...)
	}
	clone.State = cloneMap(e.State)
	clone.Delta = cloneMap(e.Delta)
	if e.Error != nil {
		errCopy := *e.Error
		clone.Error = &errCopy
	}
	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Option configures an Event at construction time.
type Option func(*Event)

// WithType sets the event type.
func WithType(t Type) Option {
	return func(e *Event) {
		e.Type = t
	}
}

// WithMode tags the event with the stream mode that produced it.
func WithMode(mode string) Option {
	return func(e *Event) {
		e.Mode = mode
	}
}

// WithNodeID sets the node the event refers to.
func WithNodeID(nodeID string) Option {
	return func(e *Event) {
		e.NodeID = nodeID
	}
}

// WithPath sets the subgraph path of the node.
func WithPath(path []string) Option {
	return func(e *Event) {
		e.Path = append([]string(nil), path...)
	}
}

// WithStep sets the superstep number.
func WithStep(step int) Option {
	return func(e *Event) {
		e.Step = step
	}
}

// WithState attaches a full state payload.
func WithState(state map[string]any) Option {
	return func(e *Event) {
		e.State = state
	}
}

// WithDelta attaches a partial update payload.
func WithDelta(delta map[string]any) Option {
	return func(e *Event) {
		e.Delta = delta
	}
}

// WithInterrupt attaches an interrupt payload.
func WithInterrupt(value any) Option {
	return func(e *Event) {
		e.Interrupt = value
	}
}

// WithError attaches error details and sets the error type.
func WithError(errType, message string) Option {
	return func(e *Event) {
		e.Type = TypeError
		e.Error = &ErrorDetail{Type: errType, Message: message}
	}
}

// New creates a new Event with a generated ID and timestamp.
func New(invocationID, author string, opts ...Option) *Event {
	e := &Event{
		ID:           uuid.NewString(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
