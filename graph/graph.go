//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

// Package graph provides a superstep orchestration engine for stateful,
// resumable computations. Graphs are built with StateGraph, compiled into
// an immutable Graph and executed by an Executor.
package graph

import (
	"context"
	"sort"
)

// Special node identifiers for graph routing.
const (
	// Start represents the virtual start node.
	Start = "__start__"
	// End represents the virtual end node.
	End = "__end__"
)

// NodeFunc is the executor contract for a node. It receives an immutable
// state snapshot and returns either a State partial update or a *Command.
// It may call Interrupt to suspend the run.
type NodeFunc func(ctx context.Context, state State) (any, error)

// ConditionalFunc routes to a single next node based on state.
type ConditionalFunc func(ctx context.Context, state State) (string, error)

// MultiConditionalFunc routes to several next nodes for fan-out.
type MultiConditionalFunc func(ctx context.Context, state State) ([]string, error)

// Node represents a node in the graph. Nodes are primarily functions with
// metadata; a node may instead wrap a compiled subgraph.
type Node struct {
	// ID is the unique identity of the node within its graph.
	ID string
	// Name is a human-readable name, defaulting to the ID.
	Name string
	// Description optionally documents the node.
	Description string
	// Function executes the node. Nil for subgraph nodes.
	Function NodeFunc

	subgraph  *Graph
	callbacks *NodeCallbacks
}

// Subgraph returns the compiled subgraph wrapped by this node, if any.
func (n *Node) Subgraph() *Graph { return n.subgraph }

// Edge represents an unconditional transition between two nodes.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes from a node to one or more targets computed from
// the merged state after the node's superstep.
type ConditionalEdge struct {
	// From is the source node, possibly Start.
	From string
	// Condition routes to a single target. Exactly one of Condition and
	// MultiCondition is set.
	Condition ConditionalFunc
	// MultiCondition routes to several targets for parallel fan-out.
	MultiCondition MultiConditionalFunc
	// PathMap optionally maps condition results to node IDs. When nil the
	// condition result is used as the target directly.
	PathMap map[string]string
}

// endIndex is the arena index standing in for the End sentinel.
const endIndex = -1

// Graph is the immutable runtime representation produced by
// StateGraph.Compile. Node references are resolved once at compile time
// into arena indices so the hot path avoids repeated string lookups.
type Graph struct {
	schema *StateSchema

	nodes []*Node        // arena in registration order
	index map[string]int // node ID -> arena index

	edges            [][]int // static targets per arena index (endIndex for End)
	startEdges       []int   // static targets of Start
	conditionalEdges map[string]*ConditionalEdge
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// NodeIDs returns all node IDs in ascending order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

// Schema returns the state schema the graph was built with.
func (g *Graph) Schema() *StateSchema { return g.schema }

// EntryTargets returns the IDs targeted by static edges from Start.
func (g *Graph) EntryTargets() []string {
	return g.targetIDs(g.startEdges)
}

// StaticTargets returns the IDs targeted by static edges from a node.
func (g *Graph) StaticTargets(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.targetIDs(g.edges[i])
}

// ConditionalEdge returns the conditional edge from a node, if any.
func (g *Graph) ConditionalEdge(id string) (*ConditionalEdge, bool) {
	ce, ok := g.conditionalEdges[id]
	return ce, ok
}

// hasOutgoing reports whether a node declares any outgoing transition.
// Nodes without one implicitly route to End.
func (g *Graph) hasOutgoing(id string) bool {
	if i, ok := g.index[id]; ok && len(g.edges[i]) > 0 {
		return true
	}
	_, ok := g.conditionalEdges[id]
	return ok
}

func (g *Graph) targetIDs(targets []int) []string {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == endIndex {
			ids = append(ids, End)
			continue
		}
		ids = append(ids, g.nodes[t].ID)
	}
	return ids
}

// reachableFromStart computes the set of node IDs reachable from Start
// following static edges and the statically known targets of conditional
// edges. Conditional edges without a PathMap contribute nothing, so the
// result is a lower bound used for warning-level diagnostics only.
func (g *Graph) reachableFromStart() map[string]bool {
	seen := make(map[string]bool, len(g.nodes))
	queue := append([]string(nil), g.targetIDs(g.startEdges)...)
	queue = append(queue, g.staticConditionalTargets(Start)...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == End || seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, g.StaticTargets(id)...)
		queue = append(queue, g.staticConditionalTargets(id)...)
	}
	return seen
}

func (g *Graph) staticConditionalTargets(from string) []string {
	ce, ok := g.conditionalEdges[from]
	if !ok || ce.PathMap == nil {
		return nil
	}
	targets := make([]string, 0, len(ce.PathMap))
	for _, to := range ce.PathMap {
		targets = append(targets, to)
	}
	return targets
}
