//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"

	"github.com/loomhq/loom/log"
)

// StateGraph provides a fluent interface for building graphs. Registration
// methods are chainable; errors detected during registration are recorded
// and surfaced by Compile.
//
// Example:
//
//	schema := NewStateSchema().AddField("counter", StateField{...})
//	g, err := NewStateGraph(schema).
//		AddNode("increment", incrementFunc).
//		SetEntryPoint("increment").
//		SetFinishPoint("increment").
//		Compile()
//
// The compiled Graph is executed with NewExecutor(g).
type StateGraph struct {
	schema    *StateSchema
	nodes     map[string]*Node
	order     []string
	edges     []*Edge
	condEdges map[string]*ConditionalEdge
	errs      []error
}

// NewStateGraph creates a new graph builder with the given state schema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &StateGraph{
		schema:    schema,
		nodes:     make(map[string]*Node),
		condEdges: make(map[string]*ConditionalEdge),
	}
}

// Option configures a Node at registration time.
type Option func(*Node)

// WithName sets the display name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

// WithNodeCallbacks attaches per-node callbacks.
func WithNodeCallbacks(callbacks *NodeCallbacks) Option {
	return func(node *Node) {
		node.callbacks = callbacks
	}
}

// AddNode adds a node with the given ID and function. The ID must be unique
// within the graph and must not be Start or End.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) *StateGraph {
	node := &Node{
		ID:       id,
		Name:     id,
		Function: function,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.registerNode(node)
	return sg
}

// AddSubgraph registers a compiled graph as a single node. The subgraph
// shares the parent's state model: its run starts from the parent snapshot
// and its final state is applied back to the parent. Internal node names
// are namespaced under id for streaming paths only and are not valid
// AddEdge targets.
func (sg *StateGraph) AddSubgraph(id string, subgraph *Graph, opts ...Option) *StateGraph {
	if subgraph == nil {
		sg.errs = append(sg.errs, fmt.Errorf("subgraph %s is nil: %w", id, ErrUnknownNode))
		return sg
	}
	node := &Node{
		ID:       id,
		Name:     id,
		subgraph: subgraph,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.registerNode(node)
	return sg
}

func (sg *StateGraph) registerNode(node *Node) {
	if node.ID == "" || node.ID == Start || node.ID == End {
		sg.errs = append(sg.errs, fmt.Errorf("node id %q is reserved: %w", node.ID, ErrDuplicateNode))
		return
	}
	if _, exists := sg.nodes[node.ID]; exists {
		sg.errs = append(sg.errs, fmt.Errorf("node %s already registered: %w", node.ID, ErrDuplicateNode))
		return
	}
	sg.nodes[node.ID] = node
	sg.order = append(sg.order, node.ID)
}

// AddEdge adds an unconditional edge between two nodes. Endpoints are not
// validated until Compile.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	sg.edges = append(sg.edges, &Edge{From: from, To: to})
	return sg
}

// AddConditionalEdges adds conditional routing from a node. The condition
// is evaluated against the merged state after the superstep in which from
// ran; pathMap maps its result to a target node (nil means the result is
// used as the target directly).
func (sg *StateGraph) AddConditionalEdges(from string, condition ConditionalFunc, pathMap map[string]string) *StateGraph {
	sg.condEdges[from] = &ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
	}
	return sg
}

// AddMultiConditionalEdges adds fan-out conditional routing from a node.
// Every returned target joins the next superstep's frontier.
func (sg *StateGraph) AddMultiConditionalEdges(from string, condition MultiConditionalFunc, pathMap map[string]string) *StateGraph {
	sg.condEdges[from] = &ConditionalEdge{
		From:           from,
		MultiCondition: condition,
		PathMap:        pathMap,
	}
	return sg
}

// SetEntryPoint marks a node as an entry point. Equivalent to
// AddEdge(Start, id).
func (sg *StateGraph) SetEntryPoint(id string) *StateGraph {
	return sg.AddEdge(Start, id)
}

// SetFinishPoint routes a node to End. Equivalent to AddEdge(id, End).
func (sg *StateGraph) SetFinishPoint(id string) *StateGraph {
	return sg.AddEdge(id, End)
}

// Compile validates the graph and freezes it into an immutable Graph:
// every edge endpoint is resolved to an arena index, Start must have at
// least one outgoing edge, and nodes unreachable from Start are reported
// at warning level.
func (sg *StateGraph) Compile() (*Graph, error) {
	if len(sg.errs) > 0 {
		return nil, sg.errs[0]
	}

	g := &Graph{
		schema:           sg.schema,
		nodes:            make([]*Node, 0, len(sg.order)),
		index:            make(map[string]int, len(sg.order)),
		conditionalEdges: make(map[string]*ConditionalEdge, len(sg.condEdges)),
	}
	for i, id := range sg.order {
		g.nodes = append(g.nodes, sg.nodes[id])
		g.index[id] = i
	}
	g.edges = make([][]int, len(g.nodes))

	for _, e := range sg.edges {
		if err := sg.resolveEdge(g, e); err != nil {
			return nil, err
		}
	}
	for from, ce := range sg.condEdges {
		if from != Start {
			if _, ok := g.index[from]; !ok {
				return nil, fmt.Errorf("conditional edge source %s: %w", from, ErrUnknownNode)
			}
		}
		for _, to := range ce.PathMap {
			if to == End {
				continue
			}
			if _, ok := g.index[to]; !ok {
				return nil, fmt.Errorf("conditional edge target %s: %w", to, ErrUnknownNode)
			}
		}
		g.conditionalEdges[from] = ce
	}

	if len(g.startEdges) == 0 {
		if _, ok := g.conditionalEdges[Start]; !ok {
			return nil, ErrNoEntryPoint
		}
	}

	reachable := g.reachableFromStart()
	for _, n := range g.nodes {
		if !reachable[n.ID] {
			log.Warnf("graph: node %q is not statically reachable from start", n.ID)
		}
	}
	return g, nil
}

func (sg *StateGraph) resolveEdge(g *Graph, e *Edge) error {
	target := endIndex
	if e.To != End {
		i, ok := g.index[e.To]
		if !ok {
			return fmt.Errorf("edge %s -> %s: %w", e.From, e.To, ErrUnknownNode)
		}
		target = i
	}
	if e.From == Start {
		g.startEdges = append(g.startEdges, target)
		return nil
	}
	i, ok := g.index[e.From]
	if !ok {
		return fmt.Errorf("edge %s -> %s: %w", e.From, e.To, ErrUnknownNode)
	}
	g.edges[i] = append(g.edges[i], target)
	return nil
}

// MustCompile compiles the graph or panics. Intended for tests and
// examples with statically known-good graphs.
func (sg *StateGraph) MustCompile() *Graph {
	g, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return g
}
