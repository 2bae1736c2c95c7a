//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passNode(ctx context.Context, state State) (any, error) {
	return nil, nil
}

func TestCompileLinearGraph(t *testing.T) {
	g, err := NewStateGraph(NewStateSchema()).
		AddNode("a", passNode).
		AddNode("b", passNode, WithName("node B"), WithDescription("second")).
		AddEdge("a", "b").
		SetEntryPoint("a").
		SetFinishPoint("b").
		Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, g.EntryTargets())
	assert.Equal(t, []string{"b"}, g.StaticTargets("a"))
	assert.Equal(t, []string{End}, g.StaticTargets("b"))

	node, ok := g.Node("b")
	require.True(t, ok)
	assert.Equal(t, "node B", node.Name)
	assert.Equal(t, "second", node.Description)
}

func TestCompileDuplicateNode(t *testing.T) {
	_, err := NewStateGraph(NewStateSchema()).
		AddNode("a", passNode).
		AddNode("a", passNode).
		SetEntryPoint("a").
		Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestCompileReservedNodeID(t *testing.T) {
	_, err := NewStateGraph(NewStateSchema()).
		AddNode(Start, passNode).
		Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestCompileUnknownEdgeTarget(t *testing.T) {
	_, err := NewStateGraph(NewStateSchema()).
		AddNode("a", passNode).
		AddEdge("a", "missing").
		SetEntryPoint("a").
		Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestCompileNoEntryPoint(t *testing.T) {
	_, err := NewStateGraph(NewStateSchema()).
		AddNode("a", passNode).
		Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestCompileConditionalEdgeValidation(t *testing.T) {
	cond := func(ctx context.Context, state State) (string, error) {
		return "left", nil
	}

	// Unknown source node.
	_, err := NewStateGraph(NewStateSchema()).
		AddNode("a", passNode).
		AddConditionalEdges("ghost", cond, map[string]string{"left": "a"}).
		SetEntryPoint("a").
		Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNode)

	// Unknown path map target.
	_, err = NewStateGraph(NewStateSchema()).
		AddNode("a", passNode).
		AddConditionalEdges("a", cond, map[string]string{"left": "ghost"}).
		SetEntryPoint("a").
		Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNode)

	// End is a valid path map target.
	_, err = NewStateGraph(NewStateSchema()).
		AddNode("a", passNode).
		AddConditionalEdges("a", cond, map[string]string{"left": End}).
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)
}

func TestAddSubgraphNil(t *testing.T) {
	_, err := NewStateGraph(NewStateSchema()).
		AddSubgraph("sub", nil).
		SetEntryPoint("sub").
		Compile()
	require.Error(t, err)
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewStateGraph(NewStateSchema()).MustCompile()
	})
}

func TestCompileChainableAfterError(t *testing.T) {
	// Registration errors surface at Compile, not at the call site.
	sg := NewStateGraph(NewStateSchema()).
		AddNode("a", passNode).
		AddNode("a", passNode)
	require.NotNil(t, sg)
	sg.SetEntryPoint("a")
	_, err := sg.Compile()
	assert.ErrorIs(t, err, ErrDuplicateNode)
}
