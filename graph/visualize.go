//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Graphviz layout directions.
const (
	// RankDirLR sets a left-to-right layout.
	RankDirLR = "LR"
	// RankDirTB sets a top-to-bottom layout.
	RankDirTB = "TB"
)

// Style constants for visualization.
const (
	shapeBox     = "box"
	shapeOval    = "oval"
	shapeBox3D   = "box3d"
	shapeDiamond = "diamond"

	colorNodeFill     = "#e3f2fd"
	colorNodeBorder   = "#2196f3"
	colorSubFill      = "#f3e5f5"
	colorSubBorder    = "#9c27b0"
	colorStartFill    = "#e1f5e1"
	colorStartBorder  = "#4caf50"
	colorEndFill      = "#ffe1e1"
	colorEndBorder    = "#f44336"
	colorConditional  = "#999999"
)

// VizOptions configures DOT export.
type VizOptions struct {
	// RankDir sets the graph direction: "LR" or "TB".
	RankDir string
	// IncludeStartEnd toggles rendering of the virtual Start/End nodes.
	IncludeStartEnd bool
	// GraphLabel optionally labels the whole graph.
	GraphLabel string
}

// VizOption mutates VizOptions.
type VizOption func(*VizOptions)

// WithRankDir sets the graph direction. Valid values: "LR", "TB".
func WithRankDir(dir string) VizOption {
	return func(o *VizOptions) {
		if dir == RankDirLR || dir == RankDirTB {
			o.RankDir = dir
		}
	}
}

// WithIncludeStartEnd toggles rendering of the Start/End virtual nodes.
func WithIncludeStartEnd(include bool) VizOption {
	return func(o *VizOptions) { o.IncludeStartEnd = include }
}

// WithGraphLabel sets an optional label for the graph.
func WithGraphLabel(label string) VizOption {
	return func(o *VizOptions) { o.GraphLabel = label }
}

func defaultVizOptions() *VizOptions {
	return &VizOptions{
		RankDir:         RankDirLR,
		IncludeStartEnd: true,
	}
}

// DOT returns a Graphviz DOT representation of the compiled graph:
// nodes as boxes (subgraph nodes as 3D boxes), static edges solid and
// conditional edges dashed with the branch label where a path map exists.
func (g *Graph) DOT(opts ...VizOption) string {
	o := defaultVizOptions()
	for _, fn := range opts {
		fn(o)
	}

	var b strings.Builder
	b.WriteString("digraph G {\n")
	writeGraphHeader(&b, o)
	if o.IncludeStartEnd {
		writeVirtualStartEnd(&b)
	}
	g.writeNodes(&b)
	g.writeStaticEdges(&b, o)
	g.writeConditionalEdges(&b, o)
	b.WriteString("}\n")
	return b.String()
}

func writeGraphHeader(b *strings.Builder, o *VizOptions) {
	fmt.Fprintf(b, "  rankdir=%s;\n", o.RankDir)
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	if o.GraphLabel != "" {
		fmt.Fprintf(b, "  label=%s;\n", dotQuote(o.GraphLabel))
	}
}

func writeVirtualStartEnd(b *strings.Builder) {
	fmt.Fprintf(b, "  %s [label=\"START\", shape=%s, style=filled, fillcolor=%q, color=%q];\n",
		dotQuote(Start), shapeOval, colorStartFill, colorStartBorder)
	fmt.Fprintf(b, "  %s [label=\"END\", shape=%s, style=filled, fillcolor=%q, color=%q];\n",
		dotQuote(End), shapeOval, colorEndFill, colorEndBorder)
}

func (g *Graph) writeNodes(b *strings.Builder) {
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		shape, fill, border := shapeBox, colorNodeFill, colorNodeBorder
		if node.subgraph != nil {
			shape, fill, border = shapeBox3D, colorSubFill, colorSubBorder
		}
		label := node.Name
		if label == "" {
			label = id
		}
		fmt.Fprintf(b, "  %s [label=%s, shape=%s, style=filled, fillcolor=%q, color=%q];\n",
			dotQuote(id), dotQuote(label), shape, fill, border)
	}
}

func (g *Graph) writeStaticEdges(b *strings.Builder, o *VizOptions) {
	from := append([]string{Start}, g.NodeIDs()...)
	for _, id := range from {
		var targets []string
		if id == Start {
			targets = g.EntryTargets()
		} else {
			targets = g.StaticTargets(id)
			if !g.hasOutgoing(id) {
				targets = []string{End}
			}
		}
		for _, t := range targets {
			if !o.IncludeStartEnd && (id == Start || t == End) {
				continue
			}
			fmt.Fprintf(b, "  %s -> %s;\n", dotQuote(id), dotQuote(t))
		}
	}
}

func (g *Graph) writeConditionalEdges(b *strings.Builder, o *VizOptions) {
	froms := make([]string, 0, len(g.conditionalEdges))
	for from := range g.conditionalEdges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		ce := g.conditionalEdges[from]
		if !o.IncludeStartEnd && from == Start {
			continue
		}
		if ce.PathMap == nil {
			fmt.Fprintf(b, "  %s -> %s [style=dashed, color=%q, label=\"?\"];\n",
				dotQuote(from), dotQuote(End), colorConditional)
			continue
		}
		branches := make([]string, 0, len(ce.PathMap))
		for branch := range ce.PathMap {
			branches = append(branches, branch)
		}
		sort.Strings(branches)
		for _, branch := range branches {
			target := ce.PathMap[branch]
			if !o.IncludeStartEnd && target == End {
				continue
			}
			fmt.Fprintf(b, "  %s -> %s [style=dashed, color=%q, label=%s];\n",
				dotQuote(from), dotQuote(target), colorConditional, dotQuote(branch))
		}
	}
}

func dotQuote(s string) string {
	return fmt.Sprintf("%q", s)
}
