// Package graph builds the per-turn dependency graph over call positions.
package graph

import (
	"sort"

	"github.com/ZanzyTHEbar/toolplan"
)

// Edge is a directed producer -> consumer dependency between call positions.
type Edge struct {
	From int
	To   int
}

// Graph is a directed graph whose nodes are the positions 0..n-1 of the calls
// it was built from. Adjacency lists are kept sorted ascending.
type Graph struct {
	specs      []toolplan.ToolSpec
	outgoing   [][]int
	incoming   [][]int
	edgeLookup map[Edge]struct{}
}

// New creates an edgeless graph over n nodes with the given specs (may be nil).
func New(n int, specs []toolplan.ToolSpec) *Graph {
	if specs == nil {
		specs = make([]toolplan.ToolSpec, n)
	}
	return &Graph{
		specs:      specs,
		outgoing:   make([][]int, n),
		incoming:   make([][]int, n),
		edgeLookup: make(map[Edge]struct{}),
	}
}

// AddEdge records from -> to. Self edges, out of range nodes and duplicates
// are ignored; it reports whether an edge was added.
func (g *Graph) AddEdge(from, to int) bool {
	if from == to || from < 0 || to < 0 || from >= g.Len() || to >= g.Len() {
		return false
	}
	e := Edge{From: from, To: to}
	if _, ok := g.edgeLookup[e]; ok {
		return false
	}
	g.edgeLookup[e] = struct{}{}
	g.outgoing[from] = insertSorted(g.outgoing[from], to)
	g.incoming[to] = insertSorted(g.incoming[to], from)
	return true
}

func insertSorted(list []int, v int) []int {
	i := sort.SearchInts(list, v)
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

// Build creates the dependency graph for calls. For each call i, needed_i is
// its consumed tags minus satisfied; an edge j -> i is added for every other
// call j producing any needed tag. Every potential producer becomes a
// predecessor rather than guessing which one actually supplies the data.
func Build(calls []toolplan.FunctionCall, resolver toolplan.SpecResolver, satisfied toolplan.TagSet) *Graph {
	n := len(calls)
	specs := make([]toolplan.ToolSpec, n)
	for i, call := range calls {
		if resolver == nil {
			specs[i] = toolplan.DefaultSpec(call.Name)
			continue
		}
		specs[i] = resolver.GetSpec(call.Name)
	}

	g := New(n, specs)
	for i := range calls {
		needed := specs[i].Needed(satisfied)
		if needed.Empty() {
			continue
		}
		for j := range calls {
			if i == j {
				continue
			}
			if specs[j].Produces.Intersects(needed) {
				g.AddEdge(j, i)
			}
		}
	}
	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.outgoing) }

// Spec returns the resolved spec of node i.
func (g *Graph) Spec(i int) toolplan.ToolSpec { return g.specs[i] }

// Specs returns the resolved specs indexed by node.
func (g *Graph) Specs() []toolplan.ToolSpec { return g.specs }

// Successors returns the nodes depending on i.
func (g *Graph) Successors(i int) []int { return g.outgoing[i] }

// Predecessors returns the nodes i depends on.
func (g *Graph) Predecessors(i int) []int { return g.incoming[i] }

// HasEdge reports whether from -> to exists.
func (g *Graph) HasEdge(from, to int) bool {
	_, ok := g.edgeLookup[Edge{From: from, To: to}]
	return ok
}

// InDegrees returns the number of predecessors per node.
func (g *Graph) InDegrees() []int {
	out := make([]int, g.Len())
	for i, preds := range g.incoming {
		out[i] = len(preds)
	}
	return out
}

// Edges returns all edges ordered by (From, To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edgeLookup))
	for from, succ := range g.outgoing {
		for _, to := range succ {
			out = append(out, Edge{From: from, To: to})
		}
	}
	return out
}
