// Package scheduler levels a dependency graph into sequential batches of
// concurrently runnable nodes.
package scheduler

import (
	"github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/graph"
)

// Levels runs the level-parallel variant of Kahn's algorithm. Level 0 holds
// every node without predecessors; completing a level releases the successors
// whose in-degree drops to zero into the next one. Nodes inside a level are
// in ascending order.
//
// If some nodes can never be placed the graph has a cycle and Levels returns
// an error wrapping toolplan.ErrCycle together with the levels formed so far.
func Levels(g *graph.Graph) ([][]int, error) {
	n := g.Len()
	if n == 0 {
		return [][]int{}, nil
	}

	inDegree := g.InDegrees()
	current := make([]int, 0, n)
	for i, d := range inDegree {
		if d == 0 {
			current = append(current, i)
		}
	}

	levels := make([][]int, 0, n)
	placed := 0
	for len(current) > 0 {
		levels = append(levels, current)
		placed += len(current)

		// Scanning released by index keeps the next level ascending.
		released := make([]bool, n)
		progressed := false
		for _, done := range current {
			for _, succ := range g.Successors(done) {
				inDegree[succ]--
				if inDegree[succ] == 0 {
					released[succ] = true
					progressed = true
				}
			}
		}
		if !progressed {
			break
		}
		next := make([]int, 0)
		for i, ok := range released {
			if ok {
				next = append(next, i)
			}
		}
		current = next
	}

	if placed != n {
		return levels, toolplan.NewPlanCycleError(n - placed)
	}
	return levels, nil
}

// Sequential returns n single-node levels in submission order.
func Sequential(n int) [][]int {
	levels := make([][]int, n)
	for i := range levels {
		levels[i] = []int{i}
	}
	return levels
}

// Schedule levels g, substituting the sequential order when a cycle prevents
// leveling. The returned levels always cover every node exactly once; cause
// is non-nil only when the fallback was taken and explains why.
func Schedule(g *graph.Graph) (levels [][]int, cause error) {
	levels, err := Levels(g)
	if err != nil {
		return Sequential(g.Len()), err
	}
	return levels, nil
}
