// Package graph implements the acyclicity check for the task-dependency
// relation. The check is pure and holds no state across calls: every
// validation rebuilds the working graph from the edges it is handed, so a
// verdict can never be poisoned by a previous call.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Edges maps a task ID to the ordered list of task IDs it depends on.
type Edges map[uuid.UUID][]uuid.UUID

// CycleError reports a dependency cycle. Cycle holds the offending task IDs
// in path order, starting at the first node of the cycle; a self-dependency
// yields a single-element cycle.
type CycleError struct {
	Cycle []uuid.UUID
}

// Error implements the error interface for CycleError.
func (e *CycleError) Error() string {
	ids := make([]string, 0, len(e.Cycle)+1)
	for _, id := range e.Cycle {
		ids = append(ids, id.String())
	}
	if len(e.Cycle) > 0 {
		// Close the loop in the message for readability.
		ids = append(ids, e.Cycle[0].String())
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(ids, " -> "))
}

// Validate decides whether the dependency graph stays acyclic when the
// subject task's dependency set is replaced by proposed.
//
// existing is the current dependency relation over all tasks. subject is the
// task whose edges are being replaced; pass uuid.Nil for a task that does not
// exist yet (its entry is inserted under a placeholder node, which no existing
// task can reference). proposed is the complete replacement edge set, never an
// incremental patch.
//
// Returns nil when the resulting graph is acyclic, or a *CycleError naming
// the cycle in path order. Runs in O(V+E).
func Validate(existing Edges, subject uuid.UUID, proposed []uuid.UUID) error {
	working := make(Edges, len(existing)+1)
	for id, deps := range existing {
		if id == subject {
			continue
		}
		working[id] = deps
	}
	working[subject] = proposed

	visited := make(map[uuid.UUID]bool, len(working))
	for _, start := range startNodes(working) {
		if visited[start] {
			continue
		}
		if cycle := searchFrom(working, start, visited); cycle != nil {
			return &CycleError{Cycle: cycle}
		}
	}
	return nil
}

// startNodes returns every node that has outgoing edges, in a deterministic
// order so repeated validations of the same graph report the same cycle.
func startNodes(g Edges) []uuid.UUID {
	nodes := make([]uuid.UUID, 0, len(g))
	for id := range g {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].String() < nodes[j].String()
	})
	return nodes
}

// frame is one level of the explicit depth-first search stack.
type frame struct {
	node uuid.UUID
	next int
}

// searchFrom runs an iterative depth-first search from start, marking nodes
// in visited as it goes. It tracks the nodes on the current path; an edge
// back into that path is a cycle, returned in path order. The search is
// iterative rather than recursive so stack depth stays bounded regardless of
// graph shape.
func searchFrom(g Edges, start uuid.UUID, visited map[uuid.UUID]bool) []uuid.UUID {
	onPath := map[uuid.UUID]int{start: 0}
	path := []uuid.UUID{start}
	stack := []*frame{{node: start}}
	visited[start] = true

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		neighbors := g[f.node]

		if f.next >= len(neighbors) {
			stack = stack[:len(stack)-1]
			delete(onPath, f.node)
			path = path[:len(path)-1]
			continue
		}

		n := neighbors[f.next]
		f.next++

		if idx, ok := onPath[n]; ok {
			cycle := make([]uuid.UUID, len(path)-idx)
			copy(cycle, path[idx:])
			return cycle
		}

		if !visited[n] {
			visited[n] = true
			onPath[n] = len(path)
			path = append(path, n)
			stack = append(stack, &frame{node: n})
		}
	}
	return nil
}
