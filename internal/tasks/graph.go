package tasks

import (
	"fmt"
	"strings"
)

// Edge is a single "Task depends on Blocker" relationship.
type Edge struct {
	Task    string `json:"task"`
	Blocker string `json:"blocker"`
}

// DependencyGraph maps a task id to the ids of the tasks that block it.
// Blockers are unique per task and kept in insertion order.
type DependencyGraph struct {
	Dependencies map[string][]string `json:"dependencies"`
	order        []string
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{Dependencies: make(map[string][]string)}
}

// AddDependency records that taskID is blocked by blockerID. Duplicate
// pairs are ignored.
func (g *DependencyGraph) AddDependency(taskID, blockerID string) {
	blockers, ok := g.Dependencies[taskID]
	if !ok {
		g.order = append(g.order, taskID)
	}
	for _, b := range blockers {
		if b == blockerID {
			return
		}
	}
	g.Dependencies[taskID] = append(blockers, blockerID)
}

// BlockersOf returns the ids blocking taskID.
func (g *DependencyGraph) BlockersOf(taskID string) []string {
	return g.Dependencies[taskID]
}

// Edges lists every edge, ordered by the first time each dependent task was
// added and then by blocker insertion order.
func (g *DependencyGraph) Edges() []Edge {
	var edges []Edge
	for _, id := range g.order {
		for _, b := range g.Dependencies[id] {
			edges = append(edges, Edge{Task: id, Blocker: b})
		}
	}
	return edges
}

// EdgeCount returns the number of edges in the graph.
func (g *DependencyGraph) EdgeCount() int {
	n := 0
	for _, blockers := range g.Dependencies {
		n += len(blockers)
	}
	return n
}

// BuildDependencyGraph infers task dependencies from document order.
//
// Within a phase each task depends on the last sequential (non-[P]) task
// before it. Parallel tasks never become that anchor, so they do not block
// each other. The first task of a phase depends on the previous phase's last
// sequential task, or on its final task when it had only parallel tasks.
func BuildDependencyGraph(doc *Document) *DependencyGraph {
	g := NewDependencyGraph()
	prevPhaseTail := ""

	for _, phase := range doc.Phases {
		all := phase.AllTasks()
		if len(all) == 0 {
			continue
		}
		if prevPhaseTail != "" {
			g.AddDependency(all[0].ID, prevPhaseTail)
		}

		anchor := ""
		for _, t := range all {
			if anchor != "" {
				g.AddDependency(t.ID, anchor)
			}
			if !t.Parallel {
				anchor = t.ID
			}
		}

		if anchor != "" {
			prevPhaseTail = anchor
		} else {
			prevPhaseTail = all[len(all)-1].ID
		}
	}
	return g
}

// ValidationError lists every structural problem found in a graph.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid task dependencies: " + strings.Join(e.Problems, "; ")
}

// Validate rejects graphs the dependency linker cannot apply safely:
// duplicate task ids in the document, self-dependencies and cycles.
func (g *DependencyGraph) Validate(doc *Document) error {
	var problems []string

	seen := make(map[string]string)
	for _, t := range doc.AllTasks() {
		if phase, dup := seen[t.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate task id %s (phases %s and %s)", t.ID, phase, t.PhaseNumber))
			continue
		}
		seen[t.ID] = t.PhaseNumber
	}

	for _, e := range g.Edges() {
		if e.Task == e.Blocker {
			problems = append(problems, fmt.Sprintf("task %s depends on itself", e.Task))
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		problems = append(problems, "dependency cycle: "+strings.Join(cycle, " -> "))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// findCycle returns one cycle (first node repeated at the end) or nil.
// Self-loops are reported separately by Validate and ignored here.
func (g *DependencyGraph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	parent := make(map[string]string)

	type frame struct {
		id   string
		next int
	}

	for _, root := range g.order {
		if color[root] != white {
			continue
		}
		stack := []frame{{id: root}}
		color[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			blockers := g.Dependencies[top.id]
			if top.next >= len(blockers) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			b := blockers[top.next]
			top.next++
			if b == top.id {
				continue
			}
			switch color[b] {
			case white:
				color[b] = grey
				parent[b] = top.id
				stack = append(stack, frame{id: b})
			case grey:
				cycle := []string{b}
				for cur := top.id; cur != b; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, b)
				// reverse so the path reads dependent -> blocker
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
		}
	}
	return nil
}
