package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/minirx/internal/ir"
)

// CycleWarning represents a potential dispatch loop between effects.
//
// Cycles are warnings, not errors, because they may be intentional:
//   - Polling effects that re-trigger themselves after a delay
//   - Retry chains that stop once the payload changes
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["effect-a", "effect-b", "effect-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on effect specs.
//
// It builds an effect dependency graph (an edge a → b when a dispatches an
// action type that b listens to) and reports each strongly connected
// component with more than one effect, or a self-loop, as a potential
// dispatch loop. Effects with dispatch: false produce no edges.
//
// An acyclic graph returns an empty warning list. Output order is
// deterministic.
func AnalyzeCycles(effects []ir.EffectSpec) []CycleWarning {
	warnings := []CycleWarning{}
	if len(effects) == 0 {
		return warnings
	}

	graph := buildDependencyGraph(effects)
	sccs := tarjanSCC(graph)

	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// dependencyGraph maps effect name → effects its output could trigger.
type dependencyGraph map[string][]string

func buildDependencyGraph(effects []ir.EffectSpec) dependencyGraph {
	graph := make(dependencyGraph)

	typeToEffects := make(map[string][]string)
	for _, e := range effects {
		for _, t := range e.OfType {
			typeToEffects[t] = append(typeToEffects[t], e.Name)
		}
	}

	for _, e := range effects {
		if graph[e.Name] == nil {
			graph[e.Name] = []string{}
		}
		if !e.Dispatch || e.Emit == nil {
			continue
		}
		graph[e.Name] = append(graph[e.Name], typeToEffects[e.Emit.Type]...)
	}

	for name := range graph {
		slices.Sort(graph[name])
		graph[name] = slices.Compact(graph[name])
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are reproducible.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self-triggering effect detected: %s → %s", name, name),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential dispatch loop detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath follows edges inside the SCC from its first member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
