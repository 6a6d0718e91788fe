package workflow

import (
	"sort"
	"strings"

	"github.com/taskweave/taskweave/pkg/domain/errors"
)

const planModule = "planner"

// Plan is the layered execution schedule of a validated spec. Every node
// in Batches[i] depends only on nodes in earlier batches, so batch
// members may run in parallel.
type Plan struct {
	Batches    [][]string
	TotalNodes int
}

// Catalog is the read surface the planner needs from a tool registry.
type Catalog interface {
	Describe(name string) (ToolContract, bool)
}

// Validate checks a spec against the catalog and returns its execution
// plan. Errors: duplicate node id, unknown node referenced by an edge or
// mapping, unknown tool, cycle. An empty spec yields an empty plan.
func Validate(spec Spec, catalog Catalog) (*Plan, error) {
	nodes := make(map[string]NodeSpec, len(spec.Nodes))
	for _, n := range spec.Nodes {
		if _, dup := nodes[n.NodeID]; dup {
			return nil, errors.InvalidGraph(planModule, "duplicate id").
				WithContext("node_id", n.NodeID)
		}
		nodes[n.NodeID] = n
		if _, ok := catalog.Describe(n.Tool); !ok {
			return nil, errors.UnknownTool(planModule, n.Tool).
				WithContext("node_id", n.NodeID)
		}
	}

	edges, err := combinedEdges(spec, nodes)
	if err != nil {
		return nil, err
	}
	return buildPlan(nodes, edges)
}

// combinedEdges unions the explicit edges with the edges implied by input
// mappings, validating every node reference.
func combinedEdges(spec Spec, nodes map[string]NodeSpec) (map[string][]string, error) {
	edges := make(map[string][]string, len(nodes))
	seen := make(map[Edge]bool)

	add := func(from, to string) error {
		if _, ok := nodes[from]; !ok {
			return errors.InvalidGraph(planModule, "unknown node").WithContext("node_id", from)
		}
		if _, ok := nodes[to]; !ok {
			return errors.InvalidGraph(planModule, "unknown node").WithContext("node_id", to)
		}
		if e := (Edge{From: from, To: to}); !seen[e] {
			seen[e] = true
			edges[from] = append(edges[from], to)
		}
		return nil
	}

	for _, e := range spec.Edges {
		if err := add(e.From, e.To); err != nil {
			return nil, err
		}
	}
	for _, n := range spec.Nodes {
		for ref := range n.InputMappings {
			upstream, _, ok := strings.Cut(ref, ".")
			if !ok || upstream == "" {
				return nil, errors.UnresolvedInput(planModule, n.NodeID, ref)
			}
			if err := add(upstream, n.NodeID); err != nil {
				return nil, err
			}
		}
	}
	return edges, nil
}

// buildPlan runs Kahn's algorithm, peeling off the zero in-degree frontier
// as one batch per round. Leftover nodes mean a cycle.
func buildPlan(nodes map[string]NodeSpec, edges map[string][]string) (*Plan, error) {
	inDegree := make(map[string]int, len(nodes))
	for id := range nodes {
		inDegree[id] = 0
	}
	for _, targets := range edges {
		for _, to := range targets {
			inDegree[to]++
		}
	}

	batches := make([][]string, 0)
	remaining := len(nodes)

	for remaining > 0 {
		batch := make([]string, 0)
		for id, degree := range inDegree {
			if degree == 0 {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			return nil, errors.InvalidGraph(planModule, "cycle")
		}
		// Map iteration order is random; sorted batches keep event and
		// log order stable across runs.
		sort.Strings(batch)

		for _, id := range batch {
			delete(inDegree, id)
			remaining--
			for _, to := range edges[id] {
				if _, ok := inDegree[to]; ok {
					inDegree[to]--
				}
			}
		}
		batches = append(batches, batch)
	}

	return &Plan{Batches: batches, TotalNodes: len(nodes)}, nil
}
