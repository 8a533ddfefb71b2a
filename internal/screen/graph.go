package screen

import (
	"fmt"

	"heatvision-agent/internal/model"
)

// Graph is the directed screen graph with one input sequence per edge.
type Graph struct {
	edges map[string][]model.Edge
	// wildcard edges are traversable from any screen (fixed home button).
	wildcard []model.Edge
}

func NewGraph(edges []model.Edge) *Graph {
	g := &Graph{edges: make(map[string][]model.Edge)}
	for _, e := range edges {
		if e.From == model.EdgeWildcard {
			g.wildcard = append(g.wildcard, e)
			continue
		}
		g.edges[e.From] = append(g.edges[e.From], e)
	}
	return g
}

// Path returns the shortest edge sequence from one screen to another via
// breadth-first search. Wildcard edges are considered from every node. An
// empty path means from == to.
func (g *Graph) Path(from, to string) ([]model.Edge, error) {
	if from == to {
		return nil, nil
	}

	type node struct {
		id   string
		path []model.Edge
	}
	visited := map[string]bool{from: true}
	queue := []node{{id: from}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		out := make([]model.Edge, 0, len(g.edges[cur.id])+len(g.wildcard))
		out = append(out, g.edges[cur.id]...)
		out = append(out, g.wildcard...)

		for _, e := range out {
			if visited[e.To] {
				continue
			}
			next := append(append([]model.Edge(nil), cur.path...), e)
			if e.To == to {
				return next, nil
			}
			visited[e.To] = true
			queue = append(queue, node{id: e.To, path: next})
		}
	}
	return nil, fmt.Errorf("no path from %q to %q", from, to)
}
