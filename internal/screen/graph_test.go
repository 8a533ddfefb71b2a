package screen

import (
	"testing"

	"heatvision-agent/internal/model"
)

func edge(from, to string) model.Edge {
	return model.Edge{From: from, To: to, Inputs: []model.Input{{Kind: model.InputPointer, X: 1, Y: 1, Button: 1}}}
}

func TestGraphShortestPath(t *testing.T) {
	g := NewGraph([]model.Edge{
		edge("home", "menu"),
		edge("menu", "stats"),
		edge("home", "stats"),
	})

	path, err := g.Path("home", "stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != 1 {
		t.Fatalf("expected the direct edge, got %d hops", len(path))
	}
	if path[0].To != "stats" {
		t.Fatalf("unexpected destination %q", path[0].To)
	}
}

func TestGraphMultiHopPath(t *testing.T) {
	g := NewGraph([]model.Edge{
		edge("home", "menu"),
		edge("menu", "stats"),
	})

	path, err := g.Path("home", "stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != 2 {
		t.Fatalf("expected 2 hops, got %d", len(path))
	}
	if path[0].To != "menu" || path[1].To != "stats" {
		t.Fatalf("unexpected route: %v -> %v", path[0].To, path[1].To)
	}
}

func TestGraphWildcardEdgeReachableFromAnywhere(t *testing.T) {
	g := NewGraph([]model.Edge{
		edge("home", "stats"),
		edge(model.EdgeWildcard, "home"),
	})

	path, err := g.Path("stats", "home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != 1 || path[0].From != model.EdgeWildcard {
		t.Fatalf("expected the wildcard home edge, got %v", path)
	}
}

func TestGraphSamePathIsEmpty(t *testing.T) {
	g := NewGraph(nil)
	path, err := g.Path("home", "home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != 0 {
		t.Fatalf("expected empty path, got %d hops", len(path))
	}
}

func TestGraphNoPath(t *testing.T) {
	g := NewGraph([]model.Edge{edge("home", "stats")})
	if _, err := g.Path("stats", "home"); err == nil {
		t.Fatalf("expected an error for unreachable target")
	}
}
