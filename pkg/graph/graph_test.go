package graph_test

import (
	"errors"
	"testing"

	"github.com/capstan/capstan/pkg/graph"
	"github.com/capstan/capstan/pkg/types"
)

func pkg(name string, deps ...string) *types.Package {
	return &types.Package{
		Name:         name,
		Version:      "0.1.0",
		InternalDeps: deps,
		Publishable:  true,
	}
}

func TestLevels_Linear(t *testing.T) {
	g := graph.BuildGraph([]*types.Package{
		pkg("core"),
		pkg("plugin", "core"),
		pkg("sample", "core", "plugin"),
	})

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	if levels[0][0].Name != "core" {
		t.Errorf("expected core at level 0, got %s", levels[0][0].Name)
	}
	if levels[1][0].Name != "plugin" {
		t.Errorf("expected plugin at level 1, got %s", levels[1][0].Name)
	}
	if levels[2][0].Name != "sample" {
		t.Errorf("expected sample at level 2, got %s", levels[2][0].Name)
	}
}

func TestLevels_Parallel(t *testing.T) {
	g := graph.BuildGraph([]*types.Package{
		pkg("a"),
		pkg("b"),
		pkg("c", "a", "b"),
	})

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if len(levels[0]) != 2 {
		t.Errorf("expected 2 packages at level 0, got %d", len(levels[0]))
	}
	// Within-level ordering is deterministic by name
	if levels[0][0].Name != "a" || levels[0][1].Name != "b" {
		t.Errorf("expected [a b] at level 0, got [%s %s]", levels[0][0].Name, levels[0][1].Name)
	}
}

// Every internal dependency must land in a strictly earlier level.
func TestLevels_DependencyAlwaysEarlier(t *testing.T) {
	packages := []*types.Package{
		pkg("a"),
		pkg("b", "a"),
		pkg("c", "a"),
		pkg("d", "b", "c"),
		pkg("e"),
		pkg("f", "d", "e"),
	}
	g := graph.BuildGraph(packages)

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range packages {
		for _, dep := range p.InternalDeps {
			if graph.LevelOf(levels, dep) >= graph.LevelOf(levels, p.Name) {
				t.Errorf("dependency %s of %s is not in an earlier level", dep, p.Name)
			}
		}
	}
}

func TestLevels_ExternalDepsIgnored(t *testing.T) {
	g := graph.BuildGraph([]*types.Package{
		pkg("a", "requests", "numpy"),
	})

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 1 || graph.LevelOf(levels, "a") != 0 {
		t.Errorf("expected a alone at level 0, got %v", levels)
	}
}

func TestLevels_CycleIsFatal(t *testing.T) {
	g := graph.BuildGraph([]*types.Package{
		pkg("a", "b"),
		pkg("b", "c"),
		pkg("c", "a"),
	})

	_, err := g.Levels()
	if err == nil {
		t.Fatal("expected cycle error")
	}

	var cycleErr *graph.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(cycleErr.Members) != 3 {
		t.Errorf("expected 3 cycle members, got %v", cycleErr.Members)
	}
}

func TestLevels_SelfCycle(t *testing.T) {
	g := graph.BuildGraph([]*types.Package{
		pkg("a", "a"),
	})

	if _, err := g.Levels(); err == nil {
		t.Fatal("expected self-cycle to be detected")
	}
}
