// Package graph builds the internal dependency graph and topological levels
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/capstan/capstan/pkg/types"
)

// Graph is a directed graph over workspace packages. Edges point from a
// package to each of its internal dependencies. External dependencies are
// never edges.
type Graph struct {
	packages map[string]*types.Package
	deps     map[string][]string
}

// CycleError is returned when the internal dependencies contain a cycle.
// Partial ordering is never attempted in that case.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among packages: %s", strings.Join(e.Members, ", "))
}

// BuildGraph constructs the graph for a discovered package set. Dependency
// references are restricted to names present in the set.
func BuildGraph(packages []*types.Package) *Graph {
	g := &Graph{
		packages: make(map[string]*types.Package, len(packages)),
		deps:     make(map[string][]string, len(packages)),
	}

	for _, pkg := range packages {
		g.packages[pkg.Name] = pkg
	}

	for _, pkg := range packages {
		for _, dep := range pkg.InternalDeps {
			if _, ok := g.packages[dep]; !ok {
				continue // external or unknown, not an edge
			}
			g.deps[pkg.Name] = append(g.deps[pkg.Name], dep)
		}
		sort.Strings(g.deps[pkg.Name])
	}

	return g
}

// Dependencies returns the internal dependency names of a package
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// Package returns the package with the given name, or nil
func (g *Graph) Package(name string) *types.Package {
	return g.packages[name]
}

// Levels returns the minimal topological levels: each package is placed at
// 1 + max(level of its internal deps), or level 0 if it has none. Packages
// within a level are sorted by name for deterministic listing. A cycle is
// a fatal error.
func (g *Graph) Levels() ([][]*types.Package, error) {
	levels := make(map[string]int, len(g.packages))

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	marks := make(map[string]int, len(g.packages))

	var visit func(name string, trail []string) (int, error)
	visit = func(name string, trail []string) (int, error) {
		switch marks[name] {
		case done:
			return levels[name], nil
		case visiting:
			// Trim the trail to the cycle itself
			start := 0
			for i, n := range trail {
				if n == name {
					start = i
					break
				}
			}
			members := append([]string{}, trail[start:]...)
			sort.Strings(members)
			return 0, &CycleError{Members: members}
		}

		marks[name] = visiting
		level := 0
		for _, dep := range g.deps[name] {
			depLevel, err := visit(dep, append(trail, name))
			if err != nil {
				return 0, err
			}
			if depLevel+1 > level {
				level = depLevel + 1
			}
		}
		marks[name] = done
		levels[name] = level
		return level, nil
	}

	names := make([]string, 0, len(g.packages))
	for name := range g.packages {
		names = append(names, name)
	}
	sort.Strings(names)

	maxLevel := 0
	for _, name := range names {
		level, err := visit(name, nil)
		if err != nil {
			return nil, err
		}
		if level > maxLevel {
			maxLevel = level
		}
	}

	result := make([][]*types.Package, maxLevel+1)
	for _, name := range names {
		l := levels[name]
		result[l] = append(result[l], g.packages[name])
	}

	return result, nil
}

// LevelOf returns the topological level of a package within computed levels,
// or -1 if the package is not present.
func LevelOf(levels [][]*types.Package, name string) int {
	for i, level := range levels {
		for _, pkg := range level {
			if pkg.Name == name {
				return i
			}
		}
	}
	return -1
}
