// Package plan builds the ordered, annotated execution plan for a release run
package plan

import (
	"sort"

	"github.com/capstan/capstan/pkg/types"
)

// Status classifies each package's role in the plan
type Status string

const (
	StatusIncluded         Status = "INCLUDED"
	StatusSkipped          Status = "SKIPPED"
	StatusExcluded         Status = "EXCLUDED"
	StatusAlreadyPublished Status = "ALREADY_PUBLISHED"
	StatusDependencyOnly   Status = "DEPENDENCY_ONLY"
)

// Entry is one package's line in the execution plan
type Entry struct {
	Name           string         `json:"name"`
	Level          int            `json:"level"`
	CurrentVersion string         `json:"currentVersion"`
	NextVersion    string         `json:"nextVersion,omitempty"`
	Status         Status         `json:"status"`
	Bump           types.BumpKind `json:"bump"`
	Reason         string         `json:"reason"`
	Index          int            `json:"index"`
}

// ExecutionPlan is the complete, read-only audit of a run's scope.
// Regenerating a plan for a changed workspace always produces a fresh plan.
type ExecutionPlan struct {
	Entries []Entry `json:"entries"`
	GitSHA  string  `json:"gitSha"`
}

// Options are the inputs to Build beyond versions and levels
type Options struct {
	Exclude          []string
	AlreadyPublished map[string]bool
	GitSHA           string
}

// Build produces the execution plan. It is a pure function over its inputs:
// identical inputs always produce identical entries and ordering.
//
// Per package, in priority order: exclusion by config wins over everything,
// then the registry's record of what is already out, then the computed bump.
// A package with no bump of its own still lands in the plan as
// DEPENDENCY_ONLY when one of its internal dependencies is being published,
// because its manifest needs a dependency re-pin.
func Build(versions []types.PackageVersion, levels [][]*types.Package, opts Options) *ExecutionPlan {
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, name := range opts.Exclude {
		excluded[name] = true
	}

	bump := make(map[string]types.PackageVersion, len(versions))
	for _, v := range versions {
		bump[v.Name] = v
	}

	entries := make([]Entry, 0)
	for level, packages := range levels {
		// Stable within-level ordering by name
		sorted := make([]*types.Package, len(packages))
		copy(sorted, packages)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

		for _, pkg := range sorted {
			v := bump[pkg.Name]
			entry := Entry{
				Name:           pkg.Name,
				Level:          level,
				CurrentVersion: pkg.Version,
				Bump:           v.Bump,
			}
			if entry.Bump == "" {
				entry.Bump = types.BumpNone
			}

			switch {
			case excluded[pkg.Name]:
				entry.Status = StatusExcluded
				entry.Reason = "excluded by config"
			case opts.AlreadyPublished[pkg.Name]:
				entry.Status = StatusAlreadyPublished
				entry.NextVersion = v.NewVersion
				entry.Reason = "already published to registry"
			case entry.Bump == types.BumpNone:
				if depBumped(pkg, bump, excluded) {
					entry.Status = StatusDependencyOnly
					entry.Reason = "dependency update only"
				} else {
					entry.Status = StatusSkipped
					entry.Reason = "no changes"
				}
			default:
				entry.Status = StatusIncluded
				entry.NextVersion = v.NewVersion
				entry.Reason = string(v.Bump) + " bump"
			}

			entries = append(entries, entry)
		}
	}

	for i := range entries {
		entries[i].Index = i
	}

	return &ExecutionPlan{Entries: entries, GitSHA: opts.GitSHA}
}

// depBumped reports whether any internal dependency of pkg has a non-none
// bump and is not itself excluded.
func depBumped(pkg *types.Package, bump map[string]types.PackageVersion, excluded map[string]bool) bool {
	for _, dep := range pkg.InternalDeps {
		if excluded[dep] {
			continue
		}
		if v, ok := bump[dep]; ok && v.Bump != types.BumpNone && v.Bump != "" {
			return true
		}
	}
	return false
}

// Included returns the entries that will actually be published, in order
func (p *ExecutionPlan) Included() []Entry {
	included := make([]Entry, 0)
	for _, e := range p.Entries {
		if e.Status == StatusIncluded {
			included = append(included, e)
		}
	}
	return included
}

// Entry returns the plan entry for a package name, or nil
func (p *ExecutionPlan) Entry(name string) *Entry {
	for i := range p.Entries {
		if p.Entries[i].Name == name {
			return &p.Entries[i]
		}
	}
	return nil
}

// Summary aggregates entry counts per status
func (p *ExecutionPlan) Summary() map[Status]int {
	summary := make(map[Status]int)
	for _, e := range p.Entries {
		summary[e.Status]++
	}
	return summary
}
