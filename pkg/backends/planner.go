package backends

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/capstan/capstan/pkg/types"
)

// StaticPlanner computes version bumps from an explicit per-package map
// plus an optional default applied to every other package. The operator
// states the intent; nothing is inferred from commit history.
type StaticPlanner struct {
	Bumps   map[string]types.BumpKind
	Default types.BumpKind
}

// Plan returns one PackageVersion per publishable package
func (p *StaticPlanner) Plan(_ context.Context, packages []*types.Package) ([]types.PackageVersion, error) {
	versions := make([]types.PackageVersion, 0, len(packages))
	for _, pkg := range packages {
		bump, ok := p.Bumps[pkg.Name]
		if !ok {
			bump = p.Default
		}
		if bump == "" {
			bump = types.BumpNone
		}

		next := pkg.Version
		if bump != types.BumpNone {
			bumped, err := NextVersion(pkg.Version, bump)
			if err != nil {
				return nil, fmt.Errorf("cannot bump %s: %w", pkg.Name, err)
			}
			next = bumped
		}

		versions = append(versions, types.PackageVersion{
			Name:       pkg.Name,
			OldVersion: pkg.Version,
			NewVersion: next,
			Bump:       bump,
		})
	}
	return versions, nil
}

// NextVersion applies a bump to a major.minor.patch version. A prerelease
// bump appends or increments an "-rc.N" suffix; every other bump drops any
// existing prerelease suffix.
func NextVersion(version string, bump types.BumpKind) (string, error) {
	base, pre := version, ""
	if idx := strings.IndexByte(version, '-'); idx >= 0 {
		base, pre = version[:idx], version[idx+1:]
	}

	parts := strings.Split(base, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("unsupported version format: %q", version)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return "", fmt.Errorf("unsupported version format: %q", version)
		}
		nums[i] = n
	}

	switch bump {
	case types.BumpMajor:
		return fmt.Sprintf("%d.0.0", nums[0]+1), nil
	case types.BumpMinor:
		return fmt.Sprintf("%d.%d.0", nums[0], nums[1]+1), nil
	case types.BumpPatch:
		return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]+1), nil
	case types.BumpPrerelease:
		if strings.HasPrefix(pre, "rc.") {
			n, err := strconv.Atoi(pre[len("rc."):])
			if err != nil {
				return "", fmt.Errorf("unsupported prerelease suffix: %q", version)
			}
			return fmt.Sprintf("%s-rc.%d", base, n+1), nil
		}
		return fmt.Sprintf("%d.%d.%d-rc.1", nums[0], nums[1], nums[2]+1), nil
	default:
		return "", fmt.Errorf("unknown bump kind: %q", bump)
	}
}

// ParseBumps turns "name=kind" directives into a bump map
func ParseBumps(directives []string) (map[string]types.BumpKind, error) {
	bumps := make(map[string]types.BumpKind, len(directives))
	for _, d := range directives {
		name, kind, ok := strings.Cut(d, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid bump directive %q, want name=kind", d)
		}
		switch types.BumpKind(kind) {
		case types.BumpNone, types.BumpPatch, types.BumpMinor, types.BumpMajor, types.BumpPrerelease:
			bumps[name] = types.BumpKind(kind)
		default:
			return nil, fmt.Errorf("invalid bump kind %q for %s", kind, name)
		}
	}
	return bumps, nil
}
