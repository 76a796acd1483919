package state

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/capstan/capstan/pkg/types"
)

// RenderTable writes the per-package ledger for operators, sorted the way
// the run executes: level ascending, then name.
func (r *RunState) RenderTable(w io.Writer) error {
	r.mu.Lock()
	packages := make([]*PackageState, 0, len(r.Packages))
	for _, ps := range r.Packages {
		packages = append(packages, ps)
	}
	r.mu.Unlock()

	sort.Slice(packages, func(i, j int) bool {
		if packages[i].Level != packages[j].Level {
			return packages[i].Level < packages[j].Level
		}
		return packages[i].Name < packages[j].Name
	})

	fmt.Fprintf(w, "run %s (commit %s, started %s)\n\n", r.RunID, r.GitSHA, r.CreatedAt)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tPACKAGE\tVERSION\tSTATUS\tERROR")
	for _, ps := range packages {
		errText := ps.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			ps.Level, ps.Name, ps.Version, colorStatus(ps.Status), errText)
	}
	return tw.Flush()
}

func colorStatus(s types.ReleaseStatus) string {
	switch s {
	case types.StatusPublished:
		return color.GreenString(string(s))
	case types.StatusFailed:
		return color.RedString(string(s))
	case types.StatusPending:
		return color.YellowString(string(s))
	case types.StatusSkipped:
		return color.New(color.Faint).Sprint(string(s))
	default:
		return color.CyanString(string(s))
	}
}
