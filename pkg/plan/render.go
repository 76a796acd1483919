package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
)

// RenderTable writes the plan as an aligned, colored table for operators
func (p *ExecutionPlan) RenderTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintln(tw, "LEVEL\tPACKAGE\tCURRENT\tNEXT\tBUMP\tSTATUS\tREASON")
	for _, e := range p.Entries {
		next := e.NextVersion
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Level, e.Name, e.CurrentVersion, next, e.Bump, colorStatus(e.Status), e.Reason)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	summary := p.Summary()
	fmt.Fprintf(w, "%d package(s):", len(p.Entries))
	for _, s := range []Status{StatusIncluded, StatusDependencyOnly, StatusSkipped, StatusExcluded, StatusAlreadyPublished} {
		if n := summary[s]; n > 0 {
			fmt.Fprintf(w, " %d %s", n, s)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// RenderJSON writes the plan as indented JSON for CI consumption
func (p *ExecutionPlan) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// RenderTSV writes the plan as tab-delimited text, one entry per line
func (p *ExecutionPlan) RenderTSV(w io.Writer) error {
	for _, e := range p.Entries {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Level, e.Name, e.CurrentVersion, e.NextVersion, e.Status, e.Reason); err != nil {
			return err
		}
	}
	return nil
}

func colorStatus(s Status) string {
	switch s {
	case StatusIncluded:
		return color.GreenString(string(s))
	case StatusExcluded:
		return color.RedString(string(s))
	case StatusAlreadyPublished:
		return color.CyanString(string(s))
	case StatusDependencyOnly:
		return color.YellowString(string(s))
	default:
		return color.New(color.Faint).Sprint(string(s))
	}
}
