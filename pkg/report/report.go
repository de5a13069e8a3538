// Package report renders the engine's outputs: the preview/applied change
// table, the duplicate candidate table, the conflict table, and the
// end-of-run summary. Every run prints a summary, dry-run included; preview
// and apply share one code path so they can never diverge.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/blueharbor-marine/reconcile/pkg/applier"
	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Exit statuses communicated to callers.
const (
	ExitNoChanges   = 0 // success, nothing to do
	ExitRolledBack  = 1 // failure, batch rolled back
	ExitChanges     = 3 // success with proposed or applied changes
	ExitAmbiguities = 4 // success but unresolved ambiguities remain
)

// Summary aggregates one run's counts.
type Summary struct {
	Imported         int
	SkippedDuplicate int
	Unrecognized     int
	Matched          int
	Ambiguous        int
	NoCandidates     int
	Conflicted       int
	Duplicates       int
	Changes          int
	Applied          int
	RolledBack       bool
	DryRun           bool
}

// ExitCode maps the summary to the exit status contract.
func (s Summary) ExitCode() int {
	switch {
	case s.RolledBack:
		return ExitRolledBack
	case s.Ambiguous > 0:
		return ExitAmbiguities
	case s.Changes > 0 || s.Imported > 0 || s.Applied > 0:
		return ExitChanges
	}
	return ExitNoChanges
}

// WriteChangePlan prints the preview/applied change rows.
func WriteChangePlan(w io.Writer, plan *applier.Plan, applied bool) {
	if len(plan.Changes) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}

	header := "PREVIEW"
	if applied {
		header = "APPLIED"
	}
	fmt.Fprintf(w, "=== %s: %d change(s), run %s ===\n", header, len(plan.Changes), plan.RunID)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tFIELD\tOLD\tNEW\tCONFIDENCE\tREASON")
	for _, c := range plan.Changes {
		conf := ""
		if c.Confidence > 0 {
			conf = strconv.FormatFloat(c.Confidence, 'f', 2, 64)
		}
		fmt.Fprintf(tw, "%s/%d\t%s\t%s\t%s\t%s\t%s\n",
			c.Table, c.EntityID, c.Field, c.OldValue, c.NewValue, conf, c.Reason)
	}
	tw.Flush()
}

// WriteDuplicates prints the duplicate candidate report.
func WriteDuplicates(w io.Writer, groups []model.DuplicateGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No duplicate candidate groups.")
		return
	}

	fmt.Fprintf(w, "=== Duplicate candidates: %d group(s) ===\n", len(groups))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP KEY\tMEMBERS\tVERDICT\tPROPOSED ACTION")
	for _, g := range groups {
		ids := make([]string, len(g.MemberIDs))
		for i, id := range g.MemberIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		action := "none"
		if g.Verdict == model.VerdictDuplicate {
			action = fmt.Sprintf("keep %d, delete rest (confirm required)", g.KeepID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.Key, strings.Join(ids, ","), g.Verdict, action)
	}
	tw.Flush()
}

// WriteConflicts prints the conflict report.
func WriteConflicts(w io.Writer, conflicts []model.ConflictRecord) {
	if len(conflicts) == 0 {
		return
	}

	fmt.Fprintf(w, "=== Source conflicts: %d ===\n", len(conflicts))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tFIELD\tVALUES\tWINNER\tREASON")
	for _, c := range conflicts {
		parts := make([]string, 0, len(c.Values))
		for src, v := range c.Values {
			parts = append(parts, string(src)+"="+v)
		}
		sort.Strings(parts)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.EntityID, c.Field, strings.Join(parts, " "), c.Winner, c.Reason)
	}
	tw.Flush()
}

// WriteSummary prints the end-of-run counts.
func WriteSummary(w io.Writer, s Summary) {
	mode := "write"
	if s.DryRun {
		mode = "dry-run"
	}

	fmt.Fprintf(w, "\n=== Run summary (%s) ===\n", mode)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "imported\t%d\n", s.Imported)
	fmt.Fprintf(tw, "skipped duplicate\t%d\n", s.SkippedDuplicate)
	fmt.Fprintf(tw, "unrecognized\t%d\n", s.Unrecognized)
	fmt.Fprintf(tw, "matched\t%d\n", s.Matched)
	fmt.Fprintf(tw, "ambiguous\t%d\n", s.Ambiguous)
	fmt.Fprintf(tw, "no candidates\t%d\n", s.NoCandidates)
	fmt.Fprintf(tw, "conflicted\t%d\n", s.Conflicted)
	fmt.Fprintf(tw, "duplicate groups\t%d\n", s.Duplicates)
	fmt.Fprintf(tw, "changes\t%d\n", s.Changes)
	fmt.Fprintf(tw, "applied\t%d\n", s.Applied)
	tw.Flush()
}
