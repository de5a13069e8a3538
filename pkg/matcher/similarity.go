package matcher

import (
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Similarity returns a normalized edit-distance score in [0,1] between two
// pieces of counterparty text. Both inputs are normalized first so that
// case and spacing differences between source systems do not count against
// the score. This is the single similarity function every matching context
// uses; confidence values are comparable across the whole engine.
func Similarity(a, b string) float64 {
	a = model.NormalizeText(a)
	b = model.NormalizeText(b)

	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// dateGapDays returns the absolute calendar-day gap between two dates.
func dateGapDays(a, b time.Time) int {
	gap := int(a.Sub(b).Hours() / 24)
	if gap < 0 {
		gap = -gap
	}
	return gap
}

// dateProximity maps a day gap inside a tolerance window to (0,1]: 1.0 at a
// zero gap, shrinking linearly toward the window boundary without reaching
// zero while the candidate is still inside the window.
func dateProximity(gapDays, toleranceDays int) float64 {
	if gapDays > toleranceDays {
		return 0
	}
	return 1 - float64(gapDays)/float64(toleranceDays+1)
}
