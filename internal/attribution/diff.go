package attribution

import (
	"sort"

	"github.com/tariel-x/affiliates/internal/snapshot"
)

// Diff picks the code whose use counter grew the most between old and
// fresh. Codes missing from fresh are ignored; codes missing from old
// count from zero. A tie for the top positive delta is ambiguous.
func Diff(old, fresh snapshot.Snapshot) Result {
	best := 0
	var leaders []string
	for code, uses := range fresh {
		delta := uses - old[code]
		switch {
		case delta <= 0 || delta < best:
		case delta > best:
			best = delta
			leaders = append(leaders[:0], code)
		default:
			leaders = append(leaders, code)
		}
	}

	switch len(leaders) {
	case 0:
		return Result{Outcome: OutcomeNoUsableDelta}
	case 1:
		return Result{Outcome: OutcomeAttributed, Code: leaders[0], Delta: best}
	default:
		sort.Strings(leaders)
		return Result{Outcome: OutcomeAmbiguous, Delta: best, Tied: leaders}
	}
}
