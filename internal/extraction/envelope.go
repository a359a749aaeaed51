package extraction

import (
	"fmt"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/reconcile"
)

// Envelope is what every pipeline returns to its caller.
type Envelope[A any] struct {
	Accepted         A               `json:"accepted"`
	UnmatchedCount   int             `json:"unmatched_count"`
	DefectCount      int             `json:"defect_count"`
	Defects          []defect.Defect `json:"defects"`
	Unmatched        []defect.Defect `json:"unmatched"`
	AlreadyCompleted bool            `json:"already_completed"`
}

func envelope[A any](out idempotency.Outcome[A]) *Envelope[A] {
	defects := out.Defects
	if defects == nil {
		defects = []defect.Defect{}
	}
	unmatched := out.Unmatched
	if unmatched == nil {
		unmatched = []defect.Defect{}
	}
	return &Envelope[A]{
		Accepted:         out.Accepted,
		UnmatchedCount:   len(unmatched),
		DefectCount:      len(defects),
		Defects:          defects,
		Unmatched:        unmatched,
		AlreadyCompleted: out.AlreadyCompleted,
	}
}

// unmatchedDefects turns reconciliation leftovers into report entries.
func unmatchedDefects[V any](items []reconcile.Unmatched[V]) []defect.Defect {
	out := make([]defect.Defect, 0, len(items))
	for _, u := range items {
		switch u.Reason {
		case reconcile.ReasonConflict:
			out = append(out, defect.New(defect.KindReconciliationMiss, defect.CodeConflict, u.Key,
				fmt.Sprintf("question already received a different value; %v ignored", u.Value)))
		default:
			out = append(out, defect.New(defect.KindReconciliationMiss, defect.CodeNoMatch, u.Key,
				fmt.Sprintf("no question has this exact text; %v not applied", u.Value)))
		}
	}
	return out
}
