package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/types"
)

// totalTolerance absorbs float noise when comparing a declared total with the sum.
const totalTolerance = 0.01

// Suggestions keeps the suggestions that pass every rule.
func (v *Validator) Suggestions(items []types.Suggestion) ([]types.Suggestion, []defect.Defect) {
	return checkAll(v, items)
}

// Difficulty keeps entries with a level in [1,5]. Out-of-range levels are
// rejected, never clamped.
func (v *Validator) Difficulty(items []types.DifficultyEntry) ([]types.DifficultyEntry, []defect.Defect) {
	return checkAll(v, items)
}

// Topics keeps clusters with a name and at least one member.
func (v *Validator) Topics(items []types.TopicCluster) ([]types.TopicCluster, []defect.Defect) {
	return checkAll(v, items)
}

// Weeks keeps objectives with a positive week number.
func (v *Validator) Weeks(items []types.WeekObjectives) ([]types.WeekObjectives, []defect.Defect) {
	return checkAll(v, items)
}

// Questions keeps well-formed questions. A stem repeated within the batch is
// rejected after its first occurrence since stems are the reconciliation key.
func (v *Validator) Questions(items []types.GeneratedQuestion) ([]types.GeneratedQuestion, []defect.Defect) {
	var (
		out     []types.GeneratedQuestion
		defects []defect.Defect
	)
	seen := make(map[string]bool, len(items))
	for i, q := range items {
		if err := v.Check(q); err != nil {
			defects = append(defects, indexed(err, i))
			continue
		}
		if seen[q.Stem] {
			defects = append(defects, defect.At(defect.KindValidation, defect.CodeRuleViolation, i, q.Stem, "question repeated within the batch"))
			continue
		}
		seen[q.Stem] = true
		out = append(out, q)
	}
	return out, defects
}

// Schedule keeps valid entries and the first entry for each day; later entries
// for an already scheduled day are reported as DUPLICATE_DAY.
func (v *Validator) Schedule(items []types.ScheduleEntry) ([]types.ScheduleEntry, []defect.Defect) {
	var (
		out     []types.ScheduleEntry
		defects []defect.Defect
	)
	seen := make(map[string]bool, len(items))
	for i, entry := range items {
		if err := v.Check(entry); err != nil {
			defects = append(defects, indexed(err, i))
			continue
		}
		if seen[entry.Day] {
			defects = append(defects, defect.At(defect.KindValidation, defect.CodeDuplicateDay, i, entry.Day,
				fmt.Sprintf("%s already scheduled; keeping the first entry", entry.Day)))
			continue
		}
		seen[entry.Day] = true
		out = append(out, entry)
	}
	return out, defects
}

// ScheduleTotal sums the accepted entries. When the model declared a total that
// disagrees with the sum, the sum wins and a TOTAL_MISMATCH defect is returned.
func ScheduleTotal(entries []types.ScheduleEntry, declared float64, hasDeclared bool) (float64, *defect.Defect) {
	var sum float64
	for _, e := range entries {
		sum += e.Hours
	}
	if hasDeclared && math.Abs(declared-sum) > totalTolerance {
		d := defect.New(defect.KindValidation, defect.CodeTotalMismatch, "total_hours",
			fmt.Sprintf("declared %.2f hours but entries sum to %.2f", declared, sum))
		return sum, &d
	}
	return sum, nil
}

func checkAll[T any](v *Validator, items []T) ([]T, []defect.Defect) {
	var (
		out     []T
		defects []defect.Defect
	)
	for i, item := range items {
		if err := v.Check(item); err != nil {
			defects = append(defects, indexed(err, i))
			continue
		}
		out = append(out, item)
	}
	return out, defects
}

func indexed(err error, i int) defect.Defect {
	var d *defect.Defect
	if errors.As(err, &d) {
		out := *d
		out.Index = i
		return out
	}
	return defect.At(defect.KindValidation, defect.CodeRuleViolation, i, "", err.Error())
}
