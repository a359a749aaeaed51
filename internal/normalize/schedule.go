package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
)

// hoursPattern accepts a number optionally followed by a unit word ("3.5 hours").
var hoursPattern = regexp.MustCompile(`(?i)^([0-9]+(?:\.[0-9]+)?|\.[0-9]+)\s*(?:h|hr|hrs|hour|hours)?\.?$`)

var titleCaser = cases.Title(language.English)

// ParseHours reads an hours value such as "3.5", "2 hours" or "1h".
func ParseHours(s string) (float64, error) {
	s = strings.TrimSpace(s)
	m := hoursPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("not a number of hours: %q", s)
	}
	return strconv.ParseFloat(m[1], 64)
}

// DayName canonicalizes a weekday name to title case ("MONDAY" -> "Monday").
func DayName(s string) string {
	return titleCaser.String(strings.ToLower(Label(s)))
}

// Schedule builds entries from the `<day>` children of a `<weekly_schedule>`
// block. Each day needs `<name>` and `<hours>`; duplicates and ranges are left to
// validation.
func Schedule(b *tagged.Block) ([]types.ScheduleEntry, []defect.Defect) {
	var (
		out     []types.ScheduleEntry
		defects []defect.Defect
	)
	for i, day := range b.Children("day") {
		name, _ := blockText(day, "name")
		if name == "" {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeEmptyEntry, i, "day", "day has no name"))
			continue
		}
		name = DayName(name)

		raw, ok := blockText(day, "hours")
		if !ok {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeNonNumericHours, i, name, "day has no hours"))
			continue
		}
		hours, err := ParseHours(raw)
		if err != nil {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeNonNumericHours, i, name, err.Error()))
			continue
		}

		out = append(out, types.ScheduleEntry{Day: name, Hours: hours})
	}
	return out, defects
}

// DeclaredTotal reads a `<total_hours>` block. The boolean is false when the
// block is absent or not a number, in which case a defect may be returned.
func DeclaredTotal(b *tagged.Block) (float64, bool, *defect.Defect) {
	if b == nil {
		return 0, false, nil
	}
	total, err := ParseHours(CleanLine(b.Text()))
	if err != nil {
		d := defect.New(defect.KindNormalize, defect.CodeNonNumericHours, "total_hours", err.Error())
		return 0, false, &d
	}
	return total, true, nil
}
