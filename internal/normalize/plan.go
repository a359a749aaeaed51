package normalize

import (
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
)

// Goals reads the plan goals from the parsed completion. A `<goals>` container is
// preferred; otherwise every `<goal>` block in the document is used.
func Goals(root *tagged.Block) []string {
	if container, ok := root.Find("goals"); ok {
		if goals := container.Children("goal"); len(goals) > 0 {
			return goalTexts(goals)
		}
		return Labels(container)
	}
	return goalTexts(root.FindAll("goal"))
}

func goalTexts(blocks []*tagged.Block) []string {
	var out []string
	for _, g := range blocks {
		out = append(out, Items(g.Lines())...)
	}
	return out
}

// WeeklyObjectives reads the `<week>` children of a `<learning_objectives>`
// block. Weeks are numbered by position; a week without objectives yields an
// empty list rather than being dropped.
func WeeklyObjectives(b *tagged.Block) []types.WeekObjectives {
	weeks := b.Children("week")
	out := make([]types.WeekObjectives, 0, len(weeks))
	for i, week := range weeks {
		objectives := []string{}
		if tags := week.Children("objective"); len(tags) > 0 {
			for _, o := range tags {
				if text := CleanLine(o.Text()); text != "" {
					objectives = append(objectives, text)
				}
			}
		} else {
			for _, line := range week.Lines() {
				text := CleanLine(line)
				if text == "" || weekHeaderPattern.MatchString(text) {
					continue
				}
				objectives = append(objectives, text)
			}
		}
		out = append(out, types.WeekObjectives{Week: i + 1, Objectives: objectives})
	}
	return out
}

// PadWeeks appends empty weeks until the plan covers n weeks.
func PadWeeks(weeks []types.WeekObjectives, n int) []types.WeekObjectives {
	for len(weeks) < n {
		weeks = append(weeks, types.WeekObjectives{Week: len(weeks) + 1, Objectives: []string{}})
	}
	return weeks
}
