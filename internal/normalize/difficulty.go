package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
)

// Difficulty reads `question text: level` lines from a `<difficulty_levels>`
// block. The line is split on its last colon because question texts may contain
// colons themselves. Range checks are left to validation.
func Difficulty(b *tagged.Block) ([]types.DifficultyEntry, []defect.Defect) {
	var (
		out     []types.DifficultyEntry
		defects []defect.Defect
	)
	for i, line := range textLines(b) {
		cleaned := CleanLine(line)
		idx := strings.LastIndex(cleaned, ":")
		if idx < 0 {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeMalformedLine, i, cleaned, "expected 'question: level'"))
			continue
		}

		text := unquote(strings.TrimSpace(cleaned[:idx]))
		if text == "" {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeMalformedLine, i, cleaned, "question text is empty"))
			continue
		}

		raw := strings.TrimSpace(cleaned[idx+1:])
		level, err := strconv.Atoi(raw)
		if err != nil {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeNonNumericLevel, i, text, fmt.Sprintf("level %q is not an integer", raw)))
			continue
		}

		out = append(out, types.DifficultyEntry{QuestionText: text, Level: level})
	}
	return out, defects
}

// textLines returns every leaf line below b, skipping lines that are only
// whitespace.
func textLines(b *tagged.Block) []string {
	var out []string
	for _, line := range strings.Split(b.Text(), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// unquote drops one pair of surrounding double quotes.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
