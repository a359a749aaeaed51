// Package normalize turns parsed tagged blocks into typed extraction candidates.
//
// Normalizers are fail-soft: a malformed child produces a defect for that entry and
// the rest of the batch continues. Semantic rules (ranges, uniqueness) belong to
// the validation package.
package normalize

import (
	"regexp"
	"strings"

	"github.com/jonathan/studyforge/internal/tagged"
)

// bulletPattern matches the list markers models put in front of entries:
// "-", "*", "•", "–", "—", "1.", "1)".
// Every marker must be followed by whitespace so "3.5", "-5" and "*args" keep
// their leading characters.
var bulletPattern = regexp.MustCompile(`^\s*(?:[-*•–—]+(?:\s+|$)|\d{1,3}[.)]\s+)`)

// weekHeaderPattern matches a bare "Week 3:" heading line inside a week block.
var weekHeaderPattern = regexp.MustCompile(`(?i)^week\s*\d+\s*:?$`)

// CleanLine strips a leading bullet marker and surrounding whitespace.
func CleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = bulletPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Label cleans a list entry used as a short label, dropping a trailing colon.
func Label(s string) string {
	s = CleanLine(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, ":"))
	return s
}

// hasBullet reports whether a line starts a new list entry.
func hasBullet(s string) bool {
	return bulletPattern.MatchString(s)
}

// Labels returns every non-empty label in the block, in order. Lines of nested
// blocks are included so `<strength>Algebra</strength>` children also work.
func Labels(b *tagged.Block) []string {
	if b == nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(b.Text(), "\n") {
		if l := Label(line); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Items splits lines into list entries. A line that starts with a bullet opens a
// new entry; a line without one continues the previous entry.
func Items(lines []string) []string {
	var out []string
	for _, raw := range lines {
		line := CleanLine(raw)
		if line == "" {
			continue
		}
		if len(out) == 0 || hasBullet(raw) {
			out = append(out, line)
			continue
		}
		out[len(out)-1] += " " + line
	}
	return out
}

// blockText returns the cleaned text of an optional child block.
func blockText(b *tagged.Block, name string) (string, bool) {
	child, ok := b.Child(name)
	if !ok {
		return "", false
	}
	return CleanLine(strings.Join(strings.Fields(child.Text()), " ")), true
}
