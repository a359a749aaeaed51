// Package defect provides the structured, non-fatal defect reports collected while
// extracting records from model output.
package defect

import (
	"fmt"
	"strings"
)

// Kind classifies the stage that produced a defect.
type Kind string

const (
	// KindParse is a structural problem in the tagged text (e.g. an unbalanced tag).
	KindParse Kind = "parse"
	// KindNormalize is a per-entry shape problem (e.g. non-numeric hours).
	KindNormalize Kind = "normalize"
	// KindValidation is a semantic rule violation (e.g. level out of range).
	KindValidation Kind = "validation"
	// KindReconciliationMiss is an entry that could not be joined to an entity.
	KindReconciliationMiss Kind = "reconciliation_miss"
	// KindCommit is a derived value that could not be written back.
	KindCommit Kind = "commit"
)

// Code constants identify the specific rule that produced a defect.
const (
	CodeUnbalancedTag   = "UNBALANCED_TAG"
	CodeMissingTag      = "MISSING_TAG"
	CodeEmptyTitle      = "EMPTY_TITLE"
	CodeEmptyTips       = "EMPTY_TIPS"
	CodeEmptyEntry      = "EMPTY_ENTRY"
	CodeNonNumericHours = "NON_NUMERIC_HOURS"
	CodeNonNumericLevel = "NON_NUMERIC_LEVEL"
	CodeMalformedLine   = "MALFORMED_LINE"
	CodeMalformedJSON   = "MALFORMED_JSON"
	CodeSchemaMismatch  = "SCHEMA_MISMATCH"
	CodeDuplicateDay    = "DUPLICATE_DAY"
	CodeTotalMismatch   = "TOTAL_MISMATCH"
	CodeRuleViolation   = "RULE_VIOLATION"
	CodeNoMatch         = "NO_MATCH"
	CodeConflict        = "CONFLICTING_VALUE"
	CodeCommitFailed    = "COMMIT_FAILED"
)

// Defect is a single malformed, invalid or unmatched entry within an otherwise
// successful batch.
type Defect struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Subject string `json:"subject,omitempty"` // the entry the defect refers to (tag, day, question text)
	Index   int    `json:"index"`             // position of the entry in its parent, -1 when not applicable
	Message string `json:"message"`
}

// New creates a defect that is not tied to a position.
func New(kind Kind, code, subject, message string) Defect {
	return Defect{Kind: kind, Code: code, Subject: subject, Index: -1, Message: message}
}

// At creates a defect for the entry at index i.
func At(kind Kind, code string, i int, subject, message string) Defect {
	return Defect{Kind: kind, Code: code, Subject: subject, Index: i, Message: message}
}

func (d Defect) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s defect %s", d.Kind, d.Code))
	if d.Index >= 0 {
		sb.WriteString(fmt.Sprintf(" at #%d", d.Index))
	}
	if d.Subject != "" {
		sb.WriteString(fmt.Sprintf(" (%q)", d.Subject))
	}
	if d.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(d.Message)
	}
	return sb.String()
}

// Report accumulates defects in the order they were found.
type Report struct {
	Defects []Defect `json:"defects"`
}

// Add appends defects to the report.
func (r *Report) Add(ds ...Defect) {
	r.Defects = append(r.Defects, ds...)
}

// Len returns the number of collected defects.
func (r *Report) Len() int {
	return len(r.Defects)
}

// Count returns the number of defects of the given kind.
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, d := range r.Defects {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// ByCode returns the defects with the given code.
func (r *Report) ByCode(code string) []Defect {
	var out []Defect
	for _, d := range r.Defects {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}
