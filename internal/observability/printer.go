// Package observability provides tracing setup and the formatted output used by
// the CLI in verbose mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/studyforge/internal/defect"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// Summary is the part of an extraction result the printer reports on.
type Summary struct {
	Pipeline         string
	Accepted         int
	Defects          []defect.Defect
	Unmatched        []defect.Defect
	AlreadyCompleted bool
}

// PrintSummary outputs counts for an extraction run followed by its defects.
func (p *Printer) PrintSummary(s Summary) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Pipeline:   %s\n", s.Pipeline))
	sb.WriteString(fmt.Sprintf("Accepted:   %d\n", s.Accepted))
	sb.WriteString(fmt.Sprintf("Defects:    %d\n", len(s.Defects)))
	sb.WriteString(fmt.Sprintf("Unmatched:  %d", len(s.Unmatched)))
	if s.AlreadyCompleted {
		sb.WriteString("\n(served from a stored result)")
	}
	p.printBox("EXTRACTION SUMMARY", sb.String())

	p.PrintDefects("DEFECTS", s.Defects)
	p.PrintDefects("UNMATCHED ENTRIES", s.Unmatched)
}

// PrintDefects outputs the first few defects grouped by kind.
func (p *Printer) PrintDefects(title string, defects []defect.Defect) {
	if len(defects) == 0 {
		return
	}

	var report defect.Report
	report.Add(defects...)

	var sb strings.Builder
	for _, kind := range []defect.Kind{
		defect.KindParse,
		defect.KindNormalize,
		defect.KindValidation,
		defect.KindReconciliationMiss,
		defect.KindCommit,
	} {
		if n := report.Count(kind); n > 0 {
			sb.WriteString(fmt.Sprintf("%-20s %d\n", kind+":", n))
		}
	}
	sb.WriteString("\n")

	count := min(len(defects), maxItemsToShow)
	for i := 0; i < count; i++ {
		d := defects[i]
		sb.WriteString(fmt.Sprintf("  • %s", d.Code))
		if d.Subject != "" {
			sb.WriteString(fmt.Sprintf(" %q", d.Subject))
		}
		sb.WriteString("\n")
	}
	if len(defects) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(defects)-maxItemsToShow))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}
