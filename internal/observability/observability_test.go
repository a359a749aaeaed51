package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/logger"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSummary(Summary{
		Pipeline: "difficulty",
		Accepted: 2,
		Defects: []defect.Defect{
			defect.At(defect.KindValidation, defect.CodeRuleViolation, 2, "Simplify 2/4", "level 9 out of range"),
		},
		Unmatched: []defect.Defect{
			defect.New(defect.KindReconciliationMiss, defect.CodeNoMatch, "Who wrote Hamlet?", ""),
		},
	})
	output := buf.String()

	assert.Contains(t, output, "EXTRACTION SUMMARY")
	assert.Contains(t, output, "difficulty")
	assert.Contains(t, output, "Accepted:   2")
	assert.Contains(t, output, "RULE_VIOLATION")
	assert.Contains(t, output, "UNMATCHED ENTRIES")
	assert.Contains(t, output, `"Who wrote Hamlet?"`)
	assert.NotContains(t, output, "stored result")
}

func TestPrintDefects_Truncates(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	var ds []defect.Defect
	for i := 0; i < 8; i++ {
		ds = append(ds, defect.At(defect.KindNormalize, defect.CodeNonNumericHours, i, "", ""))
	}
	p.PrintDefects("DEFECTS", ds)

	output := buf.String()
	assert.Equal(t, maxItemsToShow, strings.Count(output, "NON_NUMERIC_HOURS"))
	assert.Contains(t, output, "... and 3 more")
}

func TestPrintDefects_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintDefects("DEFECTS", nil)
	assert.Empty(t, buf.String())
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).printBox("TITLE", strings.Repeat("x", 100))
	assert.Contains(t, buf.String(), "...")
}

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), logger.NewNop(), TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampleRatio(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 1},
		{-1, 1},
		{0.25, 0.25},
		{3, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, sampleRatio(tt.in), 1e-9)
	}
}
