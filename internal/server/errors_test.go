package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/studyforge/internal/assessment"
	"github.com/jonathan/studyforge/internal/extraction"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

func TestHTTPStatus(t *testing.T) {
	modelDown := &extraction.Error{
		Pipeline: extraction.PipelineDifficulty,
		Stage:    extraction.StageModel,
		Err:      &llm.ModelError{Kind: llm.ErrModelUnavailable, Attempts: 3, Err: errors.New("refused")},
	}
	missingBlock := &extraction.Error{
		Pipeline: extraction.PipelineSuggestions,
		Stage:    extraction.StageBlock,
		Err:      fmt.Errorf("%w: <suggestions>", extraction.ErrRequiredBlockMissing),
	}
	unbalanced := &extraction.Error{
		Pipeline: extraction.PipelineTopics,
		Stage:    extraction.StageParse,
		Err:      &tagged.ParseDefect{Code: "UNBALANCED_TAG", Tag: "topic"},
	}
	invalid := validation.New().Struct(types.QuestionSetRequest{NumQuestions: 50})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"request validation", &ErrValidation{Field: "id", Message: "must be a UUID"}, http.StatusBadRequest},
		{"struct validation", invalid, http.StatusBadRequest},
		{"too many answers", fmt.Errorf("submit: %w", assessment.ErrTooManyAnswers), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: course", types.ErrNotFound), http.StatusNotFound},
		{"no questions", &extraction.Error{Stage: extraction.StageLoad, Err: extraction.ErrNoQuestions}, http.StatusConflict},
		{"model unavailable", modelDown, http.StatusServiceUnavailable},
		{"missing block", missingBlock, http.StatusUnprocessableEntity},
		{"nothing extracted", &extraction.Error{Err: extraction.ErrNothingExtracted}, http.StatusUnprocessableEntity},
		{"parse defect", unbalanced, http.StatusUnprocessableEntity},
		{"deadline", fmt.Errorf("commit: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"commit failure", &extraction.Error{Stage: extraction.StageCommit, Err: errors.New("disk full")}, http.StatusInternalServerError},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestDescribe(t *testing.T) {
	err := &extraction.Error{Pipeline: extraction.PipelineStudyPlan, Stage: extraction.StageBlock, Err: extraction.ErrNothingExtracted}
	body := describe(err, http.StatusUnprocessableEntity)
	assert.Equal(t, extraction.PipelineStudyPlan, body.Pipeline)
	assert.Equal(t, "block", body.Stage)
	assert.Contains(t, body.Error, "nothing extractable")

	internal := describe(errors.New("pq: password authentication failed"), http.StatusInternalServerError)
	assert.Equal(t, "Internal Server Error", internal.Error, "internal details are not echoed")
}

func TestErrValidation(t *testing.T) {
	assert.Equal(t, "validation error: id - must be a UUID", (&ErrValidation{Field: "id", Message: "must be a UUID"}).Error())
	assert.Equal(t, "validation error: request body is empty", (&ErrValidation{Message: "request body is empty"}).Error())
}
