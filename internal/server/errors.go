package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/studyforge/internal/assessment"
	"github.com/jonathan/studyforge/internal/extraction"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	var (
		verr  *ErrValidation
		vErrs validator.ValidationErrors
		model *llm.ModelError
		parse *tagged.ParseDefect
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr), errors.As(err, &vErrs),
		errors.Is(err, assessment.ErrTooManyAnswers),
		errors.Is(err, assessment.ErrUnknownQuestion),
		errors.Is(err, assessment.ErrDuplicateAnswer):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, extraction.ErrNoQuestions):
		return http.StatusConflict
	case errors.As(err, &model):
		return http.StatusServiceUnavailable
	case errors.Is(err, extraction.ErrRequiredBlockMissing),
		errors.Is(err, extraction.ErrNothingExtracted),
		errors.As(err, &parse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string `json:"error"`
	Pipeline string `json:"pipeline,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

// describe builds the response body for err. Internal failures are not echoed
// to the client.
func describe(err error, status int) errorBody {
	body := errorBody{Error: err.Error()}
	var failed *extraction.Error
	if errors.As(err, &failed) {
		body.Pipeline = failed.Pipeline
		body.Stage = string(failed.Stage)
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout {
		body.Error = http.StatusText(status)
	}
	return body
}
