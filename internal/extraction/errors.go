package extraction

import (
	"errors"
	"fmt"
)

// ErrRequiredBlockMissing is returned when the completion lacks the block a
// pipeline cannot do without.
var ErrRequiredBlockMissing = errors.New("required block missing from completion")

// ErrNothingExtracted is returned when a lenient pipeline found no usable entry
// at all.
var ErrNothingExtracted = errors.New("nothing extractable in completion")

// ErrNoQuestions is returned when a course has no questions to cluster or rate.
var ErrNoQuestions = errors.New("course has no questions")

// Stage names the step of a pipeline that failed.
type Stage string

const (
	StageLoad   Stage = "load"
	StagePrompt Stage = "prompt"
	StageModel  Stage = "model"
	StageParse  Stage = "parse"
	StageBlock  Stage = "block"
	StageCommit Stage = "commit"
	StageGuard  Stage = "guard"
)

// Error is a terminal pipeline failure. Per-entry problems are never reported
// this way; they are defects in the envelope.
type Error struct {
	Pipeline string
	Stage    Stage
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s pipeline failed at %s: %v", e.Pipeline, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// fail wraps err unless it already carries a pipeline error further down the
// chain.
func fail(pipeline string, stage Stage, err error) error {
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	return &Error{Pipeline: pipeline, Stage: stage, Err: err}
}

func missing(pipeline, tag string) error {
	return &Error{Pipeline: pipeline, Stage: StageBlock, Err: fmt.Errorf("%w: <%s>", ErrRequiredBlockMissing, tag)}
}
