// Package extraction runs the five model-backed extraction pipelines: prompt,
// model call, parse, normalize, validate, reconcile and commit, all behind the
// idempotency guard.
package extraction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/logger"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

// Pipeline names used in errors, logs and spans.
const (
	PipelineSuggestions = "suggestions"
	PipelineStudyPlan   = "study_plan"
	PipelineTopics      = "topic_clustering"
	PipelineDifficulty  = "difficulty"
	PipelineQuestionSet = "question_set"
)

// Courses reads course material.
type Courses interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*types.Course, error)
}

// Questions reads and updates the questions of a course.
type Questions interface {
	ListQuestions(ctx context.Context, courseID uuid.UUID) ([]types.Question, error)
	// InsertQuestions stores new questions and returns them with ids assigned.
	InsertQuestions(ctx context.Context, questions []types.Question) ([]types.Question, error)
	SetTopics(ctx context.Context, assignments []types.TopicAssignment) error
	SetDifficulty(ctx context.Context, questionID uuid.UUID, level int) error
}

// Assessments reads scored submissions.
type Assessments interface {
	GetAssessmentReview(ctx context.Context, id uuid.UUID) (*types.AssessmentReview, error)
}

// Plans stores study plans.
type Plans interface {
	SavePlan(ctx context.Context, plan *types.Plan) error
}

// Defaults applied by Deps when a field is left zero.
const (
	DefaultMaxTokens         = llm.DefaultMaxTokens
	DefaultClusterMaxTokens  = 2048
	DefaultCommitConcurrency = 8
)

// Deps are the collaborators shared by every pipeline.
type Deps struct {
	Store       idempotency.Store
	Locker      idempotency.Locker // optional
	Courses     Courses
	Questions   Questions
	Assessments Assessments
	Plans       Plans
	Validator   *validation.Validator
	Retry       llm.RetryPolicy
	// MaxTokens bounds suggestion, plan and question-set completions.
	MaxTokens int
	// ClusterMaxTokens bounds topic and difficulty completions, which echo every
	// question text.
	ClusterMaxTokens  int
	CommitConcurrency int
	// ClaimLease bounds how long a run may hold an extraction before another
	// caller takes it over. Zero means idempotency.DefaultLease.
	ClaimLease time.Duration
	Log        *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.Retry.MaxAttempts == 0 {
		d.Retry = llm.DefaultRetryPolicy()
	}
	if d.MaxTokens <= 0 {
		d.MaxTokens = DefaultMaxTokens
	}
	if d.ClusterMaxTokens <= 0 {
		d.ClusterMaxTokens = DefaultClusterMaxTokens
	}
	if d.CommitConcurrency <= 0 {
		d.CommitConcurrency = DefaultCommitConcurrency
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	return d
}

func guardOptions(d Deps, pipeline string) []idempotency.Option {
	opts := []idempotency.Option{idempotency.WithLogger(d.Log.With("pipeline", pipeline))}
	if d.Locker != nil {
		opts = append(opts, idempotency.WithLocker(d.Locker))
	}
	if d.ClaimLease > 0 {
		opts = append(opts, idempotency.WithLease(d.ClaimLease))
	}
	return opts
}

// Engine bundles the five pipelines over one set of collaborators.
type Engine struct {
	Suggestions *SuggestionPipeline
	StudyPlan   *StudyPlanPipeline
	Topics      *TopicPipeline
	Difficulty  *DifficultyPipeline
	QuestionSet *QuestionSetPipeline
}

// NewEngine builds every pipeline from d.
func NewEngine(d Deps) *Engine {
	return &Engine{
		Suggestions: NewSuggestionPipeline(d),
		StudyPlan:   NewStudyPlanPipeline(d),
		Topics:      NewTopicPipeline(d),
		Difficulty:  NewDifficultyPipeline(d),
		QuestionSet: NewQuestionSetPipeline(d),
	}
}
