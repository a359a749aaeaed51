package extraction

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/normalize"
	"github.com/jonathan/studyforge/internal/prompts"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

const jsonOutputTag = "json_output"

// QuestionSetPipeline generates multiple-choice questions from course material.
type QuestionSetPipeline struct {
	deps  Deps
	guard *idempotency.Guard[[]types.Question]
}

// NewQuestionSetPipeline creates the pipeline.
func NewQuestionSetPipeline(d Deps) *QuestionSetPipeline {
	d = d.withDefaults()
	return &QuestionSetPipeline{
		deps:  d,
		guard: idempotency.NewGuard(d.Store, QuestionsComplete, guardOptions(d, PipelineQuestionSet)...),
	}
}

// QuestionsComplete reports whether stored questions can be served as is.
func QuestionsComplete(q []types.Question) bool {
	return len(q) > 0
}

// Run generates questions for req.CourseID. A course that already has questions
// gets them back without a model call.
func (p *QuestionSetPipeline) Run(ctx context.Context, model llm.Completer, req types.QuestionSetRequest) (env *Envelope[[]types.Question], err error) {
	ctx, span := startRun(ctx, PipelineQuestionSet, req.CourseID)
	defer func() { finishRun(span, env, err) }()

	log := p.deps.Log.With("pipeline", PipelineQuestionSet, "entity_id", req.CourseID.String())

	existing, err := p.deps.Questions.ListQuestions(ctx, req.CourseID)
	if err != nil {
		return nil, fail(PipelineQuestionSet, StageLoad, err)
	}
	if len(existing) > 0 {
		log.Info("course already has questions", "questions", len(existing))
		return envelope(idempotency.Outcome[[]types.Question]{Accepted: existing, AlreadyCompleted: true}), nil
	}

	key := idempotency.Key{EntityID: req.CourseID, Kind: idempotency.KindQuestions}
	compute := func(ctx context.Context) (idempotency.Outcome[[]types.Question], error) {
		var zero idempotency.Outcome[[]types.Question]
		course, err := p.deps.Courses.GetCourse(ctx, req.CourseID)
		if err != nil {
			return zero, fail(PipelineQuestionSet, StageLoad, err)
		}
		material, check := validation.SanitizeMaterial(course.Material, "course material")
		if !check.IsSafe {
			log.Warn("course material looks like a prompt injection", "reason", check.Reason)
		}
		prompt, err := prompts.Render(prompts.Extraction, prompts.KeyQuestionSet, map[string]string{
			"Material": material,
			"Count":    strconv.Itoa(req.NumQuestions),
		})
		if err != nil {
			return zero, fail(PipelineQuestionSet, StagePrompt, err)
		}
		text, err := complete(ctx, p.deps, log, PipelineQuestionSet, model, prompt, p.deps.MaxTokens)
		if err != nil {
			return zero, err
		}
		generated, err := ExtractQuestions(text, p.deps.Validator)
		if err != nil {
			return zero, err
		}

		out := idempotency.Outcome[[]types.Question]{Defects: generated.Defects}
		for i, g := range generated.Accepted {
			if i >= req.NumQuestions {
				out.Defects = append(out.Defects, defect.At(defect.KindValidation, defect.CodeRuleViolation, i, g.Stem,
					fmt.Sprintf("only %d questions were requested", req.NumQuestions)))
				continue
			}
			out.Accepted = append(out.Accepted, types.Question{
				CourseID:      req.CourseID,
				Text:          g.Stem,
				Options:       g.Options,
				CorrectOption: g.CorrectOption,
			})
		}
		out.Accepted = nonNil(out.Accepted)
		return out, nil
	}

	commit := func(ctx context.Context, out *idempotency.Outcome[[]types.Question]) (bool, error) {
		if len(out.Accepted) == 0 {
			return false, nil
		}
		inserted, err := p.deps.Questions.InsertQuestions(ctx, out.Accepted)
		if err != nil {
			return false, fail(PipelineQuestionSet, StageCommit, err)
		}
		out.Accepted = inserted
		return false, nil
	}

	out, err := p.guard.Run(ctx, key, compute, commit)
	if err != nil {
		log.Error("question generation failed", "error", err)
		return nil, fail(PipelineQuestionSet, StageGuard, err)
	}
	log.Info("questions ready", "questions", len(out.Accepted), "defects", len(out.Defects), "cached", out.AlreadyCompleted)
	return envelope(out), nil
}

// ExtractQuestions parses, normalizes and validates a question-set completion.
// The `<json_output>` content is taken verbatim so markup inside the JSON cannot
// disturb the tag tree.
func ExtractQuestions(text string, v *validation.Validator) (idempotency.Outcome[[]types.GeneratedQuestion], error) {
	var out idempotency.Outcome[[]types.GeneratedQuestion]
	root, err := parse(PipelineQuestionSet, text, tagged.WithRawTags(jsonOutputTag))
	if err != nil {
		return out, err
	}

	block, ok := root.Find(jsonOutputTag)
	if !ok {
		return out, missing(PipelineQuestionSet, jsonOutputTag)
	}

	var report defect.Report
	questions, ds := normalize.Questions(block)
	report.Add(ds...)
	questions, ds = v.Questions(questions)
	report.Add(ds...)

	out.Accepted = nonNil(questions)
	out.Defects = report.Defects
	return out, nil
}
