package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/normalize"
	"github.com/jonathan/studyforge/internal/prompts"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

// SuggestionPipeline turns an assessment into remediation suggestions,
// strengths and weaknesses.
type SuggestionPipeline struct {
	deps  Deps
	guard *idempotency.Guard[types.SuggestionSet]
}

// NewSuggestionPipeline creates the pipeline.
func NewSuggestionPipeline(d Deps) *SuggestionPipeline {
	d = d.withDefaults()
	return &SuggestionPipeline{
		deps:  d,
		guard: idempotency.NewGuard(d.Store, SuggestionsComplete, guardOptions(d, PipelineSuggestions)...),
	}
}

// SuggestionsComplete reports whether a stored set can be served as is.
func SuggestionsComplete(s types.SuggestionSet) bool {
	return len(s.Suggestions) > 0 && len(s.Strengths) > 0 && len(s.Weaknesses) > 0
}

// Run returns the suggestions for req.AssessmentID, calling model only when no
// complete set is stored yet.
func (p *SuggestionPipeline) Run(ctx context.Context, model llm.Completer, req types.SuggestionRequest) (env *Envelope[types.SuggestionSet], err error) {
	ctx, span := startRun(ctx, PipelineSuggestions, req.AssessmentID)
	defer func() { finishRun(span, env, err) }()

	log := p.deps.Log.With("pipeline", PipelineSuggestions, "entity_id", req.AssessmentID.String())
	key := idempotency.Key{EntityID: req.AssessmentID, Kind: idempotency.KindSuggestions}

	compute := func(ctx context.Context) (idempotency.Outcome[types.SuggestionSet], error) {
		var zero idempotency.Outcome[types.SuggestionSet]
		review, err := p.deps.Assessments.GetAssessmentReview(ctx, req.AssessmentID)
		if err != nil {
			return zero, fail(PipelineSuggestions, StageLoad, err)
		}
		prompt, err := suggestionPrompt(review)
		if err != nil {
			return zero, fail(PipelineSuggestions, StagePrompt, err)
		}
		text, err := complete(ctx, p.deps, log, PipelineSuggestions, model, prompt, p.deps.MaxTokens)
		if err != nil {
			return zero, err
		}
		return ExtractSuggestions(text, p.deps.Validator)
	}

	out, err := p.guard.Run(ctx, key, compute, nil)
	if err != nil {
		log.Error("suggestion extraction failed", "error", err)
		return nil, fail(PipelineSuggestions, StageGuard, err)
	}
	log.Info("suggestions ready", "suggestions", len(out.Accepted.Suggestions), "defects", len(out.Defects), "cached", out.AlreadyCompleted)
	return envelope(out), nil
}

// ExtractSuggestions parses, normalizes and validates a suggestion completion.
// Only a missing `<suggestions>` block is terminal; missing strengths or
// weaknesses are reported as defects.
func ExtractSuggestions(text string, v *validation.Validator) (idempotency.Outcome[types.SuggestionSet], error) {
	var out idempotency.Outcome[types.SuggestionSet]
	root, err := parse(PipelineSuggestions, text)
	if err != nil {
		return out, err
	}

	block, ok := root.Find("suggestions")
	if !ok {
		return out, missing(PipelineSuggestions, "suggestions")
	}

	var report defect.Report
	suggestions, ds := normalize.Suggestions(block)
	report.Add(ds...)
	suggestions, ds = v.Suggestions(suggestions)
	report.Add(ds...)

	out.Accepted = types.SuggestionSet{
		Suggestions: nonNil(suggestions),
		Strengths:   labelsOf(root, "strengths", &report),
		Weaknesses:  labelsOf(root, "weaknesses", &report),
	}
	out.Defects = report.Defects
	return out, nil
}

func labelsOf(root *tagged.Block, name string, report *defect.Report) []string {
	b, ok := root.Find(name)
	if !ok {
		report.Add(defect.New(defect.KindNormalize, defect.CodeMissingTag, name, fmt.Sprintf("<%s> block not found", name)))
		return []string{}
	}
	return nonNil(normalize.Labels(b))
}

type reviewItem struct {
	Question string `json:"question"`
	Correct  bool   `json:"correct"`
}

func suggestionPrompt(review *types.AssessmentReview) (string, error) {
	correct := make(map[uuid.UUID]bool, len(review.Assessment.Answers))
	for _, a := range review.Assessment.Answers {
		correct[a.QuestionID] = a.Correct
	}
	items := make([]reviewItem, 0, len(review.Questions))
	for _, q := range review.Questions {
		items = append(items, reviewItem{Question: q.Text, Correct: correct[q.ID]})
	}
	summary, err := promptJSON(map[string]any{
		"score":   review.Assessment.Score,
		"total":   review.Assessment.Total,
		"answers": items,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode assessment: %w", err)
	}

	var missed []string
	for _, q := range review.Missed() {
		missed = append(missed, q.Text)
	}
	return prompts.Render(prompts.Extraction, prompts.KeySuggestions, map[string]string{
		"Assessment": summary,
		"Missed":     strings.Join(missed, "\n"),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
