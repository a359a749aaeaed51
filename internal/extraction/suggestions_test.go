package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

const suggestionCompletion = "<strengths>\n- Algebra:\n</strengths><weaknesses>\n- Geometry:\n</weaknesses>" +
	"<suggestions><suggestion><title>Review fractions</title><tips>\n- Practice daily\n- Use flashcards\n</tips></suggestion></suggestions>"

func TestExtractSuggestions(t *testing.T) {
	out, err := ExtractSuggestions(suggestionCompletion, validation.New())
	require.NoError(t, err)

	assert.Equal(t, []string{"Algebra"}, out.Accepted.Strengths)
	assert.Equal(t, []string{"Geometry"}, out.Accepted.Weaknesses)
	assert.Equal(t, []types.Suggestion{{Title: "Review fractions", Tips: []string{"Practice daily", "Use flashcards"}}}, out.Accepted.Suggestions)
	assert.Empty(t, out.Defects)
}

func TestExtractSuggestions_PartialTolerance(t *testing.T) {
	text := `<suggestions>
<suggestion><title>Review fractions</title><tips>
- Practice daily
</tips></suggestion>
<suggestion><title></title><tips>
- orphan tip
</tips></suggestion>
<suggestion><title>Too many tips</title><tips>
- 1a
- 2a
- 3a
- 4a
- 5a
- 6a
</tips></suggestion>
</suggestions>`

	out, err := ExtractSuggestions(text, validation.New())
	require.NoError(t, err)

	require.Len(t, out.Accepted.Suggestions, 1)
	assert.Equal(t, "Review fractions", out.Accepted.Suggestions[0].Title)
	assert.Empty(t, out.Accepted.Strengths)

	var report defect.Report
	report.Add(out.Defects...)
	assert.Len(t, report.ByCode(defect.CodeEmptyTitle), 1)
	assert.Len(t, report.ByCode(defect.CodeRuleViolation), 1)
	assert.Len(t, report.ByCode(defect.CodeMissingTag), 2, "strengths and weaknesses are reported missing")
}

func TestExtractSuggestions_Terminal(t *testing.T) {
	t.Run("missing suggestions block", func(t *testing.T) {
		_, err := ExtractSuggestions("<strengths>\n- Algebra\n</strengths>", validation.New())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRequiredBlockMissing)

		var pe *Error
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, PipelineSuggestions, pe.Pipeline)
		assert.Equal(t, StageBlock, pe.Stage)
	})

	t.Run("unbalanced tags", func(t *testing.T) {
		_, err := ExtractSuggestions("<suggestions><suggestion>", validation.New())
		require.Error(t, err)

		var pd *tagged.ParseDefect
		require.True(t, errors.As(err, &pd))
		assert.Equal(t, defect.CodeUnbalancedTag, pd.Code)

		var pe *Error
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, StageParse, pe.Stage)
	})
}

func TestSuggestionPipeline_ComputesOnceThenServesStored(t *testing.T) {
	f := newFixture(t)
	p := NewSuggestionPipeline(f.deps())
	req := types.SuggestionRequest{AssessmentID: f.assessment.ID}

	model := answering(suggestionCompletion)
	env, err := p.Run(context.Background(), model, req)
	require.NoError(t, err)
	assert.False(t, env.AlreadyCompleted)
	assert.Equal(t, 1, model.Calls())
	assert.Contains(t, model.prompts[0], "Simplify 2/4", "missed question is in the prompt")
	assert.Equal(t, idempotency.StatusCompleted, f.status(t, f.assessment.ID, idempotency.KindSuggestions))

	again := answering(suggestionCompletion)
	cached, err := p.Run(context.Background(), again, req)
	require.NoError(t, err)
	assert.True(t, cached.AlreadyCompleted)
	assert.Zero(t, again.Calls())
	assert.Equal(t, env.Accepted, cached.Accepted)
}

func TestSuggestionPipeline_PreexistingCompleteSetMakesNoModelCall(t *testing.T) {
	f := newFixture(t)
	stored := idempotency.Outcome[types.SuggestionSet]{Accepted: types.SuggestionSet{
		Suggestions: []types.Suggestion{{Title: "Review fractions", Tips: []string{"Practice daily"}}},
		Strengths:   []string{"Algebra"},
		Weaknesses:  []string{"Geometry"},
	}}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)
	key := idempotency.Key{EntityID: f.assessment.ID, Kind: idempotency.KindSuggestions}
	require.NoError(t, f.results.WriteResult(context.Background(), key,
		idempotency.Record{Payload: payload, Status: idempotency.StatusCompleted}, 0))

	model := answering(suggestionCompletion)
	env, err := NewSuggestionPipeline(f.deps()).Run(context.Background(), model,
		types.SuggestionRequest{AssessmentID: f.assessment.ID})
	require.NoError(t, err)

	assert.Zero(t, model.Calls())
	assert.True(t, env.AlreadyCompleted)
	assert.Equal(t, []string{"Algebra"}, env.Accepted.Strengths)
	assert.Zero(t, env.DefectCount)
}

func TestSuggestionPipeline_IncompleteSetIsRecomputed(t *testing.T) {
	f := newFixture(t)
	p := NewSuggestionPipeline(f.deps())
	req := types.SuggestionRequest{AssessmentID: f.assessment.ID}

	noWeaknesses := "<strengths>\n- Algebra\n</strengths><suggestions><suggestion><title>T</title><tips>\n- tip\n</tips></suggestion></suggestions>"
	model := answering(noWeaknesses, suggestionCompletion)

	first, err := p.Run(context.Background(), model, req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.DefectCount)
	assert.Equal(t, idempotency.StatusPartial, f.status(t, f.assessment.ID, idempotency.KindSuggestions))

	second, err := p.Run(context.Background(), model, req)
	require.NoError(t, err)
	assert.False(t, second.AlreadyCompleted)
	assert.Equal(t, 2, model.Calls())
	assert.Equal(t, []string{"Geometry"}, second.Accepted.Weaknesses)
	assert.Equal(t, idempotency.StatusCompleted, f.status(t, f.assessment.ID, idempotency.KindSuggestions))
}

func TestSuggestionPipeline_ModelFailure(t *testing.T) {
	f := newFixture(t)
	model := failing(errors.New("connection reset"))

	_, err := NewSuggestionPipeline(f.deps()).Run(context.Background(), model,
		types.SuggestionRequest{AssessmentID: f.assessment.ID})
	require.Error(t, err)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StageModel, pe.Stage)
	assert.Equal(t, 3, model.Calls(), "retried up to the policy limit")
	assert.Equal(t, idempotency.StatusFailed, f.status(t, f.assessment.ID, idempotency.KindSuggestions), "the claim is released")
}

func TestSuggestionPipeline_RecoversFromTransientModelFailure(t *testing.T) {
	f := newFixture(t)
	model := &scriptedModel{replies: []reply{
		{err: errors.New("connection reset")},
		{text: suggestionCompletion},
	}}

	env, err := NewSuggestionPipeline(f.deps()).Run(context.Background(), model,
		types.SuggestionRequest{AssessmentID: f.assessment.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, model.Calls())
	assert.Len(t, env.Accepted.Suggestions, 1)
}
