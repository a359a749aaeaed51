package assessment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/studyforge/internal/memstore"
	"github.com/jonathan/studyforge/internal/types"
)

func questions() []types.Question {
	return []types.Question{
		{ID: uuid.New(), Text: "a", CorrectOption: 0},
		{ID: uuid.New(), Text: "b", CorrectOption: 2},
		{ID: uuid.New(), Text: "c", CorrectOption: 3},
	}
}

func TestScore(t *testing.T) {
	qs := questions()

	score, graded, err := Score(qs, []types.AnswerInput{
		{QuestionID: qs[0].ID, Selected: 0},
		{QuestionID: qs[1].ID, Selected: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, score)
	assert.Equal(t, []types.Answer{
		{QuestionID: qs[0].ID, Selected: 0, Correct: true},
		{QuestionID: qs[1].ID, Selected: 1, Correct: false},
	}, graded)
}

func TestScore_Rejects(t *testing.T) {
	qs := questions()

	tests := []struct {
		name    string
		answers []types.AnswerInput
		want    error
	}{
		{
			name: "too many answers",
			answers: []types.AnswerInput{
				{QuestionID: qs[0].ID}, {QuestionID: qs[1].ID}, {QuestionID: qs[2].ID}, {QuestionID: uuid.New()},
			},
			want: ErrTooManyAnswers,
		},
		{
			name:    "unknown question",
			answers: []types.AnswerInput{{QuestionID: uuid.New()}},
			want:    ErrUnknownQuestion,
		},
		{
			name:    "duplicate answer",
			answers: []types.AnswerInput{{QuestionID: qs[0].ID}, {QuestionID: qs[0].ID, Selected: 1}},
			want:    ErrDuplicateAnswer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Score(qs, tt.answers)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_SubmitAndGet(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	subject := uuid.New()
	course := &types.Course{SubjectID: subject, Title: "Arithmetic"}
	require.NoError(t, store.CreateCourse(ctx, course))
	qs, err := store.InsertQuestions(ctx, []types.Question{
		{CourseID: course.ID, Text: "1+1", Options: []string{"2", "3", "4", "5"}, CorrectOption: 0},
		{CourseID: course.ID, Text: "2+2", Options: []string{"2", "3", "4", "5"}, CorrectOption: 2},
	})
	require.NoError(t, err)

	svc := NewService(store)
	a, err := svc.Submit(ctx, subject, types.SubmitAssessmentRequest{
		CourseID: course.ID,
		Answers:  []types.AnswerInput{{QuestionID: qs[0].ID, Selected: 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Score)
	assert.Equal(t, 2, a.Total, "total counts every question in the course")

	got, err := svc.Get(ctx, subject, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Answers, got.Answers)

	_, err = svc.Get(ctx, uuid.New(), a.ID)
	assert.ErrorIs(t, err, types.ErrNotFound, "other subjects cannot read it")

	_, err = svc.Submit(ctx, uuid.New(), types.SubmitAssessmentRequest{CourseID: course.ID, Answers: []types.AnswerInput{{QuestionID: qs[0].ID}}})
	assert.ErrorIs(t, err, types.ErrNotFound)
}
