package extraction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/memstore"
	"github.com/jonathan/studyforge/internal/types"
)

// scriptedModel replays replies in order and repeats the last one.
type scriptedModel struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	prompts []string
}

type reply struct {
	text string
	err  error
}

func answering(texts ...string) *scriptedModel {
	m := &scriptedModel{}
	for _, t := range texts {
		m.replies = append(m.replies, reply{text: t})
	}
	return m
}

func failing(err error) *scriptedModel {
	return &scriptedModel{replies: []reply{{err: err}}}
}

func (m *scriptedModel) Complete(_ context.Context, prompt string, _ int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		m.calls++
		return "", errors.New("no scripted reply")
	}
	r := m.replies[min(m.calls, len(m.replies)-1)]
	m.calls++
	return r.text, r.err
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ llm.Completer = (*scriptedModel)(nil)

// fixture is a course with two questions and a scored assessment over them.
type fixture struct {
	data       *memstore.Store
	results    *idempotency.MemoryStore
	course     *types.Course
	questions  []types.Question
	assessment *types.Assessment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{data: memstore.New(), results: idempotency.NewMemoryStore()}

	f.course = &types.Course{SubjectID: uuid.New(), Title: "Arithmetic", Material: "Fractions are parts of a whole."}
	require.NoError(t, f.data.CreateCourse(ctx, f.course))

	qs, err := f.data.InsertQuestions(ctx, []types.Question{
		{CourseID: f.course.ID, Text: "What is 1/2 + 1/4?", Options: []string{"3/4", "1/6", "2/6", "1"}},
		{CourseID: f.course.ID, Text: "Simplify 2/4", Options: []string{"1/2", "2", "4", "1/4"}},
	})
	require.NoError(t, err)
	f.questions = qs

	f.assessment = &types.Assessment{
		SubjectID: f.course.SubjectID,
		CourseID:  f.course.ID,
		Score:     1,
		Total:     2,
		Answers: []types.Answer{
			{QuestionID: qs[0].ID, Selected: 0, Correct: true},
			{QuestionID: qs[1].ID, Selected: 2, Correct: false},
		},
	}
	require.NoError(t, f.data.SaveAssessment(ctx, f.assessment))
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Store:       f.results,
		Locker:      idempotency.NewKeyedMutex(),
		Courses:     f.data,
		Questions:   f.data,
		Assessments: f.data,
		Plans:       f.data,
		Retry:       llm.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}
}

func (f *fixture) status(t *testing.T, entity uuid.UUID, kind idempotency.Kind) idempotency.Status {
	t.Helper()
	rec, err := f.results.ReadPriorResult(context.Background(), idempotency.Key{EntityID: entity, Kind: kind})
	require.NoError(t, err)
	if rec == nil {
		return ""
	}
	return rec.Status
}
