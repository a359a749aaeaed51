package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/studyforge/internal/extraction"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/memstore"
	"github.com/jonathan/studyforge/internal/server/ratelimit"
	"github.com/jonathan/studyforge/internal/types"
)

const (
	questionsReply = "<json_output>[" +
		`{"question": "What is 2 + 2?", "options": ["4", "3", "5", "22"], "correctAnswer": 0},` +
		`{"question": "What is 3 x 3?", "options": ["6", "9", "33", "1"], "correctAnswer": 1}` +
		"]</json_output>"
	topicsReply     = "<topic>\nArithmetic\n- What is 2 + 2?\n- What is 3 x 3?\n</topic>"
	difficultyReply = "<difficulty_levels>\nWhat is 2 + 2?: 1\nWhat is 3 x 3?: 2\n</difficulty_levels>"
	suggestionReply = "<strengths>\n- Addition\n</strengths><weaknesses>\n- Multiplication\n</weaknesses>" +
		"<suggestions><suggestion><title>Drill times tables</title><tips>\n- Ten minutes a day\n</tips></suggestion></suggestions>"
	planReply = "<study_plan><goals><goal>Learn multiplication</goal></goals>" +
		"<weekly_schedule><day><name>Monday</name><hours>2</hours></day><total_hours>2</total_hours></weekly_schedule>" +
		"<learning_objectives><week><objective>Times tables to 5</objective></week></learning_objectives></study_plan>"
)

// script answers model calls in order and repeats the last reply.
type script struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (s *script) Complete(_ context.Context, _ string, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.replies[min(s.calls-1, len(s.replies)-1)], nil
}

func (s *script) set(replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies, s.calls, s.err = replies, 0, nil
}

type testEnv struct {
	t       *testing.T
	store   *memstore.Store
	model   *script
	handler http.Handler
	jwt     *JWTService
	subject uuid.UUID
	token   string
}

func newTestEnv(t *testing.T, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()
	store := memstore.New()
	model := &script{replies: []string{""}}
	engine := extraction.NewEngine(extraction.Deps{
		Store:       idempotency.NewMemoryStore(),
		Locker:      idempotency.NewKeyedMutex(),
		Courses:     store,
		Questions:   store,
		Assessments: store,
		Plans:       store,
		Retry:       llm.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	jwt := newTestJWTService(24)
	subject := uuid.New()
	token, err := jwt.GenerateToken(subject)
	require.NoError(t, err)

	srv := New(Options{Store: store, Engine: engine, Model: model, JWT: jwt, Limiter: limiter})
	return &testEnv{t: t, store: store, model: model, handler: srv.Handler(), jwt: jwt, subject: subject, token: token}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	return e.doAs(e.token, method, path, body)
}

func (e *testEnv) doAs(token, method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// courseWithQuestions creates a course and generates its two questions.
func (e *testEnv) courseWithQuestions() (types.Course, []types.Question) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/courses", types.CreateCourseRequest{Title: "Arithmetic", Material: "Numbers."})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	course := decode[types.Course](e.t, rec)

	e.model.set(questionsReply, topicsReply, difficultyReply)
	rec = e.do(http.MethodPost, "/courses/"+course.ID.String()+"/questions", types.GenerateQuestionsRequest{NumQuestions: 2})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	questions, err := e.store.ListQuestions(context.Background(), course.ID)
	require.NoError(e.t, err)
	return course, questions
}

func (e *testEnv) submit(course types.Course, questions []types.Question) types.Assessment {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/assessments", types.SubmitAssessmentRequest{
		CourseID: course.ID,
		Answers: []types.AnswerInput{
			{QuestionID: questions[0].ID, Selected: 0},
			{QuestionID: questions[1].ID, Selected: 3},
		},
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[types.Assessment](e.t, rec)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.doAs("", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_BackendDown(t *testing.T) {
	srv := New(Options{
		Store: memstore.New(),
		JWT:   newTestJWTService(24),
		Ping:  func(context.Context) error { return errors.New("pool closed") },
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, token := range []string{"", "garbage"} {
		rec := env.doAs(token, http.MethodGet, "/courses", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "unauthorized")
	}
}

func TestCourses(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/courses", map[string]string{"title": "No material"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/courses", types.CreateCourseRequest{Title: "Arithmetic", Material: "Numbers."})
	require.Equal(t, http.StatusCreated, rec.Code)
	course := decode[types.Course](t, rec)
	assert.Equal(t, env.subject, course.SubjectID)

	rec = env.do(http.MethodGet, "/courses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[map[string][]types.Course](t, rec)
	require.Len(t, listed["courses"], 1)

	other, err := env.jwt.GenerateToken(uuid.New())
	require.NoError(t, err)
	rec = env.doAs(other, http.MethodGet, "/courses/"+course.ID.String()+"/questions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "courses of other subjects are hidden")

	rec = env.do(http.MethodGet, "/courses/not-a-uuid/questions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateQuestions_ChainsTopicsAndDifficulty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/courses", types.CreateCourseRequest{Title: "Arithmetic", Material: "Numbers."})
	course := decode[types.Course](t, rec)
	path := "/courses/" + course.ID.String() + "/questions"

	env.model.set(questionsReply, topicsReply, difficultyReply)
	rec = env.do(http.MethodPost, path, types.GenerateQuestionsRequest{NumQuestions: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 3, env.model.calls)

	var body struct {
		Accepted   []types.Question `json:"accepted"`
		Topics     json.RawMessage  `json:"topics"`
		Difficulty json.RawMessage  `json:"difficulty"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Accepted, 2)
	assert.Equal(t, "Arithmetic", body.Accepted[0].Topic)
	require.NotNil(t, body.Accepted[1].Difficulty)
	assert.Equal(t, 2, *body.Accepted[1].Difficulty)
	assert.NotEmpty(t, body.Topics)
	assert.NotEmpty(t, body.Difficulty)

	rec = env.do(http.MethodPost, path, types.GenerateQuestionsRequest{NumQuestions: 2})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"already_completed":true`)
	assert.Equal(t, 3, env.model.calls, "existing questions are served without a model call")

	rec = env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]types.Question](t, rec)["questions"], 2)
}

func TestGenerateQuestions_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/courses", types.CreateCourseRequest{Title: "Arithmetic", Material: "Numbers."})
	course := decode[types.Course](t, rec)

	for _, n := range []int{0, 21} {
		rec = env.do(http.MethodPost, "/courses/"+course.ID.String()+"/questions", types.GenerateQuestionsRequest{NumQuestions: n})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "num_questions=%d", n)
	}
	assert.Zero(t, env.model.calls)
}

func TestTopics_CourseWithoutQuestions(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/courses", types.CreateCourseRequest{Title: "Empty", Material: "Nothing yet."})
	course := decode[types.Course](t, rec)

	rec = env.do(http.MethodPost, "/courses/"+course.ID.String()+"/topics", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAssessments(t *testing.T) {
	env := newTestEnv(t, nil)
	course, questions := env.courseWithQuestions()

	a := env.submit(course, questions)
	assert.Equal(t, 1, a.Score)
	assert.Equal(t, 2, a.Total)

	rec := env.do(http.MethodGet, "/assessments/"+a.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.ID, decode[types.Assessment](t, rec).ID)

	other, err := env.jwt.GenerateToken(uuid.New())
	require.NoError(t, err)
	rec = env.doAs(other, http.MethodGet, "/assessments/"+a.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/assessments", types.SubmitAssessmentRequest{
		CourseID: course.ID,
		Answers:  []types.AnswerInput{{QuestionID: uuid.New(), Selected: 0}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown question")
}

func TestSuggestions(t *testing.T) {
	env := newTestEnv(t, nil)
	course, questions := env.courseWithQuestions()
	a := env.submit(course, questions)
	path := "/assessments/" + a.ID.String() + "/suggestions"

	env.model.set(suggestionReply)
	rec := env.do(http.MethodPost, path, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[extraction.Envelope[types.SuggestionSet]](t, rec)
	assert.Equal(t, []string{"Multiplication"}, body.Accepted.Weaknesses)

	rec = env.do(http.MethodPost, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.model.calls)
}

func TestSuggestions_TerminalExtractionError(t *testing.T) {
	env := newTestEnv(t, nil)
	course, questions := env.courseWithQuestions()
	a := env.submit(course, questions)

	env.model.set("<strengths>\n- Addition\n</strengths>")
	rec := env.do(http.MethodPost, "/assessments/"+a.ID.String()+"/suggestions", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[errorBody](t, rec)
	assert.Equal(t, extraction.PipelineSuggestions, body.Pipeline)
	assert.Equal(t, string(extraction.StageBlock), body.Stage)
}

func TestSuggestions_ModelUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	course, questions := env.courseWithQuestions()
	a := env.submit(course, questions)

	env.model.set("")
	env.model.err = errors.New("connection refused")
	rec := env.do(http.MethodPost, "/assessments/"+a.ID.String()+"/suggestions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "model unavailable")
}

func TestPlan(t *testing.T) {
	env := newTestEnv(t, nil)
	course, questions := env.courseWithQuestions()
	a := env.submit(course, questions)
	path := "/assessments/" + a.ID.String() + "/plan"

	rec := env.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no plan yet")

	bad := types.CreatePlanRequest{Goals: []string{"Pass"}, StartDate: "05/01/2026", EndDate: "2026-01-19", WeeklyHours: 4, AvailableDays: []string{"Monday"}}
	rec = env.do(http.MethodPost, path, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := types.CreatePlanRequest{Goals: []string{"Pass"}, StartDate: "2026-01-05", EndDate: "2026-01-19", WeeklyHours: 4, AvailableDays: []string{"monday"}}
	env.model.set(planReply)
	rec = env.do(http.MethodPost, path, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[extraction.Envelope[types.Plan]](t, rec)
	assert.Equal(t, []string{"Learn multiplication"}, created.Accepted.Plan.Goals)
	assert.Len(t, created.Accepted.Plan.WeeklyObjectives, 2)

	rec = env.do(http.MethodPost, path, req)
	assert.Equal(t, http.StatusOK, rec.Code, "plan already exists")
	assert.Equal(t, 1, env.model.calls)

	rec = env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[types.Plan](t, rec)
	assert.Equal(t, created.Accepted.ID, saved.ID)
	assert.Equal(t, "2026-01-05", saved.StartDate.Format(time.DateOnly))
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{{Pattern: "POST /courses", Limit: 1, Window: time.Hour, Burst: 1}},
	})
	t.Cleanup(limiter.Stop)
	env := newTestEnv(t, limiter)

	rec := env.do(http.MethodPost, "/courses", types.CreateCourseRequest{Title: "A", Material: "a"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = env.do(http.MethodPost, "/courses", types.CreateCourseRequest{Title: "B", Material: "b"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.doAs("", http.MethodOptions, "/courses", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
