// Package memstore keeps courses, questions, assessments and plans in process
// memory. It implements the same collaborator interfaces as the db package and
// backs tests and the offline CLI.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/types"
)

// Store is safe for concurrent use. Returned values are copies.
type Store struct {
	mu          sync.RWMutex
	courses     map[uuid.UUID]types.Course
	questions   map[uuid.UUID]types.Question
	order       map[uuid.UUID][]uuid.UUID // question ids per course in insertion order
	assessments map[uuid.UUID]types.Assessment
	plans       map[uuid.UUID]types.Plan // keyed by assessment id
	now         func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		courses:     make(map[uuid.UUID]types.Course),
		questions:   make(map[uuid.UUID]types.Question),
		order:       make(map[uuid.UUID][]uuid.UUID),
		assessments: make(map[uuid.UUID]types.Assessment),
		plans:       make(map[uuid.UUID]types.Plan),
		now:         time.Now,
	}
}

// CreateCourse stores c, assigning an id when it has none.
func (s *Store) CreateCourse(_ context.Context, c *types.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	s.courses[c.ID] = *c
	return nil
}

// GetCourse implements extraction.Courses.
func (s *Store) GetCourse(_ context.Context, id uuid.UUID) (*types.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return nil, fmt.Errorf("%w: course %s", types.ErrNotFound, id)
	}
	return &c, nil
}

// ListCourses returns the courses of a subject, newest first.
func (s *Store) ListCourses(_ context.Context, subjectID uuid.UUID) ([]types.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Course
	for _, c := range s.courses {
		if c.SubjectID == subjectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListQuestions returns the questions of a course in insertion order.
func (s *Store) ListQuestions(_ context.Context, courseID uuid.UUID) ([]types.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[courseID]
	out := make([]types.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyQuestion(s.questions[id]))
	}
	return out, nil
}

// InsertQuestions stores questions and returns them with ids assigned.
func (s *Store) InsertQuestions(_ context.Context, questions []types.Question) ([]types.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := s.courses[q.CourseID]; !ok {
			return nil, fmt.Errorf("%w: course %s", types.ErrNotFound, q.CourseID)
		}
	}
	for _, q := range questions {
		q = copyQuestion(q)
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.CreatedAt = s.now().UTC()
		s.questions[q.ID] = q
		s.order[q.CourseID] = append(s.order[q.CourseID], q.ID)
		out = append(out, copyQuestion(q))
	}
	return out, nil
}

// SetTopics records the topic of each assigned question. Nothing is written
// when any question is unknown.
func (s *Store) SetTopics(_ context.Context, assignments []types.TopicAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range assignments {
		if _, ok := s.questions[a.QuestionID]; !ok {
			return fmt.Errorf("%w: question %s", types.ErrNotFound, a.QuestionID)
		}
	}
	for _, a := range assignments {
		q := s.questions[a.QuestionID]
		q.Topic = a.Topic
		s.questions[a.QuestionID] = q
	}
	return nil
}

// SetDifficulty records the difficulty level of one question.
func (s *Store) SetDifficulty(_ context.Context, questionID uuid.UUID, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[questionID]
	if !ok {
		return fmt.Errorf("%w: question %s", types.ErrNotFound, questionID)
	}
	q.Difficulty = &level
	s.questions[questionID] = q
	return nil
}

// SaveAssessment stores a scored assessment, assigning an id when it has none.
func (s *Store) SaveAssessment(_ context.Context, a *types.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = s.now().UTC()
	}
	stored := *a
	stored.Answers = append([]types.Answer(nil), a.Answers...)
	s.assessments[a.ID] = stored
	return nil
}

// GetAssessment returns an assessment.
func (s *Store) GetAssessment(_ context.Context, id uuid.UUID) (*types.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assessments[id]
	if !ok {
		return nil, fmt.Errorf("%w: assessment %s", types.ErrNotFound, id)
	}
	a.Answers = append([]types.Answer(nil), a.Answers...)
	return &a, nil
}

// GetAssessmentReview implements extraction.Assessments.
func (s *Store) GetAssessmentReview(ctx context.Context, id uuid.UUID) (*types.AssessmentReview, error) {
	a, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	review := &types.AssessmentReview{Assessment: a}
	for _, ans := range a.Answers {
		if q, ok := s.questions[ans.QuestionID]; ok {
			review.Questions = append(review.Questions, copyQuestion(q))
		}
	}
	return review, nil
}

// SavePlan implements extraction.Plans. One plan is kept per assessment.
func (s *Store) SavePlan(_ context.Context, p *types.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.plans[p.AssessmentID] = *p
	return nil
}

// GetPlanByAssessment returns the plan built for an assessment.
func (s *Store) GetPlanByAssessment(_ context.Context, assessmentID uuid.UUID) (*types.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[assessmentID]
	if !ok {
		return nil, fmt.Errorf("%w: plan for assessment %s", types.ErrNotFound, assessmentID)
	}
	return &p, nil
}

func copyQuestion(q types.Question) types.Question {
	q.Options = append([]string(nil), q.Options...)
	if q.Difficulty != nil {
		level := *q.Difficulty
		q.Difficulty = &level
	}
	return q
}
