// Package assessment scores answer submissions against a course's questions.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/types"
)

var (
	// ErrTooManyAnswers is returned when a submission has more answers than the
	// course has questions.
	ErrTooManyAnswers = errors.New("more answers than questions")
	// ErrUnknownQuestion is returned when an answer refers to a question outside
	// the course.
	ErrUnknownQuestion = errors.New("answer refers to an unknown question")
	// ErrDuplicateAnswer is returned when a question is answered twice.
	ErrDuplicateAnswer = errors.New("question answered more than once")
)

// Score grades answers against questions. The score is the number of correct
// answers and the total is the number of questions in the course, answered or
// not.
func Score(questions []types.Question, answers []types.AnswerInput) (score int, graded []types.Answer, err error) {
	if len(answers) > len(questions) {
		return 0, nil, fmt.Errorf("%w: %d answers for %d questions", ErrTooManyAnswers, len(answers), len(questions))
	}

	byID := make(map[uuid.UUID]types.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	seen := make(map[uuid.UUID]bool, len(answers))
	graded = make([]types.Answer, 0, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return 0, nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, a.QuestionID)
		}
		if seen[a.QuestionID] {
			return 0, nil, fmt.Errorf("%w: %s", ErrDuplicateAnswer, a.QuestionID)
		}
		seen[a.QuestionID] = true

		correct := q.CorrectOption == a.Selected
		if correct {
			score++
		}
		graded = append(graded, types.Answer{QuestionID: a.QuestionID, Selected: a.Selected, Correct: correct})
	}
	return score, graded, nil
}

// Repository is the persistence the service needs.
type Repository interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*types.Course, error)
	ListQuestions(ctx context.Context, courseID uuid.UUID) ([]types.Question, error)
	SaveAssessment(ctx context.Context, a *types.Assessment) error
	GetAssessment(ctx context.Context, id uuid.UUID) (*types.Assessment, error)
}

// Service submits and reads assessments on behalf of a subject.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Submit scores and stores a submission for a course owned by subjectID.
func (s *Service) Submit(ctx context.Context, subjectID uuid.UUID, req types.SubmitAssessmentRequest) (*types.Assessment, error) {
	course, err := s.repo.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if course.SubjectID != subjectID {
		return nil, fmt.Errorf("%w: course %s", types.ErrNotFound, req.CourseID)
	}

	questions, err := s.repo.ListQuestions(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	score, graded, err := Score(questions, req.Answers)
	if err != nil {
		return nil, err
	}

	a := &types.Assessment{
		ID:          uuid.New(),
		SubjectID:   subjectID,
		CourseID:    req.CourseID,
		Score:       score,
		Total:       len(questions),
		Answers:     graded,
		CompletedAt: s.now().UTC(),
	}
	if err := s.repo.SaveAssessment(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save assessment: %w", err)
	}
	return a, nil
}

// Get returns an assessment owned by subjectID.
func (s *Service) Get(ctx context.Context, subjectID, id uuid.UUID) (*types.Assessment, error) {
	a, err := s.repo.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.SubjectID != subjectID {
		return nil, fmt.Errorf("%w: assessment %s", types.ErrNotFound, id)
	}
	return a, nil
}
