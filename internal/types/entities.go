//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// Course is a body of study material that questions are generated from.
type Course struct {
	ID        uuid.UUID `json:"id"`
	SubjectID uuid.UUID `json:"subject_id"`
	Title     string    `json:"title"`
	Material  string    `json:"-"` // extracted text of the course material
	CreatedAt time.Time `json:"created_at"`
}

// Question is a persisted multiple-choice question. Text is the canonical text
// that model output is reconciled against.
type Question struct {
	ID            uuid.UUID `json:"id"`
	CourseID      uuid.UUID `json:"course_id"`
	Text          string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectOption int       `json:"-"`
	Topic         string    `json:"topic,omitempty"`
	Difficulty    *int      `json:"difficulty,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Answer is one graded response within an assessment.
type Answer struct {
	QuestionID uuid.UUID `json:"question_id"`
	Selected   int       `json:"selected"`
	Correct    bool      `json:"correct"`
}

// Assessment is a scored submission of answers for a course.
type Assessment struct {
	ID          uuid.UUID `json:"id"`
	SubjectID   uuid.UUID `json:"subject_id"`
	CourseID    uuid.UUID `json:"course_id"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Answers     []Answer  `json:"answers"`
	CompletedAt time.Time `json:"completed_at"`
}

// Plan is a persisted study plan for an assessment.
type Plan struct {
	ID           uuid.UUID `json:"id"`
	AssessmentID uuid.UUID `json:"assessment_id"`
	SubjectID    uuid.UUID `json:"subject_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Plan         StudyPlan `json:"plan"`
	CreatedAt    time.Time `json:"created_at"`
}

// AssessmentReview is the subset of an assessment that prompts are built from.
type AssessmentReview struct {
	Assessment *Assessment
	Questions  []Question // the questions that were answered, in answer order
}

// Missed returns the questions that were answered incorrectly.
func (r *AssessmentReview) Missed() []Question {
	correct := make(map[uuid.UUID]bool, len(r.Assessment.Answers))
	for _, a := range r.Assessment.Answers {
		correct[a.QuestionID] = a.Correct
	}
	var out []Question
	for _, q := range r.Questions {
		if !correct[q.ID] {
			out = append(out, q)
		}
	}
	return out
}
