//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// MaxQuestionsPerRequest caps how many questions one generation request may ask for.
const MaxQuestionsPerRequest = 20

// SuggestionRequest asks for remediation suggestions for an assessment.
type SuggestionRequest struct {
	AssessmentID uuid.UUID `json:"assessment_id" validate:"required"`
}

// PlanRequest asks for a study plan built from an assessment.
type PlanRequest struct {
	AssessmentID  uuid.UUID `json:"assessment_id" validate:"required"`
	Goals         []string  `json:"goals" validate:"min=1,dive,required"`
	StartDate     time.Time `json:"start_date" validate:"required"`
	EndDate       time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	WeeklyHours   float64   `json:"weekly_hours" validate:"gt=0,lte=168"`
	AvailableDays []string  `json:"available_days" validate:"min=1,max=7,dive,weekday"`
}

// Weeks returns the number of whole or partial weeks between StartDate and EndDate.
func (r *PlanRequest) Weeks() int {
	days := int(r.EndDate.Sub(r.StartDate).Hours() / 24)
	if days <= 0 {
		return 1
	}
	return (days + 6) / 7
}

// QuestionSetRequest asks for new questions for a course.
type QuestionSetRequest struct {
	CourseID     uuid.UUID `json:"course_id" validate:"required"`
	NumQuestions int       `json:"num_questions" validate:"min=1,max=20"`
}

// CourseRequest identifies the course a clustering or difficulty run applies to.
type CourseRequest struct {
	CourseID uuid.UUID `json:"course_id" validate:"required"`
}

// AnswerInput is one submitted answer.
type AnswerInput struct {
	QuestionID uuid.UUID `json:"question_id" validate:"required"`
	Selected   int       `json:"selected" validate:"min=0,max=3"`
}

// SubmitAssessmentRequest submits answers for grading.
type SubmitAssessmentRequest struct {
	CourseID uuid.UUID     `json:"course_id" validate:"required"`
	Answers  []AnswerInput `json:"answers" validate:"min=1,dive"`
}

// CreateCourseRequest registers course material.
type CreateCourseRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Material string `json:"material" validate:"required"`
}

// GenerateQuestionsRequest is the body of a question generation call.
type GenerateQuestionsRequest struct {
	NumQuestions int `json:"num_questions" validate:"min=1,max=20"`
}

// CreatePlanRequest is the body of a plan call. Dates are YYYY-MM-DD.
type CreatePlanRequest struct {
	Goals         []string `json:"goals"`
	StartDate     string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	WeeklyHours   float64  `json:"weekly_hours"`
	AvailableDays []string `json:"available_days"`
}
