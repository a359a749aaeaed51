// Package types provides type definitions for structured data used throughout the studyforge system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Suggestion is one remediation item produced for an assessment.
type Suggestion struct {
	Title string   `json:"title" validate:"required"`
	Tips  []string `json:"tips" validate:"min=1,max=5,dive,required"`
}

// SuggestionSet is the accepted result of the suggestion pipeline.
type SuggestionSet struct {
	Suggestions []Suggestion `json:"suggestions"`
	Strengths   []string     `json:"strengths"`
	Weaknesses  []string     `json:"weaknesses"`
}

// ScheduleEntry is the study time planned for one weekday.
type ScheduleEntry struct {
	Day   string  `json:"day" validate:"required,weekday"`
	Hours float64 `json:"hours" validate:"gte=0,lte=24"`
}

// WeekObjectives lists the learning objectives for one week of a plan.
// Week numbers are 1-based and follow the order the weeks were emitted in.
type WeekObjectives struct {
	Week       int      `json:"week" validate:"min=1"`
	Objectives []string `json:"objectives"`
}

// StudyPlan is the accepted result of the study-plan pipeline.
type StudyPlan struct {
	Goals            []string         `json:"goals"`
	Schedule         []ScheduleEntry  `json:"weekly_schedule"`
	TotalHours       float64          `json:"total_hours"` // sum of accepted schedule entries
	WeeklyObjectives []WeekObjectives `json:"learning_objectives"`
}

// TopicCluster groups question texts under a topic name.
type TopicCluster struct {
	Name    string   `json:"name" validate:"required"`
	Members []string `json:"members" validate:"min=1,dive,required"`
}

// DifficultyEntry is a difficulty level emitted for a question, keyed by the
// question's text.
type DifficultyEntry struct {
	QuestionText string `json:"question_text" validate:"required"`
	Level        int    `json:"level" validate:"min=1,max=5"`
}

// GeneratedQuestion is one multiple-choice question produced by the model.
type GeneratedQuestion struct {
	Stem          string   `json:"question" validate:"required"`
	Options       []string `json:"options" validate:"len=4,unique,dive,required"`
	CorrectOption int      `json:"correct_option" validate:"min=0,max=3"`
}
