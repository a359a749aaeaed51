// Package validation applies semantic rules to extraction candidates and request payloads.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/types"
)

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Validator checks candidates against struct tag rules plus the custom rules
// registered in New. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the custom "weekday" rule registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("weekday", isWeekday); err != nil {
		panic(fmt.Sprintf("register weekday validation: %v", err))
	}
	return &Validator{v: v}
}

func isWeekday(fl validator.FieldLevel) bool {
	return IsWeekday(fl.Field().String())
}

// IsWeekday reports whether s names a day of the week, ignoring case.
func IsWeekday(s string) bool {
	for _, d := range weekdays {
		if strings.EqualFold(d, strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

// Struct validates a request payload and returns the raw validator errors.
func (v *Validator) Struct(s any) error {
	return v.v.Struct(s)
}

// Check validates one candidate. It returns nil or a *defect.Defect of kind
// validation describing every failed rule.
func (v *Validator) Check(candidate any) error {
	err := v.v.Struct(candidate)
	if err == nil {
		return nil
	}
	d := defect.New(defect.KindValidation, defect.CodeRuleViolation, subjectOf(candidate), Describe(err))
	return &d
}

// Describe renders validator errors as a single readable message.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s failed '%s' (got %v)", fe.Field(), rule, fe.Value()))
	}
	return strings.Join(parts, "; ")
}

// subjectOf names the entry a defect refers to.
func subjectOf(candidate any) string {
	switch c := candidate.(type) {
	case types.Suggestion:
		return c.Title
	case *types.Suggestion:
		return c.Title
	case types.ScheduleEntry:
		return c.Day
	case *types.ScheduleEntry:
		return c.Day
	case types.DifficultyEntry:
		return c.QuestionText
	case *types.DifficultyEntry:
		return c.QuestionText
	case types.GeneratedQuestion:
		return c.Stem
	case *types.GeneratedQuestion:
		return c.Stem
	case types.TopicCluster:
		return c.Name
	case *types.TopicCluster:
		return c.Name
	case types.WeekObjectives:
		return fmt.Sprintf("week %d", c.Week)
	default:
		return ""
	}
}
