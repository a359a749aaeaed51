package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/normalize"
	"github.com/jonathan/studyforge/internal/prompts"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

const dateLayout = "2006-01-02"

// StudyPlanPipeline builds a weekly study plan from an assessment and the
// student's study parameters.
type StudyPlanPipeline struct {
	deps  Deps
	guard *idempotency.Guard[types.Plan]
	now   func() time.Time
}

// NewStudyPlanPipeline creates the pipeline.
func NewStudyPlanPipeline(d Deps) *StudyPlanPipeline {
	d = d.withDefaults()
	return &StudyPlanPipeline{
		deps:  d,
		guard: idempotency.NewGuard(d.Store, PlanComplete, guardOptions(d, PipelineStudyPlan)...),
		now:   time.Now,
	}
}

// PlanComplete reports whether a stored plan can be served as is.
func PlanComplete(p types.Plan) bool {
	return len(p.Plan.Schedule) > 0
}

// Run returns the plan for req.AssessmentID. A plan that already exists is
// returned with AlreadyCompleted set, whatever the new request parameters are.
func (p *StudyPlanPipeline) Run(ctx context.Context, model llm.Completer, req types.PlanRequest) (env *Envelope[types.Plan], err error) {
	ctx, span := startRun(ctx, PipelineStudyPlan, req.AssessmentID)
	defer func() { finishRun(span, env, err) }()

	log := p.deps.Log.With("pipeline", PipelineStudyPlan, "entity_id", req.AssessmentID.String())
	key := idempotency.Key{EntityID: req.AssessmentID, Kind: idempotency.KindStudyPlan}

	compute := func(ctx context.Context) (idempotency.Outcome[types.Plan], error) {
		var zero idempotency.Outcome[types.Plan]
		review, err := p.deps.Assessments.GetAssessmentReview(ctx, req.AssessmentID)
		if err != nil {
			return zero, fail(PipelineStudyPlan, StageLoad, err)
		}
		prompt, err := p.prompt(ctx, review, req)
		if err != nil {
			return zero, fail(PipelineStudyPlan, StagePrompt, err)
		}
		text, err := complete(ctx, p.deps, log, PipelineStudyPlan, model, prompt, p.deps.MaxTokens)
		if err != nil {
			return zero, err
		}
		extracted, err := ExtractStudyPlan(text, p.deps.Validator, req.Weeks())
		if err != nil {
			return zero, err
		}
		plan := extracted.Accepted
		if len(plan.Goals) == 0 {
			plan.Goals = append([]string{}, req.Goals...)
		}
		return idempotency.Outcome[types.Plan]{
			Accepted: types.Plan{
				ID:           uuid.New(),
				AssessmentID: req.AssessmentID,
				SubjectID:    review.Assessment.SubjectID,
				StartDate:    req.StartDate,
				EndDate:      req.EndDate,
				Plan:         plan,
				CreatedAt:    p.now().UTC(),
			},
			Defects: extracted.Defects,
		}, nil
	}

	commit := func(ctx context.Context, out *idempotency.Outcome[types.Plan]) (bool, error) {
		if err := p.deps.Plans.SavePlan(ctx, &out.Accepted); err != nil {
			return false, fail(PipelineStudyPlan, StageCommit, err)
		}
		return false, nil
	}

	out, err := p.guard.Run(ctx, key, compute, commit)
	if err != nil {
		log.Error("study plan extraction failed", "error", err)
		return nil, fail(PipelineStudyPlan, StageGuard, err)
	}
	log.Info("study plan ready", "days", len(out.Accepted.Plan.Schedule), "defects", len(out.Defects), "cached", out.AlreadyCompleted)
	return envelope(out), nil
}

type studyParameters struct {
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	WeeklyHours   float64  `json:"weekly_hours"`
	AvailableDays []string `json:"available_days"`
}

type studentInfo struct {
	Score       int                `json:"score"`
	Total       int                `json:"total"`
	Strengths   []string           `json:"strengths"`
	Weaknesses  []string           `json:"weaknesses"`
	Suggestions []types.Suggestion `json:"suggestions"`
	Goals       []string           `json:"goals"`
}

func (p *StudyPlanPipeline) prompt(ctx context.Context, review *types.AssessmentReview, req types.PlanRequest) (string, error) {
	info := studentInfo{
		Score: review.Assessment.Score,
		Total: review.Assessment.Total,
		Goals: req.Goals,
	}
	if set, ok := p.storedSuggestions(ctx, req.AssessmentID); ok {
		info.Strengths = set.Strengths
		info.Weaknesses = set.Weaknesses
		info.Suggestions = set.Suggestions
	}
	days := make([]string, 0, len(req.AvailableDays))
	for _, d := range req.AvailableDays {
		days = append(days, normalize.DayName(d))
	}

	student, err := promptJSON(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode student info: %w", err)
	}
	params, err := promptJSON(studyParameters{
		StartDate:     req.StartDate.Format(dateLayout),
		EndDate:       req.EndDate.Format(dateLayout),
		WeeklyHours:   req.WeeklyHours,
		AvailableDays: days,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode study parameters: %w", err)
	}
	return prompts.Render(prompts.Extraction, prompts.KeyStudyPlan, map[string]string{
		"StudentInfo":     student,
		"StudyParameters": params,
		"Weeks":           strconv.Itoa(req.Weeks()),
	})
}

// storedSuggestions reads the suggestion outcome of the same assessment, if
// one was completed earlier.
func (p *StudyPlanPipeline) storedSuggestions(ctx context.Context, assessmentID uuid.UUID) (types.SuggestionSet, bool) {
	rec, err := p.deps.Store.ReadPriorResult(ctx, idempotency.Key{EntityID: assessmentID, Kind: idempotency.KindSuggestions})
	if err != nil || rec == nil || rec.Status != idempotency.StatusCompleted {
		return types.SuggestionSet{}, false
	}
	var out idempotency.Outcome[types.SuggestionSet]
	if err := json.Unmarshal(rec.Payload, &out); err != nil {
		return types.SuggestionSet{}, false
	}
	return out.Accepted, true
}

// ExtractStudyPlan parses, normalizes and validates a study-plan completion.
// Every block is optional; the plan is padded to weeks weeks. It fails only when
// no goal, schedule entry or objective survives.
func ExtractStudyPlan(text string, v *validation.Validator, weeks int) (idempotency.Outcome[types.StudyPlan], error) {
	var out idempotency.Outcome[types.StudyPlan]
	root, err := parse(PipelineStudyPlan, text)
	if err != nil {
		return out, err
	}

	var report defect.Report
	plan := types.StudyPlan{
		Goals:    nonNil(normalize.Goals(root)),
		Schedule: []types.ScheduleEntry{},
	}

	if sched, ok := root.Find("weekly_schedule"); ok {
		entries, ds := normalize.Schedule(sched)
		report.Add(ds...)
		entries, ds = v.Schedule(entries)
		report.Add(ds...)

		totalBlock, _ := sched.Child("total_hours")
		declared, hasDeclared, d := normalize.DeclaredTotal(totalBlock)
		if d != nil {
			report.Add(*d)
		}
		sum, d := validation.ScheduleTotal(entries, declared, hasDeclared)
		if d != nil {
			report.Add(*d)
		}
		plan.Schedule = nonNil(entries)
		plan.TotalHours = sum
	} else {
		report.Add(defect.New(defect.KindNormalize, defect.CodeMissingTag, "weekly_schedule", "<weekly_schedule> block not found"))
	}

	var objectives []types.WeekObjectives
	if lo, ok := root.Find("learning_objectives"); ok {
		var ds []defect.Defect
		objectives, ds = v.Weeks(normalize.WeeklyObjectives(lo))
		report.Add(ds...)
	} else {
		report.Add(defect.New(defect.KindNormalize, defect.CodeMissingTag, "learning_objectives", "<learning_objectives> block not found"))
	}

	if len(plan.Goals) == 0 && len(plan.Schedule) == 0 && !anyObjectives(objectives) {
		return out, &Error{
			Pipeline: PipelineStudyPlan,
			Stage:    StageBlock,
			Err:      fmt.Errorf("%w: %d defects", ErrNothingExtracted, report.Len()),
		}
	}

	plan.WeeklyObjectives = normalize.PadWeeks(objectives, weeks)
	out.Accepted = plan
	out.Defects = report.Defects
	return out, nil
}

func anyObjectives(weeks []types.WeekObjectives) bool {
	for _, w := range weeks {
		if len(w.Objectives) > 0 {
			return true
		}
	}
	return false
}
