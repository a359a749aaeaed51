package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/types"
)

// SavePlan stores the plan of an assessment, replacing an earlier one.
func (db *DB) SavePlan(ctx context.Context, p *types.Plan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	planJSON, err := json.Marshal(p.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO plans (id, assessment_id, subject_id, start_date, end_date, plan)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (assessment_id) DO UPDATE SET
		     id = EXCLUDED.id,
		     start_date = EXCLUDED.start_date,
		     end_date = EXCLUDED.end_date,
		     plan = EXCLUDED.plan,
		     created_at = NOW()
		 RETURNING created_at`,
		p.ID, p.AssessmentID, p.SubjectID, p.StartDate, p.EndDate, planJSON,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// GetPlanByAssessment retrieves the plan built for an assessment.
func (db *DB) GetPlanByAssessment(ctx context.Context, assessmentID uuid.UUID) (*types.Plan, error) {
	var (
		p        types.Plan
		planJSON []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, assessment_id, subject_id, start_date, end_date, plan, created_at
		 FROM plans WHERE assessment_id = $1`,
		assessmentID,
	).Scan(&p.ID, &p.AssessmentID, &p.SubjectID, &p.StartDate, &p.EndDate, &planJSON, &p.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: plan for assessment %s", types.ErrNotFound, assessmentID)
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if err := json.Unmarshal(planJSON, &p.Plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	return &p, nil
}
