package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/types"
)

// SaveAssessment stores a scored assessment and its answers in one transaction.
func (db *DB) SaveAssessment(ctx context.Context, a *types.Assessment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = time.Now().UTC()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO assessments (id, subject_id, course_id, score, total, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.SubjectID, a.CourseID, a.Score, a.Total, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	for i, ans := range a.Answers {
		_, err = tx.Exec(ctx,
			`INSERT INTO assessment_answers (assessment_id, question_id, position, selected, correct)
			 VALUES ($1, $2, $3, $4, $5)`,
			a.ID, ans.QuestionID, i, ans.Selected, ans.Correct,
		)
		if err != nil {
			return fmt.Errorf("failed to insert answer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit assessment: %w", err)
	}
	return nil
}

// GetAssessment retrieves an assessment with its answers in submission order.
func (db *DB) GetAssessment(ctx context.Context, id uuid.UUID) (*types.Assessment, error) {
	var a types.Assessment
	err := db.pool.QueryRow(ctx,
		`SELECT id, subject_id, course_id, score, total, completed_at
		 FROM assessments WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.SubjectID, &a.CourseID, &a.Score, &a.Total, &a.CompletedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: assessment %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT question_id, selected, correct
		 FROM assessment_answers WHERE assessment_id = $1
		 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	a.Answers = []types.Answer{}
	for rows.Next() {
		var ans types.Answer
		if err := rows.Scan(&ans.QuestionID, &ans.Selected, &ans.Correct); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		a.Answers = append(a.Answers, ans)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return &a, nil
}

// GetAssessmentReview retrieves an assessment together with the questions it
// answered, in answer order.
func (db *DB) GetAssessmentReview(ctx context.Context, id uuid.UUID) (*types.AssessmentReview, error) {
	a, err := db.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT q.id, q.course_id, q.text, q.options, q.correct_option, COALESCE(q.topic, ''), q.difficulty, q.created_at
		 FROM assessment_answers aa
		 JOIN questions q ON q.id = aa.question_id
		 WHERE aa.assessment_id = $1
		 ORDER BY aa.position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list answered questions: %w", err)
	}
	defer rows.Close()

	review := &types.AssessmentReview{Assessment: a}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		review.Questions = append(review.Questions, q)
	}
	return review, rows.Err()
}
