package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/studyforge/internal/types"
)

const questionColumns = `id, course_id, text, options, correct_option, COALESCE(topic, ''), difficulty, created_at`

func scanQuestion(row pgx.Row) (types.Question, error) {
	var q types.Question
	err := row.Scan(&q.ID, &q.CourseID, &q.Text, &q.Options, &q.CorrectOption, &q.Topic, &q.Difficulty, &q.CreatedAt)
	return q, err
}

// ListQuestions returns the questions of a course in insertion order.
func (db *DB) ListQuestions(ctx context.Context, courseID uuid.UUID) ([]types.Question, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE course_id = $1
		 ORDER BY position`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var out []types.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// InsertQuestions stores questions in one transaction and returns them with ids
// and creation times assigned.
func (db *DB) InsertQuestions(ctx context.Context, questions []types.Question) ([]types.Question, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]types.Question, 0, len(questions))
	for _, q := range questions {
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (id, course_id, position, text, options, correct_option)
			 VALUES ($1, $2,
			         (SELECT COALESCE(MAX(position) + 1, 0) FROM questions WHERE course_id = $2),
			         $3, $4, $5)
			 RETURNING created_at`,
			q.ID, q.CourseID, q.Text, q.Options, q.CorrectOption,
		).Scan(&q.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert question: %w", err)
		}
		out = append(out, q)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit questions: %w", err)
	}
	return out, nil
}

// SetTopics records the topic of each assigned question in one transaction.
// Nothing is written when any question is unknown.
func (db *DB) SetTopics(ctx context.Context, assignments []types.TopicAssignment) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, a := range assignments {
		batch.Queue(`UPDATE questions SET topic = $2 WHERE id = $1`, a.QuestionID, a.Topic)
	}
	br := tx.SendBatch(ctx, batch)
	for _, a := range assignments {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to set topic: %w", err)
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return fmt.Errorf("%w: question %s", types.ErrNotFound, a.QuestionID)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to set topics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit topics: %w", err)
	}
	return nil
}

// SetDifficulty records the difficulty level of one question.
func (db *DB) SetDifficulty(ctx context.Context, questionID uuid.UUID, level int) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE questions SET difficulty = $2 WHERE id = $1`,
		questionID, level,
	)
	if err != nil {
		return fmt.Errorf("failed to set difficulty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: question %s", types.ErrNotFound, questionID)
	}
	return nil
}
