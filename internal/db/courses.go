package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/types"
)

// CreateCourse inserts a course, assigning an id when it has none.
func (db *DB) CreateCourse(ctx context.Context, c *types.Course) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO courses (id, subject_id, title, material, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.SubjectID, c.Title, c.Material, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	return nil
}

// GetCourse retrieves a course by id.
func (db *DB) GetCourse(ctx context.Context, id uuid.UUID) (*types.Course, error) {
	var c types.Course
	err := db.pool.QueryRow(ctx,
		`SELECT id, subject_id, title, material, created_at
		 FROM courses WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.SubjectID, &c.Title, &c.Material, &c.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: course %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}

// ListCourses returns the courses of a subject, newest first.
func (db *DB) ListCourses(ctx context.Context, subjectID uuid.UUID) ([]types.Course, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, subject_id, title, material, created_at
		 FROM courses WHERE subject_id = $1
		 ORDER BY created_at DESC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var out []types.Course
	for rows.Next() {
		var c types.Course
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.Title, &c.Material, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
