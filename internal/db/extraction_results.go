package db

import (
	"context"
	"fmt"

	"github.com/jonathan/studyforge/internal/idempotency"
)

// ReadPriorResult implements idempotency.Store.
func (db *DB) ReadPriorResult(ctx context.Context, key idempotency.Key) (*idempotency.Record, error) {
	var (
		rec     idempotency.Record
		status  string
		payload []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT payload, status, version, updated_at
		 FROM extraction_results
		 WHERE entity_id = $1 AND kind = $2`,
		key.EntityID, string(key.Kind),
	).Scan(&payload, &status, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read extraction result: %w", err)
	}
	rec.Status = idempotency.Status(status)
	rec.Payload = payload
	return &rec, nil
}

// WriteResult implements idempotency.Store. An expectedVersion of 0 inserts;
// anything else updates only the row still at that version.
func (db *DB) WriteResult(ctx context.Context, key idempotency.Key, rec idempotency.Record, expectedVersion int64) error {
	if expectedVersion == 0 {
		tag, err := db.pool.Exec(ctx,
			`INSERT INTO extraction_results (entity_id, kind, status, version, payload)
			 VALUES ($1, $2, $3, 1, $4)
			 ON CONFLICT (entity_id, kind) DO NOTHING`,
			key.EntityID, string(key.Kind), string(rec.Status), []byte(rec.Payload),
		)
		if err != nil {
			return fmt.Errorf("failed to insert extraction result: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s already exists", idempotency.ErrConflict, key)
		}
		return nil
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE extraction_results
		 SET status = $3, payload = $4, version = version + 1, updated_at = NOW()
		 WHERE entity_id = $1 AND kind = $2 AND version = $5`,
		key.EntityID, string(key.Kind), string(rec.Status), []byte(rec.Payload), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update extraction result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s is no longer at version %d", idempotency.ErrConflict, key, expectedVersion)
	}
	return nil
}

var _ idempotency.Store = (*DB)(nil)
