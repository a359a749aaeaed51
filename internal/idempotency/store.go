// Package idempotency guarantees that an extraction for a given entity and kind
// is computed and committed at most once, even when requests race.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConflict is returned by WriteResult when the stored version no longer
// matches the expected one.
var ErrConflict = errors.New("idempotency: concurrent write conflict")

// Kind names the extraction a record belongs to.
type Kind string

const (
	KindSuggestions Kind = "suggestions"
	KindStudyPlan   Kind = "study_plan"
	KindTopics      Kind = "topics"
	KindDifficulty  Kind = "difficulty"
	KindQuestions   Kind = "questions"
)

// Status is the lifecycle state of a stored record.
type Status string

const (
	// StatusRunning means a run holds the key. Other callers wait until it
	// finishes or until the claim is older than the lease.
	StatusRunning Status = "running"
	// StatusPending means the outcome was computed but its domain rows failed to
	// commit; the next request recomputes.
	StatusPending Status = "pending"
	// StatusCompleted means the outcome and its domain rows are durable.
	StatusCompleted Status = "completed"
	// StatusPartial means some domain rows failed to commit; the next request
	// recomputes.
	StatusPartial Status = "partial"
	// StatusFailed means the last run failed before producing an outcome.
	StatusFailed Status = "failed"
)

// emptyPayload is stored while no outcome exists yet.
var emptyPayload = json.RawMessage(`{}`)

// Key identifies one extraction.
type Key struct {
	EntityID uuid.UUID
	Kind     Kind
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.EntityID.String()
}

// Record is a persisted outcome. Version starts at 1 and grows by one with every
// successful write.
type Record struct {
	Payload   json.RawMessage
	Status    Status
	Version   int64
	UpdatedAt time.Time
}

// Store persists records with compare-and-set semantics.
type Store interface {
	// ReadPriorResult returns the stored record, or nil when none exists.
	ReadPriorResult(ctx context.Context, key Key) (*Record, error)
	// WriteResult stores rec if the current version equals expectedVersion
	// (0 meaning "no record yet") and returns ErrConflict otherwise.
	WriteResult(ctx context.Context, key Key, rec Record, expectedVersion int64) error
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]Record), now: time.Now}
}

// ReadPriorResult implements Store.
func (s *MemoryStore) ReadPriorResult(_ context.Context, key Key) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	rec.Payload = append(json.RawMessage(nil), rec.Payload...)
	return &rec, nil
}

// WriteResult implements Store.
func (s *MemoryStore) WriteResult(_ context.Context, key Key, rec Record, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[key]
	switch {
	case !ok && expectedVersion != 0:
		return fmt.Errorf("%w: %s has no record, expected version %d", ErrConflict, key, expectedVersion)
	case ok && current.Version != expectedVersion:
		return fmt.Errorf("%w: %s is at version %d, expected %d", ErrConflict, key, current.Version, expectedVersion)
	}

	rec.Version = expectedVersion + 1
	rec.UpdatedAt = s.now()
	rec.Payload = append(json.RawMessage(nil), rec.Payload...)
	s.records[key] = rec
	return nil
}
