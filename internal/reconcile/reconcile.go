// Package reconcile joins extracted entries back to domain entities by exact
// canonical text.
//
// Matching is deliberately literal: a paraphrased entry is reported as unmatched
// instead of being guessed at, so results are deterministic and auditable.
package reconcile

import (
	"github.com/google/uuid"
)

// Reason explains why a candidate was not accepted.
type Reason string

const (
	// ReasonMiss means no entity has the candidate's text.
	ReasonMiss Reason = "MISS"
	// ReasonConflict means the entity already received a different value earlier
	// in the same batch.
	ReasonConflict Reason = "CONFLICT"
)

// Lookup resolves canonical text to an entity id.
type Lookup interface {
	FindByCanonicalText(text string) (uuid.UUID, bool)
}

// Candidate is an extracted value keyed by the text it claims to refer to.
type Candidate[V any] struct {
	Key   string
	Value V
}

// Unmatched is a candidate that could not be applied.
type Unmatched[V any] struct {
	Key    string `json:"key"`
	Value  V      `json:"value"`
	Reason Reason `json:"reason"`
}

// Result maps entity ids to derived values. Order lists the accepted ids in the
// order their candidates appeared.
type Result[V any] struct {
	Accepted  map[uuid.UUID]V
	Order     []uuid.UUID
	Unmatched []Unmatched[V]
}

// Reconcile applies candidates to entities in input order. The first value seen
// for an entity wins; an identical repeat is ignored and a different one is
// reported as a conflict. Zero matches is not an error.
func Reconcile[V comparable](candidates []Candidate[V], lookup Lookup) Result[V] {
	res := Result[V]{Accepted: make(map[uuid.UUID]V, len(candidates))}
	for _, c := range candidates {
		id, ok := lookup.FindByCanonicalText(c.Key)
		if !ok {
			res.Unmatched = append(res.Unmatched, Unmatched[V]{Key: c.Key, Value: c.Value, Reason: ReasonMiss})
			continue
		}
		if prev, seen := res.Accepted[id]; seen {
			if prev != c.Value {
				res.Unmatched = append(res.Unmatched, Unmatched[V]{Key: c.Key, Value: c.Value, Reason: ReasonConflict})
			}
			continue
		}
		res.Accepted[id] = c.Value
		res.Order = append(res.Order, id)
	}
	return res
}

// Index is an in-memory Lookup built from an entity listing. When two entities
// share a text the first one listed wins.
type Index map[string]uuid.UUID

// NewIndex builds an Index from entities using text to read each one's
// canonical text and id to read its identifier.
func NewIndex[E any](entities []E, text func(E) string, id func(E) uuid.UUID) Index {
	idx := make(Index, len(entities))
	for _, e := range entities {
		t := text(e)
		if _, exists := idx[t]; exists {
			continue
		}
		idx[t] = id(e)
	}
	return idx
}

// FindByCanonicalText implements Lookup.
func (idx Index) FindByCanonicalText(text string) (uuid.UUID, bool) {
	id, ok := idx[text]
	return id, ok
}
