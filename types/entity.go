// Package types provides common types used across subpay.
package types

import "time"

// Entity carries the bookkeeping timestamps embedded in every stored record.
// Timestamps come from the engine clock so that simulated runs stay
// deterministic.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity created and updated at the given instant.
func NewEntity(at time.Time) Entity {
	at = at.UTC()
	return Entity{CreatedAt: at, UpdatedAt: at}
}

// Touch sets UpdatedAt.
func (e *Entity) Touch(at time.Time) {
	e.UpdatedAt = at.UTC()
}

// LastModified returns how long before now the entity was last updated.
func (e Entity) LastModified(now time.Time) time.Duration {
	return now.Sub(e.UpdatedAt)
}
