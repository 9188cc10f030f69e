// Package verification implements the Verification Service's core: the
// domain model, Postgres persistence, and the ingest-delay-emit pipeline.
package verification

import (
	"time"

	"github.com/google/uuid"

	"github.com/protocol-bank/wallet-onboarding/internal/domain"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusFailed   Status = "FAILED"
)

// Verification is one attempt for a (user_id, network) pair.
type Verification struct {
	ID           uuid.UUID
	UserID       string
	Network      domain.Network
	DocumentHash [32]byte
	Status       Status
	CreatedAt    time.Time
	VerifiedAt   *time.Time
}

// MarkVerified mutates the in-memory model to VERIFIED, enforcing the
// invariant that verified_at is set and never precedes created_at.
func (v *Verification) MarkVerified(at time.Time) {
	if at.Before(v.CreatedAt) {
		at = v.CreatedAt
	}
	v.Status = StatusVerified
	v.VerifiedAt = &at
}
