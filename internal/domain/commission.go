/**
 * @description
 * This file defines the commission ledger and tier domain models. A commission
 * record is the ledger entry representing a provider's earned share of a
 * session's revenue; tiers are named commission-rate bands keyed to a
 * provider's cumulative completed-session count.
 *
 * @notes
 * - Commission records are uniquely keyed by (session_id, provider_id) at the
 *   database level; creation is idempotent.
 * - The metadata snapshot is a typed struct rather than a free-form map so the
 *   shape is validated before persistence.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionStatus is the lifecycle state of a commission record.
// Transitions are strictly forward: PENDING -> APPROVED -> PAID. PAID is terminal.
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "PENDING"
	CommissionApproved CommissionStatus = "APPROVED"
	CommissionPaid     CommissionStatus = "PAID"
)

// CanTransitionTo reports whether moving from s to next is a legal forward step.
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	switch s {
	case CommissionPending:
		return next == CommissionApproved
	case CommissionApproved:
		return next == CommissionPaid
	default:
		return false
	}
}

// CommissionSnapshot freezes the inputs of a commission calculation at record
// creation, so later edits to the session never retroactively change an
// already-computed amount.
type CommissionSnapshot struct {
	ParticipantCount int         `json:"participant_count"`
	PricingMode      PricingMode `json:"pricing_mode"`
	RateApplied      string      `json:"rate_applied"`
	ComputedAt       time.Time   `json:"computed_at"`
}

// CommissionRecord maps to the `commission_records` table, unique on
// (session_id, provider_id).
type CommissionRecord struct {
	ID         uuid.UUID          `json:"id"`
	SessionID  uuid.UUID          `json:"session_id"`
	ProviderID uuid.UUID          `json:"provider_id"`
	Revenue    decimal.Decimal    `json:"revenue"`
	Rate       decimal.Decimal    `json:"rate"`
	Amount     decimal.Decimal    `json:"amount"`
	Status     CommissionStatus   `json:"status"`
	Snapshot   CommissionSnapshot `json:"snapshot"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// CommissionTier is a named commission-rate band. Tiers of one provider kind
// form a non-overlapping partition of completed-session counts, with
// inclusive-lower/exclusive-upper boundaries and an unbounded top tier.
type CommissionTier struct {
	ID               uuid.UUID       `json:"id"`
	TierName         string          `json:"tier_name"`
	DisplayName      string          `json:"display_name"`
	ProviderKind     ProviderKind    `json:"provider_kind"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	MinActivityCount int             `json:"min_activity_count"`
	// MaxActivityCount is exclusive; nil means unbounded (the top tier).
	MaxActivityCount *int      `json:"max_activity_count,omitempty"`
	IsActive         bool      `json:"is_active"`
	EffectiveDate    time.Time `json:"effective_date"`
	Requirements     string    `json:"requirements,omitempty"`
	Benefits         string    `json:"benefits,omitempty"`
}

// Contains reports whether count falls inside the tier's [min, max) band.
func (t CommissionTier) Contains(count int) bool {
	if count < t.MinActivityCount {
		return false
	}
	return t.MaxActivityCount == nil || count < *t.MaxActivityCount
}

// TierAssignment is the current provider -> tier mapping. Latest overwrites;
// history is not versioned.
type TierAssignment struct {
	ProviderID uuid.UUID `json:"provider_id"`
	TierID     uuid.UUID `json:"tier_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// TierStatus is the read model returned to a provider asking where they stand.
type TierStatus struct {
	CurrentTier          CommissionTier  `json:"current_tier"`
	CompletedCount       int             `json:"completed_count"`
	ProgressPercent      int             `json:"progress_percent"`
	NextTier             *CommissionTier `json:"next_tier,omitempty"`
	NextTierRequirements string          `json:"next_tier_requirements"`
	Benefits             string          `json:"benefits"`
}

// RateChangeLog is an append-only audit row written atomically with an
// institution rate update. Never created for a no-op change.
type RateChangeLog struct {
	ID            uuid.UUID       `json:"id"`
	InstitutionID uuid.UUID       `json:"institution_id"`
	PreviousRate  decimal.Decimal `json:"previous_rate"`
	NewRate       decimal.Decimal `json:"new_rate"`
	ChangedBy     uuid.UUID       `json:"changed_by"`
	ChangedByName string          `json:"changed_by_name,omitempty"`
	Reason        string          `json:"reason"`
	ChangedAt     time.Time       `json:"changed_at"`
}
