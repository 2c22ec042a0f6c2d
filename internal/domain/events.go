package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionCancelledEvent is published after the attendance monitor commits a
// threshold cancellation. Delivery is best-effort; the cancellation itself
// never waits on the broker.
type SessionCancelledEvent struct {
	SessionID        uuid.UUID   `json:"session_id"`
	ProviderID       uuid.UUID   `json:"provider_id"`
	InstitutionID    *uuid.UUID  `json:"institution_id,omitempty"`
	ParticipantIDs   []uuid.UUID `json:"participant_ids"`
	ConfirmedCount   int         `json:"confirmed_count"`
	MinParticipants  int         `json:"min_participants"`
	Reason           string      `json:"reason"`
	CascadeCancelled int         `json:"cascade_cancelled"`
	OccurredAt       time.Time   `json:"occurred_at"`
}

// LowAttendanceWarningEvent is published when a session is under the soft
// warning threshold but above the hard-cancel threshold. No state changes.
type LowAttendanceWarningEvent struct {
	SessionID       uuid.UUID `json:"session_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	ConfirmedCount  int       `json:"confirmed_count"`
	MinParticipants int       `json:"min_participants"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// CommissionRecordedEvent is published after a new commission record commits.
// Replayed calculations return the existing record and publish nothing.
type CommissionRecordedEvent struct {
	CommissionID uuid.UUID `json:"commission_id"`
	SessionID    uuid.UUID `json:"session_id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	Amount       string    `json:"amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TierChangedEvent is published when a recalculation moves a provider to a
// different tier. Tier names are included so notification consumers do not
// need a tier lookup of their own; PreviousTierName is empty when the old
// tier definition no longer resolves.
type TierChangedEvent struct {
	ProviderID       uuid.UUID `json:"provider_id"`
	PreviousTierID   uuid.UUID `json:"previous_tier_id"`
	PreviousTierName string    `json:"previous_tier_name,omitempty"`
	NewTierID        uuid.UUID `json:"new_tier_id"`
	NewTierName      string    `json:"new_tier_name"`
	CompletedCount   int       `json:"completed_count"`
	OccurredAt       time.Time `json:"occurred_at"`
}
