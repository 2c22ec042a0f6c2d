/**
 * @description
 * This file defines the billable-session domain models for the commission-service.
 * A session is any schedulable revenue-generating group event on the platform: a
 * hosted group conversation or an instructor-led live class.
 *
 * @notes
 * - Session status transitions are strictly forward: SCHEDULED -> ACTIVE -> COMPLETED,
 *   or SCHEDULED -> CANCELLED. COMPLETED and CANCELLED are terminal.
 * - Monetary values use shopspring/decimal to avoid floating-point drift; the
 *   database stores them as numeric columns.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingMode determines how a session's revenue is derived.
type PricingMode string

const (
	// PricingCreditBased charges one fixed-value credit per confirmed participant.
	PricingCreditBased PricingMode = "CREDIT_BASED"
	// PricingFixed charges a flat price per confirmed booking.
	PricingFixed PricingMode = "FIXED"
)

// SessionStatus is the lifecycle state of a billable session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// IsTerminal reports whether no further status transitions are allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Session represents a billable group conversation or live class session.
// This struct maps directly to the `sessions` table.
type Session struct {
	ID uuid.UUID `json:"id"`
	// InstitutionID is nil for independent host conversations; instructor-led
	// class sessions always belong to an institution.
	InstitutionID    *uuid.UUID      `json:"institution_id,omitempty"`
	ProviderID       uuid.UUID       `json:"provider_id"`
	ProviderKind     ProviderKind    `json:"provider_kind"`
	Title            string          `json:"title"`
	Language         string          `json:"language,omitempty"`
	PricingMode      PricingMode     `json:"pricing_mode"`
	CreditUnitPrice  decimal.Decimal `json:"credit_unit_price"`
	FixedPrice       decimal.Decimal `json:"fixed_price"`
	Capacity         int             `json:"capacity"`
	MinParticipants  int             `json:"min_participants"`
	ScheduledStart   time.Time       `json:"scheduled_start"`
	ScheduledEnd     time.Time       `json:"scheduled_end"`
	Status           SessionStatus   `json:"status"`
	RecurringGroupID *uuid.UUID      `json:"recurring_group_id,omitempty"`
	// ConfirmedCount is derived from join/booking rows in a confirmed state,
	// never from raw registrations.
	ConfirmedCount int `json:"confirmed_count"`
	// LowAttendanceWarnedAt is set once by the attendance monitor so repeated
	// passes do not re-warn the same session.
	LowAttendanceWarnedAt *time.Time `json:"low_attendance_warned_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// ProviderKind distinguishes conversation hosts from class instructors. Tier
// tables are partitioned by kind.
type ProviderKind string

const (
	ProviderHost       ProviderKind = "host"
	ProviderInstructor ProviderKind = "instructor"
)

// Provider is the host or instructor responsible for billable sessions.
type Provider struct {
	ID          uuid.UUID    `json:"id"`
	Kind        ProviderKind `json:"kind"`
	DisplayName string       `json:"display_name"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Institution is a tenant on the marketplace. CommissionRate is the share of
// session revenue paid out to the institution's providers, in percent.
type Institution struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Plan           string          `json:"plan"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ActionLog is an append-only audit row recorded for automated state changes,
// such as a threshold cancellation performed by the attendance monitor.
type ActionLog struct {
	ID            uuid.UUID  `json:"id"`
	Action        string     `json:"action"`
	SessionID     *uuid.UUID `json:"session_id,omitempty"`
	Reason        string     `json:"reason"`
	AffectedCount int        `json:"affected_count"`
	CreatedAt     time.Time  `json:"created_at"`
}
