/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the commission-service. By defining an interface,
 * we decouple the engine's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For monetary values.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/learnsphere/commission-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Session methods
	FindSessionByID(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)
	CountCompletedSessionsByProvider(ctx context.Context, providerID uuid.UUID) (int, error)
	// FindScheduledSessionsStartingBetween returns SCHEDULED sessions whose start
	// time falls inside [from, to), with confirmed participant counts attached.
	FindScheduledSessionsStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Session, error)
	// CancelSessionIfScheduled transitions a session to CANCELLED only if it is
	// still SCHEDULED. Returns false when the guard did not match, which makes
	// repeated monitor passes a no-op.
	CancelSessionIfScheduled(ctx context.Context, sessionID uuid.UUID) (bool, error)
	// CancelFutureRecurringSessions cascade-cancels SCHEDULED instances of the
	// same recurring group starting after the given time. Returns the number of
	// rows transitioned.
	CancelFutureRecurringSessions(ctx context.Context, recurringGroupID uuid.UUID, after time.Time) (int64, error)
	// MarkSessionWarnedIfUnwarned sets the low-attendance warning marker only if
	// the session is still SCHEDULED and unwarned; repeated passes get false.
	MarkSessionWarnedIfUnwarned(ctx context.Context, sessionID uuid.UUID) (bool, error)
	FindConfirmedParticipantIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error)

	// Provider methods
	FindProviderByID(ctx context.Context, providerID uuid.UUID) (*domain.Provider, error)

	// Commission ledger methods
	// CreateCommissionRecord inserts a new record. A unique constraint on
	// (session_id, provider_id) enforces idempotency; on conflict the method
	// returns ErrCommissionExists and the caller fetches the existing row.
	CreateCommissionRecord(ctx context.Context, rec *domain.CommissionRecord) error
	FindCommissionBySessionAndProvider(ctx context.Context, sessionID, providerID uuid.UUID) (*domain.CommissionRecord, error)
	FindCommissionByID(ctx context.Context, commissionID uuid.UUID) (*domain.CommissionRecord, error)
	ListCommissionsByProvider(ctx context.Context, providerID uuid.UUID, limit int) ([]domain.CommissionRecord, error)
	// TransitionCommissionStatus applies a guarded forward transition. The UPDATE
	// matches on the expected current status; zero rows means the record is
	// missing or the transition is illegal.
	TransitionCommissionStatus(ctx context.Context, commissionID uuid.UUID, from, to domain.CommissionStatus) error

	// Tier methods
	ListActiveTiers(ctx context.Context, kind domain.ProviderKind) ([]domain.CommissionTier, error)
	FindTierByID(ctx context.Context, tierID uuid.UUID) (*domain.CommissionTier, error)
	UpsertTierAssignment(ctx context.Context, assignment domain.TierAssignment) error
	FindTierAssignment(ctx context.Context, providerID uuid.UUID) (*domain.TierAssignment, error)

	// Institution rate methods
	FindInstitutionByID(ctx context.Context, institutionID uuid.UUID) (*domain.Institution, error)
	// UpdateInstitutionRateWithLog updates the institution's commission rate and
	// inserts a rate-change log row in one transaction. When newRate equals the
	// current rate it performs no write and returns a nil log entry.
	UpdateInstitutionRateWithLog(ctx context.Context, institutionID uuid.UUID, newRate decimal.Decimal, reason string, changedBy uuid.UUID) (*domain.Institution, *domain.RateChangeLog, error)
	ListRateChangeLogs(ctx context.Context, institutionID uuid.UUID, limit int) ([]domain.RateChangeLog, error)

	// Action log methods
	InsertActionLog(ctx context.Context, entry domain.ActionLog) error

	// Revenue read methods
	SumCompletedPayments(ctx context.Context, start, end time.Time) (decimal.Decimal, int, error)
	SumCommissionAmounts(ctx context.Context, start, end time.Time) (decimal.Decimal, error)
	BreakdownCompletedPayments(ctx context.Context, start, end time.Time, dimension domain.BreakdownDimension) ([]domain.RevenueBucket, error)
}
