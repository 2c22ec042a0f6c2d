/**
 * @description
 * This file contains the core business logic for the commission-service. The
 * `Service` struct orchestrates the commission ledger and the institution rate
 * audit log, coordinating between the database repository, the tier engine,
 * and the message broker.
 *
 * Key features:
 * - Idempotent commission recording keyed by (session, provider): a uniqueness
 *   conflict from the store is treated as "fetch and return existing", never
 *   as an error, so correctness does not depend on request timing.
 * - A frozen metadata snapshot on each record, so later edits to a session do
 *   not retroactively change an already-computed commission.
 * - Strictly forward commission status transitions (PENDING -> APPROVED -> PAID).
 * - Atomic institution rate updates paired with an audit log row.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For best-effort event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/learnsphere/commission-service/internal/domain"
	"github.com/learnsphere/commission-service/internal/store"
	"github.com/learnsphere/commission-service/pkg/rabbitmq"
)

var (
	ErrSessionCancelled    = errors.New("cancelled sessions never produce commission")
	ErrSessionNotCompleted = errors.New("session is not completed")
	ErrProviderMismatch    = errors.New("provider is not the session's provider")
	ErrMissingInstitution  = errors.New("session has no institution to resolve a rate from")
)

// Service provides the commission ledger and rate audit business logic.
type Service struct {
	repo      store.Repository
	tiers     *TierEngine
	publisher rabbitmq.Publisher
}

// NewService creates a new commission service instance.
func NewService(repo store.Repository, tiers *TierEngine, publisher rabbitmq.Publisher) *Service {
	return &Service{repo: repo, tiers: tiers, publisher: publisher}
}

// resolveRate determines the commission rate applied to a session's revenue.
// Instructor-led class sessions use their institution's negotiated rate; host
// conversations use the host's current tier rate.
func (s *Service) resolveRate(ctx context.Context, session *domain.Session) (decimal.Decimal, error) {
	if session.ProviderKind == domain.ProviderInstructor {
		if session.InstitutionID == nil {
			return decimal.Zero, ErrMissingInstitution
		}
		inst, err := s.repo.FindInstitutionByID(ctx, *session.InstitutionID)
		if err != nil {
			return decimal.Zero, err
		}
		return inst.CommissionRate, nil
	}

	status, err := s.tiers.GetTierStatus(ctx, session.ProviderID)
	if err != nil {
		return decimal.Zero, err
	}
	return status.CurrentTier.CommissionRate, nil
}

// RecordCommission resolves a completed session's economics and creates the
// provider's commission record. Calling it again for the same (session,
// provider) key returns the existing record unchanged.
func (s *Service) RecordCommission(ctx context.Context, providerID, sessionID uuid.UUID) (*domain.CommissionRecord, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ProviderID != providerID {
		return nil, ErrProviderMismatch
	}
	switch session.Status {
	case domain.SessionCancelled:
		return nil, ErrSessionCancelled
	case domain.SessionCompleted:
		// billable
	default:
		return nil, fmt.Errorf("%w: status %s", ErrSessionNotCompleted, session.Status)
	}

	rate, err := s.resolveRate(ctx, session)
	if err != nil {
		return nil, err
	}
	if err := ValidateRate(rate); err != nil {
		return nil, err
	}

	revenue, err := ComputeRevenue(session)
	if err != nil {
		return nil, err
	}
	amount, err := ComputeCommission(revenue, rate)
	if err != nil {
		return nil, err
	}

	rec := &domain.CommissionRecord{
		ID:         uuid.New(),
		SessionID:  sessionID,
		ProviderID: providerID,
		Revenue:    revenue,
		Rate:       rate,
		Amount:     amount,
		Status:     domain.CommissionPending,
		Snapshot: domain.CommissionSnapshot{
			ParticipantCount: session.ConfirmedCount,
			PricingMode:      session.PricingMode,
			RateApplied:      rate.String(),
			ComputedAt:       time.Now().UTC(),
		},
	}

	if err := s.repo.CreateCommissionRecord(ctx, rec); err != nil {
		if errors.Is(err, store.ErrCommissionExists) {
			// First write wins: the frozen snapshot stays authoritative.
			return s.repo.FindCommissionBySessionAndProvider(ctx, sessionID, providerID)
		}
		return nil, fmt.Errorf("create commission record: %w", err)
	}

	if s.publisher != nil {
		event := domain.CommissionRecordedEvent{
			CommissionID: rec.ID,
			SessionID:    sessionID,
			ProviderID:   providerID,
			Amount:       rec.Amount.StringFixed(2),
			OccurredAt:   time.Now().UTC(),
		}
		if pubErr := s.publisher.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingCommissionRecorded, event); pubErr != nil {
			log.Printf("level=warn component=service flow=record_commission msg=\"event publish failed\" commission_id=%s err=%v", rec.ID, pubErr)
		}
	}

	// Completed-session counts moved, so the provider's tier may have too.
	if _, tierErr := s.tiers.AssignTier(ctx, providerID); tierErr != nil {
		log.Printf("level=warn component=service flow=record_commission msg=\"tier recompute failed\" provider_id=%s err=%v", providerID, tierErr)
	}

	return rec, nil
}

// GetCommission retrieves a ledger row by ID.
func (s *Service) GetCommission(ctx context.Context, commissionID uuid.UUID) (*domain.CommissionRecord, error) {
	return s.repo.FindCommissionByID(ctx, commissionID)
}

// ListProviderCommissions returns a provider's ledger rows, newest first.
func (s *Service) ListProviderCommissions(ctx context.Context, providerID uuid.UUID, limit int) ([]domain.CommissionRecord, error) {
	return s.repo.ListCommissionsByProvider(ctx, providerID, limit)
}

// transitionStatus moves a record to the requested status after checking the
// step is legal for the record's current status. The store-level guard still
// protects against a concurrent mover between the read and the update.
func (s *Service) transitionStatus(ctx context.Context, commissionID uuid.UUID, to domain.CommissionStatus) (*domain.CommissionRecord, error) {
	rec, err := s.repo.FindCommissionByID(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidStatusTransition, rec.Status, to)
	}
	if err := s.repo.TransitionCommissionStatus(ctx, commissionID, rec.Status, to); err != nil {
		return nil, err
	}
	return s.repo.FindCommissionByID(ctx, commissionID)
}

// ApproveCommission moves a record from PENDING to APPROVED.
func (s *Service) ApproveCommission(ctx context.Context, commissionID uuid.UUID) (*domain.CommissionRecord, error) {
	return s.transitionStatus(ctx, commissionID, domain.CommissionApproved)
}

// MarkCommissionPaid moves a record from APPROVED to PAID. PAID is terminal.
func (s *Service) MarkCommissionPaid(ctx context.Context, commissionID uuid.UUID) (*domain.CommissionRecord, error) {
	return s.transitionStatus(ctx, commissionID, domain.CommissionPaid)
}

// RateUpdateResult pairs the updated institution with the audit row, which is
// nil for a no-op change.
type RateUpdateResult struct {
	Institution *domain.Institution   `json:"institution"`
	LogEntry    *domain.RateChangeLog `json:"log_entry,omitempty"`
}

// UpdateInstitutionRate validates and applies a commission rate change,
// writing the rate and its audit row in one transaction. An unchanged rate is
// a successful no-op: nothing is written and no log entry is returned.
func (s *Service) UpdateInstitutionRate(ctx context.Context, institutionID uuid.UUID, newRate decimal.Decimal, reason string, changedBy uuid.UUID) (*RateUpdateResult, error) {
	if err := ValidateRate(newRate); err != nil {
		return nil, err
	}

	inst, entry, err := s.repo.UpdateInstitutionRateWithLog(ctx, institutionID, newRate, reason, changedBy)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		log.Printf("level=info component=service flow=rate_update outcome=noop institution_id=%s rate=%s", institutionID, newRate)
	}
	return &RateUpdateResult{Institution: inst, LogEntry: entry}, nil
}

// GetRateHistory returns an institution's rate-change audit rows newest-first.
func (s *Service) GetRateHistory(ctx context.Context, institutionID uuid.UUID, limit int) ([]domain.RateChangeLog, error) {
	if _, err := s.repo.FindInstitutionByID(ctx, institutionID); err != nil {
		return nil, err
	}
	return s.repo.ListRateChangeLogs(ctx, institutionID, limit)
}
