package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/learnsphere/commission-service/internal/domain"
	"github.com/learnsphere/commission-service/internal/store"
)

type publisherStub struct {
	routingKeys []string
	bodies      []interface{}
	publishErr  error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	p.bodies = append(p.bodies, body)
	return p.publishErr
}

func (p *publisherStub) Close() {}

type serviceRepoStub struct {
	store.Repository

	session        *domain.Session
	sessionErr     error
	institution    *domain.Institution
	institutionErr error
	provider       *domain.Provider
	completedCount int
	tiers          []domain.CommissionTier
	assignment     *domain.TierAssignment

	createErr     error
	created       *domain.CommissionRecord
	existing      *domain.CommissionRecord
	transitionErr error
	findByID      *domain.CommissionRecord

	rateInst *domain.Institution
	rateLog  *domain.RateChangeLog
	rateErr  error

	createCalled     bool
	transitionCalled bool
	rateUpdateCalled bool
	upserted         []domain.TierAssignment
}

func (s *serviceRepoStub) FindSessionByID(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	if s.sessionErr != nil {
		return nil, s.sessionErr
	}
	return s.session, nil
}

func (s *serviceRepoStub) FindInstitutionByID(ctx context.Context, institutionID uuid.UUID) (*domain.Institution, error) {
	if s.institutionErr != nil {
		return nil, s.institutionErr
	}
	return s.institution, nil
}

func (s *serviceRepoStub) FindProviderByID(ctx context.Context, providerID uuid.UUID) (*domain.Provider, error) {
	return s.provider, nil
}

func (s *serviceRepoStub) CountCompletedSessionsByProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	return s.completedCount, nil
}

func (s *serviceRepoStub) ListActiveTiers(ctx context.Context, kind domain.ProviderKind) ([]domain.CommissionTier, error) {
	return s.tiers, nil
}

func (s *serviceRepoStub) FindTierByID(ctx context.Context, tierID uuid.UUID) (*domain.CommissionTier, error) {
	for i := range s.tiers {
		if s.tiers[i].ID == tierID {
			return &s.tiers[i], nil
		}
	}
	return nil, store.ErrTierNotFound
}

func (s *serviceRepoStub) FindTierAssignment(ctx context.Context, providerID uuid.UUID) (*domain.TierAssignment, error) {
	if s.assignment == nil {
		return nil, store.ErrTierAssignmentNotFound
	}
	return s.assignment, nil
}

func (s *serviceRepoStub) UpsertTierAssignment(ctx context.Context, assignment domain.TierAssignment) error {
	s.upserted = append(s.upserted, assignment)
	return nil
}

func (s *serviceRepoStub) CreateCommissionRecord(ctx context.Context, rec *domain.CommissionRecord) error {
	s.createCalled = true
	if s.createErr != nil {
		return s.createErr
	}
	s.created = rec
	return nil
}

func (s *serviceRepoStub) FindCommissionBySessionAndProvider(ctx context.Context, sessionID, providerID uuid.UUID) (*domain.CommissionRecord, error) {
	return s.existing, nil
}

func (s *serviceRepoStub) FindCommissionByID(ctx context.Context, commissionID uuid.UUID) (*domain.CommissionRecord, error) {
	if s.findByID == nil {
		return nil, store.ErrCommissionNotFound
	}
	return s.findByID, nil
}

func (s *serviceRepoStub) TransitionCommissionStatus(ctx context.Context, commissionID uuid.UUID, from, to domain.CommissionStatus) error {
	s.transitionCalled = true
	return s.transitionErr
}

func (s *serviceRepoStub) UpdateInstitutionRateWithLog(ctx context.Context, institutionID uuid.UUID, newRate decimal.Decimal, reason string, changedBy uuid.UUID) (*domain.Institution, *domain.RateChangeLog, error) {
	s.rateUpdateCalled = true
	return s.rateInst, s.rateLog, s.rateErr
}

// hostTierTable is a valid three-band table with a shared boundary at 50.
func hostTierTable() []domain.CommissionTier {
	fifty := 50
	twoHundred := 200
	return []domain.CommissionTier{
		{
			ID:               uuid.New(),
			TierName:         "bronze",
			DisplayName:      "Bronze",
			ProviderKind:     domain.ProviderHost,
			CommissionRate:   decimal.RequireFromString("15"),
			MinActivityCount: 0,
			MaxActivityCount: &fifty,
			IsActive:         true,
		},
		{
			ID:               uuid.New(),
			TierName:         "silver",
			DisplayName:      "Silver",
			ProviderKind:     domain.ProviderHost,
			CommissionRate:   decimal.RequireFromString("18"),
			MinActivityCount: 50,
			MaxActivityCount: &twoHundred,
			IsActive:         true,
		},
		{
			ID:               uuid.New(),
			TierName:         "gold",
			DisplayName:      "Gold",
			ProviderKind:     domain.ProviderHost,
			CommissionRate:   decimal.RequireFromString("20"),
			MinActivityCount: 200,
			IsActive:         true,
		},
	}
}

func newTestService(repo *serviceRepoStub, publisher *publisherStub) *Service {
	engine := NewTierEngine(repo, NewRepositoryTierSource(repo), publisher)
	return NewService(repo, engine, publisher)
}

func TestRecordCommission_InstructorUsesInstitutionRate(t *testing.T) {
	institutionID := uuid.New()
	providerID := uuid.New()
	sessionID := uuid.New()

	repo := &serviceRepoStub{
		session: &domain.Session{
			ID:              sessionID,
			InstitutionID:   &institutionID,
			ProviderID:      providerID,
			ProviderKind:    domain.ProviderInstructor,
			PricingMode:     domain.PricingCreditBased,
			CreditUnitPrice: decimal.RequireFromString("12.00"),
			Status:          domain.SessionCompleted,
			ConfirmedCount:  8,
		},
		institution: &domain.Institution{
			ID:             institutionID,
			CommissionRate: decimal.RequireFromString("15"),
		},
		provider:       &domain.Provider{ID: providerID, Kind: domain.ProviderInstructor},
		completedCount: 3,
		tiers:          instructorTierTable(),
	}
	publisher := &publisherStub{}
	svc := newTestService(repo, publisher)

	rec, err := svc.RecordCommission(context.Background(), providerID, sessionID)
	if err != nil {
		t.Fatalf("RecordCommission returned error: %v", err)
	}
	if !rec.Revenue.Equal(decimal.RequireFromString("96.00")) {
		t.Fatalf("expected revenue 96.00, got %s", rec.Revenue)
	}
	if !rec.Amount.Equal(decimal.RequireFromString("14.40")) {
		t.Fatalf("expected commission 14.40, got %s", rec.Amount)
	}
	if rec.Status != domain.CommissionPending {
		t.Fatalf("expected new record in PENDING, got %s", rec.Status)
	}
	if rec.Snapshot.ParticipantCount != 8 || rec.Snapshot.PricingMode != domain.PricingCreditBased {
		t.Fatalf("snapshot did not freeze calculation inputs: %+v", rec.Snapshot)
	}
	if len(publisher.routingKeys) == 0 || publisher.routingKeys[0] != "commission.recorded" {
		t.Fatalf("expected commission.recorded event, got %v", publisher.routingKeys)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("expected tier recompute after recording, got %d upserts", len(repo.upserted))
	}
}

func TestRecordCommission_HostUsesTierRate(t *testing.T) {
	providerID := uuid.New()
	sessionID := uuid.New()

	repo := &serviceRepoStub{
		session: &domain.Session{
			ID:             sessionID,
			ProviderID:     providerID,
			ProviderKind:   domain.ProviderHost,
			PricingMode:    domain.PricingFixed,
			FixedPrice:     decimal.RequireFromString("25.00"),
			Status:         domain.SessionCompleted,
			ConfirmedCount: 4,
		},
		provider:       &domain.Provider{ID: providerID, Kind: domain.ProviderHost},
		completedCount: 60, // Silver band at 18%
		tiers:          hostTierTable(),
	}
	svc := newTestService(repo, &publisherStub{})

	rec, err := svc.RecordCommission(context.Background(), providerID, sessionID)
	if err != nil {
		t.Fatalf("RecordCommission returned error: %v", err)
	}
	if !rec.Rate.Equal(decimal.RequireFromString("18")) {
		t.Fatalf("expected tier rate 18, got %s", rec.Rate)
	}
	if !rec.Amount.Equal(decimal.RequireFromString("18.00")) {
		t.Fatalf("expected commission 18.00, got %s", rec.Amount)
	}
}

func TestRecordCommission_SecondCallReturnsExistingRecord(t *testing.T) {
	institutionID := uuid.New()
	providerID := uuid.New()
	sessionID := uuid.New()

	existing := &domain.CommissionRecord{
		ID:         uuid.New(),
		SessionID:  sessionID,
		ProviderID: providerID,
		Amount:     decimal.RequireFromString("14.40"),
		Status:     domain.CommissionApproved,
		Snapshot: domain.CommissionSnapshot{
			ParticipantCount: 8,
			RateApplied:      "15",
		},
	}
	repo := &serviceRepoStub{
		session: &domain.Session{
			ID:              sessionID,
			InstitutionID:   &institutionID,
			ProviderID:      providerID,
			ProviderKind:    domain.ProviderInstructor,
			PricingMode:     domain.PricingCreditBased,
			CreditUnitPrice: decimal.RequireFromString("12.00"),
			Status:          domain.SessionCompleted,
			// Session was edited after the first calculation; the frozen
			// snapshot must still win.
			ConfirmedCount: 11,
		},
		institution: &domain.Institution{ID: institutionID, CommissionRate: decimal.RequireFromString("20")},
		createErr:   store.ErrCommissionExists,
		existing:    existing,
	}
	publisher := &publisherStub{}
	svc := newTestService(repo, publisher)

	rec, err := svc.RecordCommission(context.Background(), providerID, sessionID)
	if err != nil {
		t.Fatalf("expected idempotent success, got error: %v", err)
	}
	if rec.ID != existing.ID {
		t.Fatalf("expected the existing record back, got %s", rec.ID)
	}
	if !rec.Amount.Equal(existing.Amount) || rec.Snapshot.ParticipantCount != 8 {
		t.Fatalf("existing record was not returned unchanged: %+v", rec)
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatalf("expected no event for an idempotent replay, got %v", publisher.routingKeys)
	}
}

func TestRecordCommission_RejectsCancelledSession(t *testing.T) {
	providerID := uuid.New()
	repo := &serviceRepoStub{
		session: &domain.Session{
			ID:         uuid.New(),
			ProviderID: providerID,
			Status:     domain.SessionCancelled,
		},
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.RecordCommission(context.Background(), providerID, repo.session.ID)
	if !errors.Is(err, ErrSessionCancelled) {
		t.Fatalf("expected ErrSessionCancelled, got %v", err)
	}
	if repo.createCalled {
		t.Fatal("did not expect a ledger write for a cancelled session")
	}
}

func TestRecordCommission_RejectsUncompletedSession(t *testing.T) {
	providerID := uuid.New()
	repo := &serviceRepoStub{
		session: &domain.Session{
			ID:         uuid.New(),
			ProviderID: providerID,
			Status:     domain.SessionScheduled,
		},
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.RecordCommission(context.Background(), providerID, repo.session.ID)
	if !errors.Is(err, ErrSessionNotCompleted) {
		t.Fatalf("expected ErrSessionNotCompleted, got %v", err)
	}
}

func TestRecordCommission_RejectsProviderMismatch(t *testing.T) {
	repo := &serviceRepoStub{
		session: &domain.Session{
			ID:         uuid.New(),
			ProviderID: uuid.New(),
			Status:     domain.SessionCompleted,
		},
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.RecordCommission(context.Background(), uuid.New(), repo.session.ID)
	if !errors.Is(err, ErrProviderMismatch) {
		t.Fatalf("expected ErrProviderMismatch, got %v", err)
	}
}

func TestRecordCommission_InstructorWithoutInstitution(t *testing.T) {
	providerID := uuid.New()
	repo := &serviceRepoStub{
		session: &domain.Session{
			ID:           uuid.New(),
			ProviderID:   providerID,
			ProviderKind: domain.ProviderInstructor,
			Status:       domain.SessionCompleted,
		},
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.RecordCommission(context.Background(), providerID, repo.session.ID)
	if !errors.Is(err, ErrMissingInstitution) {
		t.Fatalf("expected ErrMissingInstitution, got %v", err)
	}
}

func TestRecordCommission_RejectsOutOfRangeStoredRate(t *testing.T) {
	institutionID := uuid.New()
	providerID := uuid.New()
	repo := &serviceRepoStub{
		session: &domain.Session{
			ID:              uuid.New(),
			InstitutionID:   &institutionID,
			ProviderID:      providerID,
			ProviderKind:    domain.ProviderInstructor,
			PricingMode:     domain.PricingCreditBased,
			CreditUnitPrice: decimal.RequireFromString("12.00"),
			Status:          domain.SessionCompleted,
			ConfirmedCount:  8,
		},
		institution: &domain.Institution{ID: institutionID, CommissionRate: decimal.RequireFromString("150")},
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.RecordCommission(context.Background(), providerID, repo.session.ID)
	if !errors.Is(err, ErrRateOutOfRange) {
		t.Fatalf("expected ErrRateOutOfRange for corrupt stored rate, got %v", err)
	}
	if repo.createCalled {
		t.Fatal("did not expect a ledger write with an out-of-range rate")
	}
}

func TestApproveCommission_PropagatesGuardFailure(t *testing.T) {
	repo := &serviceRepoStub{
		findByID:      &domain.CommissionRecord{ID: uuid.New(), Status: domain.CommissionPending},
		transitionErr: store.ErrInvalidStatusTransition,
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.ApproveCommission(context.Background(), repo.findByID.ID)
	if !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestMarkCommissionPaid_RejectsPendingRecord(t *testing.T) {
	repo := &serviceRepoStub{
		findByID: &domain.CommissionRecord{ID: uuid.New(), Status: domain.CommissionPending},
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.MarkCommissionPaid(context.Background(), repo.findByID.ID)
	if !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition for PENDING -> PAID, got %v", err)
	}
	if repo.transitionCalled {
		t.Fatal("did not expect a store update for an illegal transition")
	}
}

func TestApproveCommission_RejectsPaidRecord(t *testing.T) {
	repo := &serviceRepoStub{
		findByID: &domain.CommissionRecord{ID: uuid.New(), Status: domain.CommissionPaid},
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.ApproveCommission(context.Background(), repo.findByID.ID)
	if !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition for a terminal record, got %v", err)
	}
}

func TestUpdateInstitutionRate_RejectsOutOfRange(t *testing.T) {
	repo := &serviceRepoStub{}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.UpdateInstitutionRate(context.Background(), uuid.New(), decimal.RequireFromString("101"), "quarterly adjustment", uuid.New())
	if !errors.Is(err, ErrRateOutOfRange) {
		t.Fatalf("expected ErrRateOutOfRange, got %v", err)
	}
	if repo.rateUpdateCalled {
		t.Fatal("did not expect a repository write for an invalid rate")
	}
}

func TestUpdateInstitutionRate_NoopReturnsNilLogEntry(t *testing.T) {
	inst := &domain.Institution{ID: uuid.New(), CommissionRate: decimal.RequireFromString("15")}
	repo := &serviceRepoStub{rateInst: inst}
	svc := newTestService(repo, &publisherStub{})

	result, err := svc.UpdateInstitutionRate(context.Background(), inst.ID, decimal.RequireFromString("15"), "no change intended", uuid.New())
	if err != nil {
		t.Fatalf("expected unchanged rate to be a successful no-op, got %v", err)
	}
	if result.LogEntry != nil {
		t.Fatalf("expected no audit entry for a no-op change, got %+v", result.LogEntry)
	}
}

func TestUpdateInstitutionRate_ReturnsAuditEntry(t *testing.T) {
	inst := &domain.Institution{ID: uuid.New(), CommissionRate: decimal.RequireFromString("20")}
	entry := &domain.RateChangeLog{
		ID:            uuid.New(),
		InstitutionID: inst.ID,
		PreviousRate:  decimal.RequireFromString("15"),
		NewRate:       decimal.RequireFromString("20"),
		Reason:        "new contract terms",
		ChangedAt:     time.Now().UTC(),
	}
	repo := &serviceRepoStub{rateInst: inst, rateLog: entry}
	svc := newTestService(repo, &publisherStub{})

	result, err := svc.UpdateInstitutionRate(context.Background(), inst.ID, decimal.RequireFromString("20"), "new contract terms", uuid.New())
	if err != nil {
		t.Fatalf("UpdateInstitutionRate returned error: %v", err)
	}
	if result.LogEntry == nil || result.LogEntry.ID != entry.ID {
		t.Fatalf("expected the audit entry back, got %+v", result.LogEntry)
	}
	if !result.Institution.CommissionRate.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("expected updated institution rate, got %s", result.Institution.CommissionRate)
	}
}
