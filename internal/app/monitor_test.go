package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/learnsphere/commission-service/internal/domain"
	"github.com/learnsphere/commission-service/internal/store"
)

type monitorRepoStub struct {
	store.Repository

	sessions []domain.Session
	listErr  error

	cancelReturns map[uuid.UUID]bool
	cancelErrs    map[uuid.UUID]error
	warnReturns   map[uuid.UUID]bool

	cascadeCount int64
	participants []uuid.UUID

	cancelCalls  []uuid.UUID
	warnCalls    []uuid.UUID
	cascadeCalls []uuid.UUID
	actionLogs   []domain.ActionLog
}

func (s *monitorRepoStub) FindScheduledSessionsStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Session, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.sessions, nil
}

func (s *monitorRepoStub) CancelSessionIfScheduled(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	s.cancelCalls = append(s.cancelCalls, sessionID)
	if err := s.cancelErrs[sessionID]; err != nil {
		return false, err
	}
	if s.cancelReturns == nil {
		return true, nil
	}
	cancelled, ok := s.cancelReturns[sessionID]
	if !ok {
		return true, nil
	}
	return cancelled, nil
}

func (s *monitorRepoStub) CancelFutureRecurringSessions(ctx context.Context, recurringGroupID uuid.UUID, after time.Time) (int64, error) {
	s.cascadeCalls = append(s.cascadeCalls, recurringGroupID)
	return s.cascadeCount, nil
}

func (s *monitorRepoStub) MarkSessionWarnedIfUnwarned(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	s.warnCalls = append(s.warnCalls, sessionID)
	if s.warnReturns == nil {
		return true, nil
	}
	warned, ok := s.warnReturns[sessionID]
	if !ok {
		return true, nil
	}
	return warned, nil
}

func (s *monitorRepoStub) FindConfirmedParticipantIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	return s.participants, nil
}

func (s *monitorRepoStub) InsertActionLog(ctx context.Context, entry domain.ActionLog) error {
	s.actionLogs = append(s.actionLogs, entry)
	return nil
}

func scheduledSession(min, confirmed int) domain.Session {
	return domain.Session{
		ID:              uuid.New(),
		ProviderID:      uuid.New(),
		Title:           "Evening conversation circle",
		Status:          domain.SessionScheduled,
		MinParticipants: min,
		ConfirmedCount:  confirmed,
		ScheduledStart:  time.Now().UTC().Add(25 * time.Minute),
	}
}

func TestRunThresholdCheck_CancelsFarUnderMinimum(t *testing.T) {
	session := scheduledSession(10, 1)
	repo := &monitorRepoStub{
		sessions:     []domain.Session{session},
		participants: []uuid.UUID{uuid.New()},
	}
	publisher := &publisherStub{}
	monitor := NewAttendanceMonitor(repo, publisher, MonitorConfig{})

	result, err := monitor.RunThresholdCheck(context.Background())
	if err != nil {
		t.Fatalf("RunThresholdCheck returned error: %v", err)
	}
	if len(result.Cancelled) != 1 {
		t.Fatalf("expected one cancellation, got %+v", result)
	}
	if result.Cancelled[0].SessionID != session.ID || result.Cancelled[0].ConfirmedCount != 1 {
		t.Fatalf("unexpected cancellation summary: %+v", result.Cancelled[0])
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings for a hard cancel, got %+v", result.Warnings)
	}
	if len(repo.actionLogs) != 1 || repo.actionLogs[0].Action != "session_threshold_cancel" {
		t.Fatalf("expected a threshold-cancel action log, got %+v", repo.actionLogs)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "session.cancelled.low_attendance" {
		t.Fatalf("expected cancellation event, got %v", publisher.routingKeys)
	}
}

func TestRunThresholdCheck_WarnsNearMinimum(t *testing.T) {
	// 6 of 10 confirmed is under the minimum but at or above the hard-cancel
	// line of ceil(10 * 0.5) = 5, so the session is warned, not cancelled.
	session := scheduledSession(10, 6)
	repo := &monitorRepoStub{sessions: []domain.Session{session}}
	publisher := &publisherStub{}
	monitor := NewAttendanceMonitor(repo, publisher, MonitorConfig{})

	result, err := monitor.RunThresholdCheck(context.Background())
	if err != nil {
		t.Fatalf("RunThresholdCheck returned error: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].SessionID != session.ID {
		t.Fatalf("expected one warning, got %+v", result)
	}
	if len(result.Cancelled) != 0 || len(repo.cancelCalls) != 0 {
		t.Fatalf("expected no cancellation, got %+v", result.Cancelled)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "session.warning.low_attendance" {
		t.Fatalf("expected warning event, got %v", publisher.routingKeys)
	}
}

func TestRunThresholdCheck_SkipsHealthySessions(t *testing.T) {
	repo := &monitorRepoStub{sessions: []domain.Session{
		scheduledSession(10, 10),
		scheduledSession(10, 14),
		scheduledSession(0, 0), // no minimum configured
	}}
	monitor := NewAttendanceMonitor(repo, &publisherStub{}, MonitorConfig{})

	result, err := monitor.RunThresholdCheck(context.Background())
	if err != nil {
		t.Fatalf("RunThresholdCheck returned error: %v", err)
	}
	if len(result.Cancelled) != 0 || len(result.Warnings) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected nothing to happen for healthy sessions, got %+v", result)
	}
	if len(repo.cancelCalls) != 0 || len(repo.warnCalls) != 0 {
		t.Fatal("expected no guard calls for healthy sessions")
	}
}

func TestRunThresholdCheck_RerunIsStable(t *testing.T) {
	// A second pass over the same window finds the guards already consumed:
	// the cancel target no longer matches SCHEDULED and the warn target is
	// already marked. The pass must report nothing and emit nothing.
	cancelTarget := scheduledSession(10, 1)
	warnTarget := scheduledSession(10, 6)
	repo := &monitorRepoStub{
		sessions:      []domain.Session{cancelTarget, warnTarget},
		cancelReturns: map[uuid.UUID]bool{cancelTarget.ID: false},
		warnReturns:   map[uuid.UUID]bool{warnTarget.ID: false},
	}
	publisher := &publisherStub{}
	monitor := NewAttendanceMonitor(repo, publisher, MonitorConfig{})

	result, err := monitor.RunThresholdCheck(context.Background())
	if err != nil {
		t.Fatalf("RunThresholdCheck returned error: %v", err)
	}
	if len(result.Cancelled) != 0 || len(result.Warnings) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected an empty result on re-run, got %+v", result)
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatalf("expected no events on re-run, got %v", publisher.routingKeys)
	}
	if len(repo.actionLogs) != 0 {
		t.Fatalf("expected no action logs on re-run, got %+v", repo.actionLogs)
	}
}

func TestRunThresholdCheck_CascadesRecurringGroup(t *testing.T) {
	groupID := uuid.New()
	session := scheduledSession(10, 1)
	session.RecurringGroupID = &groupID
	repo := &monitorRepoStub{
		sessions:     []domain.Session{session},
		cascadeCount: 3,
	}
	monitor := NewAttendanceMonitor(repo, &publisherStub{}, MonitorConfig{})

	result, err := monitor.RunThresholdCheck(context.Background())
	if err != nil {
		t.Fatalf("RunThresholdCheck returned error: %v", err)
	}
	if len(result.Cancelled) != 1 || result.Cancelled[0].CascadeCancelled != 3 {
		t.Fatalf("expected cascade count 3, got %+v", result.Cancelled)
	}
	if len(repo.cascadeCalls) != 1 || repo.cascadeCalls[0] != groupID {
		t.Fatalf("expected cascade cancel for group %s, got %v", groupID, repo.cascadeCalls)
	}
}

func TestRunThresholdCheck_CollectsPerSessionErrors(t *testing.T) {
	failing := scheduledSession(10, 1)
	healthy := scheduledSession(10, 2)
	repo := &monitorRepoStub{
		sessions:   []domain.Session{failing, healthy},
		cancelErrs: map[uuid.UUID]error{failing.ID: errors.New("deadlock detected")},
	}
	monitor := NewAttendanceMonitor(repo, &publisherStub{}, MonitorConfig{})

	result, err := monitor.RunThresholdCheck(context.Background())
	if err != nil {
		t.Fatalf("expected per-session failures to stay inside the batch, got %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].SessionID != failing.ID {
		t.Fatalf("expected one collected error, got %+v", result.Errors)
	}
	if len(result.Cancelled) != 1 || result.Cancelled[0].SessionID != healthy.ID {
		t.Fatalf("expected the sibling session to still be processed, got %+v", result.Cancelled)
	}
}

func TestHardCancelThreshold_RoundsUp(t *testing.T) {
	monitor := NewAttendanceMonitor(&monitorRepoStub{}, nil, MonitorConfig{HardCancelRatio: 0.5})

	if got := monitor.hardCancelThreshold(10); got != 5 {
		t.Fatalf("expected threshold 5 for minimum 10, got %d", got)
	}
	// Fractional thresholds round up so a 5-person minimum cancels below 3.
	if got := monitor.hardCancelThreshold(5); got != 3 {
		t.Fatalf("expected threshold 3 for minimum 5, got %d", got)
	}
}
