/**
 * @description
 * Attendance threshold monitor: a recurring, idempotent reconciliation pass
 * over SCHEDULED sessions approaching their start time. Sessions far enough
 * under their confirmed-participant minimum are cancelled; sessions under the
 * minimum but above the hard-cancel line get a one-shot warning.
 *
 * @notes
 * - Idempotence comes from state-machine guards in the store (cancel only from
 *   SCHEDULED, warn only once), not from wall-clock comparisons, so repeated
 *   or overlapping passes cannot double-cancel or double-notify.
 * - Each session is processed independently; one failure is collected into the
 *   batch summary and never aborts sibling sessions.
 * - Notifications are published only after the cancellation has committed, and
 *   a broker failure never rolls the cancellation back.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/learnsphere/commission-service/internal/domain"
	"github.com/learnsphere/commission-service/internal/store"
	"github.com/learnsphere/commission-service/pkg/rabbitmq"
)

const (
	defaultCheckWindow     = 30 * time.Minute
	defaultHardCancelRatio = 0.5
)

// MonitorConfig tunes the threshold pass.
type MonitorConfig struct {
	// CheckWindow is how far ahead of a session's start the pass looks.
	CheckWindow time.Duration
	// HardCancelRatio is the fraction of a session's minimum below which the
	// session is cancelled rather than warned.
	HardCancelRatio float64
}

// AttendanceMonitor runs the threshold reconciliation pass.
type AttendanceMonitor struct {
	repo      store.Repository
	publisher rabbitmq.Publisher
	cfg       MonitorConfig
	now       func() time.Time
}

// NewAttendanceMonitor creates a monitor with sane defaults for zero config values.
func NewAttendanceMonitor(repo store.Repository, publisher rabbitmq.Publisher, cfg MonitorConfig) *AttendanceMonitor {
	if cfg.CheckWindow <= 0 {
		cfg.CheckWindow = defaultCheckWindow
	}
	if cfg.HardCancelRatio <= 0 || cfg.HardCancelRatio > 1 {
		cfg.HardCancelRatio = defaultHardCancelRatio
	}
	return &AttendanceMonitor{repo: repo, publisher: publisher, cfg: cfg, now: time.Now}
}

// CancelledSession summarizes one threshold cancellation.
type CancelledSession struct {
	SessionID        uuid.UUID `json:"session_id"`
	Title            string    `json:"title"`
	ConfirmedCount   int       `json:"confirmed_count"`
	MinParticipants  int       `json:"min_participants"`
	CascadeCancelled int64     `json:"cascade_cancelled"`
}

// AttendanceWarning summarizes one soft-threshold warning.
type AttendanceWarning struct {
	SessionID       uuid.UUID `json:"session_id"`
	ConfirmedCount  int       `json:"confirmed_count"`
	MinParticipants int       `json:"min_participants"`
}

// ThresholdCheckError captures one failed session without aborting the batch.
type ThresholdCheckError struct {
	SessionID uuid.UUID `json:"session_id"`
	Error     string    `json:"error"`
}

// ThresholdCheckResult is the batch summary returned by a pass.
type ThresholdCheckResult struct {
	Cancelled []CancelledSession    `json:"cancelled"`
	Warnings  []AttendanceWarning   `json:"warnings"`
	Errors    []ThresholdCheckError `json:"errors"`
}

// RunThresholdCheck executes one reconciliation pass. It only errors when the
// batch cannot start at all (e.g. the store is unreachable); per-session
// failures land in the result's error list.
func (m *AttendanceMonitor) RunThresholdCheck(ctx context.Context) (*ThresholdCheckResult, error) {
	now := m.now().UTC()
	sessions, err := m.repo.FindScheduledSessionsStartingBetween(ctx, now, now.Add(m.cfg.CheckWindow))
	if err != nil {
		return nil, fmt.Errorf("list sessions for threshold check: %w", err)
	}

	result := &ThresholdCheckResult{
		Cancelled: []CancelledSession{},
		Warnings:  []AttendanceWarning{},
		Errors:    []ThresholdCheckError{},
	}

	for _, session := range sessions {
		if session.MinParticipants <= 0 || session.ConfirmedCount >= session.MinParticipants {
			continue
		}
		if err := m.processUnderAttended(ctx, &session, now, result); err != nil {
			log.Printf("level=error component=attendance_monitor msg=\"session processing failed\" session_id=%s err=%v", session.ID, err)
			result.Errors = append(result.Errors, ThresholdCheckError{SessionID: session.ID, Error: err.Error()})
		}
	}

	log.Printf("level=info component=attendance_monitor msg=\"threshold pass finished\" evaluated=%d cancelled=%d warnings=%d errors=%d",
		len(sessions), len(result.Cancelled), len(result.Warnings), len(result.Errors))
	return result, nil
}

func (m *AttendanceMonitor) hardCancelThreshold(min int) int {
	return int(math.Ceil(float64(min) * m.cfg.HardCancelRatio))
}

func (m *AttendanceMonitor) processUnderAttended(ctx context.Context, session *domain.Session, now time.Time, result *ThresholdCheckResult) error {
	if session.ConfirmedCount >= m.hardCancelThreshold(session.MinParticipants) {
		return m.warn(ctx, session, now, result)
	}
	return m.cancel(ctx, session, now, result)
}

func (m *AttendanceMonitor) cancel(ctx context.Context, session *domain.Session, now time.Time, result *ThresholdCheckResult) error {
	// The guard is the idempotency mechanism: a session already CANCELLED (or
	// activated meanwhile) matches zero rows and is silently skipped.
	cancelled, err := m.repo.CancelSessionIfScheduled(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	if !cancelled {
		return nil
	}

	var cascade int64
	if session.RecurringGroupID != nil {
		cascade, err = m.repo.CancelFutureRecurringSessions(ctx, *session.RecurringGroupID, session.ScheduledStart)
		if err != nil {
			log.Printf("level=warn component=attendance_monitor msg=\"cascade cancel failed\" session_id=%s recurring_group_id=%s err=%v",
				session.ID, *session.RecurringGroupID, err)
		}
	}

	reason := fmt.Sprintf("confirmed participants %d below required minimum %d", session.ConfirmedCount, session.MinParticipants)
	participants, err := m.repo.FindConfirmedParticipantIDs(ctx, session.ID)
	if err != nil {
		log.Printf("level=warn component=attendance_monitor msg=\"participant lookup failed; notification list will be empty\" session_id=%s err=%v", session.ID, err)
		participants = nil
	}

	entry := domain.ActionLog{
		ID:            uuid.New(),
		Action:        "session_threshold_cancel",
		SessionID:     &session.ID,
		Reason:        reason,
		AffectedCount: len(participants) + int(cascade),
	}
	if err := m.repo.InsertActionLog(ctx, entry); err != nil {
		log.Printf("level=warn component=attendance_monitor msg=\"action log write failed\" session_id=%s err=%v", session.ID, err)
	}

	if m.publisher != nil {
		event := domain.SessionCancelledEvent{
			SessionID:        session.ID,
			ProviderID:       session.ProviderID,
			InstitutionID:    session.InstitutionID,
			ParticipantIDs:   participants,
			ConfirmedCount:   session.ConfirmedCount,
			MinParticipants:  session.MinParticipants,
			Reason:           reason,
			CascadeCancelled: int(cascade),
			OccurredAt:       now,
		}
		if pubErr := m.publisher.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingSessionCancelled, event); pubErr != nil {
			log.Printf("level=warn component=attendance_monitor msg=\"cancellation event publish failed\" session_id=%s err=%v", session.ID, pubErr)
		}
	}

	result.Cancelled = append(result.Cancelled, CancelledSession{
		SessionID:        session.ID,
		Title:            session.Title,
		ConfirmedCount:   session.ConfirmedCount,
		MinParticipants:  session.MinParticipants,
		CascadeCancelled: cascade,
	})
	return nil
}

func (m *AttendanceMonitor) warn(ctx context.Context, session *domain.Session, now time.Time, result *ThresholdCheckResult) error {
	warned, err := m.repo.MarkSessionWarnedIfUnwarned(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("mark session warned: %w", err)
	}
	if !warned {
		return nil
	}

	if m.publisher != nil {
		event := domain.LowAttendanceWarningEvent{
			SessionID:       session.ID,
			ProviderID:      session.ProviderID,
			ConfirmedCount:  session.ConfirmedCount,
			MinParticipants: session.MinParticipants,
			OccurredAt:      now,
		}
		if pubErr := m.publisher.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingLowAttendanceWarning, event); pubErr != nil {
			log.Printf("level=warn component=attendance_monitor msg=\"warning event publish failed\" session_id=%s err=%v", session.ID, pubErr)
		}
	}

	result.Warnings = append(result.Warnings, AttendanceWarning{
		SessionID:       session.ID,
		ConfirmedCount:  session.ConfirmedCount,
		MinParticipants: session.MinParticipants,
	})
	return nil
}
