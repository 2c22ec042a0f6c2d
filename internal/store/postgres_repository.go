/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to sessions, providers, commission records, tiers, institutions and
 * payments.
 *
 * @notes
 * - Numeric money columns travel as text and are parsed into decimal.Decimal,
 *   so no floating-point conversion ever touches an amount.
 * - Idempotency of commission creation rests on the unique constraint
 *   commission_records(session_id, provider_id); a 23505 from the insert is
 *   surfaced as ErrCommissionExists for the caller to catch-and-fetch.
 *
 * @dependencies
 * - context, encoding/json, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/learnsphere/commission-service/internal/domain"
)

var (
	ErrSessionNotFound           = errors.New("session not found")
	ErrProviderNotFound          = errors.New("provider not found")
	ErrInstitutionNotFound       = errors.New("institution not found")
	ErrCommissionNotFound        = errors.New("commission record not found")
	ErrCommissionExists          = errors.New("commission record already exists")
	ErrTierNotFound              = errors.New("tier not found")
	ErrTierAssignmentNotFound    = errors.New("tier assignment not found")
	ErrInvalidStatusTransition   = errors.New("invalid commission status transition")
	ErrUnknownBreakdownDimension = errors.New("unknown breakdown dimension")
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func parseDecimal(raw string, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

const sessionColumns = `
	s.id, s.institution_id, s.provider_id, s.provider_kind, s.title, COALESCE(s.language, ''),
	s.pricing_mode, s.credit_unit_price::text, s.fixed_price::text, s.capacity, s.min_participants,
	s.scheduled_start, s.scheduled_end, s.status, s.recurring_group_id,
	(SELECT COUNT(*) FROM session_participants sp WHERE sp.session_id = s.id AND sp.state = 'CONFIRMED'),
	s.low_attendance_warned_at, s.created_at, s.updated_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s          domain.Session
		creditUnit string
		fixed      string
	)
	err := row.Scan(
		&s.ID, &s.InstitutionID, &s.ProviderID, &s.ProviderKind, &s.Title, &s.Language,
		&s.PricingMode, &creditUnit, &fixed, &s.Capacity, &s.MinParticipants,
		&s.ScheduledStart, &s.ScheduledEnd, &s.Status, &s.RecurringGroupID,
		&s.ConfirmedCount, &s.LowAttendanceWarnedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.CreditUnitPrice, err = parseDecimal(creditUnit, "credit_unit_price"); err != nil {
		return nil, err
	}
	if s.FixedPrice, err = parseDecimal(fixed, "fixed_price"); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSessionByID retrieves a session with its confirmed participant count.
// The count deliberately considers only participants in the CONFIRMED state,
// never raw registrations.
func (r *PostgresRepository) FindSessionByID(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions s WHERE s.id = $1`
	session, err := scanSession(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// CountCompletedSessionsByProvider returns the provider's all-time COMPLETED
// session count, the input to tier assignment.
func (r *PostgresRepository) CountCompletedSessionsByProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM sessions WHERE provider_id = $1 AND status = 'COMPLETED'`
	if err := r.db.QueryRow(ctx, query, providerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// FindScheduledSessionsStartingBetween returns SCHEDULED sessions starting in [from, to).
func (r *PostgresRepository) FindScheduledSessionsStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM sessions s
		WHERE s.status = 'SCHEDULED' AND s.scheduled_start >= $1 AND s.scheduled_start < $2
		ORDER BY s.scheduled_start ASC`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// CancelSessionIfScheduled performs the guarded CANCELLED transition. The WHERE
// clause on the current status is what makes overlapping monitor runs safe: the
// second run matches zero rows and reports false.
func (r *PostgresRepository) CancelSessionIfScheduled(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET status = 'CANCELLED', updated_at = NOW() WHERE id = $1 AND status = 'SCHEDULED'`,
		sessionID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelFutureRecurringSessions cascade-cancels later SCHEDULED instances of a
// recurring group.
func (r *PostgresRepository) CancelFutureRecurringSessions(ctx context.Context, recurringGroupID uuid.UUID, after time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET status = 'CANCELLED', updated_at = NOW()
		 WHERE recurring_group_id = $1 AND status = 'SCHEDULED' AND scheduled_start > $2`,
		recurringGroupID, after,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkSessionWarnedIfUnwarned records that a low-attendance warning was issued.
// The NULL guard plus the SCHEDULED guard make the warning one-shot: a second
// monitor pass matches zero rows and stays silent.
func (r *PostgresRepository) MarkSessionWarnedIfUnwarned(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET low_attendance_warned_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'SCHEDULED' AND low_attendance_warned_at IS NULL`,
		sessionID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindConfirmedParticipantIDs returns the user IDs of confirmed participants.
func (r *PostgresRepository) FindConfirmedParticipantIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM session_participants WHERE session_id = $1 AND state = 'CONFIRMED'`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindProviderByID retrieves a provider (host or instructor).
func (r *PostgresRepository) FindProviderByID(ctx context.Context, providerID uuid.UUID) (*domain.Provider, error) {
	var p domain.Provider
	query := `SELECT id, kind, display_name, created_at FROM providers WHERE id = $1`
	err := r.db.QueryRow(ctx, query, providerID).Scan(&p.ID, &p.Kind, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateCommissionRecord inserts a new ledger row. The unique constraint on
// (session_id, provider_id) is the idempotency guarantee; the caller treats
// ErrCommissionExists as "fetch and return existing", not as a failure.
func (r *PostgresRepository) CreateCommissionRecord(ctx context.Context, rec *domain.CommissionRecord) error {
	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal commission snapshot: %w", err)
	}

	query := `
		INSERT INTO commission_records (id, session_id, provider_id, revenue, rate, amount, status, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`
	err = r.db.QueryRow(ctx, query,
		rec.ID, rec.SessionID, rec.ProviderID,
		rec.Revenue.StringFixed(2), rec.Rate.String(), rec.Amount.StringFixed(2),
		rec.Status, snapshot,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrCommissionExists
		}
		return err
	}
	return nil
}

const commissionColumns = `
	id, session_id, provider_id, revenue::text, rate::text, amount::text, status, snapshot, created_at, updated_at`

func scanCommission(row pgx.Row) (*domain.CommissionRecord, error) {
	var (
		rec      domain.CommissionRecord
		revenue  string
		rate     string
		amount   string
		snapshot []byte
	)
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.ProviderID,
		&revenue, &rate, &amount, &rec.Status, &snapshot,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.Revenue, err = parseDecimal(revenue, "revenue"); err != nil {
		return nil, err
	}
	if rec.Rate, err = parseDecimal(rate, "rate"); err != nil {
		return nil, err
	}
	if rec.Amount, err = parseDecimal(amount, "amount"); err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal commission snapshot: %w", err)
		}
	}
	return &rec, nil
}

// FindCommissionBySessionAndProvider retrieves the ledger row for a (session, provider) key.
func (r *PostgresRepository) FindCommissionBySessionAndProvider(ctx context.Context, sessionID, providerID uuid.UUID) (*domain.CommissionRecord, error) {
	query := `SELECT` + commissionColumns + ` FROM commission_records WHERE session_id = $1 AND provider_id = $2`
	rec, err := scanCommission(r.db.QueryRow(ctx, query, sessionID, providerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCommissionNotFound
		}
		return nil, err
	}
	return rec, nil
}

// FindCommissionByID retrieves a ledger row by its primary key.
func (r *PostgresRepository) FindCommissionByID(ctx context.Context, commissionID uuid.UUID) (*domain.CommissionRecord, error) {
	query := `SELECT` + commissionColumns + ` FROM commission_records WHERE id = $1`
	rec, err := scanCommission(r.db.QueryRow(ctx, query, commissionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCommissionNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListCommissionsByProvider returns a provider's ledger rows, newest first.
func (r *PostgresRepository) ListCommissionsByProvider(ctx context.Context, providerID uuid.UUID, limit int) ([]domain.CommissionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT` + commissionColumns + `
		FROM commission_records WHERE provider_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.CommissionRecord
	for rows.Next() {
		rec, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// TransitionCommissionStatus applies a guarded forward status transition. A
// zero-row update is disambiguated with a follow-up read so callers can tell a
// missing record from an illegal transition.
func (r *PostgresRepository) TransitionCommissionStatus(ctx context.Context, commissionID uuid.UUID, from, to domain.CommissionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE commission_records SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, commissionID, from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current domain.CommissionStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM commission_records WHERE id = $1`, commissionID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCommissionNotFound
		}
		return err
	}
	return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidStatusTransition, from, to, current)
}

const tierColumns = `
	id, tier_name, display_name, provider_kind, commission_rate::text, min_activity_count,
	max_activity_count, is_active, effective_date, COALESCE(requirements, ''), COALESCE(benefits, '')`

func scanTier(row pgx.Row) (*domain.CommissionTier, error) {
	var (
		t    domain.CommissionTier
		rate string
	)
	err := row.Scan(
		&t.ID, &t.TierName, &t.DisplayName, &t.ProviderKind, &rate, &t.MinActivityCount,
		&t.MaxActivityCount, &t.IsActive, &t.EffectiveDate, &t.Requirements, &t.Benefits,
	)
	if err != nil {
		return nil, err
	}
	if t.CommissionRate, err = parseDecimal(rate, "commission_rate"); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActiveTiers returns a provider kind's active tiers ordered ascending by
// the lower band boundary, the order the assignment engine expects.
func (r *PostgresRepository) ListActiveTiers(ctx context.Context, kind domain.ProviderKind) ([]domain.CommissionTier, error) {
	query := `SELECT` + tierColumns + `
		FROM commission_tiers
		WHERE provider_kind = $1 AND is_active = TRUE
		ORDER BY min_activity_count ASC`
	rows, err := r.db.Query(ctx, query, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []domain.CommissionTier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, *tier)
	}
	return tiers, rows.Err()
}

// FindTierByID retrieves a tier definition.
func (r *PostgresRepository) FindTierByID(ctx context.Context, tierID uuid.UUID) (*domain.CommissionTier, error) {
	query := `SELECT` + tierColumns + ` FROM commission_tiers WHERE id = $1`
	tier, err := scanTier(r.db.QueryRow(ctx, query, tierID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTierNotFound
		}
		return nil, err
	}
	return tier, nil
}

// UpsertTierAssignment writes the current provider -> tier mapping. Latest
// assignment overwrites; the table keeps no history.
func (r *PostgresRepository) UpsertTierAssignment(ctx context.Context, assignment domain.TierAssignment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tier_assignments (provider_id, tier_id, assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id)
		DO UPDATE SET tier_id = EXCLUDED.tier_id, assigned_at = EXCLUDED.assigned_at`,
		assignment.ProviderID, assignment.TierID, assignment.AssignedAt,
	)
	return err
}

// FindTierAssignment retrieves the provider's current tier mapping.
func (r *PostgresRepository) FindTierAssignment(ctx context.Context, providerID uuid.UUID) (*domain.TierAssignment, error) {
	var a domain.TierAssignment
	err := r.db.QueryRow(ctx,
		`SELECT provider_id, tier_id, assigned_at FROM tier_assignments WHERE provider_id = $1`,
		providerID,
	).Scan(&a.ProviderID, &a.TierID, &a.AssignedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTierAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindInstitutionByID retrieves an institution.
func (r *PostgresRepository) FindInstitutionByID(ctx context.Context, institutionID uuid.UUID) (*domain.Institution, error) {
	var (
		inst domain.Institution
		rate string
	)
	query := `SELECT id, name, plan, commission_rate::text, created_at, updated_at FROM institutions WHERE id = $1`
	err := r.db.QueryRow(ctx, query, institutionID).Scan(
		&inst.ID, &inst.Name, &inst.Plan, &rate, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInstitutionNotFound
		}
		return nil, err
	}
	if inst.CommissionRate, err = parseDecimal(rate, "commission_rate"); err != nil {
		return nil, err
	}
	return &inst, nil
}

// UpdateInstitutionRateWithLog updates the institution's commission rate and
// appends the audit row in a single transaction. The row is locked first so
// the previous rate captured in the log is exactly the rate being replaced.
// An unchanged rate commits nothing and returns a nil log entry.
func (r *PostgresRepository) UpdateInstitutionRateWithLog(ctx context.Context, institutionID uuid.UUID, newRate decimal.Decimal, reason string, changedBy uuid.UUID) (*domain.Institution, *domain.RateChangeLog, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	var (
		inst domain.Institution
		rate string
	)
	err = tx.QueryRow(ctx,
		`SELECT id, name, plan, commission_rate::text, created_at, updated_at FROM institutions WHERE id = $1 FOR UPDATE`,
		institutionID,
	).Scan(&inst.ID, &inst.Name, &inst.Plan, &rate, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrInstitutionNotFound
		}
		return nil, nil, err
	}
	if inst.CommissionRate, err = parseDecimal(rate, "commission_rate"); err != nil {
		return nil, nil, err
	}

	if inst.CommissionRate.Equal(newRate) {
		// No-op change: no rate write, no log row.
		return &inst, nil, nil
	}

	previousRate := inst.CommissionRate
	err = tx.QueryRow(ctx,
		`UPDATE institutions SET commission_rate = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
		newRate.String(), institutionID,
	).Scan(&inst.UpdatedAt)
	if err != nil {
		return nil, nil, err
	}
	inst.CommissionRate = newRate

	entry := domain.RateChangeLog{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		PreviousRate:  previousRate,
		NewRate:       newRate,
		ChangedBy:     changedBy,
		Reason:        reason,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO rate_change_logs (id, institution_id, previous_rate, new_rate, changed_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING changed_at`,
		entry.ID, entry.InstitutionID, previousRate.String(), newRate.String(), entry.ChangedBy, entry.Reason,
	).Scan(&entry.ChangedAt)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return &inst, &entry, nil
}

// ListRateChangeLogs returns an institution's audit rows newest-first, joined
// with the acting user's display name.
func (r *PostgresRepository) ListRateChangeLogs(ctx context.Context, institutionID uuid.UUID, limit int) ([]domain.RateChangeLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT l.id, l.institution_id, l.previous_rate::text, l.new_rate::text,
		       l.changed_by, COALESCE(u.display_name, ''), l.reason, l.changed_at
		FROM rate_change_logs l
		LEFT JOIN users u ON u.id = l.changed_by
		WHERE l.institution_id = $1
		ORDER BY l.changed_at DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, institutionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.RateChangeLog
	for rows.Next() {
		var (
			entry    domain.RateChangeLog
			previous string
			next     string
		)
		err := rows.Scan(
			&entry.ID, &entry.InstitutionID, &previous, &next,
			&entry.ChangedBy, &entry.ChangedByName, &entry.Reason, &entry.ChangedAt,
		)
		if err != nil {
			return nil, err
		}
		if entry.PreviousRate, err = parseDecimal(previous, "previous_rate"); err != nil {
			return nil, err
		}
		if entry.NewRate, err = parseDecimal(next, "new_rate"); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// InsertActionLog appends an audit row for an automated action.
func (r *PostgresRepository) InsertActionLog(ctx context.Context, entry domain.ActionLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO action_logs (id, action, session_id, reason, affected_count)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Action, entry.SessionID, entry.Reason, entry.AffectedCount,
	)
	return err
}

// SumCompletedPayments sums completed payments inside [start, end).
func (r *PostgresRepository) SumCompletedPayments(ctx context.Context, start, end time.Time) (decimal.Decimal, int, error) {
	var (
		total string
		count int
	)
	query := `
		SELECT COALESCE(SUM(amount), 0)::text, COUNT(*)
		FROM payments
		WHERE status = 'COMPLETED' AND completed_at >= $1 AND completed_at < $2`
	if err := r.db.QueryRow(ctx, query, start, end).Scan(&total, &count); err != nil {
		return decimal.Zero, 0, err
	}
	sum, err := parseDecimal(total, "payments total")
	if err != nil {
		return decimal.Zero, 0, err
	}
	return sum, count, nil
}

// SumCommissionAmounts sums commission amounts inside [start, end). Records
// attached to cancelled sessions are excluded; a cancelled session never
// contributes revenue.
func (r *PostgresRepository) SumCommissionAmounts(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	var total string
	query := `
		SELECT COALESCE(SUM(cr.amount), 0)::text
		FROM commission_records cr
		JOIN sessions s ON s.id = cr.session_id
		WHERE s.status <> 'CANCELLED' AND cr.created_at >= $1 AND cr.created_at < $2`
	if err := r.db.QueryRow(ctx, query, start, end).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return parseDecimal(total, "commission total")
}

// BreakdownCompletedPayments groups window payments by the requested dimension.
// The dimension maps to a fixed column name; anything unrecognized is rejected
// before touching SQL.
func (r *PostgresRepository) BreakdownCompletedPayments(ctx context.Context, start, end time.Time, dimension domain.BreakdownDimension) ([]domain.RevenueBucket, error) {
	var column string
	switch dimension {
	case domain.BreakdownByInstitution:
		column = "institution_id::text"
	case domain.BreakdownByPlan:
		column = "plan"
	case domain.BreakdownByLanguage:
		column = "language"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBreakdownDimension, dimension)
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(%s, ''), COALESCE(SUM(amount), 0)::text, COUNT(*)
		FROM payments
		WHERE status = 'COMPLETED' AND completed_at >= $1 AND completed_at < $2
		GROUP BY 1
		ORDER BY SUM(amount) DESC`, column)
	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []domain.RevenueBucket
	for rows.Next() {
		var (
			bucket domain.RevenueBucket
			total  string
		)
		if err := rows.Scan(&bucket.Key, &total, &bucket.PaymentCount); err != nil {
			return nil, err
		}
		if bucket.TotalRevenue, err = parseDecimal(total, "bucket total"); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}
