/**
 * @description
 * Read-side revenue reporting over completed payments and commission records.
 * Everything here is side-effect-free; only COMPLETED payments and commissions
 * attached to non-cancelled sessions contribute.
 */

package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/learnsphere/commission-service/internal/domain"
	"github.com/learnsphere/commission-service/internal/store"
)

var (
	ErrInvalidDateRange    = errors.New("start must be before end")
	ErrUnknownReportFormat = errors.New("unknown report format")
)

const defaultProjectionWindowDays = 30

// ReportFormat selects the rendering of GetReport.
type ReportFormat string

const (
	ReportJSON ReportFormat = "json"
	ReportCSV  ReportFormat = "csv"
)

// RevenueReporter answers aggregate revenue questions.
type RevenueReporter struct {
	repo          store.Repository
	defaultWindow int
	now           func() time.Time
}

// NewRevenueReporter creates a new reporter. defaultWindowDays sets the
// trailing window used for projections when the caller does not pick one;
// zero falls back to 30 days.
func NewRevenueReporter(repo store.Repository, defaultWindowDays int) *RevenueReporter {
	if defaultWindowDays <= 0 {
		defaultWindowDays = defaultProjectionWindowDays
	}
	return &RevenueReporter{repo: repo, defaultWindow: defaultWindowDays, now: time.Now}
}

func validateRange(start, end time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("%w: start=%s end=%s", ErrInvalidDateRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

// GetMetrics sums completed payments and attributed commission in [start, end).
func (r *RevenueReporter) GetMetrics(ctx context.Context, start, end time.Time) (*domain.RevenueMetrics, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	total, count, err := r.repo.SumCompletedPayments(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}
	commission, err := r.repo.SumCommissionAmounts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum commissions: %w", err)
	}

	return &domain.RevenueMetrics{
		Start:           start,
		End:             end,
		TotalRevenue:    total,
		TotalCommission: commission,
		PaymentCount:    count,
	}, nil
}

// GetBreakdown groups window revenue by the requested dimension.
func (r *RevenueReporter) GetBreakdown(ctx context.Context, start, end time.Time, dimension domain.BreakdownDimension) (*domain.RevenueBreakdown, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	buckets, err := r.repo.BreakdownCompletedPayments(ctx, start, end, dimension)
	if err != nil {
		return nil, err
	}
	if buckets == nil {
		buckets = []domain.RevenueBucket{}
	}
	return &domain.RevenueBreakdown{Start: start, End: end, Dimension: dimension, Buckets: buckets}, nil
}

// GetProjection extrapolates a forward run rate from a trailing window of
// completed payments.
func (r *RevenueReporter) GetProjection(ctx context.Context, windowDays int) (*domain.RevenueProjection, error) {
	if windowDays <= 0 {
		windowDays = r.defaultWindow
	}

	now := r.now().UTC()
	start := now.AddDate(0, 0, -windowDays)
	total, _, err := r.repo.SumCompletedPayments(ctx, start, now)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}

	daily := total.Div(decimal.NewFromInt(int64(windowDays))).Round(2)
	return &domain.RevenueProjection{
		WindowDays:      windowDays,
		WindowRevenue:   total,
		DailyRunRate:    daily,
		Projected30Days: daily.Mul(decimal.NewFromInt(30)).Round(2),
		ProjectedAnnual: daily.Mul(decimal.NewFromInt(365)).Round(2),
		GeneratedAt:     now,
	}, nil
}

// GetReport combines metrics and a breakdown into one payload. With ReportCSV
// the same data is additionally rendered as delimited text.
func (r *RevenueReporter) GetReport(ctx context.Context, start, end time.Time, dimension domain.BreakdownDimension, format ReportFormat) (*domain.RevenueReport, error) {
	switch format {
	case ReportJSON, ReportCSV:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReportFormat, format)
	}

	metrics, err := r.GetMetrics(ctx, start, end)
	if err != nil {
		return nil, err
	}
	breakdown, err := r.GetBreakdown(ctx, start, end, dimension)
	if err != nil {
		return nil, err
	}

	report := &domain.RevenueReport{Metrics: *metrics, Breakdown: *breakdown}
	if format == ReportCSV {
		report.CSV, err = renderReportCSV(report)
		if err != nil {
			return nil, fmt.Errorf("render csv: %w", err)
		}
	}
	return report, nil
}

func renderReportCSV(report *domain.RevenueReport) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value"},
		{"metrics", "window_start", report.Metrics.Start.Format(time.RFC3339)},
		{"metrics", "window_end", report.Metrics.End.Format(time.RFC3339)},
		{"metrics", "total_revenue", report.Metrics.TotalRevenue.StringFixed(2)},
		{"metrics", "total_commission", report.Metrics.TotalCommission.StringFixed(2)},
		{"metrics", "payment_count", strconv.Itoa(report.Metrics.PaymentCount)},
	}
	for _, bucket := range report.Breakdown.Buckets {
		rows = append(rows, []string{string(report.Breakdown.Dimension), bucket.Key, bucket.TotalRevenue.StringFixed(2)})
	}

	if err := w.WriteAll(rows); err != nil {
		return "", err
	}
	w.Flush()
	return buf.String(), w.Error()
}
