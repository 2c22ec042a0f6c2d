/**
 * @description
 * Read-side domain models for revenue reporting. These are derived views over
 * completed payment and commission rows; nothing here is persisted.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BreakdownDimension selects how GetBreakdown groups completed payments.
type BreakdownDimension string

const (
	BreakdownByInstitution BreakdownDimension = "institution"
	BreakdownByPlan        BreakdownDimension = "plan"
	BreakdownByLanguage    BreakdownDimension = "language"
)

// RevenueMetrics summarizes completed payments over a window.
type RevenueMetrics struct {
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	PaymentCount    int             `json:"payment_count"`
}

// RevenueBucket is one group within a breakdown.
type RevenueBucket struct {
	Key          string          `json:"key"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	PaymentCount int             `json:"payment_count"`
}

// RevenueBreakdown groups window revenue by a requested dimension.
type RevenueBreakdown struct {
	Start     time.Time          `json:"start"`
	End       time.Time          `json:"end"`
	Dimension BreakdownDimension `json:"dimension"`
	Buckets   []RevenueBucket    `json:"buckets"`
}

// RevenueProjection extrapolates a forward run rate from a trailing window.
type RevenueProjection struct {
	WindowDays      int             `json:"window_days"`
	WindowRevenue   decimal.Decimal `json:"window_revenue"`
	DailyRunRate    decimal.Decimal `json:"daily_run_rate"`
	Projected30Days decimal.Decimal `json:"projected_30_days"`
	ProjectedAnnual decimal.Decimal `json:"projected_annual"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// RevenueReport combines metrics and a breakdown into one payload. CSV is the
// delimited-text rendering of the same data.
type RevenueReport struct {
	Metrics   RevenueMetrics   `json:"metrics"`
	Breakdown RevenueBreakdown `json:"breakdown"`
	CSV       string           `json:"-"`
}
