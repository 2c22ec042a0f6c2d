/**
 * @description
 * Pure economics calculations for the commission engine: deriving a session's
 * revenue from its pricing mode and confirmed participation, and deriving a
 * provider's commission from revenue and rate. No I/O happens here.
 *
 * @notes
 * - One credit is worth one currency unit, so CREDIT_BASED revenue is simply
 *   participants x credit unit price.
 * - Zero confirmed participants is a valid outcome producing zero revenue and
 *   zero commission, not an error.
 */

package app

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/learnsphere/commission-service/internal/domain"
)

var (
	ErrRateOutOfRange     = errors.New("commission rate must be between 0 and 100")
	ErrUnknownPricingMode = errors.New("unknown pricing mode")
)

var oneHundred = decimal.NewFromInt(100)

// ValidateRate rejects rates outside [0, 100] before any calculation or write.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(oneHundred) {
		return fmt.Errorf("%w: got %s", ErrRateOutOfRange, rate)
	}
	return nil
}

// ComputeRevenue derives a session's total revenue from its pricing mode and
// confirmed participation. Only confirmed participants count; raw
// registrations never enter the calculation.
func ComputeRevenue(session *domain.Session) (decimal.Decimal, error) {
	confirmed := decimal.NewFromInt(int64(session.ConfirmedCount))
	switch session.PricingMode {
	case domain.PricingCreditBased:
		return session.CreditUnitPrice.Mul(confirmed), nil
	case domain.PricingFixed:
		return session.FixedPrice.Mul(confirmed), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownPricingMode, session.PricingMode)
	}
}

// ComputeCommission returns round(revenue x rate / 100, 2).
func ComputeCommission(revenue, rate decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateRate(rate); err != nil {
		return decimal.Zero, err
	}
	return revenue.Mul(rate).Div(oneHundred).Round(2), nil
}
