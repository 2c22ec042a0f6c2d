package app

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/learnsphere/commission-service/internal/domain"
)

func TestComputeRevenue_CreditBased(t *testing.T) {
	session := &domain.Session{
		PricingMode:     domain.PricingCreditBased,
		CreditUnitPrice: decimal.RequireFromString("12.00"),
		ConfirmedCount:  8,
	}

	revenue, err := ComputeRevenue(session)
	if err != nil {
		t.Fatalf("ComputeRevenue returned error: %v", err)
	}
	if !revenue.Equal(decimal.RequireFromString("96.00")) {
		t.Fatalf("expected revenue 96.00, got %s", revenue)
	}
}

func TestComputeRevenue_FixedPrice(t *testing.T) {
	session := &domain.Session{
		PricingMode:    domain.PricingFixed,
		FixedPrice:     decimal.RequireFromString("25.00"),
		ConfirmedCount: 4,
	}

	revenue, err := ComputeRevenue(session)
	if err != nil {
		t.Fatalf("ComputeRevenue returned error: %v", err)
	}
	if !revenue.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected revenue 100.00, got %s", revenue)
	}
}

func TestComputeRevenue_ZeroConfirmedIsZeroRevenue(t *testing.T) {
	session := &domain.Session{
		PricingMode:     domain.PricingCreditBased,
		CreditUnitPrice: decimal.RequireFromString("12.00"),
		ConfirmedCount:  0,
	}

	revenue, err := ComputeRevenue(session)
	if err != nil {
		t.Fatalf("expected zero participants to be a valid outcome, got error: %v", err)
	}
	if !revenue.IsZero() {
		t.Fatalf("expected zero revenue, got %s", revenue)
	}
}

func TestComputeRevenue_RejectsUnknownPricingMode(t *testing.T) {
	session := &domain.Session{
		PricingMode:    domain.PricingMode("SUBSCRIPTION"),
		ConfirmedCount: 3,
	}

	if _, err := ComputeRevenue(session); !errors.Is(err, ErrUnknownPricingMode) {
		t.Fatalf("expected ErrUnknownPricingMode, got %v", err)
	}
}

func TestComputeCommission_RoundsToTwoDecimals(t *testing.T) {
	revenue := decimal.RequireFromString("96.00")
	rate := decimal.RequireFromString("15")

	amount, err := ComputeCommission(revenue, rate)
	if err != nil {
		t.Fatalf("ComputeCommission returned error: %v", err)
	}
	if !amount.Equal(decimal.RequireFromString("14.40")) {
		t.Fatalf("expected commission 14.40, got %s", amount)
	}

	// 100.01 at 12.5% is 12.50125; half-up rounding lands on 12.50.
	amount, err = ComputeCommission(decimal.RequireFromString("100.01"), decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("ComputeCommission returned error: %v", err)
	}
	if !amount.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected commission 12.50, got %s", amount)
	}
}

func TestComputeCommission_NoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 style inputs must not accumulate binary-float error.
	revenue := decimal.RequireFromString("0.30")
	rate := decimal.RequireFromString("10")

	amount, err := ComputeCommission(revenue, rate)
	if err != nil {
		t.Fatalf("ComputeCommission returned error: %v", err)
	}
	if !amount.Equal(decimal.RequireFromString("0.03")) {
		t.Fatalf("expected commission 0.03, got %s", amount)
	}
}

func TestValidateRate_Bounds(t *testing.T) {
	for _, valid := range []string{"0", "15", "100"} {
		if err := ValidateRate(decimal.RequireFromString(valid)); err != nil {
			t.Fatalf("expected rate %s to be valid, got %v", valid, err)
		}
	}
	for _, invalid := range []string{"-0.01", "100.01", "150"} {
		if err := ValidateRate(decimal.RequireFromString(invalid)); !errors.Is(err, ErrRateOutOfRange) {
			t.Fatalf("expected rate %s to be rejected, got %v", invalid, err)
		}
	}
}
