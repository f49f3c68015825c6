package domain

import (
	"github.com/shopspring/decimal"
)

// MinChargeMinorUnits is the smallest amount the payment provider accepts (0.50)
const MinChargeMinorUnits int64 = 50

// DefaultCurrency is used when a request does not name one
const DefaultCurrency = "usd"

var (
	// FlatShipping is charged on every non-empty order
	FlatShipping = decimal.RequireFromString("5.99")

	hundred = decimal.NewFromInt(100)
)

// ShippingFor returns the shipping charge for a subtotal
func ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsPositive() {
		return FlatShipping
	}
	return decimal.Zero
}

// ToMinorUnits converts an amount to cents, rounding half away from zero
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts cents to an amount
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
