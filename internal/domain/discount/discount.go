// Package discount holds the pure functions that turn a raw sales total and a
// requested NIS discount into discount-adjusted amounts and balances.
//
// Calculate clamps an over-limit discount to the total, while Validate rejects
// it. Write paths call Validate before storing a discount; Calculate is used
// for derivation so that a discount that later exceeds a shrunken total never
// produces a negative amount.
package discount

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RemovalMarker prefixes the reason recorded when a discount is removed.
const RemovalMarker = "إزالة الخصم: "

// DefaultCurrencySymbol is the NIS symbol used in display strings.
const DefaultCurrencySymbol = "ش.ج"

var (
	// ErrNegativeDiscount indicates a discount amount below zero.
	ErrNegativeDiscount = errors.New("discount amount cannot be negative")
	// ErrDiscountExceedsTotal indicates a discount larger than the total amount.
	ErrDiscountExceedsTotal = errors.New("discount cannot exceed the total amount")
	// ErrReasonRequired indicates an empty discount reason.
	ErrReasonRequired = errors.New("discount reason is required")
	// ErrActorRequired indicates an empty applied-by / removed-by field.
	ErrActorRequired = errors.New("discount applied by field is required")
)

// Result is the outcome of applying a discount to a total.
type Result struct {
	TotalAmountBeforeDiscount float64 `json:"totalAmountBeforeDiscount"`
	FinalTotalAmount          float64 `json:"finalTotalAmount"`
	Discount                  float64 `json:"discount"`
	EffectiveDiscount         float64 `json:"effectiveDiscount"`
	HasDiscount               bool    `json:"hasDiscount"`
}

// Application is a discount change with its audit trail.
type Application struct {
	Discount  float64   `json:"discount"`
	Reason    string    `json:"discountReason"`
	AppliedBy string    `json:"discountAppliedBy"`
	AppliedAt time.Time `json:"discountAppliedAt"`
}

// Calculate derives the discounted amounts. A negative discount counts as no
// discount and a discount above totalAmount is clamped to it.
func Calculate(totalAmount, discount float64) Result {
	total := decimal.NewFromFloat(totalAmount)
	requested := decimal.NewFromFloat(discount)
	if requested.IsNegative() {
		requested = decimal.Zero
	}

	effective := decimal.Min(requested, total)
	final := decimal.Max(decimal.Zero, total.Sub(effective))

	return Result{
		TotalAmountBeforeDiscount: totalAmount,
		FinalTotalAmount:          final.InexactFloat64(),
		Discount:                  requested.InexactFloat64(),
		EffectiveDiscount:         effective.InexactFloat64(),
		HasDiscount:               requested.IsPositive(),
	}
}

// CustomerBalance returns the discounted total minus what has been paid. The
// result is negative when the customer overpaid.
func CustomerBalance(totalAmount, totalPaidNIS, discount float64) float64 {
	final := decimal.NewFromFloat(Calculate(totalAmount, discount).FinalTotalAmount)
	return final.Sub(decimal.NewFromFloat(totalPaidNIS)).InexactFloat64()
}

// Apply builds a discount application stamped with the current time.
func Apply(newDiscount float64, reason, appliedBy string) (Application, error) {
	return ApplyAt(newDiscount, reason, appliedBy, time.Now().UTC())
}

// ApplyAt builds a discount application stamped with at.
func ApplyAt(newDiscount float64, reason, appliedBy string, at time.Time) (Application, error) {
	if newDiscount < 0 {
		return Application{}, ErrNegativeDiscount
	}
	reason, appliedBy = strings.TrimSpace(reason), strings.TrimSpace(appliedBy)
	if reason == "" {
		return Application{}, ErrReasonRequired
	}
	if appliedBy == "" {
		return Application{}, ErrActorRequired
	}

	return Application{
		Discount:  newDiscount,
		Reason:    reason,
		AppliedBy: appliedBy,
		AppliedAt: at,
	}, nil
}

// Remove builds an application that zeroes the discount, stamped with the current time.
func Remove(reason, removedBy string) (Application, error) {
	return RemoveAt(reason, removedBy, time.Now().UTC())
}

// RemoveAt builds an application that zeroes the discount, stamped with at.
func RemoveAt(reason, removedBy string, at time.Time) (Application, error) {
	reason, removedBy = strings.TrimSpace(reason), strings.TrimSpace(removedBy)
	if reason == "" {
		return Application{}, ErrReasonRequired
	}
	if removedBy == "" {
		return Application{}, ErrActorRequired
	}

	return Application{
		Discount:  0,
		Reason:    RemovalMarker + reason,
		AppliedBy: removedBy,
		AppliedAt: at,
	}, nil
}

// Validate rejects negative discounts and discounts above totalAmount.
func Validate(discount, totalAmount float64) error {
	if discount < 0 {
		return ErrNegativeDiscount
	}
	if decimal.NewFromFloat(discount).GreaterThan(decimal.NewFromFloat(totalAmount)) {
		return fmt.Errorf("%w: %s > %s", ErrDiscountExceedsTotal,
			decimal.NewFromFloat(discount).String(), decimal.NewFromFloat(totalAmount).String())
	}
	return nil
}

// FormatDisplay renders a discount for display, e.g. "خصم 150 ش.ج".
func FormatDisplay(discount float64, currency string) string {
	if discount <= 0 {
		return "لا يوجد خصم"
	}
	if currency == "" {
		currency = DefaultCurrencySymbol
	}
	return fmt.Sprintf("خصم %s %s", decimal.NewFromFloat(discount).String(), currency)
}

// Percentage returns the discount as a whole percentage of totalAmount.
func Percentage(discount, totalAmount float64) int {
	if totalAmount <= 0 || discount <= 0 {
		return 0
	}
	pct := decimal.NewFromFloat(discount).
		Div(decimal.NewFromFloat(totalAmount)).
		Mul(decimal.NewFromInt(100)).
		Round(0)
	return int(pct.IntPart())
}

// HasActive reports whether discount is a real, positive discount.
func HasActive(discount float64) bool {
	return discount > 0
}

// Savings returns how much the discount saved, never negative.
func Savings(totalAmountBeforeDiscount, finalTotalAmount float64) float64 {
	saved := decimal.NewFromFloat(totalAmountBeforeDiscount).Sub(decimal.NewFromFloat(finalTotalAmount))
	return decimal.Max(decimal.Zero, saved).InexactFloat64()
}
