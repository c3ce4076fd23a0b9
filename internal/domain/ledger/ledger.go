// Package ledger derives the financial fields of a customer record from its
// animal line items, payment transactions and discount.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/herdbook/internal/domain/discount"
	"github.com/mamadbah2/herdbook/internal/domain/models"
)

var (
	// ErrInvalidCurrency indicates a payment currency outside NIS/JOD/USD.
	ErrInvalidCurrency = errors.New("unsupported payment currency")
	// ErrMissingNISEquivalent indicates a foreign currency part without its NIS value.
	ErrMissingNISEquivalent = errors.New("nis equivalent is required for foreign currency payments")
	// ErrInvalidAnimal indicates an animal without a usable type/number or with negative quantities.
	ErrInvalidAnimal = errors.New("invalid animal")
	// ErrInvalidStatus indicates an unknown animal status.
	ErrInvalidStatus = errors.New("unknown animal status")
	// ErrInvalidStatusTransition indicates a forbidden animal status change.
	ErrInvalidStatusTransition = errors.New("animal can only be cancelled while alive")
	// ErrEmptyPayment indicates a payment transaction without parts.
	ErrEmptyPayment = errors.New("payment must contain at least one part")
)

// IDFunc generates opaque unique identifiers.
type IDFunc func() string

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// CompositeKey builds the duplicate-detection key of an animal.
func CompositeKey(animalType, number string) string {
	return animalType + "_" + number
}

// LineTotal returns weight * pricePerUnit.
func LineTotal(weight, pricePerUnit float64) float64 {
	return decimal.NewFromFloat(weight).Mul(decimal.NewFromFloat(pricePerUnit)).InexactFloat64()
}

// BuildAnimal turns caller input into a stored animal: assigns an id when
// missing, defaults the status to alive and derives total and composite key.
func BuildAnimal(in models.AnimalInput, newID IDFunc, now time.Time) (models.Animal, error) {
	animal := models.Animal{
		ID:           in.ID,
		Type:         strings.TrimSpace(in.Type),
		Number:       strings.TrimSpace(in.Number),
		Count:        in.Count,
		Weight:       in.Weight,
		PricePerUnit: in.PricePerUnit,
		Status:       in.Status,
		Notes:        in.Notes,
		CreatedAt:    now,
	}
	if animal.ID == "" {
		animal.ID = newID()
	}
	if animal.Status == "" {
		animal.Status = models.AnimalAlive
	}
	if err := validateAnimal(animal); err != nil {
		return models.Animal{}, err
	}

	deriveAnimal(&animal)
	return animal, nil
}

// BuildAnimals applies BuildAnimal to every input and returns the summed total.
func BuildAnimals(inputs []models.AnimalInput, newID IDFunc, now time.Time) ([]models.Animal, float64, error) {
	animals := make([]models.Animal, 0, len(inputs))
	for i, in := range inputs {
		animal, err := BuildAnimal(in, newID, now)
		if err != nil {
			return nil, 0, fmt.Errorf("animal %d: %w", i, err)
		}
		animals = append(animals, animal)
	}
	return animals, AnimalsTotal(animals), nil
}

// ApplyAnimalUpdate returns a copy of animal with upd merged in and the derived
// fields recomputed. Status transitions are not checked here.
func ApplyAnimalUpdate(animal models.Animal, upd models.AnimalUpdate) (models.Animal, error) {
	if upd.Type != nil {
		animal.Type = strings.TrimSpace(*upd.Type)
	}
	if upd.Number != nil {
		animal.Number = strings.TrimSpace(*upd.Number)
	}
	if upd.Count != nil {
		animal.Count = *upd.Count
	}
	if upd.Weight != nil {
		animal.Weight = *upd.Weight
	}
	if upd.PricePerUnit != nil {
		animal.PricePerUnit = *upd.PricePerUnit
	}
	if upd.Status != nil {
		animal.Status = *upd.Status
	}
	if upd.Notes != nil {
		animal.Notes = *upd.Notes
	}
	if err := validateAnimal(animal); err != nil {
		return models.Animal{}, err
	}

	deriveAnimal(&animal)
	return animal, nil
}

// CheckStatusTransition allows moving to cancelled only from alive. Every other
// transition is accepted.
func CheckStatusTransition(from, to models.AnimalStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if to == models.AnimalCancelled && from != models.AnimalCancelled && from != models.AnimalAlive {
		return fmt.Errorf("%w: current status %q", ErrInvalidStatusTransition, from)
	}
	return nil
}

// AnimalsTotal sums the line totals of animals.
func AnimalsTotal(animals []models.Animal) float64 {
	sum := decimal.Zero
	for _, a := range animals {
		sum = sum.Add(decimal.NewFromFloat(a.Total))
	}
	return sum.InexactFloat64()
}

// ValidateAmount checks that currency is supported and that a foreign amount
// carries its NIS equivalent.
func ValidateAmount(currency models.Currency, nisEquivalent float64) error {
	switch currency {
	case models.CurrencyNIS:
		return nil
	case models.CurrencyJOD, models.CurrencyUSD:
		if nisEquivalent <= 0 {
			return fmt.Errorf("%w (%s)", ErrMissingNISEquivalent, currency)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
}

// NISContribution is amount for NIS and nisEquivalent for any other currency.
func NISContribution(amount float64, currency models.Currency, nisEquivalent float64) float64 {
	if currency == models.CurrencyNIS {
		return amount
	}
	return nisEquivalent
}

// BuildPaymentDetail assigns ids to the transaction and its parts and computes
// the transaction NIS total.
func BuildPaymentDetail(in models.PaymentDetailInput, newID IDFunc, now time.Time) (models.PaymentDetail, error) {
	if len(in.Parts) == 0 {
		return models.PaymentDetail{}, ErrEmptyPayment
	}

	detail := models.PaymentDetail{
		ID:          in.ID,
		Parts:       make([]models.PaymentPart, 0, len(in.Parts)),
		PaymentDate: in.PaymentDate,
		Notes:       in.Notes,
	}
	if detail.ID == "" {
		detail.ID = newID()
	}
	if detail.PaymentDate.IsZero() {
		detail.PaymentDate = now
	}

	for i, p := range in.Parts {
		currency := p.Currency
		if currency == "" {
			currency = models.CurrencyNIS
		}
		if err := ValidateAmount(currency, p.NISEquivalent); err != nil {
			return models.PaymentDetail{}, fmt.Errorf("part %d: %w", i, err)
		}
		part := models.PaymentPart{
			ID:            p.ID,
			Amount:        p.Amount,
			Currency:      currency,
			NISEquivalent: p.NISEquivalent,
			Method:        p.Method,
		}
		if part.ID == "" {
			part.ID = newID()
		}
		detail.Parts = append(detail.Parts, part)
	}

	detail.TotalTransactionNIS = TransactionTotal(detail.Parts)
	return detail, nil
}

// BuildPayments applies BuildPaymentDetail to every input.
func BuildPayments(inputs []models.PaymentDetailInput, newID IDFunc, now time.Time) ([]models.PaymentDetail, error) {
	payments := make([]models.PaymentDetail, 0, len(inputs))
	for i, in := range inputs {
		detail, err := BuildPaymentDetail(in, newID, now)
		if err != nil {
			return nil, fmt.Errorf("payment %d: %w", i, err)
		}
		payments = append(payments, detail)
	}
	return payments, nil
}

// TransactionTotal sums the NIS contribution of every part.
func TransactionTotal(parts []models.PaymentPart) float64 {
	sum := decimal.Zero
	for _, p := range parts {
		sum = sum.Add(decimal.NewFromFloat(NISContribution(p.Amount, p.Currency, p.NISEquivalent)))
	}
	return sum.InexactFloat64()
}

// Recompute rederives every computed field of c from its animals, payments and
// discount. It is idempotent.
func Recompute(c *models.Customer) {
	for i := range c.Animals {
		deriveAnimal(&c.Animals[i])
	}
	c.TotalAmount = AnimalsTotal(c.Animals)

	paid := decimal.Zero
	for i := range c.Payments {
		c.Payments[i].TotalTransactionNIS = TransactionTotal(c.Payments[i].Parts)
		paid = paid.Add(decimal.NewFromFloat(c.Payments[i].TotalTransactionNIS))
	}
	c.TotalPaidNIS = paid.InexactFloat64()

	res := discount.Calculate(c.TotalAmount, c.Discount)
	c.TotalAmountBeforeDiscount = res.TotalAmountBeforeDiscount
	c.FinalTotalAmount = res.FinalTotalAmount
	c.Balance = discount.CustomerBalance(c.TotalAmount, c.TotalPaidNIS, c.Discount)
}

// ApplyDiscount stores app on c and recomputes the derived fields.
func ApplyDiscount(c *models.Customer, app discount.Application) {
	at := app.AppliedAt
	c.Discount = app.Discount
	c.DiscountReason = app.Reason
	c.DiscountAppliedBy = app.AppliedBy
	c.DiscountAppliedAt = &at
	Recompute(c)
}

func deriveAnimal(a *models.Animal) {
	a.Total = LineTotal(a.Weight, a.PricePerUnit)
	a.CompositeKey = CompositeKey(a.Type, a.Number)
}

func validateAnimal(a models.Animal) error {
	switch {
	case a.Type == "" || a.Number == "":
		return fmt.Errorf("%w: type and number are required", ErrInvalidAnimal)
	case strings.Contains(a.Type, "/") || strings.Contains(a.Number, "/"):
		return fmt.Errorf("%w: type and number must not contain '/'", ErrInvalidAnimal)
	case a.Weight < 0 || a.PricePerUnit < 0 || a.Count < 0:
		return fmt.Errorf("%w: weight, price and count must not be negative", ErrInvalidAnimal)
	case !a.Status.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidStatus, a.Status)
	}
	return nil
}
