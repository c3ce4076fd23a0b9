package migrations

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/herdbook/internal/domain/ledger"
	"github.com/mamadbah2/herdbook/internal/domain/models"
)

// carriedOverNote marks the payment synthesized from a legacy running total.
const carriedOverNote = "رصيد مدفوع مرحّل"

var legacyStatuses = map[string]models.AnimalStatus{
	"":      models.AnimalAlive,
	"حي":    models.AnimalAlive,
	"جاهز":  models.AnimalReady,
	"مذبوح": models.AnimalSlaughtered,
	"ملغي":  models.AnimalCancelled,
}

var legacyCurrencies = map[string]models.Currency{
	"":      models.CurrencyNIS,
	"ILS":   models.CurrencyNIS,
	"₪":     models.CurrencyNIS,
	"شيكل":  models.CurrencyNIS,
	"دينار": models.CurrencyJOD,
	"$":     models.CurrencyUSD,
	"دولار": models.CurrencyUSD,
}

// normalizeCustomer maps a legacy or partially migrated customer document to
// the current model and recomputes its ledger.
func (m *Migrator) normalizeCustomer(raw bson.M) (models.Customer, error) {
	now := m.now()
	createdAt := toTime(raw["createdAt"], now)

	c := models.Customer{
		Name:              strings.TrimSpace(toString(raw["name"])),
		Phone:             toString(raw["phone"]),
		Address:           toString(raw["address"]),
		Notes:             toString(raw["notes"]),
		Discount:          discountAmount(raw["discount"]),
		DiscountReason:    toString(raw["discountReason"]),
		DiscountAppliedBy: toString(raw["discountAppliedBy"]),
		CreatedAt:         createdAt,
		UpdatedAt:         toTime(raw["updatedAt"], now),
	}
	if c.Name == "" {
		return models.Customer{}, fmt.Errorf("%w: customer name is missing", ErrInvalidRecord)
	}
	if v, ok := raw["discountAppliedAt"]; ok && v != nil {
		at := toTime(v, now)
		c.DiscountAppliedAt = &at
	}

	for i, item := range toArray(raw["animals"]) {
		doc, ok := item.(bson.M)
		if !ok {
			return models.Customer{}, fmt.Errorf("%w: animal %d is not a document", ErrInvalidRecord, i)
		}
		animal, err := m.normalizeAnimal(doc, createdAt)
		if err != nil {
			return models.Customer{}, fmt.Errorf("animal %d: %w", i, err)
		}
		c.Animals = append(c.Animals, animal)
	}
	if len(c.Animals) == 0 && toFloat(raw["totalAmount"]) > 0 {
		return models.Customer{}, fmt.Errorf("%w: customer has a total amount but no animals", ErrInvalidRecord)
	}

	for i, item := range toArray(raw["payments"]) {
		doc, ok := item.(bson.M)
		if !ok {
			return models.Customer{}, fmt.Errorf("%w: payment %d is not a document", ErrInvalidRecord, i)
		}
		detail, err := m.normalizePaymentDetail(doc, createdAt)
		if err != nil {
			return models.Customer{}, fmt.Errorf("payment %d: %w", i, err)
		}
		c.Payments = append(c.Payments, detail)
	}
	if len(c.Payments) == 0 {
		paid := toFloat(raw["totalPaidNIS"])
		if paid == 0 {
			paid = toFloat(raw["totalPayments"])
		}
		if paid > 0 {
			detail, err := ledger.BuildPaymentDetail(models.PaymentDetailInput{
				Parts:       []models.PaymentPartInput{{Amount: paid, Currency: models.CurrencyNIS}},
				PaymentDate: createdAt,
				Notes:       carriedOverNote,
			}, m.newID, createdAt)
			if err != nil {
				return models.Customer{}, err
			}
			c.Payments = append(c.Payments, detail)
		}
	}

	ledger.Recompute(&c)
	return c, nil
}

func (m *Migrator) normalizeAnimal(raw bson.M, fallback time.Time) (models.Animal, error) {
	status, ok := legacyStatus(toString(raw["status"]))
	if !ok {
		return models.Animal{}, fmt.Errorf("%w: unknown animal status %q", ErrInvalidRecord, toString(raw["status"]))
	}

	price := toFloat(raw["pricePerUnit"])
	if _, ok := raw["pricePerUnit"]; !ok {
		price = toFloat(raw["price"])
	}

	animal, err := ledger.BuildAnimal(models.AnimalInput{
		ID:           toString(raw["id"]),
		Type:         toString(raw["type"]),
		Number:       toString(raw["number"]),
		Count:        int(toFloat(raw["count"])),
		Weight:       toFloat(raw["weight"]),
		PricePerUnit: price,
		Status:       status,
		Notes:        toString(raw["notes"]),
	}, m.newID, toTime(raw["createdAt"], fallback))
	if err != nil {
		return models.Animal{}, err
	}
	return animal, nil
}

// normalizePaymentDetail accepts both the multi-part shape and the older flat
// shape where the transaction itself carried amount and currency.
func (m *Migrator) normalizePaymentDetail(raw bson.M, fallback time.Time) (models.PaymentDetail, error) {
	in := models.PaymentDetailInput{
		ID:          toString(raw["id"]),
		PaymentDate: toTime(raw["paymentDate"], fallback),
		Notes:       toString(raw["notes"]),
	}

	parts := toArray(raw["parts"])
	multiPart := len(parts) > 0
	if !multiPart {
		parts = []interface{}{raw}
	}
	for i, item := range parts {
		doc, ok := item.(bson.M)
		if !ok {
			return models.PaymentDetail{}, fmt.Errorf("%w: part %d is not a document", ErrInvalidRecord, i)
		}
		currency, ok := legacyCurrency(toString(doc["currency"]))
		if !ok {
			return models.PaymentDetail{}, fmt.Errorf("%w: unknown currency %q", ErrInvalidRecord, toString(doc["currency"]))
		}
		part := models.PaymentPartInput{
			Amount:        toFloat(doc["amount"]),
			Currency:      currency,
			NISEquivalent: toFloat(doc["nisEquivalent"]),
			Method:        toString(doc["method"]),
		}
		if multiPart {
			part.ID = toString(doc["id"])
		}
		in.Parts = append(in.Parts, part)
	}

	return ledger.BuildPaymentDetail(in, m.newID, fallback)
}

func (m *Migrator) normalizePayment(raw bson.M) (models.StoredPayment, error) {
	now := m.now()
	createdAt := toTime(raw["createdAt"], now)

	currency, ok := legacyCurrency(toString(raw["currency"]))
	if !ok {
		return models.StoredPayment{}, fmt.Errorf("%w: unknown currency %q", ErrInvalidRecord, toString(raw["currency"]))
	}

	p := models.StoredPayment{
		CustomerID:    toString(raw["customerId"]),
		Amount:        toFloat(raw["amount"]),
		Currency:      currency,
		NISEquivalent: toFloat(raw["nisEquivalent"]),
		PaymentDate:   toTime(raw["paymentDate"], createdAt),
		Method:        toString(raw["method"]),
		Notes:         toString(raw["notes"]),
		CreatedAt:     createdAt,
		UpdatedAt:     toTime(raw["updatedAt"], now),
	}
	if p.CustomerID == "" {
		return models.StoredPayment{}, fmt.Errorf("%w: payment has no customer id", ErrInvalidRecord)
	}
	if err := ledger.ValidateAmount(p.Currency, p.NISEquivalent); err != nil {
		return models.StoredPayment{}, err
	}
	return p, nil
}

func (m *Migrator) normalizeRegistryEntry(raw bson.M) (models.RegistryEntry, error) {
	animal, err := m.normalizeAnimal(raw, m.now())
	if err != nil {
		return models.RegistryEntry{}, err
	}
	return models.RegistryEntry{Animal: animal, CustomerID: toString(raw["customerId"])}, nil
}

func legacyStatus(label string) (models.AnimalStatus, bool) {
	label = strings.TrimSpace(label)
	if s := models.AnimalStatus(strings.ToLower(label)); s.Valid() {
		return s, true
	}
	s, ok := legacyStatuses[label]
	return s, ok
}

func legacyCurrency(code string) (models.Currency, bool) {
	code = strings.TrimSpace(code)
	switch c := models.Currency(strings.ToUpper(code)); c {
	case models.CurrencyNIS, models.CurrencyJOD, models.CurrencyUSD:
		return c, true
	}
	c, ok := legacyCurrencies[strings.ToUpper(code)]
	return c, ok
}

// discountAmount reads a discount stored either as a number or as an
// {amount: n} document.
func discountAmount(v interface{}) float64 {
	if doc, ok := v.(bson.M); ok {
		return toFloat(doc["amount"])
	}
	return toFloat(v)
}

// toArray accepts a real array or an object keyed by array index.
func toArray(v interface{}) []interface{} {
	switch a := v.(type) {
	case bson.A:
		return a
	case []interface{}:
		return a
	case bson.M:
		keys := make([]string, 0, len(a))
		for k := range a {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			ni, erri := strconv.Atoi(keys[i])
			nj, errj := strconv.Atoi(keys[j])
			if erri == nil && errj == nil {
				return ni < nj
			}
			return keys[i] < keys[j]
		})
		out := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			out = append(out, a[k])
		}
		return out
	default:
		return nil
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case primitive.Decimal128:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	default:
		return 0
	}
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, int32, int64, primitive.Decimal128:
		return true
	default:
		return false
	}
}

func sameAmount(a, b float64) bool {
	return decimal.NewFromFloat(a).Equal(decimal.NewFromFloat(b))
}

// toTime reads a BSON date, epoch milliseconds or an RFC 3339 string.
func toTime(v interface{}, fallback time.Time) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case int64:
		if t > 0 {
			return time.UnixMilli(t).UTC()
		}
	case float64:
		if t > 0 {
			return time.UnixMilli(int64(t)).UTC()
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UTC()
		}
	}
	return fallback
}
