package models

import "time"

// Currency is the ISO-ish code of a payment currency.
type Currency string

const (
	CurrencyNIS Currency = "NIS"
	CurrencyJOD Currency = "JOD"
	CurrencyUSD Currency = "USD"
)

// PaymentPart is one currency slice of a payment transaction.
type PaymentPart struct {
	ID            string   `bson:"id" json:"id"`
	Amount        float64  `bson:"amount" json:"amount"`
	Currency      Currency `bson:"currency" json:"currency"`
	NISEquivalent float64  `bson:"nisEquivalent,omitempty" json:"nisEquivalent,omitempty"`
	Method        string   `bson:"method,omitempty" json:"method,omitempty"`
}

// PaymentDetail is a payment transaction embedded in a customer record.
type PaymentDetail struct {
	ID                  string        `bson:"id" json:"id"`
	Parts               []PaymentPart `bson:"parts" json:"parts"`
	TotalTransactionNIS float64       `bson:"totalTransactionNIS" json:"totalTransactionNIS"`
	PaymentDate         time.Time     `bson:"paymentDate" json:"paymentDate"`
	Notes               string        `bson:"notes,omitempty" json:"notes,omitempty"`
}

// PaymentPartInput is the caller-supplied shape of a payment part.
type PaymentPartInput struct {
	ID            string   `json:"id,omitempty"`
	Amount        float64  `json:"amount"`
	Currency      Currency `json:"currency"`
	NISEquivalent float64  `json:"nisEquivalent,omitempty"`
	Method        string   `json:"method,omitempty"`
}

// PaymentDetailInput is the caller-supplied shape of a payment transaction.
type PaymentDetailInput struct {
	ID          string             `json:"id,omitempty"`
	Parts       []PaymentPartInput `json:"parts"`
	PaymentDate time.Time          `json:"paymentDate"`
	Notes       string             `json:"notes,omitempty"`
}

// StoredPayment is an entry of the standalone payment log.
type StoredPayment struct {
	ID            string    `bson:"-" json:"id"`
	CustomerID    string    `bson:"customerId" json:"customerId"`
	Amount        float64   `bson:"amount" json:"amount"`
	Currency      Currency  `bson:"currency" json:"currency"`
	NISEquivalent float64   `bson:"nisEquivalent,omitempty" json:"nisEquivalent,omitempty"`
	PaymentDate   time.Time `bson:"paymentDate" json:"paymentDate"`
	Method        string    `bson:"method,omitempty" json:"method,omitempty"`
	Notes         string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NewPayment is the request to append an entry to the payment log.
type NewPayment struct {
	CustomerID    string    `json:"customerId" binding:"required"`
	Amount        float64   `json:"amount"`
	Currency      Currency  `json:"currency"`
	NISEquivalent float64   `json:"nisEquivalent,omitempty"`
	PaymentDate   time.Time `json:"paymentDate"`
	Method        string    `json:"method,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// Reconciliation compares the payment log with a customer's embedded payments.
type Reconciliation struct {
	CustomerID    string  `json:"customerId"`
	LedgerPaidNIS float64 `json:"ledgerPaidNIS"`
	LogPaidNIS    float64 `json:"logPaidNIS"`
	Difference    float64 `json:"difference"`
	InSync        bool    `json:"inSync"`
}
