package models

import "time"

// AnimalStatus enumerates the lifecycle states of a sold animal.
type AnimalStatus string

const (
	AnimalAlive       AnimalStatus = "alive"
	AnimalReady       AnimalStatus = "ready"
	AnimalSlaughtered AnimalStatus = "slaughtered"
	AnimalCancelled   AnimalStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s AnimalStatus) Valid() bool {
	switch s {
	case AnimalAlive, AnimalReady, AnimalSlaughtered, AnimalCancelled:
		return true
	default:
		return false
	}
}

// Animal is a sale line item attached to a customer.
type Animal struct {
	ID           string       `bson:"id" json:"id"`
	Type         string       `bson:"type" json:"type"`
	Number       string       `bson:"number" json:"number"`
	Count        int          `bson:"count,omitempty" json:"count,omitempty"`
	Weight       float64      `bson:"weight" json:"weight"`
	PricePerUnit float64      `bson:"pricePerUnit" json:"pricePerUnit"`
	Total        float64      `bson:"total" json:"total"` // weight * pricePerUnit
	Status       AnimalStatus `bson:"status" json:"status"`
	CompositeKey string       `bson:"compositeKey" json:"compositeKey"`
	Notes        string       `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt    time.Time    `bson:"createdAt" json:"createdAt"`
}

// AnimalInput is the caller-supplied shape of a new or replaced animal.
// Total and CompositeKey are always derived and therefore absent.
type AnimalInput struct {
	ID           string       `json:"id,omitempty"`
	Type         string       `json:"type" binding:"required"`
	Number       string       `json:"number" binding:"required"`
	Count        int          `json:"count,omitempty"`
	Weight       float64      `json:"weight"`
	PricePerUnit float64      `json:"pricePerUnit"`
	Status       AnimalStatus `json:"status,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// AnimalUpdate carries a partial animal change; nil fields are left untouched.
type AnimalUpdate struct {
	Type         *string       `json:"type,omitempty"`
	Number       *string       `json:"number,omitempty"`
	Count        *int          `json:"count,omitempty"`
	Weight       *float64      `json:"weight,omitempty"`
	PricePerUnit *float64      `json:"pricePerUnit,omitempty"`
	Status       *AnimalStatus `json:"status,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
}

// RegistryEntry is an animal as recorded in the per-actor duplicate registry.
type RegistryEntry struct {
	Animal     `bson:",inline"`
	CustomerID string `bson:"customerId" json:"customerId"`
}
