package models

import "time"

// Customer is the persisted customer record with its embedded ledger.
// TotalAmount, TotalAmountBeforeDiscount, FinalTotalAmount, TotalPaidNIS and
// Balance are derived and recomputed on every write.
type Customer struct {
	ID       string          `bson:"-" json:"id"`
	Name     string          `bson:"name" json:"name"`
	Phone    string          `bson:"phone,omitempty" json:"phone,omitempty"`
	Address  string          `bson:"address,omitempty" json:"address,omitempty"`
	Notes    string          `bson:"notes,omitempty" json:"notes,omitempty"`
	Animals  []Animal        `bson:"animals" json:"animals"`
	Payments []PaymentDetail `bson:"payments" json:"payments"`

	TotalAmount       float64    `bson:"totalAmount" json:"totalAmount"`
	Discount          float64    `bson:"discount" json:"discount"`
	DiscountReason    string     `bson:"discountReason,omitempty" json:"discountReason,omitempty"`
	DiscountAppliedBy string     `bson:"discountAppliedBy,omitempty" json:"discountAppliedBy,omitempty"`
	DiscountAppliedAt *time.Time `bson:"discountAppliedAt,omitempty" json:"discountAppliedAt,omitempty"`

	TotalAmountBeforeDiscount float64 `bson:"totalAmountBeforeDiscount" json:"totalAmountBeforeDiscount"`
	FinalTotalAmount          float64 `bson:"finalTotalAmount" json:"finalTotalAmount"`
	TotalPaidNIS              float64 `bson:"totalPaidNIS" json:"totalPaidNIS"`
	Balance                   float64 `bson:"balance" json:"balance"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NewCustomer is the request to create a customer.
type NewCustomer struct {
	Name              string               `json:"name" binding:"required"`
	Phone             string               `json:"phone,omitempty"`
	Address           string               `json:"address,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	Animals           []AnimalInput        `json:"animals"`
	Payments          []PaymentDetailInput `json:"payments"`
	Discount          float64              `json:"discount,omitempty"`
	DiscountReason    string               `json:"discountReason,omitempty"`
	DiscountAppliedBy string               `json:"discountAppliedBy,omitempty"`
}

// CustomerUpdate is a partial customer change. A nil Animals or Payments slice
// keeps the stored one; a non-nil slice replaces it wholesale.
type CustomerUpdate struct {
	ID                string               `json:"-"`
	Name              *string              `json:"name,omitempty"`
	Phone             *string              `json:"phone,omitempty"`
	Address           *string              `json:"address,omitempty"`
	Notes             *string              `json:"notes,omitempty"`
	Animals           []AnimalInput        `json:"animals,omitempty"`
	Payments          []PaymentDetailInput `json:"payments,omitempty"`
	Discount          *float64             `json:"discount,omitempty"`
	DiscountReason    string               `json:"discountReason,omitempty"`
	DiscountAppliedBy string               `json:"discountAppliedBy,omitempty"`
}

// DiscountRequest is the body of apply/remove discount calls.
type DiscountRequest struct {
	Discount  float64 `json:"discount"`
	Reason    string  `json:"reason" binding:"required"`
	AppliedBy string  `json:"appliedBy" binding:"required"`
}
