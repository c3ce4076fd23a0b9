package models

import "time"

// BalanceReport aggregates the ledgers of every customer of one actor.
type BalanceReport struct {
	Date            time.Time      `bson:"date" json:"date"`
	Customers       int            `bson:"customers" json:"customers"`
	TotalSales      float64        `bson:"totalSales" json:"totalSales"`
	TotalDiscounts  float64        `bson:"totalDiscounts" json:"totalDiscounts"`
	TotalPaidNIS    float64        `bson:"totalPaidNIS" json:"totalPaidNIS"`
	Outstanding     float64        `bson:"outstanding" json:"outstanding"`
	Overpaid        float64        `bson:"overpaid" json:"overpaid"`
	Debtors         []DebtorLine   `bson:"debtors" json:"debtors"`
	AnimalsByStatus map[string]int `bson:"animalsByStatus" json:"animalsByStatus"`
	CreatedAt       time.Time      `bson:"createdAt" json:"createdAt"`
}

// DebtorLine is one customer with a positive balance.
type DebtorLine struct {
	CustomerID       string  `bson:"customerId" json:"customerId"`
	Name             string  `bson:"name" json:"name"`
	Phone            string  `bson:"phone,omitempty" json:"phone,omitempty"`
	FinalTotalAmount float64 `bson:"finalTotalAmount" json:"finalTotalAmount"`
	TotalPaidNIS     float64 `bson:"totalPaidNIS" json:"totalPaidNIS"`
	Balance          float64 `bson:"balance" json:"balance"`
}
