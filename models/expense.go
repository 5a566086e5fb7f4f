package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a project cost payable to a vendor (the payee). Syncing an
// expense creates a QBO Bill against a QBO Vendor derived from the payee.
type Expense struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	ProjectId       int             `gorm:"index" json:"project_id"`
	Payee           string          `gorm:"size:255;not null" json:"payee" binding:"required"`
	Category        string          `gorm:"size:100" json:"category"`
	ExpenseDate     time.Time       `gorm:"not null" json:"expense_date" binding:"required"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	ReferenceNumber string          `gorm:"size:255" json:"reference_number"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ExpensePayment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	ExpenseId       int             `gorm:"index;not null" json:"expense_id" binding:"required"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date" binding:"required"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaymentMethod   string          `gorm:"size:50" json:"payment_method"`
	ReferenceNumber string          `gorm:"size:255" json:"reference_number"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
