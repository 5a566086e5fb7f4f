package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectInvoice bills a client for one or more project milestones.
type ProjectInvoice struct {
	ID            int                     `gorm:"primary_key" json:"id"`
	BusinessId    string                  `gorm:"index;not null" json:"business_id" binding:"required"`
	ClientId      int                     `gorm:"index;not null" json:"client_id" binding:"required"`
	ProjectId     int                     `gorm:"index;not null" json:"project_id" binding:"required"`
	InvoiceNumber string                  `gorm:"size:255;not null" json:"invoice_number" binding:"required"`
	InvoiceDate   time.Time               `gorm:"not null" json:"invoice_date" binding:"required"`
	DueDate       *time.Time              `json:"due_date"`
	Status        InvoiceStatus           `gorm:"size:20;not null;default:'draft'" json:"status"`
	TotalAmount   decimal.Decimal         `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Details       []*ProjectInvoiceDetail `gorm:"foreignKey:InvoiceId" json:"details"`
	Notes         string                  `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProjectInvoiceDetail struct {
	ID          int             `gorm:"primary_key" json:"id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id"`
	MilestoneId int             `gorm:"index" json:"milestone_id"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type InvoicePayment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	InvoiceId       int             `gorm:"index;not null" json:"invoice_id" binding:"required"`
	ClientId        int             `gorm:"index;not null" json:"client_id" binding:"required"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date" binding:"required"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaymentMethod   string          `gorm:"size:50" json:"payment_method"`
	ReferenceNumber string          `gorm:"size:255" json:"reference_number"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
