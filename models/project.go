package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Project struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id" binding:"required"`
	ClientId       int             `gorm:"index;not null" json:"client_id" binding:"required"`
	Name           string          `gorm:"size:255;not null" json:"name" binding:"required"`
	SiteAddress    string          `gorm:"size:255" json:"site_address"`
	Status         ProjectStatus   `gorm:"size:20;not null;default:'planning'" json:"status"`
	ContractAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"contract_amount"`
	StartDate      *time.Time      `json:"start_date"`
	EndDate        *time.Time      `json:"end_date"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type Milestone struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id" binding:"required"`
	ProjectId  int             `gorm:"index;not null" json:"project_id" binding:"required"`
	Name       string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	DueDate    *time.Time      `json:"due_date"`
	Status     MilestoneStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
