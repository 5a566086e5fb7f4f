package models

import (
	"time"
)

// Client is a construction client (the party billed for a project).
type Client struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	BusinessId         string    `gorm:"index;not null" json:"business_id" binding:"required"`
	Name               string    `gorm:"size:100;not null" json:"name" binding:"required"`
	CompanyName        string    `gorm:"size:100" json:"company_name"`
	Email              string    `gorm:"size:100" json:"email"`
	Phone              string    `gorm:"size:20" json:"phone"`
	Mobile             string    `gorm:"size:20" json:"mobile"`
	BillingStreet      string    `gorm:"size:255" json:"billing_street"`
	BillingCity        string    `gorm:"size:100" json:"billing_city"`
	BillingState       string    `gorm:"size:100" json:"billing_state"`
	BillingPostalCode  string    `gorm:"size:20" json:"billing_postal_code"`
	Notes              string    `gorm:"type:text" json:"notes"`
	IsActive           *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	Name              string `json:"name" binding:"required"`
	CompanyName       string `json:"company_name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Mobile            string `json:"mobile"`
	BillingStreet     string `json:"billing_street"`
	BillingCity       string `json:"billing_city"`
	BillingState      string `json:"billing_state"`
	BillingPostalCode string `json:"billing_postal_code"`
	Notes             string `json:"notes"`
}
