package models

import (
	"log"

	"github.com/sitelinehq/contractor_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Client{},
		&Project{}, &Milestone{},
		&ProjectInvoice{}, &ProjectInvoiceDetail{}, &InvoicePayment{},
		&Expense{}, &ExpensePayment{},
		&User{},
		&QboConnection{}, &QboEntityReference{}, &QboSyncLog{}, &QboSyncRun{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
