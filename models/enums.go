package models

// LocalEntityType identifies a syncable local entity kind.
type LocalEntityType string

const (
	LocalEntityClient         LocalEntityType = "client"
	LocalEntityExpense        LocalEntityType = "expense"
	LocalEntityExpensePayment LocalEntityType = "expense_payment"
	LocalEntityInvoice        LocalEntityType = "invoice"
	LocalEntityInvoicePayment LocalEntityType = "invoice_payment"

	// LocalEntityVendor is derived from an expense's payee. It has no local
	// row of its own; the payee name acts as the local id.
	LocalEntityVendor LocalEntityType = "vendor"
)

// QboEntityType identifies the QuickBooks Online resource an entity maps to.
type QboEntityType string

const (
	QboEntityCustomer    QboEntityType = "customer"
	QboEntityVendor      QboEntityType = "vendor"
	QboEntityBill        QboEntityType = "bill"
	QboEntityBillPayment QboEntityType = "billpayment"
	QboEntityInvoice     QboEntityType = "invoice"
	QboEntityPayment     QboEntityType = "payment"
)

type ProjectStatus string

const (
	ProjectStatusPlanning   ProjectStatus = "planning"
	ProjectStatusActive     ProjectStatus = "active"
	ProjectStatusOnHold     ProjectStatus = "on_hold"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusCancelled  ProjectStatus = "cancelled"
)

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusInvoiced  MilestoneStatus = "invoiced"
	MilestoneStatusPaid      MilestoneStatus = "paid"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleOwner UserRole = "O"
	UserRoleStaff UserRole = "S"
)
