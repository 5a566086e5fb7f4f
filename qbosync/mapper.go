package qbosync

import (
	"strconv"
	"strings"

	"github.com/sitelinehq/contractor_backend/models"
	"github.com/sitelinehq/contractor_backend/utils"
)

const dateLayout = "2006-01-02"

// Mapper builds QBO payloads from local entities. All mapping methods are
// pure: they touch no storage and make no network calls, which is what keeps
// them trivially testable. Correlated QBO ids (the customer behind an
// invoice, the bill behind a payment) are passed in by the orchestrator,
// already resolved through the ledger.
type Mapper struct {
	// DefaultItemRef is the QBO service item used for every invoice line.
	// Milestone billing has no per-line item catalog locally.
	DefaultItemRef string
	// DefaultExpenseAccountRef is the QBO expense account used for bill
	// lines when the expense category carries no account mapping.
	DefaultExpenseAccountRef string
}

func NewMapper(cfg Config) *Mapper {
	return &Mapper{
		DefaultItemRef:           cfg.DefaultItemRef,
		DefaultExpenseAccountRef: cfg.DefaultExpenseAccountRef,
	}
}

func (m *Mapper) MapClient(client *models.Client) (*CustomerPayload, error) {
	if strings.TrimSpace(client.Name) == "" {
		return nil, &MappingError{
			EntityType: models.LocalEntityClient,
			EntityId:   strconv.Itoa(client.ID),
			Reason:     "client name is empty",
		}
	}

	payload := &CustomerPayload{
		DisplayName: client.Name,
		CompanyName: client.CompanyName,
		Notes:       client.Notes,
		Active:      client.IsActive == nil || *client.IsActive,
	}
	if client.Email != "" {
		payload.PrimaryEmailAddr = &EmailAddress{Address: client.Email}
	}
	if client.Phone != "" {
		payload.PrimaryPhone = &TelephoneNumber{FreeFormNumber: utils.FormatPhoneNumber(client.Phone, utils.CountryCode)}
	}
	if client.Mobile != "" {
		payload.Mobile = &TelephoneNumber{FreeFormNumber: utils.FormatPhoneNumber(client.Mobile, utils.CountryCode)}
	}
	if client.BillingStreet != "" || client.BillingCity != "" || client.BillingState != "" || client.BillingPostalCode != "" {
		payload.BillAddr = &PhysicalAddress{
			Line1:                  client.BillingStreet,
			City:                   client.BillingCity,
			CountrySubDivisionCode: client.BillingState,
			PostalCode:             client.BillingPostalCode,
		}
	}
	return payload, nil
}

func (m *Mapper) MapVendor(payee string) (*VendorPayload, error) {
	name := strings.TrimSpace(payee)
	if name == "" {
		return nil, &MappingError{
			EntityType: models.LocalEntityVendor,
			EntityId:   payee,
			Reason:     "payee name is empty",
		}
	}
	return &VendorPayload{DisplayName: name}, nil
}

func (m *Mapper) MapExpense(expense *models.Expense, vendorQboId string) (*BillPayload, error) {
	id := strconv.Itoa(expense.ID)
	if vendorQboId == "" {
		return nil, &MappingError{
			EntityType: models.LocalEntityExpense,
			EntityId:   id,
			Reason:     "vendor is not synced",
		}
	}
	if !expense.Amount.IsPositive() {
		return nil, &MappingError{
			EntityType: models.LocalEntityExpense,
			EntityId:   id,
			Reason:     "amount must be positive",
		}
	}

	description := expense.Category
	if expense.Notes != "" {
		description = strings.TrimSpace(description + " " + expense.Notes)
	}
	return &BillPayload{
		VendorRef: Ref{Value: vendorQboId},
		TxnDate:   expense.ExpenseDate.Format(dateLayout),
		DocNumber: expense.ReferenceNumber,
		Line: []Line{{
			Amount:      jsonAmount(expense.Amount),
			DetailType:  "AccountBasedExpenseLineDetail",
			Description: description,
			AccountBasedExpenseLineDetail: &AccountBasedLineDetail{
				AccountRef: Ref{Value: m.DefaultExpenseAccountRef},
			},
		}},
	}, nil
}

func (m *Mapper) MapExpensePayment(payment *models.ExpensePayment, vendorQboId string, billQboId string) (*BillPaymentPayload, error) {
	id := strconv.Itoa(payment.ID)
	if vendorQboId == "" {
		return nil, &MappingError{
			EntityType: models.LocalEntityExpensePayment,
			EntityId:   id,
			Reason:     "vendor is not synced",
		}
	}
	if billQboId == "" {
		return nil, &MappingError{
			EntityType: models.LocalEntityExpensePayment,
			EntityId:   id,
			Reason:     "expense is not synced",
		}
	}
	if !payment.Amount.IsPositive() {
		return nil, &MappingError{
			EntityType: models.LocalEntityExpensePayment,
			EntityId:   id,
			Reason:     "amount must be positive",
		}
	}

	return &BillPaymentPayload{
		VendorRef: Ref{Value: vendorQboId},
		PayType:   payTypeFromMethod(payment.PaymentMethod),
		TxnDate:   payment.PaymentDate.Format(dateLayout),
		TotalAmt:  jsonAmount(payment.Amount),
		DocNumber: payment.ReferenceNumber,
		Line: []BillPaymentLine{{
			Amount: jsonAmount(payment.Amount),
			LinkedTxn: []LinkedTxn{{
				TxnId:   billQboId,
				TxnType: "Bill",
			}},
		}},
	}, nil
}

func (m *Mapper) MapInvoice(invoice *models.ProjectInvoice, customerQboId string) (*InvoicePayload, error) {
	id := strconv.Itoa(invoice.ID)
	if customerQboId == "" {
		return nil, &MappingError{
			EntityType: models.LocalEntityInvoice,
			EntityId:   id,
			Reason:     "client is not synced",
		}
	}
	if len(invoice.Details) == 0 {
		return nil, &MappingError{
			EntityType: models.LocalEntityInvoice,
			EntityId:   id,
			Reason:     "invoice has no lines",
		}
	}

	lines := make([]Line, 0, len(invoice.Details))
	for _, detail := range invoice.Details {
		lines = append(lines, Line{
			Amount:      jsonAmount(detail.Amount),
			DetailType:  "SalesItemLineDetail",
			Description: detail.Description,
			SalesItemLineDetail: &SalesItemLineDetail{
				ItemRef: Ref{Value: m.DefaultItemRef},
			},
		})
	}

	payload := &InvoicePayload{
		CustomerRef: Ref{Value: customerQboId},
		TxnDate:     invoice.InvoiceDate.Format(dateLayout),
		DocNumber:   invoice.InvoiceNumber,
		Line:        lines,
	}
	if invoice.DueDate != nil {
		payload.DueDate = invoice.DueDate.Format(dateLayout)
	}
	return payload, nil
}

func (m *Mapper) MapInvoicePayment(payment *models.InvoicePayment, customerQboId string, invoiceQboId string) (*PaymentPayload, error) {
	id := strconv.Itoa(payment.ID)
	if customerQboId == "" {
		return nil, &MappingError{
			EntityType: models.LocalEntityInvoicePayment,
			EntityId:   id,
			Reason:     "client is not synced",
		}
	}
	if invoiceQboId == "" {
		return nil, &MappingError{
			EntityType: models.LocalEntityInvoicePayment,
			EntityId:   id,
			Reason:     "invoice is not synced",
		}
	}
	if !payment.Amount.IsPositive() {
		return nil, &MappingError{
			EntityType: models.LocalEntityInvoicePayment,
			EntityId:   id,
			Reason:     "amount must be positive",
		}
	}

	return &PaymentPayload{
		CustomerRef:      Ref{Value: customerQboId},
		TxnDate:          payment.PaymentDate.Format(dateLayout),
		TotalAmt:         jsonAmount(payment.Amount),
		PaymentRefNum:    payment.ReferenceNumber,
		PaymentMethodRef: paymentMethodRef(payment.PaymentMethod),
		Line: []PaymentLine{{
			Amount: jsonAmount(payment.Amount),
			LinkedTxn: []LinkedTxn{{
				TxnId:   invoiceQboId,
				TxnType: "Invoice",
			}},
		}},
	}, nil
}

// QBO BillPayment.PayType only distinguishes Check and CreditCard; anything
// else (cash, bank transfer, empty) posts as Check.
func payTypeFromMethod(method string) string {
	switch normalizePaymentMethod(method) {
	case "credit_card", "creditcard", "card":
		return "CreditCard"
	default:
		return "Check"
	}
}

// paymentMethodRef maps a local payment method onto the PaymentMethod ids a
// QBO company file seeds (1 Cash, 2 Check, 3 Credit Card). Unknown or empty
// methods omit the ref and let QBO apply the customer's default.
func paymentMethodRef(method string) *Ref {
	switch normalizePaymentMethod(method) {
	case "cash":
		return &Ref{Value: "1"}
	case "check":
		return &Ref{Value: "2"}
	case "credit_card", "creditcard", "card":
		return &Ref{Value: "3"}
	default:
		return nil
	}
}

func normalizePaymentMethod(method string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(method)), " ", "_")
}
