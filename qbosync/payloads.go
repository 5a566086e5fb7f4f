package qbosync

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Monetary amounts cross the wire in major units with exactly two decimal
// places, rounded half-to-even. jsonAmount keeps them as json.Number so the
// payload carries 123.45, not a float artifact.
func jsonAmount(amount decimal.Decimal) json.Number {
	return json.Number(amount.StringFixedBank(2))
}

// Ref points at a QBO entity by id.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address"`
}

type TelephoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type PhysicalAddress struct {
	Line1                 string `json:"Line1,omitempty"`
	City                  string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode            string `json:"PostalCode,omitempty"`
}

type CustomerPayload struct {
	DisplayName      string           `json:"DisplayName"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *TelephoneNumber `json:"PrimaryPhone,omitempty"`
	Mobile           *TelephoneNumber `json:"Mobile,omitempty"`
	BillAddr         *PhysicalAddress `json:"BillAddr,omitempty"`
	Notes            string           `json:"Notes,omitempty"`
	Active           bool             `json:"Active"`
}

type VendorPayload struct {
	DisplayName string `json:"DisplayName"`
}

type AccountBasedLineDetail struct {
	AccountRef Ref `json:"AccountRef"`
}

type SalesItemLineDetail struct {
	ItemRef Ref `json:"ItemRef"`
}

type Line struct {
	Amount                 json.Number             `json:"Amount"`
	DetailType             string                  `json:"DetailType"`
	Description            string                  `json:"Description,omitempty"`
	AccountBasedExpenseLineDetail *AccountBasedLineDetail `json:"AccountBasedExpenseLineDetail,omitempty"`
	SalesItemLineDetail    *SalesItemLineDetail    `json:"SalesItemLineDetail,omitempty"`
}

type LinkedTxn struct {
	TxnId   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

type BillPayload struct {
	VendorRef Ref    `json:"VendorRef"`
	TxnDate   string `json:"TxnDate"`
	DocNumber string `json:"DocNumber,omitempty"`
	Line      []Line `json:"Line"`
}

type CheckPayment struct {
	BankAccountRef *Ref `json:"BankAccountRef,omitempty"`
}

type BillPaymentLine struct {
	Amount    json.Number `json:"Amount"`
	LinkedTxn []LinkedTxn `json:"LinkedTxn"`
}

type BillPaymentPayload struct {
	VendorRef   Ref               `json:"VendorRef"`
	PayType     string            `json:"PayType"`
	TxnDate     string            `json:"TxnDate"`
	TotalAmt    json.Number       `json:"TotalAmt"`
	DocNumber   string            `json:"DocNumber,omitempty"`
	CheckPayment *CheckPayment    `json:"CheckPayment,omitempty"`
	Line        []BillPaymentLine `json:"Line"`
}

type InvoicePayload struct {
	CustomerRef Ref    `json:"CustomerRef"`
	TxnDate     string `json:"TxnDate"`
	DueDate     string `json:"DueDate,omitempty"`
	DocNumber   string `json:"DocNumber,omitempty"`
	Line        []Line `json:"Line"`
}

type PaymentLine struct {
	Amount    json.Number `json:"Amount"`
	LinkedTxn []LinkedTxn `json:"LinkedTxn"`
}

type PaymentPayload struct {
	CustomerRef      Ref           `json:"CustomerRef"`
	TxnDate          string        `json:"TxnDate"`
	TotalAmt         json.Number   `json:"TotalAmt"`
	PaymentRefNum    string        `json:"PaymentRefNum,omitempty"`
	PaymentMethodRef *Ref          `json:"PaymentMethodRef,omitempty"`
	Line             []PaymentLine `json:"Line"`
}
