// Package invoice derives billing documents from an order's line items:
// per-line and aggregate totals, sequential FV invoice numbers, due dates,
// and the issue → sent → paid status flow.
package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates the invoice lifecycle.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusIssued Status = "issued"
	StatusSent   Status = "sent"
	StatusPaid   Status = "paid"
	StatusVoided Status = "voided"
)

// DocumentType enumerates accepted customer identity documents.
type DocumentType string

const (
	DocCC  DocumentType = "CC"
	DocCE  DocumentType = "CE"
	DocNIT DocumentType = "NIT"
	DocPP  DocumentType = "PP"
)

// PaymentMethod enumerates how an invoice is settled.
type PaymentMethod string

const (
	PayCash           PaymentMethod = "cash"
	PayCreditCard     PaymentMethod = "credit_card"
	PayDebitCard      PaymentMethod = "debit_card"
	PayTransfer       PaymentMethod = "transfer"
	PayOnlineGateway  PaymentMethod = "online_gateway"
	PayCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var (
	// ErrNotFound is returned when no invoice matches.
	ErrNotFound = errors.New("invoice not found")
	// ErrNumberConflict is returned when an invoice number is already taken.
	// Expected under concurrent creation; the service retries a bounded
	// number of times.
	ErrNumberConflict = errors.New("invoice number already exists")
	// ErrNoLineItems is returned when an invoice would have no lines.
	ErrNoLineItems = errors.New("at least one line item required")
	// ErrNotesTooLong indicates the free-text notes exceed their length cap.
	ErrNotesTooLong = errors.New("notes exceed 1000 characters")
)

// StatusFlowError indicates an invoice status change outside the
// draft → issued → sent → paid / voided flow.
type StatusFlowError struct {
	From Status
	To   Status
}

func (e *StatusFlowError) Error() string {
	return fmt.Sprintf("invalid invoice status change: %s -> %s", e.From, e.To)
}

// UnknownEnumError indicates a value outside a closed vocabulary.
type UnknownEnumError struct {
	Field string
	Value string
}

func (e *UnknownEnumError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Field, e.Value)
}

// Address is a customer billing address snapshot.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code,omitempty"`
}

// CustomerInfo is the customer snapshot captured at invoicing time. The
// customer directory is external; invoices stay self-contained.
type CustomerInfo struct {
	DocumentType   DocumentType `json:"document_type"`
	DocumentNumber string       `json:"document_number"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Phone          string       `json:"phone,omitempty"`
	Address        Address      `json:"address"`
}

// CompanyInfo is the issuer snapshot. Supplied via configuration at service
// construction; never hardcoded.
type CompanyInfo struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// LineItem is one invoiced product line. Subtotal and TaxValue are derived
// by ComputeTotals; values supplied by callers are overwritten.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxValue    decimal.Decimal `json:"tax_value"`
}

// Totals holds the aggregate monetary totals of an invoice.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// Files references generated artifacts for an invoice.
type Files struct {
	PDFURL          string `json:"pdf_url,omitempty"`
	EmailReceiptURL string `json:"email_receipt_url,omitempty"`
}

// Invoice is a sales invoice for one order. Soft-deactivated via Active,
// never hard-deleted.
type Invoice struct {
	ID      string
	Number  string
	OrderID string
	// CustomerID is nil for guest checkout.
	CustomerID        *string
	Customer          CustomerInfo
	Company           CompanyInfo
	Items             []LineItem
	Totals            Totals
	Status            Status
	IssuedAt          time.Time
	DueAt             time.Time
	SentAt            *time.Time
	PaidAt            *time.Time
	PaymentMethod     PaymentMethod
	PaymentDetail     string
	TransactionNumber string
	Files             Files
	Notes             string
	IssuerID          string
	Active            bool
}

// Repository defines persistence operations for invoices.
type Repository interface {
	// Create persists a new invoice; returns ErrNumberConflict when the
	// invoice number is already taken.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id string) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	// MaxNumberForYear returns the greatest invoice number with the given
	// year's FV prefix, or "" when none exists.
	MaxNumberForYear(ctx context.Context, year int) (string, error)
	// Overdue returns active issued or sent invoices whose due date has
	// passed as of the given time.
	Overdue(ctx context.Context, asOf time.Time) ([]Invoice, error)
}
