package invoice

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxNotesLen = 1000

// numberAttempts bounds the retry loop around invoice numbering. The
// read-then-increment is racy under concurrent creation; the unique index on
// the number column rejects the loser, which re-reads and retries.
const numberAttempts = 3

// CreateRequest holds the input for creating an invoice.
type CreateRequest struct {
	OrderID    string
	CustomerID *string
	Customer   CustomerInfo
	Items      []LineItem
	Shipping   decimal.Decimal
	// DueAt overrides the default 30-day term when non-nil.
	DueAt         *time.Time
	PaymentMethod PaymentMethod
	PaymentDetail string
	Notes         string
	IssuerID      string
	// AsDraft creates the invoice in draft instead of issued.
	AsDraft bool
}

// Service creates invoices and manages their status flow.
type Service struct {
	invoices Repository
	company  CompanyInfo
	now      func() time.Time
}

// NewService creates an invoice Service. The company snapshot is stamped on
// every invoice issued by this service.
func NewService(invoices Repository, company CompanyInfo) *Service {
	return &Service{invoices: invoices, company: company, now: time.Now}
}

func validDocumentType(t DocumentType) bool {
	switch t {
	case DocCC, DocCE, DocNIT, DocPP:
		return true
	}
	return false
}

func validPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PayCash, PayCreditCard, PayDebitCard, PayTransfer, PayOnlineGateway, PayCashOnDelivery:
		return true
	}
	return false
}

// Create computes totals, assigns the next invoice number for the issue
// year, and persists the invoice. Number assignment retries on conflict.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Invoice, error) {
	if req.OrderID == "" {
		return nil, errors.New("order ID required")
	}
	if !validDocumentType(req.Customer.DocumentType) {
		return nil, &UnknownEnumError{Field: "document type", Value: string(req.Customer.DocumentType)}
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return nil, &UnknownEnumError{Field: "payment method", Value: string(req.PaymentMethod)}
	}
	if len(req.Notes) > maxNotesLen {
		return nil, ErrNotesTooLong
	}

	items, totals, err := ComputeTotals(req.Items, req.Shipping)
	if err != nil {
		return nil, err
	}

	issuedAt := s.now().UTC()
	dueAt := DefaultDueDate(issuedAt)
	if req.DueAt != nil {
		dueAt = req.DueAt.UTC()
	}
	status := StatusIssued
	if req.AsDraft {
		status = StatusDraft
	}

	inv := &Invoice{
		ID:            uuid.New().String(),
		OrderID:       req.OrderID,
		CustomerID:    req.CustomerID,
		Customer:      req.Customer,
		Company:       s.company,
		Items:         items,
		Totals:        totals,
		Status:        status,
		IssuedAt:      issuedAt,
		DueAt:         dueAt,
		PaymentMethod: req.PaymentMethod,
		PaymentDetail: req.PaymentDetail,
		Notes:         req.Notes,
		IssuerID:      req.IssuerID,
		Active:        true,
	}

	year := issuedAt.Year()
	for attempt := 0; attempt < numberAttempts; attempt++ {
		last, err := s.invoices.MaxNumberForYear(ctx, year)
		if err != nil {
			return nil, errors.Wrapf(err, "find last invoice number for %d", year)
		}
		inv.Number, err = NextNumber(last, year)
		if err != nil {
			return nil, err
		}

		err = s.invoices.Create(ctx, inv)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, ErrNumberConflict) {
			return nil, errors.Wrapf(err, "create invoice %q", inv.Number)
		}
		// Lost the numbering race; re-read and try the next sequence.
	}
	return nil, errors.Wrapf(ErrNumberConflict, "create invoice for order %q after %d attempts", req.OrderID, numberAttempts)
}

// UpdateLineItems replaces an invoice's lines and shipping cost, recomputes
// totals, and persists.
func (s *Service) UpdateLineItems(ctx context.Context, id string, items []LineItem, shipping decimal.Decimal) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load invoice %q", id)
	}
	if inv.Status == StatusPaid || inv.Status == StatusVoided {
		return nil, &StatusFlowError{From: inv.Status, To: inv.Status}
	}

	inv.Items, inv.Totals, err = ComputeTotals(items, shipping)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, errors.Wrapf(err, "update invoice %q", id)
	}
	return inv, nil
}

// Issue moves a draft invoice to issued.
func (s *Service) Issue(ctx context.Context, id string) (*Invoice, error) {
	return s.advance(ctx, id, func(inv *Invoice) error {
		if inv.Status != StatusDraft {
			return &StatusFlowError{From: inv.Status, To: StatusIssued}
		}
		inv.Status = StatusIssued
		return nil
	})
}

// MarkSent records that an issued invoice was delivered to the customer.
func (s *Service) MarkSent(ctx context.Context, id string, emailReceiptURL string) (*Invoice, error) {
	return s.advance(ctx, id, func(inv *Invoice) error {
		if inv.Status != StatusIssued {
			return &StatusFlowError{From: inv.Status, To: StatusSent}
		}
		now := s.now().UTC()
		inv.Status = StatusSent
		inv.SentAt = &now
		inv.Files.EmailReceiptURL = emailReceiptURL
		return nil
	})
}

// MarkPaid records settlement of an issued or sent invoice.
func (s *Service) MarkPaid(ctx context.Context, id string, transactionNumber string) (*Invoice, error) {
	return s.advance(ctx, id, func(inv *Invoice) error {
		if inv.Status != StatusIssued && inv.Status != StatusSent {
			return &StatusFlowError{From: inv.Status, To: StatusPaid}
		}
		now := s.now().UTC()
		inv.Status = StatusPaid
		inv.PaidAt = &now
		inv.TransactionNumber = transactionNumber
		return nil
	})
}

// Void cancels an unpaid invoice.
func (s *Service) Void(ctx context.Context, id string) (*Invoice, error) {
	return s.advance(ctx, id, func(inv *Invoice) error {
		if inv.Status == StatusPaid || inv.Status == StatusVoided {
			return &StatusFlowError{From: inv.Status, To: StatusVoided}
		}
		inv.Status = StatusVoided
		return nil
	})
}

func (s *Service) advance(ctx context.Context, id string, mutate func(*Invoice) error) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load invoice %q", id)
	}
	if err := mutate(inv); err != nil {
		return nil, err
	}
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, errors.Wrapf(err, "update invoice %q", id)
	}
	return inv, nil
}

// Overdue returns active issued or sent invoices past their due date.
func (s *Service) Overdue(ctx context.Context) ([]Invoice, error) {
	invs, err := s.invoices.Overdue(ctx, s.now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "load overdue invoices")
	}
	return invs, nil
}
