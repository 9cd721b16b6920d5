// Package commission computes and manages seller commissions earned on
// finalized sales. Exactly one commission record exists per order; the
// record's amount is always the output of the configured formula applied to
// the order's net sale amount.
package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported commission formulas.
type Type string

const (
	// TypePercentage earns a percentage of the net sale amount.
	TypePercentage Type = "percentage"
	// TypeFixed earns a flat amount regardless of sale size.
	TypeFixed Type = "fixed"
	// TypeMixed combines the fixed amount and the percentage: summed when
	// the config's ApplyBoth flag is set, otherwise the larger of the two.
	TypeMixed Type = "mixed"
)

// Status enumerates the commission record lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCalculated Status = "calculated"
	StatusApproved   Status = "approved"
	StatusPaid       Status = "paid"
	StatusCancelled  Status = "cancelled"
)

// PaymentMethod enumerates how a commission is paid out.
type PaymentMethod string

const (
	PayTransfer PaymentMethod = "transfer"
	PayCheck    PaymentMethod = "check"
	PayCash     PaymentMethod = "cash"
	PayPayroll  PaymentMethod = "payroll"
)

var (
	// ErrDuplicate is returned when an order already has a commission record.
	ErrDuplicate = errors.New("commission already exists for order")
	// ErrNotFound is returned when no commission record matches.
	ErrNotFound = errors.New("commission not found")
)

// StatusFlowError indicates a commission status change outside the
// pending → calculated → approved → paid flow.
type StatusFlowError struct {
	From Status
	To   Status
}

func (e *StatusFlowError) Error() string {
	return fmt.Sprintf("invalid commission status change: %s -> %s", e.From, e.To)
}

// Config holds the formula parameters for a commission.
type Config struct {
	// Percentage rate in [0,100].
	Percentage decimal.Decimal
	// FixedAmount is a non-negative flat amount.
	FixedAmount decimal.Decimal
	// ApplyBoth selects sum-of-both for mixed commissions; when false the
	// mixed formula takes the larger alternative.
	ApplyBoth bool
}

// Calculation is the snapshot of amounts the commission was derived from.
type Calculation struct {
	GrossAmount decimal.Decimal
	Discounts   decimal.Decimal
	NetAmount   decimal.Decimal
	// Base is the amount the formula was applied to; always overwritten
	// with NetAmount on recompute.
	Base   decimal.Decimal
	Amount decimal.Decimal
}

// PaymentDetails records how an approved commission was paid out.
type PaymentDetails struct {
	Method             PaymentMethod
	TransactionNumber  string
	DestinationAccount string
	ReceiptURL         string
}

// Commission is a seller's earned commission on one order. Records are
// soft-deactivated via the Active flag, never hard-deleted.
type Commission struct {
	ID           string
	OrderID      string
	SellerID     string
	Type         Type
	Config       Config
	Calculation  Calculation
	Status       Status
	CalculatedAt time.Time
	ApprovedAt   *time.Time
	PaidAt       *time.Time
	ApproverID   *string
	Payment      PaymentDetails
	Notes        string
	Active       bool
}

// StatusSummary aggregates a seller's commissions for one status.
type StatusSummary struct {
	Status  Status
	Total   decimal.Decimal
	Count   int
	Average decimal.Decimal
}

// Repository defines persistence operations for commission records.
type Repository interface {
	// Create persists a new record; returns ErrDuplicate when the order
	// already has one.
	Create(ctx context.Context, c *Commission) error
	GetByID(ctx context.Context, id string) (*Commission, error)
	GetByOrderID(ctx context.Context, orderID string) (*Commission, error)
	Update(ctx context.Context, c *Commission) error
	// SummaryBySeller groups a seller's active commissions by status.
	SummaryBySeller(ctx context.Context, sellerID string) ([]StatusSummary, error)
}
