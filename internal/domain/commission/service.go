package commission

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxNotesLen = 1000

// ErrNotesTooLong indicates the free-text notes exceed their length cap.
var ErrNotesTooLong = errors.New("notes exceed 1000 characters")

// CreateRequest holds the input for creating a commission record.
type CreateRequest struct {
	OrderID  string
	SellerID string
	// Type and Config override the service defaults when Type is non-empty.
	Type      Type
	Config    Config
	Gross     decimal.Decimal
	Discounts decimal.Decimal
	Net       decimal.Decimal
	Notes     string
}

// Service manages commission records: creation, recomputation, and the
// approval/payout flow.
type Service struct {
	commissions   Repository
	defaultType   Type
	defaultConfig Config
	now           func() time.Time
}

// NewService creates a commission Service. The default type and config apply
// to orders whose seller has no per-seller configuration.
func NewService(commissions Repository, defaultType Type, defaultConfig Config) *Service {
	return &Service{
		commissions:   commissions,
		defaultType:   defaultType,
		defaultConfig: defaultConfig,
		now:           time.Now,
	}
}

// CreateForOrder computes and persists the commission for a finalized sale.
// Returns ErrDuplicate when the order already has a commission record.
func (s *Service) CreateForOrder(ctx context.Context, req CreateRequest) (*Commission, error) {
	if req.OrderID == "" {
		return nil, errors.New("order ID required")
	}
	if req.SellerID == "" {
		return nil, errors.New("seller ID required")
	}
	if len(req.Notes) > maxNotesLen {
		return nil, ErrNotesTooLong
	}

	typ, cfg := req.Type, req.Config
	if typ == "" {
		typ, cfg = s.defaultType, s.defaultConfig
	}

	amount, err := Compute(typ, cfg, req.Net)
	if err != nil {
		return nil, err
	}

	c := &Commission{
		ID:       uuid.New().String(),
		OrderID:  req.OrderID,
		SellerID: req.SellerID,
		Type:     typ,
		Config:   cfg,
		Calculation: Calculation{
			GrossAmount: req.Gross,
			Discounts:   req.Discounts,
			NetAmount:   req.Net,
			Base:        req.Net,
			Amount:      amount,
		},
		Status:       StatusCalculated,
		CalculatedAt: s.now().UTC(),
		Notes:        req.Notes,
		Active:       true,
	}
	if err := s.commissions.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, errors.Wrapf(err, "create commission for order %q", req.OrderID)
	}
	return c, nil
}

// Reconfigure replaces a commission's formula configuration and recomputes
// the amount before persisting.
func (s *Service) Reconfigure(ctx context.Context, id string, typ Type, cfg Config) (*Commission, error) {
	c, err := s.commissions.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load commission %q", id)
	}

	c.Type = typ
	c.Config = cfg
	if err := s.recompute(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AdjustSale replaces the sale amounts a commission was derived from and
// recomputes the amount before persisting.
func (s *Service) AdjustSale(ctx context.Context, id string, gross, discounts, net decimal.Decimal) (*Commission, error) {
	c, err := s.commissions.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load commission %q", id)
	}

	c.Calculation.GrossAmount = gross
	c.Calculation.Discounts = discounts
	c.Calculation.NetAmount = net
	if err := s.recompute(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// recompute overwrites the calculation base and amount from the current
// config and net amount, then persists.
func (s *Service) recompute(ctx context.Context, c *Commission) error {
	amount, err := Compute(c.Type, c.Config, c.Calculation.NetAmount)
	if err != nil {
		return err
	}
	c.Calculation.Base = c.Calculation.NetAmount
	c.Calculation.Amount = amount
	c.CalculatedAt = s.now().UTC()
	if c.Status == StatusPending {
		c.Status = StatusCalculated
	}
	if err := s.commissions.Update(ctx, c); err != nil {
		return errors.Wrapf(err, "update commission %q", c.ID)
	}
	return nil
}

// Approve moves a calculated commission to approved.
func (s *Service) Approve(ctx context.Context, id, approverID string) (*Commission, error) {
	c, err := s.commissions.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load commission %q", id)
	}
	if c.Status != StatusCalculated {
		return nil, &StatusFlowError{From: c.Status, To: StatusApproved}
	}

	now := s.now().UTC()
	c.Status = StatusApproved
	c.ApprovedAt = &now
	c.ApproverID = &approverID
	if err := s.commissions.Update(ctx, c); err != nil {
		return nil, errors.Wrapf(err, "update commission %q", id)
	}
	return c, nil
}

// MarkPaid records the payout of an approved commission.
func (s *Service) MarkPaid(ctx context.Context, id string, payment PaymentDetails) (*Commission, error) {
	c, err := s.commissions.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load commission %q", id)
	}
	if c.Status != StatusApproved {
		return nil, &StatusFlowError{From: c.Status, To: StatusPaid}
	}

	now := s.now().UTC()
	c.Status = StatusPaid
	c.PaidAt = &now
	c.Payment = payment
	if err := s.commissions.Update(ctx, c); err != nil {
		return nil, errors.Wrapf(err, "update commission %q", id)
	}
	return c, nil
}

// Cancel marks a commission cancelled. Paid commissions cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id, note string) (*Commission, error) {
	c, err := s.commissions.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load commission %q", id)
	}
	if c.Status == StatusPaid {
		return nil, &StatusFlowError{From: c.Status, To: StatusCancelled}
	}
	if len(note) > maxNotesLen {
		return nil, ErrNotesTooLong
	}

	c.Status = StatusCancelled
	if note != "" {
		c.Notes = note
	}
	if err := s.commissions.Update(ctx, c); err != nil {
		return nil, errors.Wrapf(err, "update commission %q", id)
	}
	return c, nil
}

// Deactivate soft-deletes a commission record.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	c, err := s.commissions.GetByID(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "load commission %q", id)
	}
	c.Active = false
	if err := s.commissions.Update(ctx, c); err != nil {
		return errors.Wrapf(err, "update commission %q", id)
	}
	return nil
}

// SummaryBySeller returns a seller's active commissions grouped by status.
func (s *Service) SummaryBySeller(ctx context.Context, sellerID string) ([]StatusSummary, error) {
	sums, err := s.commissions.SummaryBySeller(ctx, sellerID)
	if err != nil {
		return nil, errors.Wrapf(err, "summarize commissions for seller %q", sellerID)
	}
	return sums, nil
}
