package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

const (
	maxReasonLen   = 500
	maxCommentsLen = 1000
)

// ErrNoHistory is returned when an order has no recorded transitions.
var ErrNoHistory = errors.New("order has no status history")

// FieldTooLongError indicates a free-text field exceeding its length cap.
type FieldTooLongError struct {
	Field string
	Max   int
}

func (e *FieldTooLongError) Error() string {
	return fmt.Sprintf("%s exceeds %d characters", e.Field, e.Max)
}

// TransitionRequest holds the input for recording a status change.
type TransitionRequest struct {
	OrderID string
	// From is the state the order is leaving; nil when recording the
	// initial state.
	From     *Status
	To       Status
	ActorID  *string
	Reason   string
	Comments string
	Shipment ShipmentInfo
}

// Ledger enforces the lifecycle state machine and appends transition records.
type Ledger struct {
	records Repository
	now     func() time.Time
}

// NewLedger creates a Ledger backed by the given repository.
func NewLedger(records Repository) *Ledger {
	return &Ledger{records: records, now: time.Now}
}

// RecordTransition validates and appends one status transition. The
// transition table check runs before any persistence, so an illegal change
// never produces a partial write. Notification dispatch is the caller's
// concern, after a successful append.
func (l *Ledger) RecordTransition(ctx context.Context, req TransitionRequest) (*StatusRecord, error) {
	if req.OrderID == "" {
		return nil, errors.New("order ID required")
	}
	if !req.To.Valid() {
		return nil, &UnknownStatusError{Status: req.To}
	}
	if req.From != nil {
		if !req.From.Valid() {
			return nil, &UnknownStatusError{Status: *req.From}
		}
		if !CanTransition(*req.From, req.To) {
			return nil, &InvalidTransitionError{From: *req.From, To: req.To}
		}
	}
	if len(req.Reason) > maxReasonLen {
		return nil, &FieldTooLongError{Field: "reason", Max: maxReasonLen}
	}
	if len(req.Comments) > maxCommentsLen {
		return nil, &FieldTooLongError{Field: "comments", Max: maxCommentsLen}
	}

	rec := &StatusRecord{
		ID:        uuid.New().String(),
		OrderID:   req.OrderID,
		From:      req.From,
		To:        req.To,
		ChangedAt: l.now().UTC(),
		Reason:    req.Reason,
		Comments:  req.Comments,
		ActorID:   req.ActorID,
		Shipment:  req.Shipment,
	}
	if err := l.records.Append(ctx, rec); err != nil {
		return nil, errors.Wrapf(err, "append status record for order %q", req.OrderID)
	}
	return rec, nil
}

// History returns the full transition sequence for an order, ascending by
// change time.
func (l *Ledger) History(ctx context.Context, orderID string) ([]StatusRecord, error) {
	recs, err := l.records.History(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "load history for order %q", orderID)
	}
	return recs, nil
}

// CurrentState returns the order's most recent state. Returns ErrNoHistory
// when no transition has been recorded.
func (l *Ledger) CurrentState(ctx context.Context, orderID string) (Status, error) {
	rec, err := l.records.Latest(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNoHistory) {
			return "", ErrNoHistory
		}
		return "", errors.Wrapf(err, "load latest status for order %q", orderID)
	}
	return rec.To, nil
}
