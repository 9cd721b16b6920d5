// Package order tracks the lifecycle of storefront orders as an append-only
// ledger of status transitions. The order entity itself lives in the checkout
// subsystem; this package only knows its identifier.
package order

import (
	"context"
	"time"
)

// ShipmentInfo carries optional logistics metadata attached to a transition.
type ShipmentInfo struct {
	Location          string
	Carrier           string
	TrackingNumber    string
	EstimatedDelivery *time.Time
}

// StatusRecord is one transition in an order's lifecycle. Records are
// immutable once appended and are never deleted; together they form the
// order's audit trail.
type StatusRecord struct {
	ID      string
	OrderID string
	// From is nil for the first recorded state of an order.
	From      *Status
	To        Status
	ChangedAt time.Time
	Reason    string
	Comments  string
	// ActorID is nil for system-automated changes.
	ActorID          *string
	NotificationSent bool
	Shipment         ShipmentInfo
}

// Repository defines persistence operations for the status ledger.
type Repository interface {
	// Append persists a new status record.
	Append(ctx context.Context, rec *StatusRecord) error
	// History returns all records for an order, ascending by change time.
	History(ctx context.Context, orderID string) ([]StatusRecord, error)
	// Latest returns the most recent record for an order, or ErrNoHistory.
	Latest(ctx context.Context, orderID string) (*StatusRecord, error)
}
