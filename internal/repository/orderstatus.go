package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdenexo/sales-engine/internal/domain/order"
)

const (
	appendStatusSQL = `INSERT INTO order_status_history
		(id, order_id, prev_status, new_status, changed_at, reason, comments,
		 actor_id, notification_sent, location, carrier, tracking_number, estimated_delivery)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	statusColumns = `id, order_id, prev_status, new_status, changed_at, reason, comments,
		 actor_id, notification_sent, location, carrier, tracking_number, estimated_delivery`

	historySQL = `SELECT ` + statusColumns + ` FROM order_status_history
		WHERE order_id = $1 ORDER BY changed_at ASC`

	latestStatusSQL = `SELECT ` + statusColumns + ` FROM order_status_history
		WHERE order_id = $1 ORDER BY changed_at DESC LIMIT 1`
)

var _ order.Repository = (*OrderStatusRepository)(nil)

// OrderStatusRepository implements order.Repository backed by PostgreSQL.
type OrderStatusRepository struct {
	pool *pgxpool.Pool
}

// NewOrderStatusRepository returns an OrderStatusRepository that uses the
// given pool.
func NewOrderStatusRepository(pool *pgxpool.Pool) *OrderStatusRepository {
	return &OrderStatusRepository{pool: pool}
}

// Append persists a new status record.
func (r *OrderStatusRepository) Append(ctx context.Context, rec *order.StatusRecord) error {
	var prev *string
	if rec.From != nil {
		s := string(*rec.From)
		prev = &s
	}

	_, err := r.pool.Exec(ctx, appendStatusSQL,
		rec.ID, rec.OrderID, prev, string(rec.To), rec.ChangedAt,
		rec.Reason, rec.Comments, rec.ActorID, rec.NotificationSent,
		rec.Shipment.Location, rec.Shipment.Carrier, rec.Shipment.TrackingNumber,
		rec.Shipment.EstimatedDelivery,
	)
	if err != nil {
		return fmt.Errorf("appending status record for order %q: %w", rec.OrderID, err)
	}
	return nil
}

// History returns all records for an order, ascending by change time.
func (r *OrderStatusRepository) History(ctx context.Context, orderID string) ([]order.StatusRecord, error) {
	rows, err := r.pool.Query(ctx, historySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying status history for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanStatusRecord)
}

// Latest returns the most recent record for an order.
func (r *OrderStatusRepository) Latest(ctx context.Context, orderID string) (*order.StatusRecord, error) {
	rows, err := r.pool.Query(ctx, latestStatusSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying latest status for order %q: %w", orderID, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanStatusRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNoHistory
		}
		return nil, fmt.Errorf("querying latest status for order %q: %w", orderID, err)
	}
	return &rec, nil
}

func scanStatusRecord(row pgx.CollectableRow) (order.StatusRecord, error) {
	var (
		rec       order.StatusRecord
		prev      *string
		to        string
		estimated *time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.OrderID, &prev, &to, &rec.ChangedAt,
		&rec.Reason, &rec.Comments, &rec.ActorID, &rec.NotificationSent,
		&rec.Shipment.Location, &rec.Shipment.Carrier, &rec.Shipment.TrackingNumber,
		&estimated,
	)
	if prev != nil {
		s := order.Status(*prev)
		rec.From = &s
	}
	rec.To = order.Status(to)
	rec.Shipment.EstimatedDelivery = estimated
	return rec, err
}
