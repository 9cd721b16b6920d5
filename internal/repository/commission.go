package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/verdenexo/sales-engine/internal/domain/commission"
)

const (
	createCommissionSQL = `INSERT INTO commissions
		(id, order_id, seller_id, commission_type, percentage, fixed_amount, apply_both,
		 gross_amount, discounts, net_amount, calculation_base, amount,
		 status, calculated_at, approved_at, paid_at, approver_id,
		 payment_method, transaction_number, destination_account, receipt_url,
		 notes, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	commissionColumns = `id, order_id, seller_id, commission_type, percentage, fixed_amount, apply_both,
		 gross_amount, discounts, net_amount, calculation_base, amount,
		 status, calculated_at, approved_at, paid_at, approver_id,
		 payment_method, transaction_number, destination_account, receipt_url,
		 notes, active`

	getCommissionByIDSQL = `SELECT ` + commissionColumns + ` FROM commissions WHERE id = $1`

	getCommissionByOrderSQL = `SELECT ` + commissionColumns + ` FROM commissions WHERE order_id = $1`

	updateCommissionSQL = `UPDATE commissions SET
		commission_type = $2, percentage = $3, fixed_amount = $4, apply_both = $5,
		gross_amount = $6, discounts = $7, net_amount = $8, calculation_base = $9, amount = $10,
		status = $11, approved_at = $12, paid_at = $13, approver_id = $14,
		payment_method = $15, transaction_number = $16, destination_account = $17,
		receipt_url = $18, notes = $19, active = $20
		WHERE id = $1`

	summaryBySellerSQL = `SELECT status, COALESCE(SUM(amount), 0), COUNT(*)
		FROM commissions
		WHERE seller_id = $1 AND active = TRUE
		GROUP BY status
		ORDER BY status`

	commissionTotalSQL = `SELECT COALESCE(SUM(amount), 0)
		FROM commissions
		WHERE active = TRUE
		  AND calculated_at >= $1 AND calculated_at <= $2`

	sellerByOrderSQL = `SELECT order_id, seller_id FROM commissions
		WHERE active = TRUE AND order_id = ANY($1)`
)

var _ commission.Repository = (*CommissionRepository)(nil)

// CommissionRepository implements commission.Repository backed by PostgreSQL.
// It also serves as the commission figure source for report aggregation.
type CommissionRepository struct {
	pool *pgxpool.Pool
}

// NewCommissionRepository returns a CommissionRepository that uses the given pool.
func NewCommissionRepository(pool *pgxpool.Pool) *CommissionRepository {
	return &CommissionRepository{pool: pool}
}

// Create persists a new commission record. Returns commission.ErrDuplicate
// when the order already has one; the order_id unique index enforces the
// one-record-per-order invariant.
func (r *CommissionRepository) Create(ctx context.Context, c *commission.Commission) error {
	_, err := r.pool.Exec(ctx, createCommissionSQL,
		c.ID, c.OrderID, c.SellerID, string(c.Type),
		c.Config.Percentage, c.Config.FixedAmount, c.Config.ApplyBoth,
		c.Calculation.GrossAmount, c.Calculation.Discounts, c.Calculation.NetAmount,
		c.Calculation.Base, c.Calculation.Amount,
		string(c.Status), c.CalculatedAt, c.ApprovedAt, c.PaidAt, c.ApproverID,
		string(c.Payment.Method), c.Payment.TransactionNumber,
		c.Payment.DestinationAccount, c.Payment.ReceiptURL,
		c.Notes, c.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return commission.ErrDuplicate
		}
		return fmt.Errorf("creating commission for order %q: %w", c.OrderID, err)
	}
	return nil
}

// GetByID looks up a commission record by its identifier.
func (r *CommissionRepository) GetByID(ctx context.Context, id string) (*commission.Commission, error) {
	return r.getOne(ctx, getCommissionByIDSQL, id)
}

// GetByOrderID looks up the commission record for an order.
func (r *CommissionRepository) GetByOrderID(ctx context.Context, orderID string) (*commission.Commission, error) {
	return r.getOne(ctx, getCommissionByOrderSQL, orderID)
}

func (r *CommissionRepository) getOne(ctx context.Context, sql, arg string) (*commission.Commission, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding commission %q: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCommission)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, commission.ErrNotFound
		}
		return nil, fmt.Errorf("finding commission %q: %w", arg, err)
	}
	return &c, nil
}

// Update rewrites all mutable columns of an existing record.
func (r *CommissionRepository) Update(ctx context.Context, c *commission.Commission) error {
	tag, err := r.pool.Exec(ctx, updateCommissionSQL,
		c.ID, string(c.Type),
		c.Config.Percentage, c.Config.FixedAmount, c.Config.ApplyBoth,
		c.Calculation.GrossAmount, c.Calculation.Discounts, c.Calculation.NetAmount,
		c.Calculation.Base, c.Calculation.Amount,
		string(c.Status), c.ApprovedAt, c.PaidAt, c.ApproverID,
		string(c.Payment.Method), c.Payment.TransactionNumber,
		c.Payment.DestinationAccount, c.Payment.ReceiptURL,
		c.Notes, c.Active,
	)
	if err != nil {
		return fmt.Errorf("updating commission %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return commission.ErrNotFound
	}
	return nil
}

// SummaryBySeller groups a seller's active commissions by status.
func (r *CommissionRepository) SummaryBySeller(ctx context.Context, sellerID string) ([]commission.StatusSummary, error) {
	rows, err := r.pool.Query(ctx, summaryBySellerSQL, sellerID)
	if err != nil {
		return nil, fmt.Errorf("summarizing commissions for seller %q: %w", sellerID, err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (commission.StatusSummary, error) {
		var (
			s     commission.StatusSummary
			state string
			count int64
		)
		if err := row.Scan(&state, &s.Total, &count); err != nil {
			return s, err
		}
		s.Status = commission.Status(state)
		s.Count = int(count)
		if count > 0 {
			s.Average = s.Total.Div(decimal.NewFromInt(count)).Round(2)
		}
		return s, nil
	})
}

// TotalInRange sums active commission amounts calculated inside the range.
// Cancelled records still count until they are deactivated; the active flag
// is the single exclusion lever for accounting queries.
func (r *CommissionRepository) TotalInRange(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, commissionTotalSQL, start, end).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("summing commissions in range: %w", err)
	}
	return total, nil
}

// SellerByOrder maps each of the given order IDs to its commission's seller.
// Orders without an active commission are absent from the result.
func (r *CommissionRepository) SellerByOrder(ctx context.Context, orderIDs []string) (map[string]string, error) {
	if len(orderIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := r.pool.Query(ctx, sellerByOrderSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("mapping sellers by order: %w", err)
	}
	defer rows.Close()

	sellers := make(map[string]string, len(orderIDs))
	for rows.Next() {
		var orderID, sellerID string
		if err := rows.Scan(&orderID, &sellerID); err != nil {
			return nil, fmt.Errorf("mapping sellers by order: %w", err)
		}
		sellers[orderID] = sellerID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mapping sellers by order: %w", err)
	}
	return sellers, nil
}

func scanCommission(row pgx.CollectableRow) (commission.Commission, error) {
	var (
		c      commission.Commission
		ctype  string
		status string
		method string
	)
	err := row.Scan(
		&c.ID, &c.OrderID, &c.SellerID, &ctype,
		&c.Config.Percentage, &c.Config.FixedAmount, &c.Config.ApplyBoth,
		&c.Calculation.GrossAmount, &c.Calculation.Discounts, &c.Calculation.NetAmount,
		&c.Calculation.Base, &c.Calculation.Amount,
		&status, &c.CalculatedAt, &c.ApprovedAt, &c.PaidAt, &c.ApproverID,
		&method, &c.Payment.TransactionNumber,
		&c.Payment.DestinationAccount, &c.Payment.ReceiptURL,
		&c.Notes, &c.Active,
	)
	c.Type = commission.Type(ctype)
	c.Status = commission.Status(status)
	c.Payment.Method = commission.PaymentMethod(method)
	return c, err
}
