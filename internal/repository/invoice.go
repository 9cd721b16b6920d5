package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdenexo/sales-engine/internal/domain/invoice"
	"github.com/verdenexo/sales-engine/internal/domain/report"
)

const (
	createInvoiceSQL = `INSERT INTO invoices
		(id, number, order_id, customer_id, customer, company, items,
		 subtotal, discount_total, tax_total, shipping_cost, grand_total,
		 status, issued_at, due_at, sent_at, paid_at,
		 payment_method, payment_detail, transaction_number,
		 pdf_url, email_receipt_url, notes, issuer_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	invoiceColumns = `id, number, order_id, customer_id, customer, company, items,
		 subtotal, discount_total, tax_total, shipping_cost, grand_total,
		 status, issued_at, due_at, sent_at, paid_at,
		 payment_method, payment_detail, transaction_number,
		 pdf_url, email_receipt_url, notes, issuer_id, active`

	getInvoiceByIDSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	getInvoiceByNumberSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE number = $1`

	updateInvoiceSQL = `UPDATE invoices SET
		items = $2, subtotal = $3, discount_total = $4, tax_total = $5,
		shipping_cost = $6, grand_total = $7, status = $8,
		sent_at = $9, paid_at = $10, payment_method = $11, payment_detail = $12,
		transaction_number = $13, pdf_url = $14, email_receipt_url = $15,
		notes = $16, active = $17
		WHERE id = $1`

	maxNumberForYearSQL = `SELECT COALESCE(MAX(number), '')
		FROM invoices WHERE number LIKE $1`

	overdueInvoicesSQL = `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE active = TRUE AND status IN ('issued', 'sent') AND due_at < $1
		ORDER BY due_at ASC`

	issuedInRangeSQL = `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE active = TRUE AND status <> 'voided'
		  AND issued_at >= $1 AND issued_at <= $2
		ORDER BY issued_at ASC`
)

var (
	_ invoice.Repository   = (*InvoiceRepository)(nil)
	_ report.InvoiceSource = (*InvoiceRepository)(nil)
)

// InvoiceRepository implements invoice.Repository backed by PostgreSQL.
// Customer and company snapshots and line items live in JSONB columns;
// totals are stored in NUMERIC columns so range scans stay in SQL.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository returns an InvoiceRepository that uses the given pool.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// Create persists a new invoice. Returns invoice.ErrNumberConflict when the
// number is already taken; the unique index on number is the arbiter under
// concurrent creation.
func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	customerJSON, companyJSON, itemsJSON, err := marshalInvoiceDocs(inv)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createInvoiceSQL,
		inv.ID, inv.Number, inv.OrderID, inv.CustomerID,
		customerJSON, companyJSON, itemsJSON,
		inv.Totals.Subtotal, inv.Totals.Discount, inv.Totals.Tax,
		inv.Totals.Shipping, inv.Totals.GrandTotal,
		string(inv.Status), inv.IssuedAt, inv.DueAt, inv.SentAt, inv.PaidAt,
		string(inv.PaymentMethod), inv.PaymentDetail, inv.TransactionNumber,
		inv.Files.PDFURL, inv.Files.EmailReceiptURL,
		inv.Notes, inv.IssuerID, inv.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return invoice.ErrNumberConflict
		}
		return fmt.Errorf("creating invoice %q: %w", inv.Number, err)
	}
	return nil
}

// GetByID looks up an invoice by its identifier.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	return r.getOne(ctx, getInvoiceByIDSQL, id)
}

// GetByNumber looks up an invoice by its FV number.
func (r *InvoiceRepository) GetByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	return r.getOne(ctx, getInvoiceByNumberSQL, number)
}

func (r *InvoiceRepository) getOne(ctx context.Context, sql, arg string) (*invoice.Invoice, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding invoice %q: %w", arg, err)
	}

	inv, err := pgx.CollectExactlyOneRow(rows, scanInvoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}
		return nil, fmt.Errorf("finding invoice %q: %w", arg, err)
	}
	return &inv, nil
}

// Update rewrites all mutable columns of an existing invoice. The number,
// order, and snapshots are immutable after creation.
func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("marshaling invoice items: %w", err)
	}

	tag, err := r.pool.Exec(ctx, updateInvoiceSQL,
		inv.ID, itemsJSON,
		inv.Totals.Subtotal, inv.Totals.Discount, inv.Totals.Tax,
		inv.Totals.Shipping, inv.Totals.GrandTotal,
		string(inv.Status), inv.SentAt, inv.PaidAt,
		string(inv.PaymentMethod), inv.PaymentDetail, inv.TransactionNumber,
		inv.Files.PDFURL, inv.Files.EmailReceiptURL,
		inv.Notes, inv.Active,
	)
	if err != nil {
		return fmt.Errorf("updating invoice %q: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

// MaxNumberForYear returns the greatest invoice number carrying the given
// year's FV prefix, or "" when none exists. Lexicographic MAX is correct
// because the sequence part is zero-padded to fixed width.
func (r *InvoiceRepository) MaxNumberForYear(ctx context.Context, year int) (string, error) {
	var number string
	prefix := fmt.Sprintf("FV%d%%", year)
	if err := r.pool.QueryRow(ctx, maxNumberForYearSQL, prefix).Scan(&number); err != nil {
		return "", fmt.Errorf("finding max invoice number for %d: %w", year, err)
	}
	return number, nil
}

// Overdue returns active issued or sent invoices past due as of the given time.
func (r *InvoiceRepository) Overdue(ctx context.Context, asOf time.Time) ([]invoice.Invoice, error) {
	rows, err := r.pool.Query(ctx, overdueInvoicesSQL, asOf)
	if err != nil {
		return nil, fmt.Errorf("querying overdue invoices: %w", err)
	}
	return pgx.CollectRows(rows, scanInvoice)
}

// IssuedInRange returns active, non-voided invoices issued inside the range.
// Drafts count: they carry an issue date and only voiding or deactivation
// removes an invoice from the books. The filters argument is stored on the
// report record for traceability; no filtering is applied to the scan.
func (r *InvoiceRepository) IssuedInRange(ctx context.Context, start, end time.Time, _ report.Filters) ([]invoice.Invoice, error) {
	rows, err := r.pool.Query(ctx, issuedInRangeSQL, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying invoices in range: %w", err)
	}
	return pgx.CollectRows(rows, scanInvoice)
}

func marshalInvoiceDocs(inv *invoice.Invoice) (customer, company, items []byte, err error) {
	if customer, err = json.Marshal(inv.Customer); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling invoice customer: %w", err)
	}
	if company, err = json.Marshal(inv.Company); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling invoice company: %w", err)
	}
	if items, err = json.Marshal(inv.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling invoice items: %w", err)
	}
	return customer, company, items, nil
}

func scanInvoice(row pgx.CollectableRow) (invoice.Invoice, error) {
	var (
		inv          invoice.Invoice
		customerJSON []byte
		companyJSON  []byte
		itemsJSON    []byte
		status       string
		method       string
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerID,
		&customerJSON, &companyJSON, &itemsJSON,
		&inv.Totals.Subtotal, &inv.Totals.Discount, &inv.Totals.Tax,
		&inv.Totals.Shipping, &inv.Totals.GrandTotal,
		&status, &inv.IssuedAt, &inv.DueAt, &inv.SentAt, &inv.PaidAt,
		&method, &inv.PaymentDetail, &inv.TransactionNumber,
		&inv.Files.PDFURL, &inv.Files.EmailReceiptURL,
		&inv.Notes, &inv.IssuerID, &inv.Active,
	)
	if err != nil {
		return inv, err
	}
	if err := json.Unmarshal(customerJSON, &inv.Customer); err != nil {
		return inv, fmt.Errorf("unmarshaling invoice customer: %w", err)
	}
	if err := json.Unmarshal(companyJSON, &inv.Company); err != nil {
		return inv, fmt.Errorf("unmarshaling invoice company: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &inv.Items); err != nil {
		return inv, fmt.Errorf("unmarshaling invoice items: %w", err)
	}
	inv.Status = invoice.Status(status)
	inv.PaymentMethod = invoice.PaymentMethod(method)
	return inv, nil
}
