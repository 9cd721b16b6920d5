//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/verdenexo/sales-engine/internal/domain/invoice"
	"github.com/verdenexo/sales-engine/internal/repository"
)

var testCompany = invoice.CompanyInfo{
	Name:    "VerdeNexo S.A.S.",
	TaxID:   "901.234.567-8",
	Address: "Calle 123 #45-67, Bogotá, Colombia",
	Phone:   "+57 300 123 4567",
	Email:   "facturacion@verdenexo.com",
}

func testCustomer(n int) invoice.CustomerInfo {
	return invoice.CustomerInfo{
		DocumentType:   invoice.DocCC,
		DocumentNumber: fmt.Sprintf("10%06d", n),
		Name:           fmt.Sprintf("Cliente %d", n),
		Email:          fmt.Sprintf("cliente%d@example.com", n),
		Address: invoice.Address{
			Street: "Carrera 7 #12-34",
			City:   "Bogotá",
			Region: "Cundinamarca",
		},
	}
}

func TestInvoiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := invoice.NewService(repository.NewInvoiceRepository(pool), testCompany)

	inv, err := svc.Create(ctx, invoice.CreateRequest{
		OrderID:  "it-inv-roundtrip",
		Customer: testCustomer(1),
		Items: []invoice.LineItem{
			{
				ProductID: "prod-monstera",
				Name:      "Monstera Deliciosa",
				Quantity:  2,
				UnitPrice: decimal.RequireFromString("10.00"),
				Discount:  decimal.RequireFromString("1.00"),
				TaxRate:   decimal.RequireFromString("19"),
			},
		},
		Shipping:      decimal.RequireFromString("5.00"),
		PaymentMethod: invoice.PayTransfer,
		IssuerID:      "it",
	})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusIssued, inv.Status)
	assert.True(t, inv.Totals.GrandTotal.Equal(decimal.RequireFromString("27.61")),
		"grand total = %s", inv.Totals.GrandTotal)

	repo := repository.NewInvoiceRepository(pool)
	got, err := repo.GetByNumber(ctx, inv.Number)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, testCompany, got.Company)
	assert.Equal(t, "Monstera Deliciosa", got.Items[0].Name)
	assert.True(t, got.Totals.Tax.Equal(decimal.RequireFromString("3.61")))

	_, err = repo.GetByID(ctx, "no-such-id")
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

func TestInvoiceNumberingUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	svc := invoice.NewService(repository.NewInvoiceRepository(pool), testCompany)

	const writers = 8
	numbers := make([]string, writers)

	var grp errgroup.Group
	for i := 0; i < writers; i++ {
		grp.Go(func() error {
			req := invoice.CreateRequest{
				OrderID:  fmt.Sprintf("it-inv-conc-%d", i),
				Customer: testCustomer(100 + i),
				Items: []invoice.LineItem{
					{
						ProductID: "prod-abono",
						Name:      "Organic Fertilizer 1kg",
						Quantity:  1,
						UnitPrice: decimal.RequireFromString("9.90"),
						TaxRate:   decimal.RequireFromString("5"),
					},
				},
				PaymentMethod: invoice.PayCash,
			}
			// The service bounds its own numbering retries; a caller under
			// heavy contention retries the create like production code does.
			for {
				inv, err := svc.Create(ctx, req)
				if errors.Is(err, invoice.ErrNumberConflict) {
					continue
				}
				if err != nil {
					return err
				}
				numbers[i] = inv.Number
				return nil
			}
		})
	}
	require.NoError(t, grp.Wait())

	seen := make(map[string]struct{}, writers)
	for _, n := range numbers {
		require.NotEmpty(t, n)
		_, dup := seen[n]
		require.False(t, dup, "duplicate invoice number %s", n)
		seen[n] = struct{}{}
	}
}

func TestInvoiceStatusFlowAndOverdue(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInvoiceRepository(pool)
	svc := invoice.NewService(repo, testCompany)

	inv, err := svc.Create(ctx, invoice.CreateRequest{
		OrderID:  "it-inv-flow",
		Customer: testCustomer(2),
		Items: []invoice.LineItem{
			{
				ProductID: "prod-tierra",
				Name:      "Potting Soil 5kg",
				Quantity:  3,
				UnitPrice: decimal.RequireFromString("14.50"),
				TaxRate:   decimal.RequireFromString("5"),
			},
		},
		PaymentMethod: invoice.PayCreditCard,
	})
	require.NoError(t, err)

	sent, err := svc.MarkSent(ctx, inv.ID, "https://mail.example.com/receipt/1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	// Due in 30 days: overdue when asked about day 31.
	overdue, err := repo.Overdue(ctx, time.Now().UTC().Add(31*24*time.Hour))
	require.NoError(t, err)
	var found bool
	for _, o := range overdue {
		if o.ID == inv.ID {
			found = true
		}
	}
	assert.True(t, found, "invoice should be overdue past its due date")

	paid, err := svc.MarkPaid(ctx, inv.ID, "txn-123")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)

	// Paid invoices cannot be voided.
	_, err = svc.Void(ctx, inv.ID)
	var flowErr *invoice.StatusFlowError
	require.ErrorAs(t, err, &flowErr)
}
