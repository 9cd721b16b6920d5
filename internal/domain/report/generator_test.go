package report

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdenexo/sales-engine/internal/domain/invoice"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- Mock implementations ---

type mockReportRepo struct {
	created   *Report
	updated   []*Report
	createErr error
	updateErr error
}

func (m *mockReportRepo) Create(_ context.Context, r *Report) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *r
	m.created = &cp
	return nil
}

func (m *mockReportRepo) Update(_ context.Context, r *Report) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *r
	m.updated = append(m.updated, &cp)
	return nil
}

func (m *mockReportRepo) GetByID(_ context.Context, _ string) (*Report, error) {
	return nil, errors.New("not implemented")
}

func (m *mockReportRepo) Recent(_ context.Context, _ int) ([]Report, error) {
	return nil, nil
}

func (m *mockReportRepo) lastStatus() Status {
	if len(m.updated) == 0 {
		return ""
	}
	return m.updated[len(m.updated)-1].Status
}

type mockInvoiceSource struct {
	// current and prior are returned depending on whether the queried range
	// starts before the period under test.
	periodStart time.Time
	current     []invoice.Invoice
	prior       []invoice.Invoice
	err         error
}

func (m *mockInvoiceSource) IssuedInRange(_ context.Context, start, _ time.Time, _ Filters) ([]invoice.Invoice, error) {
	if m.err != nil {
		return nil, m.err
	}
	if start.Before(m.periodStart) {
		return m.prior, nil
	}
	return m.current, nil
}

type mockCommissionSource struct {
	total   decimal.Decimal
	sellers map[string]string
	err     error
}

func (m *mockCommissionSource) TotalInRange(_ context.Context, _, _ time.Time) (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return m.total, nil
}

func (m *mockCommissionSource) SellerByOrder(_ context.Context, _ []string) (map[string]string, error) {
	return m.sellers, nil
}

type mockCatalog struct {
	categories map[string]Category
	err        error
}

func (m *mockCatalog) ProductCategories(_ context.Context, _ []string) (map[string]Category, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.categories, nil
}

// --- Helpers ---

var (
	periodStart = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 7, 31, 23, 59, 59, 0, time.UTC)
)

func strPtr(s string) *string { return &s }

func testInvoice(orderID string, customerID *string, items []invoice.LineItem, totals invoice.Totals) invoice.Invoice {
	return invoice.Invoice{
		ID:         "inv-" + orderID,
		OrderID:    orderID,
		CustomerID: customerID,
		Items:      items,
		Totals:     totals,
		Status:     invoice.StatusIssued,
		Active:     true,
	}
}

func newTestGenerator(repo Repository, invs InvoiceSource, comms CommissionSource, cat CatalogSource) *Generator {
	g, err := NewGenerator(repo, invs, comms, cat)
	if err != nil {
		panic(err)
	}
	return g
}

func generateReq() GenerateRequest {
	return GenerateRequest{
		Start:       periodStart,
		End:         periodEnd,
		Granularity: Monthly,
		RequestedBy: "admin-1",
	}
}

// --- Tests ---

func TestGenerate_EmptyRangeCompletesWithZeros(t *testing.T) {
	repo := &mockReportRepo{}
	g := newTestGenerator(repo,
		&mockInvoiceSource{periodStart: periodStart},
		&mockCommissionSource{total: decimal.Zero},
		&mockCatalog{},
	)

	rep, err := g.Generate(context.Background(), generateReq())
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, rep.Status)
	assert.Equal(t, 0, rep.Summary.InvoiceCount)
	assert.True(t, rep.Summary.GrossSales.IsZero())
	assert.True(t, rep.Summary.NetSales.IsZero())
	assert.True(t, rep.Summary.TotalCommissions.IsZero())
	assert.True(t, rep.Metrics.AverageTicket.IsZero())
	assert.Equal(t, 0, rep.Metrics.UniqueCustomers)
	assert.Empty(t, rep.ByCategory)
	assert.Empty(t, rep.BySeller)
	assert.Empty(t, rep.ByProduct)

	// Record was created generating and finished complete.
	require.NotNil(t, repo.created)
	assert.Equal(t, StatusGenerating, repo.created.Status)
	assert.Equal(t, StatusComplete, repo.lastStatus())
}

func TestGenerate_Summary(t *testing.T) {
	items1 := []invoice.LineItem{
		{ProductID: "p1", Name: "Monstera", Quantity: 2, Subtotal: d("90"), TaxValue: d("17.10")},
	}
	items2 := []invoice.LineItem{
		{ProductID: "p2", Name: "Ficus", Quantity: 1, Subtotal: d("50"), TaxValue: d("9.50")},
	}
	invs := []invoice.Invoice{
		testInvoice("ord-1", strPtr("cust-1"), items1, invoice.Totals{
			Subtotal: d("90"), Discount: d("10"), Tax: d("17.10"), Shipping: d("5"), GrandTotal: d("112.10"),
		}),
		testInvoice("ord-2", strPtr("cust-1"), items2, invoice.Totals{
			Subtotal: d("50"), Discount: d("0"), Tax: d("9.50"), Shipping: d("0"), GrandTotal: d("59.50"),
		}),
		// Guest checkout: no customer reference.
		testInvoice("ord-3", nil, items2, invoice.Totals{
			Subtotal: d("50"), Discount: d("0"), Tax: d("9.50"), Shipping: d("0"), GrandTotal: d("59.50"),
		}),
	}

	repo := &mockReportRepo{}
	g := newTestGenerator(repo,
		&mockInvoiceSource{periodStart: periodStart, current: invs},
		&mockCommissionSource{total: d("23.45"), sellers: map[string]string{"ord-1": "sel-1", "ord-2": "sel-2"}},
		&mockCatalog{categories: map[string]Category{
			"p1": {ID: "cat-indoor", Name: "Indoor"},
			"p2": {ID: "cat-indoor", Name: "Indoor"},
		}},
	)

	rep, err := g.Generate(context.Background(), generateReq())
	require.NoError(t, err)

	sum := rep.Summary
	assert.Equal(t, 3, sum.InvoiceCount)
	assert.Equal(t, 3, sum.OrderCount)
	// gross = (90+10) + 50 + 50 = 200
	assert.True(t, d("200.00").Equal(sum.GrossSales), "got %s", sum.GrossSales)
	assert.True(t, d("10.00").Equal(sum.Discounts))
	// net sales sums grand totals, tax and shipping included.
	assert.True(t, d("231.10").Equal(sum.NetSales), "got %s", sum.NetSales)
	assert.True(t, d("36.10").Equal(sum.TaxCollected))
	assert.True(t, d("5.00").Equal(sum.ShippingCosts))
	assert.True(t, d("23.45").Equal(sum.TotalCommissions))

	// 231.10 / 3 = 77.03333 -> 77.03
	assert.True(t, d("77.03").Equal(rep.Metrics.AverageTicket), "got %s", rep.Metrics.AverageTicket)
	// cust-1 twice plus one guest -> 1 unique customer.
	assert.Equal(t, 1, rep.Metrics.UniqueCustomers)

	// Placeholder metrics stay zero until their data sources exist.
	assert.Equal(t, 0, rep.Metrics.NewCustomers)
	assert.Equal(t, 0, rep.Metrics.ReturningCustomers)
	assert.True(t, rep.Metrics.ConversionRate.IsZero())
	assert.True(t, rep.Metrics.AverageMargin.IsZero())
}

func TestGenerate_Breakdowns(t *testing.T) {
	items := []invoice.LineItem{
		{ProductID: "p1", Name: "Monstera", Quantity: 2, Subtotal: d("90"), TaxValue: d("17.10")},
		{ProductID: "p2", Name: "Ficus", Quantity: 1, Subtotal: d("30"), TaxValue: d("5.70")},
	}
	invs := []invoice.Invoice{
		testInvoice("ord-1", strPtr("cust-1"), items, invoice.Totals{
			Subtotal: d("120"), Tax: d("22.80"), GrandTotal: d("142.80"),
		}),
	}

	repo := &mockReportRepo{}
	g := newTestGenerator(repo,
		&mockInvoiceSource{periodStart: periodStart, current: invs},
		&mockCommissionSource{total: decimal.Zero, sellers: map[string]string{"ord-1": "sel-1"}},
		&mockCatalog{categories: map[string]Category{
			"p1": {ID: "cat-indoor", Name: "Indoor"},
			"p2": {ID: "cat-outdoor", Name: "Outdoor"},
		}},
	)

	rep, err := g.Generate(context.Background(), generateReq())
	require.NoError(t, err)

	require.Len(t, rep.ByProduct, 2)
	// Ordered by revenue descending.
	assert.Equal(t, "p1", rep.ByProduct[0].Key)
	assert.Equal(t, "Monstera", rep.ByProduct[0].Name)
	assert.Equal(t, 2, rep.ByProduct[0].Quantity)
	assert.True(t, d("90.00").Equal(rep.ByProduct[0].Revenue))
	// 90 / 142.80 * 100 = 63.0252... -> 63.03
	assert.True(t, d("63.03").Equal(rep.ByProduct[0].Share), "got %s", rep.ByProduct[0].Share)

	require.Len(t, rep.ByCategory, 2)
	assert.Equal(t, "cat-indoor", rep.ByCategory[0].Key)
	assert.Equal(t, "Indoor", rep.ByCategory[0].Name)

	require.Len(t, rep.BySeller, 1)
	assert.Equal(t, "sel-1", rep.BySeller[0].Key)
	assert.Equal(t, 1, rep.BySeller[0].Quantity)
	assert.True(t, d("142.80").Equal(rep.BySeller[0].Revenue))
	assert.True(t, d("100").Equal(rep.BySeller[0].Share))
}

func TestGenerate_PriorPeriodComparison(t *testing.T) {
	current := []invoice.Invoice{
		testInvoice("ord-1", nil, nil, invoice.Totals{GrandTotal: d("150")}),
		testInvoice("ord-2", nil, nil, invoice.Totals{GrandTotal: d("150")}),
	}
	prior := []invoice.Invoice{
		testInvoice("ord-0", nil, nil, invoice.Totals{GrandTotal: d("200")}),
	}

	repo := &mockReportRepo{}
	g := newTestGenerator(repo,
		&mockInvoiceSource{periodStart: periodStart, current: current, prior: prior},
		&mockCommissionSource{total: decimal.Zero},
		&mockCatalog{},
	)

	rep, err := g.Generate(context.Background(), generateReq())
	require.NoError(t, err)

	cmp := rep.Comparison
	assert.True(t, d("200.00").Equal(cmp.PriorRevenue))
	assert.True(t, d("100.00").Equal(cmp.RevenueGrowth))
	// (300-200)/200*100 = 50%
	assert.True(t, d("50.00").Equal(cmp.GrowthPercent), "got %s", cmp.GrowthPercent)
	assert.Equal(t, 1, cmp.PriorOrderCount)
	assert.Equal(t, 1, cmp.OrderCountGrowth)
}

func TestGenerate_FailureMarksErrorAndReRaises(t *testing.T) {
	repo := &mockReportRepo{}
	boom := errors.New("query timeout")
	g := newTestGenerator(repo,
		&mockInvoiceSource{periodStart: periodStart, err: boom},
		&mockCommissionSource{},
		&mockCatalog{},
	)

	_, err := g.Generate(context.Background(), generateReq())
	require.ErrorIs(t, err, boom)

	// The record is durably marked errored before the failure surfaces.
	require.NotNil(t, repo.created)
	assert.Equal(t, StatusError, repo.lastStatus())
}

func TestGenerate_CatalogFailureMarksError(t *testing.T) {
	invs := []invoice.Invoice{
		testInvoice("ord-1", nil, []invoice.LineItem{
			{ProductID: "p1", Name: "Monstera", Quantity: 1, Subtotal: d("10")},
		}, invoice.Totals{GrandTotal: d("11.90")}),
	}
	repo := &mockReportRepo{}
	boom := errors.New("catalog unavailable")
	g := newTestGenerator(repo,
		&mockInvoiceSource{periodStart: periodStart, current: invs},
		&mockCommissionSource{total: decimal.Zero},
		&mockCatalog{err: boom},
	)

	_, err := g.Generate(context.Background(), generateReq())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusError, repo.lastStatus())
}

func TestGenerate_Validation(t *testing.T) {
	g := newTestGenerator(&mockReportRepo{}, &mockInvoiceSource{}, &mockCommissionSource{}, &mockCatalog{})

	req := generateReq()
	req.End = req.Start
	_, err := g.Generate(context.Background(), req)
	require.Error(t, err)

	req = generateReq()
	req.Granularity = "hourly"
	_, err = g.Generate(context.Background(), req)
	var enumErr *UnknownEnumError
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, "granularity", enumErr.Field)

	req = generateReq()
	req.Output.Format = "csv"
	_, err = g.Generate(context.Background(), req)
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, "output format", enumErr.Field)
}

func TestGenerate_DefaultsGranularityAndFormat(t *testing.T) {
	repo := &mockReportRepo{}
	g := newTestGenerator(repo, &mockInvoiceSource{periodStart: periodStart}, &mockCommissionSource{}, &mockCatalog{})

	req := generateReq()
	req.Granularity = ""
	req.Output.Format = ""
	rep, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Custom, rep.Period.Granularity)
	assert.Equal(t, FormatPDF, rep.Output.Format)
}
