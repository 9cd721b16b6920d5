package report

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	mnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tnoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/verdenexo/sales-engine/internal/domain/invoice"
)

var hundred = decimal.NewFromInt(100)

// GenerateRequest holds the input for a report generation run.
type GenerateRequest struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
	RequestedBy string
	Filters     Filters
	Output      OutputConfig
}

// Option configures a Generator.
type Option func(*Generator)

// WithTracerProvider sets the tracer provider for generation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Generator) { g.tracer = tp.Tracer("report") }
}

// WithMeterProvider sets the meter provider for generation metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(g *Generator) { g.meter = mp.Meter("report") }
}

// Generator runs the report aggregation pipeline.
type Generator struct {
	reports     Repository
	invoices    InvoiceSource
	commissions CommissionSource
	catalog     CatalogSource
	now         func() time.Time

	tracer    trace.Tracer
	meter     metric.Meter
	generated metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewGenerator creates a report Generator over the given data sources.
func NewGenerator(
	reports Repository,
	invoices InvoiceSource,
	commissions CommissionSource,
	catalog CatalogSource,
	opts ...Option,
) (*Generator, error) {
	g := &Generator{
		reports:     reports,
		invoices:    invoices,
		commissions: commissions,
		catalog:     catalog,
		now:         time.Now,
		tracer:      tnoop.NewTracerProvider().Tracer("report"),
		meter:       mnoop.NewMeterProvider().Meter("report"),
	}
	for _, opt := range opts {
		opt(g)
	}

	var err error
	g.generated, err = g.meter.Int64Counter("sales_reports_generated_total",
		metric.WithDescription("Number of report generation runs, by outcome"))
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	g.duration, err = g.meter.Float64Histogram("sales_report_generation_seconds",
		metric.WithDescription("Report generation duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, errors.Wrap(err, "create histogram")
	}
	return g, nil
}

// Generate creates a report record in the generating state, runs the
// aggregation, and marks the record complete. On any aggregation failure the
// record is durably marked as errored before the failure is returned to the
// caller; failures are recorded but never swallowed.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*Report, error) {
	if !req.End.After(req.Start) {
		return nil, errors.New("period end must be after start")
	}
	if req.Granularity == "" {
		req.Granularity = Custom
	}
	if !req.Granularity.Valid() {
		return nil, &UnknownEnumError{Field: "granularity", Value: string(req.Granularity)}
	}
	if req.Output.Format == "" {
		req.Output.Format = FormatPDF
	}
	if !req.Output.Format.Valid() {
		return nil, &UnknownEnumError{Field: "output format", Value: string(req.Output.Format)}
	}

	rep := &Report{
		ID: uuid.New().String(),
		Period: Period{
			Start:       req.Start.UTC(),
			End:         req.End.UTC(),
			Granularity: req.Granularity,
		},
		Status:      StatusGenerating,
		GeneratedBy: req.RequestedBy,
		GeneratedAt: g.now().UTC(),
		Filters:     req.Filters,
		Output:      req.Output,
	}
	if err := g.reports.Create(ctx, rep); err != nil {
		return nil, errors.Wrap(err, "create report record")
	}

	ctx, span := g.tracer.Start(ctx, "report.Generate")
	defer span.End()
	started := g.now()

	err := g.aggregate(ctx, rep)

	outcome := "complete"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	g.generated.Add(ctx, 1, attrs)
	g.duration.Record(ctx, g.now().Sub(started).Seconds(), attrs)

	if err != nil {
		rep.Status = StatusError
		if uerr := g.reports.Update(ctx, rep); uerr != nil {
			zctx.From(ctx).Error("Failed to persist errored report",
				zap.String("report_id", rep.ID), zap.Error(uerr))
		}
		return nil, errors.Wrapf(err, "generate report %q", rep.ID)
	}

	rep.Status = StatusComplete
	if err := g.reports.Update(ctx, rep); err != nil {
		return nil, errors.Wrapf(err, "persist report %q", rep.ID)
	}
	return rep, nil
}

// aggregate fills the report's summary, metrics, breakdowns, and comparison.
func (g *Generator) aggregate(ctx context.Context, rep *Report) error {
	invs, err := g.invoices.IssuedInRange(ctx, rep.Period.Start, rep.Period.End, rep.Filters)
	if err != nil {
		return errors.Wrap(err, "load invoices")
	}

	sum := Summary{
		InvoiceCount: len(invs),
		// One invoice per order.
		OrderCount:       len(invs),
		GrossSales:       decimal.Zero,
		Discounts:        decimal.Zero,
		NetSales:         decimal.Zero,
		TaxCollected:     decimal.Zero,
		ShippingCosts:    decimal.Zero,
		TotalCommissions: decimal.Zero,
	}
	customers := make(map[string]struct{})
	for _, inv := range invs {
		sum.GrossSales = sum.GrossSales.Add(inv.Totals.Subtotal).Add(inv.Totals.Discount)
		sum.Discounts = sum.Discounts.Add(inv.Totals.Discount)
		sum.NetSales = sum.NetSales.Add(inv.Totals.GrandTotal)
		sum.TaxCollected = sum.TaxCollected.Add(inv.Totals.Tax)
		sum.ShippingCosts = sum.ShippingCosts.Add(inv.Totals.Shipping)
		if inv.CustomerID != nil && *inv.CustomerID != "" {
			customers[*inv.CustomerID] = struct{}{}
		}
	}

	sum.TotalCommissions, err = g.commissions.TotalInRange(ctx, rep.Period.Start, rep.Period.End)
	if err != nil {
		return errors.Wrap(err, "sum commissions")
	}

	met := Metrics{
		AverageTicket:   decimal.Zero,
		UniqueCustomers: len(customers),
		ConversionRate:  decimal.Zero,
		AverageMargin:   decimal.Zero,
	}
	if sum.InvoiceCount > 0 {
		met.AverageTicket = sum.NetSales.Div(decimal.NewFromInt(int64(sum.InvoiceCount)))
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		var err error
		rep.ByCategory, err = g.categoryBreakdown(grpCtx, invs, sum.NetSales)
		return err
	})
	grp.Go(func() error {
		var err error
		rep.BySeller, err = g.sellerBreakdown(grpCtx, invs, sum.NetSales)
		return err
	})
	grp.Go(func() error {
		rep.ByProduct = productBreakdown(invs, sum.NetSales)
		return nil
	})
	if err := grp.Wait(); err != nil {
		return err
	}

	cmp, err := g.compare(ctx, rep.Period, sum)
	if err != nil {
		return errors.Wrap(err, "compare prior period")
	}

	rep.Summary = roundSummary(sum)
	rep.Metrics = roundMetrics(met)
	rep.Comparison = cmp
	return nil
}

// compare aggregates the equal-length window immediately preceding the
// period. The prior window ends just before the period starts.
func (g *Generator) compare(ctx context.Context, p Period, sum Summary) (Comparison, error) {
	length := p.End.Sub(p.Start)
	priorEnd := p.Start.Add(-time.Nanosecond)
	priorStart := p.Start.Add(-length)

	prior, err := g.invoices.IssuedInRange(ctx, priorStart, priorEnd, Filters{})
	if err != nil {
		return Comparison{}, err
	}

	priorRevenue := decimal.Zero
	for _, inv := range prior {
		priorRevenue = priorRevenue.Add(inv.Totals.GrandTotal)
	}

	cmp := Comparison{
		PriorRevenue:     priorRevenue.Round(2),
		RevenueGrowth:    sum.NetSales.Sub(priorRevenue).Round(2),
		GrowthPercent:    decimal.Zero,
		PriorOrderCount:  len(prior),
		OrderCountGrowth: sum.InvoiceCount - len(prior),
	}
	if priorRevenue.IsPositive() {
		cmp.GrowthPercent = sum.NetSales.Sub(priorRevenue).Div(priorRevenue).Mul(hundred).Round(2)
	}
	return cmp, nil
}

func (g *Generator) categoryBreakdown(ctx context.Context, invs []invoice.Invoice, netSales decimal.Decimal) ([]BreakdownEntry, error) {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, inv := range invs {
		for _, item := range inv.Items {
			if _, ok := seen[item.ProductID]; !ok {
				seen[item.ProductID] = struct{}{}
				ids = append(ids, item.ProductID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	categories, err := g.catalog.ProductCategories(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolve product categories")
	}

	acc := make(map[string]*BreakdownEntry)
	for _, inv := range invs {
		for _, item := range inv.Items {
			cat, ok := categories[item.ProductID]
			if !ok {
				cat = Category{Name: "uncategorized"}
			}
			e, ok := acc[cat.ID]
			if !ok {
				e = &BreakdownEntry{Key: cat.ID, Name: cat.Name, Revenue: decimal.Zero}
				acc[cat.ID] = e
			}
			e.Quantity += item.Quantity
			e.Revenue = e.Revenue.Add(item.Subtotal)
		}
	}
	return finishBreakdown(acc, netSales), nil
}

func (g *Generator) sellerBreakdown(ctx context.Context, invs []invoice.Invoice, netSales decimal.Decimal) ([]BreakdownEntry, error) {
	if len(invs) == 0 {
		return nil, nil
	}
	orderIDs := make([]string, len(invs))
	for i, inv := range invs {
		orderIDs[i] = inv.OrderID
	}

	sellers, err := g.commissions.SellerByOrder(ctx, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "resolve sellers")
	}

	acc := make(map[string]*BreakdownEntry)
	for _, inv := range invs {
		sellerID, ok := sellers[inv.OrderID]
		if !ok {
			// Orders without a commission record (e.g. direct web sales)
			// are grouped under an empty seller key.
			sellerID = ""
		}
		e, ok := acc[sellerID]
		if !ok {
			// Seller names live in the external user directory; the key is
			// the seller reference and name resolution is the caller's
			// concern.
			e = &BreakdownEntry{Key: sellerID, Name: sellerID, Revenue: decimal.Zero}
			acc[sellerID] = e
		}
		e.Quantity++
		e.Revenue = e.Revenue.Add(inv.Totals.GrandTotal)
	}
	return finishBreakdown(acc, netSales), nil
}

func productBreakdown(invs []invoice.Invoice, netSales decimal.Decimal) []BreakdownEntry {
	acc := make(map[string]*BreakdownEntry)
	for _, inv := range invs {
		for _, item := range inv.Items {
			e, ok := acc[item.ProductID]
			if !ok {
				e = &BreakdownEntry{Key: item.ProductID, Name: item.Name, Revenue: decimal.Zero}
				acc[item.ProductID] = e
			}
			e.Quantity += item.Quantity
			e.Revenue = e.Revenue.Add(item.Subtotal)
		}
	}
	return finishBreakdown(acc, netSales)
}

// finishBreakdown rounds revenues, derives shares, and orders entries by
// revenue descending.
func finishBreakdown(acc map[string]*BreakdownEntry, netSales decimal.Decimal) []BreakdownEntry {
	if len(acc) == 0 {
		return nil
	}
	out := make([]BreakdownEntry, 0, len(acc))
	for _, e := range acc {
		e.Revenue = e.Revenue.Round(2)
		e.Share = share(e.Revenue, netSales)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Revenue.Equal(out[j].Revenue) {
			return out[i].Revenue.GreaterThan(out[j].Revenue)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// share returns revenue as a percentage of total, rounded to 2 decimals and
// clamped to [0,100].
func share(revenue, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	s := revenue.Div(total).Mul(hundred).Round(2)
	if s.IsNegative() {
		return decimal.Zero
	}
	if s.GreaterThan(hundred) {
		return hundred
	}
	return s
}

func roundSummary(s Summary) Summary {
	s.GrossSales = s.GrossSales.Round(2)
	s.Discounts = s.Discounts.Round(2)
	s.NetSales = s.NetSales.Round(2)
	s.TaxCollected = s.TaxCollected.Round(2)
	s.ShippingCosts = s.ShippingCosts.Round(2)
	s.TotalCommissions = s.TotalCommissions.Round(2)
	return s
}

func roundMetrics(m Metrics) Metrics {
	m.AverageTicket = m.AverageTicket.Round(2)
	m.ConversionRate = m.ConversionRate.Round(2)
	m.AverageMargin = m.AverageMargin.Round(2)
	return m
}

// Recent returns the newest complete reports.
func (g *Generator) Recent(ctx context.Context, limit int) ([]Report, error) {
	reps, err := g.reports.Recent(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "load recent reports")
	}
	return reps, nil
}
