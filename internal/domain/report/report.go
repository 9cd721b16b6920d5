// Package report produces point-in-time sales summaries over a date range:
// revenue, tax and commission totals, per-category/seller/product breakdowns,
// and a comparison against the immediately preceding period of equal length.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/verdenexo/sales-engine/internal/domain/invoice"
)

// Granularity enumerates reporting period types.
type Granularity string

const (
	Daily     Granularity = "daily"
	Weekly    Granularity = "weekly"
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
	Yearly    Granularity = "yearly"
	Custom    Granularity = "custom"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	switch g {
	case Daily, Weekly, Monthly, Quarterly, Yearly, Custom:
		return true
	}
	return false
}

// Status enumerates the report generation lifecycle.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Format enumerates report output formats. PDF and Excel rendering is done
// by the external exporter; this subsystem writes JSON artifacts itself.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatExcel Format = "excel"
	FormatJSON  Format = "json"
)

// Valid reports whether f is a known output format.
func (f Format) Valid() bool {
	switch f {
	case FormatPDF, FormatExcel, FormatJSON:
		return true
	}
	return false
}

// UnknownEnumError indicates a value outside a closed vocabulary.
type UnknownEnumError struct {
	Field string
	Value string
}

func (e *UnknownEnumError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Field, e.Value)
}

// Period is the date range a report covers. Bounds are inclusive.
type Period struct {
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Granularity Granularity `json:"granularity"`
}

// Summary aggregates the period's sales figures.
//
// NetSales sums each invoice's grand total, which already includes tax and
// shipping, while tax and shipping are also reported separately. This
// mirrors the accounting module's historical definition and is preserved
// deliberately; do not "correct" it without a product decision.
type Summary struct {
	OrderCount       int             `json:"order_count"`
	InvoiceCount     int             `json:"invoice_count"`
	GrossSales       decimal.Decimal `json:"gross_sales"`
	Discounts        decimal.Decimal `json:"discounts"`
	NetSales         decimal.Decimal `json:"net_sales"`
	TaxCollected     decimal.Decimal `json:"tax_collected"`
	ShippingCosts    decimal.Decimal `json:"shipping_costs"`
	TotalCommissions decimal.Decimal `json:"total_commissions"`
}

// Metrics holds derived indicators for the period.
type Metrics struct {
	AverageTicket   decimal.Decimal `json:"average_ticket"`
	UniqueCustomers int             `json:"unique_customers"`
	// NewCustomers, ReturningCustomers, ConversionRate, and AverageMargin
	// are explicit zero placeholders.
	// TODO: populate once prior-period customer sets, storefront traffic /
	// cart-abandonment feeds, and product cost data are available to this
	// subsystem.
	NewCustomers       int             `json:"new_customers"`
	ReturningCustomers int             `json:"returning_customers"`
	ConversionRate     decimal.Decimal `json:"conversion_rate"`
	AverageMargin      decimal.Decimal `json:"average_margin"`
}

// BreakdownEntry is one row of a per-dimension breakdown. Share is the
// entry's revenue as a percentage of the period's net sales, in [0,100].
type BreakdownEntry struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
	Share    decimal.Decimal `json:"share"`
}

// Comparison relates the period to the equal-length window immediately
// before it.
type Comparison struct {
	PriorRevenue     decimal.Decimal `json:"prior_revenue"`
	RevenueGrowth    decimal.Decimal `json:"revenue_growth"`
	GrowthPercent    decimal.Decimal `json:"growth_percent"`
	PriorOrderCount  int             `json:"prior_order_count"`
	OrderCountGrowth int             `json:"order_count_growth"`
}

// Filters restricts the invoice set a report aggregates over. Empty slices
// mean no restriction on that dimension.
type Filters struct {
	Categories    []string `json:"categories,omitempty"`
	Sellers       []string `json:"sellers,omitempty"`
	Products      []string `json:"products,omitempty"`
	OrderStatuses []string `json:"order_statuses,omitempty"`
}

// OutputConfig controls how the finished report is delivered.
type OutputConfig struct {
	IncludeCharts bool     `json:"include_charts"`
	Format        Format   `json:"format"`
	EmailDelivery bool     `json:"email_delivery"`
	Recipients    []string `json:"recipients,omitempty"`
}

// Report is one generated sales report. Read-only once complete.
type Report struct {
	ID          string
	Period      Period
	Summary     Summary
	ByCategory  []BreakdownEntry
	BySeller    []BreakdownEntry
	ByProduct   []BreakdownEntry
	Metrics     Metrics
	Comparison  Comparison
	Status      Status
	FileURL     string
	GeneratedBy string
	GeneratedAt time.Time
	Filters     Filters
	Output      OutputConfig
}

// Repository defines persistence operations for reports.
type Repository interface {
	Create(ctx context.Context, r *Report) error
	Update(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id string) (*Report, error)
	// Recent returns the newest complete reports, up to limit.
	Recent(ctx context.Context, limit int) ([]Report, error)
}

// InvoiceSource supplies the invoice set a report aggregates over:
// active, non-voided invoices issued inside the range.
type InvoiceSource interface {
	IssuedInRange(ctx context.Context, start, end time.Time, f Filters) ([]invoice.Invoice, error)
}

// CommissionSource supplies commission figures for the range and the
// order→seller mapping used by the seller breakdown.
type CommissionSource interface {
	TotalInRange(ctx context.Context, start, end time.Time) (decimal.Decimal, error)
	SellerByOrder(ctx context.Context, orderIDs []string) (map[string]string, error)
}

// Category identifies a product category in the external catalog.
type Category struct {
	ID   string
	Name string
}

// CatalogSource resolves product identifiers to catalog categories. The
// product catalog is owned by the storefront; this subsystem only reads it.
type CatalogSource interface {
	ProductCategories(ctx context.Context, productIDs []string) (map[string]Category, error)
}
