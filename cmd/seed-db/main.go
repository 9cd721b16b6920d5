// Command seed-db fills the database with a small demo catalog and a batch
// of synthetic orders: status history, invoices, and commissions. All records
// go through the domain services so they satisfy the same rules production
// data does.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	appkg "github.com/verdenexo/sales-engine/internal/app"
	"github.com/verdenexo/sales-engine/internal/domain/commission"
	"github.com/verdenexo/sales-engine/internal/domain/invoice"
	"github.com/verdenexo/sales-engine/internal/domain/order"
	"github.com/verdenexo/sales-engine/internal/repository"
)

const upsertProductSQL = `INSERT INTO products (id, name, category, price, stock)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, category = EXCLUDED.category,
		price = EXCLUDED.price, stock = EXCLUDED.stock`

type seedProduct struct {
	id       string
	name     string
	category string
	price    string
	taxRate  string
}

var catalog = []seedProduct{
	{"prod-monstera", "Monstera Deliciosa", "plantas-interior", "45.00", "19"},
	{"prod-suculenta", "Succulent Mix Tray", "plantas-interior", "18.50", "19"},
	{"prod-helecho", "Boston Fern", "plantas-interior", "27.90", "19"},
	{"prod-bonsai", "Juniper Bonsai", "plantas-exterior", "89.00", "19"},
	{"prod-matera-s", "Ceramic Pot Small", "materas", "12.00", "19"},
	{"prod-matera-l", "Ceramic Pot Large", "materas", "24.00", "19"},
	{"prod-abono", "Organic Fertilizer 1kg", "insumos", "9.90", "5"},
	{"prod-tierra", "Potting Soil 5kg", "insumos", "14.50", "5"},
}

var sellers = []string{"seller-ana", "seller-carlos", "seller-lucia"}

func main() {
	var (
		databaseURL string
		orderCount  int
		seed        int64
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&orderCount, "orders", 25, "number of synthetic orders to create")
	flag.Int64Var(&seed, "seed", 1, "random seed for reproducible data")
	flag.Parse()

	// Company snapshot and commission defaults come from the shared app
	// config (SALES_ env vars, config.yaml); the flag overrides the URL.
	cfg, err := appkg.LoadEnvConfig()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if cfg.DatabaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, orderCount, seed); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, cfg *appkg.Config, orderCount int, seed int64) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting products", slog.Int("count", len(catalog)))

	for _, p := range catalog {
		price := decimal.RequireFromString(p.price)
		if _, err := pool.Exec(ctx, upsertProductSQL, p.id, p.name, p.category, price, 100); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.id)
		}
	}

	defaultType, defaultConfig, err := cfg.Commission.Parse()
	if err != nil {
		return errors.Wrap(err, "commission defaults")
	}

	ledger := order.NewLedger(repository.NewOrderStatusRepository(pool))
	invoices := invoice.NewService(repository.NewInvoiceRepository(pool), cfg.Company.CompanyInfo())
	commissions := commission.NewService(
		repository.NewCommissionRepository(pool),
		defaultType,
		defaultConfig,
	)

	rng := rand.New(rand.NewSource(seed))

	slog.Info("creating synthetic orders", slog.Int("count", orderCount))

	for i := 0; i < orderCount; i++ {
		if err := seedOrder(ctx, rng, i, ledger, invoices, commissions); err != nil {
			return errors.Wrapf(err, "seed order %d", i)
		}
	}

	return nil
}

func seedOrder(
	ctx context.Context,
	rng *rand.Rand,
	n int,
	ledger *order.Ledger,
	invoices *invoice.Service,
	commissions *commission.Service,
) error {
	orderID := fmt.Sprintf("order-%04d", n)

	// Walk the order through pending -> confirmed, plus fulfilment for most.
	path := []order.Status{order.StatusPending, order.StatusConfirmed}
	if rng.Intn(10) > 1 {
		path = append(path, order.StatusInProcess, order.StatusPacked, order.StatusShipped, order.StatusDelivered)
	}
	var from *order.Status
	for _, to := range path {
		if _, err := ledger.RecordTransition(ctx, order.TransitionRequest{
			OrderID: orderID,
			From:    from,
			To:      to,
			Reason:  "seed",
		}); err != nil {
			return errors.Wrapf(err, "record %s", to)
		}
		s := to
		from = &s
	}

	items := make([]invoice.LineItem, 1+rng.Intn(3))
	for j := range items {
		p := catalog[rng.Intn(len(catalog))]
		items[j] = invoice.LineItem{
			ProductID: p.id,
			Name:      p.name,
			Quantity:  1 + rng.Intn(4),
			UnitPrice: decimal.RequireFromString(p.price),
			TaxRate:   decimal.RequireFromString(p.taxRate),
		}
	}

	inv, err := invoices.Create(ctx, invoice.CreateRequest{
		OrderID: orderID,
		Customer: invoice.CustomerInfo{
			DocumentType:   invoice.DocCC,
			DocumentNumber: fmt.Sprintf("10%06d", rng.Intn(1_000_000)),
			Name:           fmt.Sprintf("Cliente %d", n),
			Email:          fmt.Sprintf("cliente%d@example.com", n),
			Address: invoice.Address{
				Street: "Carrera 7 #12-34",
				City:   "Bogotá",
				Region: "Cundinamarca",
			},
		},
		Items:         items,
		Shipping:      decimal.NewFromInt(int64(5 + rng.Intn(10))),
		PaymentMethod: invoice.PayOnlineGateway,
		IssuerID:      "seed",
	})
	if err != nil {
		return errors.Wrap(err, "create invoice")
	}

	_, err = commissions.CreateForOrder(ctx, commission.CreateRequest{
		OrderID:   orderID,
		SellerID:  sellers[rng.Intn(len(sellers))],
		Gross:     inv.Totals.Subtotal.Add(inv.Totals.Discount),
		Discounts: inv.Totals.Discount,
		Net:       inv.Totals.GrandTotal,
	})
	if err != nil {
		return errors.Wrap(err, "create commission")
	}

	slog.Info("seeded order",
		slog.String("order", orderID),
		slog.String("invoice", inv.Number),
		slog.String("total", inv.Totals.GrandTotal.String()),
	)
	return nil
}
