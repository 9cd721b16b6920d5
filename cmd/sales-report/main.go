// Command sales-report generates a single sales report for a date range and
// writes its artifact, or lists recently completed reports.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/verdenexo/sales-engine/internal/domain/report"
	"github.com/verdenexo/sales-engine/internal/export"
	"github.com/verdenexo/sales-engine/internal/repository"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		databaseURL string
		startStr    string
		endStr      string
		granularity string
		exportDir   string
		recent      int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&startStr, "start", "", "period start date (YYYY-MM-DD)")
	flag.StringVar(&endStr, "end", "", "period end date, inclusive (YYYY-MM-DD)")
	flag.StringVar(&granularity, "granularity", "custom", "reporting granularity (daily, weekly, monthly, quarterly, yearly, custom)")
	flag.StringVar(&exportDir, "export-dir", "./exports", "directory for report artifacts")
	flag.IntVar(&recent, "recent", 0, "list the N most recent complete reports instead of generating")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, startStr, endStr, granularity, exportDir, recent); err != nil {
		slog.Error("sales-report failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, startStr, endStr, granularity, exportDir string, recent int) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	reportRepo := repository.NewReportRepository(pool)
	generator, err := report.NewGenerator(
		reportRepo,
		repository.NewInvoiceRepository(pool),
		repository.NewCommissionRepository(pool),
		repository.NewCatalogRepository(pool),
	)
	if err != nil {
		return errors.Wrap(err, "create report generator")
	}

	if recent > 0 {
		return listRecent(ctx, generator, recent)
	}
	return generate(ctx, generator, reportRepo, startStr, endStr, granularity, exportDir)
}

func generate(
	ctx context.Context,
	generator *report.Generator,
	reports report.Repository,
	startStr, endStr, granularity, exportDir string,
) error {
	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return errors.Wrapf(err, "parse start date %q", startStr)
	}
	endDay, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return errors.Wrapf(err, "parse end date %q", endStr)
	}
	// End date is inclusive; cover the whole final day.
	end := endDay.Add(24*time.Hour - time.Nanosecond)

	rep, err := generator.Generate(ctx, report.GenerateRequest{
		Start:       start,
		End:         end,
		Granularity: report.Granularity(granularity),
		RequestedBy: "sales-report",
		Output:      report.OutputConfig{Format: report.FormatJSON},
	})
	if err != nil {
		return errors.Wrap(err, "generate report")
	}

	writer, err := export.NewWriter(exportDir)
	if err != nil {
		return errors.Wrap(err, "create export writer")
	}
	path, err := writer.Write(rep)
	if err != nil {
		return errors.Wrap(err, "write report artifact")
	}

	rep.FileURL = path
	if err := reports.Update(ctx, rep); err != nil {
		return errors.Wrap(err, "update report file URL")
	}

	slog.Info("report generated",
		slog.String("id", rep.ID),
		slog.String("file", path),
		slog.Int("invoices", rep.Summary.InvoiceCount),
		slog.String("net_sales", rep.Summary.NetSales.String()),
		slog.String("commissions", rep.Summary.TotalCommissions.String()),
	)
	return nil
}

func listRecent(ctx context.Context, generator *report.Generator, limit int) error {
	reps, err := generator.Recent(ctx, limit)
	if err != nil {
		return errors.Wrap(err, "list recent reports")
	}

	for _, rep := range reps {
		slog.Info("report",
			slog.String("id", rep.ID),
			slog.String("period", rep.Period.Start.Format(dateLayout)+".."+rep.Period.End.Format(dateLayout)),
			slog.String("granularity", string(rep.Period.Granularity)),
			slog.String("net_sales", rep.Summary.NetSales.String()),
			slog.String("file", rep.FileURL),
		)
	}
	if len(reps) == 0 {
		slog.Info("no complete reports found")
	}
	return nil
}
