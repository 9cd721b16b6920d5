// Package app wires the report scheduler daemon: database pool, domain
// services, periodic report generation, artifact export, and ops probes.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/verdenexo/sales-engine/internal/domain/report"
	"github.com/verdenexo/sales-engine/internal/export"
	"github.com/verdenexo/sales-engine/internal/repository"
	"github.com/verdenexo/sales-engine/pkg/health"
	"github.com/verdenexo/sales-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the scheduler loop and the ops
// server, and handles graceful shutdown. It is the single wiring point for
// the daemon.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("ops_addr", cfg.OpsAddr))

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	exporter, err := export.NewWriter(cfg.ExportDir)
	if err != nil {
		return errors.Wrap(err, "create export writer")
	}

	invoiceRepo := repository.NewInvoiceRepository(pool)
	commissionRepo := repository.NewCommissionRepository(pool)
	reportRepo := repository.NewReportRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)

	generator, err := report.NewGenerator(reportRepo, invoiceRepo, commissionRepo, catalogRepo,
		report.WithTracerProvider(m.TracerProvider()),
		report.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create report generator")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		Addr:              cfg.OpsAddr,
		Handler: httpmiddleware.Wrap(healthSvc.Handler(),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg.Named("ops")),
			httpmiddleware.LogRequests(),
		),
	}

	sched := &scheduler{
		generator: generator,
		reports:   reportRepo,
		exporter:  exporter,
		interval:  cfg.Scheduler.Interval,
		lookback:  cfg.Scheduler.Lookback,
		lg:        lg.Named("scheduler"),
	}
	go sched.run(ctx)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down ops server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Ops server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Ops server listening", zap.String("addr", cfg.OpsAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "ops server")
	}
	<-shutdownDone
	return nil
}

// scheduler generates one report per interval covering the trailing
// lookback window and publishes its artifact.
type scheduler struct {
	generator *report.Generator
	reports   report.Repository
	exporter  *export.Writer
	interval  time.Duration
	lookback  time.Duration
	lg        *zap.Logger
}

func (s *scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *scheduler) tick(ctx context.Context) {
	end := time.Now().UTC()
	start := end.Add(-s.lookback)

	rep, err := s.generator.Generate(ctx, report.GenerateRequest{
		Start:       start,
		End:         end,
		Granularity: report.Daily,
		RequestedBy: "scheduler",
		Output:      report.OutputConfig{Format: report.FormatJSON},
	})
	if err != nil {
		s.lg.Error("Report generation failed",
			zap.Time("start", start), zap.Time("end", end), zap.Error(err))
		return
	}

	path, err := s.exporter.Write(rep)
	if err != nil {
		s.lg.Error("Report export failed", zap.String("report_id", rep.ID), zap.Error(err))
		return
	}

	rep.FileURL = path
	if err := s.reports.Update(ctx, rep); err != nil {
		s.lg.Error("Report file URL update failed", zap.String("report_id", rep.ID), zap.Error(err))
		return
	}

	s.lg.Info("Report generated",
		zap.String("report_id", rep.ID),
		zap.String("file", path),
		zap.Int("invoices", rep.Summary.InvoiceCount),
		zap.String("net_sales", rep.Summary.NetSales.String()))
}
