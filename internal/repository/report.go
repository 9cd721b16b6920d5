package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdenexo/sales-engine/internal/domain/report"
)

const (
	createReportSQL = `INSERT INTO sales_reports
		(id, period_start, period_end, granularity, summary,
		 by_category, by_seller, by_product, metrics, comparison,
		 status, file_url, generated_by, generated_at, filters, output)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	reportColumns = `id, period_start, period_end, granularity, summary,
		 by_category, by_seller, by_product, metrics, comparison,
		 status, file_url, generated_by, generated_at, filters, output`

	updateReportSQL = `UPDATE sales_reports SET
		summary = $2, by_category = $3, by_seller = $4, by_product = $5,
		metrics = $6, comparison = $7, status = $8, file_url = $9
		WHERE id = $1`

	getReportByIDSQL = `SELECT ` + reportColumns + ` FROM sales_reports WHERE id = $1`

	recentReportsSQL = `SELECT ` + reportColumns + ` FROM sales_reports
		WHERE status = 'complete'
		ORDER BY generated_at DESC
		LIMIT $1`
)

var _ report.Repository = (*ReportRepository)(nil)

// ReportRepository implements report.Repository backed by PostgreSQL.
// Aggregates live in JSONB columns; the period and status are relational so
// scheduling queries stay in SQL.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository returns a ReportRepository that uses the given pool.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Create persists a new report record, normally in the generating state.
func (r *ReportRepository) Create(ctx context.Context, rep *report.Report) error {
	docs, err := marshalReportDocs(rep)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createReportSQL,
		rep.ID, rep.Period.Start, rep.Period.End, string(rep.Period.Granularity),
		docs.summary, docs.byCategory, docs.bySeller, docs.byProduct,
		docs.metrics, docs.comparison,
		string(rep.Status), rep.FileURL, rep.GeneratedBy, rep.GeneratedAt,
		docs.filters, docs.output,
	)
	if err != nil {
		return fmt.Errorf("creating report %q: %w", rep.ID, err)
	}
	return nil
}

// Update rewrites the aggregate payload and status of an existing report.
func (r *ReportRepository) Update(ctx context.Context, rep *report.Report) error {
	docs, err := marshalReportDocs(rep)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updateReportSQL,
		rep.ID, docs.summary, docs.byCategory, docs.bySeller, docs.byProduct,
		docs.metrics, docs.comparison, string(rep.Status), rep.FileURL,
	)
	if err != nil {
		return fmt.Errorf("updating report %q: %w", rep.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating report %q: no such report", rep.ID)
	}
	return nil
}

// GetByID looks up a report by its identifier.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*report.Report, error) {
	rows, err := r.pool.Query(ctx, getReportByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding report %q: %w", id, err)
	}

	rep, err := pgx.CollectExactlyOneRow(rows, scanReport)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("finding report %q: no such report", id)
		}
		return nil, fmt.Errorf("finding report %q: %w", id, err)
	}
	return &rep, nil
}

// Recent returns the newest complete reports, up to limit.
func (r *ReportRepository) Recent(ctx context.Context, limit int) ([]report.Report, error) {
	rows, err := r.pool.Query(ctx, recentReportsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent reports: %w", err)
	}
	return pgx.CollectRows(rows, scanReport)
}

type reportDocs struct {
	summary    []byte
	byCategory []byte
	bySeller   []byte
	byProduct  []byte
	metrics    []byte
	comparison []byte
	filters    []byte
	output     []byte
}

func marshalReportDocs(rep *report.Report) (reportDocs, error) {
	var (
		docs reportDocs
		err  error
	)
	for _, f := range []struct {
		name string
		dst  *[]byte
		src  any
	}{
		{"summary", &docs.summary, rep.Summary},
		{"category breakdown", &docs.byCategory, rep.ByCategory},
		{"seller breakdown", &docs.bySeller, rep.BySeller},
		{"product breakdown", &docs.byProduct, rep.ByProduct},
		{"metrics", &docs.metrics, rep.Metrics},
		{"comparison", &docs.comparison, rep.Comparison},
		{"filters", &docs.filters, rep.Filters},
		{"output", &docs.output, rep.Output},
	} {
		if *f.dst, err = json.Marshal(f.src); err != nil {
			return docs, fmt.Errorf("marshaling report %s: %w", f.name, err)
		}
	}
	return docs, nil
}

func scanReport(row pgx.CollectableRow) (report.Report, error) {
	var (
		rep         report.Report
		granularity string
		status      string
		docs        reportDocs
	)
	err := row.Scan(
		&rep.ID, &rep.Period.Start, &rep.Period.End, &granularity, &docs.summary,
		&docs.byCategory, &docs.bySeller, &docs.byProduct, &docs.metrics, &docs.comparison,
		&status, &rep.FileURL, &rep.GeneratedBy, &rep.GeneratedAt, &docs.filters, &docs.output,
	)
	if err != nil {
		return rep, err
	}
	rep.Period.Granularity = report.Granularity(granularity)
	rep.Status = report.Status(status)

	for _, f := range []struct {
		name string
		src  []byte
		dst  any
	}{
		{"summary", docs.summary, &rep.Summary},
		{"category breakdown", docs.byCategory, &rep.ByCategory},
		{"seller breakdown", docs.bySeller, &rep.BySeller},
		{"product breakdown", docs.byProduct, &rep.ByProduct},
		{"metrics", docs.metrics, &rep.Metrics},
		{"comparison", docs.comparison, &rep.Comparison},
		{"filters", docs.filters, &rep.Filters},
		{"output", docs.output, &rep.Output},
	} {
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return rep, fmt.Errorf("unmarshaling report %s: %w", f.name, err)
		}
	}
	return rep, nil
}
