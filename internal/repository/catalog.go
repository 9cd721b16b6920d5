package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdenexo/sales-engine/internal/domain/report"
)

const productCategoriesSQL = `SELECT id, category FROM products
	WHERE id = ANY($1) AND category <> ''`

var _ report.CatalogSource = (*CatalogRepository)(nil)

// CatalogRepository reads the storefront's product catalog. This subsystem
// never writes to it.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ProductCategories resolves product IDs to their catalog categories.
// Products missing from the catalog are absent from the result; callers
// bucket those as uncategorized.
func (r *CatalogRepository) ProductCategories(ctx context.Context, productIDs []string) (map[string]report.Category, error) {
	if len(productIDs) == 0 {
		return map[string]report.Category{}, nil
	}

	rows, err := r.pool.Query(ctx, productCategoriesSQL, productIDs)
	if err != nil {
		return nil, fmt.Errorf("resolving product categories: %w", err)
	}
	defer rows.Close()

	categories := make(map[string]report.Category, len(productIDs))
	for rows.Next() {
		var id, category string
		if err := rows.Scan(&id, &category); err != nil {
			return nil, fmt.Errorf("resolving product categories: %w", err)
		}
		categories[id] = report.Category{ID: category, Name: category}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolving product categories: %w", err)
	}
	return categories, nil
}
