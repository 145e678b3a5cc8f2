// Package load writes the final record sets to the relational store. Every
// write is an upsert keyed by primary key so re-running a batch never
// creates duplicates.
package load

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"retl/internal/model"
)

// DB is the slice of pgxpool.Pool the loader needs. Narrow on purpose so
// tests can fake it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Counts reports rows written per table.
type Counts struct {
	Products  int `json:"products"`
	Customers int `json:"customers"`
	Sales     int `json:"sales"`
}

// Loader upserts the three destination tables of the star schema: sales is
// the fact table, products and customers the dimensions.
type Loader struct {
	db DB
}

func New(db DB) *Loader {
	return &Loader{db: db}
}

// EnsureSchema creates the destination tables and the indexes the
// reporting queries lean on.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			product_id TEXT PRIMARY KEY,
			product_name TEXT NOT NULL,
			category TEXT NOT NULL,
			price NUMERIC NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			rating NUMERIC NOT NULL DEFAULT 0,
			availability_status TEXT NOT NULL DEFAULT 'Unknown',
			popularity_score NUMERIC NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT 'Unknown',
			purchase_category TEXT NOT NULL DEFAULT 'Rare'
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			transaction_id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			transaction_date DATE NOT NULL,
			quantity INT NOT NULL,
			price NUMERIC,
			price_missing BOOLEAN NOT NULL DEFAULT FALSE,
			total_sales_value NUMERIC,
			purchase_month TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_product_id ON sales (product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_customer_id ON sales (customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_transaction_date ON sales (transaction_date)`,
	}
	for _, s := range stmts {
		if _, err := l.db.Exec(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// LoadAll writes all three tables. Dimensions load before the fact table.
// The first failing table aborts so the caller never advances the
// watermark over a partial load.
func (l *Loader) LoadAll(ctx context.Context, products []model.Product, customers []model.Customer, sales []model.Sale) (Counts, error) {
	var c Counts
	var err error
	if c.Products, err = l.loadProducts(ctx, products); err != nil {
		return c, fmt.Errorf("load products: %w", err)
	}
	if c.Customers, err = l.loadCustomers(ctx, customers); err != nil {
		return c, fmt.Errorf("load customers: %w", err)
	}
	if c.Sales, err = l.loadSales(ctx, sales); err != nil {
		return c, fmt.Errorf("load sales: %w", err)
	}
	return c, nil
}

func (l *Loader) loadProducts(ctx context.Context, products []model.Product) (int, error) {
	const stmt = `
		INSERT INTO products (product_id, product_name, category, price,
			description, rating, availability_status, popularity_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (product_id) DO UPDATE SET
			product_name = EXCLUDED.product_name,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			description = EXCLUDED.description,
			rating = EXCLUDED.rating,
			availability_status = EXCLUDED.availability_status,
			popularity_score = EXCLUDED.popularity_score`
	n := 0
	for _, p := range products {
		if _, err := l.db.Exec(ctx, stmt, p.ProductID, p.Name, p.Category, p.Price,
			p.Description, p.Rating, p.AvailabilityStatus, p.PopularityScore); err != nil {
			return n, fmt.Errorf("product %s: %w", p.ProductID, err)
		}
		n++
	}
	return n, nil
}

func (l *Loader) loadCustomers(ctx context.Context, customers []model.Customer) (int, error) {
	const stmt = `
		INSERT INTO customers (customer_id, first_name, last_name, email, country, purchase_category)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			country = EXCLUDED.country,
			purchase_category = EXCLUDED.purchase_category`
	n := 0
	for _, c := range customers {
		if _, err := l.db.Exec(ctx, stmt, c.CustomerID, c.FirstName, c.LastName,
			c.Email, c.Country, c.PurchaseCategory); err != nil {
			return n, fmt.Errorf("customer %s: %w", c.CustomerID, err)
		}
		n++
	}
	return n, nil
}

func (l *Loader) loadSales(ctx context.Context, sales []model.Sale) (int, error) {
	const stmt = `
		INSERT INTO sales (transaction_id, product_id, customer_id, transaction_date,
			quantity, price, price_missing, total_sales_value, purchase_month)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			customer_id = EXCLUDED.customer_id,
			transaction_date = EXCLUDED.transaction_date,
			quantity = EXCLUDED.quantity,
			price = EXCLUDED.price,
			price_missing = EXCLUDED.price_missing,
			total_sales_value = EXCLUDED.total_sales_value,
			purchase_month = EXCLUDED.purchase_month`
	n := 0
	for _, s := range sales {
		var price, total any
		if !s.PriceMissing {
			price, total = s.Price, s.TotalSalesValue
		}
		if _, err := l.db.Exec(ctx, stmt, s.TransactionID, s.ProductID, s.CustomerID,
			s.TransactionDate, s.Quantity, price, s.PriceMissing, total, s.PurchaseMonth); err != nil {
			return n, fmt.Errorf("sale %s: %w", s.TransactionID, err)
		}
		n++
	}
	return n, nil
}
