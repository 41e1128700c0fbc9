// Package postgres provides PostgreSQL storage for customer session metadata.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/dphuang2/browser-record-app/pkg/customer"
	"github.com/dphuang2/browser-record-app/pkg/filter"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// customerColumns lists columns returned by customer SELECT queries.
var customerColumns = []string{
	"shop", "session_id", "browser", "os", "device", "region", "country",
	"location_available", "stale", "duration", "num_clicks", "page_loads",
	"start_time", "last_total_cart_price", "last_item_count",
	"max_total_cart_price", "max_item_count",
}

// Store implements customer.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL customer store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// MarkStale upserts a customer record on chunk upload. Identity and cart
// fields are replaced, running cart maxima are advanced, derived fields from
// an earlier aggregation are left untouched, and the stale flag is raised.
func (s *Store) MarkStale(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers
		(shop, session_id, browser, os, device, region, country, location_available, stale, last_total_cart_price, last_item_count, max_total_cart_price, max_item_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $9, $10)
		ON CONFLICT (shop, session_id) DO UPDATE SET
			browser = EXCLUDED.browser,
			os = EXCLUDED.os,
			device = EXCLUDED.device,
			region = EXCLUDED.region,
			country = EXCLUDED.country,
			location_available = EXCLUDED.location_available,
			stale = TRUE,
			last_total_cart_price = COALESCE(EXCLUDED.last_total_cart_price, customers.last_total_cart_price),
			last_item_count = COALESCE(EXCLUDED.last_item_count, customers.last_item_count),
			max_total_cart_price = GREATEST(COALESCE(customers.max_total_cart_price, 0), COALESCE(EXCLUDED.last_total_cart_price, 0)),
			max_item_count = GREATEST(COALESCE(customers.max_item_count, 0), COALESCE(EXCLUDED.last_item_count, 0))
	`
	_, err := s.db.ExecContext(ctx, query,
		c.Shop, c.SessionID, c.Browser, c.OS, c.Device, c.Region, c.Country,
		c.LocationAvailable, c.LastTotalCartPrice, c.LastItemCount,
	)
	if err != nil {
		return fmt.Errorf("upserting customer: %w", err)
	}
	return nil
}

// MarkFresh stores derived fields and lowers the stale flag.
func (s *Store) MarkFresh(ctx context.Context, shop, sessionID string, d customer.Derived) error {
	query := `
		UPDATE customers
		SET stale = FALSE, duration = $3, num_clicks = $4, page_loads = $5, start_time = $6
		WHERE shop = $1 AND session_id = $2
	`
	_, err := s.db.ExecContext(ctx, query, shop, sessionID, d.Duration, d.NumClicks, d.PageLoads, d.StartTime)
	if err != nil {
		return fmt.Errorf("updating customer metrics: %w", err)
	}
	return nil
}

// Get retrieves one customer record. Returns nil, nil if not found.
func (s *Store) Get(ctx context.Context, shop, sessionID string) (*customer.Customer, error) {
	query, args, err := psq.Select(customerColumns...).
		From("customers").
		Where(sq.Eq{"shop": shop, "session_id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building customer query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning customer: %w", err)
	}
	return c, nil
}

// Query returns a shop's records matching the spec's query-form conditions,
// newest session first, capped at the spec's limit.
func (s *Store) Query(ctx context.Context, shop string, spec *filter.Spec) ([]*customer.Customer, error) {
	if spec == nil {
		spec = filter.Default()
	}

	qb := psq.Select(customerColumns...).
		From("customers").
		Where(sq.Eq{"shop": shop})
	for _, cond := range spec.Conditions() {
		qb = qb.Where(cond)
	}
	qb = qb.OrderBy("start_time DESC NULLS LAST")
	if spec.Limit > 0 {
		qb = qb.Limit(spec.Limit)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building customer query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying customers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var customers []*customer.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning customer row: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating customer rows: %w", err)
	}
	return customers, nil
}

// Stats returns shop-wide maxima. Returns nil, nil when the shop has no
// sessions.
func (s *Store) Stats(ctx context.Context, shop string) (*customer.Stats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(MAX(duration), 0),
			COALESCE(MAX(last_total_cart_price), 0),
			COALESCE(MAX(last_item_count), 0)
		FROM customers
		WHERE shop = $1
	`
	var count int
	var stats customer.Stats
	err := s.db.QueryRowContext(ctx, query, shop).Scan(
		&count, &stats.LongestDuration, &stats.MaxTotalCartPrice, &stats.MaxItemCount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying customer stats: %w", err)
	}
	if count == 0 {
		return nil, nil //nolint:nilnil // no sessions is a valid empty result
	}
	return &stats, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (*customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(
		&c.Shop, &c.SessionID, &c.Browser, &c.OS, &c.Device, &c.Region,
		&c.Country, &c.LocationAvailable, &c.Stale, &c.Duration, &c.NumClicks,
		&c.PageLoads, &c.StartTime, &c.LastTotalCartPrice, &c.LastItemCount,
		&c.MaxTotalCartPrice, &c.MaxItemCount,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Verify interface compliance.
var _ customer.Store = (*Store)(nil)
