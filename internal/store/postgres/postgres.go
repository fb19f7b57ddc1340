package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a serializable transaction and commits when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withIsolation(ctx, sql.LevelSerializable, fn)
}

// withStockTx runs fn at read committed. Stock writers lock the rows they
// check and move stock with in-place increments, so concurrent sales of the
// same SKU queue on the row lock instead of failing serialization.
func (s *Store) withStockTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withIsolation(ctx, sql.LevelReadCommitted, fn)
}

func (s *Store) withIsolation(ctx context.Context, level sql.IsolationLevel, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}
	return mapPgError(tx.Commit())
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const productColumns = `id, sku, COALESCE(barcode, ''), name, category, price, cost, stock, active, created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.Category, &p.Price, &p.Cost, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

// loadCombinations attaches variation combinations, in position order, to the
// given products. When lock is set the combination rows are locked for update.
func loadCombinations(ctx context.Context, q queryer, products map[string]*domain.Product, lock bool) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, 0, len(products))
	for id := range products {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	query := `
		SELECT product_id, id, sku, label, attributes, price, stock, active
		FROM product_variations
		WHERE product_id = ANY($1)
		ORDER BY product_id, position`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var attrs []byte
		var combo domain.VariationCombination
		if err := rows.Scan(&productID, &combo.ID, &combo.SKU, &combo.Label, &attrs, &combo.Price, &combo.Stock, &combo.Active); err != nil {
			return err
		}
		if err := json.Unmarshal(attrs, &combo.Attributes); err != nil {
			return fmt.Errorf("decode attributes of %s/%s: %w", productID, combo.ID, err)
		}
		if p, ok := products[productID]; ok {
			p.VariationCombinations = append(p.VariationCombinations, combo)
		}
	}
	return rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	q := s.builder.Select(productColumns).From("products").OrderBy("category", "name")
	if category != "" {
		q = q.Where(squirrel.Eq{"category": category})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*domain.Product, 0, 128)
	byID := make(map[string]*domain.Product, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, &p)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadCombinations(ctx, s.db, byID, false); err != nil {
		return nil, err
	}

	result := make([]domain.Product, 0, len(products))
	for _, p := range products {
		result = append(result, *p)
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, sku, barcode, name, category, price, cost, stock, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		`, product.ID, product.SKU, nullIfEmpty(product.Barcode), product.Name, product.Category,
			product.Price, product.Cost, product.Stock, product.Active, product.CreatedAt); err != nil {
			return err
		}
		for pos, combo := range product.VariationCombinations {
			attrs, err := json.Marshal(combo.Attributes)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO product_variations (product_id, id, sku, label, attributes, price, stock, active, position)
				VALUES ($1,$2,$3,$4,$5::jsonb,$6,$7,$8,$9)
			`, product.ID, combo.ID, combo.SKU, combo.Label, string(attrs), combo.Price, combo.Stock, combo.Active, pos); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := loadCombinations(ctx, s.db, map[string]*domain.Product{product.ID: &product}, false); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, uniqueStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadCombinations(ctx, s.db, byID, false); err != nil {
		return nil, err
	}
	for id, p := range byID {
		result[id] = *p
	}
	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, cost = $5, active = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Price, product.Cost, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment) error {
	return s.withStockTx(ctx, func(tx *sql.Tx) error {
		return applyAdjustments(ctx, tx, adjustments)
	})
}

// applyAdjustments moves stock as in-place increments so concurrent writers
// never overwrite each other. A missing target aborts the transaction.
func applyAdjustments(ctx context.Context, tx *sql.Tx, adjustments []domain.StockAdjustment) error {
	for _, adj := range adjustments {
		var res sql.Result
		var err error
		if adj.VariationCombinationID == "" {
			res, err = tx.ExecContext(ctx, `
				UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
			`, adj.ProductID, adj.Delta)
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE product_variations SET stock = stock + $3 WHERE product_id = $1 AND id = $2
			`, adj.ProductID, adj.VariationCombinationID, adj.Delta)
		}
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			if adj.VariationCombinationID != "" {
				return &store.MissingVariation{ProductID: adj.ProductID, VariationCombinationID: adj.VariationCombinationID}
			}
			return &store.MissingProduct{ProductID: adj.ProductID}
		}
	}
	return nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrDuplicate)
		case "23503":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrNotFound)
		case "40001", "40P01":
			return fmt.Errorf("%s: %w", pgErr.Message, store.ErrConcurrentModification)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func uniqueStrings(values []string) []string {
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
