package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

const saleColumns = `id, invoice_number, items, returned_items, payments, COALESCE(customer_id, ''),
	subtotal, discount, tax, total, loyalty_points_used, loyalty_points_earned, status,
	cashier_id, cashier_name, notes, version, created_at, updated_at`

func scanSale(row interface{ Scan(dest ...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var items, returned, payments []byte
	if err := row.Scan(
		&sale.ID, &sale.InvoiceNumber, &items, &returned, &payments, &sale.CustomerID,
		&sale.Subtotal, &sale.Discount, &sale.Tax, &sale.Total, &sale.LoyaltyPointsUsed, &sale.LoyaltyPointsEarned, &sale.Status,
		&sale.CashierID, &sale.CashierName, &sale.Notes, &sale.Version, &sale.CreatedAt, &sale.UpdatedAt,
	); err != nil {
		return sale, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return sale, fmt.Errorf("decode items of sale %s: %w", sale.ID, err)
	}
	if err := json.Unmarshal(returned, &sale.ReturnedItems); err != nil {
		return sale, fmt.Errorf("decode returned items of sale %s: %w", sale.ID, err)
	}
	if err := json.Unmarshal(payments, &sale.Payments); err != nil {
		return sale, fmt.Errorf("decode payments of sale %s: %w", sale.ID, err)
	}
	if sale.ReturnedItems == nil {
		sale.ReturnedItems = []domain.ReturnedItem{}
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

// lockProducts reads and row-locks every product referenced by the lines,
// together with its combinations.
func lockProducts(ctx context.Context, tx *sql.Tx, ids []string) (map[string]*domain.Product, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, uniqueStrings(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := loadCombinations(ctx, tx, byID, true); err != nil {
		return nil, err
	}
	return byID, nil
}

func (s *Store) CommitSale(ctx context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	sale := commit.Sale
	if len(sale.Items) == 0 || sale.InvoiceNumber == "" {
		return nil, store.ErrInvalidTransaction
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.UpdatedAt = sale.CreatedAt
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	if sale.ReturnedItems == nil {
		sale.ReturnedItems = []domain.ReturnedItem{}
	}
	sale.Version = 1

	items, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}
	returned, err := json.Marshal(sale.ReturnedItems)
	if err != nil {
		return nil, err
	}
	payments, err := json.Marshal(paymentsOrEmpty(sale.Payments))
	if err != nil {
		return nil, err
	}

	err = s.withStockTx(ctx, func(tx *sql.Tx) error {
		ids := make([]string, 0, len(sale.Items))
		for _, item := range sale.Items {
			ids = append(ids, item.ProductID)
		}
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		adjustments := make([]domain.StockAdjustment, 0, len(sale.Items))
		demand := make(map[string]int, len(sale.Items))
		for _, item := range sale.Items {
			product, ok := products[item.ProductID]
			if !ok {
				return &store.MissingProduct{ProductID: item.ProductID}
			}
			available, label := product.Stock, ""
			if item.VariationCombinationID != "" {
				combo, ok := product.Combination(item.VariationCombinationID)
				if !ok {
					return &store.MissingVariation{ProductID: product.ID, ProductName: product.Name, VariationCombinationID: item.VariationCombinationID}
				}
				available, label = combo.Stock, combo.Label
			}
			adjustments = append(adjustments, domain.StockAdjustment{
				ProductID:              item.ProductID,
				VariationCombinationID: item.VariationCombinationID,
				Delta:                  -item.Quantity,
			})
			if item.Quantity < 0 || commit.AllowOversell {
				continue
			}
			key := item.ProductID + "|" + item.VariationCombinationID
			demand[key] += item.Quantity
			if demand[key] > available {
				return &store.StockShortage{
					ProductID:              product.ID,
					ProductName:            product.Name,
					VariationCombinationID: item.VariationCombinationID,
					VariationLabel:         label,
					Requested:              demand[key],
					Available:              available,
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sales (
				id, invoice_number, items, returned_items, payments, customer_id,
				subtotal, discount, tax, total, loyalty_points_used, loyalty_points_earned, status,
				cashier_id, cashier_name, notes, version, created_at, updated_at
			)
			VALUES ($1,$2,$3::jsonb,$4::jsonb,$5::jsonb,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)
		`, sale.ID, sale.InvoiceNumber, string(items), string(returned), string(payments), nullIfEmpty(sale.CustomerID),
			sale.Subtotal, sale.Discount, sale.Tax, sale.Total, sale.LoyaltyPointsUsed, sale.LoyaltyPointsEarned, sale.Status,
			sale.CashierID, sale.CashierName, sale.Notes, sale.Version, sale.CreatedAt); err != nil {
			return err
		}

		if err := applyAdjustments(ctx, tx, adjustments); err != nil {
			return err
		}

		if sale.CustomerID == "" {
			return nil
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET loyalty_points = GREATEST(0, loyalty_points - $2 + $3),
				total_purchases = total_purchases + $4,
				last_purchase_date = $5
			WHERE id = $1
		`, sale.CustomerID, sale.LoyaltyPointsUsed, sale.LoyaltyPointsEarned, sale.Total, sale.CreatedAt)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("customer %s: %w", sale.CustomerID, store.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	q := s.builder.Select(saleColumns).From("sales")
	if filter.CustomerID != "" {
		q = q.Where(squirrel.Eq{"customer_id": filter.CustomerID})
	}
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.To})
	}
	q = q.OrderBy("created_at DESC", "invoice_number DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
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

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// CommitReturn applies a validated return when the stored version still
// matches the one the caller validated against.
func (s *Store) CommitReturn(ctx context.Context, commit store.ReturnCommit) (*domain.Sale, error) {
	if len(commit.Entries) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	at := commit.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var updated domain.Sale
	err := s.withStockTx(ctx, func(tx *sql.Tx) error {
		sale, err := scanSale(tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, commit.SaleID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if sale.Version != commit.ExpectedVersion {
			return store.ErrConcurrentModification
		}

		restock := make([]domain.StockAdjustment, 0, len(commit.Entries))
		for _, entry := range commit.Entries {
			restock = append(restock, domain.StockAdjustment{
				ProductID:              entry.ProductID,
				VariationCombinationID: entry.VariationCombinationID,
				Delta:                  entry.Quantity,
			})
		}
		if err := applyAdjustments(ctx, tx, restock); err != nil {
			return err
		}

		sale.ReturnedItems = append(sale.ReturnedItems, commit.Entries...)
		returned, err := json.Marshal(sale.ReturnedItems)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE sales
			SET returned_items = $2::jsonb, status = $3, version = version + 1, updated_at = $4
			WHERE id = $1 AND version = $5
		`, sale.ID, string(returned), commit.Status, at, commit.ExpectedVersion)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return store.ErrConcurrentModification
		}

		if sale.CustomerID != "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE customers
				SET loyalty_points = GREATEST(0, loyalty_points - $2),
					total_purchases = GREATEST(0, total_purchases - $3)
				WHERE id = $1
			`, sale.CustomerID, commit.PointsToDeduct, commit.RefundAmount); err != nil {
				return err
			}
		}

		sale.Status = commit.Status
		sale.Version++
		sale.UpdatedAt = at
		updated = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteSale(ctx context.Context, del store.SaleDelete) error {
	return s.withStockTx(ctx, func(tx *sql.Tx) error {
		var version int
		err := tx.QueryRowContext(ctx, `SELECT version FROM sales WHERE id = $1 FOR UPDATE`, del.SaleID).Scan(&version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if version != del.ExpectedVersion {
			return store.ErrConcurrentModification
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, del.SaleID); err != nil {
			return err
		}
		return applyAdjustments(ctx, tx, del.Restock)
	})
}

func (s *Store) ListInvoiceNumbers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT invoice_number FROM sales`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]string, 0, 256)
	for rows.Next() {
		var invoice string
		if err := rows.Scan(&invoice); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func (s *Store) CountSales(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&count)
	return count, err
}

// IncrementSequence is a single upsert, so concurrent callers across
// processes each receive a distinct value.
func (s *Store) IncrementSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value
	`, name).Scan(&value)
	return value, err
}

func (s *Store) CurrentSequence(ctx context.Context, name string) (int64, bool, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sequences WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return value, true, nil
}

func (s *Store) SeedSequence(ctx context.Context, name string, value int64) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, value); err != nil {
		return 0, err
	}
	current, _, err := s.CurrentSequence(ctx, name)
	return current, err
}

func paymentsOrEmpty(payments []domain.Payment) []domain.Payment {
	if payments == nil {
		return []domain.Payment{}
	}
	return payments
}
