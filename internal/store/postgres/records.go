package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/shopspring/decimal"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

const customerColumns = `id, name, COALESCE(phone, '') AS phone, COALESCE(email, '') AS email,
	loyalty_points, total_purchases, last_purchase_date, created_at`

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, loyalty_points, total_purchases, last_purchase_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		customer.LoyaltyPoints, customer.TotalPurchases, nullTime(customer.LastPurchaseDate), customer.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := sqlscan.Get(ctx, s.db, &customer, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	var customers []domain.Customer
	if err := sqlscan.Select(ctx, s.db, &customers, `SELECT `+customerColumns+` FROM customers ORDER BY lower(name)`); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, product_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
	`, category.ID, category.Name, category.Description, category.ProductCount, now)
	if err != nil {
		return nil, mapPgError(err)
	}
	created := category
	return &created, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var category domain.Category
	err := sqlscan.Get(ctx, s.db, &category, `SELECT * FROM categories WHERE id = $1`, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if err := sqlscan.Select(ctx, s.db, &categories, `SELECT * FROM categories ORDER BY name`); err != nil {
		return nil, err
	}
	return categories, nil
}

// UpdateCategory writes the category and renames its products in one transaction.
func (s *Store) UpdateCategory(ctx context.Context, category domain.Category, oldName string) (*domain.Category, error) {
	var updated domain.Category
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE categories SET name = $2, description = $3, updated_at = now() WHERE id = $1
		`, category.ID, category.Name, category.Description)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return store.ErrNotFound
		}
		if oldName != "" && oldName != category.Name {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products SET category = $2, updated_at = now() WHERE category = $1
			`, oldName, category.Name); err != nil {
				return err
			}
		}
		return sqlscan.Get(ctx, tx, &updated, `SELECT * FROM categories WHERE id = $1`, category.ID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) CountProductsInCategory(ctx context.Context, name string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE category = $1`, name).Scan(&count)
	return count, err
}

func (s *Store) SaveCategoryStats(ctx context.Context, id string, productCount int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE categories SET product_count = $2 WHERE id = $1`, id, productCount)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	if category.ID == "" {
		category.ID = xid.New("ecat")
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_categories (id, name, description, expense_count, total_amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
	`, category.ID, category.Name, category.Description, category.ExpenseCount, category.TotalAmount, now)
	if err != nil {
		return nil, mapPgError(err)
	}
	created := category
	return &created, nil
}

func (s *Store) GetExpenseCategory(ctx context.Context, id string) (*domain.ExpenseCategory, error) {
	var category domain.ExpenseCategory
	err := sqlscan.Get(ctx, s.db, &category, `SELECT * FROM expense_categories WHERE id = $1`, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	var categories []domain.ExpenseCategory
	if err := sqlscan.Select(ctx, s.db, &categories, `SELECT * FROM expense_categories ORDER BY name`); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) UpdateExpenseCategory(ctx context.Context, category domain.ExpenseCategory, oldName string) (*domain.ExpenseCategory, error) {
	var updated domain.ExpenseCategory
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE expense_categories SET name = $2, description = $3, updated_at = now() WHERE id = $1
		`, category.ID, category.Name, category.Description)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return store.ErrNotFound
		}
		if oldName != "" && oldName != category.Name {
			if _, err := tx.ExecContext(ctx, `
				UPDATE expenses SET category = $2, updated_at = now() WHERE category = $1
			`, oldName, category.Name); err != nil {
				return err
			}
		}
		return sqlscan.Get(ctx, tx, &updated, `SELECT * FROM expense_categories WHERE id = $1`, category.ID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) SumExpensesInCategory(ctx context.Context, name string) (int, decimal.Decimal, error) {
	var count int
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM expenses WHERE category = $1
	`, name).Scan(&count, &total)
	return count, total, err
}

func (s *Store) SaveExpenseCategoryStats(ctx context.Context, id string, count int, total decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expense_categories SET expense_count = $2, total_amount = $3 WHERE id = $1
	`, id, count, total)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	now := time.Now().UTC()
	if expense.Date.IsZero() {
		expense.Date = now
	}
	expense.CreatedAt = now
	expense.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, description, category, amount, date, receipt_url, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, expense.ID, expense.Description, expense.Category, expense.Amount, expense.Date, expense.ReceiptURL, expense.CreatedBy, now)
	if err != nil {
		return nil, mapPgError(err)
	}
	created := expense
	return &created, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	var expense domain.Expense
	err := sqlscan.Get(ctx, s.db, &expense, `SELECT * FROM expenses WHERE id = $1`, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, category string, limit int) ([]domain.Expense, error) {
	q := s.builder.Select("*").From("expenses").OrderBy("date DESC", "id DESC")
	if category != "" {
		q = q.Where(squirrel.Eq{"category": category})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var expenses []domain.Expense
	if err := sqlscan.Select(ctx, s.db, &expenses, query, args...); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET description = $2, category = $3, amount = $4, date = $5, receipt_url = $6, updated_at = now()
		WHERE id = $1
	`, expense.ID, expense.Description, expense.Category, expense.Amount, expense.Date, expense.ReceiptURL)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetExpense(ctx, expense.ID)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT store_name, receipt_footer, override_out_of_stock, updated_at FROM settings WHERE id = 1
	`).Scan(&settings.StoreName, &settings.ReceiptFooter, &settings.OverrideOutOfStock, &settings.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{StoreName: "Kasir POS"}, nil
	}
	return settings, err
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	settings.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, store_name, receipt_footer, override_out_of_stock, updated_at)
		VALUES (1,$1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		SET store_name = EXCLUDED.store_name,
			receipt_footer = EXCLUDED.receipt_footer,
			override_out_of_stock = EXCLUDED.override_out_of_stock,
			updated_at = EXCLUDED.updated_at
	`, settings.StoreName, settings.ReceiptFooter, settings.OverrideOutOfStock, settings.UpdatedAt)
	return settings, err
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	var suppliers []domain.Supplier
	if err := sqlscan.Select(ctx, s.db, &suppliers, `SELECT * FROM suppliers ORDER BY created_at ASC, name ASC`); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, item := range po.Items {
		if item.Quantity < 1 || item.UnitCost.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	if po.Status == "" {
		po.Status = domain.PurchaseOrderDraft
	}
	items, err := json.Marshal(po.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, status, created_by, items, created_at)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6)
	`, po.ID, po.SupplierID, po.Status, po.CreatedBy, string(items), po.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	created := po
	return &created, nil
}

const purchaseOrderColumns = `id, supplier_id, status, created_by, items, created_at, received_at, received_by`

func scanPurchaseOrder(row interface{ Scan(dest ...any) error }) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var items []byte
	var receivedAt sql.NullTime
	if err := row.Scan(&po.ID, &po.SupplierID, &po.Status, &po.CreatedBy, &items, &po.CreatedAt, &receivedAt, &po.ReceivedBy); err != nil {
		return po, err
	}
	if err := json.Unmarshal(items, &po.Items); err != nil {
		return po, fmt.Errorf("decode items of purchase order %s: %w", po.ID, err)
	}
	po.CreatedAt = po.CreatedAt.UTC()
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		po.ReceivedAt = &at
	}
	return po, nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1
	`, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}
	q := s.builder.Select(purchaseOrderColumns).From("purchase_orders").OrderBy("created_at DESC", "id DESC").Limit(uint64(limit))
	if status = strings.ToLower(strings.TrimSpace(status)); status != "" {
		q = q.Where(squirrel.Eq{"status": status})
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

	orders := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	return orders, rows.Err()
}

// ReceivePurchaseOrder marks a draft order received and increments stock for
// every line in the same transaction.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	var received domain.PurchaseOrder
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		po, err := scanPurchaseOrder(tx.QueryRowContext(ctx, `
			SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE
		`, purchaseOrderID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if po.Status != domain.PurchaseOrderDraft {
			return store.ErrInvalidTransaction
		}

		adjustments := make([]domain.StockAdjustment, 0, len(po.Items))
		for _, item := range po.Items {
			adjustments = append(adjustments, domain.StockAdjustment{
				ProductID:              item.ProductID,
				VariationCombinationID: item.VariationCombinationID,
				Delta:                  item.Quantity,
			})
		}
		if err := applyAdjustments(ctx, tx, adjustments); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE purchase_orders SET status = $2, received_at = $3, received_by = $4 WHERE id = $1
		`, po.ID, domain.PurchaseOrderReceived, receivedAt, receivedBy); err != nil {
			return err
		}
		po.Status = domain.PurchaseOrderReceived
		po.ReceivedAt = &receivedAt
		po.ReceivedBy = receivedBy
		received = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &received, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var logs []domain.AuditLog
	err := sqlscan.Select(ctx, s.db, &logs, `
		SELECT id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, display_name, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,true,$6,now())
	`, user.ID, user.Username, user.DisplayName, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %s: %w", user.Username, store.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, display_name, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.DisplayName, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
