package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.Phone != "" {
		for _, existing := range s.customersByID {
			if existing.Phone == customer.Phone {
				return nil, fmt.Errorf("phone %s: %w", customer.Phone, store.ErrDuplicate)
			}
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		customers = append(customers, customer)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return customers, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categoriesByID {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, fmt.Errorf("category %s: %w", category.Name, store.ErrDuplicate)
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	s.categoriesByID[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categoriesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, category := range s.categoriesByID {
		categories = append(categories, category)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return cmpString(a.Name, b.Name) })
	return categories, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category, oldName string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.categoriesByID[category.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	for id, other := range s.categoriesByID {
		if id != category.ID && strings.EqualFold(other.Name, category.Name) {
			return nil, fmt.Errorf("category %s: %w", category.Name, store.ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	existing.Name = category.Name
	existing.Description = category.Description
	existing.UpdatedAt = now
	s.categoriesByID[existing.ID] = existing

	if oldName != "" && oldName != category.Name {
		for id, product := range s.products {
			if product.Category == oldName {
				product.Category = category.Name
				product.UpdatedAt = now
				s.products[id] = product
			}
		}
	}
	updated := existing
	return &updated, nil
}

func (s *Store) CountProductsInCategory(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, product := range s.products {
		if product.Category == name {
			count++
		}
	}
	return count, nil
}

func (s *Store) SaveCategoryStats(_ context.Context, id string, productCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, exists := s.categoriesByID[id]
	if !exists {
		return store.ErrNotFound
	}
	category.ProductCount = productCount
	s.categoriesByID[id] = category
	return nil
}

func (s *Store) CreateExpenseCategory(_ context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.expenseCategoryByID {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, fmt.Errorf("expense category %s: %w", category.Name, store.ErrDuplicate)
		}
	}
	if category.ID == "" {
		category.ID = xid.New("ecat")
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	s.expenseCategoryByID[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) GetExpenseCategory(_ context.Context, id string) (*domain.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.expenseCategoryByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &category, nil
}

func (s *Store) ListExpenseCategories(_ context.Context) ([]domain.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.ExpenseCategory, 0, len(s.expenseCategoryByID))
	for _, category := range s.expenseCategoryByID {
		categories = append(categories, category)
	}
	slices.SortFunc(categories, func(a, b domain.ExpenseCategory) int { return cmpString(a.Name, b.Name) })
	return categories, nil
}

func (s *Store) UpdateExpenseCategory(_ context.Context, category domain.ExpenseCategory, oldName string) (*domain.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.expenseCategoryByID[category.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	for id, other := range s.expenseCategoryByID {
		if id != category.ID && strings.EqualFold(other.Name, category.Name) {
			return nil, fmt.Errorf("expense category %s: %w", category.Name, store.ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	existing.Name = category.Name
	existing.Description = category.Description
	existing.UpdatedAt = now
	s.expenseCategoryByID[existing.ID] = existing

	if oldName != "" && oldName != category.Name {
		for id, expense := range s.expensesByID {
			if expense.Category == oldName {
				expense.Category = category.Name
				expense.UpdatedAt = now
				s.expensesByID[id] = expense
			}
		}
	}
	updated := existing
	return &updated, nil
}

func (s *Store) SumExpensesInCategory(_ context.Context, name string) (int, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, total := 0, decimal.Zero
	for _, expense := range s.expensesByID {
		if expense.Category == name {
			count++
			total = total.Add(expense.Amount)
		}
	}
	return count, total, nil
}

func (s *Store) SaveExpenseCategoryStats(_ context.Context, id string, count int, total decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, exists := s.expenseCategoryByID[id]
	if !exists {
		return store.ErrNotFound
	}
	category.ExpenseCount = count
	category.TotalAmount = total
	s.expenseCategoryByID[id] = category
	return nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	now := time.Now().UTC()
	if expense.Date.IsZero() {
		expense.Date = now
	}
	expense.CreatedAt = now
	expense.UpdatedAt = now
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expensesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &expense, nil
}

func (s *Store) ListExpenses(_ context.Context, category string, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expensesByID))
	for _, expense := range s.expensesByID {
		if category != "" && expense.Category != category {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.expensesByID[expense.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	expense.CreatedAt = existing.CreatedAt
	expense.CreatedBy = existing.CreatedBy
	expense.UpdatedAt = time.Now().UTC()
	s.expensesByID[expense.ID] = expense
	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expensesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	return nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	s.settings = settings
	return settings, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.suppliersByID[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.Name, b.Name)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.suppliersByID[po.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	targets := make([]domain.StockAdjustment, 0, len(po.Items))
	for _, item := range po.Items {
		if item.Quantity < 1 || item.UnitCost.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		targets = append(targets, domain.StockAdjustment{ProductID: item.ProductID, VariationCombinationID: item.VariationCombinationID})
	}
	if err := s.checkTargetsLocked(targets); err != nil {
		return nil, err
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

	s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	saved := clonePurchaseOrder(po)
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyPO := clonePurchaseOrder(po)
	return &copyPO, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status = strings.ToLower(strings.TrimSpace(status))
	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ReceivePurchaseOrder marks the order received and increments stock for
// every line, on the combination when the line names one.
func (s *Store) ReceivePurchaseOrder(_ context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.PurchaseOrderDraft {
		return nil, store.ErrInvalidTransaction
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	adjustments := make([]domain.StockAdjustment, 0, len(po.Items))
	for _, item := range po.Items {
		adjustments = append(adjustments, domain.StockAdjustment{
			ProductID:              item.ProductID,
			VariationCombinationID: item.VariationCombinationID,
			Delta:                  item.Quantity,
		})
	}
	if err := s.checkTargetsLocked(adjustments); err != nil {
		return nil, err
	}
	s.applyLocked(adjustments, receivedAt)

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = strings.TrimSpace(receivedBy)
	if po.ReceivedBy == "" {
		po.ReceivedBy = "system"
	}
	po.ReceivedAt = &receivedAt
	s.purchaseOrdersByID[purchaseOrderID] = po
	updated := clonePurchaseOrder(po)
	return &updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("username %s: %w", username, store.ErrDuplicate)
	}
	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
