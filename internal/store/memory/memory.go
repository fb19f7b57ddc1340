package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/sequence"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

type Store struct {
	mu                  sync.RWMutex
	counter             *sequence.MemoryCounter
	products            map[string]domain.Product
	salesByID           map[string]domain.Sale
	customersByID       map[string]domain.Customer
	categoriesByID      map[string]domain.Category
	expenseCategoryByID map[string]domain.ExpenseCategory
	expensesByID        map[string]domain.Expense
	settings            domain.Settings
	suppliersByID       map[string]domain.Supplier
	purchaseOrdersByID  map[string]domain.PurchaseOrder
	auditLogs           []domain.AuditLog
	usersByUsername     map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store with default settings and no users.
func New() *Store {
	return &Store{
		counter:             sequence.NewMemoryCounter(),
		products:            make(map[string]domain.Product),
		salesByID:           make(map[string]domain.Sale),
		customersByID:       make(map[string]domain.Customer),
		categoriesByID:      make(map[string]domain.Category),
		expenseCategoryByID: make(map[string]domain.ExpenseCategory),
		expensesByID:        make(map[string]domain.Expense),
		settings:            domain.Settings{StoreName: "Kasir POS", UpdatedAt: time.Now().UTC()},
		suppliersByID:       make(map[string]domain.Supplier),
		purchaseOrdersByID:  make(map[string]domain.PurchaseOrder),
		auditLogs:           make([]domain.AuditLog, 0, 128),
		usersByUsername:     make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD; unset variables fall back to dev defaults with a
// warning. The postgres store never uses these.
func seedUsers() map[string]domain.UserAccount {
	log := logger.Default().WithComponent("memory-store")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		name     string
	}{
		{"admin", adminPwd, domain.RoleAdmin, "Administrator"},
		{"manager", managerPwd, domain.RoleManager, "Store Manager"},
		{"cashier", cashierPwd, domain.RoleCashier, "Front Cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalw("failed to hash seed password", "username", u.username, "error", err)
		}
		users[u.username] = domain.UserAccount{
			ID:          xid.New("usr"),
			Username:    u.username,
			DisplayName: u.name,
			Password:    string(hash),
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, categories and products,
// including one product sold by variation.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	now := time.Now().UTC()

	for _, name := range []string{"grocery", "beverage", "snack", "apparel"} {
		id := xid.New("cat")
		s.categoriesByID[id] = domain.Category{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	}
	for _, name := range []string{"utilities", "supplies"} {
		id := xid.New("ecat")
		s.expenseCategoryByID[id] = domain.ExpenseCategory{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	}

	seed := []struct {
		sku, name, category string
		price, cost         int64
		stock               int
	}{
		{"SKU-MIE-01", "Mie Goreng Instan", "grocery", 3500, 2700, 120},
		{"SKU-TELUR-01", "Telur 10 Butir", "grocery", 26500, 23000, 60},
		{"SKU-KOPI-01", "Kopi Sachet", "beverage", 2600, 1700, 200},
		{"SKU-AIR-01", "Air Mineral 600ml", "beverage", 3900, 3200, 150},
		{"SKU-KERIPIK-01", "Keripik Singkong", "snack", 12800, 8000, 40},
	}
	for _, p := range seed {
		id := xid.New("prd")
		s.products[id] = domain.Product{
			ID:        id,
			SKU:       p.sku,
			Barcode:   xid.Barcode(now),
			Name:      p.name,
			Category:  p.category,
			Price:     decimal.NewFromInt(p.price),
			Cost:      decimal.NewFromInt(p.cost),
			Stock:     p.stock,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	shirtID := xid.New("prd")
	combos := make([]domain.VariationCombination, 0, 4)
	for _, size := range []string{"M", "L"} {
		for _, color := range []string{"Red", "Blue"} {
			attrs := domain.Variations{{Key: "Size", Value: size}, {Key: "Color", Value: color}}
			combos = append(combos, domain.VariationCombination{
				ID:         xid.Short(12),
				SKU:        "SKU-KAOS-01-" + size + "-" + strings.ToUpper(color[:1]),
				Label:      attrs.Label(),
				Attributes: attrs,
				Price:      decimal.NewFromInt(85000),
				Stock:      10,
				Active:     true,
			})
		}
	}
	s.products[shirtID] = domain.Product{
		ID:                    shirtID,
		SKU:                   "SKU-KAOS-01",
		Barcode:               xid.Barcode(now),
		Name:                  "Kaos Polos",
		Category:              "apparel",
		Price:                 decimal.NewFromInt(85000),
		Cost:                  decimal.NewFromInt(50000),
		VariationCombinations: combos,
		Active:                true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, category string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && p.Category != category {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrDuplicate)
		}
		if product.Barcode != "" && existing.Barcode == product.Barcode {
			return nil, fmt.Errorf("barcode %s: %w", product.Barcode, store.ErrDuplicate)
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt

	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := cloneProduct(product)
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, exists := s.products[id]; exists {
			result[id] = cloneProduct(product)
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	existing.Name = product.Name
	existing.Category = product.Category
	existing.Price = product.Price
	existing.Cost = product.Cost
	existing.Active = product.Active
	existing.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = existing

	updated := cloneProduct(existing)
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTargetsLocked(adjustments); err != nil {
		return err
	}
	s.applyLocked(adjustments, time.Now().UTC())
	return nil
}

// checkTargetsLocked verifies every product and combination exists.
func (s *Store) checkTargetsLocked(adjustments []domain.StockAdjustment) error {
	for _, adj := range adjustments {
		product, exists := s.products[adj.ProductID]
		if !exists {
			return &store.MissingProduct{ProductID: adj.ProductID}
		}
		if adj.VariationCombinationID == "" {
			continue
		}
		if _, ok := product.Combination(adj.VariationCombinationID); !ok {
			return &store.MissingVariation{
				ProductID:              product.ID,
				ProductName:            product.Name,
				VariationCombinationID: adj.VariationCombinationID,
			}
		}
	}
	return nil
}

// applyLocked adds each delta to the authoritative stock field of its line.
func (s *Store) applyLocked(adjustments []domain.StockAdjustment, at time.Time) {
	for _, adj := range adjustments {
		product := s.products[adj.ProductID]
		if adj.VariationCombinationID == "" {
			product.Stock += adj.Delta
		} else {
			combos := slices.Clone(product.VariationCombinations)
			for i := range combos {
				if combos[i].ID == adj.VariationCombinationID {
					combos[i].Stock += adj.Delta
				}
			}
			product.VariationCombinations = combos
		}
		product.UpdatedAt = at
		s.products[adj.ProductID] = product
	}
}

func (s *Store) CommitSale(_ context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := commit.Sale
	if len(sale.Items) == 0 || sale.InvoiceNumber == "" {
		return nil, store.ErrInvalidTransaction
	}

	adjustments := make([]domain.StockAdjustment, 0, len(sale.Items))
	demand := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		adj := domain.StockAdjustment{
			ProductID:              item.ProductID,
			VariationCombinationID: item.VariationCombinationID,
			Delta:                  -item.Quantity,
		}
		if err := s.checkTargetsLocked([]domain.StockAdjustment{adj}); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
		if item.Quantity < 0 || commit.AllowOversell {
			continue
		}

		product := s.products[item.ProductID]
		available, label := product.Stock, ""
		if item.VariationCombinationID != "" {
			combo, _ := product.Combination(item.VariationCombinationID)
			available, label = combo.Stock, combo.Label
		}
		key := item.ProductID + "|" + item.VariationCombinationID
		demand[key] += item.Quantity
		if demand[key] > available {
			return nil, &store.StockShortage{
				ProductID:              product.ID,
				ProductName:            product.Name,
				VariationCombinationID: item.VariationCombinationID,
				VariationLabel:         label,
				Requested:              demand[key],
				Available:              available,
			}
		}
	}

	var customer domain.Customer
	if sale.CustomerID != "" {
		found, exists := s.customersByID[sale.CustomerID]
		if !exists {
			return nil, fmt.Errorf("customer %s: %w", sale.CustomerID, store.ErrNotFound)
		}
		customer = found
	}

	for _, existing := range s.salesByID {
		if existing.InvoiceNumber == sale.InvoiceNumber {
			return nil, fmt.Errorf("invoice %s: %w", sale.InvoiceNumber, store.ErrDuplicate)
		}
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

	s.applyLocked(adjustments, sale.CreatedAt)
	if sale.CustomerID != "" {
		customer.LoyaltyPoints = max(0, customer.LoyaltyPoints-sale.LoyaltyPointsUsed+sale.LoyaltyPointsEarned)
		customer.TotalPurchases = customer.TotalPurchases.Add(sale.Total)
		purchasedAt := sale.CreatedAt
		customer.LastPurchaseDate = &purchasedAt
		s.customersByID[customer.ID] = customer
	}
	s.salesByID[sale.ID] = cloneSale(sale)

	saved := cloneSale(sale)
	return &saved, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.InvoiceNumber, a.InvoiceNumber)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CommitReturn(_ context.Context, commit store.ReturnCommit) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[commit.SaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Version != commit.ExpectedVersion {
		return nil, store.ErrConcurrentModification
	}
	if len(commit.Entries) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	restock := make([]domain.StockAdjustment, 0, len(commit.Entries))
	for _, entry := range commit.Entries {
		restock = append(restock, domain.StockAdjustment{
			ProductID:              entry.ProductID,
			VariationCombinationID: entry.VariationCombinationID,
			Delta:                  entry.Quantity,
		})
	}
	if err := s.checkTargetsLocked(restock); err != nil {
		return nil, err
	}

	at := commit.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.applyLocked(restock, at)

	sale = cloneSale(sale)
	sale.ReturnedItems = append(sale.ReturnedItems, commit.Entries...)
	sale.Status = commit.Status
	sale.UpdatedAt = at
	sale.Version++
	s.salesByID[sale.ID] = sale

	if sale.CustomerID != "" {
		if customer, ok := s.customersByID[sale.CustomerID]; ok {
			customer.LoyaltyPoints = max(0, customer.LoyaltyPoints-commit.PointsToDeduct)
			customer.TotalPurchases = decimal.Max(decimal.Zero, customer.TotalPurchases.Sub(commit.RefundAmount))
			s.customersByID[customer.ID] = customer
		}
	}

	updated := cloneSale(sale)
	return &updated, nil
}

func (s *Store) DeleteSale(_ context.Context, del store.SaleDelete) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[del.SaleID]
	if !exists {
		return store.ErrNotFound
	}
	if sale.Version != del.ExpectedVersion {
		return store.ErrConcurrentModification
	}
	if err := s.checkTargetsLocked(del.Restock); err != nil {
		return err
	}
	s.applyLocked(del.Restock, time.Now().UTC())
	delete(s.salesByID, del.SaleID)
	return nil
}

func (s *Store) ListInvoiceNumbers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]string, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		invoices = append(invoices, sale.InvoiceNumber)
	}
	return invoices, nil
}

func (s *Store) CountSales(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.salesByID)), nil
}

func (s *Store) IncrementSequence(ctx context.Context, name string) (int64, error) {
	return s.counter.IncrementSequence(ctx, name)
}

func (s *Store) CurrentSequence(ctx context.Context, name string) (int64, bool, error) {
	return s.counter.CurrentSequence(ctx, name)
}

func (s *Store) SeedSequence(ctx context.Context, name string, value int64) (int64, error) {
	return s.counter.SeedSequence(ctx, name, value)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.VariationCombinations != nil {
		dup.VariationCombinations = make([]domain.VariationCombination, len(src.VariationCombinations))
		for i, combo := range src.VariationCombinations {
			combo.Attributes = slices.Clone(combo.Attributes)
			dup.VariationCombinations[i] = combo
		}
	}
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = make([]domain.SaleItem, len(src.Items))
	for i, item := range src.Items {
		item.Variations = slices.Clone(item.Variations)
		dup.Items[i] = item
	}
	dup.ReturnedItems = make([]domain.ReturnedItem, len(src.ReturnedItems))
	for i, item := range src.ReturnedItems {
		item.Variations = slices.Clone(item.Variations)
		dup.ReturnedItems[i] = item
	}
	dup.Payments = slices.Clone(src.Payments)
	return dup
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	items := make([]domain.PurchaseOrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
