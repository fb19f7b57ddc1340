package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kasirpos/backend/internal/domain"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidTransaction     = errors.New("invalid transaction")
	ErrVariationNotFound      = errors.New("variation combination not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicate              = errors.New("duplicate")
)

// StockShortage names the line that failed the sufficiency check.
type StockShortage struct {
	ProductID              string
	ProductName            string
	VariationCombinationID string
	VariationLabel         string
	Requested              int
	Available              int
}

func (e *StockShortage) Error() string {
	label := e.ProductName
	if e.VariationLabel != "" {
		label += " (" + e.VariationLabel + ")"
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", label, e.Requested, e.Available)
}

func (e *StockShortage) Unwrap() error { return ErrInsufficientStock }

type MissingProduct struct {
	ProductID string
}

func (e *MissingProduct) Error() string { return "product " + e.ProductID + " not found" }

func (e *MissingProduct) Unwrap() error { return ErrNotFound }

type MissingVariation struct {
	ProductID              string
	ProductName            string
	VariationCombinationID string
}

func (e *MissingVariation) Error() string {
	return fmt.Sprintf("variation %s not found for product %s", e.VariationCombinationID, e.ProductID)
}

func (e *MissingVariation) Unwrap() error { return ErrVariationNotFound }

type SaleCommit struct {
	Sale domain.Sale
	// AllowOversell skips the sufficiency check; combinations must still exist.
	AllowOversell bool
}

type ReturnCommit struct {
	SaleID          string
	ExpectedVersion int
	Entries         []domain.ReturnedItem
	Status          string
	RefundAmount    decimal.Decimal
	PointsToDeduct  int
	At              time.Time
}

// SaleDelete removes a sale and applies Restock, provided the stored
// version still equals ExpectedVersion.
type SaleDelete struct {
	SaleID          string
	ExpectedVersion int
	Restock         []domain.StockAdjustment
}

type CatalogStore interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	// UpdateProduct writes descriptive fields only; stock moves through AdjustStock.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// AdjustStock applies every delta as an atomic increment, all or nothing.
	AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment) error
}

type SaleStore interface {
	// CommitSale validates every line under lock, then persists the sale,
	// moves stock and updates the customer in one unit.
	CommitSale(ctx context.Context, commit SaleCommit) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	// CommitReturn appends entries, restores stock and adjusts the customer,
	// failing with ErrConcurrentModification when the sale version moved.
	CommitReturn(ctx context.Context, commit ReturnCommit) (*domain.Sale, error)
	// DeleteSale fails with ErrConcurrentModification when the sale version moved.
	DeleteSale(ctx context.Context, del SaleDelete) error
	ListInvoiceNumbers(ctx context.Context) ([]string, error)
	CountSales(ctx context.Context) (int64, error)
}

type SequenceStore interface {
	IncrementSequence(ctx context.Context, name string) (int64, error)
	CurrentSequence(ctx context.Context, name string) (int64, bool, error)
	SeedSequence(ctx context.Context, name string, value int64) (int64, error)
}

type CustomerStore interface {
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
}

type CategoryStore interface {
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	// UpdateCategory renames products carrying oldName in the same unit of work.
	UpdateCategory(ctx context.Context, category domain.Category, oldName string) (*domain.Category, error)
	CountProductsInCategory(ctx context.Context, name string) (int, error)
	SaveCategoryStats(ctx context.Context, id string, productCount int) error

	CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error)
	GetExpenseCategory(ctx context.Context, id string) (*domain.ExpenseCategory, error)
	ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error)
	UpdateExpenseCategory(ctx context.Context, category domain.ExpenseCategory, oldName string) (*domain.ExpenseCategory, error)
	SumExpensesInCategory(ctx context.Context, name string) (int, decimal.Decimal, error)
	SaveExpenseCategoryStats(ctx context.Context, id string, count int, total decimal.Decimal) error
}

type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, category string, limit int) ([]domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error)
}

type PurchasingStore interface {
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	CatalogStore
	SaleStore
	SequenceStore
	CustomerStore
	CategoryStore
	ExpenseStore
	SettingsStore
	PurchasingStore
	AuditStore
	UserStore
}
