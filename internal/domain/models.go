package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                    string                 `json:"id"`
	SKU                   string                 `json:"sku"`
	Barcode               string                 `json:"barcode,omitempty"`
	Name                  string                 `json:"name"`
	Category              string                 `json:"category"`
	Price                 decimal.Decimal        `json:"price"`
	Cost                  decimal.Decimal        `json:"cost"`
	Stock                 int                    `json:"stock"`
	VariationCombinations []VariationCombination `json:"variation_combinations,omitempty"`
	Active                bool                   `json:"active"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

func (p Product) HasVariations() bool {
	return len(p.VariationCombinations) > 0
}

// Combination returns the combination with the given local id.
func (p Product) Combination(id string) (VariationCombination, bool) {
	for _, combo := range p.VariationCombinations {
		if combo.ID == id {
			return combo, true
		}
	}
	return VariationCombination{}, false
}

type VariationCombination struct {
	ID         string          `json:"id"`
	SKU        string          `json:"sku"`
	Label      string          `json:"label"`
	Attributes Variations      `json:"attributes"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Active     bool            `json:"active"`
}

type VariationCombinationInput struct {
	Attributes Variations      `json:"attributes" validate:"required,min=1"`
	SKU        string          `json:"sku,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock" validate:"min=0"`
}

type ProductCreateRequest struct {
	SKU                   string                      `json:"sku" validate:"required,max=64"`
	Barcode               string                      `json:"barcode,omitempty"`
	Name                  string                      `json:"name" validate:"required,max=200"`
	Category              string                      `json:"category" validate:"required"`
	Price                 decimal.Decimal             `json:"price"`
	Cost                  decimal.Decimal             `json:"cost"`
	InitialStock          int                         `json:"initial_stock" validate:"min=0"`
	VariationCombinations []VariationCombinationInput `json:"variation_combinations,omitempty" validate:"dive"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Category *string          `json:"category,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Cost     *decimal.Decimal `json:"cost,omitempty"`
	Active   *bool            `json:"active,omitempty"`
}

// StockAdjustment is a signed delta against flat stock, or against a combination
// when VariationCombinationID is set.
type StockAdjustment struct {
	ProductID              string `json:"product_id"`
	VariationCombinationID string `json:"variation_combination_id,omitempty"`
	Delta                  int    `json:"delta"`
}

type SaleItem struct {
	ProductID              string          `json:"product_id"`
	ProductName            string          `json:"product_name"`
	SKU                    string          `json:"sku"`
	Quantity               int             `json:"quantity"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	Discount               decimal.Decimal `json:"discount"`
	TotalPrice             decimal.Decimal `json:"total_price"`
	VariationCombinationID string          `json:"variation_combination_id,omitempty"`
	Variations             Variations      `json:"variations,omitempty"`
}

type ReturnedItem struct {
	ProductID              string          `json:"product_id"`
	ProductName            string          `json:"product_name"`
	SKU                    string          `json:"sku"`
	VariationCombinationID string          `json:"variation_combination_id,omitempty"`
	Variations             Variations      `json:"variations,omitempty"`
	Quantity               int             `json:"quantity"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	TotalPrice             decimal.Decimal `json:"total_price"`
	Reason                 string          `json:"reason"`
	RefundMethod           string          `json:"refund_method"`
	ProcessedBy            string          `json:"processed_by"`
	ReturnedAt             time.Time       `json:"returned_at"`
}

type Payment struct {
	Method    string          `json:"method" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

type Sale struct {
	ID                  string          `json:"id"`
	InvoiceNumber       string          `json:"invoice_number"`
	Items               []SaleItem      `json:"items"`
	ReturnedItems       []ReturnedItem  `json:"returned_items"`
	CustomerID          string          `json:"customer_id,omitempty"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	Discount            decimal.Decimal `json:"discount"`
	Tax                 decimal.Decimal `json:"tax"`
	Total               decimal.Decimal `json:"total"`
	LoyaltyPointsUsed   int             `json:"loyalty_points_used"`
	LoyaltyPointsEarned int             `json:"loyalty_points_earned"`
	Payments            []Payment       `json:"payments"`
	Status              string          `json:"status"`
	CashierID           string          `json:"cashier_id"`
	CashierName         string          `json:"cashier_name"`
	Notes               string          `json:"notes,omitempty"`
	Version             int             `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type SaleItemRequest struct {
	ProductID              string          `json:"product_id" validate:"required"`
	ProductName            string          `json:"product_name"`
	SKU                    string          `json:"sku"`
	Quantity               int             `json:"quantity"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	Discount               decimal.Decimal `json:"discount"`
	TotalPrice             decimal.Decimal `json:"total_price"`
	VariationCombinationID string          `json:"variation_combination_id,omitempty"`
	Variations             Variations      `json:"variations,omitempty"`
}

type SaleRequest struct {
	Items             []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	CustomerID        string            `json:"customer_id,omitempty"`
	Subtotal          decimal.Decimal   `json:"subtotal"`
	Discount          decimal.Decimal   `json:"discount"`
	Tax               decimal.Decimal   `json:"tax"`
	Total             decimal.Decimal   `json:"total"`
	LoyaltyPointsUsed int               `json:"loyalty_points_used" validate:"min=0"`
	Payments          []Payment         `json:"payments" validate:"dive"`
	Notes             string            `json:"notes,omitempty" validate:"max=500"`
}

type SaleFilter struct {
	CustomerID string
	Status     string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// SaleItemView is a line item with its display label and, when still
// resolvable, the live state of its variation combination.
type SaleItemView struct {
	SaleItem
	DisplayName string                `json:"display_name"`
	Live        *VariationCombination `json:"live_variation,omitempty"`
}

type SaleView struct {
	Sale
	Items []SaleItemView `json:"items"`
}

type ReturnLineRequest struct {
	ProductID              string `json:"product_id" validate:"required"`
	VariationCombinationID string `json:"variation_combination_id,omitempty"`
	Quantity               int    `json:"quantity" validate:"min=1"`
	Reason                 string `json:"reason,omitempty" validate:"max=300"`
}

type ReturnRequest struct {
	SaleID       string              `json:"sale_id" validate:"required"`
	Items        []ReturnLineRequest `json:"items" validate:"required,min=1,dive"`
	Reason       string              `json:"reason,omitempty" validate:"max=300"`
	RefundMethod string              `json:"refund_method,omitempty"`
}

type ReturnSummary struct {
	SaleID        string          `json:"sale_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ReturnedItems []ReturnedItem  `json:"returned_items"`
	TotalRefund   decimal.Decimal `json:"total_refund"`
	RefundMethod  string          `json:"refund_method"`
	ProcessedBy   string          `json:"processed_by"`
	ProcessedAt   time.Time       `json:"processed_at"`
	Status        string          `json:"status"`
}

type InvoiceCounterStatus struct {
	NextInvoiceNumber string `json:"next_invoice_number"`
	TotalSalesCount   int64  `json:"total_sales_count"`
}

type InvoiceCounterInit struct {
	CurrentSequence int64 `json:"current_sequence"`
}

type Customer struct {
	ID               string          `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Phone            string          `json:"phone,omitempty" db:"phone"`
	Email            string          `json:"email,omitempty" db:"email"`
	LoyaltyPoints    int             `json:"loyalty_points" db:"loyalty_points"`
	TotalPurchases   decimal.Decimal `json:"total_purchases" db:"total_purchases"`
	LastPurchaseDate *time.Time      `json:"last_purchase_date,omitempty" db:"last_purchase_date"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone,omitempty" validate:"max=32"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type Category struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description,omitempty" db:"description"`
	ProductCount int       `json:"product_count" db:"product_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

type ExpenseCategory struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description,omitempty" db:"description"`
	ExpenseCount int             `json:"expense_count" db:"expense_count"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

type Expense struct {
	ID          string          `json:"id" db:"id"`
	Description string          `json:"description" db:"description"`
	Category    string          `json:"category" db:"category"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Date        time.Time       `json:"date" db:"date"`
	ReceiptURL  string          `json:"receipt_url,omitempty" db:"receipt_url"`
	CreatedBy   string          `json:"created_by" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

type ExpenseRequest struct {
	Description string          `json:"description" validate:"required,max=300"`
	Category    string          `json:"category" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Date        *time.Time      `json:"date,omitempty"`
	ReceiptURL  string          `json:"receipt_url,omitempty"`
}

type Settings struct {
	StoreName          string    `json:"store_name"`
	ReceiptFooter      string    `json:"receipt_footer"`
	OverrideOutOfStock bool      `json:"override_out_of_stock"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type SettingsUpdateRequest struct {
	StoreName          *string `json:"store_name,omitempty"`
	ReceiptFooter      *string `json:"receipt_footer,omitempty"`
	OverrideOutOfStock *bool   `json:"override_out_of_stock,omitempty"`
}

type Supplier struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"max=32"`
}

type PurchaseOrderItem struct {
	ProductID              string          `json:"product_id" validate:"required"`
	VariationCombinationID string          `json:"variation_combination_id,omitempty"`
	Quantity               int             `json:"quantity" validate:"min=1"`
	UnitCost               decimal.Decimal `json:"unit_cost"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	SupplierID string              `json:"supplier_id"`
	Status     string              `json:"status"`
	CreatedBy  string              `json:"created_by"`
	CreatedAt  time.Time           `json:"created_at"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	ReceivedBy string              `json:"received_by,omitempty"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string              `json:"supplier_id" validate:"required"`
	Items      []PurchaseOrderItem `json:"items" validate:"required,min=1,dive"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated principal a request runs as.
type Actor struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

type CashierCreateRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type CashierUser struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID          string
	Username    string
	DisplayName string
	Password    string
	Role        string
	Active      bool
	CreatedAt   time.Time
}

type AuditLog struct {
	ID         string    `json:"id" db:"id"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	ActorRole  string    `json:"actor_role" db:"actor_role"`
	Action     string    `json:"action" db:"action"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Detail     string    `json:"detail" db:"detail"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type ReceiptResponse struct {
	SaleID        string `json:"sale_id"`
	InvoiceNumber string `json:"invoice_number"`
	EscposBase64  string `json:"escpos_base64"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

type UploadResult struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

const (
	SaleStatusCompleted = "completed"
	SaleStatusPartial   = "partial"
	SaleStatusRefunded  = "refunded"
)

const (
	PurchaseOrderDraft    = "draft"
	PurchaseOrderReceived = "received"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)
