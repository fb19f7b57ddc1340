package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/store"
)

func seedCatalog(t *testing.T, s *Store) (flat domain.Product, shirt domain.Product) {
	t.Helper()
	ctx := context.Background()

	created, err := s.CreateProduct(ctx, domain.Product{SKU: "A-1", Name: "Kopi", Category: "beverage", Price: decimal.NewFromInt(5000), Stock: 5, Active: true})
	require.NoError(t, err)
	flat = *created

	created, err = s.CreateProduct(ctx, domain.Product{
		SKU: "SHIRT", Name: "Shirt", Category: "apparel", Active: true,
		VariationCombinations: []domain.VariationCombination{
			{ID: "c-red", Label: "Color: Red", Attributes: domain.Variations{{Key: "Color", Value: "Red"}}, Stock: 2, Active: true},
			{ID: "c-blue", Label: "Color: Blue", Attributes: domain.Variations{{Key: "Color", Value: "Blue"}}, Stock: 0, Active: true},
		},
	})
	require.NoError(t, err)
	shirt = *created
	return flat, shirt
}

func TestCommitSaleIsAllOrNothing(t *testing.T) {
	s := New()
	flat, shirt := seedCatalog(t, s)
	ctx := context.Background()

	_, err := s.CommitSale(ctx, store.SaleCommit{Sale: domain.Sale{
		InvoiceNumber: "S-001",
		Items: []domain.SaleItem{
			{ProductID: flat.ID, Quantity: 2},
			{ProductID: shirt.ID, VariationCombinationID: "c-blue", Quantity: 1},
		},
	}})
	var shortage *store.StockShortage
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, "Color: Blue", shortage.VariationLabel)
	assert.Equal(t, 0, shortage.Available)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))

	got, err := s.GetProduct(ctx, flat.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock, "first line must not be applied")

	count, err := s.CountSales(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCommitSaleCountsDuplicateLinesTogether(t *testing.T) {
	s := New()
	flat, _ := seedCatalog(t, s)

	_, err := s.CommitSale(context.Background(), store.SaleCommit{Sale: domain.Sale{
		InvoiceNumber: "S-001",
		Items: []domain.SaleItem{
			{ProductID: flat.ID, Quantity: 3},
			{ProductID: flat.ID, Quantity: 3},
		},
	}})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestCommitSaleOversellAndNegativeLines(t *testing.T) {
	s := New()
	flat, shirt := seedCatalog(t, s)
	ctx := context.Background()

	sale, err := s.CommitSale(ctx, store.SaleCommit{
		AllowOversell: true,
		Sale: domain.Sale{
			InvoiceNumber: "S-001",
			Items: []domain.SaleItem{
				{ProductID: shirt.ID, VariationCombinationID: "c-blue", Quantity: 2},
				{ProductID: flat.ID, Quantity: -3},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCompleted, sale.Status)
	assert.Equal(t, 1, sale.Version)

	got, err := s.GetProduct(ctx, shirt.ID)
	require.NoError(t, err)
	combo, _ := got.Combination("c-blue")
	assert.Equal(t, -2, combo.Stock)
	red, _ := got.Combination("c-red")
	assert.Equal(t, 2, red.Stock)

	got, err = s.GetProduct(ctx, flat.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)
}

func TestCommitSaleRejectsUnknownCombination(t *testing.T) {
	s := New()
	_, shirt := seedCatalog(t, s)

	_, err := s.CommitSale(context.Background(), store.SaleCommit{
		AllowOversell: true,
		Sale: domain.Sale{
			InvoiceNumber: "S-001",
			Items:         []domain.SaleItem{{ProductID: shirt.ID, VariationCombinationID: "ghost", Quantity: 1}},
		},
	})
	var missing *store.MissingVariation
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Shirt", missing.ProductName)
}

func TestCommitSaleUpdatesCustomer(t *testing.T) {
	s := New()
	flat, _ := seedCatalog(t, s)
	ctx := context.Background()

	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Budi", LoyaltyPoints: 3})
	require.NoError(t, err)

	_, err = s.CommitSale(ctx, store.SaleCommit{Sale: domain.Sale{
		InvoiceNumber:       "S-001",
		CustomerID:          customer.ID,
		Items:               []domain.SaleItem{{ProductID: flat.ID, Quantity: 1}},
		Total:               decimal.NewFromInt(250),
		LoyaltyPointsUsed:   10,
		LoyaltyPointsEarned: 2,
	}})
	require.NoError(t, err)

	got, err := s.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LoyaltyPoints)
	assert.True(t, decimal.NewFromInt(250).Equal(got.TotalPurchases))
	require.NotNil(t, got.LastPurchaseDate)
}

func TestCommitReturnChecksVersion(t *testing.T) {
	s := New()
	flat, _ := seedCatalog(t, s)
	ctx := context.Background()

	sale, err := s.CommitSale(ctx, store.SaleCommit{Sale: domain.Sale{
		InvoiceNumber: "S-001",
		Items:         []domain.SaleItem{{ProductID: flat.ID, Quantity: 4, TotalPrice: decimal.NewFromInt(400)}},
	}})
	require.NoError(t, err)

	entry := domain.ReturnedItem{ProductID: flat.ID, Quantity: 1}
	updated, err := s.CommitReturn(ctx, store.ReturnCommit{
		SaleID: sale.ID, ExpectedVersion: sale.Version, Entries: []domain.ReturnedItem{entry}, Status: domain.SaleStatusPartial,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Len(t, updated.ReturnedItems, 1)

	_, err = s.CommitReturn(ctx, store.ReturnCommit{
		SaleID: sale.ID, ExpectedVersion: sale.Version, Entries: []domain.ReturnedItem{entry}, Status: domain.SaleStatusPartial,
	})
	assert.ErrorIs(t, err, store.ErrConcurrentModification)

	got, err := s.GetProduct(ctx, flat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
}

func TestDeleteSaleChecksVersion(t *testing.T) {
	s := New()
	flat, _ := seedCatalog(t, s)
	ctx := context.Background()

	sale, err := s.CommitSale(ctx, store.SaleCommit{Sale: domain.Sale{
		InvoiceNumber: "S-001",
		Items:         []domain.SaleItem{{ProductID: flat.ID, Quantity: 4, TotalPrice: decimal.NewFromInt(400)}},
	}})
	require.NoError(t, err)
	_, err = s.CommitReturn(ctx, store.ReturnCommit{
		SaleID: sale.ID, ExpectedVersion: sale.Version,
		Entries: []domain.ReturnedItem{{ProductID: flat.ID, Quantity: 4}}, Status: domain.SaleStatusRefunded,
	})
	require.NoError(t, err)

	stale := store.SaleDelete{
		SaleID:          sale.ID,
		ExpectedVersion: sale.Version,
		Restock:         []domain.StockAdjustment{{ProductID: flat.ID, Delta: 4}},
	}
	assert.ErrorIs(t, s.DeleteSale(ctx, stale), store.ErrConcurrentModification)

	got, err := s.GetProduct(ctx, flat.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
	_, err = s.GetSale(ctx, sale.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSale(ctx, store.SaleDelete{SaleID: sale.ID, ExpectedVersion: sale.Version + 1}))
	assert.ErrorIs(t, s.DeleteSale(ctx, store.SaleDelete{SaleID: sale.ID, ExpectedVersion: sale.Version + 1}), store.ErrNotFound)
}

func TestUpdateCategoryCascadesRename(t *testing.T) {
	s := New()
	seedCatalog(t, s)
	ctx := context.Background()

	category, err := s.CreateCategory(ctx, domain.Category{Name: "beverage"})
	require.NoError(t, err)

	_, err = s.UpdateCategory(ctx, domain.Category{ID: category.ID, Name: "drinks"}, "beverage")
	require.NoError(t, err)

	n, err := s.CountProductsInCategory(ctx, "drinks")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountProductsInCategory(ctx, "beverage")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.CreateCategory(ctx, domain.Category{Name: "Drinks"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestReceivePurchaseOrderIncrementsCombination(t *testing.T) {
	s := New()
	_, shirt := seedCatalog(t, s)
	ctx := context.Background()

	supplier, err := s.CreateSupplier(ctx, domain.Supplier{Name: "PT Sandang"})
	require.NoError(t, err)
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: supplier.ID,
		Items:      []domain.PurchaseOrderItem{{ProductID: shirt.ID, VariationCombinationID: "c-blue", Quantity: 6, UnitCost: decimal.NewFromInt(40000)}},
	})
	require.NoError(t, err)

	received, err := s.ReceivePurchaseOrder(ctx, po.ID, "manager", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderReceived, received.Status)

	got, err := s.GetProduct(ctx, shirt.ID)
	require.NoError(t, err)
	combo, _ := got.Combination("c-blue")
	assert.Equal(t, 6, combo.Stock)

	_, err = s.ReceivePurchaseOrder(ctx, po.ID, "manager", time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	_, shirt := seedCatalog(t, s)
	ctx := context.Background()

	got, err := s.GetProduct(ctx, shirt.ID)
	require.NoError(t, err)
	got.VariationCombinations[0].Stock = 999

	again, err := s.GetProduct(ctx, shirt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.VariationCombinations[0].Stock)
}

func TestNewSeededHasVariationProduct(t *testing.T) {
	s := NewSeeded()
	products, err := s.ListProducts(context.Background(), "apparel")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, products[0].HasVariations())

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 3)
}
