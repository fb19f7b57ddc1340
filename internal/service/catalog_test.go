package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/store/memory"
)

func TestCreateProductBuildsCombinations(t *testing.T) {
	svc, _ := newTestService(t)

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		SKU: " kaos ", Name: "Kaos Polos", Category: "Pakaian", Price: dec(50),
		VariationCombinations: []domain.VariationCombinationInput{
			{Attributes: domain.Variations{{Key: "Size", Value: "M"}, {Key: "Color", Value: "Navy Blue"}}, Stock: 3},
			{Attributes: domain.Variations{{Key: "Size", Value: "L"}, {Key: "Color", Value: "Red"}}, Price: dec(60), Stock: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "KAOS", product.SKU)
	assert.NotEmpty(t, product.Barcode)
	require.Len(t, product.VariationCombinations, 2)

	first := product.VariationCombinations[0]
	assert.Len(t, first.ID, 12)
	assert.Equal(t, "KAOS-M-NAVYBLUE", first.SKU)
	assert.Equal(t, "Size: M, Color: Navy Blue", first.Label)
	assert.True(t, first.Price.Equal(dec(50)))
	assert.True(t, product.VariationCombinations[1].Price.Equal(dec(60)))

	got, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.VariationCombinations[0].Stock)
}

func TestCreateProductRules(t *testing.T) {
	svc, _ := newTestService(t)
	req := domain.ProductCreateRequest{SKU: "TEH", Name: "Teh", Category: "Minuman", Price: dec(5)}

	_, err := svc.CreateProduct(cashierCtx(), req)
	requireCode(t, err, apperror.CodeForbidden)

	_, err = svc.CreateProduct(adminCtx(), req)
	require.NoError(t, err)
	_, err = svc.CreateProduct(adminCtx(), req)
	requireCode(t, err, apperror.CodeDuplicate)

	_, err = svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		SKU: "DUP", Name: "Dup", Category: "Minuman",
		VariationCombinations: []domain.VariationCombinationInput{
			{Attributes: domain.Variations{{Key: "Size", Value: "M"}}},
			{Attributes: domain.Variations{{Key: "Size", Value: "M"}}},
		},
	})
	requireCode(t, err, apperror.CodeValidation)

	_, err = svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{SKU: "NEG", Name: "Neg", Category: "Minuman", Price: dec(-1)})
	requireCode(t, err, apperror.CodeValidation)
}

func TestUpdateProduct(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Kopi", 4)
	price := dec(15)
	inactive := false

	updated, err := svc.UpdateProduct(adminCtx(), flat.ID, domain.ProductUpdateRequest{Price: &price, Active: &inactive})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(price))
	assert.False(t, updated.Active)
	assert.Equal(t, 4, updated.Stock)

	_, err = svc.UpdateProduct(adminCtx(), "prd-ghost", domain.ProductUpdateRequest{Price: &price})
	requireCode(t, err, apperror.CodeProductNotFound)
}

func TestCategoryStatsAreRecomputedOnRead(t *testing.T) {
	svc, repo := newTestService(t)
	category, err := svc.CreateCategory(adminCtx(), domain.CategoryRequest{Name: "Umum"})
	require.NoError(t, err)
	assert.Zero(t, category.ProductCount)

	seedFlat(t, repo, "Kopi", 1)
	seedFlat(t, repo, "Teh", 1)

	for i := 0; i < 2; i++ {
		got, err := svc.GetCategory(context.Background(), category.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.ProductCount, "recompute must not accumulate")
	}

	listed, err := svc.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 2, listed[0].ProductCount)

	_, err = svc.CreateCategory(adminCtx(), domain.CategoryRequest{Name: "umum"})
	requireCode(t, err, apperror.CodeDuplicate)
}

func TestCategoryRenameCascadesToProducts(t *testing.T) {
	svc, repo := newTestService(t)
	category, err := svc.CreateCategory(adminCtx(), domain.CategoryRequest{Name: "Umum"})
	require.NoError(t, err)
	flat := seedFlat(t, repo, "Kopi", 1)

	renamed, err := svc.UpdateCategory(adminCtx(), category.ID, domain.CategoryRequest{Name: "Minuman"})
	require.NoError(t, err)
	assert.Equal(t, "Minuman", renamed.Name)
	assert.Equal(t, 1, renamed.ProductCount)

	product, err := svc.GetProduct(context.Background(), flat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Minuman", product.Category)

	_, err = svc.UpdateCategory(adminCtx(), "cat-ghost", domain.CategoryRequest{Name: "X"})
	requireCode(t, err, apperror.CodeNotFound)
}

func TestExpenseCategoryStatsAndRename(t *testing.T) {
	svc, _ := newTestService(t)
	category, err := svc.CreateExpenseCategory(adminCtx(), domain.CategoryRequest{Name: "Listrik"})
	require.NoError(t, err)

	for _, amount := range []int64{100, 250} {
		_, err := svc.CreateExpense(adminCtx(), domain.ExpenseRequest{Description: "PLN", Category: "Listrik", Amount: dec(amount)})
		require.NoError(t, err)
	}

	got, err := svc.GetExpenseCategory(context.Background(), category.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ExpenseCount)
	assert.True(t, got.TotalAmount.Equal(dec(350)))

	renamed, err := svc.UpdateExpenseCategory(adminCtx(), category.ID, domain.CategoryRequest{Name: "Utilitas"})
	require.NoError(t, err)
	assert.Equal(t, 2, renamed.ExpenseCount)

	expenses, err := svc.ListExpenses(context.Background(), "Utilitas", 10)
	require.NoError(t, err)
	assert.Len(t, expenses, 2)
}

func TestExpenseUpdateSwallowsMediaDeleteFailure(t *testing.T) {
	mediaStore := &failingMedia{}
	svc := New(memory.New(), nil, mediaStore, Options{})

	expense, err := svc.CreateExpense(adminCtx(), domain.ExpenseRequest{
		Description: "Sewa", Category: "Operasional", Amount: dec(1000), ReceiptURL: "old-receipt.jpg",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateExpense(adminCtx(), expense.ID, domain.ExpenseRequest{
		Description: "Sewa Maret", Category: "Operasional", Amount: dec(1000), ReceiptURL: "new-receipt.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-receipt.jpg", updated.ReceiptURL)
	assert.Equal(t, []string{"old-receipt.jpg"}, mediaStore.deleted)

	require.NoError(t, svc.DeleteExpense(adminCtx(), expense.ID))
	assert.Equal(t, []string{"old-receipt.jpg", "new-receipt.jpg"}, mediaStore.deleted)

	_, err = svc.Upload(adminCtx(), "struk.jpg", "image/jpeg", strings.NewReader("x"), 1)
	requireCode(t, err, apperror.CodeInternal)
}

func TestExpenseRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateExpense(adminCtx(), domain.ExpenseRequest{Description: "Gas", Category: "Dapur", Amount: dec(0)})
	requireCode(t, err, apperror.CodeValidation)
}

func TestUploadThroughLocalMedia(t *testing.T) {
	svc, _ := newTestService(t)
	result, err := svc.Upload(cashierCtx(), "Struk.PNG", "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.URL, ".png"))
	assert.Equal(t, int64(3), result.Size)

	_, err = svc.Upload(context.Background(), "a.png", "image/png", strings.NewReader("png"), 3)
	requireCode(t, err, apperror.CodeUnauthorized)
}

func TestPurchaseOrderReceiveMovesCombinationStock(t *testing.T) {
	svc, repo := newTestService(t)
	shirt := seedShirt(t, repo)
	flat := seedFlat(t, repo, "Gula", 2)

	supplier, err := svc.CreateSupplier(adminCtx(), domain.SupplierCreateRequest{Name: "CV Maju", Phone: "021"})
	require.NoError(t, err)

	_, err = svc.CreatePurchaseOrder(adminCtx(), domain.PurchaseOrderCreateRequest{
		SupplierID: supplier.ID,
		Items:      []domain.PurchaseOrderItem{{ProductID: shirt.ID, VariationCombinationID: "xl", Quantity: 1}},
	})
	requireCode(t, err, apperror.CodeVariationNotFound)

	po, err := svc.CreatePurchaseOrder(adminCtx(), domain.PurchaseOrderCreateRequest{
		SupplierID: supplier.ID,
		Items: []domain.PurchaseOrderItem{
			{ProductID: shirt.ID, VariationCombinationID: "l-red", Quantity: 10, UnitCost: dec(30)},
			{ProductID: flat.ID, Quantity: 5, UnitCost: dec(8)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderDraft, po.Status)

	received, err := svc.ReceivePurchaseOrder(adminCtx(), po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderReceived, received.Status)
	assert.Equal(t, "Admin", received.ReceivedBy)
	assert.Equal(t, 11, stockOf(t, repo, shirt.ID, "l-red"))
	assert.Equal(t, 7, stockOf(t, repo, flat.ID, ""))

	_, err = svc.ReceivePurchaseOrder(adminCtx(), po.ID)
	requireCode(t, err, apperror.CodeValidation)

	orders, err := svc.ListPurchaseOrders(context.Background(), "received")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCustomerPhoneIsUnique(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateCustomer(cashierCtx(), domain.CustomerCreateRequest{Name: "A", Phone: "0812"})
	require.NoError(t, err)
	_, err = svc.CreateCustomer(cashierCtx(), domain.CustomerCreateRequest{Name: "B", Phone: "0812"})
	requireCode(t, err, apperror.CodeDuplicate)

	_, err = svc.GetCustomer(context.Background(), "cus-ghost")
	requireCode(t, err, apperror.CodeNotFound)
}
