package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/sequence"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/store/memory"
)

func TestSellThenFullyReturnRestoresStock(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedFlat(t, repo, "P", 10)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:    []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 4, UnitPrice: dec(10), TotalPrice: dec(40)}},
		Subtotal: dec(40),
		Total:    dec(40),
		Payments: []domain.Payment{{Method: "cash", Amount: dec(40)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "S-001", sale.InvoiceNumber)
	assert.Equal(t, domain.SaleStatusCompleted, sale.Status)
	assert.Equal(t, "Kasir A", sale.CashierName)
	assert.Equal(t, "usr-cashier", sale.CashierID)
	assert.Equal(t, 6, stockOf(t, repo, product.ID, ""))

	summary, err := svc.CreateReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnLineRequest{{ProductID: product.ID, Quantity: 4, Reason: "defect"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, stockOf(t, repo, product.ID, ""))
	assert.Equal(t, domain.SaleStatusRefunded, summary.Status)
	assert.True(t, summary.TotalRefund.Equal(dec(40)))
	assert.Equal(t, "defect", summary.ReturnedItems[0].Reason)
	assert.Equal(t, "cash", summary.RefundMethod)

	stored, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusRefunded, stored.Status)
	assert.Len(t, stored.ReturnedItems, 1)
}

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Kopi", 5)
	shirt := seedShirt(t, repo)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: flat.ID, Quantity: 2, UnitPrice: dec(10)},
			{ProductID: shirt.ID, VariationCombinationID: "l-red", Quantity: 2, UnitPrice: dec(55)},
		},
		Total: dec(130),
	})
	appErr := requireCode(t, err, apperror.CodeInsufficientStock)
	assert.Contains(t, appErr.Message, "Kaos - Size: L, Color: Red")
	assert.Equal(t, 1, appErr.Details["available"])
	assert.True(t, apperror.IsValidation(err))

	assert.Equal(t, 5, stockOf(t, repo, flat.ID, ""))
	assert.Equal(t, 1, stockOf(t, repo, shirt.ID, "l-red"))
	count, err := repo.CountSales(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateSaleAccumulatesDemandAcrossLines(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Roti", 3)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: flat.ID, Quantity: 2},
			{ProductID: flat.ID, Quantity: 2},
		},
	})
	appErr := requireCode(t, err, apperror.CodeInsufficientStock)
	assert.Equal(t, 4, appErr.Details["requested"])
	assert.Equal(t, 3, stockOf(t, repo, flat.ID, ""))
}

func TestNegativeQuantityIncreasesStock(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Gula", 0)
	shirt := seedShirt(t, repo)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: flat.ID, Quantity: -3, UnitPrice: dec(10)},
			{ProductID: shirt.ID, VariationCombinationID: "l-red", Quantity: -2, UnitPrice: dec(55)},
		},
		Total: dec(-140),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, repo, flat.ID, ""))
	assert.Equal(t, 3, stockOf(t, repo, shirt.ID, "l-red"))
	assert.True(t, sale.Items[0].TotalPrice.Equal(dec(-30)))

	_, err = svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: shirt.ID, VariationCombinationID: "xl-red", Quantity: -1}},
	})
	requireCode(t, err, apperror.CodeVariationNotFound)
}

func TestOverrideOutOfStockSkipsSufficiencyOnly(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Susu", 1)
	shirt := seedShirt(t, repo)
	on := true
	_, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{OverrideOutOfStock: &on})
	require.NoError(t, err)

	_, err = svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: flat.ID, Quantity: 4},
			{ProductID: shirt.ID, VariationCombinationID: "l-red", Quantity: 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, -3, stockOf(t, repo, flat.ID, ""))
	assert.Equal(t, -2, stockOf(t, repo, shirt.ID, "l-red"))

	_, err = svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: shirt.ID, VariationCombinationID: "missing", Quantity: 1}},
	})
	requireCode(t, err, apperror.CodeVariationNotFound)
}

func TestCreateSaleRejectsUnknownReferences(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Air", 5)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: "prd-ghost", Quantity: 1}},
	})
	requireCode(t, err, apperror.CodeProductNotFound)
	assert.True(t, apperror.IsNotFound(err))

	_, err = svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:      []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 1}},
		CustomerID: "cus-ghost",
	})
	appErr := requireCode(t, err, apperror.CodeNotFound)
	assert.Equal(t, "customer", appErr.Details["entity"])

	_, err = svc.CreateSale(context.Background(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 1}},
	})
	requireCode(t, err, apperror.CodeUnauthorized)
	assert.Equal(t, 5, stockOf(t, repo, flat.ID, ""))
}

func TestCreateSaleUpdatesCustomer(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Beras", 10)
	customer, err := svc.CreateCustomer(cashierCtx(), domain.CustomerCreateRequest{Name: "Budi", Phone: "0812"})
	require.NoError(t, err)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:      []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 2, UnitPrice: dec(125), TotalPrice: dec(250)}},
		CustomerID: customer.ID,
		Total:      dec(250),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sale.LoyaltyPointsEarned)

	got, err := svc.GetCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LoyaltyPoints)
	assert.True(t, got.TotalPurchases.Equal(dec(250)))
	require.NotNil(t, got.LastPurchaseDate)

	// Redeeming more points than held clamps at zero.
	_, err = svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:             []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 1, UnitPrice: dec(99)}},
		CustomerID:        customer.ID,
		Total:             dec(99),
		LoyaltyPointsUsed: 50,
	})
	require.NoError(t, err)
	got, err = svc.GetCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LoyaltyPoints)
}

func TestLoyaltyPointsFloor(t *testing.T) {
	assert.Equal(t, 0, loyaltyPoints(dec(99)))
	assert.Equal(t, 1, loyaltyPoints(dec(100)))
	assert.Equal(t, 12, loyaltyPoints(dec(1299)))
}

type brokenCounter struct{}

func (brokenCounter) IncrementSequence(context.Context, string) (int64, error) {
	return 0, errors.New("counter offline")
}

func (brokenCounter) CurrentSequence(context.Context, string) (int64, bool, error) {
	return 0, true, nil
}

func (brokenCounter) SeedSequence(context.Context, string, int64) (int64, error) {
	return 0, errors.New("counter offline")
}

func TestCreateSaleFailsWhenCounterUnavailable(t *testing.T) {
	repo := memory.New()
	svc := New(repo, sequence.NewGenerator(brokenCounter{}, repo), nil, Options{})
	flat := seedFlat(t, repo, "Mie", 5)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 1}},
	})
	appErr := requireCode(t, err, apperror.CodeCounterUnavailable)
	assert.True(t, appErr.Retryable())
	assert.Equal(t, 5, stockOf(t, repo, flat.ID, ""))
}

func TestConcurrentSalesGetDistinctInvoices(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Es", 100)

	const n = 25
	var wg sync.WaitGroup
	invoices := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
				Items: []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 1}},
			})
			if assert.NoError(t, err) {
				invoices <- sale.InvoiceNumber
			}
		}()
	}
	wg.Wait()
	close(invoices)

	seen := make(map[string]bool, n)
	for inv := range invoices {
		assert.False(t, seen[inv], "duplicate invoice %s", inv)
		seen[inv] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, 100-n, stockOf(t, repo, flat.ID, ""))
}

func TestInvoiceCounterStatusAndInit(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Kue", 5)

	status, err := svc.InvoiceCounterStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "S-001", status.NextInvoiceNumber)
	assert.Zero(t, status.TotalSalesCount)

	_, err = svc.InitInvoiceCounter(cashierCtx())
	requireCode(t, err, apperror.CodeForbidden)

	_, err = svc.CreateSale(cashierCtx(), domain.SaleRequest{Items: []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 1}}})
	require.NoError(t, err)

	init, err := svc.InitInvoiceCounter(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, int64(1), init.CurrentSequence)

	status, err = svc.InvoiceCounterStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "S-002", status.NextInvoiceNumber)
	assert.Equal(t, int64(1), status.TotalSalesCount)
}

func TestDeleteSaleRestocksOutstandingQuantity(t *testing.T) {
	svc, repo := newTestService(t)
	shirt := seedShirt(t, repo)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: shirt.ID, VariationCombinationID: "m-red", Quantity: 4, UnitPrice: dec(50)}},
	})
	require.NoError(t, err)
	_, err = svc.CreateReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnLineRequest{{ProductID: shirt.ID, VariationCombinationID: "m-red", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stockOf(t, repo, shirt.ID, "m-red"))

	requireCode(t, svc.DeleteSale(cashierCtx(), sale.ID), apperror.CodeForbidden)
	require.NoError(t, svc.DeleteSale(adminCtx(), sale.ID))
	assert.Equal(t, 5, stockOf(t, repo, shirt.ID, "m-red"))

	_, err = svc.GetSale(context.Background(), sale.ID)
	requireCode(t, err, apperror.CodeSaleNotFound)
	requireCode(t, svc.DeleteSale(adminCtx(), sale.ID), apperror.CodeSaleNotFound)
}

// returnBeforeDeleteRepo runs hook once, right before the store delete, so a
// return commits between the service read and its write.
type returnBeforeDeleteRepo struct {
	*memory.Store
	hook func()
	once sync.Once
}

func (r *returnBeforeDeleteRepo) DeleteSale(ctx context.Context, del store.SaleDelete) error {
	r.once.Do(r.hook)
	return r.Store.DeleteSale(ctx, del)
}

func TestDeleteSaleRacingReturnRestocksOnce(t *testing.T) {
	repo := &returnBeforeDeleteRepo{Store: memory.New()}
	svc := New(repo, nil, nil, Options{})
	product := seedFlat(t, repo.Store, "P", 10)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 4, UnitPrice: dec(10)}},
		Total: dec(40),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, stockOf(t, repo.Store, product.ID, ""))

	repo.hook = func() {
		_, err := svc.CreateReturn(cashierCtx(), domain.ReturnRequest{
			SaleID: sale.ID,
			Items:  []domain.ReturnLineRequest{{ProductID: product.ID, Quantity: 4}},
		})
		assert.NoError(t, err)
	}

	require.NoError(t, svc.DeleteSale(adminCtx(), sale.ID))
	assert.Equal(t, 10, stockOf(t, repo.Store, product.ID, ""))
	_, err = svc.GetSale(context.Background(), sale.ID)
	requireCode(t, err, apperror.CodeSaleNotFound)
}

// conflictingCommitRepo fails the next n commits, n being conflicts, the way
// a contended database transaction does.
type conflictingCommitRepo struct {
	*memory.Store
	conflicts int
	invoices  []string
}

func (r *conflictingCommitRepo) CommitSale(ctx context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	r.invoices = append(r.invoices, commit.Sale.InvoiceNumber)
	if r.conflicts > 0 {
		r.conflicts--
		return nil, fmt.Errorf("could not serialize access: %w", store.ErrConcurrentModification)
	}
	return r.Store.CommitSale(ctx, commit)
}

func TestCreateSaleRetriesConflictWithSameInvoice(t *testing.T) {
	repo := &conflictingCommitRepo{Store: memory.New(), conflicts: 2}
	svc := New(repo, nil, nil, Options{})
	product := seedFlat(t, repo.Store, "Roti", 5)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "S-001", sale.InvoiceNumber)
	assert.Equal(t, []string{"S-001", "S-001", "S-001"}, repo.invoices)
	assert.Equal(t, 3, stockOf(t, repo.Store, product.ID, ""))

	repo.conflicts = maxSaleWriteAttempts
	_, err = svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	requireCode(t, err, apperror.CodeConcurrentModification)
	assert.Equal(t, 3, stockOf(t, repo.Store, product.ID, ""))
}

// stuckCounter keeps handing out the same value, like a counter that was
// reset behind the recorded sales.
type stuckCounter struct{}

func (stuckCounter) IncrementSequence(context.Context, string) (int64, error) { return 1, nil }

func (stuckCounter) CurrentSequence(context.Context, string) (int64, bool, error) { return 1, true, nil }

func (stuckCounter) SeedSequence(context.Context, string, int64) (int64, error) { return 1, nil }

func TestCreateSaleDuplicateInvoiceIsCounterFailure(t *testing.T) {
	repo := memory.New()
	svc := New(repo, sequence.NewGenerator(stuckCounter{}, repo), nil, Options{})
	flat := seedFlat(t, repo, "Gula", 5)

	req := domain.SaleRequest{Items: []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 1}}}
	first, err := svc.CreateSale(cashierCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, "S-001", first.InvoiceNumber)

	_, err = svc.CreateSale(cashierCtx(), req)
	appErr := requireCode(t, err, apperror.CodeCounterUnavailable)
	assert.True(t, appErr.Retryable())
	assert.Equal(t, 4, stockOf(t, repo, flat.ID, ""))
}

func TestCreateSaleAcceptsZeroQuantityLine(t *testing.T) {
	svc, repo := newTestService(t)
	flat := seedFlat(t, repo, "Bonus", 0)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: flat.ID, Quantity: 0, UnitPrice: dec(10)}},
	})
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	assert.Zero(t, sale.Items[0].Quantity)
	assert.True(t, sale.Items[0].TotalPrice.IsZero())
	assert.Equal(t, 0, stockOf(t, repo, flat.ID, ""))
}

func TestGetSaleEnrichesVariationLines(t *testing.T) {
	svc, repo := newTestService(t)
	shirt := seedShirt(t, repo)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: shirt.ID, ProductName: "Kaos", VariationCombinationID: "m-red", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "KAOS-M-RED", sale.Items[0].SKU)

	view, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Kaos - Size: M, Color: Red", view.Items[0].DisplayName)
	require.NotNil(t, view.Items[0].Live)
	assert.Equal(t, 4, view.Items[0].Live.Stock)
}

func TestResolveVariationDetailsIsBestEffort(t *testing.T) {
	svc, repo := newTestService(t)
	shirt := seedShirt(t, repo)
	ctx := context.Background()

	view := svc.ResolveVariationDetails(ctx, domain.SaleItem{ProductID: shirt.ID, ProductName: "Kaos", VariationCombinationID: "gone"})
	assert.Nil(t, view.Live)
	assert.Equal(t, "Kaos", view.DisplayName)

	view = svc.ResolveVariationDetails(ctx, domain.SaleItem{ProductID: "prd-deleted", ProductName: "Lama", VariationCombinationID: "m-red"})
	assert.Nil(t, view.Live)

	view = svc.ResolveVariationDetails(ctx, domain.SaleItem{ProductID: shirt.ID, VariationCombinationID: "l-red"})
	require.NotNil(t, view.Live)
	assert.Equal(t, "KAOS-L-RED", view.Live.SKU)
}

func TestFormatDisplay(t *testing.T) {
	assert.Equal(t, "Kaos", FormatDisplay("Kaos", nil))
	assert.Equal(t, "Kaos - Size: M, Color: Red",
		FormatDisplay("Kaos", domain.Variations{{Key: "Size", Value: "M"}, {Key: "Color", Value: "Red"}}))
	assert.Equal(t, "Kaos - Color: Red, Size: M",
		FormatDisplay("Kaos", domain.Variations{{Key: "Color", Value: "Red"}, {Key: "Size", Value: "M"}}))
}

func TestBuildReceiptShowsVariationLabels(t *testing.T) {
	svc, repo := newTestService(t)
	shirt := seedShirt(t, repo)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:    []domain.SaleItemRequest{{ProductID: shirt.ID, ProductName: "Kaos", VariationCombinationID: "m-red", Quantity: 2, UnitPrice: dec(50)}},
		Total:    dec(100),
		Payments: []domain.Payment{{Method: "cash", Amount: dec(100)}},
	})
	require.NoError(t, err)

	receipt, err := svc.BuildReceipt(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Contains(t, receipt.PreviewText, "Kaos - Size: M, Color: Red x2")
	assert.Contains(t, receipt.PreviewText, "Total    : 100.00")
	assert.Equal(t, "receipt-S-001.bin", receipt.FileName)
	assert.NotEmpty(t, receipt.EscposBase64)
}
