package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/sequence"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

const maxSaleWriteAttempts = 3

// CreateSale validates every line before anything is written, then reserves
// an invoice number and commits the sale, its stock moves and the customer
// update as one unit.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (sale domain.Sale, err error) {
	ctx, span := s.startSpan(ctx, "CreateSale", attribute.Int("sale.lines", len(req.Items)))
	defer func() { endSpan(span, err) }()

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, apperror.NewUnauthorized("authentication required")
	}
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		ids = append(ids, line.ProductID)
	}
	readCtx, cancel := s.storageCtx(ctx)
	products, err := s.repo.GetProductsByIDs(readCtx, ids)
	cancel()
	if err != nil {
		return domain.Sale{}, translateStoreError(err, "product", "")
	}

	items, err := prepareSaleItems(req.Items, products, settings.OverrideOutOfStock)
	if err != nil {
		return domain.Sale{}, err
	}

	if req.CustomerID != "" {
		readCtx, cancel := s.storageCtx(ctx)
		_, err := s.repo.GetCustomer(readCtx, req.CustomerID)
		cancel()
		if err != nil {
			return domain.Sale{}, translateStoreError(err, "customer", req.CustomerID)
		}
	}

	counterCtx, cancel := s.storageCtx(ctx)
	invoice, err := s.invoices.Next(counterCtx, sequence.InvoiceSequence, s.format)
	cancel()
	if err != nil {
		return domain.Sale{}, err
	}
	span.SetAttributes(attribute.String("sale.invoice", invoice))

	payments := req.Payments
	if payments == nil {
		payments = []domain.Payment{}
	}
	now := s.now()
	draft := domain.Sale{
		ID:                  xid.New("sale"),
		InvoiceNumber:       invoice,
		Items:               items,
		ReturnedItems:       []domain.ReturnedItem{},
		CustomerID:          req.CustomerID,
		Subtotal:            req.Subtotal,
		Discount:            req.Discount,
		Tax:                 req.Tax,
		Total:               req.Total,
		LoyaltyPointsUsed:   req.LoyaltyPointsUsed,
		LoyaltyPointsEarned: loyaltyPoints(req.Total),
		Payments:            payments,
		Status:              domain.SaleStatusCompleted,
		CashierID:           actor.UserID,
		CashierName:         actor.DisplayName,
		Notes:               req.Notes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	commit := store.SaleCommit{Sale: draft, AllowOversell: settings.OverrideOutOfStock}
	var saved *domain.Sale
	for attempt := 1; ; attempt++ {
		saved, err = s.commitSale(ctx, commit)
		if err == nil || !errors.Is(err, store.ErrConcurrentModification) || attempt >= maxSaleWriteAttempts {
			break
		}
		logger.Debug(ctx, "sale commit conflicted, retrying", "invoice", invoice, "attempt", attempt)
	}
	if err != nil {
		var missing *store.MissingProduct
		switch {
		case req.CustomerID != "" && errors.Is(err, store.ErrNotFound) && !errors.As(err, &missing):
			return domain.Sale{}, apperror.NewNotFound("customer", req.CustomerID)
		case errors.Is(err, store.ErrDuplicate):
			// The counter handed out an invoice that is already taken.
			return domain.Sale{}, apperror.NewCounterUnavailable(fmt.Errorf("invoice %s: %w", invoice, err))
		}
		return domain.Sale{}, translateStoreError(err, "sale", invoice)
	}

	s.logAudit(ctx, "sale_create", "sale", saved.ID,
		fmt.Sprintf("invoice=%s,total=%s,lines=%d", saved.InvoiceNumber, saved.Total.StringFixed(2), len(saved.Items)))
	return *saved, nil
}

// commitSale reuses the reserved invoice, so a retried commit never burns
// another number.
func (s *Service) commitSale(ctx context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	commitCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.repo.CommitSale(commitCtx, commit)
}

// prepareSaleItems checks lines in order and snapshots them. Demand for the
// same stock field accumulates across lines. Negative quantities and the
// override setting skip the sufficiency check, never the existence checks.
func prepareSaleItems(lines []domain.SaleItemRequest, products map[string]domain.Product, override bool) ([]domain.SaleItem, error) {
	demand := make(map[string]int, len(lines))
	items := make([]domain.SaleItem, 0, len(lines))

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, apperror.NewProductNotFound(line.ProductID)
		}

		available := product.Stock
		sku := line.SKU
		variations := line.Variations
		label := ""
		if line.VariationCombinationID != "" {
			combo, ok := product.Combination(line.VariationCombinationID)
			if !ok {
				return nil, apperror.NewVariationNotFound(product.Name, product.ID, line.VariationCombinationID)
			}
			available = combo.Stock
			label = combo.Label
			if label == "" {
				label = combo.Attributes.Label()
			}
			if len(variations) == 0 {
				variations = combo.Attributes
			}
			if sku == "" {
				sku = combo.SKU
			}
		}

		if line.Quantity >= 0 && !override {
			key := stockKey(line.ProductID, line.VariationCombinationID)
			demand[key] += line.Quantity
			if demand[key] > available {
				return nil, apperror.NewInsufficientStock(lineLabel(product.Name, label), product.ID,
					line.VariationCombinationID, demand[key], available)
			}
		}

		name := line.ProductName
		if name == "" {
			name = product.Name
		}
		if sku == "" {
			sku = product.SKU
		}
		total := line.TotalPrice
		if total.IsZero() {
			total = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Sub(line.Discount)
		}

		items = append(items, domain.SaleItem{
			ProductID:              product.ID,
			ProductName:            name,
			SKU:                    sku,
			Quantity:               line.Quantity,
			UnitPrice:              line.UnitPrice,
			Discount:               line.Discount,
			TotalPrice:             total,
			VariationCombinationID: line.VariationCombinationID,
			Variations:             variations,
		})
	}
	return items, nil
}

// loyaltyPoints is floor(total / 100).
func loyaltyPoints(total decimal.Decimal) int {
	return int(total.Div(hundred).Floor().IntPart())
}

func stockKey(productID string, combinationID string) string {
	return productID + "|" + combinationID
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleView, error) {
	readCtx, cancel := s.storageCtx(ctx)
	sale, err := s.repo.GetSale(readCtx, id)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleView{}, apperror.NewSaleNotFound(id)
		}
		return domain.SaleView{}, translateStoreError(err, "sale", id)
	}
	return domain.SaleView{Sale: *sale, Items: s.resolveItems(ctx, sale.Items)}, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.Limit < 1 {
		filter.Limit = 100
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	sales, err := s.repo.ListSales(readCtx, filter)
	if err != nil {
		return nil, translateStoreError(err, "sale", "")
	}
	return sales, nil
}

// DeleteSale removes a sale and puts back whatever stock is still out: sold
// quantity minus what returns already restored. The customer is left as is.
// A return landing between the read and the delete forces a reload.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := s.deleteSale(ctx, id)
		if err == nil || !apperror.HasCode(err, apperror.CodeConcurrentModification) || attempt >= maxSaleWriteAttempts {
			return err
		}
		logger.Debug(ctx, "sale changed during delete, retrying", "sale_id", id, "attempt", attempt)
	}
}

func (s *Service) deleteSale(ctx context.Context, id string) error {
	readCtx, cancel := s.storageCtx(ctx)
	sale, err := s.repo.GetSale(readCtx, id)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NewSaleNotFound(id)
		}
		return translateStoreError(err, "sale", id)
	}

	restock := outstandingStock(*sale)
	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	err = s.repo.DeleteSale(writeCtx, store.SaleDelete{SaleID: id, ExpectedVersion: sale.Version, Restock: restock})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && !isStockTargetError(err) {
			return apperror.NewSaleNotFound(id)
		}
		return translateStoreError(err, "sale", id)
	}

	s.logAudit(ctx, "sale_delete", "sale", id, fmt.Sprintf("invoice=%s,restocked_lines=%d", sale.InvoiceNumber, len(restock)))
	return nil
}

func outstandingStock(sale domain.Sale) []domain.StockAdjustment {
	order := make([]string, 0, len(sale.Items))
	byKey := make(map[string]*domain.StockAdjustment, len(sale.Items))
	for _, item := range sale.Items {
		key := stockKey(item.ProductID, item.VariationCombinationID)
		adj, ok := byKey[key]
		if !ok {
			adj = &domain.StockAdjustment{ProductID: item.ProductID, VariationCombinationID: item.VariationCombinationID}
			byKey[key] = adj
			order = append(order, key)
		}
		adj.Delta += item.Quantity
	}
	for _, returned := range sale.ReturnedItems {
		if adj, ok := byKey[stockKey(returned.ProductID, returned.VariationCombinationID)]; ok {
			adj.Delta -= returned.Quantity
		}
	}

	out := make([]domain.StockAdjustment, 0, len(order))
	for _, key := range order {
		if adj := byKey[key]; adj.Delta != 0 {
			out = append(out, *adj)
		}
	}
	return out
}

func isStockTargetError(err error) bool {
	var missingProduct *store.MissingProduct
	var missingVariation *store.MissingVariation
	return errors.As(err, &missingProduct) || errors.As(err, &missingVariation)
}
