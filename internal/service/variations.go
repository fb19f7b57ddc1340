package service

import (
	"context"
	"errors"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/store"
)

// FormatDisplay renders "Name - K1: V1, K2: V2" in attribute order, or the
// bare name when the line carries no variations.
func FormatDisplay(productName string, variations domain.Variations) string {
	if len(variations) == 0 {
		return productName
	}
	return productName + " - " + variations.Label()
}

// ResolveVariationDetails attaches the live state of the line's combination.
// Lookup failures leave the line unenriched.
func (s *Service) ResolveVariationDetails(ctx context.Context, item domain.SaleItem) domain.SaleItemView {
	view := domain.SaleItemView{SaleItem: item, DisplayName: FormatDisplay(item.ProductName, item.Variations)}
	if item.VariationCombinationID == "" {
		return view
	}

	lookupCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	product, err := s.repo.GetProduct(lookupCtx, item.ProductID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn(ctx, "variation lookup failed", "product_id", item.ProductID, "error", err)
		}
		return view
	}
	return attachLive(view, *product)
}

// resolveItems enriches every line with one catalog read.
func (s *Service) resolveItems(ctx context.Context, items []domain.SaleItem) []domain.SaleItemView {
	views := make([]domain.SaleItemView, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		views = append(views, domain.SaleItemView{SaleItem: item, DisplayName: FormatDisplay(item.ProductName, item.Variations)})
		if item.VariationCombinationID != "" {
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return views
	}

	lookupCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	products, err := s.repo.GetProductsByIDs(lookupCtx, ids)
	if err != nil {
		logger.Warn(ctx, "variation lookup failed", "products", len(ids), "error", err)
		return views
	}
	for i := range views {
		if views[i].VariationCombinationID == "" {
			continue
		}
		if product, ok := products[views[i].ProductID]; ok {
			views[i] = attachLive(views[i], product)
		}
	}
	return views
}

func attachLive(view domain.SaleItemView, product domain.Product) domain.SaleItemView {
	combo, ok := product.Combination(view.VariationCombinationID)
	if !ok {
		return view
	}
	view.Live = &combo
	return view
}
