package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	products, err := s.repo.ListProducts(readCtx, strings.TrimSpace(category))
	if err != nil {
		return nil, translateStoreError(err, "product", "")
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	product, err := s.repo.GetProduct(readCtx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, apperror.NewProductNotFound(id)
		}
		return domain.Product{}, translateStoreError(err, "product", id)
	}
	return *product, nil
}

// CreateProduct assigns a barcode when none is given and a local id, SKU and
// label to every variation combination.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if req.Price.IsNegative() || req.Cost.IsNegative() {
		return domain.Product{}, apperror.NewValidation("price and cost must not be negative")
	}

	combos, err := buildCombinations(req)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	barcode := req.Barcode
	if barcode == "" {
		barcode = xid.Barcode(now)
	}
	product := domain.Product{
		ID:                    xid.New("prd"),
		SKU:                   req.SKU,
		Barcode:               barcode,
		Name:                  req.Name,
		Category:              req.Category,
		Price:                 req.Price,
		Cost:                  req.Cost,
		Stock:                 req.InitialStock,
		VariationCombinations: combos,
		Active:                true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	created, err := s.repo.CreateProduct(writeCtx, product)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Product{}, apperror.NewDuplicate("product", "sku or barcode", req.SKU)
		}
		return domain.Product{}, translateStoreError(err, "product", "")
	}

	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("sku=%s,combinations=%d,stock=%d", created.SKU, len(created.VariationCombinations), created.Stock))
	return *created, nil
}

func buildCombinations(req domain.ProductCreateRequest) ([]domain.VariationCombination, error) {
	if len(req.VariationCombinations) == 0 {
		return nil, nil
	}

	combos := make([]domain.VariationCombination, 0, len(req.VariationCombinations))
	labels := make(map[string]bool, len(req.VariationCombinations))
	skus := make(map[string]bool, len(req.VariationCombinations))
	for _, in := range req.VariationCombinations {
		label := in.Attributes.Label()
		if labels[label] {
			return nil, apperror.NewValidation("duplicate variation combination: " + label)
		}
		labels[label] = true

		sku := strings.ToUpper(strings.TrimSpace(in.SKU))
		if sku == "" {
			sku = combinationSKU(req.SKU, in.Attributes)
		}
		if skus[sku] {
			return nil, apperror.NewDuplicate("variation combination", "sku", sku)
		}
		skus[sku] = true

		price := in.Price
		if price.IsZero() {
			price = req.Price
		}
		if price.IsNegative() {
			return nil, apperror.NewValidation("variation price must not be negative: " + label)
		}

		combos = append(combos, domain.VariationCombination{
			ID:         xid.Short(12),
			SKU:        sku,
			Label:      label,
			Attributes: in.Attributes,
			Price:      price,
			Stock:      in.Stock,
			Active:     true,
		})
	}
	return combos, nil
}

// combinationSKU appends the attribute values: KAOS + {Size: M, Color: Red} -> KAOS-M-RED.
func combinationSKU(base string, attrs domain.Variations) string {
	parts := make([]string, 0, len(attrs)+1)
	parts = append(parts, base)
	for _, attr := range attrs {
		value := strings.ToUpper(strings.Join(strings.Fields(attr.Value), ""))
		if value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, "-")
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Cost != nil {
		product.Cost = *req.Cost
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if product.Name == "" || product.Category == "" {
		return domain.Product{}, apperror.NewValidation("name and category are required")
	}
	if product.Price.IsNegative() || product.Cost.IsNegative() {
		return domain.Product{}, apperror.NewValidation("price and cost must not be negative")
	}

	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	updated, err := s.repo.UpdateProduct(writeCtx, product)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, apperror.NewProductNotFound(id)
		}
		return domain.Product{}, translateStoreError(err, "product", id)
	}

	s.logAudit(ctx, "product_update", "product", updated.ID,
		fmt.Sprintf("price=%s,category=%s,active=%t", updated.Price.StringFixed(2), updated.Category, updated.Active))
	return *updated, nil
}
