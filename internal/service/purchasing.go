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

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}

	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	saved, err := s.repo.CreateSupplier(writeCtx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, translateStoreError(err, "supplier", "")
	}

	s.logAudit(ctx, "supplier_create", "supplier", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	suppliers, err := s.repo.ListSuppliers(readCtx)
	if err != nil {
		return nil, translateStoreError(err, "supplier", "")
	}
	return suppliers, nil
}

// CreatePurchaseOrder records a draft order. Every line must name an existing
// product, and an existing combination when it names one.
func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if err := s.check(req); err != nil {
		return domain.PurchaseOrder{}, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.UnitCost.IsNegative() {
			return domain.PurchaseOrder{}, apperror.NewValidation("unit cost must not be negative")
		}
		ids = append(ids, item.ProductID)
	}
	readCtx, cancel := s.storageCtx(ctx)
	products, err := s.repo.GetProductsByIDs(readCtx, ids)
	cancel()
	if err != nil {
		return domain.PurchaseOrder{}, translateStoreError(err, "product", "")
	}
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return domain.PurchaseOrder{}, apperror.NewProductNotFound(item.ProductID)
		}
		if item.VariationCombinationID != "" {
			if _, ok := product.Combination(item.VariationCombinationID); !ok {
				return domain.PurchaseOrder{}, apperror.NewVariationNotFound(product.Name, product.ID, item.VariationCombinationID)
			}
		}
	}

	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	saved, err := s.repo.CreatePurchaseOrder(writeCtx, domain.PurchaseOrder{
		ID:         xid.New("po"),
		SupplierID: req.SupplierID,
		Status:     domain.PurchaseOrderDraft,
		CreatedBy:  actor.UserID,
		CreatedAt:  s.now(),
		Items:      req.Items,
	})
	if err != nil {
		return domain.PurchaseOrder{}, translateStoreError(err, "purchase order", "")
	}

	s.logAudit(ctx, "purchase_order_create", "purchase_order", saved.ID, fmt.Sprintf("items=%d", len(saved.Items)))
	return *saved, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string) ([]domain.PurchaseOrder, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	orders, err := s.repo.ListPurchaseOrders(readCtx, status, 200)
	if err != nil {
		return nil, translateStoreError(err, "purchase order", "")
	}
	return orders, nil
}

// ReceivePurchaseOrder books the ordered quantities into stock as atomic
// increments and marks the order received.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	readCtx, cancel := s.storageCtx(ctx)
	po, err := s.repo.GetPurchaseOrderByID(readCtx, purchaseOrderID)
	cancel()
	if err != nil {
		return domain.PurchaseOrder{}, translateStoreError(err, "purchase order", purchaseOrderID)
	}
	if po.Status == domain.PurchaseOrderReceived {
		return domain.PurchaseOrder{}, apperror.NewValidation("purchase order already received")
	}

	receivedBy := actor.DisplayName
	if receivedBy == "" {
		receivedBy = actor.UserID
	}
	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	received, err := s.repo.ReceivePurchaseOrder(writeCtx, purchaseOrderID, receivedBy, s.now())
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return domain.PurchaseOrder{}, apperror.NewValidation("purchase order already received")
		}
		return domain.PurchaseOrder{}, translateStoreError(err, "purchase order", purchaseOrderID)
	}

	s.logAudit(ctx, "purchase_order_receive", "purchase_order", received.ID, fmt.Sprintf("received_by=%s", receivedBy))
	return *received, nil
}
