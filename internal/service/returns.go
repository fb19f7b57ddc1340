package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/store"
)

const maxReturnAttempts = 3

// CreateReturn records a formal return against a sale. All lines validate
// before any is applied. A concurrent return on the same sale forces a reload
// and a fresh validation.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnRequest) (summary domain.ReturnSummary, err error) {
	ctx, span := s.startSpan(ctx, "CreateReturn",
		attribute.String("sale.id", req.SaleID), attribute.Int("return.lines", len(req.Items)))
	defer func() { endSpan(span, err) }()

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ReturnSummary{}, apperror.NewUnauthorized("authentication required")
	}
	if err := s.check(req); err != nil {
		return domain.ReturnSummary{}, err
	}
	refundMethod := strings.TrimSpace(req.RefundMethod)
	if refundMethod == "" {
		refundMethod = "cash"
	}

	for attempt := 1; ; attempt++ {
		summary, err = s.applyReturn(ctx, actor, req, refundMethod)
		if err == nil || !apperror.HasCode(err, apperror.CodeConcurrentModification) || attempt >= maxReturnAttempts {
			return summary, err
		}
		logger.Debug(ctx, "sale changed during return, retrying", "sale_id", req.SaleID, "attempt", attempt)
	}
}

func (s *Service) applyReturn(ctx context.Context, actor domain.Actor, req domain.ReturnRequest, refundMethod string) (domain.ReturnSummary, error) {
	readCtx, cancel := s.storageCtx(ctx)
	sale, err := s.repo.GetSale(readCtx, req.SaleID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ReturnSummary{}, apperror.NewSaleNotFound(req.SaleID)
		}
		return domain.ReturnSummary{}, translateStoreError(err, "sale", req.SaleID)
	}

	processedBy := actor.DisplayName
	if processedBy == "" {
		processedBy = actor.UserID
	}
	now := s.now()
	entries, refund, err := planReturn(*sale, req, processedBy, refundMethod, now)
	if err != nil {
		return domain.ReturnSummary{}, err
	}

	all := make([]domain.ReturnedItem, 0, len(sale.ReturnedItems)+len(entries))
	all = append(all, sale.ReturnedItems...)
	all = append(all, entries...)

	commitCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	updated, err := s.repo.CommitReturn(commitCtx, store.ReturnCommit{
		SaleID:          sale.ID,
		ExpectedVersion: sale.Version,
		Entries:         entries,
		Status:          returnStatus(sale.Status, sale.Items, all),
		RefundAmount:    refund,
		PointsToDeduct:  loyaltyPoints(refund),
		At:              now,
	})
	if err != nil {
		return domain.ReturnSummary{}, translateStoreError(err, "sale", sale.ID)
	}

	s.logAudit(ctx, "sale_return", "sale", sale.ID,
		fmt.Sprintf("invoice=%s,refund=%s,lines=%d,status=%s", sale.InvoiceNumber, refund.StringFixed(2), len(entries), updated.Status))

	return domain.ReturnSummary{
		SaleID:        updated.ID,
		InvoiceNumber: updated.InvoiceNumber,
		ReturnedItems: entries,
		TotalRefund:   refund,
		RefundMethod:  refundMethod,
		ProcessedBy:   processedBy,
		ProcessedAt:   now,
		Status:        updated.Status,
	}, nil
}

// soldLine is what a sale holds for one (product, combination) key.
type soldLine struct {
	first    domain.SaleItem
	quantity int
	total    decimal.Decimal
}

// planReturn validates every requested line against the sale and builds the
// entries to append, with their refund amounts.
func planReturn(sale domain.Sale, req domain.ReturnRequest, processedBy string, refundMethod string, at time.Time) ([]domain.ReturnedItem, decimal.Decimal, error) {
	sold := make(map[string]*soldLine, len(sale.Items))
	for _, item := range sale.Items {
		key := stockKey(item.ProductID, item.VariationCombinationID)
		line, ok := sold[key]
		if !ok {
			line = &soldLine{first: item}
			sold[key] = line
		}
		line.quantity += item.Quantity
		line.total = line.total.Add(item.TotalPrice)
	}

	returned := make(map[string]int, len(sale.ReturnedItems))
	for _, entry := range sale.ReturnedItems {
		returned[stockKey(entry.ProductID, entry.VariationCombinationID)] += entry.Quantity
	}

	entries := make([]domain.ReturnedItem, 0, len(req.Items))
	refund := decimal.Zero
	for _, line := range req.Items {
		// Keys only match exactly, so a flat line never matches a combination line.
		key := stockKey(line.ProductID, line.VariationCombinationID)
		original, ok := sold[key]
		if !ok {
			return nil, decimal.Zero, apperror.NewLineNotFound(line.ProductID, line.VariationCombinationID, line.VariationCombinationID != "")
		}

		remaining := original.quantity - returned[key]
		if line.Quantity > remaining {
			label := lineLabel(original.first.ProductName, original.first.Variations.Label())
			return nil, decimal.Zero, apperror.NewOverReturn(label, line.ProductID, line.VariationCombinationID,
				line.Quantity, max(0, remaining))
		}
		returned[key] += line.Quantity

		perUnit := original.total.Div(decimal.NewFromInt(int64(original.quantity)))
		lineRefund := perUnit.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		refund = refund.Add(lineRefund)

		reason := strings.TrimSpace(line.Reason)
		if reason == "" {
			reason = strings.TrimSpace(req.Reason)
		}
		entries = append(entries, domain.ReturnedItem{
			ProductID:              original.first.ProductID,
			ProductName:            original.first.ProductName,
			SKU:                    original.first.SKU,
			VariationCombinationID: original.first.VariationCombinationID,
			Variations:             original.first.Variations,
			Quantity:               line.Quantity,
			UnitPrice:              original.first.UnitPrice,
			TotalPrice:             lineRefund,
			Reason:                 reason,
			RefundMethod:           refundMethod,
			ProcessedBy:            processedBy,
			ReturnedAt:             at,
		})
	}
	return entries, refund, nil
}

// returnStatus compares cumulative returned quantity with sold quantity.
func returnStatus(current string, items []domain.SaleItem, returned []domain.ReturnedItem) string {
	var sold, back int
	for _, item := range items {
		sold += item.Quantity
	}
	for _, entry := range returned {
		back += entry.Quantity
	}
	switch {
	case back >= sold && back > 0:
		return domain.SaleStatusRefunded
	case back > 0:
		return domain.SaleStatusPartial
	default:
		return current
	}
}
