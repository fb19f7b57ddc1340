package service

import (
	"context"
	"fmt"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/sequence"
)

// InvoiceCounterStatus previews the next invoice number. The preview is not
// reserved; a concurrent sale may take it first.
func (s *Service) InvoiceCounterStatus(ctx context.Context) (domain.InvoiceCounterStatus, error) {
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()

	next, err := s.invoices.Preview(readCtx, sequence.InvoiceSequence, s.format)
	if err != nil {
		return domain.InvoiceCounterStatus{}, err
	}
	count, err := s.repo.CountSales(readCtx)
	if err != nil {
		return domain.InvoiceCounterStatus{}, translateStoreError(err, "sale", "")
	}
	return domain.InvoiceCounterStatus{NextInvoiceNumber: next, TotalSalesCount: count}, nil
}

// InitInvoiceCounter seeds the counter from existing sales when it is absent
// and otherwise reports its value unchanged.
func (s *Service) InitInvoiceCounter(ctx context.Context) (domain.InvoiceCounterInit, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.InvoiceCounterInit{}, err
	}

	initCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	value, err := s.invoices.Initialize(initCtx, sequence.InvoiceSequence)
	if err != nil {
		return domain.InvoiceCounterInit{}, err
	}

	s.logAudit(ctx, "invoice_counter_init", "sequence", sequence.InvoiceSequence, fmt.Sprintf("value=%d", value))
	return domain.InvoiceCounterInit{CurrentSequence: value}, nil
}
