package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	customers, err := s.repo.ListCustomers(readCtx)
	if err != nil {
		return nil, translateStoreError(err, "customer", "")
	}
	return customers, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	customer, err := s.repo.GetCustomer(readCtx, id)
	if err != nil {
		return domain.Customer{}, translateStoreError(err, "customer", id)
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Customer{}, apperror.NewUnauthorized("authentication required")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	created, err := s.repo.CreateCustomer(writeCtx, domain.Customer{
		ID:             xid.New("cus"),
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		TotalPurchases: decimal.Zero,
		CreatedAt:      s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Customer{}, apperror.NewDuplicate("customer", "phone", req.Phone)
		}
		return domain.Customer{}, translateStoreError(err, "customer", "")
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}
