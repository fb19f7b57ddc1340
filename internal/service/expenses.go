package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/xid"
)

func (s *Service) ListExpenses(ctx context.Context, category string, limit int) ([]domain.Expense, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	expenses, err := s.repo.ListExpenses(readCtx, strings.TrimSpace(category), limit)
	if err != nil {
		return nil, translateStoreError(err, "expense", "")
	}
	return expenses, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return domain.Expense{}, err
	}
	if err := s.normalizeExpense(&req); err != nil {
		return domain.Expense{}, err
	}

	now := s.now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}
	writeCtx, cancel := s.storageCtx(ctx)
	created, err := s.repo.CreateExpense(writeCtx, domain.Expense{
		ID:          xid.New("exp"),
		Description: req.Description,
		Category:    req.Category,
		Amount:      req.Amount,
		Date:        date,
		ReceiptURL:  req.ReceiptURL,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	cancel()
	if err != nil {
		return domain.Expense{}, translateStoreError(err, "expense", "")
	}

	s.logAudit(ctx, "expense_create", "expense", created.ID,
		fmt.Sprintf("category=%s,amount=%s", created.Category, created.Amount.StringFixed(2)))
	return *created, nil
}

// UpdateExpense replaces the expense. A receipt that is no longer referenced
// is removed from the media store after the write, best effort.
func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseRequest) (domain.Expense, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Expense{}, err
	}
	if err := s.normalizeExpense(&req); err != nil {
		return domain.Expense{}, err
	}

	readCtx, cancel := s.storageCtx(ctx)
	existing, err := s.repo.GetExpense(readCtx, id)
	cancel()
	if err != nil {
		return domain.Expense{}, translateStoreError(err, "expense", id)
	}

	next := *existing
	next.Description = req.Description
	next.Category = req.Category
	next.Amount = req.Amount
	next.ReceiptURL = req.ReceiptURL
	if req.Date != nil {
		next.Date = req.Date.UTC()
	}
	next.UpdatedAt = s.now()

	writeCtx, cancel := s.storageCtx(ctx)
	updated, err := s.repo.UpdateExpense(writeCtx, next)
	cancel()
	if err != nil {
		return domain.Expense{}, translateStoreError(err, "expense", id)
	}

	if existing.ReceiptURL != "" && existing.ReceiptURL != updated.ReceiptURL {
		s.discardMedia(ctx, existing.ReceiptURL)
	}
	s.logAudit(ctx, "expense_update", "expense", updated.ID,
		fmt.Sprintf("category=%s,amount=%s", updated.Category, updated.Amount.StringFixed(2)))
	return *updated, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return err
	}

	readCtx, cancel := s.storageCtx(ctx)
	existing, err := s.repo.GetExpense(readCtx, id)
	cancel()
	if err != nil {
		return translateStoreError(err, "expense", id)
	}

	writeCtx, cancel := s.storageCtx(ctx)
	err = s.repo.DeleteExpense(writeCtx, id)
	cancel()
	if err != nil {
		return translateStoreError(err, "expense", id)
	}

	if existing.ReceiptURL != "" {
		s.discardMedia(ctx, existing.ReceiptURL)
	}
	s.logAudit(ctx, "expense_delete", "expense", id, "category="+existing.Category)
	return nil
}

func (s *Service) normalizeExpense(req *domain.ExpenseRequest) error {
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	req.ReceiptURL = strings.TrimSpace(req.ReceiptURL)
	if err := s.check(*req); err != nil {
		return err
	}
	if !req.Amount.IsPositive() {
		return apperror.NewValidation("amount must be greater than 0")
	}
	return nil
}

// Upload stores a file in the media store and returns its public URL.
func (s *Service) Upload(ctx context.Context, name string, contentType string, body io.Reader, size int64) (domain.UploadResult, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.UploadResult{}, apperror.NewUnauthorized("authentication required")
	}
	if strings.TrimSpace(name) == "" {
		return domain.UploadResult{}, apperror.NewValidation("file name is required")
	}

	result, err := s.media.Upload(ctx, name, contentType, body, size)
	if err != nil {
		return domain.UploadResult{}, apperror.NewInternal(err)
	}
	s.logAudit(ctx, "media_upload", "media", result.Key, fmt.Sprintf("size=%d,type=%s", result.Size, result.ContentType))
	return *result, nil
}

// discardMedia never fails the caller; errors are only logged.
func (s *Service) discardMedia(ctx context.Context, url string) {
	key, ok := s.media.OpaqueIDFromURL(url)
	if !ok {
		logger.Debug(ctx, "receipt url not managed by media store", "url", url)
		return
	}
	deleteCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	if err := s.media.Delete(deleteCtx, key); err != nil {
		logger.Warn(ctx, "failed to delete media", "key", key, "error", err)
	}
}
