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

// Category counters are recomputed from live rows on every read, so they are
// never stale and repeated calls converge on the same values.

func (s *Service) RecomputeCategoryStats(ctx context.Context, category *domain.Category) error {
	statsCtx, cancel := s.storageCtx(ctx)
	defer cancel()

	count, err := s.repo.CountProductsInCategory(statsCtx, category.Name)
	if err != nil {
		return translateStoreError(err, "category", category.ID)
	}
	if err := s.repo.SaveCategoryStats(statsCtx, category.ID, count); err != nil {
		return translateStoreError(err, "category", category.ID)
	}
	category.ProductCount = count
	return nil
}

func (s *Service) RecomputeExpenseCategoryStats(ctx context.Context, category *domain.ExpenseCategory) error {
	statsCtx, cancel := s.storageCtx(ctx)
	defer cancel()

	count, total, err := s.repo.SumExpensesInCategory(statsCtx, category.Name)
	if err != nil {
		return translateStoreError(err, "expense category", category.ID)
	}
	if err := s.repo.SaveExpenseCategoryStats(statsCtx, category.ID, count, total); err != nil {
		return translateStoreError(err, "expense category", category.ID)
	}
	category.ExpenseCount = count
	category.TotalAmount = total
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	readCtx, cancel := s.storageCtx(ctx)
	categories, err := s.repo.ListCategories(readCtx)
	cancel()
	if err != nil {
		return nil, translateStoreError(err, "category", "")
	}
	for i := range categories {
		if err := s.RecomputeCategoryStats(ctx, &categories[i]); err != nil {
			return nil, err
		}
	}
	return categories, nil
}

func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	readCtx, cancel := s.storageCtx(ctx)
	category, err := s.repo.GetCategory(readCtx, id)
	cancel()
	if err != nil {
		return domain.Category{}, translateStoreError(err, "category", id)
	}
	if err := s.RecomputeCategoryStats(ctx, category); err != nil {
		return domain.Category{}, err
	}
	return *category, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}

	now := s.now()
	writeCtx, cancel := s.storageCtx(ctx)
	created, err := s.repo.CreateCategory(writeCtx, domain.Category{
		ID:          xid.New("cat"),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Category{}, apperror.NewDuplicate("category", "name", req.Name)
		}
		return domain.Category{}, translateStoreError(err, "category", "")
	}
	if err := s.RecomputeCategoryStats(ctx, created); err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

// UpdateCategory renames products that carry the old name in the same write.
func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryRequest) (domain.Category, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}

	readCtx, cancel := s.storageCtx(ctx)
	existing, err := s.repo.GetCategory(readCtx, id)
	cancel()
	if err != nil {
		return domain.Category{}, translateStoreError(err, "category", id)
	}

	oldName := existing.Name
	next := *existing
	next.Name = req.Name
	next.Description = req.Description
	next.UpdatedAt = s.now()

	writeCtx, cancel := s.storageCtx(ctx)
	updated, err := s.repo.UpdateCategory(writeCtx, next, oldName)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Category{}, apperror.NewDuplicate("category", "name", req.Name)
		}
		return domain.Category{}, translateStoreError(err, "category", id)
	}
	if err := s.RecomputeCategoryStats(ctx, updated); err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_update", "category", updated.ID, fmt.Sprintf("name=%s,previous=%s", updated.Name, oldName))
	return *updated, nil
}

func (s *Service) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	readCtx, cancel := s.storageCtx(ctx)
	categories, err := s.repo.ListExpenseCategories(readCtx)
	cancel()
	if err != nil {
		return nil, translateStoreError(err, "expense category", "")
	}
	for i := range categories {
		if err := s.RecomputeExpenseCategoryStats(ctx, &categories[i]); err != nil {
			return nil, err
		}
	}
	return categories, nil
}

func (s *Service) GetExpenseCategory(ctx context.Context, id string) (domain.ExpenseCategory, error) {
	readCtx, cancel := s.storageCtx(ctx)
	category, err := s.repo.GetExpenseCategory(readCtx, id)
	cancel()
	if err != nil {
		return domain.ExpenseCategory{}, translateStoreError(err, "expense category", id)
	}
	if err := s.RecomputeExpenseCategoryStats(ctx, category); err != nil {
		return domain.ExpenseCategory{}, err
	}
	return *category, nil
}

func (s *Service) CreateExpenseCategory(ctx context.Context, req domain.CategoryRequest) (domain.ExpenseCategory, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.ExpenseCategory{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.ExpenseCategory{}, err
	}

	now := s.now()
	writeCtx, cancel := s.storageCtx(ctx)
	created, err := s.repo.CreateExpenseCategory(writeCtx, domain.ExpenseCategory{
		ID:          xid.New("ecat"),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ExpenseCategory{}, apperror.NewDuplicate("expense category", "name", req.Name)
		}
		return domain.ExpenseCategory{}, translateStoreError(err, "expense category", "")
	}
	if err := s.RecomputeExpenseCategoryStats(ctx, created); err != nil {
		return domain.ExpenseCategory{}, err
	}

	s.logAudit(ctx, "expense_category_create", "expense_category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateExpenseCategory(ctx context.Context, id string, req domain.CategoryRequest) (domain.ExpenseCategory, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.ExpenseCategory{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.ExpenseCategory{}, err
	}

	readCtx, cancel := s.storageCtx(ctx)
	existing, err := s.repo.GetExpenseCategory(readCtx, id)
	cancel()
	if err != nil {
		return domain.ExpenseCategory{}, translateStoreError(err, "expense category", id)
	}

	oldName := existing.Name
	next := *existing
	next.Name = req.Name
	next.Description = req.Description
	next.UpdatedAt = s.now()

	writeCtx, cancel := s.storageCtx(ctx)
	updated, err := s.repo.UpdateExpenseCategory(writeCtx, next, oldName)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ExpenseCategory{}, apperror.NewDuplicate("expense category", "name", req.Name)
		}
		return domain.ExpenseCategory{}, translateStoreError(err, "expense category", id)
	}
	if err := s.RecomputeExpenseCategoryStats(ctx, updated); err != nil {
		return domain.ExpenseCategory{}, err
	}

	s.logAudit(ctx, "expense_category_update", "expense_category", updated.ID, fmt.Sprintf("name=%s,previous=%s", updated.Name, oldName))
	return *updated, nil
}
