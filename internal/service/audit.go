package service

import (
	"context"

	"kasirpos/backend/internal/domain"
)

// ListAuditLogs returns the entries of one UTC day, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	from, to, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 1000 {
		limit = 200
	}

	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	logs, err := s.repo.ListAuditLogs(readCtx, from, to, limit)
	if err != nil {
		return nil, translateStoreError(err, "audit log", "")
	}
	return logs, nil
}
