package service

import (
	"context"
	"fmt"
	"strings"

	"kasirpos/backend/internal/domain"
)

// loadSettings is read once per engine call.
func (s *Service) loadSettings(ctx context.Context) (domain.Settings, error) {
	readCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	settings, err := s.repo.GetSettings(readCtx)
	if err != nil {
		return domain.Settings{}, translateStoreError(err, "settings", "")
	}
	return settings, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.loadSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Settings{}, err
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if req.StoreName != nil {
		settings.StoreName = strings.TrimSpace(*req.StoreName)
	}
	if req.ReceiptFooter != nil {
		settings.ReceiptFooter = strings.TrimSpace(*req.ReceiptFooter)
	}
	if req.OverrideOutOfStock != nil {
		settings.OverrideOutOfStock = *req.OverrideOutOfStock
	}
	settings.UpdatedAt = s.now()

	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	saved, err := s.repo.SaveSettings(writeCtx, settings)
	if err != nil {
		return domain.Settings{}, translateStoreError(err, "settings", "")
	}

	s.logAudit(ctx, "settings_update", "settings", "store", fmt.Sprintf("override_out_of_stock=%t", saved.OverrideOutOfStock))
	return saved, nil
}
