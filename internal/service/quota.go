package service

import (
	"context"

	"imagescan/internal/biz"
)

// QuotaService runs scheduled quota maintenance.
type QuotaService struct {
	uc *biz.QuotaUsecase
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(uc *biz.QuotaUsecase) *QuotaService {
	return &QuotaService{uc: uc}
}

// ResetMonthlyCalls is the cron entry point.
func (s *QuotaService) ResetMonthlyCalls() {
	_ = s.uc.ResetMonthlyCalls(context.Background())
}
