package biz

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
)

// QuotaUsecase manages the monthly classification call allowance.
type QuotaUsecase struct {
	guilds GuildRepo
	log    *log.Helper
}

// NewQuotaUsecase creates a new QuotaUsecase.
func NewQuotaUsecase(guilds GuildRepo, logger log.Logger) *QuotaUsecase {
	return &QuotaUsecase{guilds: guilds, log: log.NewHelper(logger)}
}

// ResetMonthlyCalls zeroes every community's call counter.
func (uc *QuotaUsecase) ResetMonthlyCalls(ctx context.Context) error {
	if err := uc.guilds.ResetCalls(ctx); err != nil {
		uc.log.Errorf("reset monthly calls: %v", err)
		return err
	}
	uc.log.Info("monthly classification calls reset")
	return nil
}
