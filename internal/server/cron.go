package server

import (
	"context"
	"fmt"

	"imagescan/internal/conf"
	"imagescan/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

const defaultResetSpec = "@monthly"

// CronServer runs scheduled maintenance jobs.
type CronServer struct {
	cron *cron.Cron
	spec string
	job  func()
	log  *log.Helper
}

// NewCronServer creates a new CronServer.
func NewCronServer(c *conf.Quota, quota *service.QuotaService, logger log.Logger) *CronServer {
	spec := defaultResetSpec
	if c != nil && c.ResetSpec != "" {
		spec = c.ResetSpec
	}
	return &CronServer{
		cron: cron.New(),
		spec: spec,
		job:  quota.ResetMonthlyCalls,
		log:  log.NewHelper(logger),
	}
}

// Start schedules the quota reset.
func (s *CronServer) Start(context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, s.job); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cron.Start()
	s.log.Infof("[cron] quota reset scheduled: %s", s.spec)
	return nil
}

// Stop waits for a running job to complete.
func (s *CronServer) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		s.log.Info("[cron] stopped gracefully")
	case <-ctx.Done():
		s.log.Warn("[cron] stop timeout, forcing shutdown")
	}
	return nil
}
