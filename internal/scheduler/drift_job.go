package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/internal/service"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/robfig/cron/v3"
)

// DriftChecker is satisfied by *service.DriftChecker.
type DriftChecker interface {
	Check(ctx context.Context) (*service.DriftReport, error)
}

type DriftScheduler struct {
	cron     *cron.Cron
	checker  DriftChecker
	cronExpr string
	timeout  time.Duration
	running  int32
}

func NewDriftScheduler(checker DriftChecker, cronExpr string) *DriftScheduler {
	return &DriftScheduler{
		cron:     cron.New(cron.WithSeconds()),
		checker:  checker,
		cronExpr: cronExpr,
		timeout:  5 * time.Minute,
	}
}

func (s *DriftScheduler) Start() error {
	_, err := s.cron.AddFunc(s.cronExpr, s.runCheck)
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.WithFields(map[string]interface{}{
		"cron": s.cronExpr,
	}).Info("Drift check scheduler started")
	return nil
}

func (s *DriftScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Drift check scheduler stopped")
}

func (s *DriftScheduler) runCheck() {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		logger.Warn("Previous drift check still running, skipping")
		return
	}
	defer atomic.StoreInt32(&s.running, 0)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.checker.Check(ctx); err != nil {
		logger.WithError(err).Error("Drift check failed")
	}
}

// TriggerManualCheck runs one check synchronously.
func (s *DriftScheduler) TriggerManualCheck(ctx context.Context) (*service.DriftReport, error) {
	return s.checker.Check(ctx)
}
