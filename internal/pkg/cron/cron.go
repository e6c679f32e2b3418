package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultInterval = time.Hour
	pruneTimeout    = time.Minute
)

// EventPruner 删除 cutoff 之前处理过的 webhook 事件
type EventPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service 定期清理 webhook 事件日志，保留时长需大于渠道的重投窗口
type Service struct {
	events    EventPruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewService(events EventPruner, retentionHours int, logger *slog.Logger) *Service {
	if retentionHours <= 0 {
		retentionHours = 720
	}
	return &Service{
		events:    events,
		retention: time.Duration(retentionHours) * time.Hour,
		interval:  defaultInterval,
		logger:    logger,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("cron service started", "interval", s.interval, "retention", s.retention)
}

// Stop 停止定时任务并等待当前清理结束，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.logger.Info("cron service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
			if _, err := s.RunNow(ctx); err != nil {
				s.logger.Error("webhook event prune failed", "error", err)
			}
			cancel()
		}
	}
}

// RunNow 立即清理一次（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("webhook events pruned", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}
