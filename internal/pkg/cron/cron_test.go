package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/pkg/logger"
	"github.com/qs3c/credit_go_server/internal/repository"
	"github.com/qs3c/credit_go_server/internal/testutil"
)

func setupCronService(t *testing.T, retentionHours int) (*Service, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	svc := NewService(repository.NewWebhookEventRepository(db), retentionHours, logger.Discard())

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return svc, db, cleanup
}

func insertEvent(t *testing.T, db *gorm.DB, id string, processedAt time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&model.WebhookEvent{
		Provider:    model.ProviderStripe,
		EventID:     id,
		EventType:   "invoice.paid",
		ProcessedAt: processedAt,
	}).Error)
}

func TestNewService_DefaultRetention(t *testing.T) {
	svc := NewService(nil, 0, logger.Discard())
	assert.Equal(t, 720*time.Hour, svc.retention)
	assert.Equal(t, time.Hour, svc.interval)
	assert.NotNil(t, svc.stopChan)
}

func TestService_RunNow(t *testing.T) {
	svc, db, cleanup := setupCronService(t, 24)
	defer cleanup()

	now := time.Now()
	insertEvent(t, db, "evt_old_1", now.Add(-48*time.Hour))
	insertEvent(t, db, "evt_old_2", now.Add(-25*time.Hour))
	insertEvent(t, db, "evt_recent", now.Add(-time.Hour))

	deleted, err := svc.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining []model.WebhookEvent
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "evt_recent", remaining[0].EventID)
}

func TestService_RunNow_NoEvents(t *testing.T) {
	svc, _, cleanup := setupCronService(t, 24)
	defer cleanup()

	deleted, err := svc.RunNow(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

type failingPruner struct{}

func (failingPruner) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestService_RunNow_Error(t *testing.T) {
	svc := NewService(failingPruner{}, 1, logger.Discard())

	_, err := svc.RunNow(context.Background())
	assert.Error(t, err)
}

type countingPruner struct {
	calls atomic.Int64
}

func (p *countingPruner) DeleteBefore(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 0, nil
}

func TestService_StartTicksAndStops(t *testing.T) {
	pruner := &countingPruner{}
	svc := NewService(pruner, 1, logger.Discard())
	svc.interval = 5 * time.Millisecond

	svc.Start()
	require.Eventually(t, func() bool { return pruner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	svc.Stop()

	calls := pruner.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, pruner.calls.Load())
}

func TestService_StopTwice(t *testing.T) {
	svc := NewService(&countingPruner{}, 1, logger.Discard())

	// 未启动时停止也不会 panic
	svc.Stop()
	svc.Stop()
}
