package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/testutil"
)

func TestWebhookEventRepository_Claim(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	claimed, err := repo.Claim(ctx, model.ProviderStripe, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, model.ProviderStripe, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.False(t, claimed)

	// 不同渠道的同名事件互不影响
	claimed, err = repo.Claim(ctx, model.ProviderCreem, "evt_1", "subscription.paid")
	require.NoError(t, err)
	assert.True(t, claimed)

	var count int64
	require.NoError(t, db.Model(&model.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestWebhookEventRepository_DeleteBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	old := &model.WebhookEvent{
		Provider:    model.ProviderStripe,
		EventID:     "evt_old",
		EventType:   "invoice.paid",
		ProcessedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(old).Error)
	_, err := repo.Claim(ctx, model.ProviderStripe, "evt_new", "invoice.paid")
	require.NoError(t, err)

	cutoff := time.Now().Add(-24 * time.Hour)
	count, err := repo.CountBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	deleted, err := repo.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var left []model.WebhookEvent
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, "evt_new", left[0].EventID)
}
