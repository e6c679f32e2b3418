package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/credit_go_server/internal/model"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Claim 记录事件已处理；同一 (provider, event_id) 已存在时返回 false
func (r *WebhookEventRepository) Claim(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	event := &model.WebhookEvent{
		Provider:    provider,
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *WebhookEventRepository) CountBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).Where("processed_at < ?", cutoff).Count(&count).Error
	return count, err
}

// DeleteBefore 删除 cutoff 之前处理的事件记录，返回删除条数
func (r *WebhookEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("processed_at < ?", cutoff).Delete(&model.WebhookEvent{})
	return result.RowsAffected, result.Error
}
