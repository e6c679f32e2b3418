package model

import (
	"time"
)

// WebhookEvent 已处理的渠道事件，与状态变更在同一事务内写入
type WebhookEvent struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Provider    string    `gorm:"size:20;not null;uniqueIndex:idx_provider_event" json:"provider"`
	EventID     string    `gorm:"size:255;not null;uniqueIndex:idx_provider_event" json:"event_id"`
	EventType   string    `gorm:"size:100;not null" json:"event_type"`
	ProcessedAt time.Time `gorm:"not null;index" json:"processed_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
