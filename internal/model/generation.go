package model

import (
	"time"
)

type GenerationHistory struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"size:36;not null;index" json:"user_id"`
	URL         string    `gorm:"size:1000;not null" json:"url"`
	Prompt      string    `gorm:"type:text" json:"prompt"`
	AspectRatio string    `gorm:"size:20" json:"aspect_ratio"`
	Model       string    `gorm:"size:100" json:"model"`
	CreditsUsed int64     `gorm:"default:0" json:"credits_used"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (GenerationHistory) TableName() string {
	return "generation_history"
}
