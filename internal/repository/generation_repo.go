package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/internal/model"
)

type GenerationRepository struct {
	db *gorm.DB
}

func NewGenerationRepository(db *gorm.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(ctx context.Context, record *model.GenerationHistory) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByUser 按创建时间倒序分页
func (r *GenerationRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]*model.GenerationHistory, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.GenerationHistory{}).Where("user_id = ?", userID).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var records []*model.GenerationHistory
	err = r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
