package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/internal/repository"
)

var (
	ErrUserNotFound  = errors.New("用户不存在")
	ErrInvalidAmount = errors.New("积分数量必须大于 0")
)

// CreditLedger 积分只增不减，扣减发生在生成服务
type CreditLedger struct {
	users *repository.UserRepository
}

func NewCreditLedger(users *repository.UserRepository) *CreditLedger {
	return &CreditLedger{users: users}
}

// Grant 原子增加积分并返回新余额
func (l *CreditLedger) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	if err := l.users.AddCredits(ctx, userID, amount); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("add credits: %w", err)
	}

	balance, err := l.users.GetCredits(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

func (l *CreditLedger) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := l.users.GetCredits(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	return balance, err
}
