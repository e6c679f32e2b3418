package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/model/dto"
	"github.com/qs3c/credit_go_server/internal/repository"
)

type UserService struct {
	userRepo *repository.UserRepository
	subRepo  *repository.SubscriptionRepository
	genRepo  *repository.GenerationRepository
	ledger   *CreditLedger
}

func NewUserService(userRepo *repository.UserRepository, subRepo *repository.SubscriptionRepository, genRepo *repository.GenerationRepository) *UserService {
	return &UserService{
		userRepo: userRepo,
		subRepo:  subRepo,
		genRepo:  genRepo,
		ledger:   NewCreditLedger(userRepo),
	}
}

// GetCredits 积分余额
func (s *UserService) GetCredits(ctx context.Context, userID string) (*dto.CreditsResponse, error) {
	credits, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.CreditsResponse{Credits: credits}, nil
}

// GetDashboard 用户信息和最近一条有效订阅
func (s *UserService) GetDashboard(ctx context.Context, userID string) (*dto.DashboardResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	resp := &dto.DashboardResponse{User: buildUserInfo(user)}

	sub, err := s.subRepo.GetLatestByUser(ctx, userID, model.CurrentStatuses)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if sub != nil {
		resp.Subscription = buildSubscriptionInfo(sub)
		resp.HasPaidPlan = true
	}
	return resp, nil
}

// ListHistory 生成记录，按时间倒序
func (s *UserService) ListHistory(ctx context.Context, userID string, page, limit int) ([]*dto.HistoryItem, int64, error) {
	records, total, err := s.genRepo.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, &dto.HistoryItem{
			ID:          r.ID,
			URL:         r.URL,
			Prompt:      r.Prompt,
			AspectRatio: r.AspectRatio,
			Model:       r.Model,
			CreditsUsed: r.CreditsUsed,
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		})
	}
	return items, total, nil
}

func buildSubscriptionInfo(sub *model.Subscription) *dto.SubscriptionInfo {
	info := &dto.SubscriptionInfo{
		Provider:          sub.Provider,
		PlanName:          sub.PlanName(),
		BillingPeriod:     sub.BillingPeriod,
		PlanTier:          sub.PlanTier,
		Status:            sub.Status,
		CreditsPerPeriod:  sub.CreditsPerPeriod,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		info.CurrentPeriodEnd = sub.CurrentPeriodEnd.Format(time.RFC3339)
	}
	return info
}
