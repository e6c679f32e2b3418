package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/config"
	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/model/dto"
	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/repository"
)

var (
	ErrUnknownProvider    = errors.New("不支持的支付渠道")
	ErrAlreadySubscribed  = errors.New("已有生效中的订阅")
	ErrNoSubscription     = errors.New("未找到订阅")
	ErrPlanNotPurchasable = errors.New("套餐未配置价格")
	ErrProviderFailed     = errors.New("支付服务异常")
)

// 可以打开客户中心的订阅状态
var portalStatuses = []string{model.StatusActive, model.StatusTrialing, model.StatusPastDue, model.StatusCanceled}

type BillingService struct {
	userRepo  *repository.UserRepository
	subRepo   *repository.SubscriptionRepository
	catalog   *PlanCatalog
	providers map[string]payment.Provider
	cfg       *config.Config
	logger    *slog.Logger
}

func NewBillingService(
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	catalog *PlanCatalog,
	providers []payment.Provider,
	cfg *config.Config,
	logger *slog.Logger,
) *BillingService {
	m := make(map[string]payment.Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &BillingService{
		userRepo:  userRepo,
		subRepo:   subRepo,
		catalog:   catalog,
		providers: m,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *BillingService) provider(name string) (payment.Provider, error) {
	if name == "" {
		name = s.cfg.Billing.Provider
	}
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// CreateCheckout 创建支付会话；已有有效订阅时不允许再次订阅
func (s *BillingService) CreateCheckout(ctx context.Context, userID, email string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	provider, err := s.provider(req.Provider)
	if err != nil {
		return nil, err
	}

	plan, err := s.catalog.Lookup(provider.Name(), req.BillingPeriod, req.PlanTier)
	if err != nil {
		return nil, err
	}
	if plan.PriceID == "" {
		return nil, ErrPlanNotPurchasable
	}

	user, err := s.ensureUser(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	userID = user.ID

	if plan.Recurring() {
		_, err := s.subRepo.GetLatestByUser(ctx, userID, model.CurrentStatuses)
		if err == nil {
			return nil, ErrAlreadySubscribed
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	base := strings.TrimRight(s.cfg.App.BaseURL, "/")
	session, err := provider.CreateCheckout(ctx, payment.CheckoutParams{
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		PriceID:       plan.PriceID,
		BillingPeriod: plan.Period,
		PlanTier:      plan.Tier,
		Credits:       plan.Credits,
		Recurring:     plan.Recurring(),
		SuccessURL:    base + "/?success=true",
		CancelURL:     base + "/?canceled=true",
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w: %w", ErrProviderFailed, err)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"user_id", user.ID, "provider", provider.Name(), "plan", plan.Period+"-"+plan.Tier, "session_id", session.ID)

	return &dto.CheckoutResponse{
		SessionID: session.ID,
		URL:       session.URL,
		Provider:  provider.Name(),
	}, nil
}

// ensureUser 登录态对应的用户行不存在时补建，赠送少量积分
func (s *BillingService) ensureUser(ctx context.Context, userID, email string) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrUserNotFound
	}
	if existing, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return existing, nil
	}

	user = &model.User{
		ID:      userID,
		Email:   email,
		Credits: s.cfg.Billing.CheckoutSignupCredits,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.userRepo.GetByEmail(ctx, email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "user created at checkout", "user_id", user.ID, "credits", user.Credits)
	return user, nil
}

// CreatePortal 客户中心，按最近一条订阅的渠道客户打开
func (s *BillingService) CreatePortal(ctx context.Context, userID string, req *dto.PortalRequest) (*dto.PortalResponse, error) {
	var (
		sub *model.Subscription
		err error
	)
	if req.Provider != "" {
		sub, err = s.subRepo.GetLatestByUserAndProvider(ctx, userID, strings.ToLower(req.Provider), portalStatuses)
	} else {
		sub, err = s.subRepo.GetLatestByUser(ctx, userID, portalStatuses)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}
	if sub.ProviderCustomerID == "" {
		return nil, ErrNoSubscription
	}

	provider, err := s.provider(sub.Provider)
	if err != nil {
		return nil, err
	}

	returnURL := strings.TrimRight(s.cfg.App.BaseURL, "/") + "/dashboard"
	url, err := provider.CreatePortal(ctx, sub.ProviderCustomerID, returnURL)
	if err != nil {
		return nil, fmt.Errorf("create portal: %w: %w", ErrProviderFailed, err)
	}
	return &dto.PortalResponse{URL: url}, nil
}
