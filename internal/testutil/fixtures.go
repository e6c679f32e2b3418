package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/internal/model"
)

var seq int64

func next() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := next()
	user := &model.User{
		Email:   fmt.Sprintf("test_%d_%d@example.com", time.Now().UnixNano(), n),
		Name:    fmt.Sprintf("testuser_%d", n),
		Avatar:  "https://example.com/avatar.png",
		Credits: 0,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUserID 指定用户 ID
func WithUserID(id string) func(*model.User) {
	return func(u *model.User) {
		u.ID = id
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithName 设置昵称
func WithName(name string) func(*model.User) {
	return func(u *model.User) {
		u.Name = name
	}
}

// WithCredits 设置积分
func WithCredits(credits int64) func(*model.User) {
	return func(u *model.User) {
		u.Credits = credits
	}
}

// TestSubscription 创建测试订阅，默认 stripe monthly-pro active
func TestSubscription(t *testing.T, db *gorm.DB, userID string, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	now := time.Now()
	n := next()
	sub := &model.Subscription{
		UserID:                 userID,
		Provider:               model.ProviderStripe,
		ProviderSubscriptionID: fmt.Sprintf("sub_test_%d", n),
		ProviderCustomerID:     fmt.Sprintf("cus_test_%d", n),
		BillingPeriod:          model.PeriodMonthly,
		PlanTier:               "pro",
		Status:                 model.StatusActive,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       now.AddDate(0, 0, 30),
		CreditsPerPeriod:       1500,
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithProvider 设置渠道
func WithProvider(provider string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Provider = provider
	}
}

// WithProviderSubscriptionID 设置渠道订阅 ID
func WithProviderSubscriptionID(id string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.ProviderSubscriptionID = id
	}
}

// WithCustomerID 设置渠道客户 ID
func WithCustomerID(id string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.ProviderCustomerID = id
	}
}

// WithStatus 设置订阅状态
func WithStatus(status string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Status = status
	}
}

// WithPlan 设置周期、档位和每期积分
func WithPlan(period, tier string, credits int64) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.BillingPeriod = period
		s.PlanTier = tier
		s.CreditsPerPeriod = credits
	}
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.CreatedAt = at
	}
}

// TestGeneration 创建测试生成记录
func TestGeneration(t *testing.T, db *gorm.DB, userID string, createdAt time.Time) *model.GenerationHistory {
	t.Helper()

	n := next()
	record := &model.GenerationHistory{
		UserID:      userID,
		URL:         fmt.Sprintf("https://cdn.example.com/%d.png", n),
		Prompt:      fmt.Sprintf("prompt %d", n),
		AspectRatio: "1:1",
		Model:       "flux-schnell",
		CreditsUsed: 1,
		CreatedAt:   createdAt,
	}

	if err := db.Create(record).Error; err != nil {
		t.Fatalf("Failed to create test generation: %v", err)
	}

	return record
}
