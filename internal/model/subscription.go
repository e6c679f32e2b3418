package model

import (
	"time"
)

// 支付渠道
const (
	ProviderStripe = "stripe"
	ProviderCreem  = "creem"
)

// 计费周期
const (
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
	PeriodOneTime = "oneTime"
)

// 订阅状态，canceled 为渠道上报的原值，cancelled 为本地取消后写入的终态
const (
	StatusActive    = "active"
	StatusTrialing  = "trialing"
	StatusPastDue   = "past_due"
	StatusCanceled  = "canceled"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// CurrentStatuses 仍视为有效订阅的状态
var CurrentStatuses = []string{StatusActive, StatusTrialing, StatusPastDue}

type Subscription struct {
	ID                     int64      `gorm:"primaryKey" json:"id"`
	UserID                 string     `gorm:"size:36;not null;index" json:"user_id"`
	Provider               string     `gorm:"size:20;not null;uniqueIndex:idx_provider_subscription" json:"provider"`
	ProviderSubscriptionID string     `gorm:"size:255;not null;uniqueIndex:idx_provider_subscription" json:"provider_subscription_id"`
	ProviderCustomerID     string     `gorm:"size:255;index" json:"provider_customer_id"`
	ProviderPriceID        string     `gorm:"size:255" json:"provider_price_id"`
	BillingPeriod          string     `gorm:"size:20;not null" json:"billing_period"`
	PlanTier               string     `gorm:"size:20;not null" json:"plan_tier"`
	Status                 string     `gorm:"size:20;not null;index" json:"status"`
	CurrentPeriodStart     time.Time  `json:"current_period_start"`
	CurrentPeriodEnd       time.Time  `json:"current_period_end"`
	CreditsPerPeriod       int64      `gorm:"not null;default:0" json:"credits_per_period"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CancelAt               *time.Time `json:"cancel_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// PlanName 展示用的套餐名，例如 yearly-pro
func (s *Subscription) PlanName() string {
	return s.BillingPeriod + "-" + s.PlanTier
}

// IsCurrent 是否为有效订阅
func (s *Subscription) IsCurrent() bool {
	return IsCurrentStatus(s.Status)
}

func IsCurrentStatus(status string) bool {
	for _, st := range CurrentStatuses {
		if st == status {
			return true
		}
	}
	return false
}

// IsTerminalStatus 终态：canceled / cancelled / expired
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCanceled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
