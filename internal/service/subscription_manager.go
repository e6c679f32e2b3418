package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/repository"
)

// SubscriptionSnapshot 渠道事件中的订阅快照
type SubscriptionSnapshot struct {
	UserID            string
	Provider          string
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	BillingPeriod     string
	PlanTier          string
	Status            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	Credits           int64
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
}

// SubscriptionUpdate 为 nil / 空的字段保持原值
type SubscriptionUpdate struct {
	Status            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd *bool
	CancelAt          *time.Time
	PriceID           string
}

type SubscriptionManager struct {
	subs *repository.SubscriptionRepository
	now  func() time.Time
}

func NewSubscriptionManager(subs *repository.SubscriptionRepository) *SubscriptionManager {
	return &SubscriptionManager{subs: subs, now: time.Now}
}

// UpsertOnCreate 同一 (provider, subscription id) 只会插入一次；已存在时返回 created=false
func (m *SubscriptionManager) UpsertOnCreate(ctx context.Context, snap SubscriptionSnapshot) (*model.Subscription, bool, error) {
	existing, err := m.Find(ctx, snap.Provider, snap.SubscriptionID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	start := m.now()
	if snap.PeriodStart != nil {
		start = *snap.PeriodStart
	}
	end := PeriodEndFallback(start, snap.BillingPeriod)
	if snap.PeriodEnd != nil {
		end = *snap.PeriodEnd
	}
	status := snap.Status
	if status == "" {
		status = model.StatusActive
	}

	sub := &model.Subscription{
		UserID:                 snap.UserID,
		Provider:               snap.Provider,
		ProviderSubscriptionID: snap.SubscriptionID,
		ProviderCustomerID:     snap.CustomerID,
		ProviderPriceID:        snap.PriceID,
		BillingPeriod:          snap.BillingPeriod,
		PlanTier:               snap.PlanTier,
		Status:                 status,
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       end,
		CreditsPerPeriod:       snap.Credits,
		CancelAtPeriodEnd:      snap.CancelAtPeriodEnd,
		CancelAt:               snap.CancelAt,
	}

	// 并发插入时唯一索引兜底
	created, err := m.subs.CreateIfAbsent(ctx, sub)
	if err != nil {
		return nil, false, fmt.Errorf("create subscription: %w", err)
	}
	if !created {
		existing, err := m.Find(ctx, snap.Provider, snap.SubscriptionID)
		return existing, false, err
	}
	return sub, true, nil
}

// UpdateStatus 记录不存在时返回 nil, false
// 已是终态的记录只刷新周期字段，迟到的事件不能把它改回非终态
func (m *SubscriptionManager) UpdateStatus(ctx context.Context, provider, subscriptionID string, upd SubscriptionUpdate) (*model.Subscription, bool, error) {
	sub, err := m.Find(ctx, provider, subscriptionID)
	if err != nil || sub == nil {
		return nil, false, err
	}

	fields := map[string]interface{}{}
	if model.IsTerminalStatus(sub.Status) && !model.IsTerminalStatus(upd.Status) {
		upd.Status = ""
	}
	if upd.Status != "" && upd.Status != sub.Status {
		fields["status"] = upd.Status
		sub.Status = upd.Status
	}
	if upd.PeriodStart != nil {
		fields["current_period_start"] = *upd.PeriodStart
		sub.CurrentPeriodStart = *upd.PeriodStart
	}
	if upd.PeriodEnd != nil {
		fields["current_period_end"] = *upd.PeriodEnd
		sub.CurrentPeriodEnd = *upd.PeriodEnd
	}
	if upd.CancelAtPeriodEnd != nil {
		fields["cancel_at_period_end"] = *upd.CancelAtPeriodEnd
		sub.CancelAtPeriodEnd = *upd.CancelAtPeriodEnd
	}
	if upd.CancelAt != nil {
		fields["cancel_at"] = *upd.CancelAt
		sub.CancelAt = upd.CancelAt
	}
	if upd.PriceID != "" && upd.PriceID != sub.ProviderPriceID {
		fields["provider_price_id"] = upd.PriceID
		sub.ProviderPriceID = upd.PriceID
	}
	if len(fields) == 0 {
		return sub, true, nil
	}

	if err := m.subs.UpdateFields(ctx, sub.ID, fields); err != nil {
		return nil, false, fmt.Errorf("update subscription: %w", err)
	}
	return sub, true, nil
}

// MarkCanceled 置为 cancelled，不回收积分
func (m *SubscriptionManager) MarkCanceled(ctx context.Context, provider, subscriptionID string) (*model.Subscription, bool, error) {
	return m.UpdateStatus(ctx, provider, subscriptionID, SubscriptionUpdate{Status: model.StatusCancelled})
}

// Find 不存在时返回 nil, nil
func (m *SubscriptionManager) Find(ctx context.Context, provider, subscriptionID string) (*model.Subscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	sub, err := m.subs.GetByProviderID(ctx, provider, subscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// FindCurrentByCustomer 渠道客户最近的有效订阅
func (m *SubscriptionManager) FindCurrentByCustomer(ctx context.Context, provider, customerID string) (*model.Subscription, error) {
	if customerID == "" {
		return nil, nil
	}
	sub, err := m.subs.GetLatestByCustomer(ctx, provider, customerID, model.CurrentStatuses)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by customer: %w", err)
	}
	return sub, nil
}

// PeriodEndFallback 事件未带周期结束时间时按计费周期推算
func PeriodEndFallback(start time.Time, period string) time.Time {
	if period == model.PeriodYearly {
		return start.AddDate(0, 0, 365)
	}
	return start.AddDate(0, 0, 30)
}
