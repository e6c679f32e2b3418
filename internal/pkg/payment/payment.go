// Package payment 封装 Stripe / Creem 的会话创建与 webhook 验签。
package payment

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrMissingPrice     = errors.New("plan has no provider price configured")
)

// CheckoutParams 创建支付会话所需信息
type CheckoutParams struct {
	UserID        string
	Email         string
	Name          string
	PriceID       string
	BillingPeriod string
	PlanTier      string
	Credits       int64
	Recurring     bool
	SuccessURL    string
	CancelURL     string
}

// Metadata 回调时用于定位用户和套餐
func (p CheckoutParams) Metadata() map[string]string {
	return map[string]string{
		"userId":        p.UserID,
		"billingPeriod": p.BillingPeriod,
		"planTier":      p.PlanTier,
		"credits":       formatInt(p.Credits),
	}
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Provider 支付渠道
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortal(ctx context.Context, customerID, returnURL string) (string, error)
}
