package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeProvider 基于 stripe-go 的支付渠道，client 由调用方注入的 key 构造
type StripeProvider struct {
	api       *client.API
	customers *cache.Cache // email 或 user:<id> -> customer id
	logger    *slog.Logger
}

func NewStripeProvider(secretKey string, logger *slog.Logger) *StripeProvider {
	return &StripeProvider{
		api:       client.New(secretKey, nil),
		customers: cache.New(30*time.Minute, time.Hour),
		logger:    logger,
	}
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

// CreateCheckout 创建 checkout session，订阅模式下 metadata 同时写入 subscription_data
func (p *StripeProvider) CreateCheckout(ctx context.Context, in CheckoutParams) (*CheckoutSession, error) {
	if in.PriceID == "" {
		return nil, ErrMissingPrice
	}

	customerID, err := p.customerID(ctx, in)
	if err != nil {
		return nil, err
	}

	mode := stripe.CheckoutSessionModePayment
	if in.Recurring {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(in.UserID),
		Mode:              stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx
	for k, v := range in.Metadata() {
		params.AddMetadata(k, v)
	}
	if in.Recurring {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata(),
		}
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (p *StripeProvider) CreatePortal(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe portal session: %w", err)
	}
	return session.URL, nil
}

// customerID 按邮箱查找已有 customer，没有则创建
// 邮箱为空时不按邮箱查找，避免匹配到无关的 customer
func (p *StripeProvider) customerID(ctx context.Context, in CheckoutParams) (string, error) {
	key := in.Email
	if key == "" {
		key = "user:" + in.UserID
	}
	if id, ok := p.customers.Get(key); ok {
		return id.(string), nil
	}

	if in.Email != "" {
		listParams := &stripe.CustomerListParams{Email: stripe.String(in.Email)}
		listParams.Context = ctx
		listParams.Limit = stripe.Int64(1)
		iter := p.api.Customers.List(listParams)
		for iter.Next() {
			id := iter.Customer().ID
			p.customers.Set(key, id, cache.DefaultExpiration)
			return id, nil
		}
		if err := iter.Err(); err != nil {
			return "", fmt.Errorf("stripe list customers: %w", err)
		}
	}

	params := &stripe.CustomerParams{}
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	if in.Name != "" {
		params.Name = stripe.String(in.Name)
	}
	params.Context = ctx
	params.AddMetadata("userId", in.UserID)

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	p.logger.InfoContext(ctx, "stripe customer created",
		slog.String("user_id", in.UserID),
		slog.String("customer_id", c.ID))
	p.customers.Set(key, c.ID, cache.DefaultExpiration)
	return c.ID, nil
}

// VerifyStripeEvent 校验 stripe-signature 并解析事件
func VerifyStripeEvent(payload []byte, header, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err == nil {
		return event, nil
	}

	switch {
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
