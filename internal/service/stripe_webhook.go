package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/pkg/pubsub"
)

// Stripe 事件类型
const (
	StripeCheckoutSessionCompleted = "checkout.session.completed"
	StripeInvoicePaid              = "invoice.paid"
	StripeSubscriptionCreated      = "customer.subscription.created"
	StripeSubscriptionUpdated      = "customer.subscription.updated"
	StripeSubscriptionDeleted      = "customer.subscription.deleted"
)

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	Customer          providerRef       `json:"customer"`
	Subscription      providerRef       `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscriptionItem struct {
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
	CurrentPeriodStart providerTime `json:"current_period_start"`
	CurrentPeriodEnd   providerTime `json:"current_period_end"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           providerRef       `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart providerTime      `json:"current_period_start"`
	CurrentPeriodEnd   providerTime      `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CancelAt           providerTime      `json:"cancel_at"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []stripeSubscriptionItem `json:"data"`
	} `json:"items"`
}

func (s *stripeSubscription) priceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// period 新版 API 把周期放在 subscription item 上
func (s *stripeSubscription) period() (providerTime, providerTime) {
	start, end := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		if start.IsZero() {
			start = s.Items.Data[0].CurrentPeriodStart
		}
		if end.IsZero() {
			end = s.Items.Data[0].CurrentPeriodEnd
		}
	}
	return start, end
}

type stripeInvoice struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Customer     providerRef `json:"customer"`
	Subscription providerRef `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription providerRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Subscription providerRef `json:"subscription"`
			Parent       *struct {
				SubscriptionItemDetails *struct {
					Subscription providerRef `json:"subscription"`
				} `json:"subscription_item_details"`
			} `json:"parent"`
		} `json:"data"`
	} `json:"lines"`
}

// subscriptionID 依次尝试 invoice.subscription、parent、第一条 line item
func (inv *stripeInvoice) subscriptionID() string {
	if inv.Subscription != "" {
		return inv.Subscription.String()
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != "" {
		return inv.Parent.SubscriptionDetails.Subscription.String()
	}
	if len(inv.Lines.Data) > 0 {
		line := inv.Lines.Data[0]
		if line.Parent != nil && line.Parent.SubscriptionItemDetails != nil && line.Parent.SubscriptionItemDetails.Subscription != "" {
			return line.Parent.SubscriptionItemDetails.Subscription.String()
		}
		return line.Subscription.String()
	}
	return ""
}

type StripeWebhookService struct {
	reconciler *Reconciler
	catalog    *PlanCatalog
	secret     string
	logger     *slog.Logger
	routes     Routes
}

func NewStripeWebhookService(reconciler *Reconciler, catalog *PlanCatalog, webhookSecret string, logger *slog.Logger) *StripeWebhookService {
	s := &StripeWebhookService{
		reconciler: reconciler,
		catalog:    catalog,
		secret:     webhookSecret,
		logger:     logger.With("provider", model.ProviderStripe),
	}
	s.routes = Routes{
		StripeCheckoutSessionCompleted: s.handleCheckoutCompleted,
		StripeInvoicePaid:              s.handleInvoicePaid,
		StripeSubscriptionCreated:      s.handleSubscriptionCreated,
		StripeSubscriptionUpdated:      s.handleSubscriptionUpdated,
		StripeSubscriptionDeleted:      s.handleSubscriptionDeleted,
	}
	return s
}

// Handle 验签后分发，签名错误返回 payment.ErrInvalidSignature
func (s *StripeWebhookService) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	event, err := payment.VerifyStripeEvent(payload, signature, s.secret)
	if err != nil {
		return "", err
	}

	var data json.RawMessage
	if event.Data != nil {
		data = event.Data.Raw
	}
	return s.reconciler.Dispatch(ctx, s.routes, Event{
		Provider: model.ProviderStripe,
		ID:       event.ID,
		Type:     string(event.Type),
		Data:     data,
	})
}

func (s *StripeWebhookService) handleCheckoutCompleted(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return "", invalidData(err)
	}

	md := parseMetadata(session.Metadata)
	if md.UserID == "" {
		md.UserID = session.ClientReferenceID
	}
	if !md.complete() {
		s.logger.Warn("checkout session missing metadata", "session_id", session.ID)
		return OutcomeSkipped, nil
	}

	// 订阅模式由 customer.subscription.created 建档，invoice.paid 发放积分
	if session.Mode != "payment" {
		return OutcomeSkipped, nil
	}
	if session.PaymentStatus != "paid" {
		s.logger.Info("checkout session not paid", "session_id", session.ID, "payment_status", session.PaymentStatus)
		return OutcomeSkipped, nil
	}
	if period, _ := NormalizePeriod(md.BillingPeriod); period != model.PeriodOneTime {
		return OutcomeSkipped, nil
	}

	credits := md.Credits
	if credits <= 0 {
		if plan, err := s.catalog.Lookup(model.ProviderStripe, md.BillingPeriod, md.PlanTier); err == nil {
			credits = plan.Credits
		}
	}
	if credits <= 0 {
		s.logger.Warn("checkout session has no credits", "session_id", session.ID)
		return OutcomeSkipped, nil
	}

	if err := tx.Grant(ctx, md.UserID, credits, pubsub.ReasonOneTime); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Warn("checkout user not found", "user_id", md.UserID, "session_id", session.ID)
			return OutcomeSkipped, nil
		}
		return "", err
	}
	s.logger.Info("one-time credits granted", "user_id", md.UserID, "credits", credits)
	return OutcomeProcessed, nil
}

func (s *StripeWebhookService) handleSubscriptionCreated(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return "", invalidData(err)
	}

	md := parseMetadata(sub.Metadata)
	if !md.complete() {
		s.logger.Warn("subscription missing metadata", "subscription_id", sub.ID)
		return OutcomeSkipped, nil
	}
	plan, err := s.catalog.Lookup(model.ProviderStripe, md.BillingPeriod, md.PlanTier)
	if err != nil || !plan.Recurring() {
		s.logger.Warn("subscription plan not found", "subscription_id", sub.ID, "period", md.BillingPeriod, "tier", md.PlanTier)
		return OutcomeSkipped, nil
	}

	start, end := sub.period()
	_, created, err := tx.Subscriptions.UpsertOnCreate(ctx, SubscriptionSnapshot{
		UserID:            md.UserID,
		Provider:          model.ProviderStripe,
		SubscriptionID:    sub.ID,
		CustomerID:        sub.Customer.String(),
		PriceID:           sub.priceID(),
		BillingPeriod:     plan.Period,
		PlanTier:          plan.Tier,
		Status:            sub.Status,
		PeriodStart:       start.Ptr(),
		PeriodEnd:         end.Ptr(),
		Credits:           plan.Credits,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          sub.CancelAt.Ptr(),
	})
	if err != nil {
		return "", err
	}
	if !created {
		return OutcomeSkipped, nil
	}
	return OutcomeProcessed, nil
}

func (s *StripeWebhookService) handleSubscriptionUpdated(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return "", invalidData(err)
	}

	start, end := sub.period()
	cancelAtPeriodEnd := sub.CancelAtPeriodEnd
	_, found, err := tx.Subscriptions.UpdateStatus(ctx, model.ProviderStripe, sub.ID, SubscriptionUpdate{
		Status:            sub.Status,
		PeriodStart:       start.Ptr(),
		PeriodEnd:         end.Ptr(),
		CancelAtPeriodEnd: &cancelAtPeriodEnd,
		CancelAt:          sub.CancelAt.Ptr(),
		PriceID:           sub.priceID(),
	})
	if err != nil {
		return "", err
	}
	if !found {
		s.logger.Info("subscription not found for update", "subscription_id", sub.ID)
		return OutcomeSkipped, nil
	}
	return OutcomeProcessed, nil
}

func (s *StripeWebhookService) handleSubscriptionDeleted(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return "", invalidData(err)
	}

	_, found, err := tx.Subscriptions.MarkCanceled(ctx, model.ProviderStripe, sub.ID)
	if err != nil {
		return "", err
	}
	if !found {
		s.logger.Info("subscription not found for cancel", "subscription_id", sub.ID)
		return OutcomeSkipped, nil
	}
	return OutcomeProcessed, nil
}

func (s *StripeWebhookService) handleInvoicePaid(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var inv stripeInvoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return "", invalidData(err)
	}
	if inv.Status != "" && inv.Status != "paid" {
		return OutcomeSkipped, nil
	}

	sub, err := tx.Subscriptions.Find(ctx, model.ProviderStripe, inv.subscriptionID())
	if err != nil {
		return "", err
	}
	if sub == nil && inv.subscriptionID() == "" {
		// 没有订阅 id 时按客户兜底
		sub, err = tx.Subscriptions.FindCurrentByCustomer(ctx, model.ProviderStripe, inv.Customer.String())
		if err != nil {
			return "", err
		}
	}
	if sub == nil {
		s.logger.Info("subscription not found for invoice", "invoice_id", inv.ID, "subscription_id", inv.subscriptionID())
		return OutcomeSkipped, nil
	}

	credits := periodCredits(s.catalog, sub)
	if credits <= 0 {
		s.logger.Warn("subscription has no credits", "subscription_id", sub.ProviderSubscriptionID)
		return OutcomeSkipped, nil
	}
	if err := tx.Grant(ctx, sub.UserID, credits, pubsub.ReasonSubscription); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Warn("subscription user not found", "user_id", sub.UserID)
			return OutcomeSkipped, nil
		}
		return "", err
	}

	if _, _, err := tx.Subscriptions.UpdateStatus(ctx, model.ProviderStripe, sub.ProviderSubscriptionID, SubscriptionUpdate{
		Status: model.StatusActive,
	}); err != nil {
		return "", err
	}
	s.logger.Info("subscription credits granted", "user_id", sub.UserID, "credits", credits, "plan", sub.PlanName())
	return OutcomeProcessed, nil
}

// periodCredits 优先按套餐表，其次用建档时记录的积分
func periodCredits(catalog *PlanCatalog, sub *model.Subscription) int64 {
	if plan, err := catalog.Lookup(sub.Provider, sub.BillingPeriod, sub.PlanTier); err == nil && plan.Credits > 0 {
		return plan.Credits
	}
	return sub.CreditsPerPeriod
}
