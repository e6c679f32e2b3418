package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/pkg/pubsub"
)

// Creem 事件类型
const (
	CreemCheckoutCompleted    = "checkout.completed"
	CreemSubscriptionActive   = "subscription.active"
	CreemSubscriptionPaid     = "subscription.paid"
	CreemSubscriptionUpdate   = "subscription.update"
	CreemSubscriptionCanceled = "subscription.canceled"
	CreemSubscriptionExpired  = "subscription.expired"
)

type creemEnvelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	CreatedAt providerTime    `json:"created_at"`
	Object    json.RawMessage `json:"object"`
}

type creemSubscription struct {
	ID                     string           `json:"id"`
	Customer               providerRef      `json:"customer"`
	CustomerID             string           `json:"customer_id"`
	Product                providerRef      `json:"product"`
	ProductID              string           `json:"product_id"`
	Status                 string           `json:"status"`
	CurrentPeriodStartDate providerTime     `json:"current_period_start_date"`
	CurrentPeriodEndDate   providerTime     `json:"current_period_end_date"`
	CanceledAt             providerTime     `json:"canceled_at"`
	Metadata               providerMetadata `json:"metadata"`
}

func (s *creemSubscription) customerID() string {
	if s.CustomerID != "" {
		return s.CustomerID
	}
	return s.Customer.String()
}

func (s *creemSubscription) productID() string {
	if s.ProductID != "" {
		return s.ProductID
	}
	return s.Product.String()
}

// creemSubscriptionField checkout 里的 subscription 可能只是 id
type creemSubscriptionField struct {
	*creemSubscription
}

func (f *creemSubscriptionField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		f.creemSubscription = nil
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		f.creemSubscription = &creemSubscription{ID: id}
		return nil
	}
	var sub creemSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return err
	}
	f.creemSubscription = &sub
	return nil
}

type creemCheckout struct {
	ID             string                 `json:"id"`
	Status         string                 `json:"status"`
	Customer       providerRef            `json:"customer"`
	CustomerID     string                 `json:"customer_id"`
	Product        providerRef            `json:"product"`
	ProductID      string                 `json:"product_id"`
	SubscriptionID string                 `json:"subscription_id"`
	Subscription   creemSubscriptionField `json:"subscription"`
	Metadata       providerMetadata       `json:"metadata"`
}

type CreemWebhookService struct {
	reconciler *Reconciler
	catalog    *PlanCatalog
	secret     string
	logger     *slog.Logger
	routes     Routes
}

func NewCreemWebhookService(reconciler *Reconciler, catalog *PlanCatalog, webhookSecret string, logger *slog.Logger) *CreemWebhookService {
	s := &CreemWebhookService{
		reconciler: reconciler,
		catalog:    catalog,
		secret:     webhookSecret,
		logger:     logger.With("provider", model.ProviderCreem),
	}
	s.routes = Routes{
		CreemCheckoutCompleted:    s.handleCheckoutCompleted,
		CreemSubscriptionActive:   s.handleSubscriptionActive,
		CreemSubscriptionPaid:     s.handleSubscriptionPaid,
		CreemSubscriptionUpdate:   s.handleSubscriptionUpdate,
		CreemSubscriptionCanceled: s.handleSubscriptionCanceled,
		CreemSubscriptionExpired:  s.handleSubscriptionCanceled,
	}
	return s
}

func (s *CreemWebhookService) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if !payment.VerifyCreemSignature(payload, signature, s.secret) {
		return "", payment.ErrInvalidSignature
	}

	var env creemEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("%w: %v", payment.ErrInvalidPayload, err)
	}
	if env.EventType == "" {
		return "", fmt.Errorf("%w: missing eventType", payment.ErrInvalidPayload)
	}

	return s.reconciler.Dispatch(ctx, s.routes, Event{
		Provider: model.ProviderCreem,
		ID:       env.ID,
		Type:     env.EventType,
		Data:     env.Object,
	})
}

func (s *CreemWebhookService) handleCheckoutCompleted(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var checkout creemCheckout
	if err := json.Unmarshal(data, &checkout); err != nil {
		return "", invalidData(err)
	}

	sub := checkout.Subscription.creemSubscription
	md := parseMetadata(checkout.Metadata)
	if !md.complete() && sub != nil {
		md = parseMetadata(mergeMetadata(sub.Metadata, checkout.Metadata))
	}
	if !md.complete() {
		s.logger.Warn("checkout missing metadata", "checkout_id", checkout.ID)
		return OutcomeSkipped, nil
	}

	plan, err := s.catalog.Lookup(model.ProviderCreem, md.BillingPeriod, md.PlanTier)
	if err != nil {
		s.logger.Warn("checkout plan not found", "checkout_id", checkout.ID, "period", md.BillingPeriod, "tier", md.PlanTier)
		return OutcomeSkipped, nil
	}

	if !plan.Recurring() {
		if err := tx.Grant(ctx, md.UserID, plan.Credits, pubsub.ReasonOneTime); err != nil {
			if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidAmount) {
				s.logger.Warn("checkout credits not granted", "user_id", md.UserID, "error", err)
				return OutcomeSkipped, nil
			}
			return "", err
		}
		s.logger.Info("one-time credits granted", "user_id", md.UserID, "credits", plan.Credits)
		return OutcomeProcessed, nil
	}

	// 订阅：积分等 subscription.paid 发放
	if sub == nil && checkout.SubscriptionID != "" {
		sub = &creemSubscription{ID: checkout.SubscriptionID}
	}
	if sub == nil || sub.ID == "" {
		s.logger.Info("subscription checkout completed, waiting for subscription.active", "checkout_id", checkout.ID)
		return OutcomeSkipped, nil
	}

	customerID := sub.customerID()
	if customerID == "" {
		customerID = checkout.CustomerID
		if customerID == "" {
			customerID = checkout.Customer.String()
		}
	}
	productID := sub.productID()
	if productID == "" {
		productID = checkout.ProductID
		if productID == "" {
			productID = checkout.Product.String()
		}
	}

	return s.upsert(ctx, tx, md.UserID, plan, sub, customerID, productID)
}

func (s *CreemWebhookService) handleSubscriptionActive(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var sub creemSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return "", invalidData(err)
	}

	md := parseMetadata(sub.Metadata)
	if !md.complete() {
		s.logger.Warn("subscription missing metadata", "subscription_id", sub.ID)
		return OutcomeSkipped, nil
	}
	plan, err := s.catalog.Lookup(model.ProviderCreem, md.BillingPeriod, md.PlanTier)
	if err != nil || !plan.Recurring() {
		s.logger.Warn("subscription plan not found", "subscription_id", sub.ID, "period", md.BillingPeriod, "tier", md.PlanTier)
		return OutcomeSkipped, nil
	}

	return s.upsert(ctx, tx, md.UserID, plan, &sub, sub.customerID(), sub.productID())
}

func (s *CreemWebhookService) upsert(ctx context.Context, tx *EventTx, userID string, plan Plan, sub *creemSubscription, customerID, productID string) (Outcome, error) {
	_, created, err := tx.Subscriptions.UpsertOnCreate(ctx, SubscriptionSnapshot{
		UserID:         userID,
		Provider:       model.ProviderCreem,
		SubscriptionID: sub.ID,
		CustomerID:     customerID,
		PriceID:        productID,
		BillingPeriod:  plan.Period,
		PlanTier:       plan.Tier,
		Status:         sub.Status,
		PeriodStart:    sub.CurrentPeriodStartDate.Ptr(),
		PeriodEnd:      sub.CurrentPeriodEndDate.Ptr(),
		Credits:        plan.Credits,
	})
	if err != nil {
		return "", err
	}
	if !created {
		s.logger.Info("subscription already exists", "subscription_id", sub.ID)
		return OutcomeSkipped, nil
	}
	s.logger.Info("subscription created", "subscription_id", sub.ID, "user_id", userID, "plan", plan.Period+"-"+plan.Tier)
	return OutcomeProcessed, nil
}

func (s *CreemWebhookService) handleSubscriptionPaid(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var payload creemSubscription
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", invalidData(err)
	}

	sub, err := tx.Subscriptions.Find(ctx, model.ProviderCreem, payload.ID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		s.logger.Info("subscription not found for payment", "subscription_id", payload.ID)
		return OutcomeSkipped, nil
	}

	credits := periodCredits(s.catalog, sub)
	if md := parseMetadata(payload.Metadata); md.complete() {
		if plan, err := s.catalog.Lookup(model.ProviderCreem, md.BillingPeriod, md.PlanTier); err == nil && plan.Recurring() {
			credits = plan.Credits
		}
	}
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

	if _, _, err := tx.Subscriptions.UpdateStatus(ctx, model.ProviderCreem, sub.ProviderSubscriptionID, SubscriptionUpdate{
		Status:      payload.Status,
		PeriodStart: payload.CurrentPeriodStartDate.Ptr(),
		PeriodEnd:   payload.CurrentPeriodEndDate.Ptr(),
	}); err != nil {
		return "", err
	}
	s.logger.Info("subscription credits granted", "user_id", sub.UserID, "credits", credits, "plan", sub.PlanName())
	return OutcomeProcessed, nil
}

func (s *CreemWebhookService) handleSubscriptionUpdate(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var payload creemSubscription
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", invalidData(err)
	}

	_, found, err := tx.Subscriptions.UpdateStatus(ctx, model.ProviderCreem, payload.ID, SubscriptionUpdate{
		Status:      payload.Status,
		PeriodStart: payload.CurrentPeriodStartDate.Ptr(),
		PeriodEnd:   payload.CurrentPeriodEndDate.Ptr(),
		CancelAt:    payload.CanceledAt.Ptr(),
		PriceID:     payload.productID(),
	})
	if err != nil {
		return "", err
	}
	if !found {
		s.logger.Info("subscription not found for update", "subscription_id", payload.ID)
		return OutcomeSkipped, nil
	}
	return OutcomeProcessed, nil
}

func (s *CreemWebhookService) handleSubscriptionCanceled(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error) {
	var payload creemSubscription
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", invalidData(err)
	}

	_, found, err := tx.Subscriptions.MarkCanceled(ctx, model.ProviderCreem, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		s.logger.Info("subscription not found for cancel", "subscription_id", payload.ID)
		return OutcomeSkipped, nil
	}
	s.logger.Info("subscription cancelled", "subscription_id", payload.ID)
	return OutcomeProcessed, nil
}
