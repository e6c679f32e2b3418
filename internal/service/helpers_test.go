package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/config"
	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/pkg/logger"
	"github.com/qs3c/credit_go_server/internal/pkg/metrics"
	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/pkg/pubsub"
	"github.com/qs3c/credit_go_server/internal/testutil"
)

const (
	testStripeSecret = "whsec_test_secret"
	testCreemSecret  = "creem_whsec_test"
)

// recordingNotifier 记录提交后的积分通知
type recordingNotifier struct {
	mu   sync.Mutex
	msgs []*pubsub.CreditsMessage
}

func (n *recordingNotifier) PublishCredits(_ context.Context, msg *pubsub.CreditsMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) messages() []*pubsub.CreditsMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*pubsub.CreditsMessage(nil), n.msgs...)
}

type webhookEnv struct {
	db       *gorm.DB
	catalog  *PlanCatalog
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	recon    *Reconciler
	stripe   *StripeWebhookService
	creem    *CreemWebhookService
}

func setupWebhookEnv(t *testing.T) (*webhookEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	log := discardLogger()
	catalog := NewPlanCatalog(testBillingConfig())
	notifier := &recordingNotifier{}
	m := metrics.New()
	recon := NewReconciler(db, notifier, m, log)

	env := &webhookEnv{
		db:       db,
		catalog:  catalog,
		notifier: notifier,
		metrics:  m,
		recon:    recon,
		stripe:   NewStripeWebhookService(recon, catalog, testStripeSecret, log),
		creem:    NewCreemWebhookService(recon, catalog, testCreemSecret, log),
	}
	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return env, cleanup
}

func testBillingConfig() config.BillingConfig {
	plans := config.DefaultPlans()
	plans["stripe"]["monthly"]["pro"] = config.PlanConfig{Name: "Pro", PriceID: "price_monthly_pro", Credits: 1500}
	plans["stripe"]["onetime"]["starter"] = config.PlanConfig{Name: "Starter", PriceID: "price_onetime_starter", Credits: 100}
	plans["creem"]["yearly"]["pro"] = config.PlanConfig{Name: "Pro", PriceID: "prod_yearly_pro", Credits: 2400}
	plans["creem"]["monthly"]["starter"] = config.PlanConfig{Name: "Starter", PriceID: "prod_monthly_starter", Credits: 100}
	return config.BillingConfig{
		Provider:              "stripe",
		SignupCredits:         12,
		CheckoutSignupCredits: 3,
		Plans:                 plans,
	}
}

func signStripe(payload []byte) string {
	ts := time.Now()
	sig := webhook.ComputeSignature(ts, payload, testStripeSecret)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
}

// stripeEvent 构造 Stripe 事件体
func stripeEvent(t *testing.T, id, eventType string, object interface{}) []byte {
	t.Helper()

	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-06-20",
		"data":        map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	return payload
}

// creemEvent 构造 Creem 事件体及签名
func creemEvent(t *testing.T, id, eventType string, object interface{}) ([]byte, string) {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"id":         id,
		"eventType":  eventType,
		"created_at": time.Now().UnixMilli(),
		"object":     object,
	})
	require.NoError(t, err)
	return payload, payment.SignCreemPayload(payload, testCreemSecret)
}

func userCredits(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()

	var user model.User
	require.NoError(t, db.First(&user, "id = ?", userID).Error)
	return user.Credits
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func discardLogger() *slog.Logger {
	return logger.Discard()
}
