package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/internal/pkg/metrics"
	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/pkg/pubsub"
	"github.com/qs3c/credit_go_server/internal/repository"
)

// Outcome webhook 事件处理结果
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// Event 验签后的渠道事件
type Event struct {
	Provider string
	ID       string
	Type     string
	Data     json.RawMessage
}

// EventHandler 在事务内处理单个事件
type EventHandler func(ctx context.Context, tx *EventTx, data json.RawMessage) (Outcome, error)

// Routes 事件类型 -> 处理函数
type Routes map[string]EventHandler

// CreditsNotifier 事务提交后推送积分变动
type CreditsNotifier interface {
	PublishCredits(ctx context.Context, msg *pubsub.CreditsMessage) error
}

// EventTx 绑定到当前事务的账本和订阅管理
type EventTx struct {
	Ledger        *CreditLedger
	Subscriptions *SubscriptionManager

	event  Event
	grants []*pubsub.CreditsMessage
}

func newEventTx(db *gorm.DB, event Event) *EventTx {
	return &EventTx{
		Ledger:        NewCreditLedger(repository.NewUserRepository(db)),
		Subscriptions: NewSubscriptionManager(repository.NewSubscriptionRepository(db)),
		event:         event,
	}
}

// Grant 加积分，提交后统一通知
func (t *EventTx) Grant(ctx context.Context, userID string, amount int64, reason string) error {
	balance, err := t.Ledger.Grant(ctx, userID, amount)
	if err != nil {
		return err
	}
	t.grants = append(t.grants, &pubsub.CreditsMessage{
		UserID:   userID,
		Delta:    amount,
		Credits:  balance,
		Provider: t.event.Provider,
		Reason:   reason,
		EventID:  t.event.ID,
	})
	return nil
}

// errRollback skipped 的事件不落事件日志，渠道重发时可以重新处理
var errRollback = errors.New("rollback")

type Reconciler struct {
	db       *gorm.DB
	notifier CreditsNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewReconciler(db *gorm.DB, notifier CreditsNotifier, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{db: db, notifier: notifier, metrics: m, logger: logger}
}

// Dispatch 路由事件并在单个事务内执行：登记事件 -> 处理 -> 提交
func (r *Reconciler) Dispatch(ctx context.Context, routes Routes, event Event) (Outcome, error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveDuration(event.Provider, time.Since(start).Seconds())
	}()

	log := r.logger.With("provider", event.Provider, "event_id", event.ID, "event_type", event.Type)

	handler, ok := routes[event.Type]
	if !ok {
		log.Info("unhandled webhook event type")
		r.metrics.ObserveEvent(event.Provider, event.Type, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}
	if event.ID == "" {
		return "", fmt.Errorf("%w: missing event id", payment.ErrInvalidPayload)
	}

	var (
		outcome Outcome
		grants  []*pubsub.CreditsMessage
	)
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		claimed, err := repository.NewWebhookEventRepository(db).Claim(ctx, event.Provider, event.ID, event.Type)
		if err != nil {
			return fmt.Errorf("claim event: %w", err)
		}
		if !claimed {
			outcome = OutcomeDuplicate
			return nil
		}

		tx := newEventTx(db, event)
		outcome, err = handler(ctx, tx, event.Data)
		if err != nil {
			return err
		}
		if outcome == OutcomeSkipped {
			return errRollback
		}
		grants = tx.grants
		return nil
	})
	if err != nil && !errors.Is(err, errRollback) {
		log.Error("webhook handler failed", "error", err)
		r.metrics.ObserveEvent(event.Provider, event.Type, "failed")
		return "", err
	}

	log.Info("webhook event handled", "outcome", outcome)
	r.metrics.ObserveEvent(event.Provider, event.Type, string(outcome))
	r.notify(ctx, grants)
	return outcome, nil
}

func (r *Reconciler) notify(ctx context.Context, grants []*pubsub.CreditsMessage) {
	for _, msg := range grants {
		r.metrics.AddCredits(msg.Provider, msg.Reason, msg.Delta)
		if r.notifier == nil {
			continue
		}
		if err := r.notifier.PublishCredits(ctx, msg); err != nil {
			r.logger.Warn("publish credits update failed", "user_id", msg.UserID, "error", err)
		}
	}
}

// invalidData 事件数据无法解析
func invalidData(err error) error {
	return fmt.Errorf("%w: %v", payment.ErrInvalidPayload, err)
}
