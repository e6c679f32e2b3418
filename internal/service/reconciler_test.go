package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/pkg/pubsub"
	fixtures "github.com/qs3c/credit_go_server/internal/testutil"
)

func TestReconciler_FailedHandlerRollsBackClaim(t *testing.T) {
	env, cleanup := setupWebhookEnv(t)
	defer cleanup()
	ctx := context.Background()

	user := fixtures.TestUser(t, env.db)
	event := Event{Provider: model.ProviderStripe, ID: "evt_retry", Type: "test.grant"}

	errBoom := errors.New("boom")
	failing := Routes{"test.grant": func(ctx context.Context, tx *EventTx, _ json.RawMessage) (Outcome, error) {
		if err := tx.Grant(ctx, user.ID, 40, pubsub.ReasonOneTime); err != nil {
			return "", err
		}
		return "", errBoom
	}}
	_, err := env.recon.Dispatch(ctx, failing, event)
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, int64(0), userCredits(t, env.db, user.ID))
	assert.Equal(t, int64(0), countRows(t, env.db, &model.WebhookEvent{}))
	assert.Empty(t, env.notifier.messages())

	// 渠道重试时重新处理
	working := Routes{"test.grant": func(ctx context.Context, tx *EventTx, _ json.RawMessage) (Outcome, error) {
		return OutcomeProcessed, tx.Grant(ctx, user.ID, 40, pubsub.ReasonOneTime)
	}}
	outcome, err := env.recon.Dispatch(ctx, working, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, int64(40), userCredits(t, env.db, user.ID))
	assert.Equal(t, int64(1), countRows(t, env.db, &model.WebhookEvent{}))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.WebhookEvents.WithLabelValues(model.ProviderStripe, "test.grant", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.WebhookEvents.WithLabelValues(model.ProviderStripe, "test.grant", "processed")))
	assert.Equal(t, 40.0, testutil.ToFloat64(env.metrics.CreditsGranted.WithLabelValues(model.ProviderStripe, pubsub.ReasonOneTime)))
}

func TestReconciler_UnknownTypeNotClaimed(t *testing.T) {
	env, cleanup := setupWebhookEnv(t)
	defer cleanup()

	outcome, err := env.recon.Dispatch(context.Background(), Routes{}, Event{Provider: model.ProviderCreem, ID: "evt_1", Type: "refund.created"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, int64(0), countRows(t, env.db, &model.WebhookEvent{}))
}

func TestReconciler_MissingEventID(t *testing.T) {
	env, cleanup := setupWebhookEnv(t)
	defer cleanup()

	routes := Routes{"x": func(context.Context, *EventTx, json.RawMessage) (Outcome, error) {
		return OutcomeProcessed, nil
	}}
	_, err := env.recon.Dispatch(context.Background(), routes, Event{Provider: model.ProviderCreem, Type: "x"})
	assert.ErrorIs(t, err, payment.ErrInvalidPayload)
}

func TestReconciler_DuplicateAcrossProvidersIsIndependent(t *testing.T) {
	env, cleanup := setupWebhookEnv(t)
	defer cleanup()

	routes := Routes{"x": func(context.Context, *EventTx, json.RawMessage) (Outcome, error) {
		return OutcomeProcessed, nil
	}}
	for _, provider := range []string{model.ProviderStripe, model.ProviderCreem} {
		outcome, err := env.recon.Dispatch(context.Background(), routes, Event{Provider: provider, ID: "evt_same", Type: "x"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
	}
	assert.Equal(t, int64(2), countRows(t, env.db, &model.WebhookEvent{}))
}

type failingNotifier struct{}

func (failingNotifier) PublishCredits(context.Context, *pubsub.CreditsMessage) error {
	return errors.New("redis down")
}

func TestReconciler_NotifyFailureDoesNotFailEvent(t *testing.T) {
	env, cleanup := setupWebhookEnv(t)
	defer cleanup()

	user := fixtures.TestUser(t, env.db)
	recon := NewReconciler(env.db, failingNotifier{}, nil, discardLogger())
	routes := Routes{"x": func(ctx context.Context, tx *EventTx, _ json.RawMessage) (Outcome, error) {
		return OutcomeProcessed, tx.Grant(ctx, user.ID, 5, pubsub.ReasonOneTime)
	}}

	outcome, err := recon.Dispatch(context.Background(), routes, Event{Provider: model.ProviderStripe, ID: "evt_n", Type: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, int64(5), userCredits(t, env.db, user.ID))
}
