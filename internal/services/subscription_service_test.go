package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexosql-backend/internal/billing"
	"nexosql-backend/internal/models"
	"nexosql-backend/pkg/apperr"
)

func TestSubscriptionCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	next := time.Date(2026, 11, 16, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		created: &billing.ProviderSubscription{ID: "I-1", Status: models.SubscriptionPending, ApprovalURL: "https://paypal.test/approve"},
		current: &billing.ProviderSubscription{ID: "I-1", Status: models.SubscriptionPending},
	}
	svc := NewSubscriptionService(f.store, provider)
	ctx := context.Background()

	_, err := svc.Create(ctx, f.user.ID, "diamante")
	assert.Equal(t, apperr.CodePlanNotFound, planCode(t, err))

	created, err := svc.Create(ctx, f.user.ID, "plata")
	require.NoError(t, err)
	assert.Equal(t, "https://paypal.test/approve", created.ApprovalURL)
	assert.Equal(t, models.SubscriptionPending, created.Subscription.Status)
	assert.Equal(t, 19.99, created.Subscription.Price)

	_, err = svc.Confirm(ctx, f.user.ID, "I-1")
	assert.Equal(t, apperr.CodeSubscriptionPending, planCode(t, err))

	provider.current = &billing.ProviderSubscription{ID: "I-1", Status: models.SubscriptionActive, NextBillingTime: &next}
	sub, err := svc.Confirm(ctx, f.user.ID, "I-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.StartDate)
	assert.Equal(t, next, *sub.NextBillingDate)

	_, err = svc.Create(ctx, f.user.ID, "oro")
	assert.Equal(t, apperr.CodeSubscriptionAlreadyActive, planCode(t, err))

	cur, err := svc.Current(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, cur.HasAccess)
	assert.Equal(t, 1000, cur.Queries.Limit)

	_, err = svc.Sync(ctx, f.user.ID, "I-missing")
	assert.Equal(t, apperr.CodeSubscriptionNotFound, planCode(t, err))
}

func TestCancelKeepsAccessUntilNextBilling(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	next := now.AddDate(0, 0, 10)
	sub := f.subscribe(t, "oro", models.SubscriptionActive)
	sub.NextBillingDate = &next
	require.NoError(t, f.store.UpdateSubscription(context.Background(), sub))

	provider := &fakeProvider{}
	svc := NewSubscriptionService(f.store, provider)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	out, err := svc.Cancel(ctx, f.user.ID, "muy caro")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, out.Status)
	assert.Equal(t, next, *out.EndDate)
	assert.Equal(t, []string{sub.ProviderSubscriptionID}, provider.cancelled)

	cur, err := svc.Current(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, cur.HasAccess, "grace period")

	stats, err := svc.Stats(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, stats.DaysUntilRenewal)
	assert.Equal(t, 10, *stats.DaysUntilRenewal)

	svc.now = func() time.Time { return next.Add(time.Minute) }
	cur, err = svc.Current(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, cur.HasAccess)

	_, err = svc.Cancel(ctx, f.user.ID, "")
	assert.Equal(t, apperr.CodeSubscriptionNotFound, planCode(t, err))
}

func TestUpdateTier(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "bronce", models.SubscriptionActive)
	provider := &fakeProvider{}
	svc := NewSubscriptionService(f.store, provider)
	ctx := context.Background()

	res, err := svc.Update(ctx, f.user.ID, "oro")
	require.NoError(t, err)
	assert.Equal(t, "oro", res.Subscription.Tier)
	assert.Equal(t, 49.99, res.Subscription.Price)
	assert.Equal(t, "https://paypal.test/revise", res.ApprovalURL)
	assert.Equal(t, []string{"oro"}, provider.revised)

	_, err = svc.Update(ctx, f.user.ID, "oro")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProviderFailureIsCoded(t *testing.T) {
	f := newFixture(t)
	svc := NewSubscriptionService(f.store, &fakeProvider{err: errors.New("boom")})

	_, err := svc.Create(context.Background(), f.user.ID, "bronce")
	assert.Equal(t, apperr.CodePaymentProviderError, planCode(t, err))
}

func TestCurrentWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	svc := NewSubscriptionService(f.store, &fakeProvider{})

	cur, err := svc.Current(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Nil(t, cur.Subscription)
	assert.False(t, cur.HasAccess)
	assert.Zero(t, cur.Connections.Remaining)
	assert.Len(t, svc.Plans(), 3)
}
