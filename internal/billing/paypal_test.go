package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexosql-backend/internal/config"
	"nexosql-backend/internal/models"
)

type fakePayPal struct {
	tokenCalls int32
	lastBody   map[string]interface{}
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		atomic.AddInt32(&f.tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/billing/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"I-123","status":"APPROVAL_PENDING","links":[
			{"href":"https://paypal.test/approve/I-123","rel":"approve"},
			{"href":"https://api.paypal.test/v1/billing/subscriptions/I-123","rel":"self"}]}`))
	})
	mux.HandleFunc("/v1/billing/subscriptions/I-123", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"I-123","status":"ACTIVE","start_time":"2026-10-01T10:00:00Z",
			"billing_info":{"next_billing_time":"2026-11-01T10:00:00Z"}}`))
	})
	mux.HandleFunc("/v1/billing/subscriptions/I-123/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/billing/subscriptions/I-404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"name":"RESOURCE_NOT_FOUND"}`))
	})
	return mux
}

func newTestClient(t *testing.T) (*PayPal, *fakePayPal) {
	f := &fakePayPal{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	p := NewPayPal(context.Background(), config.PayPalConfig{
		BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret",
		PlanIDs:   map[string]string{"plata": "P-PLATA"},
		ReturnURL: "http://app/ok", CancelURL: "http://app/cancel",
	})
	return p, f
}

func TestCreateSubscription(t *testing.T) {
	p, f := newTestClient(t)

	sub, err := p.CreateSubscription(context.Background(), "plata", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "I-123", sub.ID)
	assert.Equal(t, models.SubscriptionPending, sub.Status)
	assert.Equal(t, "https://paypal.test/approve/I-123", sub.ApprovalURL)
	assert.Equal(t, "P-PLATA", f.lastBody["plan_id"])
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.tokenCalls))
}

func TestCreateSubscriptionUnknownTier(t *testing.T) {
	p, _ := newTestClient(t)
	_, err := p.CreateSubscription(context.Background(), "oro", "ana@example.com")
	assert.ErrorIs(t, err, ErrPlanNotConfigured)
}

func TestGetSubscriptionReusesToken(t *testing.T) {
	p, f := newTestClient(t)
	ctx := context.Background()

	sub, err := p.GetSubscription(ctx, "I-123")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.NextBillingTime)
	assert.Equal(t, 11, int(sub.NextBillingTime.Month()))

	require.NoError(t, p.CancelSubscription(ctx, "I-123", ""))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.tokenCalls))
}

func TestProviderErrors(t *testing.T) {
	p, _ := newTestClient(t)
	_, err := p.GetSubscription(context.Background(), "I-404")
	assert.ErrorIs(t, err, ErrProvider)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]string{
		"ACTIVE":           models.SubscriptionActive,
		"APPROVAL_PENDING": models.SubscriptionPending,
		"APPROVED":         models.SubscriptionPending,
		"SUSPENDED":        models.SubscriptionSuspended,
		"CANCELLED":        models.SubscriptionCancelled,
		"EXPIRED":          models.SubscriptionExpired,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapStatus(raw), raw)
	}
}
