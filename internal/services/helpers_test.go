package services

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"nexosql-backend/internal/aiclient"
	"nexosql-backend/internal/billing"
	"nexosql-backend/internal/config"
	"nexosql-backend/internal/crypto"
	"nexosql-backend/internal/engines"
	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store/gormstore"
	"nexosql-backend/internal/store/storetest"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:       "test-secret",
		TokenExpiration: time.Hour,
		RefreshTTL:      24 * time.Hour,
		AdminEmails:     []string{"admin@nexosql.io"},
	}
}

func testSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

type stubTester struct {
	result *engines.TestResult
	got    engines.Credentials
}

func (s *stubTester) Test(_ context.Context, _ string, creds engines.Credentials) (*engines.TestResult, error) {
	s.got = creds
	return s.result, nil
}

// fakeEngine answers from a script. When block is set, Query waits for it
// or for the context.
type fakeEngine struct {
	mu        sync.Mutex
	resp      *aiclient.QueryResponse
	err       error
	block     chan struct{}
	started   chan struct{}
	requests  []aiclient.QueryRequest
	cancelled []string
}

func (f *fakeEngine) Query(ctx context.Context, req aiclient.QueryRequest) (*aiclient.QueryResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *fakeEngine) Cancel(_ context.Context, threadID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, threadID)
	return true, nil
}

type fakeProvider struct {
	created   *billing.ProviderSubscription
	current   *billing.ProviderSubscription
	err       error
	cancelled []string
	revised   []string
}

func (f *fakeProvider) CreateSubscription(_ context.Context, tier, _ string) (*billing.ProviderSubscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.created, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*billing.ProviderSubscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.current, nil
}

func (f *fakeProvider) CancelSubscription(_ context.Context, id, _ string) error {
	f.cancelled = append(f.cancelled, id)
	return f.err
}

func (f *fakeProvider) ReviseSubscription(_ context.Context, id, tier string) (*billing.ProviderSubscription, error) {
	f.revised = append(f.revised, tier)
	return &billing.ProviderSubscription{ID: id, ApprovalURL: "https://paypal.test/revise"}, f.err
}

type fixture struct {
	store *gormstore.Store
	user  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, s := storetest.Open(t)
	u := &models.User{Email: "ana@example.com", Name: "Ana", PasswordHash: "x", Role: "user"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return &fixture{store: s, user: u}
}

func (f *fixture) subscribe(t *testing.T, tier, status string) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{UserID: f.user.ID, Tier: tier, Status: status, ProviderSubscriptionID: "I-" + uuid.NewString()[:8]}
	require.NoError(t, f.store.CreateSubscription(context.Background(), sub))
	return sub
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
