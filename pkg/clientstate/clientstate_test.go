package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/eventbus"
	"nexosql-backend/pkg/localstore"
	"nexosql-backend/pkg/result"
)

// --- auth ---

type fakeAuthAPI struct {
	refreshOK bool
	refreshed []string
	token     string    // empty means "access-" + id
	expiry    time.Time // zero means an hour from now
}

func (f *fakeAuthAPI) auth(id, email string) result.Result[apitypes.AuthResponse] {
	token, expiry := f.token, f.expiry
	if token == "" {
		token = "access-" + id
	}
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	return result.Ok(apitypes.AuthResponse{
		User:         apitypes.User{ID: id, Email: email},
		AccessToken:  token,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    expiry,
	})
}

func (f *fakeAuthAPI) Login(_ context.Context, req apitypes.LoginRequest) result.Result[apitypes.AuthResponse] {
	if req.Password != "correcta" {
		return result.Err[apitypes.AuthResponse](apperr.FromAPI("", "Invalid email or password"))
	}
	return f.auth("u1", req.Email)
}

func (f *fakeAuthAPI) Register(_ context.Context, req apitypes.RegisterRequest) result.Result[apitypes.AuthResponse] {
	return f.auth("u2", req.Email)
}

func (f *fakeAuthAPI) Refresh(_ context.Context, token string) result.Result[apitypes.AuthResponse] {
	f.refreshed = append(f.refreshed, token)
	if !f.refreshOK {
		return result.Err[apitypes.AuthResponse](apperr.FromAPI("", "Invalid token"))
	}
	return f.auth("u1", "ana@example.com")
}

func TestAuthLoginPersistsSnapshot(t *testing.T) {
	store := localstore.NewMemory()
	bus := eventbus.New()
	var events []eventbus.AuthChanged
	bus.AuthChanged.Subscribe(func(e eventbus.AuthChanged) { events = append(events, e) })

	cache := NewAuthCache(&fakeAuthAPI{}, store, bus)
	ctx := context.Background()

	f, failed := cache.Login(ctx, "ana@example.com", "mala").Failure()
	require.True(t, failed)
	assert.Equal(t, "Invalid email or password", f.Message)
	assert.Empty(t, cache.AccessToken(ctx))

	user, ok := cache.Login(ctx, " ana@example.com ", "correcta").Value()
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "access-u1", cache.AccessToken(ctx))

	raw, err := store.Get(ctx, localstore.KeyAuthSession)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))
	assert.Equal(t, "u1", snap.UID)
	assert.Equal(t, "ana@example.com", snap.Email)
	assert.Equal(t, "refresh-u1", snap.RefreshToken)
	assert.NotContains(t, raw, "access-u1")

	require.NoError(t, cache.Logout(ctx))
	assert.Empty(t, cache.AccessToken(ctx))
	_, err = store.Get(ctx, localstore.KeyAuthSession)
	assert.ErrorIs(t, err, localstore.ErrNotFound)

	assert.Equal(t, []eventbus.AuthChanged{{UID: "u1", Email: "ana@example.com"}, {}}, events)
}

func TestAuthLoginValidatesLocally(t *testing.T) {
	cache := NewAuthCache(&fakeAuthAPI{}, localstore.NewMemory(), eventbus.New())
	f, _ := cache.Login(context.Background(), "", "").Failure()
	assert.Equal(t, apperr.KindValidation, f.Kind)
}

func TestAuthRestore(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	api := &fakeAuthAPI{refreshOK: true}

	restored, err := NewAuthCache(api, store, eventbus.New()).Restore(ctx)
	require.NoError(t, err)
	assert.False(t, restored)

	first := NewAuthCache(api, store, eventbus.New())
	require.True(t, first.Login(ctx, "ana@example.com", "correcta").IsOk())

	second := NewAuthCache(api, store, eventbus.New())
	restored, err = second.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, "access-u1", second.AccessToken(ctx))
	assert.Equal(t, []string{"refresh-u1"}, api.refreshed)

	api.refreshOK = false
	restored, err = NewAuthCache(api, store, eventbus.New()).Restore(ctx)
	require.NoError(t, err)
	assert.False(t, restored)
	_, err = store.Get(ctx, localstore.KeyAuthSession)
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestAccessTokenRefreshesNearExpiry(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	api := &fakeAuthAPI{refreshOK: true, expiry: base.Add(time.Hour)}
	bus := eventbus.New()
	var events int
	bus.AuthChanged.Subscribe(func(eventbus.AuthChanged) { events++ })

	cache := NewAuthCache(api, localstore.NewMemory(), bus)
	clock := base
	cache.now = func() time.Time { return clock }
	require.True(t, cache.Login(ctx, "ana@example.com", "correcta").IsOk())

	clock = base.Add(30 * time.Minute)
	assert.Equal(t, "access-u1", cache.AccessToken(ctx))
	assert.Empty(t, api.refreshed)

	api.token, api.expiry = "access-u1-b", base.Add(2*time.Hour)
	clock = base.Add(time.Hour - 10*time.Second)
	var wg sync.WaitGroup
	tokens := make([]string, 4)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i] = cache.AccessToken(ctx)
		}(i)
	}
	wg.Wait()
	for _, tok := range tokens {
		assert.Equal(t, "access-u1-b", tok)
	}
	assert.Equal(t, []string{"refresh-u1"}, api.refreshed)
	sess, _ := cache.Session()
	assert.Equal(t, base.Add(2*time.Hour), sess.ExpiresAt)
	assert.Equal(t, 1, events, "a token swap is not a sign in")

	api.refreshOK = false
	clock = base.Add(3 * time.Hour)
	assert.Equal(t, "access-u1-b", cache.AccessToken(ctx))
	assert.Len(t, api.refreshed, 2)
}

// --- connections ---

type fakeConnAPI struct {
	conns []apitypes.Connection
	fail  bool
}

func (f *fakeConnAPI) ListConnections(context.Context) result.Result[[]apitypes.Connection] {
	if f.fail {
		return result.Err[[]apitypes.Connection](apperr.Network())
	}
	return result.Ok(f.conns)
}

func conns(ids ...string) []apitypes.Connection {
	out := make([]apitypes.Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, apitypes.Connection{ID: id, Name: "db-" + id})
	}
	return out
}

func TestConnectionCacheFallsBackToFirst(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	require.NoError(t, store.Set(ctx, localstore.KeyActiveConnection, "gone"))
	bus := eventbus.New()
	var changed []string
	bus.ConnectionChanged.Subscribe(func(e eventbus.ConnectionChanged) { changed = append(changed, e.ConnectionID) })

	api := &fakeConnAPI{conns: conns("a", "b")}
	cache := NewConnectionCache(api, store, bus)
	require.True(t, cache.Refresh(ctx).IsOk())

	active, ok := cache.Active()
	require.True(t, ok)
	assert.Equal(t, "a", active.ID)
	stored, err := store.Get(ctx, localstore.KeyActiveConnection)
	require.NoError(t, err)
	assert.Equal(t, "a", stored)

	require.NoError(t, cache.SetActive(ctx, "b"))
	assert.ErrorIs(t, cache.SetActive(ctx, "zzz"), ErrUnknownConnection)

	// b is deleted elsewhere; the next refresh repairs the selection.
	api.conns = conns("a")
	cache.Refresh(ctx)
	active, _ = cache.Active()
	assert.Equal(t, "a", active.ID)

	assert.Equal(t, []string{"a", "b", "a"}, changed)
}

func TestConnectionCacheKeepsStoredSelection(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	require.NoError(t, store.Set(ctx, localstore.KeyActiveConnection, "b"))

	cache := NewConnectionCache(&fakeConnAPI{conns: conns("a", "b")}, store, eventbus.New())
	cache.Refresh(ctx)
	active, _ := cache.Active()
	assert.Equal(t, "b", active.ID)
}

func TestConnectionCacheFollowsAuth(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	bus := eventbus.New()
	api := &fakeConnAPI{conns: conns("a")}
	cache := NewConnectionCache(api, store, bus)
	defer cache.Follow(ctx)()

	bus.AuthChanged.Publish(eventbus.AuthChanged{UID: "u1"})
	assert.Len(t, cache.Connections(), 1)

	bus.AuthChanged.Publish(eventbus.AuthChanged{})
	assert.Empty(t, cache.Connections())
	_, err := store.Get(ctx, localstore.KeyActiveConnection)
	assert.ErrorIs(t, err, localstore.ErrNotFound)

	api.fail = true
	cache.Refresh(ctx)
	require.NotNil(t, cache.Err())
	assert.Equal(t, apperr.KindNetwork, cache.Err().Kind)
}

// --- subscription polling ---

type fakeSubAPI struct {
	mu       sync.Mutex
	status   string
	syncs    atomic.Int32
	syncOK   bool
	activate int32 // sync call number that flips the status to active; 0 never
}

func (f *fakeSubAPI) CurrentSubscription(context.Context) result.Result[apitypes.CurrentSubscription] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return result.Ok(apitypes.CurrentSubscription{
		Subscription: &apitypes.Subscription{ID: "s1", ProviderSubscriptionID: "I-1", Status: f.status},
	})
}

func (f *fakeSubAPI) SyncSubscription(context.Context, string) result.Result[apitypes.Subscription] {
	n := f.syncs.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activate != 0 && n >= f.activate {
		f.status = apitypes.SubscriptionActive
	}
	if !f.syncOK {
		return result.Err[apitypes.Subscription](apperr.FromAPI(apperr.CodePaymentProviderError, ""))
	}
	return result.Ok(apitypes.Subscription{Status: f.status})
}

var fastPoll = PollConfig{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second}

func waitDone(t *testing.T, p *Poller) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("poller did not finish")
	}
}

func TestPollerStopsOnceSyncSettles(t *testing.T) {
	api := &fakeSubAPI{status: apitypes.SubscriptionPending, syncOK: true, activate: 3}
	cache := NewSubscriptionCache(api, eventbus.New(), fastPoll)
	cache.load(context.Background())

	p := cache.StartPolling(context.Background())
	waitDone(t, p)
	assert.Equal(t, StopSynced, p.Reason())
	// the first two syncs succeed but still report pending
	assert.EqualValues(t, 3, api.syncs.Load())
	cur, _ := cache.Current()
	assert.Equal(t, apitypes.SubscriptionActive, cur.Subscription.Status)
	assert.Nil(t, cache.ActivePoller())
}

func TestPollerStopsWhenLeavingPending(t *testing.T) {
	api := &fakeSubAPI{status: apitypes.SubscriptionPending, activate: 3}
	cache := NewSubscriptionCache(api, eventbus.New(), fastPoll)
	cache.load(context.Background())

	p := cache.StartPolling(context.Background())
	waitDone(t, p)
	assert.Equal(t, StopLeftPending, p.Reason())
	cur, _ := cache.Current()
	assert.Equal(t, apitypes.SubscriptionActive, cur.Subscription.Status)
}

func TestPollerTimesOut(t *testing.T) {
	api := &fakeSubAPI{status: apitypes.SubscriptionPending}
	cache := NewSubscriptionCache(api, eventbus.New(), PollConfig{Interval: 5 * time.Millisecond, Timeout: 40 * time.Millisecond})
	cache.load(context.Background())

	p := cache.StartPolling(context.Background())
	waitDone(t, p)
	assert.Equal(t, StopTimeout, p.Reason())
}

func TestStopPollingHaltsSyncCalls(t *testing.T) {
	api := &fakeSubAPI{status: apitypes.SubscriptionPending}
	cache := NewSubscriptionCache(api, eventbus.New(), fastPoll)
	cache.load(context.Background())

	p := cache.StartPolling(context.Background())
	require.Eventually(t, func() bool { return api.syncs.Load() >= 2 }, time.Second, time.Millisecond)
	cache.StopPolling(p)
	after := api.syncs.Load()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, api.syncs.Load())
	assert.Equal(t, StopRequested, p.Reason())
	cache.StopPolling(p)
}

func TestPollerNotPendingFinishesImmediately(t *testing.T) {
	api := &fakeSubAPI{status: apitypes.SubscriptionActive}
	cache := NewSubscriptionCache(api, eventbus.New(), fastPoll)
	cache.load(context.Background())

	p := cache.StartPolling(context.Background())
	waitDone(t, p)
	assert.Equal(t, StopLeftPending, p.Reason())
	assert.Zero(t, api.syncs.Load())
}

func TestLogoutStopsPolling(t *testing.T) {
	bus := eventbus.New()
	api := &fakeSubAPI{status: apitypes.SubscriptionPending}
	cache := NewSubscriptionCache(api, bus, fastPoll)
	defer cache.Follow(context.Background())()

	bus.AuthChanged.Publish(eventbus.AuthChanged{UID: "u1"})
	p := cache.ActivePoller()
	require.NotNil(t, p)
	bus.AuthChanged.Publish(eventbus.AuthChanged{})

	waitDone(t, p)
	assert.Equal(t, StopRequested, p.Reason())
	assert.Nil(t, cache.ActivePoller())
	_, ok := cache.Current()
	assert.False(t, ok)
}

func TestFollowStartsPollingWhenPending(t *testing.T) {
	bus := eventbus.New()
	api := &fakeSubAPI{status: apitypes.SubscriptionPending, activate: 2}
	cache := NewSubscriptionCache(api, bus, fastPoll)
	defer cache.Follow(context.Background())()

	bus.AuthChanged.Publish(eventbus.AuthChanged{UID: "u1"})
	p := cache.ActivePoller()
	require.NotNil(t, p)

	waitDone(t, p)
	assert.Equal(t, StopLeftPending, p.Reason())
	assert.GreaterOrEqual(t, api.syncs.Load(), int32(2))

	// a second load that finds nothing pending starts no poller
	cache.Refresh(context.Background())
	assert.Nil(t, cache.ActivePoller())
}

func TestRefreshKeepsRunningPoller(t *testing.T) {
	api := &fakeSubAPI{status: apitypes.SubscriptionPending}
	cache := NewSubscriptionCache(api, eventbus.New(), fastPoll)

	cache.Refresh(context.Background())
	p := cache.ActivePoller()
	require.NotNil(t, p)
	cache.Refresh(context.Background())
	assert.Same(t, p, cache.ActivePoller())

	cache.StopPolling(p)
	assert.Nil(t, cache.ActivePoller())
}

type fixedSubAPI struct {
	cur apitypes.CurrentSubscription
}

func (f fixedSubAPI) CurrentSubscription(context.Context) result.Result[apitypes.CurrentSubscription] {
	return result.Ok(f.cur)
}

func (f fixedSubAPI) SyncSubscription(context.Context, string) result.Result[apitypes.Subscription] {
	return result.Ok(*f.cur.Subscription)
}

func TestCanCreateConnection(t *testing.T) {
	plata := func(used int) apitypes.CurrentSubscription {
		return apitypes.CurrentSubscription{
			Subscription: &apitypes.Subscription{ID: "s1", Tier: "plata", Status: apitypes.SubscriptionActive},
			HasAccess:    true,
			Connections:  apitypes.Usage{Used: used, Limit: 5, Remaining: 5 - used},
		}
	}

	tests := []struct {
		name string
		cur  apitypes.CurrentSubscription
		want bool
	}{
		{"plata 3 of 5", plata(3), true},
		{"plata 5 of 5", plata(5), false},
		{"no access", apitypes.CurrentSubscription{Subscription: &apitypes.Subscription{Status: apitypes.SubscriptionPending}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewSubscriptionCache(fixedSubAPI{cur: tt.cur}, eventbus.New(), fastPoll)
			assert.False(t, cache.CanCreateConnection())
			cache.load(context.Background())
			assert.Equal(t, tt.want, cache.CanCreateConnection())
		})
	}
}

// --- migration flag ---

func TestMigrateChatsOnce(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	calls := 0

	ran, err := MigrateChatsOnce(ctx, store, func(context.Context) error {
		calls++
		return errors.New("offline")
	})
	assert.True(t, ran)
	assert.Error(t, err)

	ran, err = MigrateChatsOnce(ctx, store, func(context.Context) error { calls++; return nil })
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = MigrateChatsOnce(ctx, store, func(context.Context) error { calls++; return nil })
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 2, calls)
}
