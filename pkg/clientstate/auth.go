// Package clientstate holds the client-side caches: the signed-in session,
// the user's connections with the active selection, and the subscription.
package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/eventbus"
	"nexosql-backend/pkg/localstore"
	"nexosql-backend/pkg/result"
)

// AuthAPI is the part of the API client the auth cache needs.
type AuthAPI interface {
	Login(ctx context.Context, req apitypes.LoginRequest) result.Result[apitypes.AuthResponse]
	Register(ctx context.Context, req apitypes.RegisterRequest) result.Result[apitypes.AuthResponse]
	Refresh(ctx context.Context, refreshToken string) result.Result[apitypes.AuthResponse]
}

// Snapshot is what survives a restart. The access token is not persisted;
// Restore trades the refresh token for a new one.
type Snapshot struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	Timestamp    time.Time `json:"timestamp"`
	RefreshToken string    `json:"refreshToken"`
}

type Session struct {
	User        apitypes.User
	AccessToken string
	ExpiresAt   time.Time
	snapshot    Snapshot
}

// tokenLeeway is how close to expiry an access token gets swapped.
const tokenLeeway = 30 * time.Second

// AuthCache owns the signed-in session and doubles as the API client's
// token source.
type AuthCache struct {
	mu        sync.RWMutex
	refreshMu sync.Mutex
	api       AuthAPI
	storage   localstore.Storage
	bus       *eventbus.Bus
	session   *Session
	now       func() time.Time
	log       *logrus.Entry
}

func NewAuthCache(api AuthAPI, storage localstore.Storage, bus *eventbus.Bus) *AuthCache {
	return &AuthCache{
		api:     api,
		storage: storage,
		bus:     bus,
		now:     time.Now,
		log:     logrus.WithField("component", "AuthCache"),
	}
}

// AccessToken implements apiclient.TokenSource. A token about to expire is
// traded for a new one first; concurrent callers share that single refresh.
// When the refresh fails the old token is returned and the server decides.
func (a *AuthCache) AccessToken(ctx context.Context) string {
	sess, ok := a.Session()
	if !ok {
		return ""
	}
	if !a.expiring(sess) {
		return sess.AccessToken
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()
	sess, ok = a.Session()
	if !ok {
		return ""
	}
	if !a.expiring(sess) {
		return sess.AccessToken
	}

	resp, ok := a.api.Refresh(ctx, sess.snapshot.RefreshToken).Value()
	if !ok {
		a.log.WithField("uid", sess.User.ID).Warn("refreshing access token failed")
		return sess.AccessToken
	}
	if resp.User.ID != sess.User.ID {
		a.log.WithField("uid", sess.User.ID).Warn("refresh returned a different user, ignoring")
		return sess.AccessToken
	}
	return a.install(ctx, resp).AccessToken
}

func (a *AuthCache) expiring(sess Session) bool {
	return !sess.ExpiresAt.IsZero() && !a.now().Before(sess.ExpiresAt.Add(-tokenLeeway))
}

// Session returns the current session, if any.
func (a *AuthCache) Session() (Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return Session{}, false
	}
	return *a.session, true
}

func (a *AuthCache) Login(ctx context.Context, email, password string) result.Result[apitypes.User] {
	email = strings.TrimSpace(email)
	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return result.Err[apitypes.User](apperr.MissingFields(missing))
	}
	return a.adopt(ctx, a.api.Login(ctx, apitypes.LoginRequest{Email: email, Password: password}))
}

func (a *AuthCache) Register(ctx context.Context, req apitypes.RegisterRequest) result.Result[apitypes.User] {
	var missing []string
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return result.Err[apitypes.User](apperr.MissingFields(missing))
	}
	return a.adopt(ctx, a.api.Register(ctx, req))
}

// Restore resumes the persisted session. It reports false, with no error,
// when there is nothing to restore or the refresh token was rejected.
func (a *AuthCache) Restore(ctx context.Context) (bool, error) {
	raw, err := a.storage.Get(ctx, localstore.KeyAuthSession)
	if errors.Is(err, localstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil || snap.RefreshToken == "" {
		a.log.Warn("discarding unreadable session snapshot")
		return false, a.storage.Delete(ctx, localstore.KeyAuthSession)
	}

	res := a.adopt(ctx, a.api.Refresh(ctx, snap.RefreshToken))
	if f, failed := res.Failure(); failed {
		if f.Kind == apperr.KindNetwork || f.Kind == apperr.KindCancelled {
			return false, f
		}
		a.log.WithField("uid", snap.UID).Info("stored session rejected, signing out")
		return false, a.storage.Delete(ctx, localstore.KeyAuthSession)
	}
	return true, nil
}

// Logout forgets the session locally. Tokens are stateless so there is
// nothing to revoke server side.
func (a *AuthCache) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	err := a.storage.Delete(ctx, localstore.KeyAuthSession)
	a.bus.AuthChanged.Publish(eventbus.AuthChanged{})
	return err
}

func (a *AuthCache) adopt(ctx context.Context, res result.Result[apitypes.AuthResponse]) result.Result[apitypes.User] {
	resp, ok := res.Value()
	if !ok {
		f, _ := res.Failure()
		return result.Err[apitypes.User](f)
	}
	a.install(ctx, resp)
	a.bus.AuthChanged.Publish(eventbus.AuthChanged{UID: resp.User.ID, Email: resp.User.Email})
	return result.Ok(resp.User)
}

// install makes resp the current session and persists its snapshot.
func (a *AuthCache) install(ctx context.Context, resp apitypes.AuthResponse) *Session {
	sess := &Session{
		User:        resp.User,
		AccessToken: resp.AccessToken,
		ExpiresAt:   resp.ExpiresAt,
		snapshot: Snapshot{
			UID:          resp.User.ID,
			Email:        resp.User.Email,
			Timestamp:    a.now().UTC(),
			RefreshToken: resp.RefreshToken,
		},
	}
	raw, err := json.Marshal(sess.snapshot)
	if err == nil {
		err = a.storage.Set(ctx, localstore.KeyAuthSession, string(raw))
	}
	if err != nil {
		a.log.WithError(err).Warn("persisting session snapshot")
	}

	a.mu.Lock()
	a.session = sess
	a.mu.Unlock()
	return sess
}
