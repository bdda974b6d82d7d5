package clientstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/eventbus"
	"nexosql-backend/pkg/localstore"
	"nexosql-backend/pkg/result"
)

type ConnectionAPI interface {
	ListConnections(ctx context.Context) result.Result[[]apitypes.Connection]
}

var ErrUnknownConnection = errors.New("connection not in the current list")

// ConnectionCache keeps the user's connections and which one is active.
// The active id is persisted and always re-validated against the latest list.
type ConnectionCache struct {
	mu      sync.RWMutex
	api     ConnectionAPI
	storage localstore.Storage
	bus     *eventbus.Bus
	conns   []apitypes.Connection
	active  string
	lastErr *apperr.Failure
	log     *logrus.Entry
}

func NewConnectionCache(api ConnectionAPI, storage localstore.Storage, bus *eventbus.Bus) *ConnectionCache {
	return &ConnectionCache{
		api:     api,
		storage: storage,
		bus:     bus,
		log:     logrus.WithField("component", "ConnectionCache"),
	}
}

// Follow loads the list when someone signs in and resets it on logout.
func (c *ConnectionCache) Follow(ctx context.Context) (unsubscribe func()) {
	return c.bus.AuthChanged.Subscribe(func(e eventbus.AuthChanged) {
		if e.UID == "" {
			c.Reset(ctx)
			return
		}
		c.Refresh(ctx)
	})
}

// Refresh reloads the list and fixes up the active selection.
func (c *ConnectionCache) Refresh(ctx context.Context) result.Result[[]apitypes.Connection] {
	res := c.api.ListConnections(ctx)
	conns, ok := res.Value()
	if !ok {
		f, _ := res.Failure()
		c.mu.Lock()
		c.lastErr = &f
		c.mu.Unlock()
		return res
	}

	stored, err := c.storage.Get(ctx, localstore.KeyActiveConnection)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		c.log.WithError(err).Warn("reading active connection")
	}

	c.mu.Lock()
	prev := c.active
	c.conns = conns
	c.lastErr = nil
	c.active = pickActive(conns, stored)
	active := c.active
	c.mu.Unlock()

	if active != stored {
		c.persist(ctx, active)
	}
	if active != prev {
		c.bus.ConnectionChanged.Publish(eventbus.ConnectionChanged{ConnectionID: active})
	}
	return res
}

// pickActive keeps want when it is still listed and falls back to the first entry.
func pickActive(conns []apitypes.Connection, want string) string {
	for _, conn := range conns {
		if conn.ID == want {
			return want
		}
	}
	if len(conns) > 0 {
		return conns[0].ID
	}
	return ""
}

// SetActive selects id, which must be in the current list.
func (c *ConnectionCache) SetActive(ctx context.Context, id string) error {
	c.mu.Lock()
	if pickActive(c.conns, id) != id || id == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	changed := c.active != id
	c.active = id
	c.mu.Unlock()

	c.persist(ctx, id)
	if changed {
		c.bus.ConnectionChanged.Publish(eventbus.ConnectionChanged{ConnectionID: id})
	}
	return nil
}

// Reset drops everything, including the persisted selection.
func (c *ConnectionCache) Reset(ctx context.Context) {
	c.mu.Lock()
	hadActive := c.active != ""
	c.conns = nil
	c.active = ""
	c.lastErr = nil
	c.mu.Unlock()

	c.persist(ctx, "")
	if hadActive {
		c.bus.ConnectionChanged.Publish(eventbus.ConnectionChanged{})
	}
}

func (c *ConnectionCache) persist(ctx context.Context, id string) {
	var err error
	if id == "" {
		err = c.storage.Delete(ctx, localstore.KeyActiveConnection)
	} else {
		err = c.storage.Set(ctx, localstore.KeyActiveConnection, id)
	}
	if err != nil {
		c.log.WithError(err).Warn("persisting active connection")
	}
}

func (c *ConnectionCache) Connections() []apitypes.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]apitypes.Connection(nil), c.conns...)
}

// Active returns the selected connection.
func (c *ConnectionCache) Active() (apitypes.Connection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conn := range c.conns {
		if conn.ID == c.active {
			return conn, true
		}
	}
	return apitypes.Connection{}, false
}

// Err is the failure of the last Refresh, nil after a successful one.
func (c *ConnectionCache) Err() *apperr.Failure {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
