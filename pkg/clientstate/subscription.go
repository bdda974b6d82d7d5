package clientstate

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/eventbus"
	"nexosql-backend/pkg/result"
)

type SubscriptionAPI interface {
	CurrentSubscription(ctx context.Context) result.Result[apitypes.CurrentSubscription]
	SyncSubscription(ctx context.Context, providerID string) result.Result[apitypes.Subscription]
}

// PollConfig bounds the pending-payment poller.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

var DefaultPollConfig = PollConfig{Interval: 5 * time.Second, Timeout: 5 * time.Minute}

// StopReason says why a Poller finished.
type StopReason int

const (
	StopNone StopReason = iota
	StopLeftPending
	StopSynced
	StopTimeout
	StopRequested
)

// Poller is one running pending-payment poll loop. Only StopPolling and the
// loop itself end it.
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	reason StopReason
}

// Done is closed when the loop has exited.
func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) Reason() StopReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *Poller) finish(r StopReason) {
	p.mu.Lock()
	if p.reason == StopNone {
		p.reason = r
	}
	p.mu.Unlock()
}

type SubscriptionCache struct {
	mu      sync.RWMutex
	api     SubscriptionAPI
	bus     *eventbus.Bus
	poll    PollConfig
	current *apitypes.CurrentSubscription
	lastErr *apperr.Failure
	poller  *Poller
	log     *logrus.Entry
}

func NewSubscriptionCache(api SubscriptionAPI, bus *eventbus.Bus, poll PollConfig) *SubscriptionCache {
	if poll.Interval <= 0 {
		poll.Interval = DefaultPollConfig.Interval
	}
	if poll.Timeout <= 0 {
		poll.Timeout = DefaultPollConfig.Timeout
	}
	return &SubscriptionCache{
		api:  api,
		bus:  bus,
		poll: poll,
		log:  logrus.WithField("component", "SubscriptionCache"),
	}
}

// Follow loads on sign in; logout stops polling and clears the cache.
func (s *SubscriptionCache) Follow(ctx context.Context) (unsubscribe func()) {
	return s.bus.AuthChanged.Subscribe(func(e eventbus.AuthChanged) {
		if e.UID == "" {
			s.Reset()
			return
		}
		s.Refresh(ctx)
	})
}

// Refresh reloads the subscription. A pending one starts the poller unless
// one is already running.
func (s *SubscriptionCache) Refresh(ctx context.Context) result.Result[apitypes.CurrentSubscription] {
	res := s.load(ctx)
	if _, pending := s.Pending(); pending && s.ActivePoller() == nil {
		s.StartPolling(ctx)
	}
	return res
}

func (s *SubscriptionCache) load(ctx context.Context) result.Result[apitypes.CurrentSubscription] {
	res := s.api.CurrentSubscription(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := res.Value(); ok {
		s.current = &cur
		s.lastErr = nil
	} else {
		f, _ := res.Failure()
		s.lastErr = &f
	}
	return res
}

func (s *SubscriptionCache) Current() (apitypes.CurrentSubscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return apitypes.CurrentSubscription{}, false
	}
	return *s.current, true
}

func (s *SubscriptionCache) Err() *apperr.Failure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Pending reports whether the cached subscription awaits payment approval,
// and its provider id.
func (s *SubscriptionCache) Pending() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Subscription == nil {
		return "", false
	}
	sub := s.current.Subscription
	return sub.ProviderSubscriptionID, sub.Status == apitypes.SubscriptionPending
}

// Reset stops any poller and forgets the cached subscription.
func (s *SubscriptionCache) Reset() {
	s.mu.Lock()
	p := s.poller
	s.poller = nil
	s.current = nil
	s.lastErr = nil
	s.mu.Unlock()
	s.StopPolling(p)
}

// CanCreateConnection reports whether the cached plan has room for another
// connection.
func (s *SubscriptionCache) CanCreateConnection() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.HasAccess && s.current.Connections.Remaining > 0
}

// ActivePoller returns the running poller, or nil.
func (s *SubscriptionCache) ActivePoller() *Poller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poller
}

// StartPolling syncs the pending subscription every interval until it leaves
// pending, a sync reports it settled, or the timeout passes. A poller already
// running is stopped first.
func (s *SubscriptionCache) StartPolling(ctx context.Context) *Poller {
	s.mu.Lock()
	prev := s.poller
	s.poller = nil
	s.mu.Unlock()
	s.StopPolling(prev)

	pctx, cancel := context.WithTimeout(ctx, s.poll.Timeout)
	p := &Poller{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.poller = p
	s.mu.Unlock()

	go s.run(pctx, p)
	return p
}

// StopPolling stops p and waits for its loop to exit; no sync call is made
// once it returns. A nil or finished poller is a no-op.
func (s *SubscriptionCache) StopPolling(p *Poller) {
	if p == nil {
		return
	}
	p.finish(StopRequested)
	p.cancel()
	<-p.done

	s.mu.Lock()
	if s.poller == p {
		s.poller = nil
	}
	s.mu.Unlock()
}

func (s *SubscriptionCache) run(ctx context.Context, p *Poller) {
	defer close(p.done)
	defer p.cancel()
	defer func() {
		s.mu.Lock()
		if s.poller == p {
			s.poller = nil
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.poll.Interval)
	defer ticker.Stop()

	for {
		providerID, pending := s.Pending()
		if !pending {
			p.finish(StopLeftPending)
			return
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				p.finish(StopTimeout)
				s.log.Info("gave up waiting for payment approval")
			}
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			continue
		}

		if providerID != "" {
			if sub, ok := s.api.SyncSubscription(ctx, providerID).Value(); ok && sub.Status != apitypes.SubscriptionPending {
				s.load(ctx)
				p.finish(StopSynced)
				return
			}
		}
		s.load(ctx)
	}
}
