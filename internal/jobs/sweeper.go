// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
)

// SubscriptionSweeper expires cancelled subscriptions whose grace period is
// over and checkouts that were never approved.
type SubscriptionSweeper struct {
	store      store.Store
	pendingTTL time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

func NewSubscriptionSweeper(s store.Store, pendingTTL time.Duration) *SubscriptionSweeper {
	return &SubscriptionSweeper{
		store:      s,
		pendingTTL: pendingTTL,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logging.Component("SubscriptionSweeper"),
	}
}

// SweepResult counts the rows each pass moved to expired.
type SweepResult struct {
	Cancelled int
	Pending   int
}

// Sweep runs one pass. Each row moves with a conditional update, so a row a
// user touched in the meantime is left alone.
func (s *SubscriptionSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	ended, err := s.store.ListCancelledEndingBefore(ctx, now)
	if err != nil {
		return res, fmt.Errorf("listing ended subscriptions: %w", err)
	}
	for _, sub := range ended {
		ok, err := s.store.TransitionSubscription(ctx, sub.ID, models.SubscriptionCancelled, models.SubscriptionExpired)
		if err != nil {
			return res, err
		}
		if ok {
			res.Cancelled++
		}
	}

	stale, err := s.store.ListPendingCreatedBefore(ctx, now.Add(-s.pendingTTL))
	if err != nil {
		return res, fmt.Errorf("listing stale checkouts: %w", err)
	}
	for _, sub := range stale {
		ok, err := s.store.TransitionSubscription(ctx, sub.ID, models.SubscriptionPending, models.SubscriptionExpired)
		if err != nil {
			return res, err
		}
		if ok {
			res.Pending++
		}
	}

	if res.Cancelled+res.Pending > 0 {
		s.log.WithFields(logrus.Fields{"cancelled": res.Cancelled, "pending": res.Pending}).Info("expired subscriptions")
	}
	return res, nil
}

// Scheduler wraps a cron runner for the sweeper.
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Entry
}

// Start schedules sweeper on spec (standard cron or "@every 1h") and starts it.
func Start(spec string, sweeper *SubscriptionSweeper) (*Scheduler, error) {
	log := logging.Component("Scheduler")
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := sweeper.Sweep(ctx); err != nil {
			log.WithError(err).Error("subscription sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.Start()
	log.Infof("subscription sweeper scheduled (%s)", spec)
	return &Scheduler{cron: c, log: log}, nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
