package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"nexosql-backend/internal/models"
	"nexosql-backend/internal/plans"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apitypes"
)

const (
	DefaultDashboardMonths = 6
	MaxDashboardMonths     = 24
)

type AdminService struct {
	store store.Store
	now   func() time.Time
}

func NewAdminService(s store.Store) *AdminService {
	return &AdminService{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Dashboard buckets activity over the last months calendar months, oldest
// first, the current month included.
func (s *AdminService) Dashboard(ctx context.Context, months int) (*apitypes.Dashboard, error) {
	if months == 0 {
		months = DefaultDashboardMonths
	}
	if months < 1 || months > MaxDashboardMonths {
		return nil, validationErr("months must be between 1 and %d", MaxDashboardMonths)
	}

	thisMonth, end := plans.MonthRange(s.now())
	start := thisMonth.AddDate(0, -(months - 1), 0)

	var (
		events    *store.MetricEvents
		byEngine  []store.EngineCount
		users     int64
		active    int64
		openTicks int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		events, err = s.store.ListMetricEvents(gctx, start, end)
		return err
	})
	g.Go(func() (err error) {
		byEngine, err = s.store.CountConnectionsByEngine(gctx)
		return err
	})
	g.Go(func() (err error) {
		users, err = s.store.CountUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		active, err = s.store.CountSubscriptionsByStatus(gctx, models.SubscriptionActive)
		return err
	})
	g.Go(func() (err error) {
		openTicks, err = s.store.CountTicketsByStatus(gctx, models.TicketOpen, models.TicketInProgress)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading dashboard: %w", err)
	}

	buckets := make([]apitypes.MonthlyMetric, months)
	index := make(map[string]int, months)
	for i := range buckets {
		key := start.AddDate(0, i, 0).Format("2006-01")
		buckets[i].Month = key
		index[key] = i
	}
	tally := func(ts []time.Time, inc func(*apitypes.MonthlyMetric)) {
		for _, t := range ts {
			if i, ok := index[t.UTC().Format("2006-01")]; ok {
				inc(&buckets[i])
			}
		}
	}
	tally(events.SubscriptionsCreated, func(m *apitypes.MonthlyMetric) { m.Subscriptions++ })
	tally(events.Cancellations, func(m *apitypes.MonthlyMetric) { m.Cancellations++ })
	tally(events.Queries, func(m *apitypes.MonthlyMetric) { m.Queries++ })
	tally(events.QueryCancellations, func(m *apitypes.MonthlyMetric) { m.QueryCancellations++ })
	tally(events.ConnectionsCreated, func(m *apitypes.MonthlyMetric) { m.Connections++ })

	engines := make([]apitypes.EngineCount, 0, len(byEngine))
	for _, e := range byEngine {
		engines = append(engines, apitypes.EngineCount{Engine: e.Engine, Count: int(e.Count)})
	}
	sort.SliceStable(engines, func(i, j int) bool {
		if engines[i].Count != engines[j].Count {
			return engines[i].Count > engines[j].Count
		}
		return engines[i].Engine < engines[j].Engine
	})

	return &apitypes.Dashboard{
		Months:              buckets,
		ConnectionsByEngine: engines,
		TotalUsers:          int(users),
		ActiveSubscriptions: int(active),
		OpenTickets:         int(openTicks),
	}, nil
}
