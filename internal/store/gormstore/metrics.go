package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
)

func (s *Store) CreateQueryLog(ctx context.Context, entry *models.QueryLog) error {
	return translate(s.db.WithContext(ctx).Create(entry).Error, "creating query log")
}

// CountQueries counts the user's logged queries in [from, to) with any of statuses.
func (s *Store) CountQueries(ctx context.Context, userID uuid.UUID, from, to time.Time, statuses ...string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.QueryLog{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var n int64
	return n, translate(q.Count(&n).Error, "counting queries")
}

// ListMetricEvents plucks the timestamps behind each dashboard series.
// Bucketing happens in Go so the same code runs on every dialect.
func (s *Store) ListMetricEvents(ctx context.Context, from, to time.Time) (*store.MetricEvents, error) {
	db := s.db.WithContext(ctx)
	ev := &store.MetricEvents{}

	if err := db.Model(&models.Subscription{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Pluck("created_at", &ev.SubscriptionsCreated).Error; err != nil {
		return nil, translate(err, "plucking subscriptions")
	}
	if err := db.Model(&models.Subscription{}).
		Where("cancelled_at IS NOT NULL AND cancelled_at >= ? AND cancelled_at < ?", from, to).
		Pluck("cancelled_at", &ev.Cancellations).Error; err != nil {
		return nil, translate(err, "plucking cancellations")
	}
	if err := db.Model(&models.Connection{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Pluck("created_at", &ev.ConnectionsCreated).Error; err != nil {
		return nil, translate(err, "plucking connections")
	}
	if err := db.Model(&models.QueryLog{}).
		Where("created_at >= ? AND created_at < ? AND status <> ?", from, to, models.QueryCancelled).
		Pluck("created_at", &ev.Queries).Error; err != nil {
		return nil, translate(err, "plucking queries")
	}
	if err := db.Model(&models.QueryLog{}).
		Where("created_at >= ? AND created_at < ? AND status = ?", from, to, models.QueryCancelled).
		Pluck("created_at", &ev.QueryCancellations).Error; err != nil {
		return nil, translate(err, "plucking query cancellations")
	}
	return ev, nil
}
