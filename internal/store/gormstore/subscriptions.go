package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nexosql-backend/internal/models"
)

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return translate(s.db.WithContext(ctx).Create(sub).Error, "creating subscription")
}

// GetLatestSubscription returns the user's most recently created subscription.
func (s *Store) GetLatestSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").First(&sub).Error
	if err != nil {
		return nil, translate(err, "fetching latest subscription")
	}
	return &sub, nil
}

func (s *Store) GetSubscriptionByProviderID(ctx context.Context, providerID string, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("provider_subscription_id = ? AND user_id = ?", providerID, userID).
		First(&sub).Error
	if err != nil {
		return nil, translate(err, "fetching subscription by provider id")
	}
	return &sub, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
		"tier":                     sub.Tier,
		"status":                   sub.Status,
		"price":                    sub.Price,
		"currency":                 sub.Currency,
		"provider_subscription_id": sub.ProviderSubscriptionID,
		"start_date":               sub.StartDate,
		"next_billing_date":        sub.NextBillingDate,
		"end_date":                 sub.EndDate,
		"cancelled_at":             sub.CancelledAt,
		"cancel_reason":            sub.CancelReason,
	})
	return affected(res, "updating subscription")
}

func (s *Store) TransitionSubscription(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, translate(res.Error, "transitioning subscription")
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListCancelledEndingBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND end_date IS NOT NULL AND end_date <= ?", models.SubscriptionCancelled, t).
		Limit(500).
		Find(&out).Error
	return out, translate(err, "listing ended cancellations")
}

func (s *Store) ListPendingCreatedBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", models.SubscriptionPending, t).
		Limit(500).
		Find(&out).Error
	return out, translate(err, "listing stale pending subscriptions")
}

func (s *Store) CountSubscriptionsByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("status = ?", status).Count(&n).Error
	return n, translate(err, "counting subscriptions")
}
