package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nexosql-backend/internal/models"
	"nexosql-backend/internal/plans"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apperr"
)

// entitlement is the caller's current subscription and what it unlocks.
type entitlement struct {
	sub  *models.Subscription
	plan plans.Plan
}

// currentEntitlement returns the plan the user may use right now, or a
// PlanError explaining why there is none.
func currentEntitlement(ctx context.Context, st store.Store, userID uuid.UUID, now time.Time) (*entitlement, error) {
	sub, err := st.GetLatestSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, planErr(apperr.CodeNoActiveSubscription)
		}
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	if !plans.GrantsAccess(sub.Status, sub.EndDate, now) {
		switch sub.Status {
		case models.SubscriptionPending:
			return nil, planErr(apperr.CodeSubscriptionPending)
		case models.SubscriptionSuspended:
			return nil, planErr(apperr.CodeSubscriptionSuspended)
		case models.SubscriptionExpired, models.SubscriptionCancelled:
			return nil, planErr(apperr.CodeSubscriptionExpired)
		}
		return nil, planErr(apperr.CodeNoActiveSubscription)
	}
	plan, ok := plans.Get(sub.Tier)
	if !ok {
		return nil, planErr(apperr.CodePlanNotFound)
	}
	return &entitlement{sub: sub, plan: plan}, nil
}

// monthlyQueries counts the completed queries of the calendar month of now.
func monthlyQueries(ctx context.Context, st store.Store, userID uuid.UUID, now time.Time) (int, error) {
	from, to := plans.MonthRange(now)
	n, err := st.CountQueries(ctx, userID, from, to, models.QueryCompleted)
	if err != nil {
		return 0, fmt.Errorf("counting queries: %w", err)
	}
	return int(n), nil
}
