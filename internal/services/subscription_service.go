package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nexosql-backend/internal/billing"
	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/models"
	"nexosql-backend/internal/plans"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
)

type SubscriptionService struct {
	store    store.Store
	provider billing.Provider
	now      func() time.Time
	log      *logrus.Entry
}

func NewSubscriptionService(s store.Store, provider billing.Provider) *SubscriptionService {
	return &SubscriptionService{
		store:    s,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.Component("SubscriptionService"),
	}
}

func (s *SubscriptionService) Plans() []apitypes.Plan {
	all := plans.All()
	out := make([]apitypes.Plan, 0, len(all))
	for _, p := range all {
		out = append(out, p.ToAPI())
	}
	return out
}

func (s *SubscriptionService) latest(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.store.GetLatestSubscription(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	return sub, nil
}

// Current returns the latest subscription with plan usage. A user without a
// subscription gets a zero-limit view rather than an error.
func (s *SubscriptionService) Current(ctx context.Context, userID uuid.UUID) (*apitypes.CurrentSubscription, error) {
	now := s.now()
	sub, err := s.latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	conns, err := s.store.CountConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting connections: %w", err)
	}
	queries, err := monthlyQueries(ctx, s.store, userID, now)
	if err != nil {
		return nil, err
	}

	out := &apitypes.CurrentSubscription{
		Connections: plans.NewUsage(int(conns), 0),
		Queries:     plans.NewUsage(queries, 0),
	}
	if sub == nil {
		return out, nil
	}
	out.Subscription = toAPISubscription(sub)
	out.HasAccess = plans.GrantsAccess(sub.Status, sub.EndDate, now)
	if plan, ok := plans.Get(sub.Tier); ok {
		p := plan.ToAPI()
		out.Plan = &p
		if out.HasAccess {
			out.Connections = plans.NewUsage(int(conns), plan.ConnectionLimit)
			out.Queries = plans.NewUsage(queries, plan.MonthlyQueryLimit)
		}
	}
	return out, nil
}

// Stats summarizes the caller's usage for the billing page.
func (s *SubscriptionService) Stats(ctx context.Context, userID uuid.UUID) (*apitypes.SubscriptionStats, error) {
	cur, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	chats, err := s.store.CountChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting chats: %w", err)
	}
	now := s.now()
	from, to := plans.MonthRange(now)
	cancelled, err := s.store.CountQueries(ctx, userID, from, to, models.QueryCancelled)
	if err != nil {
		return nil, fmt.Errorf("counting cancelled queries: %w", err)
	}

	out := &apitypes.SubscriptionStats{
		Connections:           cur.Connections,
		Queries:               cur.Queries,
		Chats:                 int(chats),
		QueriesCancelledMonth: int(cancelled),
	}
	if sub := cur.Subscription; sub != nil {
		out.Tier = sub.Tier
		out.Status = sub.Status
		renewal := sub.NextBillingDate
		if sub.Status == models.SubscriptionCancelled {
			renewal = sub.EndDate
		}
		if renewal != nil && renewal.After(now) {
			days := int(math.Ceil(renewal.Sub(now).Hours() / 24))
			out.DaysUntilRenewal = &days
		}
	}
	return out, nil
}

// Create starts a checkout with the payment provider. The subscription stays
// pending until Confirm or Sync sees the provider activate it.
func (s *SubscriptionService) Create(ctx context.Context, userID uuid.UUID, tier string) (*apitypes.CreateSubscriptionResponse, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	plan, ok := plans.Get(tier)
	if !ok {
		return nil, planErr(apperr.CodePlanNotFound)
	}
	now := s.now()
	prev, err := s.latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		switch {
		case prev.Status == models.SubscriptionActive && plans.GrantsAccess(prev.Status, prev.EndDate, now):
			return nil, planErr(apperr.CodeSubscriptionAlreadyActive)
		case prev.Status == models.SubscriptionPending:
			// An abandoned checkout; the new one replaces it.
			if _, err := s.store.TransitionSubscription(ctx, prev.ID, models.SubscriptionPending, models.SubscriptionExpired); err != nil {
				return nil, fmt.Errorf("expiring abandoned checkout: %w", err)
			}
		}
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	ps, err := s.provider.CreateSubscription(ctx, tier, user.Email)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("provider create failed")
		return nil, &PlanError{Code: apperr.CodePaymentProviderError, Detail: err.Error()}
	}

	sub := &models.Subscription{
		UserID:                 userID,
		Tier:                   plan.Tier,
		Status:                 models.SubscriptionPending,
		Price:                  plan.Price,
		Currency:               plan.Currency,
		ProviderSubscriptionID: ps.ID,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "tier": tier, "provider_id": ps.ID}).Info("checkout started")
	return &apitypes.CreateSubscriptionResponse{Subscription: *toAPISubscription(sub), ApprovalURL: ps.ApprovalURL}, nil
}

// Confirm is called when the user returns from the provider. It fails with
// the matching plan code unless the subscription is now active.
func (s *SubscriptionService) Confirm(ctx context.Context, userID uuid.UUID, providerID string) (*apitypes.Subscription, error) {
	sub, err := s.Sync(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case models.SubscriptionActive:
		return sub, nil
	case models.SubscriptionPending:
		return nil, planErr(apperr.CodeSubscriptionPending)
	case models.SubscriptionSuspended:
		return nil, planErr(apperr.CodeSubscriptionSuspended)
	default:
		return nil, planErr(apperr.CodeSubscriptionExpired)
	}
}

// Sync pulls the provider's view of a subscription into the local row.
func (s *SubscriptionService) Sync(ctx context.Context, userID uuid.UUID, providerID string) (*apitypes.Subscription, error) {
	sub, err := s.store.GetSubscriptionByProviderID(ctx, providerID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, planErr(apperr.CodeSubscriptionNotFound)
		}
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	ps, err := s.provider.GetSubscription(ctx, providerID)
	if err != nil {
		return nil, &PlanError{Code: apperr.CodePaymentProviderError, Detail: err.Error()}
	}

	before := sub.Status
	s.apply(sub, ps)
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	if before != sub.Status {
		s.log.WithFields(logrus.Fields{"user_id": userID, "provider_id": providerID}).
			Infof("subscription %s -> %s", before, sub.Status)
	}
	return toAPISubscription(sub), nil
}

func (s *SubscriptionService) apply(sub *models.Subscription, ps *billing.ProviderSubscription) {
	now := s.now()
	// A locally cancelled subscription stays cancelled through its grace period.
	if sub.Status == models.SubscriptionCancelled && ps.Status == models.SubscriptionActive {
		return
	}
	sub.Status = ps.Status
	switch ps.Status {
	case models.SubscriptionActive:
		if sub.StartDate == nil {
			start := now
			if ps.StartTime != nil {
				start = *ps.StartTime
			}
			sub.StartDate = &start
		}
		if ps.NextBillingTime != nil {
			sub.NextBillingDate = ps.NextBillingTime
		} else if sub.NextBillingDate == nil {
			next := sub.StartDate.AddDate(0, 1, 0)
			sub.NextBillingDate = &next
		}
		sub.EndDate = nil
	case models.SubscriptionCancelled:
		if sub.CancelledAt == nil {
			sub.CancelledAt = &now
		}
		if sub.EndDate == nil {
			end := now
			if sub.NextBillingDate != nil {
				end = *sub.NextBillingDate
			}
			sub.EndDate = &end
		}
	case models.SubscriptionExpired:
		if sub.EndDate == nil {
			sub.EndDate = &now
		}
	}
}

// Cancel stops renewal. Access continues until the paid-through date.
func (s *SubscriptionService) Cancel(ctx context.Context, userID uuid.UUID, reason string) (*apitypes.Subscription, error) {
	sub, err := s.latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status != models.SubscriptionActive {
		return nil, planErr(apperr.CodeSubscriptionNotFound)
	}
	reason = strings.TrimSpace(reason)
	if sub.ProviderSubscriptionID != "" {
		if err := s.provider.CancelSubscription(ctx, sub.ProviderSubscriptionID, reason); err != nil {
			return nil, &PlanError{Code: apperr.CodePaymentProviderError, Detail: err.Error()}
		}
	}

	now := s.now()
	end := now
	if sub.NextBillingDate != nil && sub.NextBillingDate.After(now) {
		end = *sub.NextBillingDate
	}
	sub.Status = models.SubscriptionCancelled
	sub.CancelledAt = &now
	sub.CancelReason = reason
	sub.EndDate = &end
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "ends": end}).Info("subscription cancelled")
	return toAPISubscription(sub), nil
}

// Update moves an active subscription to another tier. The provider may
// require the user to approve the new price; ApprovalURL is set when so.
func (s *SubscriptionService) Update(ctx context.Context, userID uuid.UUID, tier string) (*apitypes.CreateSubscriptionResponse, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	plan, ok := plans.Get(tier)
	if !ok {
		return nil, planErr(apperr.CodePlanNotFound)
	}
	sub, err := s.latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status != models.SubscriptionActive {
		return nil, planErr(apperr.CodeNoActiveSubscription)
	}
	if sub.Tier == tier {
		return nil, validationErr("already on tier %s", tier)
	}

	var approval string
	if sub.ProviderSubscriptionID != "" {
		ps, err := s.provider.ReviseSubscription(ctx, sub.ProviderSubscriptionID, tier)
		if err != nil {
			return nil, &PlanError{Code: apperr.CodePaymentProviderError, Detail: err.Error()}
		}
		approval = ps.ApprovalURL
	}
	from := sub.Tier
	sub.Tier = plan.Tier
	sub.Price = plan.Price
	sub.Currency = plan.Currency
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	s.log.WithField("user_id", userID).Infof("tier changed %s -> %s", from, tier)
	return &apitypes.CreateSubscriptionResponse{Subscription: *toAPISubscription(sub), ApprovalURL: approval}, nil
}
