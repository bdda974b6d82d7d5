package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/httputil"
)

// SubscriptionService defines the interface expected from the subscription service.
type SubscriptionService interface {
	Plans() []apitypes.Plan
	Current(ctx context.Context, userID uuid.UUID) (*apitypes.CurrentSubscription, error)
	Stats(ctx context.Context, userID uuid.UUID) (*apitypes.SubscriptionStats, error)
	Create(ctx context.Context, userID uuid.UUID, tier string) (*apitypes.CreateSubscriptionResponse, error)
	Confirm(ctx context.Context, userID uuid.UUID, providerID string) (*apitypes.Subscription, error)
	Sync(ctx context.Context, userID uuid.UUID, providerID string) (*apitypes.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID, reason string) (*apitypes.Subscription, error)
	Update(ctx context.Context, userID uuid.UUID, tier string) (*apitypes.CreateSubscriptionResponse, error)
}

type SubscriptionHandler struct {
	subs SubscriptionService
}

func NewSubscriptionHandler(subs SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// HandlePlans handles GET /api/subscriptions/plans.
func (h *SubscriptionHandler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.subs.Plans())
}

// HandleCurrent handles GET /api/subscriptions/current.
func (h *SubscriptionHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cur, err := h.subs.Current(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load subscription")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, cur)
}

// HandleStats handles GET /api/subscriptions/stats.
func (h *SubscriptionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := h.subs.Stats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load subscription stats")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, stats)
}

// HandleCreate handles POST /api/subscriptions/create.
func (h *SubscriptionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req apitypes.CreateSubscriptionRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.subs.Create(r.Context(), userID, req.Tier)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create subscription")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleConfirm handles POST /api/subscriptions/confirm/{id}.
func (h *SubscriptionHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.providerCall(w, r, h.subs.Confirm, "Failed to confirm subscription")
}

// HandleSync handles POST /api/subscriptions/sync/{id}.
func (h *SubscriptionHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	h.providerCall(w, r, h.subs.Sync, "Failed to sync subscription")
}

func (h *SubscriptionHandler) providerCall(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, uuid.UUID, string) (*apitypes.Subscription, error), fallback string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	providerID := chi.URLParam(r, "id")
	if providerID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "subscription id is required")
		return
	}
	sub, err := fn(r.Context(), userID, providerID)
	if err != nil {
		respondServiceError(w, r, err, fallback)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, sub)
}

// HandleCancel handles POST /api/subscriptions/cancel.
func (h *SubscriptionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req apitypes.CancelSubscriptionRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	sub, err := h.subs.Cancel(r.Context(), userID, req.Reason)
	if err != nil {
		respondServiceError(w, r, err, "Failed to cancel subscription")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, sub)
}

// HandleUpdate handles POST /api/subscriptions/update.
func (h *SubscriptionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req apitypes.UpdateSubscriptionRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.subs.Update(r.Context(), userID, req.Tier)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update subscription")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
