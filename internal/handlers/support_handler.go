package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"nexosql-backend/internal/auth"
	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/httputil"
)

// SupportService defines the interface expected from the support service.
type SupportService interface {
	Create(ctx context.Context, userID uuid.UUID, req apitypes.CreateTicketRequest) (*apitypes.Ticket, error)
	List(ctx context.Context, userID uuid.UUID, isAdmin, all bool) ([]apitypes.Ticket, error)
	UpdateStatus(ctx context.Context, id, userID uuid.UUID, isAdmin bool, status string) (*apitypes.Ticket, error)
}

type SupportHandler struct {
	support SupportService
}

func NewSupportHandler(support SupportService) *SupportHandler {
	return &SupportHandler{support: support}
}

// HandleCreate handles POST /api/support.
func (h *SupportHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req apitypes.CreateTicketRequest
	if !decode(w, r, &req) {
		return
	}
	ticket, err := h.support.Create(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create ticket")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, ticket)
}

// HandleList handles GET /api/support. Admins may pass all=true.
func (h *SupportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	all := r.URL.Query().Get("all") == "true"
	tickets, err := h.support.List(r.Context(), userID, auth.IsAdmin(r.Context()), all)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list tickets")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, tickets)
}

// HandleUpdateStatus handles PUT /api/support/{id}/status.
func (h *SupportHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req apitypes.UpdateTicketStatusRequest
	if !decode(w, r, &req) {
		return
	}
	ticket, err := h.support.UpdateStatus(r.Context(), id, userID, auth.IsAdmin(r.Context()), req.Status)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update ticket")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, ticket)
}
