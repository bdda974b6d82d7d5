package handlers

import (
	"context"
	"net/http"
	"strconv"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/httputil"
)

// AdminService defines the interface expected from the admin service.
type AdminService interface {
	Dashboard(ctx context.Context, months int) (*apitypes.Dashboard, error)
}

type AdminHandler struct {
	admin AdminService
}

func NewAdminHandler(admin AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// HandleDashboard handles GET /api/admin/dashboard?months=N.
func (h *AdminHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	months := 0
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "months must be a number")
			return
		}
		months = n
	}
	d, err := h.admin.Dashboard(r.Context(), months)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load dashboard")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, d)
}
