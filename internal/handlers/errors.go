package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"nexosql-backend/internal/services"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/httputil"
)

// planStatus picks the HTTP status for a plan code.
func planStatus(code string) int {
	switch code {
	case apperr.CodeSubscriptionNotFound:
		return http.StatusNotFound
	case apperr.CodePlanNotFound:
		return http.StatusBadRequest
	case apperr.CodeSubscriptionAlreadyActive:
		return http.StatusConflict
	case apperr.CodePaymentProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusForbidden
	}
}

// respondServiceError maps service errors to status codes. Anything it
// does not recognize is logged and reported as fallback with a 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var pe *services.PlanError
	switch {
	case errors.As(err, &pe):
		httputil.RespondCodedError(w, planStatus(pe.Code), pe.Code, pe.Message())
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrUnsupportedEngine):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrConnectionNotFound),
		errors.Is(err, services.ErrChatNotFound),
		errors.Is(err, services.ErrTicketNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrUserAlreadyExists),
		errors.Is(err, services.ErrDuplicateThread),
		errors.Is(err, services.ErrInvalidTransition):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	default:
		logrus.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error(fallback)
		httputil.RespondError(w, http.StatusInternalServerError, fallback)
	}
}
