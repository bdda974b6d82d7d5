// Package apperr holds the error taxonomy shared by the API and its clients,
// plus the fixed table that turns known error codes into user-facing Spanish copy.
package apperr

import "strings"

// Kind classifies a failure for presentation.
type Kind string

const (
	KindValidation Kind = "validation" // never leaves the client
	KindNetwork    Kind = "network"
	KindAPI        Kind = "api"
	KindCancelled  Kind = "cancelled"
	KindPlan       Kind = "plan"
)

// Error codes carried in the "code" field of the response envelope.
const (
	CodeNoActiveSubscription      = "NO_ACTIVE_SUBSCRIPTION"
	CodeConnectionLimitReached    = "CONNECTION_LIMIT_REACHED"
	CodeQueryLimitReached         = "QUERY_LIMIT_REACHED"
	CodeSubscriptionPending       = "SUBSCRIPTION_PENDING"
	CodeSubscriptionAlreadyActive = "SUBSCRIPTION_ALREADY_ACTIVE"
	CodeSubscriptionNotFound      = "SUBSCRIPTION_NOT_FOUND"
	CodePlanNotFound              = "PLAN_NOT_FOUND"
	CodePaymentProviderError      = "PAYMENT_PROVIDER_ERROR"
	CodeSubscriptionExpired       = "SUBSCRIPTION_EXPIRED"
	CodeSubscriptionSuspended     = "SUBSCRIPTION_SUSPENDED"
)

const (
	GenericMessage   = "Lo sentimos, ha ocurrido un error inesperado. Inténtalo de nuevo más tarde."
	NetworkMessage   = "No se pudo conectar con el servidor. Revisa tu conexión e inténtalo de nuevo."
	CancelledMessage = "Consulta cancelada por el usuario"
)

var planMessages = map[string]string{
	CodeNoActiveSubscription:      "Necesitas una suscripción activa para realizar esta acción.",
	CodeConnectionLimitReached:    "Has alcanzado el límite de conexiones de tu plan. Mejora tu plan para añadir más.",
	CodeQueryLimitReached:         "Has alcanzado el límite mensual de consultas de tu plan.",
	CodeSubscriptionPending:       "Tu suscripción está pendiente de confirmación del pago.",
	CodeSubscriptionAlreadyActive: "Ya tienes una suscripción activa.",
	CodeSubscriptionNotFound:      "No se encontró la suscripción.",
	CodePlanNotFound:              "El plan seleccionado no existe.",
	CodePaymentProviderError:      "El proveedor de pagos no está disponible en este momento. Inténtalo más tarde.",
	CodeSubscriptionExpired:       "Tu suscripción ha expirado. Renueva tu plan para continuar.",
	CodeSubscriptionSuspended:     "Tu suscripción está suspendida. Revisa tu método de pago.",
}

// Failure is the normalized error value handed to callers.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (f Failure) Error() string { return f.Message }

// IsPlanCode reports whether code belongs to the plan-gating table.
func IsPlanCode(code string) bool {
	_, ok := planMessages[code]
	return ok
}

// MessageFor resolves the copy shown to the user: known code first,
// then the raw server message, then the generic apology.
func MessageFor(code, raw string) string {
	if msg, ok := planMessages[code]; ok {
		return msg
	}
	if strings.TrimSpace(raw) != "" {
		return raw
	}
	return GenericMessage
}

func Validation(msg string) Failure {
	return Failure{Kind: KindValidation, Message: msg}
}

func Network() Failure {
	return Failure{Kind: KindNetwork, Message: NetworkMessage}
}

func Cancelled() Failure {
	return Failure{Kind: KindCancelled, Message: CancelledMessage}
}

// FromAPI builds a failure from a server envelope.
func FromAPI(code, raw string) Failure {
	kind := KindAPI
	if IsPlanCode(code) {
		kind = KindPlan
	}
	return Failure{Kind: kind, Code: code, Message: MessageFor(code, raw)}
}

// MissingFields formats the local validation message for a form.
func MissingFields(fields []string) Failure {
	return Validation("Completa los campos obligatorios: " + strings.Join(fields, ", "))
}
