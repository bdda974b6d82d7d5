// Package plans is the subscription catalog and its limit arithmetic.
package plans

import (
	"time"

	"nexosql-backend/pkg/apitypes"
)

// Plan bounds what a subscriber may do.
type Plan struct {
	Tier              string
	Name              string
	Price             float64
	Currency          string
	ConnectionLimit   int
	MonthlyQueryLimit int
	Features          []string
}

var catalog = []Plan{
	{
		Tier: apitypes.TierBronce, Name: "Bronce", Price: 9.99, Currency: "USD",
		ConnectionLimit: 1, MonthlyQueryLimit: 100,
		Features: []string{"1 conexión", "100 consultas al mes", "Soporte por correo"},
	},
	{
		Tier: apitypes.TierPlata, Name: "Plata", Price: 19.99, Currency: "USD",
		ConnectionLimit: 5, MonthlyQueryLimit: 1000,
		Features: []string{"5 conexiones", "1000 consultas al mes", "Historial ilimitado", "Soporte prioritario"},
	},
	{
		Tier: apitypes.TierOro, Name: "Oro", Price: 49.99, Currency: "USD",
		ConnectionLimit: 20, MonthlyQueryLimit: 10000,
		Features: []string{"20 conexiones", "10000 consultas al mes", "Historial ilimitado", "Soporte 24/7"},
	},
}

// All returns the catalog in ascending price order.
func All() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// Get looks a plan up by tier.
func Get(tier string) (Plan, bool) {
	for _, p := range catalog {
		if p.Tier == tier {
			return p, true
		}
	}
	return Plan{}, false
}

// NewUsage computes remaining = limit - used, floored at zero.
func NewUsage(used, limit int) apitypes.Usage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return apitypes.Usage{Used: used, Limit: limit, Remaining: remaining}
}

// CanConsume reports whether one more unit fits in u.
func CanConsume(u apitypes.Usage) bool {
	return u.Remaining > 0
}

// GrantsAccess reports whether a subscription in the given state still
// unlocks paid features at now. Cancelled subscriptions keep access until
// their paid-through end date.
func GrantsAccess(status string, endDate *time.Time, now time.Time) bool {
	switch status {
	case apitypes.SubscriptionActive:
		return endDate == nil || now.Before(*endDate)
	case apitypes.SubscriptionCancelled:
		return endDate != nil && now.Before(*endDate)
	}
	return false
}

// MonthRange returns [start of month, start of next month) for t in UTC.
func MonthRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func (p Plan) ToAPI() apitypes.Plan {
	return apitypes.Plan{
		Tier:              p.Tier,
		Name:              p.Name,
		Price:             p.Price,
		Currency:          p.Currency,
		ConnectionLimit:   p.ConnectionLimit,
		MonthlyQueryLimit: p.MonthlyQueryLimit,
		Features:          append([]string(nil), p.Features...),
	}
}
