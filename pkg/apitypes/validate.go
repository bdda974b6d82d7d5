package apitypes

import (
	"slices"
	"strings"
)

// Engines lists the database engines a connection may target.
var Engines = []string{"postgresql", "mysql", "mariadb", "sqlite"}

// MissingFields returns the names of required connection fields that are empty.
// SQLite only needs a database path.
func (r ConnectionRequest) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.Engine) == "" {
		missing = append(missing, "engine")
	}
	if strings.TrimSpace(r.DatabaseName) == "" {
		missing = append(missing, "databaseName")
	}
	if r.Engine == "sqlite" {
		return missing
	}
	if strings.TrimSpace(r.Host) == "" {
		missing = append(missing, "host")
	}
	if r.Port <= 0 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(r.Username) == "" {
		missing = append(missing, "username")
	}
	return missing
}

func ValidEngine(engine string) bool {
	return slices.Contains(Engines, engine)
}

func (r CreateTicketRequest) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(r.IncidentType) == "" {
		missing = append(missing, "incidentType")
	}
	if strings.TrimSpace(r.Description) == "" {
		missing = append(missing, "description")
	}
	return missing
}

func ValidIncidentType(t string) bool {
	return slices.Contains(IncidentTypes, t)
}

func ValidTicketStatus(s string) bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

func ValidTier(tier string) bool {
	switch tier {
	case TierBronce, TierPlata, TierOro:
		return true
	}
	return false
}
