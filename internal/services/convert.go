package services

import (
	"encoding/json"

	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apitypes"
)

func toAPIUser(u *models.User) apitypes.User {
	return apitypes.User{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// toAPIConnection never carries the sealed password.
func toAPIConnection(c *models.Connection) apitypes.Connection {
	return apitypes.Connection{
		ID:           c.ID.String(),
		Name:         c.Name,
		Engine:       c.Engine,
		Host:         c.Host,
		Port:         c.Port,
		DatabaseName: c.DatabaseName,
		Username:     c.Username,
		SSLMode:      c.SSLMode,
		Status:       c.Status,
		LastTestedAt: c.LastTestedAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toAPIChat(c *models.Chat) apitypes.Chat {
	return apitypes.Chat{
		ID:           c.ID.String(),
		ConnectionID: c.ConnectionID.String(),
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toAPIMessage(m *models.ChatMessage) apitypes.Message {
	var meta json.RawMessage
	if len(m.Metadata) > 0 && string(m.Metadata) != "null" {
		meta = json.RawMessage(m.Metadata)
	}
	return apitypes.Message{
		ID:        m.ID.String(),
		ChatID:    m.ChatID.String(),
		Type:      m.Type,
		Content:   m.Content,
		Metadata:  meta,
		IsError:   m.IsError,
		ThreadID:  m.ThreadID,
		Timestamp: m.Timestamp,
	}
}

func toAPISubscription(s *models.Subscription) *apitypes.Subscription {
	if s == nil {
		return nil
	}
	return &apitypes.Subscription{
		ID:                     s.ID.String(),
		Tier:                   s.Tier,
		Status:                 s.Status,
		Price:                  s.Price,
		Currency:               s.Currency,
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		StartDate:              s.StartDate,
		NextBillingDate:        s.NextBillingDate,
		EndDate:                s.EndDate,
		CancelledAt:            s.CancelledAt,
		CreatedAt:              s.CreatedAt,
	}
}

func toAPITicket(t *models.SupportTicket, email string) apitypes.Ticket {
	return apitypes.Ticket{
		ID:           t.ID.String(),
		UserID:       t.UserID.String(),
		UserEmail:    email,
		IncidentType: t.IncidentType,
		Description:  t.Description,
		Status:       t.Status,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		ResolvedAt:   t.ResolvedAt,
	}
}

func ticketRowsToAPI(rows []store.TicketRow) []apitypes.Ticket {
	out := make([]apitypes.Ticket, 0, len(rows))
	for i := range rows {
		out = append(out, toAPITicket(&rows[i].SupportTicket, rows[i].UserEmail))
	}
	return out
}
