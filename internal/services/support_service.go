package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apitypes"
)

const maxDescriptionLength = 5000

type SupportService struct {
	store store.Store
	now   func() time.Time
	log   *logrus.Entry
}

func NewSupportService(s store.Store) *SupportService {
	return &SupportService{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logging.Component("SupportService"),
	}
}

func (s *SupportService) Create(ctx context.Context, userID uuid.UUID, req apitypes.CreateTicketRequest) (*apitypes.Ticket, error) {
	if missing := req.MissingFields(); len(missing) > 0 {
		return nil, validationErr("missing fields: %s", strings.Join(missing, ", "))
	}
	if !apitypes.ValidIncidentType(req.IncidentType) {
		return nil, validationErr("unknown incident type %q", req.IncidentType)
	}
	desc := strings.TrimSpace(req.Description)
	if len(desc) > maxDescriptionLength {
		return nil, validationErr("description exceeds %d characters", maxDescriptionLength)
	}
	ticket := &models.SupportTicket{
		UserID:       userID,
		IncidentType: req.IncidentType,
		Description:  desc,
		Status:       models.TicketOpen,
	}
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "ticket_id": ticket.ID, "type": ticket.IncidentType}).Info("ticket opened")
	out := toAPITicket(ticket, "")
	return &out, nil
}

// List returns the caller's tickets, or every ticket when all is set by an admin.
func (s *SupportService) List(ctx context.Context, userID uuid.UUID, isAdmin, all bool) ([]apitypes.Ticket, error) {
	var filter *uuid.UUID
	if !(isAdmin && all) {
		filter = &userID
	}
	rows, err := s.store.ListTickets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return ticketRowsToAPI(rows), nil
}

// UpdateStatus moves a ticket. Admins may make any transition out of a
// non-closed state; owners may only close their own tickets.
func (s *SupportService) UpdateStatus(ctx context.Context, id, userID uuid.UUID, isAdmin bool, status string) (*apitypes.Ticket, error) {
	if !apitypes.ValidTicketStatus(status) {
		return nil, validationErr("unknown status %q", status)
	}
	ticket, err := s.store.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if !isAdmin {
		if ticket.UserID != userID {
			return nil, ErrTicketNotFound
		}
		if status != models.TicketClosed {
			return nil, fmt.Errorf("%w: owners may only close tickets", ErrForbidden)
		}
	}
	if ticket.Status == models.TicketClosed {
		return nil, fmt.Errorf("%w: ticket is closed", ErrInvalidTransition)
	}
	if ticket.Status == status {
		out := toAPITicket(ticket, "")
		return &out, nil
	}

	ticket.Status = status
	switch status {
	case models.TicketResolved, models.TicketClosed:
		if ticket.ResolvedAt == nil {
			now := s.now()
			ticket.ResolvedAt = &now
		}
	default:
		ticket.ResolvedAt = nil
	}
	if err := s.store.UpdateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}
	out := toAPITicket(ticket, "")
	return &out, nil
}
