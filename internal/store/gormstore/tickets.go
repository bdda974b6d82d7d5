package gormstore

import (
	"context"

	"github.com/google/uuid"

	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
)

func (s *Store) CreateTicket(ctx context.Context, ticket *models.SupportTicket) error {
	return translate(s.db.WithContext(ctx).Create(ticket).Error, "creating ticket")
}

func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (*models.SupportTicket, error) {
	var t models.SupportTicket
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, translate(err, "fetching ticket")
	}
	return &t, nil
}

// ListTickets returns tickets newest first; a nil userID lists everyone's.
func (s *Store) ListTickets(ctx context.Context, userID *uuid.UUID) ([]store.TicketRow, error) {
	q := s.db.WithContext(ctx).
		Table("support_tickets").
		Select("support_tickets.*, users.email AS user_email").
		Joins("LEFT JOIN users ON users.id = support_tickets.user_id")
	if userID != nil {
		q = q.Where("support_tickets.user_id = ?", *userID)
	}
	var rows []store.TicketRow
	err := q.Order("support_tickets.created_at DESC").Scan(&rows).Error
	return rows, translate(err, "listing tickets")
}

func (s *Store) UpdateTicket(ctx context.Context, ticket *models.SupportTicket) error {
	res := s.db.WithContext(ctx).Model(&models.SupportTicket{}).Where("id = ?", ticket.ID).Updates(map[string]interface{}{
		"status":      ticket.Status,
		"resolved_at": ticket.ResolvedAt,
	})
	return affected(res, "updating ticket")
}

func (s *Store) CountTicketsByStatus(ctx context.Context, statuses ...string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.SupportTicket{}).Where("status IN ?", statuses).Count(&n).Error
	return n, translate(err, "counting tickets")
}
