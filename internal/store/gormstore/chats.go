package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
)

func (s *Store) CreateChat(ctx context.Context, chat *models.Chat) error {
	return translate(s.db.WithContext(ctx).Omit("Messages").Create(chat).Error, "creating chat")
}

func (s *Store) GetChat(ctx context.Context, id, userID uuid.UUID) (*models.Chat, error) {
	var c models.Chat
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
		return nil, translate(err, "fetching chat")
	}
	return &c, nil
}

// ListChats returns the user's chats, most recently active first.
func (s *Store) ListChats(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID) ([]models.Chat, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if connectionID != nil {
		q = q.Where("connection_id = ?", *connectionID)
	}
	var out []models.Chat
	err := q.Order("updated_at DESC").Find(&out).Error
	return out, translate(err, "listing chats")
}

func (s *Store) CountChats(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Chat{}).Where("user_id = ?", userID).Count(&n).Error
	return n, translate(err, "counting chats")
}

func (s *Store) RenameChat(ctx context.Context, id, userID uuid.UUID, title string) error {
	res := s.db.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("title", title)
	return affected(res, "renaming chat")
}

func (s *Store) DeleteChat(ctx context.Context, id, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Chat{}).Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
			return translate(err, "checking chat")
		}
		if n == 0 {
			return store.ErrNotFound
		}
		if err := tx.Where("chat_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
			return translate(err, "deleting chat messages")
		}
		return affected(tx.Where("id = ?", id).Delete(&models.Chat{}), "deleting chat")
	})
}

// AddMessages inserts msgs and bumps the chat's updated_at so it sorts first.
func (s *Store) AddMessages(ctx context.Context, chatID uuid.UUID, msgs ...*models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range msgs {
			m.ChatID = chatID
			if m.Timestamp.IsZero() {
				m.Timestamp = time.Now().UTC()
			}
		}
		if err := tx.Create(msgs).Error; err != nil {
			return translate(err, "adding messages")
		}
		res := tx.Model(&models.Chat{}).Where("id = ?", chatID).Update("updated_at", time.Now().UTC())
		return affected(res, "touching chat")
	})
}

// transcriptOrder sorts by timestamp, then user before assistant, then id.
var transcriptOrder = clause.OrderBy{Expression: clause.Expr{
	SQL: "?, CASE ? WHEN ? THEN 0 ELSE 1 END, ?",
	Vars: []interface{}{
		clause.Column{Name: "timestamp"},
		clause.Column{Name: "type"},
		models.MessageTypeUser,
		clause.Column{Name: "id"},
	},
	WithoutParentheses: true,
}}

func (s *Store) ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order(transcriptOrder).
		Find(&out).Error
	return out, translate(err, "listing messages")
}
