package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apitypes"
)

// MaxTitleLength bounds chat titles, in runes.
const MaxTitleLength = 120

type ChatService struct {
	store store.Store
	now   func() time.Time
	log   *logrus.Entry
}

func NewChatService(s store.Store) *ChatService {
	return &ChatService{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logging.Component("ChatService"),
	}
}

func (s *ChatService) List(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID) ([]apitypes.Chat, error) {
	chats, err := s.store.ListChats(ctx, userID, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	out := make([]apitypes.Chat, 0, len(chats))
	for i := range chats {
		out = append(out, toAPIChat(&chats[i]))
	}
	return out, nil
}

// Create opens a chat on one of the caller's connections.
func (s *ChatService) Create(ctx context.Context, userID uuid.UUID, req apitypes.CreateChatRequest) (*apitypes.Chat, error) {
	connID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		return nil, validationErr("invalid connectionId")
	}
	if _, err := s.store.GetConnection(ctx, connID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = apitypes.DefaultChatTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, validationErr("title exceeds %d characters", MaxTitleLength)
	}
	chat := &models.Chat{UserID: userID, ConnectionID: connID, Title: title}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	out := toAPIChat(chat)
	return &out, nil
}

// Get returns the chat with its transcript in display order.
func (s *ChatService) Get(ctx context.Context, id, userID uuid.UUID) (*apitypes.ChatDetail, error) {
	chat, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	out := make([]apitypes.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, toAPIMessage(&msgs[i]))
	}
	return &apitypes.ChatDetail{Chat: toAPIChat(chat), Messages: apitypes.NormalizeTranscript(out)}, nil
}

func (s *ChatService) Rename(ctx context.Context, id, userID uuid.UUID, title string) (*apitypes.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationErr("title cannot be empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, validationErr("title exceeds %d characters", MaxTitleLength)
	}
	if err := s.store.RenameChat(ctx, id, userID, title); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to rename chat: %w", err)
	}
	chat, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	out := toAPIChat(chat)
	return &out, nil
}

func (s *ChatService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.store.DeleteChat(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// AddMessage appends a message written by the client.
func (s *ChatService) AddMessage(ctx context.Context, chatID, userID uuid.UUID, req apitypes.AddMessageRequest) (*apitypes.Message, error) {
	if req.Type != apitypes.MessageTypeUser && req.Type != apitypes.MessageTypeAssistant {
		return nil, validationErr("type must be user or assistant")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, validationErr("content cannot be empty")
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		return nil, validationErr("metadata must be valid JSON")
	}
	if _, err := s.load(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msg := &models.ChatMessage{
		ChatID:    chatID,
		Type:      req.Type,
		Content:   req.Content,
		Metadata:  datatypes.JSON(req.Metadata),
		IsError:   req.IsError,
		Timestamp: s.now(),
	}
	if err := s.store.AddMessages(ctx, chatID, msg); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	out := toAPIMessage(msg)
	return &out, nil
}

func (s *ChatService) load(ctx context.Context, id, userID uuid.UUID) (*models.Chat, error) {
	chat, err := s.store.GetChat(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}
