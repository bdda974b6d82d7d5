package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"nexosql-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("record already exists")

// TicketRow is a support ticket joined with its author's email.
type TicketRow struct {
	models.SupportTicket
	UserEmail string
}

// EngineCount is one row of the connections-by-engine aggregate.
type EngineCount struct {
	Engine string
	Count  int64
}

// MetricEvents holds the raw timestamps the admin dashboard buckets by month.
type MetricEvents struct {
	SubscriptionsCreated []time.Time
	Cancellations        []time.Time
	ConnectionsCreated   []time.Time
	Queries              []time.Time
	QueryCancellations   []time.Time
}

// Store defines the interface for database operations.
// All per-user lookups take the owner id so callers can't reach other users' rows.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	CountUsers(ctx context.Context) (int64, error)

	// Connections
	CreateConnection(ctx context.Context, conn *models.Connection) error
	GetConnection(ctx context.Context, id, userID uuid.UUID) (*models.Connection, error)
	ListConnections(ctx context.Context, userID uuid.UUID) ([]models.Connection, error)
	CountConnections(ctx context.Context, userID uuid.UUID) (int64, error)
	UpdateConnection(ctx context.Context, conn *models.Connection) error
	UpdateConnectionStatus(ctx context.Context, id, userID uuid.UUID, status string, testedAt time.Time) error
	DeleteConnection(ctx context.Context, id, userID uuid.UUID) error

	// Chats and messages
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, id, userID uuid.UUID) (*models.Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID) ([]models.Chat, error)
	CountChats(ctx context.Context, userID uuid.UUID) (int64, error)
	RenameChat(ctx context.Context, id, userID uuid.UUID, title string) error
	DeleteChat(ctx context.Context, id, userID uuid.UUID) error
	AddMessages(ctx context.Context, chatID uuid.UUID, msgs ...*models.ChatMessage) error
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.ChatMessage, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetLatestSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	GetSubscriptionByProviderID(ctx context.Context, providerID string, userID uuid.UUID) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	// TransitionSubscription moves a row from one status to another only if it
	// still holds the expected status. It reports whether the row changed.
	TransitionSubscription(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	ListCancelledEndingBefore(ctx context.Context, t time.Time) ([]models.Subscription, error)
	ListPendingCreatedBefore(ctx context.Context, t time.Time) ([]models.Subscription, error)
	CountSubscriptionsByStatus(ctx context.Context, status string) (int64, error)

	// Support tickets
	CreateTicket(ctx context.Context, ticket *models.SupportTicket) error
	GetTicket(ctx context.Context, id uuid.UUID) (*models.SupportTicket, error)
	ListTickets(ctx context.Context, userID *uuid.UUID) ([]TicketRow, error)
	UpdateTicket(ctx context.Context, ticket *models.SupportTicket) error
	CountTicketsByStatus(ctx context.Context, statuses ...string) (int64, error)

	// Query log and metrics
	CreateQueryLog(ctx context.Context, entry *models.QueryLog) error
	CountQueries(ctx context.Context, userID uuid.UUID, from, to time.Time, statuses ...string) (int64, error)
	ListMetricEvents(ctx context.Context, from, to time.Time) (*MetricEvents, error)
	CountConnectionsByEngine(ctx context.Context) ([]EngineCount, error)
}
