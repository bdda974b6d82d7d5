package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base carries the primary key shared by every entity.
type Base struct {
	ID uuid.UUID `gorm:"type:varchar(36);primaryKey"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User is an account. Deleting it cascades to everything it owns.
type User struct {
	Base
	Email        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name         string `gorm:"type:varchar(255);not null;default:''"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	Role         string `gorm:"type:varchar(16);not null;default:'user'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Connections   []Connection    `gorm:"constraint:OnDelete:CASCADE"`
	Chats         []Chat          `gorm:"constraint:OnDelete:CASCADE"`
	Subscriptions []Subscription  `gorm:"constraint:OnDelete:CASCADE"`
	Tickets       []SupportTicket `gorm:"constraint:OnDelete:CASCADE"`
}

const (
	ConnectionStatusUntested = "untested"
	ConnectionStatusOK       = "ok"
	ConnectionStatusFailed   = "failed"
)

// Connection holds the credentials of a user's external database.
type Connection struct {
	Base
	UserID            uuid.UUID `gorm:"type:varchar(36);not null;index"`
	Name              string    `gorm:"type:varchar(120);not null"`
	Engine            string    `gorm:"type:varchar(32);not null;index"`
	Host              string    `gorm:"type:varchar(255);not null;default:''"`
	Port              int       `gorm:"not null;default:0"`
	DatabaseName      string    `gorm:"type:varchar(255);not null"`
	Username          string    `gorm:"type:varchar(255);not null;default:''"`
	EncryptedPassword string    `gorm:"type:text;not null"`
	SSLMode           string    `gorm:"type:varchar(32);not null;default:''"`
	Status            string    `gorm:"type:varchar(16);not null;default:'untested'"`
	LastTestedAt      *time.Time
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time

	Chats []Chat `gorm:"constraint:OnDelete:CASCADE"`
}

// Chat is a conversation scoped to one user and one connection.
type Chat struct {
	Base
	UserID       uuid.UUID `gorm:"type:varchar(36);not null;index"`
	ConnectionID uuid.UUID `gorm:"type:varchar(36);not null;index"`
	Title        string    `gorm:"type:varchar(120);not null;default:'Nueva consulta'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`

	Messages []ChatMessage `gorm:"constraint:OnDelete:CASCADE"`
}

const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"
)

type ChatMessage struct {
	Base
	ChatID    uuid.UUID      `gorm:"type:varchar(36);not null;index:idx_chat_messages_chat_ts,priority:1"`
	Type      string         `gorm:"type:varchar(16);not null"`
	Content   string         `gorm:"type:text;not null"`
	Metadata  datatypes.JSON
	IsError   bool           `gorm:"not null;default:false"`
	ThreadID  string         `gorm:"type:varchar(64);not null;default:'';index"`
	Timestamp time.Time      `gorm:"not null;index:idx_chat_messages_chat_ts,priority:2"`
}

const (
	SubscriptionActive    = "active"
	SubscriptionPending   = "pending"
	SubscriptionCancelled = "cancelled"
	SubscriptionSuspended = "suspended"
	SubscriptionExpired   = "expired"
)

type Subscription struct {
	Base
	UserID                 uuid.UUID `gorm:"type:varchar(36);not null;index"`
	Tier                   string    `gorm:"type:varchar(16);not null"`
	Status                 string    `gorm:"type:varchar(16);not null;index"`
	Price                  float64   `gorm:"type:decimal(10,2);not null;default:0"`
	Currency               string    `gorm:"type:varchar(3);not null;default:'USD'"`
	ProviderSubscriptionID string    `gorm:"type:varchar(64);index"`
	StartDate              *time.Time
	NextBillingDate        *time.Time
	EndDate                *time.Time
	CancelledAt            *time.Time `gorm:"index"`
	CancelReason           string     `gorm:"type:text"`
	CreatedAt              time.Time  `gorm:"index"`
	UpdatedAt              time.Time
}

const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

type SupportTicket struct {
	Base
	UserID       uuid.UUID `gorm:"type:varchar(36);not null;index"`
	IncidentType string    `gorm:"type:varchar(32);not null"`
	Description  string    `gorm:"type:text;not null"`
	Status       string    `gorm:"type:varchar(16);not null;index;default:'open'"`
	ResolvedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	QueryCompleted = "completed"
	QueryFailed    = "failed"
	QueryCancelled = "cancelled"
)

// QueryLog records every processed question. It has no foreign keys so
// monthly metrics survive user and connection deletion.
type QueryLog struct {
	Base
	UserID       uuid.UUID `gorm:"type:varchar(36);not null;index:idx_query_logs_user_created,priority:1"`
	ConnectionID uuid.UUID `gorm:"type:varchar(36);not null"`
	ChatID       uuid.UUID `gorm:"type:varchar(36);not null"`
	ThreadID     string    `gorm:"type:varchar(64);not null;default:''"`
	Status       string    `gorm:"type:varchar(16);not null;index"`
	DurationMs   int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"index:idx_query_logs_user_created,priority:2"`
}

// All lists the entities in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Connection{},
		&Chat{},
		&ChatMessage{},
		&Subscription{},
		&SupportTicket{},
		&QueryLog{},
	}
}
