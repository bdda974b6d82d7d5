// Package apitypes defines the JSON wire contract of the NexoSQL API.
// Both the server handlers and the Go client encode and decode these types.
package apitypes

import (
	"encoding/json"
	"time"
)

// Envelope is the body of every API response.
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *string         `json:"error"`
	Code  string          `json:"code,omitempty"`
}

// --- Users / auth ---

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuthResponse struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// --- Connections ---

type ConnectionRequest struct {
	Name         string `json:"name"`
	Engine       string `json:"engine"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DatabaseName string `json:"databaseName"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	SSLMode      string `json:"sslMode,omitempty"`
}

type Connection struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Engine       string     `json:"engine"`
	Host         string     `json:"host"`
	Port         int        `json:"port"`
	DatabaseName string     `json:"databaseName"`
	Username     string     `json:"username"`
	SSLMode      string     `json:"sslMode,omitempty"`
	Status       string     `json:"status"`
	LastTestedAt *time.Time `json:"lastTestedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type ConnectionTestResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LatencyMs int64  `json:"latencyMs"`
	Version   string `json:"version,omitempty"`
}

// --- Chats ---

const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"

	DefaultChatTitle = "Nueva consulta"
)

type CreateChatRequest struct {
	ConnectionID string `json:"connectionId"`
	Title        string `json:"title,omitempty"`
}

type RenameChatRequest struct {
	Title string `json:"title"`
}

type AddMessageRequest struct {
	Type     string          `json:"type"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	IsError  bool            `json:"isError"`
}

type Message struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chatId"`
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	IsError   bool            `json:"isError"`
	ThreadID  string          `json:"threadId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Chat struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connectionId"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type ChatDetail struct {
	Chat
	Messages []Message `json:"messages"`
}

// --- AI ---

type ProcessQueryRequest struct {
	ConnectionID string `json:"connectionId"`
	ChatID       string `json:"chatId"`
	Question     string `json:"question"`
	ThreadID     string `json:"threadId"`
}

type ProcessQueryResponse struct {
	UserMessage      Message `json:"userMessage"`
	AssistantMessage Message `json:"assistantMessage"`
}

type CancelQueryResponse struct {
	ThreadID  string `json:"threadId"`
	Cancelled bool   `json:"cancelled"`
}

// QueryMetadata is what the assistant message carries in its metadata column.
type QueryMetadata struct {
	SQL        string `json:"sql,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	RowCount   int    `json:"rowCount,omitempty"`
	Error      string `json:"error,omitempty"`
	Cancelled  bool   `json:"cancelled,omitempty"`
	Loading    bool   `json:"loading,omitempty"`
}

// --- Subscriptions ---

const (
	TierBronce = "bronce"
	TierPlata  = "plata"
	TierOro    = "oro"

	SubscriptionActive    = "active"
	SubscriptionPending   = "pending"
	SubscriptionCancelled = "cancelled"
	SubscriptionSuspended = "suspended"
	SubscriptionExpired   = "expired"
)

type Plan struct {
	Tier              string   `json:"tier"`
	Name              string   `json:"name"`
	Price             float64  `json:"price"`
	Currency          string   `json:"currency"`
	ConnectionLimit   int      `json:"connectionLimit"`
	MonthlyQueryLimit int      `json:"monthlyQueryLimit"`
	Features          []string `json:"features"`
}

type Usage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type Subscription struct {
	ID                     string     `json:"id"`
	Tier                   string     `json:"tier"`
	Status                 string     `json:"status"`
	Price                  float64    `json:"price"`
	Currency               string     `json:"currency"`
	ProviderSubscriptionID string     `json:"providerSubscriptionId,omitempty"`
	StartDate              *time.Time `json:"startDate,omitempty"`
	NextBillingDate        *time.Time `json:"nextBillingDate,omitempty"`
	EndDate                *time.Time `json:"endDate,omitempty"`
	CancelledAt            *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
}

type CurrentSubscription struct {
	Subscription *Subscription `json:"subscription"`
	Plan         *Plan         `json:"plan,omitempty"`
	HasAccess    bool          `json:"hasAccess"`
	Connections  Usage         `json:"connections"`
	Queries      Usage         `json:"queries"`
}

type SubscriptionStats struct {
	Tier                  string `json:"tier,omitempty"`
	Status                string `json:"status,omitempty"`
	Connections           Usage  `json:"connections"`
	Queries               Usage  `json:"queries"`
	Chats                 int    `json:"chats"`
	QueriesCancelledMonth int    `json:"queriesCancelledMonth"`
	DaysUntilRenewal      *int   `json:"daysUntilRenewal,omitempty"`
}

type CreateSubscriptionRequest struct {
	Tier string `json:"tier"`
}

type CreateSubscriptionResponse struct {
	Subscription Subscription `json:"subscription"`
	ApprovalURL  string       `json:"approvalUrl"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

type UpdateSubscriptionRequest struct {
	Tier string `json:"tier"`
}

// --- Support ---

const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

var IncidentTypes = []string{"conexion", "consulta", "facturacion", "cuenta", "otro"}

type CreateTicketRequest struct {
	IncidentType string `json:"incidentType"`
	Description  string `json:"description"`
}

type UpdateTicketStatusRequest struct {
	Status string `json:"status"`
}

type Ticket struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	UserEmail    string     `json:"userEmail,omitempty"`
	IncidentType string     `json:"incidentType"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

// --- Admin ---

type MonthlyMetric struct {
	Month              string `json:"month"` // YYYY-MM
	Subscriptions      int    `json:"subscriptions"`
	Cancellations      int    `json:"cancellations"`
	Queries            int    `json:"queries"`
	QueryCancellations int    `json:"queryCancellations"`
	Connections        int    `json:"connections"`
}

type EngineCount struct {
	Engine string `json:"engine"`
	Count  int    `json:"count"`
}

type Dashboard struct {
	Months              []MonthlyMetric `json:"months"`
	ConnectionsByEngine []EngineCount   `json:"connectionsByEngine"`
	TotalUsers          int             `json:"totalUsers"`
	ActiveSubscriptions int             `json:"activeSubscriptions"`
	OpenTickets         int             `json:"openTickets"`
}
