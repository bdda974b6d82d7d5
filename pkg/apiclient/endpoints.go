package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/result"
)

// --- Users / auth ---

func (c *Client) Register(ctx context.Context, req apitypes.RegisterRequest) result.Result[apitypes.AuthResponse] {
	return do[apitypes.AuthResponse](ctx, c, http.MethodPost, "/api/users", req)
}

func (c *Client) Login(ctx context.Context, req apitypes.LoginRequest) result.Result[apitypes.AuthResponse] {
	return do[apitypes.AuthResponse](ctx, c, http.MethodPost, "/api/auth/login", req)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) result.Result[apitypes.AuthResponse] {
	return do[apitypes.AuthResponse](ctx, c, http.MethodPost, "/api/auth/refresh", apitypes.RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) Profile(ctx context.Context) result.Result[apitypes.User] {
	return do[apitypes.User](ctx, c, http.MethodGet, "/api/users/profile", nil)
}

func (c *Client) UpdateProfile(ctx context.Context, req apitypes.UpdateProfileRequest) result.Result[apitypes.User] {
	return do[apitypes.User](ctx, c, http.MethodPut, "/api/users/profile", req)
}

func (c *Client) DeleteAccount(ctx context.Context) result.Result[Empty] {
	return do[Empty](ctx, c, http.MethodDelete, "/api/users", nil)
}

// --- Connections ---

func (c *Client) ListConnections(ctx context.Context) result.Result[[]apitypes.Connection] {
	return do[[]apitypes.Connection](ctx, c, http.MethodGet, "/api/conexiones", nil)
}

func (c *Client) GetConnection(ctx context.Context, id string) result.Result[apitypes.Connection] {
	return do[apitypes.Connection](ctx, c, http.MethodGet, "/api/conexiones/"+escape(id), nil)
}

// CreateConnection validates required fields locally; an incomplete form
// never reaches the server.
func (c *Client) CreateConnection(ctx context.Context, req apitypes.ConnectionRequest) result.Result[apitypes.Connection] {
	if missing := req.MissingFields(); len(missing) > 0 {
		return result.Err[apitypes.Connection](apperr.MissingFields(missing))
	}
	return do[apitypes.Connection](ctx, c, http.MethodPost, "/api/conexiones", req)
}

func (c *Client) UpdateConnection(ctx context.Context, id string, req apitypes.ConnectionRequest) result.Result[apitypes.Connection] {
	if missing := req.MissingFields(); len(missing) > 0 {
		return result.Err[apitypes.Connection](apperr.MissingFields(missing))
	}
	return do[apitypes.Connection](ctx, c, http.MethodPut, "/api/conexiones/"+escape(id), req)
}

func (c *Client) DeleteConnection(ctx context.Context, id string) result.Result[Empty] {
	return do[Empty](ctx, c, http.MethodDelete, "/api/conexiones/"+escape(id), nil)
}

func (c *Client) TestConnection(ctx context.Context, id string) result.Result[apitypes.ConnectionTestResult] {
	return do[apitypes.ConnectionTestResult](ctx, c, http.MethodPost, "/api/conexiones/"+escape(id)+"/test", nil)
}

// TestDraftConnection probes credentials that have not been saved yet.
func (c *Client) TestDraftConnection(ctx context.Context, req apitypes.ConnectionRequest) result.Result[apitypes.ConnectionTestResult] {
	if missing := req.MissingFields(); len(missing) > 0 {
		return result.Err[apitypes.ConnectionTestResult](apperr.MissingFields(missing))
	}
	return do[apitypes.ConnectionTestResult](ctx, c, http.MethodPost, "/api/conexiones/test", req)
}

// --- Chats ---

// ListChats lists the caller's chats, optionally limited to one connection.
func (c *Client) ListChats(ctx context.Context, connectionID string) result.Result[[]apitypes.Chat] {
	v := url.Values{}
	if connectionID != "" {
		v.Set("connectionId", connectionID)
	}
	return do[[]apitypes.Chat](ctx, c, http.MethodGet, query("/api/chats", v), nil)
}

func (c *Client) CreateChat(ctx context.Context, req apitypes.CreateChatRequest) result.Result[apitypes.Chat] {
	return do[apitypes.Chat](ctx, c, http.MethodPost, "/api/chats", req)
}

func (c *Client) GetChat(ctx context.Context, id string) result.Result[apitypes.ChatDetail] {
	return do[apitypes.ChatDetail](ctx, c, http.MethodGet, "/api/chats/"+escape(id), nil)
}

func (c *Client) RenameChat(ctx context.Context, id, title string) result.Result[apitypes.Chat] {
	return do[apitypes.Chat](ctx, c, http.MethodPut, "/api/chats/"+escape(id), apitypes.RenameChatRequest{Title: title})
}

func (c *Client) DeleteChat(ctx context.Context, id string) result.Result[Empty] {
	return do[Empty](ctx, c, http.MethodDelete, "/api/chats/"+escape(id), nil)
}

func (c *Client) AddMessage(ctx context.Context, chatID string, req apitypes.AddMessageRequest) result.Result[apitypes.Message] {
	return do[apitypes.Message](ctx, c, http.MethodPost, "/api/chats/"+escape(chatID)+"/messages", req)
}

// --- AI ---

func (c *Client) ProcessQuery(ctx context.Context, req apitypes.ProcessQueryRequest) result.Result[apitypes.ProcessQueryResponse] {
	return do[apitypes.ProcessQueryResponse](ctx, c, http.MethodPost, "/api/ai/process-query", req)
}

func (c *Client) CancelQuery(ctx context.Context, threadID string) result.Result[apitypes.CancelQueryResponse] {
	return do[apitypes.CancelQueryResponse](ctx, c, http.MethodPost, "/api/ai/cancel/"+escape(threadID), nil)
}

// --- Subscriptions ---

func (c *Client) Plans(ctx context.Context) result.Result[[]apitypes.Plan] {
	return do[[]apitypes.Plan](ctx, c, http.MethodGet, "/api/subscriptions/plans", nil)
}

func (c *Client) CurrentSubscription(ctx context.Context) result.Result[apitypes.CurrentSubscription] {
	return do[apitypes.CurrentSubscription](ctx, c, http.MethodGet, "/api/subscriptions/current", nil)
}

func (c *Client) SubscriptionStats(ctx context.Context) result.Result[apitypes.SubscriptionStats] {
	return do[apitypes.SubscriptionStats](ctx, c, http.MethodGet, "/api/subscriptions/stats", nil)
}

func (c *Client) CreateSubscription(ctx context.Context, tier string) result.Result[apitypes.CreateSubscriptionResponse] {
	return do[apitypes.CreateSubscriptionResponse](ctx, c, http.MethodPost, "/api/subscriptions/create", apitypes.CreateSubscriptionRequest{Tier: tier})
}

// ConfirmSubscription is called after the payment provider redirects back.
func (c *Client) ConfirmSubscription(ctx context.Context, providerID string) result.Result[apitypes.Subscription] {
	return do[apitypes.Subscription](ctx, c, http.MethodPost, "/api/subscriptions/confirm/"+escape(providerID), nil)
}

func (c *Client) SyncSubscription(ctx context.Context, providerID string) result.Result[apitypes.Subscription] {
	return do[apitypes.Subscription](ctx, c, http.MethodPost, "/api/subscriptions/sync/"+escape(providerID), nil)
}

func (c *Client) CancelSubscription(ctx context.Context, reason string) result.Result[apitypes.Subscription] {
	return do[apitypes.Subscription](ctx, c, http.MethodPost, "/api/subscriptions/cancel", apitypes.CancelSubscriptionRequest{Reason: reason})
}

func (c *Client) UpdateSubscription(ctx context.Context, tier string) result.Result[apitypes.CreateSubscriptionResponse] {
	return do[apitypes.CreateSubscriptionResponse](ctx, c, http.MethodPost, "/api/subscriptions/update", apitypes.UpdateSubscriptionRequest{Tier: tier})
}

// --- Support ---

func (c *Client) CreateTicket(ctx context.Context, req apitypes.CreateTicketRequest) result.Result[apitypes.Ticket] {
	if missing := req.MissingFields(); len(missing) > 0 {
		return result.Err[apitypes.Ticket](apperr.MissingFields(missing))
	}
	return do[apitypes.Ticket](ctx, c, http.MethodPost, "/api/support", req)
}

// ListTickets returns the caller's tickets; all=true lists everyone's for admins.
func (c *Client) ListTickets(ctx context.Context, all bool) result.Result[[]apitypes.Ticket] {
	v := url.Values{}
	if all {
		v.Set("all", "true")
	}
	return do[[]apitypes.Ticket](ctx, c, http.MethodGet, query("/api/support", v), nil)
}

func (c *Client) UpdateTicketStatus(ctx context.Context, id, status string) result.Result[apitypes.Ticket] {
	return do[apitypes.Ticket](ctx, c, http.MethodPut, "/api/support/"+escape(id)+"/status", apitypes.UpdateTicketStatusRequest{Status: status})
}

// --- Admin ---

// Dashboard fetches admin metrics; months <= 0 uses the server default.
func (c *Client) Dashboard(ctx context.Context, months int) result.Result[apitypes.Dashboard] {
	v := url.Values{}
	if months > 0 {
		v.Set("months", strconv.Itoa(months))
	}
	return do[apitypes.Dashboard](ctx, c, http.MethodGet, query("/api/admin/dashboard", v), nil)
}
