package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/httputil"
)

// ChatService defines the interface expected from the chat service.
type ChatService interface {
	List(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID) ([]apitypes.Chat, error)
	Create(ctx context.Context, userID uuid.UUID, req apitypes.CreateChatRequest) (*apitypes.Chat, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*apitypes.ChatDetail, error)
	Rename(ctx context.Context, id, userID uuid.UUID, title string) (*apitypes.Chat, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	AddMessage(ctx context.Context, chatID, userID uuid.UUID, req apitypes.AddMessageRequest) (*apitypes.Message, error)
}

// QueryService defines the interface expected from the query service.
type QueryService interface {
	Process(ctx context.Context, userID uuid.UUID, req apitypes.ProcessQueryRequest) (*apitypes.ProcessQueryResponse, error)
	Cancel(ctx context.Context, userID uuid.UUID, threadID string) (bool, error)
}

type ChatHandler struct {
	chats   ChatService
	queries QueryService
}

func NewChatHandler(chats ChatService, queries QueryService) *ChatHandler {
	return &ChatHandler{chats: chats, queries: queries}
}

// HandleList handles GET /api/chats?connectionId=.
func (h *ChatHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var filter *uuid.UUID
	if raw := r.URL.Query().Get("connectionId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Invalid connectionId format")
			return
		}
		filter = &id
	}
	chats, err := h.chats.List(r.Context(), userID, filter)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list chats")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, chats)
}

// HandleCreate handles POST /api/chats.
func (h *ChatHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req apitypes.CreateChatRequest
	if !decode(w, r, &req) {
		return
	}
	chat, err := h.chats.Create(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create chat")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, chat)
}

// HandleGet handles GET /api/chats/{id}.
func (h *ChatHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	chat, err := h.chats.Get(r.Context(), id, userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to get chat")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, chat)
}

// HandleRename handles PUT /api/chats/{id}.
func (h *ChatHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req apitypes.RenameChatRequest
	if !decode(w, r, &req) {
		return
	}
	chat, err := h.chats.Rename(r.Context(), id, userID, req.Title)
	if err != nil {
		respondServiceError(w, r, err, "Failed to rename chat")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, chat)
}

// HandleDelete handles DELETE /api/chats/{id}.
func (h *ChatHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.chats.Delete(r.Context(), id, userID); err != nil {
		respondServiceError(w, r, err, "Failed to delete chat")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

// HandleAddMessage handles POST /api/chats/{id}/messages.
func (h *ChatHandler) HandleAddMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req apitypes.AddMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.chats.AddMessage(r.Context(), id, userID, req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to add message")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, msg)
}

// HandleProcessQuery handles POST /api/ai/process-query.
func (h *ChatHandler) HandleProcessQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req apitypes.ProcessQueryRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.queries.Process(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to process query")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleCancelQuery handles POST /api/ai/cancel/{threadId}.
func (h *ChatHandler) HandleCancelQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "threadId")
	if threadID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "threadId is required")
		return
	}
	cancelled, err := h.queries.Cancel(r.Context(), userID, threadID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to cancel query")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, apitypes.CancelQueryResponse{ThreadID: threadID, Cancelled: cancelled})
}
