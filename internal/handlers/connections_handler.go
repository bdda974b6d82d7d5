package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/httputil"
)

// ConnectionService defines the interface expected from the connection service.
type ConnectionService interface {
	List(ctx context.Context, userID uuid.UUID) ([]apitypes.Connection, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*apitypes.Connection, error)
	Create(ctx context.Context, userID uuid.UUID, req apitypes.ConnectionRequest) (*apitypes.Connection, error)
	Update(ctx context.Context, id, userID uuid.UUID, req apitypes.ConnectionRequest) (*apitypes.Connection, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	Test(ctx context.Context, id, userID uuid.UUID) (*apitypes.ConnectionTestResult, error)
	TestDraft(ctx context.Context, req apitypes.ConnectionRequest) (*apitypes.ConnectionTestResult, error)
}

type ConnectionHandler struct {
	conns ConnectionService
}

func NewConnectionHandler(conns ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{conns: conns}
}

// HandleList handles GET /api/conexiones.
func (h *ConnectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conns, err := h.conns.List(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list connections")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conns)
}

// HandleCreate handles POST /api/conexiones.
func (h *ConnectionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req apitypes.ConnectionRequest
	if !decode(w, r, &req) {
		return
	}
	conn, err := h.conns.Create(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create connection")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, conn)
}

// HandleGet handles GET /api/conexiones/{id}.
func (h *ConnectionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	conn, err := h.conns.Get(r.Context(), id, userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to get connection")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conn)
}

// HandleUpdate handles PUT /api/conexiones/{id}.
func (h *ConnectionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req apitypes.ConnectionRequest
	if !decode(w, r, &req) {
		return
	}
	conn, err := h.conns.Update(r.Context(), id, userID, req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update connection")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conn)
}

// HandleDelete handles DELETE /api/conexiones/{id}.
func (h *ConnectionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.conns.Delete(r.Context(), id, userID); err != nil {
		respondServiceError(w, r, err, "Failed to delete connection")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

// HandleTest handles POST /api/conexiones/{id}/test.
func (h *ConnectionHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.conns.Test(r.Context(), id, userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to test connection")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// HandleTestDraft handles POST /api/conexiones/test with unsaved credentials.
func (h *ConnectionHandler) HandleTestDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	var req apitypes.ConnectionRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.conns.TestDraft(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to test connection")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}
