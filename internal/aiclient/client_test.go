package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "th-1", req.ThreadID)
		assert.Equal(t, "postgresql", req.Connection.Engine)
		json.NewEncoder(w).Encode(QueryResponse{Answer: "Hay 42 pedidos", SQL: "SELECT count(*) FROM pedidos", RowCount: 1})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	resp, err := c.Query(context.Background(), QueryRequest{
		ThreadID: "th-1", Question: "¿Cuántos pedidos hay?",
		Connection: ConnectionInfo{Engine: "postgresql"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hay 42 pedidos", resp.Answer)
	assert.Equal(t, "SELECT count(*) FROM pedidos", resp.SQL)
}

func TestQueryServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"no se pudo generar SQL"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Query(context.Background(), QueryRequest{})
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
	assert.Equal(t, "no se pudo generar SQL", se.Message)
}

func TestQueryHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := New(srv.URL, 5*time.Second).Query(ctx, QueryRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cancel/th-9", r.URL.Path)
		w.Write([]byte(`{"cancelled":true}`))
	}))
	defer srv.Close()

	ok, err := New(srv.URL, time.Second).Cancel(context.Background(), "th-9")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnreachable(t *testing.T) {
	_, err := New("http://127.0.0.1:1", time.Second).Query(context.Background(), QueryRequest{})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
