package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"nexosql-backend/internal/aiclient"
	"nexosql-backend/internal/models"
	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
)

type queryFixture struct {
	*fixture
	svc    *QueryService
	engine *fakeEngine
	chat   *models.Chat
	conn   *models.Connection
}

func newQueryFixture(t *testing.T, engine *fakeEngine) *queryFixture {
	t.Helper()
	f := newFixture(t)
	f.subscribe(t, "bronce", models.SubscriptionActive)
	conn := seedConn(t, f)
	chat := &models.Chat{UserID: f.user.ID, ConnectionID: conn.ID, Title: apitypes.DefaultChatTitle}
	require.NoError(t, f.store.CreateChat(context.Background(), chat))
	conns := NewConnectionService(f.store, testSealer(t), &stubTester{})
	return &queryFixture{fixture: f, svc: NewQueryService(f.store, conns, engine), engine: engine, chat: chat, conn: conn}
}

func (q *queryFixture) request(threadID, question string) apitypes.ProcessQueryRequest {
	return apitypes.ProcessQueryRequest{
		ConnectionID: q.conn.ID.String(), ChatID: q.chat.ID.String(),
		Question: question, ThreadID: threadID,
	}
}

func TestProcessQueryCompletes(t *testing.T) {
	q := newQueryFixture(t, &fakeEngine{resp: &aiclient.QueryResponse{
		Answer: "Hay 42 pedidos", SQL: "SELECT count(*) FROM pedidos", RowCount: 1, DurationMs: 12,
	}})
	ctx := context.Background()

	res, err := q.svc.Process(ctx, q.user.ID, q.request("th-1", "¿Cuántos pedidos hay?"))
	require.NoError(t, err)
	assert.Equal(t, "¿Cuántos pedidos hay?", res.UserMessage.Content)
	assert.Equal(t, "Hay 42 pedidos", res.AssistantMessage.Content)
	assert.False(t, res.AssistantMessage.IsError)

	var meta apitypes.QueryMetadata
	require.NoError(t, json.Unmarshal(res.AssistantMessage.Metadata, &meta))
	assert.Equal(t, "SELECT count(*) FROM pedidos", meta.SQL)

	require.Len(t, q.engine.requests, 1)
	sent := q.engine.requests[0]
	assert.Equal(t, "s3creto", sent.Connection.Password)
	assert.Equal(t, "th-1", sent.ThreadID)

	chat, err := q.store.GetChat(ctx, q.chat.ID, q.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "¿Cuántos pedidos hay?", chat.Title)

	msgs, err := q.store.ListMessages(ctx, q.chat.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Zero(t, q.svc.InFlight())
}

func TestProcessQueryFailureIsPersisted(t *testing.T) {
	q := newQueryFixture(t, &fakeEngine{err: &aiclient.ServiceError{Status: 422, Message: "La tabla no existe"}})

	res, err := q.svc.Process(context.Background(), q.user.ID, q.request("th-2", "ventas de marte"))
	require.NoError(t, err)
	assert.True(t, res.AssistantMessage.IsError)
	assert.Equal(t, "La tabla no existe", res.AssistantMessage.Content)

	n, err := q.store.CountQueries(context.Background(), q.user.ID, time.Time{}, time.Now().Add(time.Hour), models.QueryFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCancelWinsOverLateAnswer(t *testing.T) {
	engine := &fakeEngine{
		resp:    &aiclient.QueryResponse{Answer: "tarde"},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	q := newQueryFixture(t, engine)
	ctx := context.Background()

	type outcome struct {
		res *apitypes.ProcessQueryResponse
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := q.svc.Process(ctx, q.user.ID, q.request("th-3", "consulta lenta"))
		done <- outcome{res, err}
	}()
	<-engine.started

	stranger := uuid.New()
	ok, err := q.svc.Cancel(ctx, stranger, "th-3")
	require.NoError(t, err)
	assert.False(t, ok, "only the owner can cancel")

	ok, err = q.svc.Cancel(ctx, q.user.ID, "th-3")
	require.NoError(t, err)
	assert.True(t, ok)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, apperr.CancelledMessage, out.res.AssistantMessage.Content)
	assert.Equal(t, []string{"th-3"}, engine.cancelled)

	// A second cancel after the fact is a no-op.
	ok, err = q.svc.Cancel(ctx, q.user.ID, "th-3")
	require.NoError(t, err)
	assert.False(t, ok)

	msgs, err := q.store.ListMessages(ctx, q.chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, apperr.CancelledMessage, msgs[1].Content)
}

func TestCompletionWinsOverLateCancel(t *testing.T) {
	q := newQueryFixture(t, &fakeEngine{resp: &aiclient.QueryResponse{Answer: "listo"}})
	ctx := context.Background()

	res, err := q.svc.Process(ctx, q.user.ID, q.request("th-4", "rápida"))
	require.NoError(t, err)
	assert.Equal(t, "listo", res.AssistantMessage.Content)

	ok, err := q.svc.Cancel(ctx, q.user.ID, "th-4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessQueryLimit(t *testing.T) {
	q := newQueryFixture(t, &fakeEngine{resp: &aiclient.QueryResponse{Answer: "ok"}})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, q.store.CreateQueryLog(ctx, &models.QueryLog{UserID: q.user.ID, Status: models.QueryCompleted}))
	}
	_, err := q.svc.Process(ctx, q.user.ID, q.request("th-5", "una más"))
	assert.Equal(t, apperr.CodeQueryLimitReached, planCode(t, err))
	assert.Empty(t, q.engine.requests)
}

func TestProcessQueryValidation(t *testing.T) {
	q := newQueryFixture(t, &fakeEngine{})
	ctx := context.Background()

	_, err := q.svc.Process(ctx, q.user.ID, q.request("th", "  "))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = q.svc.Process(ctx, q.user.ID, q.request("", "hola"))
	assert.ErrorIs(t, err, ErrValidation)

	req := q.request("th", "hola")
	req.ConnectionID = uuid.NewString()
	_, err = q.svc.Process(ctx, q.user.ID, req)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = q.svc.Process(ctx, uuid.New(), q.request("th", "hola"))
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestHistorySkipsErrorsAndCancellations(t *testing.T) {
	q := newQueryFixture(t, &fakeEngine{resp: &aiclient.QueryResponse{Answer: "ok"}})
	ctx := context.Background()
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	cancelled := datatypes.JSON(`{"cancelled":true}`)
	require.NoError(t, q.store.AddMessages(ctx, q.chat.ID,
		&models.ChatMessage{Type: models.MessageTypeAssistant, Content: "Hay 3 clientes", Timestamp: at},
		&models.ChatMessage{Type: models.MessageTypeUser, Content: "¿Cuántos clientes?", Timestamp: at},
		&models.ChatMessage{Type: models.MessageTypeUser, Content: "consulta lenta", Timestamp: at.Add(time.Minute)},
		&models.ChatMessage{Type: models.MessageTypeAssistant, Content: apperr.CancelledMessage, Metadata: cancelled, Timestamp: at.Add(time.Minute)},
		&models.ChatMessage{Type: models.MessageTypeUser, Content: "tabla rara", Timestamp: at.Add(2 * time.Minute)},
		&models.ChatMessage{Type: models.MessageTypeAssistant, Content: "La tabla no existe", IsError: true, Timestamp: at.Add(2 * time.Minute)},
	))

	turns, err := q.svc.history(ctx, q.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, []aiclient.Turn{
		{Role: models.MessageTypeUser, Content: "¿Cuántos clientes?"},
		{Role: models.MessageTypeAssistant, Content: "Hay 3 clientes"},
		{Role: models.MessageTypeUser, Content: "consulta lenta"},
		{Role: models.MessageTypeUser, Content: "tabla rara"},
	}, turns)
}

func TestAutoTitle(t *testing.T) {
	assert.Equal(t, "hola mundo", autoTitle("  hola \n mundo "))
	long := autoTitle("¿Cuál fue el total de ventas por región durante el último trimestre fiscal del año?")
	assert.LessOrEqual(t, len([]rune(long)), autoTitleLength)
	assert.True(t, len(long) > 0 && long[len(long)-len("…"):] == "…")
}
