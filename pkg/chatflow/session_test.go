package chatflow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/result"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu         sync.Mutex
	started    chan string
	release    chan struct{}
	honorCtx   bool
	processed  apperr.Failure
	fail       bool
	cancels    []string
	gets       int
	transcript []apitypes.Message
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{started: make(chan string, 4), release: make(chan struct{}), honorCtx: true}
}

func (f *fakeAPI) ProcessQuery(ctx context.Context, req apitypes.ProcessQueryRequest) result.Result[apitypes.ProcessQueryResponse] {
	f.started <- req.ThreadID
	if f.honorCtx {
		select {
		case <-f.release:
		case <-ctx.Done():
			return result.Err[apitypes.ProcessQueryResponse](apperr.Cancelled())
		}
	} else {
		<-f.release
	}
	if f.fail {
		return result.Err[apitypes.ProcessQueryResponse](f.processed)
	}
	user := apitypes.Message{ID: "m1", Type: apitypes.MessageTypeUser, Content: req.Question, ThreadID: req.ThreadID, Timestamp: t0}
	bot := apitypes.Message{ID: "m2", Type: apitypes.MessageTypeAssistant, Content: "Hay 42 ventas.", ThreadID: req.ThreadID, Timestamp: t0}
	f.mu.Lock()
	f.transcript = []apitypes.Message{bot, user, bot}
	f.mu.Unlock()
	return result.Ok(apitypes.ProcessQueryResponse{UserMessage: user, AssistantMessage: bot})
}

func (f *fakeAPI) CancelQuery(_ context.Context, threadID string) result.Result[apitypes.CancelQueryResponse] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, threadID)
	return result.Ok(apitypes.CancelQueryResponse{ThreadID: threadID, Cancelled: true})
}

func (f *fakeAPI) GetChat(context.Context, string) result.Result[apitypes.ChatDetail] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return result.Ok(apitypes.ChatDetail{Messages: append([]apitypes.Message(nil), f.transcript...)})
}

func newSession(api API) (*Session, *[]Transition) {
	s := NewSession(api, "chat-1", "conn-1")
	s.newThreadID = func() string { return "thread-1" }
	var mu sync.Mutex
	var seen []Transition
	s.Transitions().Subscribe(func(tr Transition) {
		mu.Lock()
		seen = append(seen, tr)
		mu.Unlock()
	})
	return s, &seen
}

type submitted struct {
	state State
	err   error
}

func submitAsync(s *Session) <-chan submitted {
	out := make(chan submitted, 1)
	go func() {
		st, err := s.Submit(context.Background())
		out <- submitted{st, err}
	}()
	return out
}

func waitStarted(t *testing.T, api *fakeAPI) string {
	t.Helper()
	select {
	case id := <-api.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("request never started")
		return ""
	}
}

func TestSubmitCompletes(t *testing.T) {
	api := newFakeAPI()
	s, seen := newSession(api)
	s.SetInput("  ¿Cuántas ventas hubo?  ")

	done := submitAsync(s)
	assert.Equal(t, "thread-1", waitStarted(t, api))
	assert.True(t, s.IsProcessing())
	assert.Equal(t, "thread-1", s.ThreadID())
	assert.Empty(t, s.Input())

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "¿Cuántas ventas hubo?", msgs[0].Content)
	var meta apitypes.QueryMetadata
	require.NoError(t, json.Unmarshal(msgs[1].Metadata, &meta))
	assert.True(t, meta.Loading)

	close(api.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, Completed, res.state)
	assert.Equal(t, Idle, s.State())
	assert.Empty(t, s.ThreadID())

	msgs = s.Messages()
	require.Len(t, msgs, 2, "refetched transcript is deduplicated")
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, 1, api.gets)

	assert.Equal(t, []Transition{
		{ChatID: "chat-1", ThreadID: "thread-1", From: Idle, To: Submitting},
		{ChatID: "chat-1", ThreadID: "thread-1", From: Submitting, To: Completed},
		{ChatID: "chat-1", ThreadID: "thread-1", From: Completed, To: Idle},
	}, *seen)
}

func TestSubmitWhileBusy(t *testing.T) {
	api := newFakeAPI()
	s, _ := newSession(api)
	s.SetInput("primera")
	done := submitAsync(s)
	waitStarted(t, api)

	s.SetInput("segunda")
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, "segunda", s.Input())

	close(api.release)
	<-done
	assert.Empty(t, api.started, "the rejected submit never reached the API")
}

func TestSubmitValidatesLocally(t *testing.T) {
	api := newFakeAPI()
	s, _ := newSession(api)
	_, err := s.Submit(context.Background())
	var f apperr.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, apperr.KindValidation, f.Kind)

	noConn := NewSession(api, "chat-1", "")
	noConn.SetInput("hola")
	_, err = noConn.Submit(context.Background())
	assert.Error(t, err)
	assert.Empty(t, api.started)
}

func cancelledNotices(msgs []apitypes.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Content == apperr.CancelledMessage {
			n++
		}
	}
	return n
}

func TestCancelLeavesOneCancelledPair(t *testing.T) {
	api := newFakeAPI()
	s, seen := newSession(api)
	s.SetInput("consulta lenta")
	done := submitAsync(s)
	threadID := waitStarted(t, api)

	require.NoError(t, s.Cancel(context.Background()))
	assert.ErrorIs(t, s.Cancel(context.Background()), ErrNotProcessing)

	res := <-done
	assert.Equal(t, Cancelled, res.state)
	assert.Equal(t, Idle, s.State())
	assert.Empty(t, s.ThreadID())

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, apitypes.MessageTypeUser, msgs[0].Type)
	assert.Equal(t, 1, cancelledNotices(msgs))
	var meta apitypes.QueryMetadata
	require.NoError(t, json.Unmarshal(msgs[1].Metadata, &meta))
	assert.True(t, meta.Cancelled)

	assert.Equal(t, []string{threadID}, api.cancels)
	assert.Zero(t, api.gets)
	assert.Equal(t, Cancelled, (*seen)[1].To)
	assert.Equal(t, Idle, (*seen)[2].To)
}

func TestLateResponseAfterCancelIsIgnored(t *testing.T) {
	api := newFakeAPI()
	api.honorCtx = false
	s, _ := newSession(api)
	s.SetInput("consulta")
	done := submitAsync(s)
	waitStarted(t, api)

	require.NoError(t, s.Cancel(context.Background()))
	close(api.release)
	res := <-done

	assert.Equal(t, Cancelled, res.state)
	assert.Empty(t, s.ThreadID())
	msgs := s.Messages()
	assert.Len(t, msgs, 2)
	assert.Equal(t, 1, cancelledNotices(msgs))
	for _, m := range msgs {
		assert.NotEqual(t, "Hay 42 ventas.", m.Content)
	}
	assert.Zero(t, api.gets)
}

func TestFailureSetsBanner(t *testing.T) {
	api := newFakeAPI()
	api.fail = true
	api.processed = apperr.FromAPI(apperr.CodeQueryLimitReached, "limit")
	close(api.release)
	s, seen := newSession(api)
	s.SetInput("otra más")

	st, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Failed, st)
	assert.Equal(t, apperr.MessageFor(apperr.CodeQueryLimitReached, ""), s.ErrorBanner())

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, Failed, (*seen)[1].To)

	s.DismissError()
	assert.Empty(t, s.ErrorBanner())
}

func TestCancelWhenIdle(t *testing.T) {
	s, _ := newSession(newFakeAPI())
	assert.ErrorIs(t, s.Cancel(context.Background()), ErrNotProcessing)
}
