// Package chatflow drives one chat's request lifecycle on the client:
// optimistic messages, the single in-flight question, cancellation and the
// authoritative refetch.
package chatflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/eventbus"
	"nexosql-backend/pkg/result"
)

type State int

const (
	Idle State = iota
	Submitting
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrBusy          = errors.New("a question is already being processed")
	ErrNotProcessing = errors.New("no question is being processed")
)

// Transition is published on every state change.
type Transition struct {
	ChatID   string
	ThreadID string
	From, To State
}

// API is the part of the API client a session needs.
type API interface {
	ProcessQuery(ctx context.Context, req apitypes.ProcessQueryRequest) result.Result[apitypes.ProcessQueryResponse]
	CancelQuery(ctx context.Context, threadID string) result.Result[apitypes.CancelQueryResponse]
	GetChat(ctx context.Context, id string) result.Result[apitypes.ChatDetail]
}

// Session is the state of one open chat. All methods are safe for concurrent
// use; Submit blocks until the question settles while Cancel may be called
// from another goroutine.
type Session struct {
	mu           sync.Mutex
	api          API
	chatID       string
	connectionID string

	state    State
	messages []apitypes.Message
	input    string
	banner   string

	gen      uint64 // bumped per submit and on cancel; a response from an older generation is stale
	threadID string
	cancel   context.CancelFunc

	transitions eventbus.Topic[Transition]
	newThreadID func() string
	now         func() time.Time
	log         *logrus.Entry
}

func NewSession(api API, chatID, connectionID string) *Session {
	return &Session{
		api:          api,
		chatID:       chatID,
		connectionID: connectionID,
		newThreadID:  uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
		log:          logrus.WithFields(logrus.Fields{"component": "ChatSession", "chat_id": chatID}),
	}
}

// Transitions is the topic state changes are published on.
func (s *Session) Transitions() *eventbus.Topic[Transition] {
	return &s.transitions
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ThreadID is the id of the question in flight, empty when idle.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// IsProcessing is true while a question is in flight.
func (s *Session) IsProcessing() bool {
	return s.State() == Submitting
}

func (s *Session) Messages() []apitypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apitypes.Message(nil), s.messages...)
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// ErrorBanner is the message of the last failure, empty when none.
func (s *Session) ErrorBanner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

func (s *Session) DismissError() {
	s.mu.Lock()
	s.banner = ""
	s.mu.Unlock()
}

// Load replaces the transcript with the server's.
func (s *Session) Load(ctx context.Context) result.Result[apitypes.ChatDetail] {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.refetch(ctx, gen)
}

// Submit sends the current input as a question and blocks until it
// settles. It returns the terminal state, or ErrBusy while another question
// is in flight.
func (s *Session) Submit(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.state == Submitting {
		s.mu.Unlock()
		return Submitting, ErrBusy
	}
	question := strings.TrimSpace(s.input)
	if question == "" {
		s.mu.Unlock()
		return s.state, apperr.Validation("Escribe una pregunta.")
	}
	if s.connectionID == "" {
		s.mu.Unlock()
		return s.state, apperr.Validation("Selecciona una conexión antes de preguntar.")
	}

	s.gen++
	gen := s.gen
	threadID := s.newThreadID()
	now := s.now()
	s.messages = append(s.messages,
		apitypes.Message{ID: localUserID(threadID), ChatID: s.chatID, Type: apitypes.MessageTypeUser,
			Content: question, ThreadID: threadID, Timestamp: now},
		apitypes.Message{ID: localAssistantID(threadID), ChatID: s.chatID, Type: apitypes.MessageTypeAssistant,
			ThreadID: threadID, Timestamp: now, Metadata: metadata(apitypes.QueryMetadata{Loading: true})},
	)
	s.input = ""
	s.banner = ""
	qctx, cancel := context.WithCancel(ctx)
	s.threadID = threadID
	s.cancel = cancel
	from := s.state
	s.state = Submitting
	s.mu.Unlock()
	defer cancel()

	s.publish(threadID, from, Submitting)

	res := s.api.ProcessQuery(qctx, apitypes.ProcessQueryRequest{
		ConnectionID: s.connectionID,
		ChatID:       s.chatID,
		Question:     question,
		ThreadID:     threadID,
	})

	s.mu.Lock()
	if s.gen != gen {
		// Cancel already settled this question; the response is stale.
		if s.threadID == threadID {
			s.threadID = ""
		}
		s.mu.Unlock()
		s.log.WithField("thread_id", threadID).Debug("ignoring stale response")
		return Cancelled, nil
	}
	s.cancel = nil

	resp, ok := res.Value()
	if !ok {
		f, _ := res.Failure()
		if f.Kind == apperr.KindCancelled {
			s.gen++
			s.settleCancelled(threadID)
			s.mu.Unlock()
			s.publish(threadID, Submitting, Cancelled)
			s.toIdle(threadID, Cancelled)
			return Cancelled, nil
		}
		s.replaceLoading(threadID, apitypes.Message{
			ID: localAssistantID(threadID), ChatID: s.chatID, Type: apitypes.MessageTypeAssistant,
			Content: f.Message, IsError: true, ThreadID: threadID, Timestamp: s.now(),
		})
		s.banner = f.Message
		s.state = Failed
		s.mu.Unlock()
		s.publish(threadID, Submitting, Failed)
		s.toIdle(threadID, Failed)
		return Failed, nil
	}

	s.dropLocal(threadID)
	s.messages = apitypes.NormalizeTranscript(append(s.messages, resp.UserMessage, resp.AssistantMessage))
	if resp.AssistantMessage.IsError {
		s.banner = resp.AssistantMessage.Content
	}
	s.state = Completed
	s.mu.Unlock()
	s.publish(threadID, Submitting, Completed)

	if f, failed := s.refetch(ctx, gen).Failure(); failed {
		s.log.WithField("kind", f.Kind).Warn("refetch after completion failed")
	}
	s.toIdle(threadID, Completed)
	return Completed, nil
}

// Cancel stops the in-flight question. It commits to Cancelled at once,
// cancels on the server by thread id and aborts the local request
// concurrently, and leaves exactly one cancelled pair in the transcript.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Submitting {
		s.mu.Unlock()
		return ErrNotProcessing
	}
	s.gen++
	threadID := s.threadID
	localCancel := s.cancel
	s.cancel = nil
	s.settleCancelled(threadID)
	s.mu.Unlock()
	s.publish(threadID, Submitting, Cancelled)

	var g errgroup.Group
	g.Go(func() error {
		if f, failed := s.api.CancelQuery(ctx, threadID).Failure(); failed {
			s.log.WithFields(logrus.Fields{"thread_id": threadID, "kind": f.Kind}).Warn("server cancel failed")
		}
		return nil
	})
	g.Go(func() error {
		if localCancel != nil {
			localCancel()
		}
		return nil
	})
	_ = g.Wait()

	s.toIdle(threadID, Cancelled)
	return nil
}

// settleCancelled swaps the loading placeholder for the cancellation notice.
// Callers hold mu.
func (s *Session) settleCancelled(threadID string) {
	s.replaceLoading(threadID, apitypes.Message{
		ID: localAssistantID(threadID), ChatID: s.chatID, Type: apitypes.MessageTypeAssistant,
		Content: apperr.CancelledMessage, ThreadID: threadID, Timestamp: s.now(),
		Metadata: metadata(apitypes.QueryMetadata{Cancelled: true}),
	})
	s.state = Cancelled
}

func (s *Session) replaceLoading(threadID string, msg apitypes.Message) {
	id := localAssistantID(threadID)
	for i := range s.messages {
		if s.messages[i].ID == id {
			if msg.Timestamp.Before(s.messages[i].Timestamp) {
				msg.Timestamp = s.messages[i].Timestamp
			}
			s.messages[i] = msg
			return
		}
	}
	s.messages = append(s.messages, msg)
}

func (s *Session) dropLocal(threadID string) {
	u, a := localUserID(threadID), localAssistantID(threadID)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID != u && m.ID != a {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

// refetch replaces the transcript unless a newer question started meanwhile.
func (s *Session) refetch(ctx context.Context, gen uint64) result.Result[apitypes.ChatDetail] {
	res := s.api.GetChat(ctx, s.chatID)
	detail, ok := res.Value()
	if !ok {
		return res
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.messages = apitypes.NormalizeTranscript(detail.Messages)
	}
	return res
}

func (s *Session) toIdle(threadID string, from State) {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return
	}
	s.state = Idle
	if s.threadID == threadID {
		s.threadID = ""
	}
	s.mu.Unlock()
	s.publish(threadID, from, Idle)
}

func (s *Session) publish(threadID string, from, to State) {
	s.transitions.Publish(Transition{ChatID: s.chatID, ThreadID: threadID, From: from, To: to})
}

func localUserID(threadID string) string      { return "local-user-" + threadID }
func localAssistantID(threadID string) string { return "local-assistant-" + threadID }

func metadata(m apitypes.QueryMetadata) json.RawMessage {
	raw, _ := json.Marshal(m)
	return raw
}
