package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"nexosql-backend/internal/aiclient"
	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/models"
	"nexosql-backend/internal/plans"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
)

const (
	maxThreadIDLength = 64
	maxQuestionLength = 4000
	historyTurns      = 10
	autoTitleLength   = 60

	aiFailureMessage = "No se pudo procesar la consulta. Inténtalo de nuevo."
)

// QueryEngine is the external natural-language-to-SQL service.
type QueryEngine interface {
	Query(ctx context.Context, req aiclient.QueryRequest) (*aiclient.QueryResponse, error)
	Cancel(ctx context.Context, threadID string) (bool, error)
}

const (
	stateRunning int32 = iota
	stateCompleted
	stateFailed
	stateCancelled
)

// inflight is one question being answered. Its terminal state is decided by
// a single compare-and-set, so completion and cancellation can't both win.
type inflight struct {
	owner  uuid.UUID
	cancel context.CancelFunc
	state  atomic.Int32
}

func (f *inflight) settle(to int32) bool {
	return f.state.CompareAndSwap(stateRunning, to)
}

type QueryService struct {
	store  store.Store
	conns  *ConnectionService
	engine QueryEngine
	now    func() time.Time
	log    *logrus.Entry

	mu      sync.Mutex
	running map[string]*inflight
}

func NewQueryService(s store.Store, conns *ConnectionService, engine QueryEngine) *QueryService {
	return &QueryService{
		store:   s,
		conns:   conns,
		engine:  engine,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logging.Component("QueryService"),
		running: make(map[string]*inflight),
	}
}

// Process answers one question and persists both sides of the exchange.
// Cancellation, whether through Cancel or the caller's context, is not an
// error: the assistant message carries the cancellation notice instead.
func (s *QueryService) Process(ctx context.Context, userID uuid.UUID, req apitypes.ProcessQueryRequest) (*apitypes.ProcessQueryResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, validationErr("question cannot be empty")
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		return nil, validationErr("question exceeds %d characters", maxQuestionLength)
	}
	if req.ThreadID == "" || len(req.ThreadID) > maxThreadIDLength {
		return nil, validationErr("threadId is required")
	}
	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		return nil, validationErr("invalid chatId")
	}
	connID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		return nil, validationErr("invalid connectionId")
	}

	chat, err := s.store.GetChat(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat.ConnectionID != connID {
		return nil, validationErr("chat does not belong to connection")
	}
	conn, creds, err := s.conns.Credentials(ctx, connID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ent, err := currentEntitlement(ctx, s.store, userID, now)
	if err != nil {
		return nil, err
	}
	used, err := monthlyQueries(ctx, s.store, userID, now)
	if err != nil {
		return nil, err
	}
	if usage := plans.NewUsage(used, ent.plan.MonthlyQueryLimit); !plans.CanConsume(usage) {
		return nil, &PlanError{Code: apperr.CodeQueryLimitReached, Detail: fmt.Sprintf("%d/%d", usage.Used, usage.Limit)}
	}

	history, err := s.history(ctx, chatID)
	if err != nil {
		return nil, err
	}

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()
	entry, err := s.register(req.ThreadID, userID, cancel)
	if err != nil {
		return nil, err
	}
	defer s.unregister(req.ThreadID)

	// Persistence outlives an aborted request.
	persistCtx := context.WithoutCancel(ctx)

	userMsg := &models.ChatMessage{
		Type:      models.MessageTypeUser,
		Content:   question,
		ThreadID:  req.ThreadID,
		Timestamp: now,
	}
	if err := s.store.AddMessages(persistCtx, chatID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save question: %w", err)
	}
	if chat.Title == apitypes.DefaultChatTitle {
		if err := s.store.RenameChat(persistCtx, chatID, userID, autoTitle(question)); err != nil {
			s.log.WithError(err).Warn("auto-titling chat")
		}
	}

	log := s.log.WithFields(logrus.Fields{"user_id": userID, "chat_id": chatID, "thread_id": req.ThreadID})
	start := time.Now()
	resp, qerr := s.engine.Query(qctx, aiclient.QueryRequest{
		ThreadID: req.ThreadID,
		ChatID:   chatID.String(),
		Question: question,
		Connection: aiclient.ConnectionInfo{
			Engine:   conn.Engine,
			Host:     creds.Host,
			Port:     creds.Port,
			Database: creds.DatabaseName,
			Username: creds.Username,
			Password: creds.Password,
			SSLMode:  creds.SSLMode,
		},
		History: history,
	})
	elapsed := time.Since(start)

	var outcome int32
	switch {
	case qerr == nil && entry.settle(stateCompleted):
		outcome = stateCompleted
	case qerr != nil && ctx.Err() == nil && qctx.Err() == nil && entry.settle(stateFailed):
		outcome = stateFailed
	default:
		// Cancel won the race, or the caller went away.
		entry.settle(stateCancelled)
		outcome = stateCancelled
	}

	assistant := &models.ChatMessage{
		Type:      models.MessageTypeAssistant,
		ThreadID:  req.ThreadID,
		Timestamp: s.now(),
	}
	if assistant.Timestamp.Before(userMsg.Timestamp) {
		assistant.Timestamp = userMsg.Timestamp
	}
	var meta apitypes.QueryMetadata
	logStatus := models.QueryCompleted
	switch outcome {
	case stateCompleted:
		assistant.Content = resp.Answer
		if assistant.Content == "" {
			assistant.Content = "Consulta ejecutada correctamente."
		}
		meta = apitypes.QueryMetadata{SQL: resp.SQL, DurationMs: resp.DurationMs, RowCount: resp.RowCount}
		if meta.DurationMs == 0 {
			meta.DurationMs = elapsed.Milliseconds()
		}
		log.WithField("latency", elapsed).Info("query completed")
	case stateFailed:
		logStatus = models.QueryFailed
		assistant.IsError = true
		assistant.Content = aiFailureMessage
		var se *aiclient.ServiceError
		if errors.As(qerr, &se) && se.Message != "" {
			assistant.Content = se.Message
		}
		meta = apitypes.QueryMetadata{Error: qerr.Error(), DurationMs: elapsed.Milliseconds()}
		log.WithError(qerr).Warn("query failed")
	default:
		logStatus = models.QueryCancelled
		assistant.Content = apperr.CancelledMessage
		meta = apitypes.QueryMetadata{Cancelled: true, DurationMs: elapsed.Milliseconds()}
		log.Info("query cancelled")
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	assistant.Metadata = datatypes.JSON(raw)

	if err := s.store.AddMessages(persistCtx, chatID, assistant); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	if err := s.store.CreateQueryLog(persistCtx, &models.QueryLog{
		UserID:       userID,
		ConnectionID: connID,
		ChatID:       chatID,
		ThreadID:     req.ThreadID,
		Status:       logStatus,
		DurationMs:   elapsed.Milliseconds(),
	}); err != nil {
		log.WithError(err).Error("writing query log")
	}

	return &apitypes.ProcessQueryResponse{
		UserMessage:      toAPIMessage(userMsg),
		AssistantMessage: toAPIMessage(assistant),
	}, nil
}

// Cancel stops the caller's in-flight question addressed by threadID. It
// reports false when nothing was running or the answer already arrived.
func (s *QueryService) Cancel(ctx context.Context, userID uuid.UUID, threadID string) (bool, error) {
	s.mu.Lock()
	entry, ok := s.running[threadID]
	s.mu.Unlock()
	if !ok || entry.owner != userID {
		return false, nil
	}
	if !entry.settle(stateCancelled) {
		return false, nil
	}
	entry.cancel()

	if _, err := s.engine.Cancel(ctx, threadID); err != nil {
		s.log.WithError(err).WithField("thread_id", threadID).Warn("upstream cancel failed")
	}
	return true, nil
}

// InFlight reports how many questions are being answered.
func (s *QueryService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *QueryService) register(threadID string, owner uuid.UUID, cancel context.CancelFunc) (*inflight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.running[threadID]; exists {
		return nil, ErrDuplicateThread
	}
	entry := &inflight{owner: owner, cancel: cancel}
	s.running[threadID] = entry
	return entry, nil
}

func (s *QueryService) unregister(threadID string) {
	s.mu.Lock()
	delete(s.running, threadID)
	s.mu.Unlock()
}

func (s *QueryService) history(ctx context.Context, chatID uuid.UUID) ([]aiclient.Turn, error) {
	msgs, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	var turns []aiclient.Turn
	for _, m := range msgs {
		if m.IsError || wasCancelled(m.Metadata) {
			continue
		}
		turns = append(turns, aiclient.Turn{Role: m.Type, Content: m.Content})
	}
	if len(turns) > historyTurns {
		turns = turns[len(turns)-historyTurns:]
	}
	return turns, nil
}

func wasCancelled(raw datatypes.JSON) bool {
	if len(raw) == 0 {
		return false
	}
	var meta apitypes.QueryMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return false
	}
	return meta.Cancelled
}

func autoTitle(question string) string {
	question = strings.Join(strings.Fields(question), " ")
	if utf8.RuneCountInString(question) <= autoTitleLength {
		return question
	}
	r := []rune(question)
	return strings.TrimSpace(string(r[:autoTitleLength-1])) + "…"
}
