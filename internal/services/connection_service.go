package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nexosql-backend/internal/crypto"
	"nexosql-backend/internal/engines"
	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/models"
	"nexosql-backend/internal/plans"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
)

// ConnectionTester probes credentials for an engine.
type ConnectionTester interface {
	Test(ctx context.Context, engine string, creds engines.Credentials) (*engines.TestResult, error)
}

type ConnectionService struct {
	store  store.Store
	sealer *crypto.Sealer
	tester ConnectionTester
	now    func() time.Time
	log    *logrus.Entry
}

func NewConnectionService(s store.Store, sealer *crypto.Sealer, tester ConnectionTester) *ConnectionService {
	return &ConnectionService{
		store:  s,
		sealer: sealer,
		tester: tester,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logging.Component("ConnectionService"),
	}
}

func validateConnection(req apitypes.ConnectionRequest) error {
	if missing := req.MissingFields(); len(missing) > 0 {
		return validationErr("missing fields: %s", strings.Join(missing, ", "))
	}
	if !apitypes.ValidEngine(req.Engine) {
		return fmt.Errorf("%w: %s", ErrUnsupportedEngine, req.Engine)
	}
	return nil
}

func (s *ConnectionService) List(ctx context.Context, userID uuid.UUID) ([]apitypes.Connection, error) {
	conns, err := s.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	out := make([]apitypes.Connection, 0, len(conns))
	for i := range conns {
		out = append(out, toAPIConnection(&conns[i]))
	}
	return out, nil
}

func (s *ConnectionService) Get(ctx context.Context, id, userID uuid.UUID) (*apitypes.Connection, error) {
	conn, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	out := toAPIConnection(conn)
	return &out, nil
}

// Create saves a connection if the caller's plan still has room for one.
func (s *ConnectionService) Create(ctx context.Context, userID uuid.UUID, req apitypes.ConnectionRequest) (*apitypes.Connection, error) {
	if err := validateConnection(req); err != nil {
		return nil, err
	}

	ent, err := currentEntitlement(ctx, s.store, userID, s.now())
	if err != nil {
		return nil, err
	}
	used, err := s.store.CountConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count connections: %w", err)
	}
	if usage := plans.NewUsage(int(used), ent.plan.ConnectionLimit); !plans.CanConsume(usage) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "limit": usage.Limit}).Info("connection limit reached")
		return nil, &PlanError{Code: apperr.CodeConnectionLimitReached, Detail: fmt.Sprintf("%d/%d", usage.Used, usage.Limit)}
	}

	sealed, err := s.sealer.Seal(req.Password)
	if err != nil {
		return nil, fmt.Errorf("sealing password: %w", err)
	}
	conn := &models.Connection{
		UserID:            userID,
		Name:              strings.TrimSpace(req.Name),
		Engine:            req.Engine,
		Host:              strings.TrimSpace(req.Host),
		Port:              req.Port,
		DatabaseName:      strings.TrimSpace(req.DatabaseName),
		Username:          strings.TrimSpace(req.Username),
		EncryptedPassword: sealed,
		SSLMode:           req.SSLMode,
		Status:            models.ConnectionStatusUntested,
	}
	if err := s.store.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "connection_id": conn.ID, "engine": conn.Engine}).Info("connection created")
	out := toAPIConnection(conn)
	return &out, nil
}

// Update replaces the connection settings. An empty password keeps the stored one.
func (s *ConnectionService) Update(ctx context.Context, id, userID uuid.UUID, req apitypes.ConnectionRequest) (*apitypes.Connection, error) {
	if err := validateConnection(req); err != nil {
		return nil, err
	}
	conn, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	conn.Name = strings.TrimSpace(req.Name)
	conn.Engine = req.Engine
	conn.Host = strings.TrimSpace(req.Host)
	conn.Port = req.Port
	conn.DatabaseName = strings.TrimSpace(req.DatabaseName)
	conn.Username = strings.TrimSpace(req.Username)
	conn.SSLMode = req.SSLMode
	conn.Status = models.ConnectionStatusUntested
	if req.Password != "" {
		sealed, err := s.sealer.Seal(req.Password)
		if err != nil {
			return nil, fmt.Errorf("sealing password: %w", err)
		}
		conn.EncryptedPassword = sealed
	}
	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to update connection: %w", err)
	}
	out := toAPIConnection(conn)
	return &out, nil
}

// Delete removes the connection with its chats and messages.
func (s *ConnectionService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.store.DeleteConnection(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConnectionNotFound
		}
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "connection_id": id}).Info("connection deleted")
	return nil
}

// Test probes a saved connection and records the outcome on it.
func (s *ConnectionService) Test(ctx context.Context, id, userID uuid.UUID) (*apitypes.ConnectionTestResult, error) {
	conn, creds, err := s.Credentials(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	res, err := s.probe(ctx, conn.Engine, creds)
	if err != nil {
		return nil, err
	}
	status := models.ConnectionStatusFailed
	if res.Success {
		status = models.ConnectionStatusOK
	}
	if err := s.store.UpdateConnectionStatus(ctx, id, userID, status, s.now()); err != nil {
		s.log.WithError(err).Warn("recording connection test result")
	}
	return res, nil
}

// TestDraft probes credentials that have not been saved.
func (s *ConnectionService) TestDraft(ctx context.Context, req apitypes.ConnectionRequest) (*apitypes.ConnectionTestResult, error) {
	if err := validateConnection(req); err != nil {
		return nil, err
	}
	return s.probe(ctx, req.Engine, engines.Credentials{
		Host:         req.Host,
		Port:         req.Port,
		DatabaseName: req.DatabaseName,
		Username:     req.Username,
		Password:     req.Password,
		SSLMode:      req.SSLMode,
	})
}

// Credentials loads a connection together with its decrypted settings.
func (s *ConnectionService) Credentials(ctx context.Context, id, userID uuid.UUID) (*models.Connection, engines.Credentials, error) {
	conn, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, engines.Credentials{}, err
	}
	password, err := s.sealer.Open(conn.EncryptedPassword)
	if err != nil {
		s.log.WithError(err).WithField("connection_id", id).Error("opening sealed password")
		return nil, engines.Credentials{}, fmt.Errorf("decrypting connection password: %w", err)
	}
	return conn, engines.Credentials{
		Host:         conn.Host,
		Port:         conn.Port,
		DatabaseName: conn.DatabaseName,
		Username:     conn.Username,
		Password:     password,
		SSLMode:      conn.SSLMode,
	}, nil
}

func (s *ConnectionService) probe(ctx context.Context, engine string, creds engines.Credentials) (*apitypes.ConnectionTestResult, error) {
	res, err := s.tester.Test(ctx, engine, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEngine, err)
	}
	return &apitypes.ConnectionTestResult{
		Success:   res.Success,
		Message:   res.Message,
		LatencyMs: res.Latency.Milliseconds(),
		Version:   res.Version,
	}, nil
}

func (s *ConnectionService) load(ctx context.Context, id, userID uuid.UUID) (*models.Connection, error) {
	conn, err := s.store.GetConnection(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}
