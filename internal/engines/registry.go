// Package engines tests user-supplied database credentials against the
// engine they target.
package engines

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Credentials are the decrypted settings of a saved or draft connection.
type Credentials struct {
	Host         string
	Port         int
	DatabaseName string
	Username     string
	Password     string
	SSLMode      string
}

// TestResult is the outcome of a connection probe. A failed probe is a
// result, not an error.
type TestResult struct {
	Success bool
	Message string
	Latency time.Duration
	Version string
}

// Tester probes one database engine.
type Tester interface {
	// DefaultPort is used when the caller leaves the port empty.
	DefaultPort() int
	// Test opens a connection, runs a trivial query and closes it.
	Test(ctx context.Context, creds Credentials) (*TestResult, error)
}

// Registry holds the mapping between engine names and their Tester implementations.
type Registry struct {
	mu      sync.RWMutex
	testers map[string]Tester
	timeout time.Duration
	log     *logrus.Entry
}

// NewRegistry creates a registry whose probes are bounded by timeout.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		testers: make(map[string]Tester),
		timeout: timeout,
		log:     logrus.WithField("component", "EngineRegistry"),
	}
}

// NewDefaultRegistry registers every engine NexoSQL supports.
func NewDefaultRegistry(timeout time.Duration) *Registry {
	r := NewRegistry(timeout)
	r.Register("postgresql", NewPostgresTester())
	r.Register("mysql", NewMySQLTester())
	r.Register("mariadb", NewMySQLTester())
	r.Register("sqlite", NewSQLiteTester())
	return r
}

// Register adds a tester for engine.
func (r *Registry) Register(engine string, t Tester) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.testers[engine]; exists {
		r.log.Warnf("engine '%s' is already registered. Overwriting.", engine)
	}
	r.testers[engine] = t
}

// Get retrieves the tester for engine.
func (r *Registry) Get(engine string) (Tester, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.testers[engine]
	if !ok {
		return nil, fmt.Errorf("no tester registered for engine: %s", engine)
	}
	return t, nil
}

// Test runs the engine's probe under the registry timeout.
func (r *Registry) Test(ctx context.Context, engine string, creds Credentials) (*TestResult, error) {
	t, err := r.Get(engine)
	if err != nil {
		return nil, err
	}
	if creds.Port == 0 {
		creds.Port = t.DefaultPort()
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := t.Test(ctx, creds)
	if err != nil {
		return nil, err
	}
	res.Latency = time.Since(start)
	r.log.WithFields(logrus.Fields{"engine": engine, "success": res.Success, "latency": res.Latency}).Info("connection test finished")
	return res, nil
}

func failed(format string, args ...interface{}) *TestResult {
	return &TestResult{Success: false, Message: fmt.Sprintf(format, args...)}
}
