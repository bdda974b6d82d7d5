// Package aiclient talks to the external natural-language-to-SQL service.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrServiceUnavailable = errors.New("ai service unavailable")

// ConnectionInfo is the decrypted target the service should query.
type ConnectionInfo struct {
	Engine   string `json:"engine"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode,omitempty"`
}

// Turn is one prior exchange sent as context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type QueryRequest struct {
	ThreadID   string         `json:"threadId"`
	ChatID     string         `json:"chatId"`
	Question   string         `json:"question"`
	Connection ConnectionInfo `json:"connection"`
	History    []Turn         `json:"history,omitempty"`
}

type QueryResponse struct {
	Answer     string `json:"answer"`
	SQL        string `json:"sql"`
	RowCount   int    `json:"rowCount"`
	DurationMs int64  `json:"durationMs"`
}

// ServiceError is a non-2xx answer carrying the service's own message.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("ai service returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     logrus.WithField("component", "AIClient"),
	}
}

// Query sends one question. Cancelling ctx aborts the HTTP call.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var out QueryResponse
	if err := c.post(ctx, "/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel asks the service to stop work for threadID. Best effort.
func (c *Client) Cancel(ctx context.Context, threadID string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.post(ctx, "/cancel/"+url.PathEscape(threadID), struct{}{}, &out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warnf("POST %s failed", path)
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading ai service response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(raw)
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &ServiceError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding ai service response: %w", err)
	}
	return nil
}
