// Package apiclient is the typed Go client for the NexoSQL REST API. Every
// call returns a result.Result; errors never escape as plain Go errors.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/apperr"
	"nexosql-backend/pkg/result"
)

// TokenSource supplies the access token sent as a bearer header. An empty
// token sends the request unauthenticated.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) string

func (f TokenFunc) AccessToken(ctx context.Context) string { return f(ctx) }

// Empty is the payload of calls whose response body carries nothing useful.
type Empty struct{}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets the source of the bearer token.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// New builds a client for the API served at baseURL (without the /api suffix).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 3 * time.Minute},
		log:     logrus.WithField("component", "APIClient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource replaces the token source after construction.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// do sends one request and decodes the envelope into T. No retries.
func do[T any](ctx context.Context, c *Client, method, path string, body interface{}) result.Result[T] {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return result.Err[T](apperr.Failure{Kind: apperr.KindAPI, Message: apperr.GenericMessage})
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return result.Err[T](apperr.Failure{Kind: apperr.KindAPI, Message: apperr.GenericMessage})
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.AccessToken(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return result.Err[T](apperr.Cancelled())
		}
		c.log.WithError(err).WithField("path", path).Debug("request failed")
		return result.Err[T](apperr.Network())
	}
	defer res.Body.Close()

	var env apitypes.Envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		if ctx.Err() != nil {
			return result.Err[T](apperr.Cancelled())
		}
		c.log.WithError(err).WithFields(logrus.Fields{"path": path, "status": res.StatusCode}).Debug("undecodable response")
		return result.Err[T](apperr.FromAPI("", ""))
	}
	if env.Error != nil || res.StatusCode >= http.StatusBadRequest {
		raw := ""
		if env.Error != nil {
			raw = *env.Error
		}
		return result.Err[T](apperr.FromAPI(env.Code, raw))
	}

	var out T
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &out); err != nil {
			c.log.WithError(err).WithField("path", path).Debug("undecodable data")
			return result.Err[T](apperr.FromAPI("", ""))
		}
	}
	return result.Ok(out)
}

func escape(id string) string {
	return url.PathEscape(id)
}

func query(path string, values url.Values) string {
	if len(values) == 0 {
		return path
	}
	return fmt.Sprintf("%s?%s", path, values.Encode())
}
