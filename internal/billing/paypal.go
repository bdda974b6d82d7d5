// Package billing is the PayPal subscriptions client.
package billing

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
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"nexosql-backend/internal/config"
	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/models"
)

var (
	ErrPlanNotConfigured = errors.New("no provider plan configured for tier")
	ErrProvider          = errors.New("payment provider error")
)

// ProviderSubscription is the provider's view of a subscription, with its
// status already mapped onto local statuses.
type ProviderSubscription struct {
	ID              string
	Status          string
	RawStatus       string
	ApprovalURL     string
	StartTime       *time.Time
	NextBillingTime *time.Time
}

// Provider is what the subscription service needs from a payment provider.
type Provider interface {
	CreateSubscription(ctx context.Context, tier, email string) (*ProviderSubscription, error)
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, id, reason string) error
	ReviseSubscription(ctx context.Context, id, tier string) (*ProviderSubscription, error)
}

type PayPal struct {
	cfg  config.PayPalConfig
	http *http.Client
	log  *logrus.Entry
}

// NewPayPal builds a client whose HTTP transport fetches and refreshes
// bearer tokens with the client-credentials grant.
func NewPayPal(ctx context.Context, cfg config.PayPalConfig) *PayPal {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	client := cc.Client(ctx)
	client.Timeout = 30 * time.Second
	return &PayPal{cfg: cfg, http: client, log: logging.Component("PayPal")}
}

// MapStatus translates a PayPal subscription status.
func MapStatus(raw string) string {
	switch raw {
	case "ACTIVE":
		return models.SubscriptionActive
	case "APPROVAL_PENDING", "APPROVED":
		return models.SubscriptionPending
	case "SUSPENDED":
		return models.SubscriptionSuspended
	case "CANCELLED":
		return models.SubscriptionCancelled
	case "EXPIRED":
		return models.SubscriptionExpired
	}
	return models.SubscriptionPending
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type subscriptionBody struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	StartTime   string `json:"start_time"`
	BillingInfo struct {
		NextBillingTime string `json:"next_billing_time"`
	} `json:"billing_info"`
	Links []link `json:"links"`
}

func (b *subscriptionBody) toProvider() *ProviderSubscription {
	ps := &ProviderSubscription{ID: b.ID, RawStatus: b.Status, Status: MapStatus(b.Status)}
	ps.StartTime = parseTime(b.StartTime)
	ps.NextBillingTime = parseTime(b.BillingInfo.NextBillingTime)
	for _, l := range b.Links {
		if l.Rel == "approve" {
			ps.ApprovalURL = l.Href
		}
	}
	return ps
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func (p *PayPal) planID(tier string) (string, error) {
	id := p.cfg.PlanIDs[tier]
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrPlanNotConfigured, tier)
	}
	return id, nil
}

func (p *PayPal) applicationContext() map[string]interface{} {
	return map[string]interface{}{
		"brand_name":  "NexoSQL",
		"user_action": "SUBSCRIBE_NOW",
		"return_url":  p.cfg.ReturnURL,
		"cancel_url":  p.cfg.CancelURL,
	}
}

func (p *PayPal) CreateSubscription(ctx context.Context, tier, email string) (*ProviderSubscription, error) {
	planID, err := p.planID(tier)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"plan_id":             planID,
		"subscriber":          map[string]string{"email_address": email},
		"application_context": p.applicationContext(),
	}
	var out subscriptionBody
	if err := p.do(ctx, http.MethodPost, "/v1/billing/subscriptions", body, &out); err != nil {
		return nil, err
	}
	p.log.WithField("provider_id", out.ID).Infof("created %s subscription", tier)
	return out.toProvider(), nil
}

func (p *PayPal) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	var out subscriptionBody
	if err := p.do(ctx, http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.toProvider(), nil
}

func (p *PayPal) CancelSubscription(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "Cancelada por el usuario"
	}
	return p.do(ctx, http.MethodPost, "/v1/billing/subscriptions/"+url.PathEscape(id)+"/cancel",
		map[string]string{"reason": reason}, nil)
}

func (p *PayPal) ReviseSubscription(ctx context.Context, id, tier string) (*ProviderSubscription, error) {
	planID, err := p.planID(tier)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"plan_id":             planID,
		"application_context": p.applicationContext(),
	}
	var out struct {
		PlanID string `json:"plan_id"`
		Links  []link `json:"links"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/billing/subscriptions/"+url.PathEscape(id)+"/revise", body, &out); err != nil {
		return nil, err
	}
	ps := &ProviderSubscription{ID: id, Status: models.SubscriptionActive}
	for _, l := range out.Links {
		if l.Rel == "approve" {
			ps.ApprovalURL = l.Href
		}
	}
	return ps, nil
}

func (p *PayPal) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		p.log.WithError(err).Errorf("%s %s failed", method, path)
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.log.Warnf("%s %s returned %d: %s", method, path, resp.StatusCode, raw)
		return fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrProvider, err)
	}
	return nil
}
