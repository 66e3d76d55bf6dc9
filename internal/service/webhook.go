package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/events"
	"github.com/efreitasn/tokenexchange/internal/store"
)

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	Account common.Address
	URL     string
	Events  []string
}

// WebhookService handles webhook CRUD and event dispatch. It is an event
// sink: each published event is posted to the subscriptions matching its
// kind and trader.
type WebhookService struct {
	store  *store.WebhookStore
	client *http.Client
	logger *slog.Logger
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	webhookTimeout time.Duration,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		store: webhookStore,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		logger: logger,
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	// Validate URL.
	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	// Validate events.
	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[domain.EventKind]bool, len(req.Events))
	deduped := make([]domain.EventKind, 0, len(req.Events))
	for _, event := range req.Events {
		kind := domain.EventKind(event)
		if !domain.ValidEventKind(kind) {
			return nil, false, &domain.ValidationError{
				Message: fmt.Sprintf("Unknown event type: %s", event),
			}
		}
		if !seen[kind] {
			seen[kind] = true
			deduped = append(deduped, kind)
		}
	}

	// Upsert each (account, event) pair.
	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(deduped))

	for _, kind := range deduped {
		w := &domain.Webhook{
			WebhookID: uuid.New().String(),
			Account:   req.Account,
			Event:     kind,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		stored, created := s.store.Upsert(w)
		if created {
			anyCreated = true
		}
		webhooks = append(webhooks, stored)
	}

	return webhooks, anyCreated, nil
}

// List returns all webhook subscriptions of account.
func (s *WebhookService) List(account common.Address) []*domain.Webhook {
	return s.store.ListByAccount(account)
}

// Delete removes one of account's webhook subscriptions. Subscriptions of
// other accounts are reported as not found.
func (s *WebhookService) Delete(account common.Address, webhookID string) error {
	w, err := s.store.Get(webhookID)
	if err != nil {
		return err
	}
	if w.Account != account {
		return domain.ErrWebhookNotFound
	}
	return s.store.Delete(webhookID)
}

// webhookPayload is the JSON body posted to subscribers.
type webhookPayload struct {
	Event     string        `json:"event"`
	Timestamp string        `json:"timestamp"`
	Data      events.Record `json:"data"`
}

// Deliver implements events.Sink. Events carrying a trader go to that
// account's subscription; events without one go to every subscriber of
// the kind. Delivery is fire-and-forget.
func (s *WebhookService) Deliver(_ context.Context, e domain.Event) error {
	var targets []domain.Webhook
	for _, w := range s.store.ListByEvent(e.Kind) {
		if e.Trader == (common.Address{}) || w.Account == e.Trader {
			targets = append(targets, w)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	payload := webhookPayload{
		Event:     string(e.Kind),
		Timestamp: e.Time.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      events.NewRecord(e),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for _, wh := range targets {
		go s.deliver(wh, string(e.Kind), body)
	}
	return nil
}

// deliver sends the webhook payload via HTTP POST with the required headers.
// Failures are logged and not retried.
func (s *WebhookService) deliver(wh domain.Webhook, eventType string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("webhook delivery failed",
			slog.String("webhook_id", wh.WebhookID),
			slog.String("error", err.Error()),
		)
		return
	}
	resp.Body.Close()
}
