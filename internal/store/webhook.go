package store

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// WebhookStore is a thread-safe in-memory store for webhooks.
// Primary index: webhook_id → webhook.
// Secondary index: account → event → webhook.
type WebhookStore struct {
	mu        sync.RWMutex
	webhooks  map[string]*domain.Webhook
	byAccount map[common.Address]map[domain.EventKind]*domain.Webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks:  make(map[string]*domain.Webhook),
		byAccount: make(map[common.Address]map[domain.EventKind]*domain.Webhook),
	}
}

// Upsert inserts or updates a subscription keyed by (account, event).
// An existing subscription keeps its webhook_id and has its URL and
// UpdatedAt replaced when the URL changed. Returns the stored webhook
// and true if a new subscription was created.
func (s *WebhookStore) Upsert(w *domain.Webhook) (*domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if events, ok := s.byAccount[w.Account]; ok {
		if existing, ok := events[w.Event]; ok {
			if existing.URL != w.URL {
				existing.URL = w.URL
				existing.UpdatedAt = w.UpdatedAt
			}
			return existing, false
		}
	}

	s.webhooks[w.WebhookID] = w
	if s.byAccount[w.Account] == nil {
		s.byAccount[w.Account] = make(map[domain.EventKind]*domain.Webhook)
	}
	s.byAccount[w.Account][w.Event] = w
	return w, true
}

// Get retrieves a webhook by ID. It returns
// domain.ErrWebhookNotFound if the webhook does not exist.
func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return w, nil
}

// ListByAccount returns all webhooks for an account ordered by event kind.
func (s *WebhookStore) ListByAccount(account common.Address) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byAccount[account]
	result := make([]*domain.Webhook, 0, len(events))
	for _, w := range events {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Event < result[j].Event })
	return result
}

// Delete removes a webhook by ID from both indexes. It returns
// domain.ErrWebhookNotFound if the webhook does not exist.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.webhooks, id)

	if events, ok := s.byAccount[w.Account]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byAccount, w.Account)
		}
	}
	return nil
}

// ListByEvent returns copies of every subscription to event, ordered by
// account.
func (s *WebhookStore) ListByEvent(event domain.EventKind) []domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Webhook, 0)
	for _, events := range s.byAccount {
		if w, ok := events[event]; ok {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Account.Cmp(result[j].Account) < 0 })
	return result
}
