package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"capeline/internal/config"
	"capeline/internal/domain"
	"capeline/internal/engine"
)

const (
	webhookInterval = 2 * time.Second
	webhookTimeout  = 5 * time.Second
	webhookBatch    = 100
)

// hookTarget is one enabled webhook with its delivery cursor. A nil cursor means the hook
// has not polled yet and starts at the head of the log.
type hookTarget struct {
	url    string
	secret string
	only   map[string]bool
	client *http.Client
	cursor *int64
}

func (h *hookTarget) wants(evtType string) bool {
	return len(h.only) == 0 || h.only[evtType]
}

// eventSource is the slice of repo.Repo the dispatcher reads.
type eventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64, slot string) ([]domain.Event, error)
	LatestEventID(ctx context.Context, slot string) (int64, error)
}

// webhookDispatcher posts committed game events to the configured hooks. It is driven by
// a single goroutine.
type webhookDispatcher struct {
	repo  eventSource
	hooks []*hookTarget
}

func newWebhookDispatcher(e engine.Engine) *webhookDispatcher {
	if e.Config == nil {
		return nil
	}
	var hooks []*hookTarget
	for _, cfg := range e.Config.Server.Webhooks {
		if h := newHookTarget(cfg); h != nil {
			hooks = append(hooks, h)
		}
	}
	if len(hooks) == 0 {
		return nil
	}
	return &webhookDispatcher{repo: e.Repo, hooks: hooks}
}

func newHookTarget(cfg config.WebhookConfig) *hookTarget {
	if (cfg.Enabled != nil && !*cfg.Enabled) || strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	timeout := webhookTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	h := &hookTarget{
		url:    cfg.URL,
		secret: strings.TrimSpace(cfg.Secret),
		client: &http.Client{Timeout: timeout},
	}
	for _, evt := range cfg.Events {
		if evt = strings.TrimSpace(evt); evt != "" {
			if h.only == nil {
				h.only = map[string]bool{}
			}
			h.only[evt] = true
		}
	}
	return h
}

// StartWebhooks runs the dispatcher until ctx is done. It is a no-op without hooks.
func StartWebhooks(ctx context.Context, e engine.Engine) {
	d := newWebhookDispatcher(e)
	if d == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(webhookInterval)
		defer ticker.Stop()
		for {
			d.dispatchAll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for _, h := range d.hooks {
		if err := d.deliver(ctx, h); err != nil {
			log.Printf("webhook %s: %v", h.url, err)
		}
	}
}

// deliver posts the hook's backlog in order and stops at the first failed post, so the
// next tick retries from that event.
func (d *webhookDispatcher) deliver(ctx context.Context, h *hookTarget) error {
	if h.cursor == nil {
		head, err := d.repo.LatestEventID(ctx, "")
		if err != nil {
			return fmt.Errorf("init cursor: %w", err)
		}
		h.cursor = &head
	}
	batch, err := d.repo.EventsAfter(ctx, webhookBatch, *h.cursor, "")
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	for _, evt := range batch {
		if h.wants(evt.Type) {
			if err := h.post(ctx, evt); err != nil {
				return fmt.Errorf("event %d: %w", evt.ID, err)
			}
		}
		*h.cursor = evt.ID
	}
	return nil
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Slot       string          `json:"slot,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (h *hookTarget) post(ctx context.Context, evt domain.Event) error {
	payload := json.RawMessage(`{}`)
	if evt.Payload != "" {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		Slot:       evt.Slot,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Capeline-Event", evt.Type)
	req.Header.Set("X-Capeline-Delivery", strconv.FormatInt(evt.ID, 10))
	if evt.Slot != "" {
		req.Header.Set("X-Capeline-Slot", evt.Slot)
	}
	if h.secret != "" {
		req.Header.Set("X-Capeline-Signature", signPayload(h.secret, data))
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// signPayload is the X-Capeline-Signature value: hex HMAC-SHA256 of the body keyed by
// the hook secret.
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
