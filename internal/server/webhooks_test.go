package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"capeline/internal/config"
	"capeline/internal/db"
	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/migrate"
)

type delivery struct {
	header http.Header
	body   []byte
}

func TestWebhookDeliversSignedFilteredEvents(t *testing.T) {
	var (
		mu  sync.Mutex
		got []delivery
	)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, delivery{header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Server.Webhooks = []config.WebhookConfig{{
		URL:    receiver.URL,
		Events: []string{"task.created"},
		Secret: "hook-secret",
	}}
	e := engine.New(conn, cfg, nil)
	ctx := engine.WithActor(context.Background(), "hooker")
	if _, err := e.NewGame(ctx, "default", domain.NewGameOptions{}, false); err != nil {
		t.Fatalf("new game: %v", err)
	}

	d := newWebhookDispatcher(e)
	if d == nil {
		t.Fatalf("expected dispatcher")
	}
	// The first pass pins the cursor at the head so save.created is never replayed.
	d.dispatchAll(ctx)

	task, err := e.AddTask(ctx, "default", domain.Task{Title: "Patrol", Type: "MISSION", Difficulty: 2})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if _, err := e.SwitchIdentity(ctx, "default", domain.IdentitySuper); err != nil {
		t.Fatalf("switch identity: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	h := got[0].header
	if h.Get("X-Capeline-Event") != "task.created" {
		t.Fatalf("unexpected event header %q", h.Get("X-Capeline-Event"))
	}
	if h.Get("X-Capeline-Slot") != "default" {
		t.Fatalf("unexpected slot header %q", h.Get("X-Capeline-Slot"))
	}
	if h.Get("X-Capeline-Signature") != signPayload("hook-secret", got[0].body) {
		t.Fatalf("signature mismatch")
	}
	var evt webhookEvent
	if err := json.Unmarshal(got[0].body, &evt); err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	if evt.EntityID != task.ID || evt.ActorID != "hooker" {
		t.Fatalf("unexpected delivery %+v", evt)
	}

	// Nothing new: the cursor moved past the filtered identity event.
	d.dispatchAll(ctx)
	if len(got) != 1 {
		t.Fatalf("expected no redelivery, got %d", len(got))
	}
}

func TestWebhookRetriesFromCursorAfterFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		fail  = true
		count int
	)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		count++
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Server.Webhooks = []config.WebhookConfig{{URL: receiver.URL}}
	e := engine.New(conn, cfg, nil)
	ctx := context.Background()
	d := newWebhookDispatcher(e)
	d.dispatchAll(ctx)

	if _, err := e.NewGame(ctx, "default", domain.NewGameOptions{}, false); err != nil {
		t.Fatalf("new game: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	fail = false
	mu.Unlock()
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected the failed event to be delivered once on retry, got %d", count)
	}
}

func TestWebhookDispatcherIgnoresDisabledHooks(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Server.Webhooks = []config.WebhookConfig{
		{URL: "http://127.0.0.1:1/hook", Enabled: &off},
		{URL: "  "},
	}
	if d := newWebhookDispatcher(engine.Engine{Config: cfg}); d != nil {
		t.Fatalf("expected no dispatcher, got %d hooks", len(d.hooks))
	}
}
