package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"capeline/internal/config"
	"capeline/internal/db"
	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/gateway"
	"capeline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Token  string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.Token}
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, gw gateway.Service) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), gw)
	e.Dice = engine.NewDice(11)
	if _, err := e.NewGame(context.Background(), "default", domain.NewGameOptions{}, false); err != nil {
		t.Fatalf("new game: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret, DevLogin: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	token, err := SignToken(testSecret, "tester", 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Token:  token,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestHealthIsOpenAndAPIRequiresToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "tester" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "dana"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "dana" {
		t.Fatalf("expected dana, got %q", me.ActorID)
	}
}

func TestSaveLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves", map[string]any{
		"slot":       "second",
		"super_name": "Nightjar",
	}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create save status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves", map[string]any{"slot": "second"}, srv.auth())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate slot, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "save_exists" {
		t.Fatalf("expected save_exists, got %q", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list saves status %d: %s", res.StatusCode, string(data))
	}
	var saves []domain.SaveSummary
	if err := json.Unmarshal(data, &saves); err != nil {
		t.Fatalf("unmarshal saves: %v", err)
	}
	if len(saves) != 2 || saves[0].Slot != "default" || saves[1].Slot != "second" {
		t.Fatalf("unexpected saves %+v", saves)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves/second", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get save status %d: %s", res.StatusCode, string(data))
	}
	var save domain.SaveFile
	if err := json.Unmarshal(data, &save); err != nil {
		t.Fatalf("unmarshal save: %v", err)
	}
	if save.Player.SuperName != "Nightjar" || save.GameState.Day != 0 {
		t.Fatalf("unexpected save %+v", save.Player)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves/second/export", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status %d: %s", res.StatusCode, string(data))
	}
	var exported map[string]json.RawMessage
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if _, ok := exported["player"]; !ok {
		t.Fatalf("export missing player: %s", string(data))
	}
	if _, ok := exported["gameState"]; !ok {
		t.Fatalf("export missing gameState: %s", string(data))
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v0/saves/third/import", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+srv.Token)
	importRes, err := client.Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	importRes.Body.Close()
	if importRes.StatusCode != http.StatusOK {
		t.Fatalf("import status %d", importRes.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/saves/second", nil, srv.auth())
	if res.StatusCode >= 300 {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves/second", nil, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d: %s", res.StatusCode, string(data))
	}
}

func TestTaskValidationMapsTo422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/tasks", map[string]any{
		"title":      "Rescue the cat",
		"difficulty": 0,
	}, srv.auth())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %q", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/tasks", nil, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing body, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAdvanceDayAndResolveCheck(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/tasks", map[string]any{
		"title":            "Tutor a neighbour",
		"type":             "SOCIAL",
		"requiredIdentity": "CIVILIAN",
		"difficulty":       1,
		"rewards":          map[string]any{"money": 10},
	}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.ID == "" {
		t.Fatalf("expected generated task id")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/tasks/"+task.ID+"/check", map[string]any{}, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a task not on the board, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/day/advance", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance status %d: %s", res.StatusCode, string(data))
	}
	var day DayResponse
	if err := json.Unmarshal(data, &day); err != nil {
		t.Fatalf("unmarshal day: %v", err)
	}
	if day.Report == nil || day.Report.Day != 1 {
		t.Fatalf("expected day 1 report, got %+v", day)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves/default/progress", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("progress status %d: %s", res.StatusCode, string(data))
	}
	var progress engine.Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		t.Fatalf("unmarshal progress: %v", err)
	}
	if progress.Phase != engine.PhaseReportReady {
		t.Fatalf("expected report ready, got %s", progress.Phase)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/identity", map[string]any{"identity": "SUPER"}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("identity status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/tasks/"+task.ID+"/check", map[string]any{}, srv.auth())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while masked up, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "identity_mismatch" {
		t.Fatalf("expected identity_mismatch, got %q", code)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/identity", map[string]any{"identity": "CIVILIAN"}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("identity status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/tasks/"+task.ID+"/check", map[string]any{"stat": "charisma"}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("check status %d: %s", res.StatusCode, string(data))
	}
	var resolution ResolutionResponse
	if err := json.Unmarshal(data, &resolution); err != nil {
		t.Fatalf("unmarshal resolution: %v", err)
	}
	if resolution.Check == nil || resolution.Outcome == nil {
		t.Fatalf("expected check and outcome, got %s", string(data))
	}
	if resolution.Day != 1 {
		t.Fatalf("expected day 1, got %d", resolution.Day)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves/default/reports", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reports status %d: %s", res.StatusCode, string(data))
	}
	var reports []domain.StoredReport
	if err := json.Unmarshal(data, &reports); err != nil {
		t.Fatalf("unmarshal reports: %v", err)
	}
	if len(reports) != 1 || reports[0].Day != 1 {
		t.Fatalf("unexpected reports %+v", reports)
	}
}

func TestEventsCarryActorAndPaginate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, title := range []string{"One", "Two", "Three"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/saves/default/tasks", map[string]any{
			"title":      title,
			"difficulty": 1,
		}, srv.auth())
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves/default/events?type=task.created&limit=2", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %+v", page)
	}
	for _, evt := range page.Items {
		if evt.ActorID != "tester" {
			t.Fatalf("expected actor tester, got %q", evt.ActorID)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves/default/events?type=task.created&limit=2&cursor="+page.NextCursor, nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	var next paginatedEvents
	if err := json.Unmarshal(data, &next); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(next.Items) != 1 || next.NextCursor != "" {
		t.Fatalf("expected the last event only, got %+v", next)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/saves/default/events?cursor=abc", nil, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d: %s", res.StatusCode, string(data))
	}
}

// heldGateway blocks task generation until release is closed.
type heldGateway struct {
	gateway.Disabled
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *heldGateway) GenerateTasks(context.Context, gateway.TaskRequest) ([]domain.Task, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return nil, nil
}

func TestAsyncAdvanceReportsProcessingAndRefusesOverlap(t *testing.T) {
	gw := &heldGateway{started: make(chan struct{}), release: make(chan struct{})}
	srv, cleanup := newTestServerWith(t, gw)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/saves/default"

	res, data := doJSON(t, client, http.MethodPost, base+"/automators", map[string]any{
		"name": "slow", "type": "TASK", "intervalDays": 1, "config": map[string]any{"amount": 1},
	}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create automator: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/day/advance?async=true", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("async advance: %d %s", res.StatusCode, string(data))
	}
	var started DayResponse
	if err := json.Unmarshal(data, &started); err != nil {
		t.Fatalf("decode day response: %v", err)
	}
	if started.Progress == nil || started.Progress.Phase != engine.PhaseProcessing {
		t.Fatalf("expected PROCESSING progress, got %+v", started.Progress)
	}
	<-gw.started

	res, data = doJSON(t, client, http.MethodPost, base+"/day/advance?async=true", nil, srv.auth())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for overlapping advance, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "transition_in_progress" {
		t.Fatalf("unexpected code %q", code)
	}
	close(gw.release)

	deadline := time.Now().Add(10 * time.Second)
	for {
		var p engine.Progress
		res, data = doJSON(t, client, http.MethodGet, base+"/progress", nil, srv.auth())
		if res.StatusCode != http.StatusOK {
			t.Fatalf("progress: %d %s", res.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("decode progress: %v", err)
		}
		if p.Phase == engine.PhaseReportReady {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transition did not finish, phase %s", p.Phase)
		}
		time.Sleep(20 * time.Millisecond)
	}

	res, data = doJSON(t, client, http.MethodGet, base, nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get save: %d %s", res.StatusCode, string(data))
	}
	var save domain.SaveFile
	if err := json.Unmarshal(data, &save); err != nil {
		t.Fatalf("decode save: %v", err)
	}
	if save.GameState.Day != 1 {
		t.Fatalf("expected exactly one committed day, got %d", save.GameState.Day)
	}
}
