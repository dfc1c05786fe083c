package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"capeline/internal/engine"
)

func TestProgressStreamFollowsTransition(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v0/saves/default/progress/stream"
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatalf("expected unauthenticated dial to fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on dial, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+srv.Token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var first engine.Progress
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Phase != engine.PhaseIdle {
		t.Fatalf("expected idle snapshot, got %s", first.Phase)
	}

	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/saves/default/day/advance", nil, srv.auth())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance: %d %s", resp.StatusCode, string(body))
	}

	sawProcessing := false
	for {
		var p engine.Progress
		if err := conn.ReadJSON(&p); err != nil {
			t.Fatalf("read progress: %v", err)
		}
		if p.Phase == engine.PhaseProcessing {
			sawProcessing = true
		}
		if p.Phase == engine.PhaseReportReady {
			if p.Report == nil || p.Report.Day != 1 {
				t.Fatalf("expected day 1 report in final snapshot, got %+v", p.Report)
			}
			break
		}
	}
	if !sawProcessing {
		t.Fatalf("expected at least one processing snapshot")
	}
}
