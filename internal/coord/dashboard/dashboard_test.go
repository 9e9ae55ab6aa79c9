package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cdswerx/cdsync/internal/coord/access"
	"github.com/cdswerx/cdsync/internal/coord/admin"
	"github.com/cdswerx/cdsync/internal/coord/compat"
	"github.com/cdswerx/cdsync/internal/coord/db"
	"github.com/cdswerx/cdsync/internal/coord/reader"
	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/coord/status"
	"github.com/cdswerx/cdsync/internal/coord/store"
	"github.com/cdswerx/cdsync/internal/coord/syncer"
)

// testClient opens a fresh connection per request so short server
// timeouts never race with pooled keep-alive connections.
var testClient = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

// setupServer starts a dashboard over a real coordinator.
func setupServer(t *testing.T) *Server {
	t.Helper()
	return setupServerWith(t, nil)
}

// setupServerWith lets configure adjust the server config and subscribe to
// the coordinator before the server starts.
func setupServerWith(t *testing.T, configure func(cfg *Config, coord *syncer.Coordinator)) *Server {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "options.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	reg, err := schema.NewRegistry(
		schema.Descriptor{ID: "cdswerx-theme", Kind: schema.KindTheme, Native: true, Source: reader.Constant("1.0.0")},
	)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	if err := compat.SetActiveTheme(context.Background(), database, "cdswerx-theme"); err != nil {
		t.Fatalf("SetActiveTheme() failed: %v", err)
	}

	discard := log.New(io.Discard, "", 0)
	st := store.New(database, store.DefaultHistoryCap)
	coord, err := syncer.New(syncer.Config{
		Registry: reg,
		Store:    st,
		Options:  database,
		AutoSync: true,
		Logger:   discard,
	})
	if err != nil {
		t.Fatalf("syncer.New() failed: %v", err)
	}

	policy := access.NewRolePolicy(
		map[string]string{"admin": "administrator", "editor": "editor"},
		map[string][]string{"administrator": {access.Wildcard}, "editor": {access.ResourceStatus}},
	)
	reporter := status.New(coord, st, database)
	svc, err := admin.New(admin.Config{
		Coordinator: coord,
		Reporter:    reporter,
		History:     st,
		Policy:      policy,
		Logger:      discard,
	})
	if err != nil {
		t.Fatalf("admin.New() failed: %v", err)
	}

	cfg := &Config{Host: "127.0.0.1", Port: 0, Policy: policy, Logger: discard}
	if configure != nil {
		configure(cfg, coord)
	}
	server := NewServer(svc, cfg)
	coord.Subscribe(NewHandler(server, reporter, discard).OnPass)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	return server
}

func request(t *testing.T, server *Server, method, path, user string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, "http://"+server.GetAddr()+path, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}

	resp, err := testClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, body
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(nil, &Config{Port: 0, Logger: log.New(io.Discard, "", 0)})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := setupServer(t)

	resp, body := request(t, server, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health = %d", resp.StatusCode)
	}

	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}
}

func TestAPI_AccessControl(t *testing.T) {
	server := setupServer(t)

	tests := []struct {
		method string
		path   string
		user   string
		want   int
	}{
		{http.MethodGet, "/api/status", "editor", http.StatusOK},
		{http.MethodGet, "/api/status", "", http.StatusForbidden},
		{http.MethodPost, "/api/sync", "editor", http.StatusForbidden},
		{http.MethodPost, "/api/reset", "editor", http.StatusForbidden},
		{http.MethodGet, "/api/history", "editor", http.StatusForbidden},
		{http.MethodGet, "/api/history", "admin", http.StatusOK},
		{http.MethodGet, "/api/history?limit=abc", "admin", http.StatusBadRequest},
		{http.MethodGet, "/api/sync", "admin", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path+" as "+tt.user, func(t *testing.T) {
			resp, body := request(t, server, tt.method, tt.path, tt.user)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestAPI_SyncHistoryReset(t *testing.T) {
	server := setupServer(t)

	resp, body := request(t, server, http.MethodPost, "/api/sync", "admin")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/sync = %d: %s", resp.StatusCode, body)
	}
	var res admin.SyncResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("Failed to decode sync result: %v", err)
	}
	if !res.Success || len(res.Events) != 1 || res.Status.Mode != schema.ModeNative {
		t.Errorf("sync result = %+v", res)
	}

	resp, body = request(t, server, http.MethodPost, "/api/reset", "admin")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/reset = %d: %s", resp.StatusCode, body)
	}

	resp, body = request(t, server, http.MethodGet, "/api/history?limit=1", "admin")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/history = %d: %s", resp.StatusCode, body)
	}
	var entries []schema.HistoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != schema.HistorySyncReset {
		t.Errorf("history = %+v, want one sync_reset", entries)
	}
}

func TestWebSocket_PassBroadcast(t *testing.T) {
	server := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{UserHeader: []string{"editor"}},
	})
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	welcome := readMessage(t, ctx, conn)
	if welcome.Type != MessageTypeStatus {
		t.Fatalf("welcome type = %s, want %s", welcome.Type, MessageTypeStatus)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	if resp, body := request(t, server, http.MethodPost, "/api/sync", "admin"); resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/sync = %d: %s", resp.StatusCode, body)
	}

	pass := readMessage(t, ctx, conn)
	if pass.Type != MessageTypePassComplete {
		t.Fatalf("message type = %s, want %s", pass.Type, MessageTypePassComplete)
	}
	var data PassCompleteData
	if err := json.Unmarshal(pass.Data, &data); err != nil {
		t.Fatalf("Failed to decode pass data: %v", err)
	}
	if data.Trigger != syncer.TriggerManual || len(data.Events) != 1 || data.Components != 1 {
		t.Errorf("pass data = %+v", data)
	}

	st := readMessage(t, ctx, conn)
	if st.Type != MessageTypeStatus {
		t.Fatalf("message type = %s, want %s", st.Type, MessageTypeStatus)
	}
	var report status.Report
	if err := json.Unmarshal(st.Data, &report); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if report.LastSync == nil {
		t.Error("status after pass has no last sync")
	}
}

func TestWebSocket_Forbidden(t *testing.T) {
	server := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err == nil {
		t.Fatal("Dial without a user should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

// passCounter counts passes by trigger.
type passCounter struct {
	mu     sync.Mutex
	counts map[syncer.Trigger]int
}

func (p *passCounter) observe(res syncer.PassResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = make(map[syncer.Trigger]int)
	}
	p.counts[res.Trigger]++
}

func (p *passCounter) get(trigger syncer.Trigger) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[trigger]
}

func TestPageLoad_OnePassPerRequest(t *testing.T) {
	passes := &passCounter{}
	server := setupServerWith(t, func(cfg *Config, coord *syncer.Coordinator) {
		cfg.PageLoad = coord
		coord.Subscribe(passes.observe)
	})

	tests := []struct {
		method string
		path   string
		user   string
		want   int // page_load passes after the request
	}{
		{http.MethodGet, "/api/status", "editor", 1},
		{http.MethodGet, "/api/status", "editor", 2},
		{http.MethodGet, "/", "admin", 3},
		{http.MethodGet, "/api/status", "", 3},
		{http.MethodGet, "/api/history", "admin", 3},
		{http.MethodGet, "/health", "", 3},
	}

	for _, tt := range tests {
		resp, body := request(t, server, tt.method, tt.path, tt.user)
		if resp.StatusCode >= 500 {
			t.Fatalf("%s %s = %d: %s", tt.method, tt.path, resp.StatusCode, body)
		}
		if got := passes.get(syncer.TriggerPageLoad); got != tt.want {
			t.Errorf("after %s %s as %q: page_load passes = %d, want %d", tt.method, tt.path, tt.user, got, tt.want)
		}
	}
	if n := passes.get(syncer.TriggerManual); n != 0 {
		t.Errorf("manual passes = %d, want 0", n)
	}
}

func TestPageLoad_StatusReflectsPass(t *testing.T) {
	server := setupServerWith(t, func(cfg *Config, coord *syncer.Coordinator) {
		cfg.PageLoad = coord
	})

	resp, body := request(t, server, http.MethodGet, "/api/status", "editor")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/status = %d: %s", resp.StatusCode, body)
	}
	var report status.Report
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if report.LastSync == nil {
		t.Error("status served after a page load pass has no last sync")
	}
}

func TestPageLoad_Disabled(t *testing.T) {
	passes := &passCounter{}
	server := setupServerWith(t, func(cfg *Config, coord *syncer.Coordinator) {
		coord.Subscribe(passes.observe)
	})

	request(t, server, http.MethodGet, "/api/status", "editor")
	request(t, server, http.MethodGet, "/", "admin")
	if n := passes.get(syncer.TriggerPageLoad); n != 0 {
		t.Errorf("page_load passes = %d without a page loader", n)
	}
}

func TestWebSocket_OutlivesHTTPTimeouts(t *testing.T) {
	server := setupServerWith(t, func(cfg *Config, coord *syncer.Coordinator) {
		cfg.ReadTimeout = 200 * time.Millisecond
		cfg.WriteTimeout = 200 * time.Millisecond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{UserHeader: []string{"editor"}},
	})
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeStatus {
		t.Fatalf("welcome type = %s", msg.Type)
	}

	// Well past both timeouts.
	time.Sleep(600 * time.Millisecond)

	if resp, body := request(t, server, http.MethodPost, "/api/sync", "admin"); resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/sync = %d: %s", resp.StatusCode, body)
	}
	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypePassComplete {
		t.Errorf("message type = %s, want %s", msg.Type, MessageTypePassComplete)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("ClientCount() = %d, want 1", count)
	}
}
