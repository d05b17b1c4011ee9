package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/castlogic-core/internal/auth"
	"github.com/nerrad567/castlogic-core/internal/events"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/config"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/logging"
	"github.com/nerrad567/castlogic-core/internal/phrase"
	"github.com/nerrad567/castlogic-core/internal/queue"
	"github.com/nerrad567/castlogic-core/internal/receiver"
	"github.com/nerrad567/castlogic-core/internal/status"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

const (
	controllerKey = "controller-key"
	viewerKey     = "viewer-key"
)

type sentCommand struct {
	deviceID string
	cmd      supervisor.Command
}

// fakeReceivers is an in-memory receiver registry.
type fakeReceivers struct {
	mu       sync.Mutex
	devices  []receiver.Device
	statuses map[string]status.ReceiverStatus
	stats    []supervisor.Stats
	sent     []sentCommand
	sendErr  error
}

func (f *fakeReceivers) List() []receiver.Device {
	return append([]receiver.Device(nil), f.devices...)
}

func (f *fakeReceivers) Get(_ context.Context, id string) (receiver.Device, error) {
	for _, d := range f.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return receiver.Device{}, fmt.Errorf("%w: %s", receiver.ErrDeviceNotFound, id)
}

func (f *fakeReceivers) FindByName(name string) []receiver.Device {
	var out []receiver.Device
	for _, d := range f.devices {
		if strings.EqualFold(d.Name, strings.TrimSpace(name)) {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeReceivers) GetStatus(id string) (status.ReceiverStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[id]
	return st, ok
}

func (f *fakeReceivers) Stats() []supervisor.Stats {
	return append([]supervisor.Stats(nil), f.stats...)
}

func (f *fakeReceivers) Send(_ context.Context, id string, cmd supervisor.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentCommand{id, cmd})
	return nil
}

func (f *fakeReceivers) lastSent(t *testing.T) sentCommand {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no command sent")
	}
	return f.sent[len(f.sent)-1]
}

func testCatalog() phrase.Catalog {
	day := func(n int) time.Time { return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC) }
	items := []phrase.CatalogItem{
		{ID: "m1", Title: "Blue Train", Path: "/music/jazz/coltrane", MediaType: "audio", AddedAt: day(1)},
		{ID: "m2", Title: "Giant Steps", Path: "/music/jazz/coltrane", MediaType: "audio", AddedAt: day(2)},
		{ID: "m3", Title: "Kind of Blue", Path: "/music/jazz/davis", MediaType: "audio", AddedAt: day(3)},
	}
	return phrase.CatalogFunc(func(context.Context, phrase.Query) ([]phrase.CatalogItem, error) {
		return append([]phrase.CatalogItem(nil), items...), nil
	})
}

type testEnv struct {
	srv       *Server
	router    http.Handler
	receivers *fakeReceivers
	queues    *queue.Engine
}

func testServer(t *testing.T) *testEnv {
	t.Helper()

	recv := &fakeReceivers{
		devices: []receiver.Device{
			{ID: "kitchen", Name: "Kitchen", Address: "kitchen-speaker", Type: receiver.TypeSpeaker},
			{ID: "lounge", Name: "Lounge", Address: "lounge-tv", Type: receiver.TypeDisplay},
			{ID: "lounge-2", Name: "Lounge", Address: "lounge-sub", Type: receiver.TypeSpeaker},
		},
		statuses: map[string]status.ReceiverStatus{
			"kitchen": {ID: "kitchen", Name: "Kitchen", Volume: 0.5, MediaStatus: status.MediaPlaying},
		},
		stats: []supervisor.Stats{
			{DeviceID: "kitchen", State: supervisor.StateConnected},
			{DeviceID: "lounge", State: supervisor.StateDisconnected, Attempts: 7, Unreachable: true},
		},
	}

	queues := queue.NewEngine(queue.WithRand(rand.New(rand.NewPCG(1, 2))))
	resolver := phrase.NewResolver(recv)
	resolver.Register(phrase.DefaultSource, testCatalog())

	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
	gate := auth.NewKeyGate(config.SecurityConfig{
		JWT:     config.JWTConfig{Secret: "test-secret-key-at-least-32-characters-long", AccessTokenTTL: 15},
		APIKeys: config.APIKeyConfig{Enabled: true, Keys: []string{controllerKey, "viewer:" + viewerKey}},
	})

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:        config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:    log,
		Receivers: recv,
		Queues:    queues,
		Planner:   resolver,
		Gate:      gate,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return &testEnv{srv: srv, router: srv.buildRouter(), receivers: recv, queues: queues}
}

// do performs a request as the controller unless headers say otherwise.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if len(headers) == 0 {
		headers = []string{auth.HeaderAPIKey, controllerKey}
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func seedQueue(e *testEnv, deviceID string, ids ...string) {
	items := make([]queue.QueueItem, len(ids))
	for i, id := range ids {
		items[i] = queue.QueueItem{ItemID: id, Title: strings.ToUpper(id)}
	}
	e.queues.Replace(deviceID, items)
}

func itemIDs(items []queue.QueueItem) string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ItemID
	}
	return strings.Join(ids, ",")
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	e := testServer(t)
	w := e.do(t, http.MethodGet, "/api/v1/health", nil, "X-None", "")

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodGet, "/api/v1/health", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	w = e.do(t, http.MethodGet, "/api/v1/health", nil, "X-Request-ID", "client-123")
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := testServer(t)
	w := e.do(t, http.MethodOptions, "/api/v1/receivers", nil, "Origin", "http://localhost:3000")

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-API-Key") {
		t.Errorf("allowed headers = %q, want X-API-Key", got)
	}
}

func TestNotFoundRoute(t *testing.T) {
	e := testServer(t)
	if w := e.do(t, http.MethodGet, "/api/v1/nonexistent", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRecovery(t *testing.T) {
	e := testServer(t)
	h := e.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── Authentication ────────────────────────────────────────────────

func TestAuth_Required(t *testing.T) {
	e := testServer(t)

	tests := []struct {
		name    string
		headers []string
		want    int
	}{
		{"no credentials", []string{"X-None", ""}, http.StatusUnauthorized},
		{"wrong key", []string{auth.HeaderAPIKey, "nope"}, http.StatusUnauthorized},
		{"bad bearer", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"viewer key", []string{auth.HeaderAPIKey, viewerKey}, http.StatusOK},
		{"controller key", []string{auth.HeaderAPIKey, controllerKey}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/api/v1/receivers", nil, tt.headers...)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
			if w.Code == http.StatusUnauthorized {
				if resp := decode[Error](t, w); resp.Code != ErrCodeUnauthorized {
					t.Errorf("code = %q, want %q", resp.Code, ErrCodeUnauthorized)
				}
			}
		})
	}
}

func TestAuth_ViewerCannotEditQueue(t *testing.T) {
	e := testServer(t)
	seedQueue(e, "kitchen", "a", "b")

	w := e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/shuffle", nil, auth.HeaderAPIKey, viewerKey)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if got := itemIDs(e.queues.Items("kitchen")); got != "a,b" {
		t.Errorf("queue = %s, want unchanged a,b", got)
	}

	w = e.do(t, http.MethodPost, "/api/v1/phrases/play", phrase.LanguagePhrase{DeviceName: "Kitchen"}, auth.HeaderAPIKey, viewerKey)
	if w.Code != http.StatusForbidden {
		t.Errorf("play status = %d, want 403", w.Code)
	}
}

func TestIssueToken(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodPost, "/api/v1/auth/token", tokenRequest{APIKey: viewerKey}, "X-None", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	tok := decode[tokenResponse](t, w)
	if tok.TokenType != "Bearer" || tok.ExpiresIn != 15*60 || tok.AccessToken == "" {
		t.Errorf("token response = %+v", tok)
	}

	w = e.do(t, http.MethodGet, "/api/v1/receivers", nil, "Authorization", "Bearer "+tok.AccessToken)
	if w.Code != http.StatusOK {
		t.Errorf("bearer request status = %d, want 200", w.Code)
	}
	w = e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/shuffle", nil, "Authorization", "Bearer "+tok.AccessToken)
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer bearer edit status = %d, want 403", w.Code)
	}
}

func TestIssueToken_Errors(t *testing.T) {
	e := testServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"wrong key", tokenRequest{APIKey: "wrong"}, http.StatusUnauthorized},
		{"missing key", tokenRequest{}, http.StatusBadRequest},
		{"not json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/auth/token", tt.body, "X-None", "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// ─── Receivers ─────────────────────────────────────────────────────

func TestListReceivers(t *testing.T) {
	e := testServer(t)
	w := e.do(t, http.MethodGet, "/api/v1/receivers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	resp := decode[struct {
		Receivers []receiverView `json:"receivers"`
		Count     int            `json:"count"`
	}](t, w)
	if resp.Count != 3 || len(resp.Receivers) != 3 {
		t.Fatalf("count = %d, want 3", resp.Count)
	}
	byID := make(map[string]receiverView)
	for _, v := range resp.Receivers {
		byID[v.ID] = v
	}
	if v := byID["kitchen"]; v.State != supervisor.StateConnected || !v.StatusKnown || v.Connection != nil {
		t.Errorf("kitchen = %+v", v)
	}
	if v := byID["lounge-2"]; v.State != supervisor.StateDisconnected || v.StatusKnown {
		t.Errorf("lounge-2 (no supervisor) = %+v", v)
	}
}

func TestGetReceiver(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodGet, "/api/v1/receivers/lounge", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	v := decode[receiverView](t, w)
	if v.Name != "Lounge" || v.Connection == nil || v.Connection.Attempts != 7 || !v.Connection.Unreachable {
		t.Errorf("lounge = %+v", v)
	}

	if w := e.do(t, http.MethodGet, "/api/v1/receivers/garage", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown receiver status = %d, want 404", w.Code)
	}
}

func TestGetReceiverStatus(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodGet, "/api/v1/receivers/kitchen/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if st := decode[status.ReceiverStatus](t, w); st.Volume != 0.5 || st.MediaStatus != status.MediaPlaying {
		t.Errorf("status = %+v", st)
	}

	// Registered but never reported.
	if w := e.do(t, http.MethodGet, "/api/v1/receivers/lounge/status", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown status code = %d, want 404", w.Code)
	}
}

// ─── Queue ─────────────────────────────────────────────────────────

func TestGetQueue_EmptyIsArray(t *testing.T) {
	e := testServer(t)
	w := e.do(t, http.MethodGet, "/api/v1/receivers/kitchen/queue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Errorf("body = %s, want empty items array", w.Body.String())
	}
}

func TestQueueMove(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantIDs  string
	}{
		{"move up", "move-up", map[string]int{"index": 1}, http.StatusOK, "b,a,c"},
		{"move down", "move-down", map[string]int{"index": 1}, http.StatusOK, "a,c,b"},
		{"move up at top", "move-up", map[string]int{"index": 0}, http.StatusBadRequest, "a,b,c"},
		{"move down at bottom", "move-down", map[string]int{"index": 2}, http.StatusBadRequest, "a,b,c"},
		{"negative index", "move-down", map[string]int{"index": -1}, http.StatusBadRequest, "a,b,c"},
		{"missing index", "move-up", map[string]int{}, http.StatusBadRequest, "a,b,c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testServer(t)
			seedQueue(e, "kitchen", "a", "b", "c")

			w := e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/"+tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if got := itemIDs(e.queues.Items("kitchen")); got != tt.wantIDs {
				t.Errorf("queue = %s, want %s", got, tt.wantIDs)
			}
		})
	}
}

func TestQueueEdit_SyncsReceiver(t *testing.T) {
	e := testServer(t)
	seedQueue(e, "kitchen", "a", "b", "c")

	w := e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/move-up", map[string]int{"index": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[queueResponse](t, w)
	if resp.Synced == nil || !*resp.Synced {
		t.Errorf("synced = %v, want true", resp.Synced)
	}

	sent := e.receivers.lastSent(t)
	if sent.deviceID != "kitchen" || sent.cmd.Type != supervisor.CommandLoadQueue {
		t.Fatalf("sent = %+v", sent)
	}
	load, ok := sent.cmd.Payload.(supervisor.QueueLoad)
	if !ok {
		t.Fatalf("payload type = %T, want QueueLoad", sent.cmd.Payload)
	}
	if got := itemIDs(load.Items); got != "a,c,b" {
		t.Errorf("sent queue = %s, want a,c,b", got)
	}
}

func TestQueueEdit_ReceiverOffline(t *testing.T) {
	e := testServer(t)
	e.receivers.sendErr = supervisor.ErrNotConnected
	seedQueue(e, "kitchen", "a", "b")

	w := e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/move-down", map[string]int{"index": 0})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[queueResponse](t, w)
	if resp.Synced == nil || *resp.Synced {
		t.Errorf("synced = %v, want false", resp.Synced)
	}
	if resp.SyncError == "" {
		t.Error("sync_error is empty")
	}
	if got := itemIDs(e.queues.Items("kitchen")); got != "b,a" {
		t.Errorf("local queue = %s, want b,a", got)
	}
}

func TestQueueDrain(t *testing.T) {
	e := testServer(t)
	seedQueue(e, "kitchen", "a", "b", "c")

	w := e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/drain", drainRequest{Count: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[queueResponse](t, w)
	if got := itemIDs(resp.Drained); got != "a,b" {
		t.Errorf("drained = %s, want a,b", got)
	}
	if got := itemIDs(resp.Items); got != "c" {
		t.Errorf("remaining = %s, want c", got)
	}
	if resp.Items[0].OrderID != 0 {
		t.Errorf("remaining OrderID = %d, want 0", resp.Items[0].OrderID)
	}

	if w := e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/drain", drainRequest{Count: -1}); w.Code != http.StatusBadRequest {
		t.Errorf("negative count status = %d, want 400", w.Code)
	}
}

func TestQueueShuffle_KeepsItems(t *testing.T) {
	e := testServer(t)
	seedQueue(e, "kitchen", "a", "b", "c", "d", "e")

	w := e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/shuffle", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[queueResponse](t, w)
	if len(resp.Items) != 5 {
		t.Fatalf("len = %d, want 5", len(resp.Items))
	}
	seen := make(map[string]bool)
	for i, it := range resp.Items {
		seen[it.ItemID] = true
		if it.OrderID != i {
			t.Errorf("item %d OrderID = %d", i, it.OrderID)
		}
	}
	if len(seen) != 5 {
		t.Errorf("shuffle lost items: %v", seen)
	}
}

func TestQueueOrder(t *testing.T) {
	e := testServer(t)
	e.queues.Replace("kitchen", []queue.QueueItem{
		{ItemID: "a", Runtime: 3 * time.Minute},
		{ItemID: "b", Runtime: time.Minute, Played: true},
		{ItemID: "c", Runtime: 2 * time.Minute},
	})

	w := e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/order", orderRequest{Order: "Shortest"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if got := itemIDs(decode[queueResponse](t, w).Items); got != "b,c,a" {
		t.Errorf("shortest = %s, want b,c,a", got)
	}

	w = e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/order", orderRequest{Order: "unplayed"})
	if got := itemIDs(decode[queueResponse](t, w).Items); got != "c,a" {
		t.Errorf("unplayed = %s, want c,a", got)
	}

	w = e.do(t, http.MethodPost, "/api/v1/receivers/kitchen/queue/order", orderRequest{Order: "alphabetical"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown order status = %d, want 400", w.Code)
	}
}

func TestQueue_UnknownReceiver(t *testing.T) {
	e := testServer(t)
	for _, path := range []string{"queue", "queue/shuffle"} {
		method := http.MethodGet
		if path != "queue" {
			method = http.MethodPost
		}
		if w := e.do(t, method, "/api/v1/receivers/garage/"+path, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, w.Code)
		}
	}
}

// ─── Phrases ───────────────────────────────────────────────────────

func TestResolvePhrase(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodPost, "/api/v1/phrases/resolve", phrase.LanguagePhrase{
		SearchTerm: "coltrane",
		DeviceName: "kitchen",
		Order:      queue.Newest,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	plan := decode[phrase.Plan](t, w)
	if plan.Device.ID != "kitchen" || plan.ID == "" {
		t.Errorf("plan = %+v", plan)
	}
	if got := itemIDs(plan.Items); got != "m2,m1" {
		t.Errorf("items = %s, want m2,m1", got)
	}
	if plan.RequestedBy != auth.Fingerprint(controllerKey) {
		t.Errorf("RequestedBy = %q, want caller fingerprint", plan.RequestedBy)
	}
	if e.queues.Len("kitchen") != 0 {
		t.Error("resolve modified the queue")
	}
}

func TestResolvePhrase_Errors(t *testing.T) {
	e := testServer(t)

	tests := []struct {
		name   string
		phrase phrase.LanguagePhrase
		want   int
	}{
		{"missing device", phrase.LanguagePhrase{SearchTerm: "blue"}, http.StatusBadRequest},
		{"bad order", phrase.LanguagePhrase{DeviceName: "Kitchen", Order: "sideways"}, http.StatusBadRequest},
		{"unknown source", phrase.LanguagePhrase{DeviceName: "Kitchen", Source: "radio"}, http.StatusBadRequest},
		{"ambiguous device", phrase.LanguagePhrase{DeviceName: "Lounge"}, http.StatusConflict},
		{"unknown device", phrase.LanguagePhrase{DeviceName: "Garage"}, http.StatusConflict},
		{"no matches", phrase.LanguagePhrase{DeviceName: "Kitchen", SearchTerm: "mozart"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/phrases/resolve", tt.phrase)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPlayPhrase(t *testing.T) {
	tests := []struct {
		name    string
		method  phrase.PlaybackMethod
		wantIDs string
	}{
		{"now replaces", phrase.MethodNow, "m3"},
		{"next inserts after playing", phrase.MethodNext, "x,m3,y"},
		{"last appends", phrase.MethodLast, "x,y,m3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testServer(t)
			e.queues.Replace("kitchen", []queue.QueueItem{{ItemID: "x", IsPlaying: true}, {ItemID: "y"}})

			w := e.do(t, http.MethodPost, "/api/v1/phrases/play", phrase.LanguagePhrase{
				SearchTerm: "davis",
				DeviceName: "Kitchen",
				Method:     tt.method,
			})
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
			}

			resp := decode[playResponse](t, w)
			if got := itemIDs(resp.Items); got != tt.wantIDs {
				t.Errorf("queue = %s, want %s", got, tt.wantIDs)
			}
			if resp.Plan == nil || resp.Synced == nil || !*resp.Synced {
				t.Fatalf("resp = %+v", resp)
			}

			load := e.receivers.lastSent(t).cmd.Payload.(supervisor.QueueLoad)
			if load.PlanID != resp.Plan.ID || load.Method != string(tt.method) {
				t.Errorf("load = %+v", load)
			}
			if got := itemIDs(load.Items); got != tt.wantIDs {
				t.Errorf("sent queue = %s, want %s", got, tt.wantIDs)
			}
		})
	}
}

func TestListSources(t *testing.T) {
	e := testServer(t)
	w := e.do(t, http.MethodGet, "/api/v1/phrases/sources", nil)
	resp := decode[map[string][]string](t, w)
	if len(resp["sources"]) != 1 || resp["sources"][0] != phrase.DefaultSource {
		t.Errorf("sources = %v", resp)
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetrics(t *testing.T) {
	e := testServer(t)
	seedQueue(e, "kitchen", "a", "b")

	w := e.do(t, http.MethodGet, "/api/v1/metrics", nil, "X-None", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	m := decode[SystemMetrics](t, w)
	if m.Receivers.Total != 3 || m.Receivers.Unreachable != 1 || m.Receivers.QueuedItems != 2 {
		t.Errorf("receivers = %+v", m.Receivers)
	}
	if m.Receivers.ByState["disconnected"] != 2 || m.Receivers.ByState["connected"] != 1 {
		t.Errorf("by_state = %v", m.Receivers.ByState)
	}
	if m.MQTT != nil {
		t.Error("mqtt metrics present without a broker")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func newMockClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{})
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	return &WSClient{hub: hub, send: make(chan []byte, wsSendBufferSize), subscriptions: subs}
}

func TestHub_Broadcast(t *testing.T) {
	hub := newTestHub(t)

	subscribed := newMockClient(hub, string(events.TypeStatus))
	wildcard := newMockClient(hub, WSChannelAll)
	other := newMockClient(hub, string(events.TypeFaulted))
	for _, c := range []*WSClient{subscribed, wildcard, other} {
		hub.Register(c)
	}

	hub.Broadcast(string(events.TypeStatus), map[string]any{"device_id": "kitchen"})

	for name, c := range map[string]*WSClient{"subscribed": subscribed, "wildcard": wildcard} {
		select {
		case msg := <-c.send:
			var wsMsg WSMessage
			if err := json.Unmarshal(msg, &wsMsg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if wsMsg.EventType != string(events.TypeStatus) {
				t.Errorf("%s event_type = %q", name, wsMsg.EventType)
			}
		case <-time.After(time.Second):
			t.Errorf("%s client timed out waiting for broadcast", name)
		}
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)
	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := newMockClient(hub)
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestRelayEvent_AttachesStatus(t *testing.T) {
	e := testServer(t)
	client := newMockClient(e.srv.hub, WSChannelAll)
	e.srv.hub.Register(client)

	if err := e.srv.relayEvent(context.Background(), events.Event{Type: events.TypeStatus, DeviceID: "kitchen", Seq: 4}); err != nil {
		t.Fatalf("relayEvent() error = %v", err)
	}

	select {
	case msg := <-client.send:
		var wsMsg struct {
			Payload WSEvent `json:"payload"`
		}
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Payload.Seq != 4 || wsMsg.Payload.Status == nil || wsMsg.Payload.Status.Volume != 0.5 {
			t.Errorf("payload = %+v", wsMsg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
}

func TestWebSocket_EndToEnd(t *testing.T) {
	e := testServer(t)
	ts := httptest.NewServer(e.router)
	defer ts.Close()

	token, _, err := e.srv.gate.IssueToken(viewerKey)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	// Without a token the upgrade is refused.
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("Dial() without token succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Dial() without token response = %v, want 401", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{string(events.TypeConnectivity)}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("ReadJSON(ack) error = %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v", ack)
	}

	e.srv.relayEvent(context.Background(), events.Event{Type: events.TypeConnectivity, DeviceID: "lounge", State: "connected"})

	var got WSMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON(event) error = %v", err)
	}
	if got.Type != WSTypeEvent || got.EventType != string(events.TypeConnectivity) {
		t.Errorf("event = %+v", got)
	}
}
