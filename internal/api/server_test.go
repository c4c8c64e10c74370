package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lightbridge/internal/bridge"
	"github.com/nerrad567/lightbridge/internal/bulb"
	"github.com/nerrad567/lightbridge/internal/bulb/bulbtest"
	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
	"github.com/nerrad567/lightbridge/internal/infrastructure/logging"
	"github.com/nerrad567/lightbridge/internal/registry"
)

const testKey = "0123456789abcdef"

// testRoster is a mutable in-memory roster.
type testRoster struct {
	mu    sync.Mutex
	decls []registry.Declaration
}

func (r *testRoster) Declarations(context.Context) ([]registry.Declaration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]registry.Declaration(nil), r.decls...), nil
}

func (r *testRoster) add(id string) {
	r.mu.Lock()
	r.decls = append(r.decls, registry.Declaration{ID: id, Key: testKey, IP: "10.0.0.1", Name: "lamp " + id})
	r.mu.Unlock()
}

// testEnv is a server over fake bulbs with a running dispatch loop.
type testEnv struct {
	srv    *Server
	d      *bridge.Dispatcher
	roster *testRoster

	mu    sync.Mutex
	conns map[string]*bulbtest.FakeConn
}

func (e *testEnv) conn(id string) *bulbtest.FakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[id]
}

func newTestEnv(t *testing.T, ids ...string) *testEnv {
	t.Helper()

	e := &testEnv{roster: &testRoster{}, conns: make(map[string]*bulbtest.FakeConn)}
	for _, id := range ids {
		e.roster.add(id)
	}

	reg, err := registry.New(registry.Config{
		Dial: func(d registry.Declaration) (bulb.Connection, error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			conn := bulbtest.NewFakeConn(bulb.DPS{bulb.CodePower: false})
			e.conns[d.ID] = conn
			return conn, nil
		},
		ConnectTimeout: 200 * time.Millisecond,
		RequestTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}

	d, err := bridge.New(bridge.Options{Registry: reg, Roster: e.roster, ID: "bridge-id", Name: "test"})
	if err != nil {
		t.Fatalf("bridge.New() error = %v", err)
	}
	e.d = d
	if _, err := d.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- d.Serve(ctx, pc) }()

	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1", Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		WS:         config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     log,
		Dispatcher: d,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	e.srv = srv

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-served
		d.Stop()
		pc.Close()
		reg.Close()
	})
	return e
}

// do runs one request against the router.
func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec, out
}

func results(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	raw, ok := body["results"].([]any)
	if !ok {
		t.Fatalf("no results in %v", body)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.(map[string]any))
	}
	return out
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("New() without dispatcher should fail")
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, "a", "b")

	rec, body := e.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["bridge_id"] != "bridge-id" {
		t.Errorf("bridge_id = %v", body["bridge_id"])
	}
	if body["resources"] != float64(2) {
		t.Errorf("resources = %v, want 2", body["resources"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestListAndGetResources(t *testing.T) {
	e := newTestEnv(t, "a", "b", "c")

	rec, body := e.do(t, http.MethodGet, "/api/v1/resources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if n := len(body["resources"].([]any)); n != 3 {
		t.Errorf("listed %d resources, want 3", n)
	}

	tests := []struct {
		name   string
		target string
		status int
		count  int
	}{
		{"literal id", "bulb-2", http.StatusOK, 1},
		{"pattern", "*bulb-[12]", http.StatusOK, 2},
		{"unknown id", "bulb-9", http.StatusNotFound, 0},
		{"pattern without match", "*lamp", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := e.do(t, http.MethodGet, "/api/v1/resources/"+tt.target, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.count == 0 {
				return
			}
			list := body["resources"].([]any)
			if len(list) != tt.count {
				t.Fatalf("got %d resources, want %d", len(list), tt.count)
			}
			first := list[0].(map[string]any)
			if first["state"] != "connected" {
				t.Errorf("state = %v, want connected", first["state"])
			}
		})
	}
}

func TestAssign(t *testing.T) {
	e := newTestEnv(t, "a", "b")

	rec, body := e.do(t, http.MethodPut, "/api/v1/resources/*.*", AssignRequest{
		Assignments: []string{"power=true", "brightness=500", "bogus=1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}

	rs := results(t, body)
	if len(rs) != 2 {
		t.Fatalf("got %d results, want 2", len(rs))
	}
	for _, r := range rs {
		if r["outcome"] != "ok" {
			t.Errorf("%v outcome = %v", r["id"], r["outcome"])
		}
		if dropped := r["dropped"].([]any); len(dropped) != 1 {
			t.Errorf("%v dropped = %v, want the unknown property", r["id"], dropped)
		}
		if v := r["values"].(map[string]any); v["power"] != "true" || v["brightness"] != "500" {
			t.Errorf("%v values = %v", r["id"], v)
		}
	}

	for _, id := range []string{"a", "b"} {
		sets := e.conn(id).Sets()
		if len(sets) != 1 {
			t.Fatalf("%s saw %d writes, want one batch", id, len(sets))
		}
		if sets[0][bulb.CodePower] != true || sets[0][bulb.CodeBrightness] != 500.0 {
			t.Errorf("%s write = %v", id, sets[0])
		}
	}
}

func TestAssign_BadRequests(t *testing.T) {
	e := newTestEnv(t, "a")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/resources/bulb-1", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", rec.Code)
	}

	rec, _ = e.do(t, http.MethodPut, "/api/v1/resources/bulb-1", AssignRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty assignments status = %d, want 400", rec.Code)
	}

	rec, body := e.do(t, http.MethodPut, "/api/v1/resources/bulb-7", AssignRequest{Assignments: []string{"power=true"}})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown target status = %d, want 404", rec.Code)
	}
	if body["code"] != ErrCodeNotFound || body["target"] != "bulb-7" {
		t.Errorf("error body = %v, want not_found for bulb-7", body)
	}
	if body["request_id"] != rec.Header().Get("X-Request-ID") {
		t.Errorf("request_id = %v, want header %q", body["request_id"], rec.Header().Get("X-Request-ID"))
	}
}

func TestAssign_DeviceFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*bulbtest.FakeConn)
		status  int
		outcome string
	}{
		{"timeout", func(c *bulbtest.FakeConn) { c.SetDelay(time.Second) }, http.StatusGatewayTimeout, "timeout"},
		{"device error", func(c *bulbtest.FakeConn) { c.SetErr(errors.New("refused")) }, http.StatusBadGateway, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, "a", "b")
			tt.setup(e.conn("a"))

			rec, body := e.do(t, http.MethodPut, "/api/v1/resources/*.*", AssignRequest{Assignments: []string{"power=true"}})
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			rs := results(t, body)
			if rs[0]["outcome"] != tt.outcome || rs[0]["error"] == nil {
				t.Errorf("bulb-1 result = %v", rs[0])
			}
			if rs[1]["outcome"] != "ok" {
				t.Errorf("bulb-2 should not be affected, got %v", rs[1])
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	e := newTestEnv(t, "a")

	rec, body := e.do(t, http.MethodPost, "/api/v1/resources/bulb-1/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rs := results(t, body)
	if rs[0]["values"].(map[string]any)["power"] != "false" {
		t.Errorf("refresh values = %v", rs[0]["values"])
	}
}

func TestFade(t *testing.T) {
	e := newTestEnv(t, "a")

	rec, body := e.do(t, http.MethodPut, "/api/v1/resources/bulb-1/fade", FadeRequest{H: 0.5, S: 1, V: 1, DurationMS: 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	if len(e.conn("a").Sets()) == 0 {
		t.Error("fade wrote nothing to the device")
	}

	rec, _ = e.do(t, http.MethodPut, "/api/v1/resources/bulb-1/fade", FadeRequest{DurationMS: -1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative duration status = %d, want 400", rec.Code)
	}
}

func TestReload(t *testing.T) {
	e := newTestEnv(t, "a")
	e.roster.add("b")

	rec, body := e.do(t, http.MethodPost, "/api/v1/reload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	added := body["added"].([]any)
	if len(added) != 1 || added[0] != "bulb-2" {
		t.Errorf("added = %v, want [bulb-2]", added)
	}
	if body["total"] != float64(2) {
		t.Errorf("total = %v, want 2", body["total"])
	}
}

func TestWebSocket_StreamsFanOut(t *testing.T) {
	e := newTestEnv(t, "a", "b")

	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	// Narrow the stream to bulb-2 and anything ending in 9.
	if err := ws.WriteJSON(map[string]any{"type": "subscribe", "id": "1", "payload": WSTargets{Targets: []string{"bulb-2", "*9$"}}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var ack WSMessage
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&ack); err != nil || ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("subscribe ack = %+v, err %v", ack, err)
	}

	e.conn("a").Push(bulb.DPS{bulb.CodePower: true})
	e.conn("b").Push(bulb.DPS{bulb.CodeBrightness: 300.0})

	var msg struct {
		Type      string        `json:"type"`
		EventType string        `json:"event_type"`
		Payload   PropertyEvent `json:"payload"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	want := PropertyEvent{ResourceID: "bulb-2", Property: "brightness", Value: "300"}
	if msg.Type != WSTypeEvent || msg.EventType != EventPropertyChanged || msg.Payload != want {
		t.Errorf("event = %+v, want %+v", msg, want)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	e := newTestEnv(t, "a")

	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, tc := range []struct{ in, want string }{
		{`{"type":"ping","id":"p"}`, WSTypePong},
		{`{"type":"nope"}`, WSTypeError},
		{`not json`, WSTypeError},
		{`{"type":"subscribe","payload":{"targets":["*bulb-("]}}`, WSTypeError},
		{`{"type":"unsubscribe","payload":{"targets":["bulb-1"]}}`, WSTypeResponse},
	} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(tc.in)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
		var reply WSMessage
		if err := ws.ReadJSON(&reply); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if reply.Type != tc.want {
			t.Errorf("reply to %s = %s, want %s", tc.in, reply.Type, tc.want)
		}
	}

	if n := e.srv.hub.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
}

func TestServeAndClose(t *testing.T) {
	e := newTestEnv(t, "a")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if err := e.srv.Serve(context.Background(), ln); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	resp, err := http.Get("http://" + e.srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := e.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestResultStatus(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bulb.Outcome
		want     int
	}{
		{"all ok", []bulb.Outcome{bulb.OutcomeOK, bulb.OutcomeOK}, http.StatusOK},
		{"one error", []bulb.Outcome{bulb.OutcomeOK, bulb.OutcomeError}, http.StatusBadGateway},
		{"timeout wins", []bulb.Outcome{bulb.OutcomeError, bulb.OutcomeTimeout}, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rs []ResultView
			for _, o := range tt.outcomes {
				rs = append(rs, ResultView{Outcome: o})
			}
			if got := resultStatus(rs); got != tt.want {
				t.Errorf("resultStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAccessLog_RecoversPanic(t *testing.T) {
	e := newTestEnv(t, "a")

	h := e.srv.requestID(e.srv.accessLog(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	req := httptest.NewRequest(http.MethodGet, "/explode", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %q", rec.Body.String())
	}
	if body.Code != ErrCodeInternal || body.RequestID != "req-42" {
		t.Errorf("body = %+v, want internal_error for req-42", body)
	}
}

func TestLimitBody(t *testing.T) {
	e := newTestEnv(t, "a")

	big := `{"assignments":["` + strings.Repeat("x", maxRequestBodySize) + `"]}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/resources/bulb-1", strings.NewReader(big))
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want 400", rec.Code)
	}
}

func TestHub_FilterAndDrop(t *testing.T) {
	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
	h := NewHub(config.WebSocketConfig{}, log)

	all := &wsClient{send: make(chan []byte, 1), done: make(chan struct{})}
	hall := &wsClient{send: make(chan []byte, 4), done: make(chan struct{})}
	target, err := registry.CompileTarget("*^hall")
	if err != nil {
		t.Fatalf("CompileTarget() error = %v", err)
	}
	hall.targets = []registry.Target{target}
	h.add(all)
	h.add(hall)

	h.PropertyChanged("hall-1", "power", "true")
	h.PropertyChanged("desk", "power", "false")

	if got := len(hall.send); got != 1 {
		t.Errorf("hall client queued %d events, want 1", got)
	}
	if got := len(all.send); got != 1 {
		t.Errorf("unfiltered client queued %d events, want 1", got)
	}
	if got := h.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	h.remove(hall)
	h.remove(hall)
	if !hall.offer([]byte("late")) {
		t.Error("offer() to a removed client should be accepted silently")
	}
	if n := h.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
}

// waitSets polls until conn has seen at least n writes.
func waitSets(t *testing.T, conn *bulbtest.FakeConn, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(conn.Sets()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("saw %d writes, want at least %d", len(conn.Sets()), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEffect_StartListStop(t *testing.T) {
	e := newTestEnv(t, "a", "b")

	rec, body := e.do(t, http.MethodPut, "/api/v1/resources/*.*/effect", EffectRequest{Effect: EffectPulse, PeriodMS: 100})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body %v", rec.Code, body)
	}
	if got := body["resources"].([]any); len(got) != 2 {
		t.Errorf("resources = %v, want both", got)
	}
	waitSets(t, e.conn("a"), 3)
	waitSets(t, e.conn("b"), 3)

	_, body = e.do(t, http.MethodGet, "/api/v1/effects", nil)
	running := body["effects"].(map[string]any)
	if running["bulb-1"] != EffectPulse || running["bulb-2"] != EffectPulse {
		t.Errorf("effects = %v, want pulse on both", running)
	}

	rec, body = e.do(t, http.MethodDelete, "/api/v1/resources/bulb-1/effect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	if stopped := body["stopped"].(map[string]any); stopped["bulb-1"] != EffectPulse {
		t.Errorf("stopped = %v", stopped)
	}

	_, body = e.do(t, http.MethodGet, "/api/v1/effects", nil)
	running = body["effects"].(map[string]any)
	if _, ok := running["bulb-1"]; ok || running["bulb-2"] != EffectPulse {
		t.Errorf("effects after stop = %v, want pulse on bulb-2 only", running)
	}

	// Stopped: no more writes reach the device.
	settled := len(e.conn("a").Sets())
	time.Sleep(150 * time.Millisecond)
	if n := len(e.conn("a").Sets()); n != settled {
		t.Errorf("stopped bulb saw %d more writes", n-settled)
	}
}

func TestEffect_ChaseHoldsEveryResource(t *testing.T) {
	e := newTestEnv(t, "a", "b")

	rec, body := e.do(t, http.MethodPut, "/api/v1/resources/*.*/effect", EffectRequest{Effect: EffectChase, PeriodMS: 20, Rounds: 1000})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body %v", rec.Code, body)
	}
	waitSets(t, e.conn("b"), 2)

	// A new effect on one member replaces the whole chase.
	rec, _ = e.do(t, http.MethodPut, "/api/v1/resources/bulb-2/effect", EffectRequest{Effect: EffectFlicker})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("replace status = %d", rec.Code)
	}
	_, body = e.do(t, http.MethodGet, "/api/v1/effects", nil)
	running := body["effects"].(map[string]any)
	if _, ok := running["bulb-1"]; ok || running["bulb-2"] != EffectFlicker {
		t.Errorf("effects = %v, want flicker on bulb-2 only", running)
	}
}

func TestEffect_BadRequests(t *testing.T) {
	e := newTestEnv(t, "a")

	tests := []struct {
		name   string
		target string
		req    EffectRequest
		status int
	}{
		{"unknown effect", "bulb-1", EffectRequest{Effect: "rainbow"}, http.StatusBadRequest},
		{"negative period", "bulb-1", EffectRequest{Effect: EffectPulse, PeriodMS: -1}, http.StatusBadRequest},
		{"too many rounds", "bulb-1", EffectRequest{Effect: EffectChase, Rounds: maxChaseRounds + 1}, http.StatusBadRequest},
		{"inverted value", "bulb-1", EffectRequest{Effect: EffectFlicker, Value: &bulb.Range{Min: 0.8, Max: 0.2}}, http.StatusBadRequest},
		{"unknown resource", "bulb-9", EffectRequest{Effect: EffectFlicker}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := e.do(t, http.MethodPut, "/api/v1/resources/"+tt.target+"/effect", tt.req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}

	_, body := e.do(t, http.MethodGet, "/api/v1/effects", nil)
	if running := body["effects"].(map[string]any); len(running) != 0 {
		t.Errorf("rejected requests started %v", running)
	}
}

func TestEffect_RefusedAfterClose(t *testing.T) {
	e := newTestEnv(t, "a")
	e.srv.Close()

	rec, _ := e.do(t, http.MethodPut, "/api/v1/resources/bulb-1/effect", EffectRequest{Effect: EffectFlicker})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
