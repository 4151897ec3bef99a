package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeRuntime is an in-memory Runtime for exercising the HTTP handlers
// without a real transport reactor.
type fakeRuntime struct {
	self    string
	alias   string
	version string
	started time.Time
	addrs   []string

	lastCmd Command
	reply   CommandReply
}

func (f *fakeRuntime) Submit(cmd Command) CommandReply {
	f.lastCmd = cmd
	return f.reply
}
func (f *fakeRuntime) Self() string             { return f.self }
func (f *fakeRuntime) Alias() string            { return f.alias }
func (f *fakeRuntime) Version() string          { return f.version }
func (f *fakeRuntime) StartTime() time.Time     { return f.started }
func (f *fakeRuntime) ListenAddresses() []string { return f.addrs }

func newTestServer(rt *fakeRuntime) (*Server, *http.ServeMux) {
	s := NewServer(rt, "", "")
	s.audit = NewAuditLogger(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return s, mux
}

func doRequest(mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

func TestHandleStatus(t *testing.T) {
	rt := &fakeRuntime{self: "12D3KooWExample", alias: "node-a", version: "0.1.0", started: time.Now().Add(-time.Minute), addrs: []string{"/ip4/0.0.0.0/tcp/8776"}}
	_, mux := newTestServer(rt)

	rec := doRequest(mux, "GET", "/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data StatusResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data.NodeID != rt.self || out.Data.Alias != rt.alias {
		t.Errorf("got %+v", out.Data)
	}
	if out.Data.UptimeSeconds < 1 {
		t.Errorf("UptimeSeconds = %d, want >= 1", out.Data.UptimeSeconds)
	}
}

func TestHandleSessions(t *testing.T) {
	rt := &fakeRuntime{reply: CommandReply{Value: []SessionInfo{{NodeID: "n1", State: "connected"}}}}
	_, mux := newTestServer(rt)

	rec := doRequest(mux, "GET", "/v1/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rt.lastCmd.Kind != "sessions" {
		t.Errorf("Kind = %q, want sessions", rt.lastCmd.Kind)
	}
	var out struct {
		Data SessionsResponse `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if len(out.Data.Sessions) != 1 || out.Data.Sessions[0].NodeID != "n1" {
		t.Fatalf("got %+v", out.Data)
	}
}

func TestHandleConnect(t *testing.T) {
	rt := &fakeRuntime{}
	_, mux := newTestServer(rt)

	req := ConnectRequest{NodeID: "n1", Address: "/ip4/1.2.3.4/tcp/8776", Persistent: true}
	rec := doRequest(mux, "POST", "/v1/connect", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rt.lastCmd.Kind != "connect" || rt.lastCmd.Nid != "n1" || !rt.lastCmd.Persistent {
		t.Errorf("got %+v", rt.lastCmd)
	}
}

func TestHandleConnectRejectsBadBody(t *testing.T) {
	rt := &fakeRuntime{}
	_, mux := newTestServer(rt)

	r := httptest.NewRequest("POST", "/v1/connect", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFetchPropagatesError(t *testing.T) {
	rt := &fakeRuntime{reply: CommandReply{Err: errors.New("fetch: no fetch slot available")}}
	_, mux := newTestServer(rt)

	rec := doRequest(mux, "POST", "/v1/fetch", FetchRequest{Rid: "r1", From: "n1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSeedAndUnseed(t *testing.T) {
	rt := &fakeRuntime{}
	_, mux := newTestServer(rt)

	rec := doRequest(mux, "POST", "/v1/seeds", SeedRequest{Rid: "r1", Scope: "followed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed status = %d", rec.Code)
	}
	if rt.lastCmd.Kind != "seed" || rt.lastCmd.Scope != "followed" {
		t.Errorf("got %+v", rt.lastCmd)
	}

	rec = doRequest(mux, "DELETE", "/v1/seeds/r1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unseed status = %d", rec.Code)
	}
	if rt.lastCmd.Kind != "unseed" || rt.lastCmd.Rid != "r1" {
		t.Errorf("got %+v", rt.lastCmd)
	}
}

func TestHandleShutdownClosesChannel(t *testing.T) {
	rt := &fakeRuntime{}
	s, mux := newTestServer(rt)

	rec := doRequest(mux, "POST", "/v1/shutdown", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case <-s.ShutdownCh():
	default:
		t.Fatal("shutdown channel was not closed")
	}
}
