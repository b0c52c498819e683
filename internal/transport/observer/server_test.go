package observer

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/askneller/WizardBattles/internal/observerproto"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
	"github.com/askneller/WizardBattles/internal/sim/towers"
)

func newTestServer() *Server {
	boot := func() observerproto.BootstrapResponse {
		return observerproto.BootstrapResponse{
			WorldID:      "world_test",
			WorldParams:  observerproto.WorldParams{ChunkSize: [3]int{16, 16, 256}, Height: 256, Seed: 9},
			BlockPalette: []string{"AIR", "STONE"},
			Counts:       observerproto.SiteCounts{Pending: 2},
		}
	}
	return NewServer(boot, log.New(io.Discard, "", 0))
}

func event(seq uint64, kind towers.EventKind, x int) towers.Event {
	return towers.Event{
		Seq:  seq,
		Kind: kind,
		Time: time.Unix(1700000000, 0),
		Site: registry.Site{Pos: registry.Pos{X: x, Y: 100, Z: -x}, Flatness: 2},
	}
}

func dial(t *testing.T, srv *httptest.Server, sub observerproto.SubscribeMsg) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func waitSessions(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Sessions() != n {
		if time.Now().After(deadline) {
			t.Fatalf("sessions: got %d want %d", s.Sessions(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) observerproto.SiteEventMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m observerproto.SiteEventMsg
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestWSStreamsFilteredEvents(t *testing.T) {
	s := newTestServer()
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn := dial(t, srv, observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Kinds:           []string{"site_built"},
	})
	defer conn.Close()
	waitSessions(t, s, 1)

	_ = s.WriteSiteEvent(event(1, towers.KindAdded, 1))
	_ = s.WriteSiteEvent(event(2, towers.KindBuilt, 2))

	m := readEvent(t, conn)
	if m.Seq != 2 || m.Kind != "SITE_BUILT" || m.Pos != [3]int{2, 100, -2} {
		t.Fatalf("unexpected event: %+v", m)
	}
	if m.Type != observerproto.TypeSiteEvent || m.ProtocolVersion != observerproto.Version {
		t.Fatalf("envelope: %+v", m)
	}
}

func TestWSReplaysBacklog(t *testing.T) {
	s := newTestServer()
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	for i := 1; i <= 5; i++ {
		_ = s.WriteSiteEvent(event(uint64(i), towers.KindAdded, i))
	}

	conn := dial(t, srv, observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Backlog:         2,
	})
	defer conn.Close()

	if m := readEvent(t, conn); m.Seq != 4 {
		t.Fatalf("first replayed seq: got %d want 4", m.Seq)
	}
	if m := readEvent(t, conn); m.Seq != 5 {
		t.Fatalf("second replayed seq: got %d want 5", m.Seq)
	}
	waitSessions(t, s, 1)
	_ = s.WriteSiteEvent(event(6, towers.KindRejected, 6))
	if m := readEvent(t, conn); m.Seq != 6 || m.Kind != "SITE_REJECTED" {
		t.Fatalf("live event: %+v", m)
	}
}

func TestWSRejectsBadHandshake(t *testing.T) {
	s := newTestServer()
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn := dial(t, srv, observerproto.SubscribeMsg{Type: "HELLO", ProtocolVersion: observerproto.Version})
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if s.Sessions() != 0 {
		t.Fatalf("sessions: %d", s.Sessions())
	}
}

func TestSlowSessionDrops(t *testing.T) {
	s := newTestServer()
	sess := &session{out: make(chan []byte, 1)}
	s.subs["O1"] = sess

	_ = s.WriteSiteEvent(event(1, towers.KindAdded, 1))
	_ = s.WriteSiteEvent(event(2, towers.KindAdded, 2))
	if got := s.Dropped(); got != 1 {
		t.Fatalf("dropped: got %d want 1", got)
	}
}

func TestBootstrapHandler(t *testing.T) {
	s := newTestServer()
	h := s.BootstrapHandler()

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	var resp observerproto.BootstrapResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ProtocolVersion != observerproto.Version || resp.WorldID != "world_test" || resp.Counts.Pending != 2 {
		t.Fatalf("unexpected bootstrap: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rr = httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("remote status: %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr = httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post status: %d", rr.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"::1":          true,
		"10.1.2.3:80":  false,
		"garbage":      false,
	} {
		if got := IsLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
