package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/askneller/WizardBattles/internal/observerproto"
	"github.com/askneller/WizardBattles/internal/sim/towers"
)

const (
	backlogCap = 1024
	sessionBuf = 4096
)

// BootstrapFunc builds the current world summary for a new observer.
type BootstrapFunc func() observerproto.BootstrapResponse

// Server streams site events to loopback websocket observers. It is a
// towers.EventSink.
type Server struct {
	boot BootstrapFunc
	log  *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	subs    map[string]*session
	backlog []observerproto.SiteEventMsg

	dropped atomic.Uint64
}

type session struct {
	out   chan []byte
	kinds map[string]bool
}

func (s *session) accepts(kind string) bool {
	return len(s.kinds) == 0 || s.kinds[kind]
}

func NewServer(boot BootstrapFunc, logger *log.Logger) *Server {
	return &Server{
		boot: boot,
		log:  logger,
		subs: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// FromEvent converts a session event to its wire form.
func FromEvent(e towers.Event) observerproto.SiteEventMsg {
	p := e.Site.Pos
	m := observerproto.SiteEventMsg{
		Type:            observerproto.TypeSiteEvent,
		ProtocolVersion: observerproto.Version,
		Seq:             e.Seq,
		Kind:            string(e.Kind),
		TimeMs:          e.Time.UnixMilli(),
		Pos:             [3]int{p.X, p.Y, p.Z},
		Flatness:        e.Site.Flatness,
		RawHeight:       e.Site.RawHeight,
		PeakLike:        e.Site.PeakLike,
		BiomeMatch:      e.Site.BiomeMatch,
		Template:        e.Template,
		Rotation:        e.Rotation,
		Attempt:         e.Attempt,
		Detail:          e.Detail,
	}
	for _, sp := range e.Spawns {
		m.Spawns = append(m.Spawns, observerproto.SpawnInfo{Prefab: sp.Prefab, Pos: sp.Pos})
	}
	return m
}

// WriteSiteEvent fans e out to every subscribed session. Slow sessions lose
// events rather than block the caller.
func (s *Server) WriteSiteEvent(e towers.Event) error {
	msg := FromEvent(e)
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("observer: marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog = append(s.backlog, msg)
	if len(s.backlog) > backlogCap {
		s.backlog = append(s.backlog[:0], s.backlog[len(s.backlog)-backlogCap:]...)
	}
	for _, sess := range s.subs {
		if !sess.accepts(msg.Kind) {
			continue
		}
		select {
		case sess.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := s.boot()
		resp.ProtocolVersion = observerproto.Version

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sess := &session{out: make(chan []byte, sessionBuf), kinds: kindSet(sub.Kinds)}
		s.join(sid, sess, sub.Backlog)
		defer s.leave(sid)
		if s.log != nil {
			s.log.Printf("observer %s joined from %s", sid, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates to the kind filter.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			s.mu.Lock()
			sess.kinds = kindSet(sub.Kinds)
			s.mu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// join registers sess after queueing up to n backlog events, all under the
// lock, so no event is both replayed and delivered live.
func (s *Server) join(sid string, sess *session, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.backlog) {
		n = len(s.backlog)
	}
	for _, m := range s.backlog[len(s.backlog)-n:] {
		if !sess.accepts(m.Kind) {
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			continue
		}
		sess.out <- b
	}
	s.subs[sid] = sess
}

func (s *Server) leave(sid string) {
	s.mu.Lock()
	delete(s.subs, sid)
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("observer %s left", sid)
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	if sub.Backlog < 0 {
		sub.Backlog = 0
	}
	if sub.Backlog > backlogCap {
		sub.Backlog = backlogCap
	}
	return sub, true
}

func kindSet(kinds []string) map[string]bool {
	if len(kinds) == 0 {
		return nil
	}
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[strings.ToUpper(strings.TrimSpace(k))] = true
	}
	return m
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
