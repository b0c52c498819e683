package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/askneller/WizardBattles/internal/observerproto"
)

func fetchBootstrap(ctx context.Context, baseURL string) (observerproto.BootstrapResponse, error) {
	var out observerproto.BootstrapResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/admin/v1/observer/bootstrap", nil)
	if err != nil {
		return out, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("bootstrap: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("bootstrap: status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("bootstrap: decode: %w", err)
	}
	if out.ProtocolVersion != observerproto.Version {
		return out, fmt.Errorf("bootstrap: protocol %q, want %q", out.ProtocolVersion, observerproto.Version)
	}
	return out, nil
}

func wsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/admin/v1/observer/ws"
	return u.String(), nil
}

// subscribe opens the observer stream and sends the SUBSCRIBE handshake.
func subscribe(ctx context.Context, baseURL string, backlog int) (*websocket.Conn, error) {
	target, err := wsURL(baseURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Backlog:         backlog,
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return conn, nil
}

// readEvents forwards site events until the connection fails or ctx ends.
func readEvents(ctx context.Context, conn *websocket.Conn, out chan<- observerproto.SiteEventMsg) error {
	for {
		var msg observerproto.SiteEventMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Type != observerproto.TypeSiteEvent {
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
