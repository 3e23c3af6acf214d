package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// EventsPath is the websocket endpoint on the server.
const EventsPath = "/api/ws/events"

// WebSocketURL converts an http(s) base URL into the events endpoint URL.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + EventsPath
	return u.String(), nil
}

// Follow subscribes to the server at baseURL and sends the name of every
// successfully indexed model on the returned channel. The channel closes
// when ctx is done or the connection drops.
func Follow(ctx context.Context, baseURL string) (<-chan string, error) {
	target, err := WebSocketURL(baseURL)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	names := make(chan string)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(done)
		defer close(names)
		defer ws.Close()
		for {
			var msg Message
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != TypeModelIndexed {
				continue
			}
			var ev ModelEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.Name == "" {
				continue
			}
			select {
			case names <- ev.Name:
			case <-ctx.Done():
				return
			}
		}
	}()
	return names, nil
}
