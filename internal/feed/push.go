package feed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridpulse/gridpulse-ui/internal/reconcile"
)

// PushConfig holds push-channel connection settings.
type PushConfig struct {
	URL      string // ws:// or wss:// endpoint; http(s) schemes are rewritten
	Username string
	Password string
}

// PushConn is one live push-channel connection. Read blocks until the next
// event or a connection error; the supervisor owns reconnection.
type PushConn struct {
	conn *websocket.Conn
}

// DialPush opens the push channel.
func DialPush(ctx context.Context, cfg PushConfig) (*PushConn, error) {
	u := cfg.URL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	var header http.Header
	if cfg.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		header = http.Header{"Authorization": []string{"Basic " + cred}}
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dialing push channel (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing push channel: %w", err)
	}
	return &PushConn{conn: conn}, nil
}

// Read returns the next push event. Malformed frames are returned as
// zero-value events with ReceivedAt set; the reconciler counts and drops
// them, keeping the connection alive.
func (p *PushConn) Read() (reconcile.PushEvent, error) {
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		return reconcile.PushEvent{}, fmt.Errorf("reading push channel: %w", err)
	}

	var ev reconcile.PushEvent
	_ = json.Unmarshal(data, &ev) // undecodable frame falls through as malformed
	ev.ReceivedAt = time.Now().UTC()
	return ev, nil
}

// Close tears down the connection.
func (p *PushConn) Close() error {
	return p.conn.Close()
}
