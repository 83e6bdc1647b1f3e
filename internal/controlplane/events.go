package controlplane

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrisej001/voice-agent/internal/config"
)

// Call-lifecycle event types emitted by the call-control system
const (
	EventNewCall = "new-call"
	EventDTMF    = "dtmf"
	EventCallEnd = "call-end"
)

// Event is one call-lifecycle notification from the call-control system
type Event struct {
	Type       string `json:"type"`
	CallID     string `json:"call_id"`
	Caller     string `json:"caller"`
	HospitalID string `json:"hospital_id,omitempty"`
	Digit      string `json:"digit,omitempty"`
}

// EventConn is one live event-stream connection
type EventConn interface {
	ReadEvent() (Event, error)
	Close() error
}

// Source dials the call-control event stream. Abstracted so the connector's
// reconnect loop can be exercised without a PBX.
type Source interface {
	Dial(ctx context.Context) (EventConn, error)
}

// WebsocketSource subscribes to the call-control system's websocket event
// endpoint, authenticating with basic credentials and registering under the
// configured application name.
type WebsocketSource struct {
	config config.ControlConfig
}

// NewWebsocketSource creates an event source for the configured endpoint
func NewWebsocketSource(cfg config.ControlConfig) *WebsocketSource {
	return &WebsocketSource{config: cfg}
}

// Dial opens one event-stream connection
func (s *WebsocketSource) Dial(ctx context.Context) (EventConn, error) {
	endpoint, err := url.Parse(s.config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid control-plane URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("app", s.config.AppName)
	endpoint.RawQuery = query.Encode()

	headers := http.Header{}
	if s.config.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(s.config.Username + ":" + s.config.Password))
		headers.Set("Authorization", "Basic "+auth)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("control-plane dial failed: %w", err)
	}

	return &wsEventConn{conn: conn}, nil
}

type wsEventConn struct {
	conn *websocket.Conn
}

// ReadEvent returns the next parseable event. Malformed messages are
// skipped at the point of parsing; only transport errors surface, so a
// garbage frame never costs the connection.
func (c *wsEventConn) ReadEvent() (Event, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return Event{}, err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		return ev, nil
	}
}

func (c *wsEventConn) Close() error {
	return c.conn.Close()
}
