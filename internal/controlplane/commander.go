package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chrisej001/voice-agent/internal/config"
)

// Commander issues per-call commands back to the call-control system over
// its REST surface. The REST base is derived from the event-stream URL by
// swapping the websocket scheme for HTTP.
type Commander struct {
	baseURL  string
	username string
	password string
	mediaURL string
	client   *http.Client
	logger   *slog.Logger
}

// NewCommander creates a command client for the configured call-control system
func NewCommander(cfg config.ControlConfig, logger *slog.Logger) *Commander {
	return &Commander{
		baseURL:  restBase(cfg.URL),
		username: cfg.Username,
		password: cfg.Password,
		mediaURL: cfg.MediaURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// restBase converts the websocket event URL into the REST command base
func restBase(eventURL string) string {
	u, err := url.Parse(eventURL)
	if err != nil {
		return eventURL
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/events")
}

// Answer accepts the incoming call
func (c *Commander) Answer(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPost, "/calls/"+url.PathEscape(callID)+"/answer", nil)
}

// StopPlayback stops any hold-music playback on the call
func (c *Commander) StopPlayback(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodDelete, "/calls/"+url.PathEscape(callID)+"/playback", nil)
}

// StartMediaStream instructs the call-control system to open the per-call
// media connection toward the bridge. Caller and tenant metadata ride along
// so the PBX can echo them in the stream's start frame.
func (c *Commander) StartMediaStream(ctx context.Context, callID, caller, hospitalID string) error {
	body := map[string]string{"url": c.mediaURL}
	if caller != "" {
		body["caller"] = caller
	}
	if hospitalID != "" {
		body["hospital_id"] = hospitalID
	}
	return c.do(ctx, http.MethodPost, "/calls/"+url.PathEscape(callID)+"/stream", body)
}

func (c *Commander) do(ctx context.Context, method, path string, body any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode command body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build command request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("command request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("command %s %s returned HTTP %d", method, path, resp.StatusCode)
	}

	c.logger.Debug("Call-control command sent",
		slog.String("method", method),
		slog.String("path", path),
	)

	return nil
}
