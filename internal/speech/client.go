package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrisej001/voice-agent/internal/metrics"
)

// Handler receives the client's asynchronous callbacks. OnAudio is invoked
// synchronously from the read loop with one decoded audio frame; OnClose is
// invoked at most once when the connection errors or closes.
type Handler interface {
	OnAudio(frame []byte)
	OnClose(err error)
}

// Config contains speech endpoint client configuration
type Config struct {
	URL             string
	APIKey          string
	Voice           string
	Instructions    string
	ConnectTimeout  time.Duration
	PreConnectQueue int
}

// envelope is the wire format exchanged with the speech endpoint
type envelope struct {
	Type    string `json:"type"`
	Voice   string `json:"voice,omitempty"`
	Content string `json:"content,omitempty"`
	Audio   string `json:"audio,omitempty"`
}

// Wire message types understood by the speech endpoint
const (
	typeSystemPrompt     = "system.prompt"
	typeInputAudioAppend = "input_audio_buffer.append"
	typeInputAudioCommit = "input_audio_buffer.commit"
	typeResponseCreate   = "response.create"
	typeAudioDelta       = "response.audio.delta"
)

// Client owns one streaming connection to the speech endpoint for the
// lifetime of a single call session.
//
// Frames sent before the connection opens go into a bounded pre-connect
// queue that is flushed on connect; when the queue is full the oldest frame
// is dropped and counted. This is the documented choice for the
// frame-before-open race: a short head-of-call gap loses the least audio
// when the drop happens at the stale end of the queue.
type Client struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	handler Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	pending [][]byte
	dropped uint64
	closed  bool

	closeOnce  sync.Once
	notifyOnce sync.Once
	readerDone chan struct{}
}

// NewClient creates a speech endpoint client for one session
func NewClient(config Config, handler Handler, logger *slog.Logger, m *metrics.Metrics) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.PreConnectQueue <= 0 {
		config.PreConnectQueue = 32
	}

	return &Client{
		config:     config,
		logger:     logger,
		metrics:    m,
		handler:    handler,
		readerDone: make(chan struct{}),
	}
}

// Connect dials the speech endpoint, sends the persona initialization
// envelope, flushes any pre-connect frames, and starts the read loop.
// The dial is bounded by the configured connect timeout.
func (c *Client) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.config.APIKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.ConnectTimeout,
	}

	conn, resp, err := dialer.DialContext(dialCtx, c.config.URL, headers)
	if err != nil {
		if c.metrics != nil {
			c.metrics.SpeechConnectFailures.Inc()
		}
		if resp != nil {
			return fmt.Errorf("speech endpoint dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("speech endpoint dial failed: %w", err)
	}

	init := envelope{
		Type:    typeSystemPrompt,
		Voice:   c.config.Voice,
		Content: c.config.Instructions,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("speech client already closed")
	}
	c.conn = conn

	if err := conn.WriteJSON(init); err != nil {
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		if c.metrics != nil {
			c.metrics.SpeechConnectFailures.Inc()
		}
		return fmt.Errorf("failed to send initialization envelope: %w", err)
	}

	// Flush frames that arrived while the dial was in flight
	pending := c.pending
	c.pending = nil
	for _, frame := range pending {
		if err := c.writeAudioLocked(frame); err != nil {
			c.logger.Warn("Failed to flush pre-connect frame", slog.String("error", err.Error()))
			break
		}
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SpeechConnects.Inc()
	}

	c.logger.Info("Speech endpoint connected",
		slog.String("url", c.config.URL),
		slog.String("voice", c.config.Voice),
		slog.Int("flushed_frames", len(pending)),
	)

	go c.readLoop(conn)

	return nil
}

// SendAudio forwards one caller audio frame to the speech endpoint.
// Before the connection is open the frame is queued (bounded); after close
// it is silently dropped.
func (c *Client) SendAudio(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	if c.conn == nil {
		if len(c.pending) >= c.config.PreConnectQueue {
			// Drop the oldest frame; the freshest audio is the most useful
			c.pending = c.pending[1:]
			c.dropped++
			if c.metrics != nil {
				c.metrics.FramesDropped.Inc()
			}
		}
		cp := make([]byte, len(frame))
		copy(cp, frame)
		c.pending = append(c.pending, cp)
		if c.metrics != nil {
			c.metrics.FramesPreQueued.Inc()
		}
		return nil
	}

	return c.writeAudioLocked(frame)
}

// writeAudioLocked sends one append envelope; c.mu must be held
func (c *Client) writeAudioLocked(frame []byte) error {
	return c.conn.WriteJSON(envelope{
		Type:  typeInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(frame),
	})
}

// Finish signals end-of-call: a commit envelope followed by a response
// request, letting the endpoint flush any trailing reply, then an
// unconditional close. Send failures do not prevent the close.
func (c *Client) Finish() {
	c.mu.Lock()
	if c.conn != nil && !c.closed {
		if err := c.conn.WriteJSON(envelope{Type: typeInputAudioCommit}); err != nil {
			c.logger.Debug("Commit envelope send failed", slog.String("error", err.Error()))
		} else if err := c.conn.WriteJSON(envelope{Type: typeResponseCreate}); err != nil {
			c.logger.Debug("Response-create envelope send failed", slog.String("error", err.Error()))
		}
	}
	c.mu.Unlock()

	c.Close()
}

// Close tears down the connection. Idempotent; does not invoke the handler.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.pending = nil
		c.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
	})
}

// DroppedFrames returns the number of frames dropped from the pre-connect queue
func (c *Client) DroppedFrames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// readLoop consumes envelopes from the endpoint until the connection dies
func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.readerDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			deliberate := c.closed
			c.mu.Unlock()

			if !deliberate {
				c.logger.Warn("Speech endpoint connection lost", slog.String("error", err.Error()))
			}
			c.notifyOnce.Do(func() { c.handler.OnClose(err) })
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage parses one envelope defensively: anything malformed or of
// an unknown type is ignored, never fatal to the connection
func (c *Client) handleMessage(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		if c.metrics != nil {
			c.metrics.SpeechIgnoredMessages.Inc()
		}
		c.logger.Debug("Ignoring non-JSON message from speech endpoint",
			slog.Int("size", len(message)),
		)
		return
	}

	switch env.Type {
	case typeAudioDelta:
		frame, err := base64.StdEncoding.DecodeString(env.Audio)
		if err != nil || len(frame) == 0 {
			if c.metrics != nil {
				c.metrics.SpeechIgnoredMessages.Inc()
			}
			c.logger.Debug("Ignoring audio delta with bad payload")
			return
		}
		c.handler.OnAudio(frame)

	default:
		// Transcripts and control messages are not relayed
		c.logger.Debug("Ignoring speech endpoint message",
			slog.String("type", env.Type),
		)
	}
}
