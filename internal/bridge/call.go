package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrisej001/voice-agent/internal/session"
	"github.com/chrisej001/voice-agent/internal/storage"
)

// State is the lifecycle state of one bridged call
type State int

const (
	// StateAwaitingStream: media connection open, start metadata not yet seen
	StateAwaitingStream State = iota
	// StateStreaming: session established, audio relayed in both directions
	StateStreaming
	// StateClosing: teardown started, no further frames accepted
	StateClosing
	// StateClosed: both legs closed, session finalized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStream:
		return "awaiting_stream"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// startFrame is the JSON metadata frame opening a media stream
type startFrame struct {
	Type       string `json:"type"`
	CallID     string `json:"call_id"`
	Caller     string `json:"caller"`
	HospitalID string `json:"hospital_id"`
}

// Call is one live bridged call: the media connection on one side, the
// speech endpoint client on the other, and the session capturing both
// directions in between.
type Call struct {
	bridge *Bridge
	conn   *websocket.Conn

	mu     sync.Mutex
	state  State
	callID string
	sess   *session.Session
	speech SpeechClient

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// readLoop consumes media frames until the connection dies, then tears the
// call down. Runs on the HTTP handler goroutine.
func (c *Call) readLoop() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.beginClose("media connection closed")
			return
		}

		switch msgType {
		case websocket.TextMessage:
			c.handleText(data)
		case websocket.BinaryMessage:
			c.handleAudio(data)
		}
	}
}

// handleText processes a JSON metadata frame. Only the start frame changes
// state; everything else is ignored.
func (c *Call) handleText(data []byte) {
	var frame startFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.bridge.logger.Debug("Ignoring malformed metadata frame",
			slog.Int("size", len(data)),
		)
		return
	}

	if frame.Type != "start" {
		c.bridge.logger.Debug("Ignoring metadata frame",
			slog.String("type", frame.Type),
		)
		return
	}

	c.mu.Lock()
	if c.state != StateAwaitingStream {
		c.mu.Unlock()
		c.bridge.logger.Warn("Duplicate start frame ignored",
			slog.String("call_id", frame.CallID),
		)
		return
	}
	c.promoteLocked(frame.CallID, frame.Caller, frame.HospitalID)
	c.mu.Unlock()
}

// handleAudio relays one caller audio frame. A binary frame before any start
// metadata promotes the call with default identity rather than dropping the
// caller's audio.
func (c *Call) handleAudio(data []byte) {
	c.mu.Lock()
	if c.state == StateAwaitingStream {
		c.bridge.logger.Warn("Audio before start frame, promoting with defaults")
		c.promoteLocked("", "", "")
	}
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	speechClient := c.speech
	c.mu.Unlock()

	sess.AppendInbound(data)
	if c.bridge.metrics != nil {
		c.bridge.metrics.RecordInboundFrame(len(data))
	}

	if err := speechClient.SendAudio(data); err != nil {
		c.bridge.logger.Warn("Failed to forward audio frame",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

// promoteLocked transitions AwaitingStream -> Streaming: creates the session,
// registers the call, inserts the session record, and starts the speech leg.
// c.mu must be held.
func (c *Call) promoteLocked(callID, caller, hospitalID string) {
	// Identity announced by the control plane fills whatever the start frame
	// left out
	if callID != "" {
		if p, ok := c.bridge.takePending(callID); ok {
			if caller == "" {
				caller = p.caller
			}
			if hospitalID == "" {
				hospitalID = p.hospitalID
			}
		}
	}

	c.sess = c.bridge.registry.Create(caller, hospitalID)
	if callID == "" {
		callID = c.sess.ID
	}
	c.callID = callID
	c.state = StateStreaming

	if c.bridge.metrics != nil {
		c.bridge.metrics.RecordSessionCreated()
	}

	c.speech = c.bridge.factory(c)
	c.bridge.register(callID, c)

	c.bridge.logger.Info("Call streaming",
		slog.String("call_id", callID),
		slog.String("session_id", c.sess.ID),
		slog.String("caller", c.sess.Caller),
		slog.String("hospital_id", c.sess.HospitalID),
	)

	if c.bridge.records != nil {
		rec := storage.SessionRecord{
			SessionID:  c.sess.ID,
			HospitalID: c.sess.HospitalID,
			Caller:     c.sess.Caller,
			Status:     string(session.StatusOngoing),
			StartedAt:  c.sess.StartTime,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := c.bridge.records.InsertSession(ctx, rec); err != nil {
				c.bridge.logger.Error("Failed to insert session record",
					slog.String("session_id", rec.SessionID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	// The speech leg dials concurrently; frames sent meanwhile are queued
	// inside the client
	speechClient := c.speech
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := speechClient.Connect(ctx); err != nil {
			c.bridge.logger.Error("Speech leg failed, ending call",
				slog.String("call_id", callID),
				slog.String("error", err.Error()),
			)
			c.beginClose("speech endpoint unavailable")
		}
	}()
}

// OnAudio relays one speech endpoint reply frame back to the caller.
// Invoked from the speech client's read loop.
func (c *Call) OnAudio(frame []byte) {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	c.mu.Unlock()

	sess.AppendOutbound(frame)
	if c.bridge.metrics != nil {
		c.bridge.metrics.RecordOutboundFrame(len(frame))
	}

	c.writeMu.Lock()
	err := c.conn.WriteMessage(websocket.BinaryMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.bridge.logger.Warn("Failed to relay reply frame",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		c.beginClose("media write failed")
	}
}

// OnClose runs teardown when the speech leg dies first
func (c *Call) OnClose(err error) {
	c.beginClose("speech connection closed")
}

// beginClose is the single teardown path for a call. Every trigger funnels
// here: media close, speech close, control-plane hangup, connect failure,
// inactivity sweep. Only the first caller does the work.
func (c *Call) beginClose(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosing
		sess := c.sess
		speechClient := c.speech
		callID := c.callID
		c.mu.Unlock()

		c.bridge.logger.Info("Closing call",
			slog.String("call_id", callID),
			slog.String("reason", reason),
		)

		if speechClient != nil {
			speechClient.Finish()
		}
		c.conn.Close()

		if sess != nil {
			c.bridge.persist(sess)
			c.bridge.registry.Remove(sess.ID)
		}
		if callID != "" {
			c.bridge.unregister(callID)
		}

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
	})
}

// CurrentState returns the call's lifecycle state
func (c *Call) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// session returns the call's session, nil before promotion
func (c *Call) session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}
