package controlplane

import (
	"context"
	"log/slog"
	"time"

	"github.com/chrisej001/voice-agent/internal/metrics"
)

// CallCommander is the command surface the connector drives on a new call.
// Satisfied by *Commander.
type CallCommander interface {
	Answer(ctx context.Context, callID string) error
	StopPlayback(ctx context.Context, callID string) error
	StartMediaStream(ctx context.Context, callID, caller, hospitalID string) error
}

// CallBridge is the bridge surface the connector drives: registering the
// identity of a call whose media stream is about to arrive, and tearing a
// bridged call down. Satisfied by *bridge.Bridge.
type CallBridge interface {
	ExpectCall(callID, caller, hospitalID string)
	EndCall(callID string) bool
}

// Connector maintains the single long-lived event-stream connection to the
// call-control system. It holds no per-call state: a connector outage only
// stops new calls from being accepted, never touches live bridges.
type Connector struct {
	source    Source
	commander CallCommander
	calls     CallBridge
	delay     time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewConnector creates a control-plane connector
func NewConnector(source Source, commander CallCommander, calls CallBridge, delay time.Duration, logger *slog.Logger, m *metrics.Metrics) *Connector {
	if delay <= 0 {
		delay = 5 * time.Second
	}

	return &Connector{
		source:    source,
		commander: commander,
		calls:     calls,
		delay:     delay,
		logger:    logger,
		metrics:   m,
	}
}

// Run dials the event stream and consumes it until ctx is cancelled.
// Every failure, dial or mid-stream, is followed by the fixed reconnect
// delay and another attempt; there is no attempt limit.
func (c *Connector) Run(ctx context.Context) {
	first := true

	for {
		if !first {
			if c.metrics != nil {
				c.metrics.ControlReconnects.Inc()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.delay):
			}
		}
		first = false

		conn, err := c.source.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Control-plane connect failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", c.delay),
			)
			continue
		}

		if c.metrics != nil {
			c.metrics.ControlConnects.Inc()
		}
		c.logger.Info("Control-plane connected")

		c.consume(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Control-plane disconnected",
			slog.Duration("retry_in", c.delay),
		)
	}
}

// consume reads events until the connection dies or ctx is cancelled
func (c *Connector) consume(ctx context.Context, conn EventConn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			return
		}
		c.dispatch(ctx, ev)
	}
}

// dispatch routes one event. New-call setup runs on its own goroutine so a
// slow command round-trip never stalls the event stream.
func (c *Connector) dispatch(ctx context.Context, ev Event) {
	if c.metrics != nil {
		c.metrics.RecordControlEvent(ev.Type)
	}

	switch ev.Type {
	case EventNewCall:
		c.logger.Info("New call",
			slog.String("call_id", ev.CallID),
			slog.String("caller", ev.Caller),
			slog.String("hospital_id", ev.HospitalID),
		)
		// Hand the event's identity to the bridge before the media stream
		// can possibly arrive
		c.calls.ExpectCall(ev.CallID, ev.Caller, ev.HospitalID)
		go c.acceptCall(ctx, ev)

	case EventCallEnd:
		c.logger.Info("Call ended by control plane",
			slog.String("call_id", ev.CallID),
		)
		if !c.calls.EndCall(ev.CallID) {
			c.logger.Debug("Call-end for unknown call",
				slog.String("call_id", ev.CallID),
			)
		}

	case EventDTMF:
		c.logger.Debug("DTMF digit",
			slog.String("call_id", ev.CallID),
			slog.String("digit", ev.Digit),
		)

	default:
		c.logger.Debug("Ignoring control-plane event",
			slog.String("type", ev.Type),
		)
	}
}

// acceptCall answers the call, cuts any hold music, and asks the PBX to open
// the media stream toward the bridge. A failure at any step abandons the
// call; the PBX will hang it up on its own timeout.
func (c *Connector) acceptCall(ctx context.Context, ev Event) {
	cmdCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := c.commander.Answer(cmdCtx, ev.CallID); err != nil {
		c.logger.Error("Failed to answer call",
			slog.String("call_id", ev.CallID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.commander.StopPlayback(cmdCtx, ev.CallID); err != nil {
		// Hold music may simply not be playing
		c.logger.Debug("Stop-playback failed",
			slog.String("call_id", ev.CallID),
			slog.String("error", err.Error()),
		)
	}

	if err := c.commander.StartMediaStream(cmdCtx, ev.CallID, ev.Caller, ev.HospitalID); err != nil {
		c.logger.Error("Failed to start media stream",
			slog.String("call_id", ev.CallID),
			slog.String("error", err.Error()),
		)
		return
	}

	c.logger.Info("Media stream requested",
		slog.String("call_id", ev.CallID),
	)
}
