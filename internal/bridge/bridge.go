package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrisej001/voice-agent/internal/metrics"
	"github.com/chrisej001/voice-agent/internal/recording"
	"github.com/chrisej001/voice-agent/internal/session"
	"github.com/chrisej001/voice-agent/internal/speech"
	"github.com/chrisej001/voice-agent/internal/storage"
)

// SpeechClient is the per-call connection to the speech endpoint. Satisfied
// by *speech.Client; narrowed to an interface so tests can substitute one.
type SpeechClient interface {
	Connect(ctx context.Context) error
	SendAudio(frame []byte) error
	Finish()
	Close()
}

// SpeechFactory creates one speech client per call, delivering replies and
// close notification to the given handler
type SpeechFactory func(handler speech.Handler) SpeechClient

// Bridge accepts media streams from the call-control system and relays each
// one to a dedicated speech endpoint connection, capturing both directions
// into the call's session along the way.
type Bridge struct {
	registry *session.Registry
	sink     *recording.Sink
	records  storage.RecordStore
	factory  SpeechFactory
	logger   *slog.Logger
	metrics  *metrics.Metrics

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	calls   map[string]*Call
	pending map[string]pendingCall
}

// pendingCall is identity announced by the control plane for a call whose
// media stream has not arrived yet
type pendingCall struct {
	caller     string
	hospitalID string
	expires    time.Time
}

// Media normally follows the stream command within seconds; entries older
// than this belong to calls that never streamed
const pendingCallTTL = time.Minute

// NewBridge creates a media bridge
func NewBridge(registry *session.Registry, sink *recording.Sink, records storage.RecordStore, factory SpeechFactory, logger *slog.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		registry: registry,
		sink:     sink,
		records:  records,
		factory:  factory,
		logger:   logger,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Media connections come from the call-control system, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		calls:   make(map[string]*Call),
		pending: make(map[string]pendingCall),
	}
}

// ExpectCall registers caller and tenant identity from the control plane for
// a call whose media stream is about to arrive. The stream's start frame may
// omit or echo this metadata; either way the session keeps the identity.
func (b *Bridge) ExpectCall(callID, caller, hospitalID string) {
	if callID == "" {
		return
	}

	now := time.Now()
	b.mu.Lock()
	for id, p := range b.pending {
		if now.After(p.expires) {
			delete(b.pending, id)
		}
	}
	b.pending[callID] = pendingCall{
		caller:     caller,
		hospitalID: hospitalID,
		expires:    now.Add(pendingCallTTL),
	}
	b.mu.Unlock()
}

// takePending consumes the registered identity for a call, if any
func (b *Bridge) takePending(callID string) (pendingCall, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[callID]
	if !ok {
		return pendingCall{}, false
	}
	delete(b.pending, callID)
	if time.Now().After(p.expires) {
		return pendingCall{}, false
	}
	return p, true
}

// HandleStream upgrades one media connection and relays it until either side
// closes. Blocks for the lifetime of the call.
func (b *Bridge) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("Failed to upgrade media connection",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	call := &Call{
		bridge: b,
		conn:   conn,
		state:  StateAwaitingStream,
	}

	b.logger.Info("Media connection accepted", slog.String("remote", r.RemoteAddr))

	call.readLoop()
}

// EndCall closes the media and speech legs of a live call. Returns false if
// the call is unknown, which is normal when teardown already ran.
func (b *Bridge) EndCall(callID string) bool {
	b.mu.RLock()
	call, exists := b.calls[callID]
	b.mu.RUnlock()

	if !exists {
		return false
	}

	call.beginClose("control-plane hangup")
	return true
}

// FinalizeStale is the registry sweeper hook: it runs the normal teardown for
// a session whose call went silent without a close from either side
func (b *Bridge) FinalizeStale(s *session.Session) {
	b.mu.RLock()
	calls := make([]*Call, 0, len(b.calls))
	for _, call := range b.calls {
		calls = append(calls, call)
	}
	b.mu.RUnlock()

	// Session pointers are read through the call's own lock, outside the map
	// lock
	for _, call := range calls {
		if call.session() == s {
			call.beginClose("inactivity timeout")
			return
		}
	}

	// No live call owns the session; persist whatever was captured
	b.persist(s)
}

// CallCount returns the number of live calls
func (b *Bridge) CallCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.calls)
}

func (b *Bridge) register(callID string, call *Call) {
	b.mu.Lock()
	b.calls[callID] = call
	b.mu.Unlock()
}

func (b *Bridge) unregister(callID string) {
	b.mu.Lock()
	delete(b.calls, callID)
	b.mu.Unlock()
}

// persist runs the storage side of teardown for a finalized session: flush
// the recordings, then mark the session record completed. Storage failures
// never propagate; the call is already over.
func (b *Bridge) persist(s *session.Session) {
	inbound, outbound, first := s.Finalize()
	if !first {
		return
	}

	duration := time.Since(s.StartTime)
	if b.metrics != nil {
		b.metrics.RecordSessionFinalized(duration.Seconds())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b.sink.Flush(ctx, s.ID, inbound, outbound)

	if b.records != nil {
		err := b.records.UpdateSession(ctx, s.ID, map[string]any{
			"status":           string(session.StatusCompleted),
			"duration_seconds": int(duration.Seconds()),
		})
		if err != nil {
			b.logger.Error("Failed to mark session record completed",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	b.logger.Info("Call finalized",
		slog.String("session_id", s.ID),
		slog.String("caller", s.Caller),
		slog.Duration("duration", duration),
		slog.Int("inbound_bytes", len(inbound)),
		slog.Int("outbound_bytes", len(outbound)),
	)
}
