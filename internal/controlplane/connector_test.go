package controlplane

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedConn yields queued events, then blocks until closed
type scriptedConn struct {
	events chan Event
	closed chan struct{}
	once   sync.Once
}

func newScriptedConn(events ...Event) *scriptedConn {
	c := &scriptedConn{
		events: make(chan Event, len(events)),
		closed: make(chan struct{}),
	}
	for _, ev := range events {
		c.events <- ev
	}
	return c
}

func (c *scriptedConn) ReadEvent() (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.closed:
		return Event{}, errors.New("connection closed")
	}
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// scriptedSource fails a fixed number of dials, then hands out connections
type scriptedSource struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*scriptedConn
}

func (s *scriptedSource) Dial(ctx context.Context) (EventConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.dials <= s.failures {
		return nil, errors.New("dial refused")
	}
	conn := newScriptedConn()
	s.conns = append(s.conns, conn)
	return conn, nil
}

func (s *scriptedSource) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// recordingCommander captures the command sequence per call
type recordingCommander struct {
	mu       sync.Mutex
	commands []string
}

func (r *recordingCommander) record(cmd, callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd+":"+callID)
}

func (r *recordingCommander) Answer(ctx context.Context, callID string) error {
	r.record("answer", callID)
	return nil
}

func (r *recordingCommander) StopPlayback(ctx context.Context, callID string) error {
	r.record("stop-playback", callID)
	return nil
}

func (r *recordingCommander) StartMediaStream(ctx context.Context, callID, caller, hospitalID string) error {
	r.record("start-stream", callID)
	return nil
}

func (r *recordingCommander) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.commands))
	copy(out, r.commands)
	return out
}

// recordingEnder captures ExpectCall and EndCall signals
type recordingEnder struct {
	mu       sync.Mutex
	ended    []string
	expected []Event
}

func (r *recordingEnder) ExpectCall(callID, caller, hospitalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expected = append(r.expected, Event{CallID: callID, Caller: caller, HospitalID: hospitalID})
}

func (r *recordingEnder) EndCall(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, callID)
	return true
}

func (r *recordingEnder) endedCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ended))
	copy(out, r.ended)
	return out
}

func (r *recordingEnder) expectedCalls() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.expected))
	copy(out, r.expected)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestReconnectAfterConsecutiveFailures(t *testing.T) {
	source := &scriptedSource{failures: 3}
	connector := NewConnector(source, &recordingCommander{}, &recordingEnder{}, 10*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		connector.Run(ctx)
		close(done)
	}()

	// N failures are followed by exactly one more dial, which succeeds
	waitFor(t, "successful connect", func() bool { return source.dialCount() == 4 })

	// The live connection must not trigger further dials
	time.Sleep(50 * time.Millisecond)
	if got := source.dialCount(); got != 4 {
		t.Errorf("Dial count = %d, want exactly 4 (3 failures + 1 success)", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestReconnectAfterMidStreamDisconnect(t *testing.T) {
	source := &scriptedSource{}
	connector := NewConnector(source, &recordingCommander{}, &recordingEnder{}, 10*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go connector.Run(ctx)

	waitFor(t, "first connect", func() bool { return source.dialCount() == 1 })

	source.mu.Lock()
	first := source.conns[0]
	source.mu.Unlock()
	first.Close()

	waitFor(t, "reconnect after disconnect", func() bool { return source.dialCount() == 2 })
}

func TestNewCallDrivesSetupSequence(t *testing.T) {
	commander := &recordingCommander{}
	ender := &recordingEnder{}
	source := &scriptedSource{}
	connector := NewConnector(source, commander, ender, 10*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go connector.Run(ctx)

	waitFor(t, "connect", func() bool { return source.dialCount() == 1 })
	source.mu.Lock()
	conn := source.conns[0]
	source.mu.Unlock()

	conn.events <- Event{Type: EventNewCall, CallID: "call-7", Caller: "+15550007777", HospitalID: "hosp-4"}

	waitFor(t, "setup sequence", func() bool { return len(commander.sequence()) == 3 })

	want := []string{"answer:call-7", "stop-playback:call-7", "start-stream:call-7"}
	got := commander.sequence()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Command %d = %s, want %s", i, got[i], want[i])
		}
	}

	// The event's identity must reach the bridge before the media arrives
	expected := ender.expectedCalls()
	if len(expected) != 1 {
		t.Fatalf("ExpectCall invocations = %d, want 1", len(expected))
	}
	if expected[0].CallID != "call-7" || expected[0].Caller != "+15550007777" || expected[0].HospitalID != "hosp-4" {
		t.Errorf("Registered identity = %+v", expected[0])
	}
}

func TestCallEndSignalsBridge(t *testing.T) {
	ender := &recordingEnder{}
	source := &scriptedSource{}
	connector := NewConnector(source, &recordingCommander{}, ender, 10*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go connector.Run(ctx)

	waitFor(t, "connect", func() bool { return source.dialCount() == 1 })
	source.mu.Lock()
	conn := source.conns[0]
	source.mu.Unlock()

	conn.events <- Event{Type: EventCallEnd, CallID: "call-8"}

	waitFor(t, "end-call signal", func() bool {
		ended := ender.endedCalls()
		return len(ended) == 1 && ended[0] == "call-8"
	})
}

func TestUnknownEventsIgnored(t *testing.T) {
	commander := &recordingCommander{}
	ender := &recordingEnder{}
	source := &scriptedSource{}
	connector := NewConnector(source, commander, ender, 10*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go connector.Run(ctx)

	waitFor(t, "connect", func() bool { return source.dialCount() == 1 })
	source.mu.Lock()
	conn := source.conns[0]
	source.mu.Unlock()

	conn.events <- Event{Type: "channel-var-set", CallID: "call-9"}
	conn.events <- Event{Type: EventDTMF, CallID: "call-9", Digit: "4"}
	conn.events <- Event{Type: EventCallEnd, CallID: "call-9"}

	waitFor(t, "end-call after ignored events", func() bool { return len(ender.endedCalls()) == 1 })

	if cmds := commander.sequence(); len(cmds) != 0 {
		t.Errorf("Unexpected commands issued: %v", cmds)
	}
}
