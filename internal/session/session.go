package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status describes the lifecycle state of a call session
type Status string

const (
	// StatusOngoing marks a session whose call is still being relayed
	StatusOngoing Status = "ongoing"
	// StatusCompleted marks a finalized session; the transition is one-way
	StatusCompleted Status = "completed"
)

// DefaultHospitalID is used when the call-control system supplies no tenant context
const DefaultHospitalID = "default"

// Session holds the per-call state: identity, tenant context, and the two
// directional audio buffers captured while the call is relayed.
type Session struct {
	ID         string
	Caller     string
	HospitalID string

	StartTime    time.Time
	LastActivity time.Time

	status   Status
	inbound  [][]byte // caller -> speech endpoint, arrival order
	outbound [][]byte // speech endpoint -> caller, arrival order

	finalized bool
	mu        sync.Mutex
}

// newSession creates an ongoing session with a fresh identifier
func newSession(caller, hospitalID string) *Session {
	if hospitalID == "" {
		hospitalID = DefaultHospitalID
	}

	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		Caller:       caller,
		HospitalID:   hospitalID,
		StartTime:    now,
		LastActivity: now,
		status:       StatusOngoing,
	}
	return s
}

// Status returns the current lifecycle state
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AppendInbound records one caller-side audio frame. Frames arriving after
// finalize are silently dropped.
func (s *Session) AppendInbound(frame []byte) {
	s.append(&s.inbound, frame)
}

// AppendOutbound records one speech-endpoint-side audio frame. Frames arriving
// after finalize are silently dropped.
func (s *Session) AppendOutbound(frame []byte) {
	s.append(&s.outbound, frame)
}

func (s *Session) append(buf *[][]byte, frame []byte) {
	if len(frame) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return
	}

	// The transport reuses its read buffer, so the frame is copied
	cp := make([]byte, len(frame))
	copy(cp, frame)
	*buf = append(*buf, cp)
	s.LastActivity = time.Now()
}

// Finalize concatenates both directions in arrival order, releases the
// buffers, and flips the session to completed. It is idempotent: only the
// first call returns the captured audio and first=true; later calls return
// empty blobs. Both teardown paths of a call may race into this.
func (s *Session) Finalize() (inbound, outbound []byte, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return nil, nil, false
	}
	s.finalized = true
	s.status = StatusCompleted

	inbound = concat(s.inbound)
	outbound = concat(s.outbound)
	s.inbound = nil
	s.outbound = nil

	return inbound, outbound, true
}

// FrameCounts returns the number of frames buffered per direction
func (s *Session) FrameCounts() (inbound, outbound int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inbound), len(s.outbound)
}

// concat joins frames into one contiguous byte sequence, preserving order
func concat(frames [][]byte) []byte {
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	if total == 0 {
		return nil
	}

	out := make([]byte, 0, total)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// Info is a read-only snapshot of a session for monitoring APIs
type Info struct {
	ID             string        `json:"session_id"`
	Caller         string        `json:"caller"`
	HospitalID     string        `json:"hospital_id"`
	Status         Status        `json:"status"`
	StartTime      time.Time     `json:"start_time"`
	LastActivity   time.Time     `json:"last_activity"`
	Duration       time.Duration `json:"duration"`
	InboundFrames  int           `json:"inbound_frames"`
	OutboundFrames int           `json:"outbound_frames"`
}

// GetInfo returns a monitoring snapshot of the session
func (s *Session) GetInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:             s.ID,
		Caller:         s.Caller,
		HospitalID:     s.HospitalID,
		Status:         s.status,
		StartTime:      s.StartTime,
		LastActivity:   s.LastActivity,
		Duration:       time.Since(s.StartTime),
		InboundFrames:  len(s.inbound),
		OutboundFrames: len(s.outbound),
	}
}
