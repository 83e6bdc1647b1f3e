package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Finalizer receives sessions the registry sweeps out after inactivity,
// so their captured audio is still persisted. The bridge passes its normal
// teardown path here.
type Finalizer func(s *Session)

// Registry owns every live session, keyed by session ID. Each session is
// mutated only through its own methods; the registry itself only tracks
// membership.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	timeout  time.Duration

	finalizer Finalizer

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewRegistry creates a session registry. Sessions idle longer than timeout
// are handed to the finalizer by a background sweeper; a zero timeout
// disables sweeping.
func NewRegistry(logger *slog.Logger, timeout time.Duration, finalizer Finalizer) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		sessions:  make(map[string]*Session),
		logger:    logger,
		timeout:   timeout,
		finalizer: finalizer,
		ctx:       ctx,
		cancel:    cancel,
		cleanup:   make(chan struct{}),
	}

	go r.sweepLoop()

	return r
}

// Create registers a new ongoing session and returns it
func (r *Registry) Create(caller, hospitalID string) *Session {
	s := newSession(caller, hospitalID)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("Created call session",
		slog.String("session_id", s.ID),
		slog.String("caller", s.Caller),
		slog.String("hospital_id", s.HospitalID),
	)

	return s
}

// Get retrieves a session by ID
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[sessionID]
	return s, exists
}

// Remove drops a session from the registry. The caller is responsible for
// having finalized it; Remove does not touch session state.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return false
	}

	delete(r.sessions, sessionID)

	r.logger.Info("Removed call session",
		slog.String("session_id", sessionID),
		slog.Duration("duration", time.Since(s.StartTime)),
	)

	return true
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns monitoring info for all live sessions
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.GetInfo())
	}
	return infos
}

// Stop halts the sweeper. Live sessions are left to their owning bridges.
func (r *Registry) Stop() {
	r.cancel()
	<-r.cleanup

	r.logger.Info("Session registry stopped",
		slog.Int("remaining_sessions", r.Count()),
	)
}

// sweepLoop periodically finalizes sessions whose call went silent without
// a clean close on either side
func (r *Registry) sweepLoop() {
	defer close(r.cleanup)

	if r.timeout <= 0 {
		<-r.ctx.Done()
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweepStale()
		}
	}
}

func (r *Registry) sweepStale() {
	now := time.Now()

	var stale []*Session
	r.mu.RLock()
	for _, s := range r.sessions {
		info := s.GetInfo()
		if now.Sub(info.LastActivity) > r.timeout {
			stale = append(stale, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range stale {
		r.logger.Warn("Sweeping stale session",
			slog.String("session_id", s.ID),
			slog.String("caller", s.Caller),
		)

		if r.finalizer != nil {
			r.finalizer(s)
		}
		r.Remove(s.ID)
	}
}
