package recording

import (
	"context"
	"log/slog"
	"time"

	"github.com/chrisej001/voice-agent/internal/audio"
	"github.com/chrisej001/voice-agent/internal/metrics"
	"github.com/chrisej001/voice-agent/internal/storage"
)

// Format selects the container written for captured audio
const (
	FormatRaw = "raw" // exact byte concatenation of the captured frames
	FormatWAV = "wav" // raw PCM wrapped in a WAV container
)

// Config contains recording sink configuration
type Config struct {
	Format     string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Sink persists both audio directions of a finished session to the blob
// store. Upload failures are logged and swallowed: a lost recording must
// never fail call teardown.
type Sink struct {
	blobs   storage.BlobStore
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSink creates a recording sink writing to the given blob store
func NewSink(blobs storage.BlobStore, config Config, logger *slog.Logger, m *metrics.Metrics) *Sink {
	if config.Format == "" {
		config.Format = FormatRaw
	}

	return &Sink{
		blobs:   blobs,
		config:  config,
		logger:  logger,
		metrics: m,
	}
}

// Flush uploads the two directional blobs for a session, at most one
// attempt per direction. Empty directions are skipped. Never returns an
// error; the call teardown path must not depend on storage health.
func (s *Sink) Flush(ctx context.Context, sessionID string, inbound, outbound []byte) {
	start := time.Now()

	s.upload(ctx, sessionID, "in", inbound)
	s.upload(ctx, sessionID, "out", outbound)

	s.logger.Info("Recording flush finished",
		slog.String("session_id", sessionID),
		slog.Int("inbound_bytes", len(inbound)),
		slog.Int("outbound_bytes", len(outbound)),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// upload performs the single upload attempt for one direction
func (s *Sink) upload(ctx context.Context, sessionID, direction string, data []byte) {
	if len(data) == 0 {
		return
	}

	name := BlobName(sessionID, direction, s.config.Format)

	payload := data
	if s.config.Format == FormatWAV {
		encoded, err := audio.EncodeWAV(data, s.config.SampleRate, s.config.Channels, s.config.BitDepth)
		if err != nil {
			s.logger.Error("Failed to encode recording",
				slog.String("session_id", sessionID),
				slog.String("direction", direction),
				slog.String("error", err.Error()),
			)
			if s.metrics != nil {
				s.metrics.RecordUpload(0, err)
			}
			return
		}
		payload = encoded
	}

	err := s.blobs.Put(ctx, name, payload)
	if s.metrics != nil {
		s.metrics.RecordUpload(len(payload), err)
	}
	if err != nil {
		// Logged and swallowed; no retry
		s.logger.Error("Failed to upload recording",
			slog.String("session_id", sessionID),
			slog.String("blob", name),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Debug("Recording uploaded",
		slog.String("session_id", sessionID),
		slog.String("blob", name),
		slog.Int("size", len(payload)),
	)
}

// BlobName derives the deterministic blob name for one direction of a session
func BlobName(sessionID, direction, format string) string {
	name := sessionID + "-" + direction
	if format == FormatWAV {
		name += ".wav"
	}
	return name
}
