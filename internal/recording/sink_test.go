package recording

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/chrisej001/voice-agent/internal/audio"
)

// memoryBlobStore collects uploads in memory for assertions
type memoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  bool
	puts  int
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{blobs: make(map[string][]byte)}
}

func (m *memoryBlobStore) Put(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.fail {
		return errors.New("bucket unavailable")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[name] = cp
	return nil
}

func (m *memoryBlobStore) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[name]
	return data, ok
}

func (m *memoryBlobStore) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFlushRawUploadsBothDirections(t *testing.T) {
	store := newMemoryBlobStore()
	sink := NewSink(store, Config{Format: FormatRaw}, testLogger(), nil)

	inbound := []byte("ABC")
	outbound := []byte("XY")
	sink.Flush(context.Background(), "sess-1", inbound, outbound)

	got, ok := store.get("sess-1-in")
	if !ok {
		t.Fatal("Inbound blob missing")
	}
	if !bytes.Equal(got, inbound) {
		t.Errorf("Inbound blob mismatch: got %q", got)
	}

	got, ok = store.get("sess-1-out")
	if !ok {
		t.Fatal("Outbound blob missing")
	}
	if !bytes.Equal(got, outbound) {
		t.Errorf("Outbound blob mismatch: got %q", got)
	}
}

func TestFlushSkipsEmptyDirections(t *testing.T) {
	store := newMemoryBlobStore()
	sink := NewSink(store, Config{Format: FormatRaw}, testLogger(), nil)

	sink.Flush(context.Background(), "sess-2", []byte("only-in"), nil)

	if store.putCount() != 1 {
		t.Errorf("Expected exactly 1 upload, got %d", store.putCount())
	}
	if _, ok := store.get("sess-2-out"); ok {
		t.Error("Empty outbound direction must not be uploaded")
	}
}

func TestFlushSwallowsUploadFailure(t *testing.T) {
	store := newMemoryBlobStore()
	store.fail = true
	sink := NewSink(store, Config{Format: FormatRaw}, testLogger(), nil)

	// Must not panic and must not retry
	sink.Flush(context.Background(), "sess-3", []byte("in"), []byte("out"))

	if store.putCount() != 2 {
		t.Errorf("Expected one attempt per direction, got %d", store.putCount())
	}
}

func TestFlushWAVWrapsPCM(t *testing.T) {
	store := newMemoryBlobStore()
	sink := NewSink(store, Config{
		Format:     FormatWAV,
		SampleRate: 8000,
		Channels:   1,
		BitDepth:   16,
	}, testLogger(), nil)

	pcm := bytes.Repeat([]byte{0x01, 0x00}, 100)
	sink.Flush(context.Background(), "sess-4", pcm, nil)

	got, ok := store.get("sess-4-in.wav")
	if !ok {
		t.Fatal("WAV inbound blob missing")
	}
	if err := audio.ValidateWAV(got); err != nil {
		t.Errorf("Uploaded blob is not valid WAV: %v", err)
	}
	if !bytes.Equal(got[44:], pcm) {
		t.Error("WAV payload does not match captured PCM")
	}
}

func TestBlobName(t *testing.T) {
	tests := []struct {
		sessionID string
		direction string
		format    string
		want      string
	}{
		{"s1", "in", FormatRaw, "s1-in"},
		{"s1", "out", FormatRaw, "s1-out"},
		{"s1", "in", FormatWAV, "s1-in.wav"},
	}

	for _, tt := range tests {
		if got := BlobName(tt.sessionID, tt.direction, tt.format); got != tt.want {
			t.Errorf("BlobName(%s,%s,%s) = %s, want %s", tt.sessionID, tt.direction, tt.format, got, tt.want)
		}
	}
}
