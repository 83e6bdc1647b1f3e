package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validConfig returns a configuration that passes validation
func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			BindAddress: "0.0.0.0",
		},
		Audio: AudioConfig{
			SampleRate: 8000,
			Channels:   1,
			BitDepth:   16,
		},
		Speech: SpeechConfig{
			URL:             "wss://api.example.com/v1/realtime",
			APIKey:          "test-key",
			Voice:           "alloy",
			Instructions:    "You are a polite hospital receptionist.",
			ConnectTimeout:  10,
			PreConnectQueue: 32,
		},
		Control: ControlConfig{
			URL:            "ws://pbx.example.com:8088/events",
			Username:       "agent",
			Password:       "secret",
			AppName:        "voice-agent",
			ReconnectDelay: 5,
			MediaURL:       "ws://relay.example.com:8080/stream",
		},
		Storage: StorageConfig{
			Region:    "us-east-1",
			AccessKey: "ak",
			SecretKey: "sk",
			Bucket:    "recordings",
			RESTURL:   "https://db.example.com",
			RESTKey:   "rest-key",
			Table:     "call_sessions",
		},
		Recording: RecordingConfig{
			Format: "raw",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
		},
		{
			name:        "missing speech url",
			mutate:      func(c *Config) { c.Speech.URL = "" },
			expectError: true,
		},
		{
			name:        "missing speech api key",
			mutate:      func(c *Config) { c.Speech.APIKey = "" },
			expectError: true,
		},
		{
			name:        "missing control app name",
			mutate:      func(c *Config) { c.Control.AppName = "" },
			expectError: true,
		},
		{
			name:        "missing media url",
			mutate:      func(c *Config) { c.Control.MediaURL = "" },
			expectError: true,
		},
		{
			name:        "missing storage bucket",
			mutate:      func(c *Config) { c.Storage.Bucket = "" },
			expectError: true,
		},
		{
			name:        "missing rest url",
			mutate:      func(c *Config) { c.Storage.RESTURL = "" },
			expectError: true,
		},
		{
			name:        "unsupported sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 44100 },
			expectError: true,
		},
		{
			name:        "stereo audio rejected",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
		},
		{
			name:        "invalid recording format",
			mutate:      func(c *Config) { c.Recording.Format = "mp3" },
			expectError: true,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
		{
			name:        "zero reconnect delay",
			mutate:      func(c *Config) { c.Control.ReconnectDelay = 0 },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadValidFile(t *testing.T) {
	content := `
server:
  port: 9090
speech:
  url: wss://api.example.com/v1/realtime
  api_key: test-key
control:
  url: ws://pbx.example.com:8088/events
  app_name: voice-agent
  media_url: ws://relay.example.com:9090/stream
storage:
  bucket: recordings
  rest_url: https://db.example.com
  rest_key: rest-key
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	// Defaults applied for omitted fields
	if cfg.Audio.SampleRate != 8000 {
		t.Errorf("Expected default sample rate 8000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Speech.PreConnectQueue != 32 {
		t.Errorf("Expected default pre-connect queue 32, got %d", cfg.Speech.PreConnectQueue)
	}
	if cfg.Control.GetReconnectDelay() != 5*time.Second {
		t.Errorf("Expected default reconnect delay 5s, got %v", cfg.Control.GetReconnectDelay())
	}
	if cfg.Recording.Format != "raw" {
		t.Errorf("Expected default recording format raw, got %s", cfg.Recording.Format)
	}
	if cfg.Storage.Table != "call_sessions" {
		t.Errorf("Expected default table call_sessions, got %s", cfg.Storage.Table)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not: valid"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoadMissingRequiredValues(t *testing.T) {
	// Speech API key omitted: startup must fail fast
	content := `
server:
  port: 9090
speech:
  url: wss://api.example.com/v1/realtime
control:
  url: ws://pbx.example.com:8088/events
  app_name: voice-agent
  media_url: ws://relay.example.com:9090/stream
storage:
  bucket: recordings
  rest_url: https://db.example.com
  rest_key: rest-key
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("Expected validation error for missing api_key, got nil")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := validConfig()

	if cfg.Speech.GetConnectTimeout() != 10*time.Second {
		t.Errorf("Expected connect timeout 10s, got %v", cfg.Speech.GetConnectTimeout())
	}
	if cfg.Control.GetReconnectDelay() != 5*time.Second {
		t.Errorf("Expected reconnect delay 5s, got %v", cfg.Control.GetReconnectDelay())
	}
}
