package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Speech    SpeechConfig    `yaml:"speech"`
	Control   ControlConfig   `yaml:"control"`
	Storage   StorageConfig   `yaml:"storage"`
	Recording RecordingConfig `yaml:"recording"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains the inbound HTTP/websocket server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
}

// AudioConfig contains the media format negotiated with the call-control system
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// SpeechConfig contains the streaming speech endpoint configuration
type SpeechConfig struct {
	URL             string `yaml:"url"`
	APIKey          string `yaml:"api_key"`
	Voice           string `yaml:"voice"`
	Instructions    string `yaml:"instructions"`
	ConnectTimeout  int    `yaml:"connect_timeout"`   // seconds
	PreConnectQueue int    `yaml:"pre_connect_queue"` // frames buffered before the connection opens
}

// ControlConfig contains the call-control event stream configuration
type ControlConfig struct {
	URL            string `yaml:"url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	AppName        string `yaml:"app_name"`
	ReconnectDelay int    `yaml:"reconnect_delay"` // seconds
	MediaURL       string `yaml:"media_url"`       // websocket URL the PBX streams call media to
}

// StorageConfig contains the blob store and session record store configuration
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"` // S3-compatible endpoint, empty for AWS
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	RESTURL   string `yaml:"rest_url"`
	RESTKey   string `yaml:"rest_key"`
	Table     string `yaml:"table"`
}

// RecordingConfig contains recording capture configuration
type RecordingConfig struct {
	Format string `yaml:"format"` // "raw" or "wav"
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills optional fields that have sensible defaults
func (c *Config) applyDefaults() {
	if c.Server.BindAddress == "" {
		c.Server.BindAddress = "0.0.0.0"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 8000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.BitDepth == 0 {
		c.Audio.BitDepth = 16
	}
	if c.Speech.ConnectTimeout == 0 {
		c.Speech.ConnectTimeout = 10
	}
	if c.Speech.PreConnectQueue == 0 {
		c.Speech.PreConnectQueue = 32
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = "alloy"
	}
	if c.Control.ReconnectDelay == 0 {
		c.Control.ReconnectDelay = 5
	}
	if c.Storage.Table == "" {
		c.Storage.Table = "call_sessions"
	}
	if c.Recording.Format == "" {
		c.Recording.Format = "raw"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}

	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 8000 or 16000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates speech endpoint configuration
func (s *SpeechConfig) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if s.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if s.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", s.ConnectTimeout)
	}

	if s.PreConnectQueue < 1 {
		return fmt.Errorf("pre_connect_queue must be at least 1 frame, got %d", s.PreConnectQueue)
	}

	return nil
}

// Validate validates call-control configuration
func (c *ControlConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if c.AppName == "" {
		return fmt.Errorf("app_name cannot be empty")
	}

	if c.ReconnectDelay < 1 {
		return fmt.Errorf("reconnect_delay must be at least 1 second, got %d", c.ReconnectDelay)
	}

	if c.MediaURL == "" {
		return fmt.Errorf("media_url cannot be empty")
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}

	if s.RESTURL == "" {
		return fmt.Errorf("rest_url cannot be empty")
	}

	if s.RESTKey == "" {
		return fmt.Errorf("rest_key cannot be empty")
	}

	if s.Table == "" {
		return fmt.Errorf("table cannot be empty")
	}

	return nil
}

// Validate validates recording configuration
func (r *RecordingConfig) Validate() error {
	validFormats := map[string]bool{"raw": true, "wav": true}
	if !validFormats[r.Format] {
		return fmt.Errorf("format must be 'raw' or 'wav', got '%s'", r.Format)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetConnectTimeout returns the speech connect timeout as a time.Duration
func (s *SpeechConfig) GetConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeout) * time.Second
}

// GetReconnectDelay returns the control-plane reconnect delay as a time.Duration
func (c *ControlConfig) GetReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelay) * time.Second
}
