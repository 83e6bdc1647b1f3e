// Package config provides configuration loading and validation for the voice agent service.
// It handles YAML-based configuration with struct validation covering the media server,
// speech endpoint, call-control connection, and storage collaborators.
package config
