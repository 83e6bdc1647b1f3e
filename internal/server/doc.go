// Package server implements the inbound HTTP surface: the per-call media
// stream endpoint plus monitoring and management endpoints.
package server
