// Package storage provides the blob and record persistence collaborators.
// Recordings go to an S3-compatible object store; structured call session
// records go to a PostgREST-style HTTP API.
package storage
