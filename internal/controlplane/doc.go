// Package controlplane maintains the long-lived event-stream connection to
// the call-control system, drives per-call setup commands, and reconnects
// with a fixed delay forever. It owns no call state.
package controlplane
