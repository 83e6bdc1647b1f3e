// Package bridge accepts media streams from the call-control system and
// relays each call's audio to a dedicated speech endpoint connection.
// It owns the per-call lifecycle: stream start, bidirectional relay, and a
// single idempotent teardown path shared by every close trigger.
package bridge
