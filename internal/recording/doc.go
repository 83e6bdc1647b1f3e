// Package recording persists the audio captured during a call.
// Both directions are uploaded as deterministically named blobs at session
// end; failures never propagate into call teardown.
package recording
