// Package session provides per-call session state and lifecycle handling.
// Each session owns its two directional audio buffers and a one-shot
// finalize guard; the registry tracks all live sessions and sweeps stale ones.
package session
