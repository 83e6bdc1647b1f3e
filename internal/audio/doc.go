// Package audio handles audio container encoding for call recordings.
// It wraps the raw PCM byte streams captured during a call in WAV containers
// when the recording sink is configured for WAV output.
package audio
