// Package speech provides the streaming client for the remote AI speech
// endpoint. One client is created per call session; it translates raw audio
// frames to and from the endpoint's JSON envelope protocol.
package speech
