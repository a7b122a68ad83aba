// Package playback reconstructs rendered audio from a datagram stream.
// The Reconstructor tracks a two-state session lifecycle (idle, streaming)
// driven by control tokens and payload arrival times: an END token or a
// silence window closes the session, and each close flushes the output with
// silence so nothing stale carries into the next session. Outputs are
// pluggable behind the Output interface; the portaudio implementation
// renders to the default host device.
package playback
