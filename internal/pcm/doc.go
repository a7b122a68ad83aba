// Package pcm provides sample-level helpers for 16-bit PCM audio: gain,
// channel downmixing and little-endian byte conversion.
package pcm
