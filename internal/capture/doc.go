// Package capture implements the audio input engine: fixed-size block reads
// from an input peripheral with saturating gain and bounded read timeouts.
package capture
