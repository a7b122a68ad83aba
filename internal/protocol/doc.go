// Package protocol defines the in-band control token vocabulary and the
// control-vs-payload discrimination rule for audio datagrams.
package protocol
