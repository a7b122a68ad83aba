// Package stream provides capture stream session management and lifecycle
// handling. It tracks one stream per sending device address, routes payload
// datagrams into recording sessions, finalizes on stop tokens or idle
// timeouts, and hands finished recordings to the transcription uploader.
package stream
