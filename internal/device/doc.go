// Package device implements the single-threaded service loop that models
// the embedded endpoint: forward microphone blocks to the host while idle,
// switch to rendering playback datagrams when the host streams audio, and
// switch back once the playback session ends. One unit of work per
// iteration keeps both paths responsive without locks.
package device
