// Package wav builds and inspects the fixed 44-byte PCM container header,
// including the write-placeholder-then-patch cycle the recorder depends on.
package wav
