// Package recorder manages the lifecycle of a single recording file: header
// placeholder at start, sequential PCM appends, and a seek-and-patch
// finalize that stamps the true data size. Finalize and Abort are the only
// exits; a stop mid-capture finalizes with whatever was written, while an
// abort removes the partial file entirely.
package recorder
