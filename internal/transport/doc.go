// Package transport provides the UDP channel abstraction shared by the
// service and the device loop. A Channel owns exactly one socket for one
// flow; Send is fire-and-forget and Poll is a non-blocking receive check,
// which lets single-threaded callers interleave send and receive work in
// one loop. Repeated send failures trigger a socket rebind, the only
// recovery the transport attempts.
package transport
