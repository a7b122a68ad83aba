// Package server implements the UDP listener for device capture datagrams
// and the HTTP API endpoints. Received datagrams are classified as control
// tokens or PCM payload and routed to the stream manager in arrival order;
// the HTTP side exposes health, status, stream, recording and Prometheus
// metrics endpoints.
package server
