// Package connection implements the transport drivers used by the realtime
// Connection Manager.
//
// Drivers:
//   - Socket: bidirectional WebSocket (gorilla/websocket), text frames, keepalive pings
//   - Stream: push-only Server-Sent Events over a long-lived HTTP GET
//
// Drivers do not retry. They report open, message, close and error through a
// handler and leave reconnection policy to the caller.
package connection
