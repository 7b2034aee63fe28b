// Package realtime implements the Connection Manager: it keeps a dashboard
// client subscribed to server-pushed events over whichever transport works.
//
// Transport selection:
//   - Development: try the bidirectional socket at {base}/ws first
//   - Production, blocked socket (close 1006), connect timeout, transport
//     error or reconnect ceiling: fall back to one push-only stream per
//     topic at {base}/api/events/{topic} for the rest of the session
//
// Event keys are plain strings. Topic-scoped keys follow "name:topic", for
// example "roomUpdate:42"; the topic selects the push-only stream.
//
// Only Disconnect returns the manager to its initial state. It cancels every
// timer, closes every transport and clears all listeners.
package realtime
