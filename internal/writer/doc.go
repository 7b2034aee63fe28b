// Package writer archives realtime events to PostgreSQL.
//
// ActivityWriter drains activityUpdate payloads from a buffer.Queue and
// inserts them in batches. Inserts are append-only and idempotent on the
// activity id, so replays after a reconnect or a fallback switch are safe.
package writer
