// Package buffer provides the in-memory queue between realtime listener
// callbacks and slower consumers such as the activity writer.
//
// Producers never block: listener callbacks run on transport goroutines, so
// when the queue is at its limit the oldest item is dropped and counted.
package buffer
