// Package database provides the PostgreSQL connection pool for the activity
// archive.
package database
