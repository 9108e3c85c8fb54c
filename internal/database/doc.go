// Package database provides the PostgreSQL connection pool backing the
// lifecycle event journal.
package database
