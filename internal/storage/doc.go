// Package storage persists reminders in SQLite (modernc, default) or
// PostgreSQL (pgx) through sqlx, with the schema managed by embedded goose
// migrations.
//
// Timestamps are stored as unix milliseconds so ordering does not depend on
// the driver or the session time zone.
package storage
