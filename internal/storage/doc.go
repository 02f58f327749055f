// Package storage persists widget records.
//
// Drivers:
//   - "file": JSON snapshot plus an append-only journal, compacted periodically
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory": the file driver over an in-memory filesystem
package storage
