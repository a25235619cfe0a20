// Package storage persists the promotable catalog and dashboard settings.
//
// Two drivers are provided: a dependency-free JSON snapshot file and a
// SQLite database. Both are safe for concurrent use by the catalog and
// usage services. Storage may be disabled entirely (memory-only mode).
package storage
