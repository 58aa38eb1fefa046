// Package instances provides the device-side persistence layer for form
// instance records.
//
// # Overview
//
// The package defines a Repository interface used by the disk writer, the
// instance sync scanner, the uploader and the deleters. A SQLite-backed
// implementation (SQLiteRepository) persists rows using a dbx.DBTX.
//
// # Paths
//
// instance_file_path is stored relative to the storage root and is unique:
// the instance folder is the durable key that ties a row to its files.
//
// # Concurrency
//
// Every mutation is a single-row read-modify-write keyed by id or path, so
// concurrent operations on different instances never contend.
package instances
