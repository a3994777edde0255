// Package persist defines the narrow collaborator interface spec.md §6
// names for durable storage of tree values and metadata, plus an
// in-memory implementation for tests and a database/sql-backed one for
// production use. The concrete store (schema, VCS, SQLite vs.
// anything else) is explicitly out of scope for core; this package is
// the contract a caller's store must satisfy.
package persist

import "context"

// Store is the persistence collaborator: registry-level code calls
// through this interface rather than touching a database directly,
// mirroring the teacher's loopback/passthrough FS split in
// fuse/loopback.go between "what the tree needs" and "how it is
// actually stored".
type Store interface {
	// GetDBID resolves path to its storage-layer identifier, creating
	// one if create is true and none exists yet.
	GetDBID(ctx context.Context, path string, create bool) (id int64, found bool, err error)

	// GetDBValue loads the last persisted blob for id.
	GetDBValue(ctx context.Context, id int64) (blob []byte, found bool, err error)

	// InsertDBValue creates the first persisted row for id.
	InsertDBValue(ctx context.Context, id int64, blob []byte) error

	// UpdateDBValue overwrites the persisted blob for id.
	UpdateDBValue(ctx context.Context, id int64, blob []byte) error

	// UpdateDBUsed bumps the last-used timestamp (epoch seconds) for
	// id, used by a caller implementing LRU eviction of cached values.
	UpdateDBUsed(ctx context.Context, id int64, epochSeconds int64) error

	// UpdateDBMandatory flags id as mandatory (must survive eviction)
	// or not.
	UpdateDBMandatory(ctx context.Context, id int64, mandatory bool) error
}
