// Package storage defines the Storage interface — the contract that any
// backend must satisfy to hold ranked student records.
//
// Two implementations live in sub-packages:
//
//   - storage/redis: the production backend, one hash per record plus a
//     sorted set that ranks ids by score.
//   - storage/sqlite: a single-table backend for local development that
//     honours the same ordering and paging rules.
//
// The service and HTTP layers depend only on this interface, so switching
// backends is a config change (storage.driver) and tests can pass a fake.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/records-api/internal/types"
)

// ErrTransport wraps any connection, timeout, or transaction failure,
// including a write refused because a key holds a foreign type.
// Nothing was written when it is returned from a mutating call.
// Callers test for it with errors.Is.
var ErrTransport = errors.New("storage transport failure")

// Storage is the ranked record store contract.
//
// Writes to the same id are atomic per call (hash and rank entry change
// together) but are not ordered across calls: the last transaction to
// commit wins. No client-side locking is done.
type Storage interface {
	// Exists reports whether a record is stored under id.
	Exists(ctx context.Context, id string) (bool, error)

	// Save writes the whole record and its rank entry in one transaction.
	Save(ctx context.Context, s types.Student) error

	// Update is an upsert with the same semantics as Save.
	Update(ctx context.Context, s types.Student) error

	// Remove deletes the record and its rank entry in one transaction.
	// Removing an id that is not stored is not an error.
	Remove(ctx context.Context, id string) error

	// ListPage returns one page of records ordered by score, highest
	// first. Records that cannot be read back are skipped and logged;
	// only a failure of the backend itself is returned as an error.
	ListPage(ctx context.Context, pageNum, pageSize int) (types.PageInfo[types.Student], error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's connections.
	Close() error
}
