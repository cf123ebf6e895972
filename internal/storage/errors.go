package storage

import "errors"

// Error kinds surfaced by the core (spec §7). Transactional errors set
// Transaction.Result to ResultFailure and are reported on the next
// operation or on Commit; the index builder and GC never surface these to
// foreground queries — they log and retry instead.
var (
	// ErrReadConflict is returned by PerformRead when an isolation-level
	// specific conflict is detected (e.g. repeatable-read sees a newer
	// committed version). Fatal to the current transaction.
	ErrReadConflict = errors.New("storage: read conflict")

	// ErrWriteConflict is returned when the CAS on a slot header's TxnID
	// fails because another writer already holds the slot.
	ErrWriteConflict = errors.New("storage: write conflict")

	// ErrUniqueViolation is returned by ConditionalInsert when the
	// uniqueness predicate rejects the insert.
	ErrUniqueViolation = errors.New("storage: unique constraint violation")

	// ErrStorageFull is returned by AllocateSlot when the configured
	// table-size bound would be exceeded.
	ErrStorageFull = errors.New("storage: table size bound exceeded")

	// ErrNotFound is returned by Delete when the index entry does not
	// exist. Non-fatal, reported to the caller.
	ErrNotFound = errors.New("storage: index entry not found")

	// ErrTxnNotActive is returned by Commit on a transaction that already
	// committed, aborted, or was marked failed.
	ErrTxnNotActive = errors.New("storage: transaction is not active")

	// ErrInternal denotes an invariant violation detected at runtime,
	// e.g. a version-chain walk terminating without a visible version.
	// Treated as panic-equivalent by callers that choose to panic on it.
	ErrInternal = errors.New("storage: internal invariant violation")

	// ErrNotSupported is returned by operations an index kind doesn't
	// implement, e.g. ScanRange on a hash index.
	ErrNotSupported = errors.New("storage: operation not supported by this index kind")
)
