package tx

// CommitInfo acknowledges a successful commit.
type CommitInfo struct {
	TxID    string // id of the committed transaction
	Version uint64 // store version that includes the transaction, 0 if nothing was written
}

// ReadWriteTransaction is a read/write view on both logical stores.
//
// Reads are answered through futures and stay usable after the transaction
// is closed. Put, Merge and Delete fail with ErrTransactionClosed once
// Cancel or Commit has been called. Exactly one of Cancel and Commit takes
// effect: Cancel returns false if the transaction was already closed,
// Commit fails with ErrTransactionAlreadyClosed.
type ReadWriteTransaction interface {
	// ID identifies the transaction in logs and on the wire.
	ID() string

	Read(store LogicalStore, path Path) *Future[Optional[Node]]
	Exists(store LogicalStore, path Path) *Future[bool]

	// Put replaces the subtree at path with data.
	Put(store LogicalStore, path Path, data Node) error
	// Merge combines data with whatever exists at path.
	Merge(store LogicalStore, path Path, data Node) error
	// Delete removes the subtree at path. Deleting a missing path is not an error.
	Delete(store LogicalStore, path Path) error

	Cancel() bool
	Commit() *Future[CommitInfo]
}
