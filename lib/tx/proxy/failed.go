package proxy

import (
	"github.com/ValentinKolb/dTX/lib/tx"
)

// FailedBackend is used when the owner of a transaction could not be
// resolved. Reads and commit fail with the captured cause, mutations are
// accepted and dropped.
type FailedBackend struct {
	id    string
	cause error
}

func NewFailedBackend(id string, cause error) *FailedBackend {
	return &FailedBackend{id: id, cause: cause}
}

func (b *FailedBackend) Read(tx.LogicalStore, tx.Path) *tx.Future[tx.Optional[tx.Node]] {
	return tx.Failed[tx.Optional[tx.Node]](tx.NewReadFailed(b.id+": read failed", b.cause))
}

func (b *FailedBackend) Exists(tx.LogicalStore, tx.Path) *tx.Future[bool] {
	return tx.Failed[bool](tx.NewReadFailed(b.id+": exists failed", b.cause))
}

func (b *FailedBackend) Put(tx.LogicalStore, tx.Path, tx.Node) {}

func (b *FailedBackend) Merge(tx.LogicalStore, tx.Path, tx.Node) {}

func (b *FailedBackend) Delete(tx.LogicalStore, tx.Path) {}

func (b *FailedBackend) Cancel() bool {
	return true
}

func (b *FailedBackend) Commit() *tx.Future[tx.CommitInfo] {
	return tx.Failed[tx.CommitInfo](tx.NewCommitFailed(tx.StageCommit, b.id, b.cause))
}
