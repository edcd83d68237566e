package proxy

import (
	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	log = logger.GetLogger("proxy")

	replayedOps        = gometrics.GetOrRegisterCounter("proxy.replayed", nil)
	resolutionFailures = gometrics.GetOrRegisterCounter("proxy.resolution.failed", nil)
	askFailures        = gometrics.GetOrRegisterCounter("proxy.ask.failed", nil)
)

// Backend is what a TransactionProxy delegates to once the owner of the
// transaction is known. There are exactly two implementations: LiveBackend
// and FailedBackend.
type Backend interface {
	Read(store tx.LogicalStore, path tx.Path) *tx.Future[tx.Optional[tx.Node]]
	Exists(store tx.LogicalStore, path tx.Path) *tx.Future[bool]
	Put(store tx.LogicalStore, path tx.Path, data tx.Node)
	Merge(store tx.LogicalStore, path tx.Path, data tx.Node)
	Delete(store tx.LogicalStore, path tx.Path)
	Cancel() bool
	Commit() *tx.Future[tx.CommitInfo]
}
