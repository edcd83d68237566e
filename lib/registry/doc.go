// Package registry tracks the transactions a management session holds on
// the node that owns the data.
//
// A session has at most one candidate transaction, the pending target of
// edit operations, and any number of running transactions used by scoped
// reads and by remote transaction proxies. The candidate moves through
//
//	NONE -> OPEN -> NONE (commit or abort)
//
// and is created lazily by GetOrCreateTransaction. All lifecycle
// transitions of one registry are serialized by a single lock, which is also
// held while a commit or validate is awaited. Neither wait has a timeout.
//
// Idle Watchdog:
//
//	Every transaction created by a registry arms a timer of the configured
//	idle duration. Any operation on the transaction resets it. When it fires
//	the transaction is cancelled and untracked exactly as if Cancel had been
//	called, racing user cancels are harmless.
//
// Metrics:
//
//	Lifecycle events are counted with VictoriaMetrics counters named
//	dtx_registry_transactions_*_total.
package registry
