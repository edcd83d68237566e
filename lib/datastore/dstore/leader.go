package dstore

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/tx"
)

// LeaderSource reports the current leader replica of a shard. *Broker
// implements it.
type LeaderSource interface {
	Leader() (replicaID uint64, ok bool, err error)
}

// LeaderResolver maps the shard leader to the RPC endpoint clients should
// send transaction requests to.
type LeaderResolver struct {
	source    LeaderSource
	endpoints map[uint64]string
}

// NewLeaderResolver creates a resolver over endpoints, keyed by replica id.
func NewLeaderResolver(source LeaderSource, endpoints map[uint64]string) *LeaderResolver {
	return &LeaderResolver{source: source, endpoints: endpoints}
}

// Endpoint returns the RPC endpoint of the current leader. A shard without a
// leader, or a leader without a known endpoint, is reported as a retryable
// documented error.
func (r *LeaderResolver) Endpoint() (string, error) {
	replicaID, ok, err := r.source.Leader()
	if err != nil {
		return "", fmt.Errorf("leader lookup failed: %w", err)
	}
	if !ok {
		return "", tx.NewDocumentedError(tx.ErrorTypeApplication, tx.TagOperationFailed, tx.SeverityWarning,
			"no leader elected, retry")
	}
	endpoint, found := r.endpoints[replicaID]
	if !found || endpoint == "" {
		log.Warningf("leader %d has no rpc endpoint configured", replicaID)
		return "", tx.NewDocumentedError(tx.ErrorTypeApplication, tx.TagOperationFailed, tx.SeverityError,
			fmt.Sprintf("no rpc endpoint known for leader %d", replicaID))
	}
	return endpoint, nil
}
