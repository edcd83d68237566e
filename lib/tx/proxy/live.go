package proxy

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTX/lib/tx"
	gometrics "github.com/rcrowley/go-metrics"
)

// LiveBackend forwards operations to the owner of the transaction. Reads and
// commits are asked with a timeout, mutations and cancel are told.
type LiveBackend struct {
	id       string
	endpoint Endpoint
	timeout  time.Duration
}

func NewLiveBackend(id string, endpoint Endpoint, timeout time.Duration) *LiveBackend {
	return &LiveBackend{id: id, endpoint: endpoint, timeout: timeout}
}

func (b *LiveBackend) ask(name string, req Request) *tx.Future[Reply] {
	start := time.Now()
	timer := gometrics.GetOrRegisterTimer("proxy.ask."+name, nil)
	f := b.endpoint.Ask(req, b.timeout)
	f.OnComplete(func(r Reply, err error) {
		timer.UpdateSince(start)
		if _, failed := r.(FailureReply); failed || err != nil {
			askFailures.Inc(1)
		}
	})
	return f
}

// failure returns the error carried by a failed ask, or nil.
func failure(r Reply, err error) error {
	if err != nil {
		return err
	}
	if f, ok := r.(FailureReply); ok {
		if f.Err == nil {
			return errors.New("owner reported an unspecified failure")
		}
		return f.Err
	}
	return nil
}

// unavailable re-wraps ask timeouts so callers can tell a lost owner apart
// from a failed operation.
func (b *LiveBackend) unavailable(err error) error {
	if errors.Is(err, tx.ErrAskTimeout) {
		return tx.NewBackendUnavailable(b.id, err)
	}
	return err
}

func (b *LiveBackend) Read(store tx.LogicalStore, path tx.Path) *tx.Future[tx.Optional[tx.Node]] {
	return tx.Map(b.ask("read", ReadRequest{Store: store, Path: path}), func(r Reply, err error) (tx.Optional[tx.Node], error) {
		if err := failure(r, err); err != nil {
			return tx.None[tx.Node](), tx.NewReadFailed(fmt.Sprintf("%s: read %s %s failed", b.id, store, path), b.unavailable(err))
		}
		switch r := r.(type) {
		case NodeDataReply:
			return tx.Some(r.Data), nil
		case EmptyReadReply:
			return tx.None[tx.Node](), nil
		default:
			return tx.None[tx.Node](), tx.NewReadFailed(fmt.Sprintf("%s: unexpected reply %T to read", b.id, r), nil)
		}
	})
}

func (b *LiveBackend) Exists(store tx.LogicalStore, path tx.Path) *tx.Future[bool] {
	return tx.Map(b.ask("exists", ExistsRequest{Store: store, Path: path}), func(r Reply, err error) (bool, error) {
		if err := failure(r, err); err != nil {
			return false, tx.NewReadFailed(fmt.Sprintf("%s: exists %s %s failed", b.id, store, path), b.unavailable(err))
		}
		if r, ok := r.(BooleanReply); ok {
			return r.Value, nil
		}
		return false, tx.NewReadFailed(fmt.Sprintf("%s: unexpected reply %T to exists", b.id, r), nil)
	})
}

func (b *LiveBackend) Put(store tx.LogicalStore, path tx.Path, data tx.Node) {
	b.endpoint.Tell(PutRequest{Store: store, Path: path, Data: data})
}

func (b *LiveBackend) Merge(store tx.LogicalStore, path tx.Path, data tx.Node) {
	b.endpoint.Tell(MergeRequest{Store: store, Path: path, Data: data})
}

func (b *LiveBackend) Delete(store tx.LogicalStore, path tx.Path) {
	b.endpoint.Tell(DeleteRequest{Store: store, Path: path})
}

// Cancel is best effort and always reports success.
func (b *LiveBackend) Cancel() bool {
	b.endpoint.Tell(CancelRequest{})
	return true
}

func (b *LiveBackend) Commit() *tx.Future[tx.CommitInfo] {
	return tx.Map(b.ask("submit", SubmitRequest{}), func(r Reply, err error) (tx.CommitInfo, error) {
		if err := failure(r, err); err != nil {
			return tx.CommitInfo{}, tx.NewCommitFailed(tx.StageCommit, b.id, b.unavailable(err))
		}
		if r, ok := r.(AckReply); ok {
			return r.Info, nil
		}
		return tx.CommitInfo{}, tx.NewCommitFailed(tx.StageCommit, b.id, fmt.Errorf("unexpected reply %T to submit", r))
	})
}
