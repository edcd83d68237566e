package dstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/datastore/dstore/internal"
	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("datastore")
)

// Broker hands out transactions whose commits are replicated through raft.
type Broker struct {
	nh        *dragonboat.NodeHost
	shardID   uint64
	cs        *client.Session
	timeout   time.Duration
	validator datastore.Validator
	closed    atomic.Bool
}

// NewDistributedBroker creates a broker for a shard that was started on nh
// with the factory returned by CreateStateMachineFactory. validator may be nil.
func NewDistributedBroker(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration, validator datastore.Validator) *Broker {
	return &Broker{
		nh:        nh,
		shardID:   shardID,
		cs:        nh.GetNoOPSession(shardID),
		timeout:   timeout,
		validator: validator,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see datastore.Broker)
// --------------------------------------------------------------------------

func (b *Broker) NewReadWriteTransaction() (tx.ReadWriteTransaction, error) {
	if b.closed.Load() {
		return nil, datastore.NewError(datastore.RetCClosed, "broker is closed")
	}
	return datastore.NewTransaction(uuid.NewString(), b.snapshot, b.commit), nil
}

func (b *Broker) ValidateExtension() (datastore.Validator, bool) {
	return b.validator, b.validator != nil
}

// Close stops handing out transactions. The NodeHost is owned by the caller.
func (b *Broker) Close() error {
	b.closed.Store(true)
	return nil
}

// Leader returns the replica id of the current shard leader. ok is false
// while no leader is known.
func (b *Broker) Leader() (replicaID uint64, ok bool, err error) {
	leaderID, _, valid, err := b.nh.GetLeaderID(b.shardID)
	if err != nil {
		return 0, false, err
	}
	return leaderID, valid, nil
}

// Version returns the version of the local replica without a quorum round trip.
func (b *Broker) Version() (uint64, error) {
	return read[uint64](b, internal.Query{Type: internal.QueryTVersion}, true)
}

// --------------------------------------------------------------------------
// Internal write and read operations
// --------------------------------------------------------------------------

func (b *Broker) snapshot() (*datastore.Tree, error) {
	return read[*datastore.Tree](b, internal.Query{Type: internal.QueryTSnapshot}, false)
}

func (b *Broker) commit(txID string, mods []datastore.Modification) *tx.Future[tx.CommitInfo] {
	if b.closed.Load() {
		return tx.Failed[tx.CommitInfo](datastore.NewError(datastore.RetCClosed, "broker is closed"))
	}
	promise := tx.NewPromise[tx.CommitInfo]()
	cmd := internal.Command{Type: internal.CommandTApply, TxID: txID, Mods: mods}
	go func() {
		version, err := b.write(cmd)
		if err != nil {
			promise.Fail(err)
			return
		}
		promise.Complete(tx.CommitInfo{TxID: txID, Version: version})
	}()
	return promise.Future()
}

// write proposes cmd and returns the version it produced. Busy errors are
// retried, everything else is returned as a *datastore.Error.
func (b *Broker) write(cmd internal.Command) (uint64, error) {
	payload := cmd.Serialize()
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		res, err := b.nh.SyncPropose(ctx, b.cs, payload)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(b.timeout / 10)
			continue
		}
		if err != nil {
			return 0, datastore.NewError(datastore.RetCInternalError, err.Error())
		}
		if res.Value != uint64(datastore.RetCSuccess) {
			return 0, datastore.NewError(datastore.RetCode(res.Value), string(res.Data))
		}
		if len(res.Data) != 8 {
			return 0, nil
		}
		return binary.BigEndian.Uint64(res.Data), nil
	}
	return 0, datastore.NewError(datastore.RetCInternalError, "timeout")
}

// read queries the state machine and casts the answer to R. SyncRead is
// used unless stale is set.
func read[R any](b *Broker, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		var res interface{}
		var err error

		if stale {
			res, err = b.nh.StaleRead(b.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			res, err = b.nh.SyncRead(ctx, b.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(b.timeout / 10)
			continue
		}
		if err != nil {
			var dsErr *datastore.Error
			if errors.As(err, &dsErr) {
				return zero, dsErr
			}
			return zero, datastore.NewError(datastore.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, datastore.NewError(datastore.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, datastore.NewError(datastore.RetCInternalError, "timeout")
}
