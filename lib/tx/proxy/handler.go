package proxy

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/tx"
)

// HandleRequest executes req against txn on the owner side and produces the
// reply the proxy expects. Errors never fail the returned future, they are
// reported as FailureReply.
func HandleRequest(txn tx.ReadWriteTransaction, req Request) *tx.Future[Reply] {
	switch r := req.(type) {
	case ReadRequest:
		return tx.Map(txn.Read(r.Store, r.Path), func(data tx.Optional[tx.Node], err error) (Reply, error) {
			if err != nil {
				return FailureReply{Err: err}, nil
			}
			if node, ok := data.Get(); ok {
				return NodeDataReply{Data: node}, nil
			}
			return EmptyReadReply{}, nil
		})
	case ExistsRequest:
		return tx.Map(txn.Exists(r.Store, r.Path), func(exists bool, err error) (Reply, error) {
			if err != nil {
				return FailureReply{Err: err}, nil
			}
			return BooleanReply{Value: exists}, nil
		})
	case PutRequest:
		return ack(txn.Put(r.Store, r.Path, r.Data))
	case MergeRequest:
		return ack(txn.Merge(r.Store, r.Path, r.Data))
	case DeleteRequest:
		return ack(txn.Delete(r.Store, r.Path))
	case CancelRequest:
		return tx.Completed[Reply](BooleanReply{Value: txn.Cancel()})
	case SubmitRequest:
		return tx.Map(txn.Commit(), func(info tx.CommitInfo, err error) (Reply, error) {
			if err != nil {
				return FailureReply{Err: err}, nil
			}
			return AckReply{Info: info}, nil
		})
	default:
		return tx.Completed[Reply](FailureReply{Err: fmt.Errorf("unsupported request %T", req)})
	}
}

func ack(err error) *tx.Future[Reply] {
	if err != nil {
		return tx.Completed[Reply](FailureReply{Err: err})
	}
	return tx.Completed[Reply](AckReply{})
}
