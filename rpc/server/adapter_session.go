package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTX/lib/registry"
	"github.com/ValentinKolb/dTX/lib/session"
	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/lib/tx/proxy"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// NewSessionServerAdapter creates the adapter that serves candidate edits,
// scoped reads and running transactions through the session registries
func NewSessionServerAdapter() IRPCServerAdapter {
	return &sessionServerAdapterImpl{}
}

type sessionServerAdapterImpl struct{}

func (adapter *sessionServerAdapterImpl) Handle(req *common.Message, shard *Shard) *common.Message {
	if shard == nil || shard.Sessions == nil {
		return common.NewErrorResponse(errors.New("handler: shard is not initialized"))
	}

	start := time.Now()
	resp := adapter.handle(req, shard)
	metrics.GetOrCreateCounter(fmt.Sprintf(`dtx_rpc_requests_total{type=%q}`, req.MsgType)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dtx_rpc_request_duration_seconds{type=%q}`, req.MsgType)).UpdateDuration(start)
	if resp.Err != "" {
		metrics.GetOrCreateCounter(fmt.Sprintf(`dtx_rpc_errors_total{type=%q,tag=%q}`, req.MsgType, resp.ErrTag)).Inc()
	}
	return resp
}

func (adapter *sessionServerAdapterImpl) handle(req *common.Message, shard *Shard) *common.Message {
	switch req.MsgType {
	case common.MsgTOwner:
		if shard.Owner == nil {
			return common.NewOwnerResponse("", errors.New("owner lookup is not configured"))
		}
		endpoint, err := shard.Owner()
		return common.NewOwnerResponse(endpoint, err)

	case common.MsgTCloseSession:
		err := shard.Sessions.Close(req.SessionID)
		if errors.Is(err, session.ErrUnknownSession) {
			err = nil
		}
		return common.NewAckResponse(req.MsgType, err)

	case common.MsgTTxNew:
		s, err := sessionOf(req, shard)
		if err != nil {
			return common.NewTxNewResponse("", err)
		}
		t, err := s.Registry.CreateRunningTransaction()
		if err != nil {
			return common.NewTxNewResponse("", err)
		}
		return common.NewTxNewResponse(t.ID(), nil)

	case common.MsgTTxRead, common.MsgTTxExists, common.MsgTTxPut, common.MsgTTxMerge,
		common.MsgTTxDelete, common.MsgTTxCancel, common.MsgTTxSubmit:
		return handleTxRequest(req, shard)

	case common.MsgTEdit:
		s, err := sessionOf(req, shard)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		return common.NewAckResponse(req.MsgType, edit(s.Registry, req))

	case common.MsgTGet:
		s, err := sessionOf(req, shard)
		if err != nil {
			return common.NewValueResponse(req.MsgType, nil, false, err)
		}
		return get(s.Registry, req)

	case common.MsgTValidate:
		s, err := sessionOf(req, shard)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		return common.NewAckResponse(req.MsgType, s.Registry.ValidateTransaction())

	case common.MsgTCommit:
		s, err := sessionOf(req, shard)
		if err != nil {
			return common.NewCommitResponse(req.MsgType, tx.CommitInfo{}, err)
		}
		info, err := s.Registry.CommitTransaction()
		return common.NewCommitResponse(req.MsgType, info, err)

	case common.MsgTDiscard:
		s, err := sessionOf(req, shard)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		s.Registry.AbortTransaction()
		return common.NewAckResponse(req.MsgType, nil)

	default:
		return common.NewErrorResponse(tx.NewDocumentedError(tx.ErrorTypeProtocol, tx.TagMalformedMessage, tx.SeverityError,
			fmt.Sprintf("unsupported message type: %s", req.MsgType)))
	}
}

// sessionOf returns the session addressed by req, opening it on first use
func sessionOf(req *common.Message, shard *Shard) (*session.Session, error) {
	if req.SessionID == "" {
		return nil, tx.NewDocumentedError(tx.ErrorTypeProtocol, tx.TagMissingElement, tx.SeverityError, "session id is missing")
	}
	s, _ := shard.Sessions.GetOrOpen(req.SessionID)
	return s, nil
}

// handleTxRequest forwards a Tx* message to the running transaction it names
func handleTxRequest(req *common.Message, shard *Shard) *common.Message {
	s, err := shard.Sessions.Get(req.SessionID)
	if err != nil {
		return common.NewAckResponse(req.MsgType, err)
	}
	t, ok := s.Registry.Transaction(req.TxID)
	if !ok {
		return common.NewAckResponse(req.MsgType, fmt.Errorf("transaction %s: %w", req.TxID, tx.ErrTransactionClosed))
	}
	r, err := common.MessageToRequest(req)
	if err != nil {
		return common.NewAckResponse(req.MsgType, err)
	}

	reply, err := proxy.HandleRequest(t, r).Wait()
	if err != nil {
		return common.NewAckResponse(req.MsgType, err)
	}
	return common.ReplyToMessage(req.MsgType, reply)
}

// edit applies one edit operation to the candidate transaction. The whole
// operation, including the existence check of create and delete, runs under
// the session lock.
func edit(r *registry.TransactionRegistry, req *common.Message) error {
	op, err := common.ParseEditOp(req.Op)
	if err != nil {
		return tx.NewDocumentedError(tx.ErrorTypeProtocol, tx.TagInvalidValue, tx.SeverityError, err.Error())
	}
	store, path, err := req.Target()
	if err != nil {
		return err
	}

	return r.WithCandidate(func(t *registry.Transaction) error {
		switch op {
		case common.EditMerge:
			return t.Merge(store, path, tx.NewNode(req.Value))
		case common.EditReplace:
			return t.Put(store, path, tx.NewNode(req.Value))
		case common.EditRemove:
			return t.Delete(store, path)
		}

		exists, err := t.Exists(store, path).Wait()
		if err != nil {
			return err
		}
		switch op {
		case common.EditCreate:
			if exists {
				return tx.NewDocumentedError(tx.ErrorTypeApplication, tx.TagDataExists, tx.SeverityError,
					fmt.Sprintf("data already exists at %s %s", store, path))
			}
			return t.Put(store, path, tx.NewNode(req.Value))
		default: // EditDelete
			if !exists {
				return tx.NewDocumentedError(tx.ErrorTypeApplication, tx.TagDataMissing, tx.SeverityError,
					fmt.Sprintf("no data at %s %s", store, path))
			}
			return t.Delete(store, path)
		}
	})
}

// get reads through a running transaction that is aborted afterwards, the
// candidate is never touched
func get(r *registry.TransactionRegistry, req *common.Message) *common.Message {
	store, path, err := req.Target()
	if err != nil {
		return common.NewValueResponse(req.MsgType, nil, false, err)
	}
	t, err := r.CreateRunningTransaction()
	if err != nil {
		return common.NewValueResponse(req.MsgType, nil, false, err)
	}
	defer func() {
		if err := r.AbortRunningTransaction(t); err != nil {
			Logger.Warningf("failed to abort read transaction %s: %v", t.ID(), err)
		}
	}()

	data, err := t.Read(store, path).Wait()
	if err != nil {
		return common.NewValueResponse(req.MsgType, nil, false, err)
	}
	node, ok := data.Get()
	if !ok {
		return common.NewValueResponse(req.MsgType, nil, false, nil)
	}
	return common.NewValueResponse(req.MsgType, node.Bytes(), true, nil)
}
