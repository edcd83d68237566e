package common

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/lib/tx/proxy"
)

// --------------------------------------------------------------------------
// Transaction requests <-> messages
// --------------------------------------------------------------------------

// RequestToMessage encodes a request for the transaction txID of a session
func RequestToMessage(req proxy.Request, sessionID, txID string) (*Message, error) {
	switch r := req.(type) {
	case proxy.ReadRequest:
		return NewTxRequest(MsgTTxRead, sessionID, txID, r.Store, r.Path, nil), nil
	case proxy.ExistsRequest:
		return NewTxRequest(MsgTTxExists, sessionID, txID, r.Store, r.Path, nil), nil
	case proxy.PutRequest:
		return NewTxRequest(MsgTTxPut, sessionID, txID, r.Store, r.Path, r.Data.Bytes()), nil
	case proxy.MergeRequest:
		return NewTxRequest(MsgTTxMerge, sessionID, txID, r.Store, r.Path, r.Data.Bytes()), nil
	case proxy.DeleteRequest:
		return NewTxRequest(MsgTTxDelete, sessionID, txID, r.Store, r.Path, nil), nil
	case proxy.CancelRequest:
		return &Message{MsgType: MsgTTxCancel, SessionID: sessionID, TxID: txID}, nil
	case proxy.SubmitRequest:
		return &Message{MsgType: MsgTTxSubmit, SessionID: sessionID, TxID: txID}, nil
	default:
		return nil, fmt.Errorf("unsupported request %T", req)
	}
}

// MessageToRequest decodes a Tx* message. Store and path are validated, a
// malformed message yields a documented malformed-message error.
func MessageToRequest(m *Message) (proxy.Request, error) {
	switch m.MsgType {
	case MsgTTxCancel:
		return proxy.CancelRequest{}, nil
	case MsgTTxSubmit:
		return proxy.SubmitRequest{}, nil
	}

	store, path, err := m.Target()
	if err != nil {
		return nil, err
	}
	switch m.MsgType {
	case MsgTTxRead:
		return proxy.ReadRequest{Store: store, Path: path}, nil
	case MsgTTxExists:
		return proxy.ExistsRequest{Store: store, Path: path}, nil
	case MsgTTxPut:
		return proxy.PutRequest{Store: store, Path: path, Data: tx.NewNode(m.Value)}, nil
	case MsgTTxMerge:
		return proxy.MergeRequest{Store: store, Path: path, Data: tx.NewNode(m.Value)}, nil
	case MsgTTxDelete:
		return proxy.DeleteRequest{Store: store, Path: path}, nil
	default:
		return nil, malformed("message type %s is not a transaction request", m.MsgType)
	}
}

// Target returns the validated store and path addressed by the message
func (m *Message) Target() (tx.LogicalStore, tx.Path, error) {
	if !m.Store.Valid() {
		return 0, "", malformed("unknown data store %d", m.Store)
	}
	path, err := tx.ParsePath(m.Path)
	if err != nil {
		return 0, "", tx.NewDocumentedError(tx.ErrorTypeProtocol, tx.TagInvalidValue, tx.SeverityError, err.Error())
	}
	return m.Store, path, nil
}

func malformed(format string, args ...any) error {
	return tx.NewDocumentedError(tx.ErrorTypeProtocol, tx.TagMalformedMessage, tx.SeverityError, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Replies <-> messages
// --------------------------------------------------------------------------

// ReplyToMessage encodes the reply to a request of type t
func ReplyToMessage(t MessageType, reply proxy.Reply) *Message {
	switch r := reply.(type) {
	case proxy.NodeDataReply:
		return NewValueResponse(t, r.Data.Bytes(), true, nil)
	case proxy.EmptyReadReply:
		return NewValueResponse(t, nil, false, nil)
	case proxy.BooleanReply:
		return NewBoolResponse(t, r.Value, nil)
	case proxy.AckReply:
		return NewCommitResponse(t, r.Info, nil)
	case proxy.FailureReply:
		return NewAckResponse(t, r.Err)
	default:
		return NewErrorResponse(fmt.Errorf("unsupported reply %T", reply))
	}
}

// MessageToReply decodes the response to a Tx* request
func MessageToReply(m *Message) proxy.Reply {
	if err := m.AsError(); err != nil {
		return proxy.FailureReply{Err: err}
	}
	switch m.MsgType {
	case MsgTTxRead:
		if !m.Ok {
			return proxy.EmptyReadReply{}
		}
		return proxy.NodeDataReply{Data: tx.NewNode(m.Value)}
	case MsgTTxExists, MsgTTxCancel:
		return proxy.BooleanReply{Value: m.Ok}
	case MsgTTxPut, MsgTTxMerge, MsgTTxDelete, MsgTTxSubmit:
		return proxy.AckReply{Info: tx.CommitInfo{TxID: m.TxID, Version: m.Version}}
	default:
		return proxy.FailureReply{Err: fmt.Errorf("unexpected response type %s", m.MsgType)}
	}
}
