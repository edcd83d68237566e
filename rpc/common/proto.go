package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dTX/lib/tx"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Addressing
	SessionID string          `json:"session_id,omitempty"` // Used for: all session scoped messages
	TxID      string          `json:"tx_id,omitempty"`      // Used for: Tx* requests, TxNew and commit responses
	Store     tx.LogicalStore `json:"store,omitempty"`      // Used for: TxRead, TxExists, TxPut, TxMerge, TxDelete, Edit, Get
	Path      string          `json:"path,omitempty"`       // Used for: same as Store
	Op        string          `json:"op,omitempty"`         // Used for: Edit (merge, replace, create, delete, remove)

	// Payload
	Value   []byte `json:"value,omitempty"`   // Used for: TxPut, TxMerge, Edit (request), TxRead, Get, Owner (response)
	Version uint64 `json:"version,omitempty"` // Used for: TxSubmit, Commit responses

	// Response only fields
	Ok          bool   `json:"ok,omitempty"`           // Used for: TxRead, TxExists, Get, TxCancel responses
	Err         string `json:"err,omitempty"`          // Empty if no error, otherwise contains the error message
	ErrType     string `json:"err_type,omitempty"`     // error-type of a documented error
	ErrTag      string `json:"err_tag,omitempty"`      // error-tag of a documented error
	ErrSeverity string `json:"err_severity,omitempty"` // error-severity of a documented error
}

// SetError stores err in the error fields of the message, classified with
// tx.ToDocumented. A nil err clears them.
func (m *Message) SetError(err error) {
	doc := tx.ToDocumented(err)
	if doc == nil {
		m.Err, m.ErrType, m.ErrTag, m.ErrSeverity = "", "", "", ""
		return
	}
	m.Err = doc.Message
	m.ErrType = string(doc.Type)
	m.ErrTag = string(doc.Tag)
	m.ErrSeverity = string(doc.Severity)
}

// AsError rebuilds the error carried by the message, nil if there is none.
func (m *Message) AsError() error {
	if m.Err == "" {
		return nil
	}
	doc := &tx.DocumentedError{
		Type:     tx.ErrorType(m.ErrType),
		Tag:      tx.ErrorTag(m.ErrTag),
		Severity: tx.ErrorSeverity(m.ErrSeverity),
		Message:  m.Err,
	}
	if doc.Type == "" {
		doc.Type = tx.ErrorTypeApplication
	}
	if doc.Tag == "" {
		doc.Tag = tx.TagOperationFailed
	}
	if doc.Severity == "" {
		doc.Severity = tx.SeverityError
	}
	return doc
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewOwnerRequest asks a node for the RPC endpoint of the current data owner
func NewOwnerRequest() *Message {
	return &Message{MsgType: MsgTOwner}
}

// NewOwnerResponse answers an Owner request
func NewOwnerResponse(endpoint string, err error) *Message {
	msg := &Message{MsgType: MsgTOwner, Value: []byte(endpoint)}
	msg.SetError(err)
	return msg
}

// NewCloseSessionRequest ends a session on the server
func NewCloseSessionRequest(sessionID string) *Message {
	return &Message{MsgType: MsgTCloseSession, SessionID: sessionID}
}

// NewTxNewRequest opens a running transaction in the session
func NewTxNewRequest(sessionID string) *Message {
	return &Message{MsgType: MsgTTxNew, SessionID: sessionID}
}

// NewTxNewResponse answers a TxNew request with the id of the transaction
func NewTxNewResponse(txID string, err error) *Message {
	msg := &Message{MsgType: MsgTTxNew, TxID: txID}
	msg.SetError(err)
	return msg
}

// NewTxRequest creates a request addressed to an open transaction. Value is
// only used by TxPut and TxMerge.
func NewTxRequest(t MessageType, sessionID, txID string, store tx.LogicalStore, path tx.Path, value []byte) *Message {
	return &Message{
		MsgType:   t,
		SessionID: sessionID,
		TxID:      txID,
		Store:     store,
		Path:      string(path),
		Value:     value,
	}
}

// NewEditRequest edits the candidate transaction of the session
func NewEditRequest(sessionID string, op EditOp, store tx.LogicalStore, path tx.Path, value []byte) *Message {
	return &Message{
		MsgType:   MsgTEdit,
		SessionID: sessionID,
		Op:        string(op),
		Store:     store,
		Path:      string(path),
		Value:     value,
	}
}

// NewGetRequest reads through a short lived running transaction
func NewGetRequest(sessionID string, store tx.LogicalStore, path tx.Path) *Message {
	return &Message{MsgType: MsgTGet, SessionID: sessionID, Store: store, Path: string(path)}
}

// NewSessionRequest creates a Validate, Commit or Discard request
func NewSessionRequest(t MessageType, sessionID string) *Message {
	return &Message{MsgType: t, SessionID: sessionID}
}

// NewValueResponse answers a read: ok reports whether data was found
func NewValueResponse(t MessageType, value []byte, ok bool, err error) *Message {
	msg := &Message{MsgType: t, Value: value, Ok: ok}
	msg.SetError(err)
	return msg
}

// NewBoolResponse answers TxExists and TxCancel
func NewBoolResponse(t MessageType, ok bool, err error) *Message {
	msg := &Message{MsgType: t, Ok: ok}
	msg.SetError(err)
	return msg
}

// NewCommitResponse answers TxSubmit and Commit
func NewCommitResponse(t MessageType, info tx.CommitInfo, err error) *Message {
	msg := &Message{MsgType: t, TxID: info.TxID, Version: info.Version}
	msg.SetError(err)
	return msg
}

// NewAckResponse answers requests without a result
func NewAckResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	msg.SetError(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err error) *Message {
	msg := &Message{MsgType: MsgTError}
	msg.SetError(err)
	return msg
}

// --------------------------------------------------------------------------
// Edit operations
// --------------------------------------------------------------------------

// EditOp is the operation of an Edit request.
type EditOp string

const (
	EditMerge   EditOp = "merge"   // merge with existing data
	EditReplace EditOp = "replace" // replace the subtree
	EditCreate  EditOp = "create"  // like replace, fails if data exists
	EditDelete  EditOp = "delete"  // remove the subtree, fails if nothing exists
	EditRemove  EditOp = "remove"  // remove the subtree if it exists
)

// ParseEditOp validates the textual form of an edit operation.
func ParseEditOp(s string) (EditOp, error) {
	switch op := EditOp(s); op {
	case EditMerge, EditReplace, EditCreate, EditDelete, EditRemove:
		return op, nil
	default:
		return "", fmt.Errorf("unknown edit operation: %q", s)
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:      "success",
	MsgTError:        "error",
	MsgTOwner:        "owner",
	MsgTCloseSession: "closeSession",
	MsgTTxNew:        "txNew",
	MsgTTxRead:       "txRead",
	MsgTTxExists:     "txExists",
	MsgTTxPut:        "txPut",
	MsgTTxMerge:      "txMerge",
	MsgTTxDelete:     "txDelete",
	MsgTTxCancel:     "txCancel",
	MsgTTxSubmit:     "txSubmit",
	MsgTEdit:         "edit",
	MsgTGet:          "get",
	MsgTValidate:     "validate",
	MsgTCommit:       "commit",
	MsgTDiscard:      "discard",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Cluster and session operations

	MsgTOwner        // Ask for the endpoint of the data owner
	MsgTCloseSession // Close a session and cancel its transactions

	// Remote transaction operations (used by the transaction proxy)

	MsgTTxNew    // Open a running transaction
	MsgTTxRead   // Read from a transaction
	MsgTTxExists // Check existence in a transaction
	MsgTTxPut    // Put into a transaction
	MsgTTxMerge  // Merge into a transaction
	MsgTTxDelete // Delete in a transaction
	MsgTTxCancel // Cancel a transaction
	MsgTTxSubmit // Commit a transaction

	// Candidate operations

	MsgTEdit     // Edit the candidate transaction
	MsgTGet      // Read through a short lived transaction
	MsgTValidate // Validate the candidate
	MsgTCommit   // Commit the candidate
	MsgTDiscard  // Abort the candidate
)
