package datastore

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/tx"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Broker hands out read-write transactions against a data store.
type Broker interface {
	// NewReadWriteTransaction opens a transaction. The snapshot it reads from
	// is taken lazily on first access.
	NewReadWriteTransaction() (tx.ReadWriteTransaction, error)
	// ValidateExtension returns the validator of the store, if it has one.
	ValidateExtension() (Validator, bool)
	// Close releases the broker. Open transactions fail on commit afterwards.
	Close() error
}

// Validator checks the pending modifications of a transaction without
// committing them.
type Validator interface {
	Validate(txn tx.ReadWriteTransaction) *tx.Future[struct{}]
}

// ValidateFunc is a user supplied check run on every node a transaction writes.
type ValidateFunc func(store tx.LogicalStore, path tx.Path, node tx.Node) error

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code and a message. Return codes travel through the
// raft log as result values.
type Error struct {
	Code RetCode
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("datastore error (code %s): %s", e.Code, e.Msg)
}

func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: command applied
	RetCInternalError                   // 1: command failed due to an internal error
	RetCInvalidOperation                // 2: malformed or unknown command
	RetCClosed                          // 3: the broker is closed
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}
