package datastore

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dTX/lib/tx"
)

type documentValidator struct {
	hooks []ValidateFunc
}

// NewValidator returns a validator that requires every node written by a
// transaction to be a well-formed JSON document and then runs hooks on it.
func NewValidator(hooks ...ValidateFunc) Validator {
	return &documentValidator{hooks: hooks}
}

func (v *documentValidator) Validate(txn tx.ReadWriteTransaction) *tx.Future[struct{}] {
	t, ok := txn.(*Transaction)
	if !ok {
		return tx.Failed[struct{}](NewError(RetCInvalidOperation, fmt.Sprintf("cannot validate transaction of type %T", txn)))
	}

	view, err := t.Snapshot()
	if err != nil {
		return tx.Failed[struct{}](err)
	}

	for _, m := range t.Modifications() {
		if m.Op == OpDelete {
			continue
		}
		node, present := view.Read(m.Store, m.Path).Get()
		if !present {
			// removed again by a later modification
			continue
		}
		if !json.Valid(node.Bytes()) {
			return tx.Failed[struct{}](tx.NewDocumentedError(
				tx.ErrorTypeApplication, tx.TagInvalidValue, tx.SeverityError,
				fmt.Sprintf("%s %s: node is not a well-formed document", m.Store, m.Path),
			))
		}
		for _, hook := range v.hooks {
			if err := hook(m.Store, m.Path, node); err != nil {
				return tx.Failed[struct{}](err)
			}
		}
	}
	return tx.Completed(struct{}{})
}
