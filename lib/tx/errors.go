package tx

import (
	"errors"
	"fmt"
)

var (
	// ErrTransactionClosed is returned by write operations issued after the
	// transaction was cancelled or committed.
	ErrTransactionClosed = errors.New("transaction is closed")

	// ErrTransactionAlreadyClosed is returned by Commit when the transaction
	// was already cancelled or committed.
	ErrTransactionAlreadyClosed = errors.New("transaction already closed")

	// ErrAskTimeout marks a request to a remote backend that got no reply in time.
	ErrAskTimeout = errors.New("ask timed out")

	// ErrBackendUnavailable marks failures caused by an unreachable owner.
	// It is retryable by the caller, nothing below the caller retries it.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrNoTrackedTransactions is a programming error: a running transaction
	// was aborted although the registry tracks nothing.
	ErrNoTrackedTransactions = errors.New("no transactions are tracked")
)

// IsClosed reports whether err was caused by using a closed transaction.
func IsClosed(err error) bool {
	return errors.Is(err, ErrTransactionClosed) || errors.Is(err, ErrTransactionAlreadyClosed)
}

// --------------------------------------------------------------------------
// Error vocabulary
// --------------------------------------------------------------------------

// ErrorType is the layer an error is attributed to.
type ErrorType string

const (
	ErrorTypeTransport   ErrorType = "transport"
	ErrorTypeRPC         ErrorType = "rpc"
	ErrorTypeProtocol    ErrorType = "protocol"
	ErrorTypeApplication ErrorType = "application"
)

// ErrorTag identifies the error condition.
type ErrorTag string

const (
	TagInUse                 ErrorTag = "in-use"
	TagInvalidValue          ErrorTag = "invalid-value"
	TagTooBig                ErrorTag = "too-big"
	TagMissingAttribute      ErrorTag = "missing-attribute"
	TagBadAttribute          ErrorTag = "bad-attribute"
	TagUnknownAttribute      ErrorTag = "unknown-attribute"
	TagMissingElement        ErrorTag = "missing-element"
	TagBadElement            ErrorTag = "bad-element"
	TagUnknownElement        ErrorTag = "unknown-element"
	TagUnknownNamespace      ErrorTag = "unknown-namespace"
	TagAccessDenied          ErrorTag = "access-denied"
	TagLockDenied            ErrorTag = "lock-denied"
	TagResourceDenied        ErrorTag = "resource-denied"
	TagRollbackFailed        ErrorTag = "rollback-failed"
	TagDataExists            ErrorTag = "data-exists"
	TagDataMissing           ErrorTag = "data-missing"
	TagOperationNotSupported ErrorTag = "operation-not-supported"
	TagOperationFailed       ErrorTag = "operation-failed"
	TagPartialOperation      ErrorTag = "partial-operation"
	TagMalformedMessage      ErrorTag = "malformed-message"
)

// ErrorSeverity is either error or warning.
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
)

// --------------------------------------------------------------------------
// Error types
// --------------------------------------------------------------------------

// DocumentedError is an error that carries its client facing classification.
type DocumentedError struct {
	Type     ErrorType
	Tag      ErrorTag
	Severity ErrorSeverity
	Message  string
	Cause    error
}

func NewDocumentedError(typ ErrorType, tag ErrorTag, severity ErrorSeverity, msg string) *DocumentedError {
	return &DocumentedError{Type: typ, Tag: tag, Severity: severity, Message: msg}
}

func (e *DocumentedError) Error() string {
	return e.Message
}

func (e *DocumentedError) Unwrap() error {
	return e.Cause
}

// NewBackendUnavailable builds the error reported when the owner of
// transaction id does not answer.
func NewBackendUnavailable(id string, cause error) *DocumentedError {
	wrapped := ErrBackendUnavailable
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", ErrBackendUnavailable, cause)
	}
	return &DocumentedError{
		Type:     ErrorTypeApplication,
		Tag:      TagOperationFailed,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%s: master is down, retry", id),
		Cause:    wrapped,
	}
}

// NewValidateUnsupported is returned when the store offers no validate extension.
func NewValidateUnsupported() *DocumentedError {
	return &DocumentedError{
		Type:     ErrorTypeProtocol,
		Tag:      TagOperationNotSupported,
		Severity: SeverityError,
		Message:  "validate is not supported by the data store",
	}
}

// ReadFailedError wraps the cause of a failed read or exists call.
type ReadFailedError struct {
	Message string
	Cause   error
}

func NewReadFailed(msg string, cause error) *ReadFailedError {
	return &ReadFailedError{Message: msg, Cause: cause}
}

func (e *ReadFailedError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ReadFailedError) Unwrap() error {
	return e.Cause
}

// CommitStage names the phase in which a commit failed.
type CommitStage string

const (
	StageValidate CommitStage = "validate"
	StageCommit   CommitStage = "commit"
)

// CommitFailedError wraps the cause of a failed validate or commit.
type CommitFailedError struct {
	Stage   CommitStage
	Message string
	Cause   error
}

func NewCommitFailed(stage CommitStage, msg string, cause error) *CommitFailedError {
	return &CommitFailedError{Stage: stage, Message: msg, Cause: cause}
}

func (e *CommitFailedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s failed: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s failed: %s: %v", e.Stage, e.Message, e.Cause)
}

func (e *CommitFailedError) Unwrap() error {
	return e.Cause
}

// --------------------------------------------------------------------------
// Translation
// --------------------------------------------------------------------------

// ToDocumented translates err into the client facing vocabulary. A
// DocumentedError anywhere in the chain wins, everything else is reported
// as an application level operation failure. The message of the outermost
// error is kept.
func ToDocumented(err error) *DocumentedError {
	if err == nil {
		return nil
	}
	var doc *DocumentedError
	if errors.As(err, &doc) {
		if doc == err {
			return doc
		}
		return &DocumentedError{Type: doc.Type, Tag: doc.Tag, Severity: doc.Severity, Message: err.Error(), Cause: err}
	}
	severity := SeverityError
	if errors.Is(err, ErrAskTimeout) {
		severity = SeverityWarning
	}
	return &DocumentedError{Type: ErrorTypeApplication, Tag: TagOperationFailed, Severity: severity, Message: err.Error(), Cause: err}
}
