package archive

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind classifies the error taxonomy the core raises. Every operation in
// this package fails with an error that either is, or wraps, one of the
// sentinels below; callers should use [errors.Is] rather than comparing
// strings.
type Kind uint8

const (
	// KindNotFound reports a missing id or content row.
	KindNotFound Kind = iota
	// KindLock reports the document is locked by another user, or the
	// operation is not valid in the document's current state.
	KindLock
	// KindAuth reports a viewonly user attempted a mutation, or
	// authentication is otherwise missing.
	KindAuth
	// KindInvalid reports malformed input: a bad patch header, an empty
	// separator passed to PARTSCOUNT, an empty required meta-tag string.
	KindInvalid
	// KindEngine reports an underlying SQL or compression failure.
	KindEngine
	// KindIntegrity reports a structural invariant broken at read time.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindLock:
		return "lock"
	case KindAuth:
		return "auth"
	case KindInvalid:
		return "invalid"
	case KindEngine:
		return "engine"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Sentinel errors for each [Kind], usable with [errors.Is].
var (
	ErrNotFound  = errors.New("document not found")
	ErrLocked    = errors.New("document locked or in wrong state")
	ErrAuth      = errors.New("authentication required")
	ErrInvalid   = errors.New("invalid input")
	ErrEngine    = errors.New("storage engine error")
	ErrIntegrity = errors.New("storage integrity violation")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindLock:
		return ErrLocked
	case KindAuth:
		return ErrAuth
	case KindInvalid:
		return ErrInvalid
	case KindEngine:
		return ErrEngine
	case KindIntegrity:
		return ErrIntegrity
	default:
		return ErrEngine
	}
}

// Error is the uniform error type returned by every public archive
// operation. It carries enough structured context (kind, operation name,
// document id) for a caller or an RPC wrapper to map it onto a remote
// exception without parsing the message.
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Err  error
}

func newErr(kind Kind, op string, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	if e.ID != "" {
		return fmt.Sprintf("%s (id=%s)", msg, e.ID)
	}

	return msg
}

// Unwrap exposes both the wrapped cause (if any) and the Kind's sentinel, so
// errors.Is(err, ErrNotFound) works even when Err is nil or a different
// concrete error (e.g. a *sql.DB failure wrapped under KindEngine).
func (e *Error) Unwrap() []error {
	sentinel := sentinelFor(e.Kind)
	if e.Err == nil {
		return []error{sentinel}
	}

	return []error{sentinel, e.Err}
}

// engineError wraps err together with the file and line of the call into
// the storage engine that produced it, so an operator can locate the
// failing query without re-deriving it from the operation name alone.
type engineError struct {
	file string
	line int
	err  error
}

func (e *engineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.file, e.line, e.err)
}

func (e *engineError) Unwrap() error {
	return e.err
}

func newEngineError(err error) *engineError {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown", 0
	}

	return &engineError{file: file, line: line, err: err}
}
