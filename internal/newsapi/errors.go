package newsapi

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindNetwork Kind = iota + 1
	KindDecode
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

var (
	ErrNetwork  = errors.New("network failure")
	ErrDecode   = errors.New("decode failure")
	ErrConflict = errors.New("item already gone")
)

// Error is returned by every Client method that reaches the remote service.
type Error struct {
	Op     string
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

// KindOf returns the Kind of err, or 0 when err did not come from this package.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

func networkError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

func decodeError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindDecode, Err: err}
}

// statusError classifies a non-2xx response. Gone items are only a conflict
// for operations that target a single item.
func statusError(op string, status int, body string, itemScoped bool) *Error {
	kind := KindNetwork
	if itemScoped && (status == http.StatusNotFound || status == http.StatusGone) {
		kind = KindConflict
	}
	if body == "" {
		body = http.StatusText(status)
	}
	return &Error{Op: op, Kind: kind, Status: status, Err: errors.New(body)}
}
