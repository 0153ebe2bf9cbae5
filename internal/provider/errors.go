package provider

import (
	"errors"

	"transit-reconciler/internal/messages"
)

var (
	ErrUpstream        = errors.New("upstream provider error")
	ErrNotSupported    = errors.New("operation not supported by provider")
	ErrNotFound        = errors.New("no matching entity")
	ErrUnknownProvider = errors.New("unknown data provider")
)

// UpstreamError is the single failure kind adapters surface. Error returns
// the localized message only, the cause stays reachable through Unwrap.
type UpstreamError struct {
	Op      string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string { return e.Message }

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Upstream builds an UpstreamError whose message is looked up under key.
func Upstream(msgs *messages.Catalog, op, key string, cause error) error {
	return &UpstreamError{Op: op, Message: msgs.Get(key), Err: cause}
}

// NotSupported is an UpstreamError that also matches ErrNotSupported.
func NotSupported(msgs *messages.Catalog, op string) error {
	return &UpstreamError{Op: op, Message: msgs.Get(messages.NotSupported), Err: ErrNotSupported}
}
