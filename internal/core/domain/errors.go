package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrUpstream      = errors.New("upstream service error")
	ErrValidation    = errors.New("validation error")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrTemporary     = errors.New("temporary failure")
)

// Gateway names used in GatewayError.
const (
	GatewayEmbedding   = "embedding"
	GatewayVectorStore = "vector_store"
	GatewayGeneration  = "generation"
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// GatewayError reports a failed call to an external capability. It matches
// ErrUpstream and the underlying cause through errors.Is.
type GatewayError struct {
	Gateway   string
	Operation string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway: %s: %v", e.Gateway, e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

func UpstreamError(gateway, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Gateway: gateway, Operation: operation, Err: err}
}

// FailedGateway returns the gateway name carried by err, if any.
func FailedGateway(err error) (string, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Gateway, true
	}
	return "", false
}
