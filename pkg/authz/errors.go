package authz

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("authz: not authenticated")
)

// SchemaError reports a malformed or unregistered type, role, or permission.
// Schema validation runs eagerly at load, so seeing one at request time means
// the caller skipped registration.
type SchemaError struct {
	msg string
}

func NewSchemaError(format string, args ...interface{}) SchemaError {
	return SchemaError{msg: fmt.Sprintf(format, args...)}
}

func (err SchemaError) Error() string {
	return "authz: schema: " + err.msg
}

// StoreUnavailableError wraps a failed or timed-out lookup against a backing
// store. It always resolves to Deny at the gateway boundary.
type StoreUnavailableError struct {
	cause error
}

func NewStoreUnavailableError(cause error) StoreUnavailableError {
	return StoreUnavailableError{cause: cause}
}

func (err StoreUnavailableError) Error() string {
	return fmt.Sprintf("authz: store unavailable: %s", err.cause)
}

func (err StoreUnavailableError) Unwrap() error {
	return err.cause
}
