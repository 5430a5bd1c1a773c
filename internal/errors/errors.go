// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure that reaches the terminal carries a machine-readable Kind so the
// presenter can pick guidance for it, and a short Message that is safe to show.
//
// The package supports wrapping underlying errors while maintaining error kind
// information; standard library errors.Is / errors.As see through E via Unwrap.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// EmptyInput indicates that no statement could be recovered from model output.
	EmptyInput Kind = "empty_input"
	// PolicyRejected indicates that the policy validator refused a statement.
	PolicyRejected Kind = "policy_rejected"
	// Timeout indicates that a statement did not finish within its deadline.
	Timeout Kind = "timeout"
	// SQLError indicates that the database engine reported an error.
	SQLError Kind = "sql_error"
	// ModelFailed indicates that the language model call failed.
	ModelFailed Kind = "model_failed"
	// ConfigInvalid indicates an unusable configuration value.
	ConfigInvalid Kind = "config_invalid"
	// SecretStore indicates the OS keychain could not be used.
	SecretStore Kind = "secret_store"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the Kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
