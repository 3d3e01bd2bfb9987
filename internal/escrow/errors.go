package escrow

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can render a specific remedy instead
// of a generic error.
type Kind string

const (
	KindInvalidAgreement    Kind = "invalid_agreement"
	KindInvalidAmount       Kind = "invalid_amount"
	KindWalletNotConnected  Kind = "wallet_not_connected"
	KindTenantWalletMissing Kind = "tenant_wallet_missing"
	KindUserRejected        Kind = "user_rejected"
	KindPreconditionFailed  Kind = "precondition_failed"
	KindNetworkRejected     Kind = "network_rejected"
)

// Error carries the failure kind across the dispatcher/orchestrator boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
