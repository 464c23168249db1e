package types

import "errors"

var (
	ErrUnauthenticated       = errors.New("not authenticated")
	ErrInsufficientAuthority = errors.New("insufficient authority")
	ErrDuplicateDecision     = errors.New("application already has a final decision")
	ErrConflict              = errors.New("conflicting concurrent finalize")
	ErrLedgerWrite           = errors.New("ledger write failed")
	ErrAuthorityLookup       = errors.New("authority lookup failed")
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("invalid request")
)

// ErrorCode maps an error to the stable code surfaced to callers.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrInsufficientAuthority):
		return "INSUFFICIENT_AUTHORITY"
	case errors.Is(err, ErrDuplicateDecision):
		return "DUPLICATE_DECISION"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrLedgerWrite):
		return "LEDGER_WRITE"
	case errors.Is(err, ErrAuthorityLookup):
		return "AUTHORITY_LOOKUP"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	default:
		return "INTERNAL"
	}
}
