package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is a caller error detected before any network call
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUpstream is a failure reported by an aggregator or chain API
	ErrUpstream = errors.New("upstream error")
	// ErrDelegation means the custodial wallet service refused to sign
	ErrDelegation = errors.New("delegated signing rejected")
	// ErrIncompleteSignature means a required signature slot is still empty
	ErrIncompleteSignature = errors.New("incomplete signature")
	// ErrSubmission means the chain RPC rejected the broadcast or the transaction failed on chain
	ErrSubmission = errors.New("submission rejected")
	// ErrConfirmationTimeout means the transaction was broadcast but not observed confirmed in time
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	// ErrTimedOut means an async order did not reach a terminal state within its budget
	ErrTimedOut = errors.New("timed out")
	// ErrPrecision means a conversion would drop significant digits
	ErrPrecision = errors.New("precision loss")
	// ErrInvalidParameter is a misuse of the amount calculator
	ErrInvalidParameter = errors.New("invalid parameter")
)

// UpstreamError carries the provider status for a failed API call
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUpstream) match any UpstreamError
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// KindOf returns a stable name for the error class, used in results and JSON output
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrIncompleteSignature):
		return "incomplete_signature"
	case errors.Is(err, ErrDelegation):
		return "delegation_error"
	case errors.Is(err, ErrSubmission):
		return "submission_error"
	case errors.Is(err, ErrConfirmationTimeout):
		return "confirmation_timeout"
	case errors.Is(err, ErrTimedOut):
		return "timed_out"
	case errors.Is(err, ErrPrecision):
		return "precision_error"
	case errors.Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "internal_error"
	}
}
