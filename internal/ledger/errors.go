package ledger

import (
	"errors"
	"fmt"
)

// Reason identifies why an operation was rejected. Reasons are stable
// strings: they cross the execution boundary inside receipts and come back
// to callers verbatim.
type Reason string

const (
	ReasonInactive           Reason = "pool_inactive"
	ReasonZeroAmount         Reason = "zero_amount"
	ReasonDustOutput         Reason = "dust_output"
	ReasonPoolDrained        Reason = "pool_drained"
	ReasonRatioMismatch      Reason = "ratio_mismatch"
	ReasonInsufficientShares Reason = "insufficient_shares"
	ReasonNotOwner           Reason = "not_owner"
	ReasonBadParams          Reason = "bad_params"
)

// ValidationError is the rejection of a ledger operation. The state is
// untouched whenever one is returned.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func reject(reason Reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// AsValidation unwraps err into a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
