package orchestrator

import (
	"errors"

	"github.com/chainclass/defisim/internal/chain"
	"github.com/chainclass/defisim/internal/ledger"
)

// ErrorClass drives the retry decision for one failed attempt.
type ErrorClass int

const (
	// ClassValidation: the request itself is bad. Never retried; the same
	// request can only fail the same way.
	ClassValidation ErrorClass = iota + 1
	// ClassTransient: communication trouble. Retried with backoff up to the
	// attempt cap.
	ClassTransient
	// ClassFatal: the operating identity cannot submit at all. Aborts.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	}
	return "unknown"
}

// OrchestrationError is a classified failure of one action request.
type OrchestrationError struct {
	Class ErrorClass
	Err   error
}

func (e *OrchestrationError) Error() string {
	return e.Class.String() + ": " + e.Err.Error()
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

func newValidationError(msg string) *OrchestrationError {
	return &OrchestrationError{Class: ClassValidation, Err: errors.New(msg)}
}

// classify sorts a submission failure into its retry class. Anything not
// recognizably a rejection or an identity failure is presumed reachable
// again, so it defaults to transient.
func classify(err error) *OrchestrationError {
	var oe *OrchestrationError
	if errors.As(err, &oe) {
		return oe
	}
	if chain.IsFatal(err) {
		return &OrchestrationError{Class: ClassFatal, Err: err}
	}
	var revert *chain.RevertError
	if errors.As(err, &revert) {
		return &OrchestrationError{Class: ClassValidation, Err: err}
	}
	if ve, ok := ledger.AsValidation(err); ok {
		return &OrchestrationError{Class: ClassValidation, Err: ve}
	}
	return &OrchestrationError{Class: ClassTransient, Err: err}
}

// ClassOf extracts the class of an orchestration failure, or false when err
// did not come from the orchestrator.
func ClassOf(err error) (ErrorClass, bool) {
	var oe *OrchestrationError
	if errors.As(err, &oe) {
		return oe.Class, true
	}
	return 0, false
}
