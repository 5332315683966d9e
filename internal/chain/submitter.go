// Package chain is the boundary to the execution environment that confirms
// pool actions: an Ethereum-style network in production, an in-process
// simulated backend for tests and local teaching deployments. Both expose
// the same submit/wait/read surface.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainclass/defisim/internal/ledger"
)

// Contract method names of the reference deployment.
const (
	MethodSwap            = "simulateAMM"
	MethodAddLiquidity    = "addLiquidity"
	MethodRemoveLiquidity = "removeLiquidity"
	MethodSnipe           = "simulateTokenSniping"
	MethodReset           = "resetSimulation"
	MethodSetActive       = "setActive"
	MethodComplete        = "completeSimulation"
)

// Call is one writer action bound for the execution environment. A Call is
// single-use: a retry must build a fresh Call with a new RequestID so a
// dropped submission can never be applied twice.
type Call struct {
	RequestID string
	Method    string
	Args      []any
	// Caller is the simulated participant the action is performed for. The
	// operating identity signs on their behalf.
	Caller common.Address
}

// Status is the terminal disposition of a submitted call.
type Status int

const (
	// StatusApplied: the operation validated and its effect is irrevocable.
	StatusApplied Status = iota + 1
	// StatusReverted: the operation's own validation failed; nothing changed.
	StatusReverted
)

// Receipt is the terminal acknowledgment for one submitted call.
type Receipt struct {
	Ref          common.Hash
	Sequence     uint64
	Status       Status
	Events       []ledger.DomainEvent
	RevertReason string
}

// Submitter hands writer actions to the execution environment.
//
// Submissions race for sequence slots: the caller must serialize its own
// Submit calls (the orchestrator runs a single submit worker). Wait blocks
// until the receipt is terminal or ctx ends; a ctx error means only that
// waiting stopped, never that the action failed.
type Submitter interface {
	Submit(ctx context.Context, call Call) (common.Hash, error)
	Wait(ctx context.Context, ref common.Hash) (*Receipt, error)
}

// Reader serves the read-only pool queries against confirmed state.
type Reader interface {
	Reserves(ctx context.Context) (*big.Int, *big.Int, error)
	Price(ctx context.Context) (*big.Int, error)
	UserValue(ctx context.Context, id common.Address) (*big.Int, error)
}

// Backend is a full execution environment: it accepts writes and serves reads.
type Backend interface {
	Submitter
	Reader
}

// Fatal submission failures of the operating identity. These abort without
// retry and need operator intervention.
var (
	ErrUnderfunded  = errors.New("chain: operating identity cannot fund the submission")
	ErrUnauthorized = errors.New("chain: operating identity rejected by the execution environment")
)

// IsFatal reports whether err is an operating-identity failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnderfunded) || errors.Is(err, ErrUnauthorized)
}

// RevertError is a pre-inclusion rejection: the environment evaluated the
// call and refused it before it was ever sequenced. Equivalent to a
// StatusReverted receipt.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "chain: call would revert: " + e.Reason
}
