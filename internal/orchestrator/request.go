package orchestrator

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/chainclass/defisim/internal/chain"
	"github.com/chainclass/defisim/internal/ledger"
)

// ActionKind names one pool action a client can request.
type ActionKind string

const (
	ActionSwap            ActionKind = "swap"
	ActionAddLiquidity    ActionKind = "add_liquidity"
	ActionRemoveLiquidity ActionKind = "remove_liquidity"
	ActionSnipe           ActionKind = "snipe"
	ActionComplete        ActionKind = "complete"
	ActionReset           ActionKind = "reset"
	ActionSetActive       ActionKind = "set_active"
)

// ActionRequest 一次待执行的池操作请求
//
// Only the fields of the requested Kind are read; the rest stay zero.
type ActionRequest struct {
	Kind   ActionKind
	Caller common.Address

	// swap
	AmountIn *big.Int
	InputIsA bool

	// add_liquidity
	AmountA *big.Int
	AmountB *big.Int

	// remove_liquidity
	Shares *big.Int

	// snipe
	Amount *big.Int

	// complete
	Label  string
	Result *big.Int

	// set_active
	Active bool
}

// validate runs the cheap local checks that never warrant a submission.
// The ledger itself is the authority; this only catches requests that are
// malformed regardless of pool state.
func (r ActionRequest) validate() error {
	if r.Caller == (common.Address{}) && r.Kind != ActionReset && r.Kind != ActionSetActive {
		return newValidationError("caller identity is required")
	}
	switch r.Kind {
	case ActionSwap:
		if !positive(r.AmountIn) {
			return newValidationError("swap amount must be positive")
		}
	case ActionAddLiquidity:
		if !positive(r.AmountA) || !positive(r.AmountB) {
			return newValidationError("both liquidity amounts must be positive")
		}
	case ActionRemoveLiquidity:
		if !positive(r.Shares) {
			return newValidationError("share amount must be positive")
		}
	case ActionSnipe:
		if !positive(r.Amount) {
			return newValidationError("snipe amount must be positive")
		}
	case ActionComplete:
		if r.Label == "" {
			return newValidationError("scenario label is required")
		}
	case ActionReset, ActionSetActive:
	default:
		return newValidationError("unknown action kind " + string(r.Kind))
	}
	return nil
}

// toCall materializes one single-use Call. Every attempt gets a fresh
// RequestID so a lost submission is never replayed under the old identity.
func (r ActionRequest) toCall() chain.Call {
	call := chain.Call{
		RequestID: uuid.NewString(),
		Caller:    r.Caller,
	}
	switch r.Kind {
	case ActionSwap:
		call.Method = chain.MethodSwap
		call.Args = []any{r.AmountIn, r.InputIsA}
	case ActionAddLiquidity:
		call.Method = chain.MethodAddLiquidity
		call.Args = []any{r.AmountA, r.AmountB}
	case ActionRemoveLiquidity:
		call.Method = chain.MethodRemoveLiquidity
		call.Args = []any{r.Shares}
	case ActionSnipe:
		call.Method = chain.MethodSnipe
		call.Args = []any{r.Amount}
	case ActionComplete:
		result := r.Result
		if result == nil {
			result = new(big.Int)
		}
		call.Method = chain.MethodComplete
		call.Args = []any{r.Label, result}
	case ActionReset:
		call.Method = chain.MethodReset
	case ActionSetActive:
		call.Method = chain.MethodSetActive
		call.Args = []any{r.Active}
	}
	return call
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// ActionOutcome is the terminal report for one confirmed request: what was
// applied, what it emitted, and a fresh post-confirmation snapshot.
//
// Pending marks the one non-terminal shape: the submission may or may not
// land, and only the snapshot fields are unset.
type ActionOutcome struct {
	Kind            ActionKind
	Caller          common.Address
	ConfirmationRef common.Hash
	Sequence        uint64
	Events          []ledger.DomainEvent

	ReserveA *big.Int
	ReserveB *big.Int
	Price    *big.Int

	Pending     bool
	ConfirmedAt time.Time
}
