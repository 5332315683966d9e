package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainclass/defisim/internal/chain"
	"github.com/chainclass/defisim/internal/ledger"
)

var (
	testOwner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testTrader = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// scriptedBackend plays back one canned reaction per Submit call and
// records every Call it saw.
type scriptedBackend struct {
	mu      sync.Mutex
	script  []func(chain.Call) (common.Hash, error)
	calls   []chain.Call
	receipt *chain.Receipt
	waitErr error
}

func (s *scriptedBackend) Submit(_ context.Context, call chain.Call) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if len(s.script) == 0 {
		return common.Hash{}, errors.New("script exhausted")
	}
	step := s.script[0]
	s.script = s.script[1:]
	return step(call)
}

func (s *scriptedBackend) Wait(ctx context.Context, ref common.Hash) (*chain.Receipt, error) {
	if s.waitErr != nil {
		return nil, s.waitErr
	}
	rcpt := *s.receipt
	rcpt.Ref = ref
	return &rcpt, nil
}

func (s *scriptedBackend) Reserves(context.Context) (*big.Int, *big.Int, error) {
	return ledger.Wad(1001), ledger.Wad(1998), nil
}

func (s *scriptedBackend) Price(context.Context) (*big.Int, error) {
	return ledger.Wad(2), nil
}

func (s *scriptedBackend) UserValue(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

func accept(call chain.Call) (common.Hash, error) {
	return common.BytesToHash([]byte(call.RequestID)), nil
}

func flakyOnce(err error) func(chain.Call) (common.Hash, error) {
	return func(chain.Call) (common.Hash, error) { return common.Hash{}, err }
}

func fastConfig() Config {
	return Config{MaxAttempts: 3, ConfirmTimeout: time.Second, RetryBase: time.Millisecond, RetryMax: 2 * time.Millisecond}
}

func startOrchestrator(t *testing.T, backend chain.Backend, cfg Config) *Orchestrator {
	t.Helper()
	o := New(backend, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	o.Start(ctx)
	return o
}

func swapRequest() ActionRequest {
	return ActionRequest{Kind: ActionSwap, Caller: testTrader, AmountIn: ledger.Wad(1), InputIsA: true}
}

func TestExecuteAppliedOutcome(t *testing.T) {
	backend := &scriptedBackend{
		script:  []func(chain.Call) (common.Hash, error){accept},
		receipt: &chain.Receipt{Sequence: 7, Status: chain.StatusApplied, Events: []ledger.DomainEvent{ledger.TradeExecuted{User: testTrader}}},
	}
	o := startOrchestrator(t, backend, fastConfig())

	outcome, err := o.Execute(context.Background(), swapRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Pending {
		t.Fatal("applied outcome marked pending")
	}
	if outcome.Sequence != 7 {
		t.Fatalf("sequence = %d", outcome.Sequence)
	}
	if len(outcome.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(outcome.Events))
	}
	// Snapshot fields come from the post-confirmation read.
	if outcome.ReserveA.Cmp(ledger.Wad(1001)) != 0 || outcome.Price.Cmp(ledger.Wad(2)) != 0 {
		t.Fatalf("snapshot = %s / %s", outcome.ReserveA, outcome.Price)
	}
	if outcome.ConfirmedAt.IsZero() {
		t.Fatal("ConfirmedAt unset")
	}
}

func TestExecuteLocalValidationNeverSubmits(t *testing.T) {
	backend := &scriptedBackend{}
	o := startOrchestrator(t, backend, fastConfig())

	_, err := o.Execute(context.Background(), ActionRequest{Kind: ActionSwap, Caller: testTrader, AmountIn: big.NewInt(-1)})
	if class, ok := ClassOf(err); !ok || class != ClassValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("invalid request reached the backend %d times", len(backend.calls))
	}
}

func TestExecuteRejectionIsNotRetried(t *testing.T) {
	backend := &scriptedBackend{
		script:  []func(chain.Call) (common.Hash, error){accept},
		receipt: &chain.Receipt{Status: chain.StatusReverted, RevertReason: string(ledger.ReasonRatioMismatch)},
	}
	o := startOrchestrator(t, backend, fastConfig())

	_, err := o.Execute(context.Background(), swapRequest())
	if class, ok := ClassOf(err); !ok || class != ClassValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("rejected request was submitted %d times", len(backend.calls))
	}
}

func TestExecuteRetriesTransientWithFreshCalls(t *testing.T) {
	backend := &scriptedBackend{
		script: []func(chain.Call) (common.Hash, error){
			flakyOnce(errors.New("connection refused")),
			flakyOnce(errors.New("i/o timeout")),
			accept,
		},
		receipt: &chain.Receipt{Sequence: 3, Status: chain.StatusApplied},
	}
	o := startOrchestrator(t, backend, fastConfig())

	outcome, err := o.Execute(context.Background(), swapRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Pending {
		t.Fatal("outcome pending after successful third attempt")
	}
	if len(backend.calls) != 3 {
		t.Fatalf("submitted %d times, want 3", len(backend.calls))
	}
	seen := map[string]bool{}
	for _, call := range backend.calls {
		if call.RequestID == "" || seen[call.RequestID] {
			t.Fatalf("request id %q reused across attempts", call.RequestID)
		}
		seen[call.RequestID] = true
	}
}

func TestExecuteExhaustionReportsPending(t *testing.T) {
	fail := flakyOnce(errors.New("connection refused"))
	backend := &scriptedBackend{script: []func(chain.Call) (common.Hash, error){fail, fail, fail}}
	o := startOrchestrator(t, backend, fastConfig())

	outcome, err := o.Execute(context.Background(), swapRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Pending {
		t.Fatal("exhausted request not reported pending")
	}
	if len(backend.calls) != 3 {
		t.Fatalf("submitted %d times, want 3", len(backend.calls))
	}
}

func TestExecuteFatalAborts(t *testing.T) {
	backend := &scriptedBackend{
		script: []func(chain.Call) (common.Hash, error){flakyOnce(chain.ErrUnderfunded)},
	}
	o := startOrchestrator(t, backend, fastConfig())

	_, err := o.Execute(context.Background(), swapRequest())
	if class, ok := ClassOf(err); !ok || class != ClassFatal {
		t.Fatalf("err = %v, want fatal", err)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("fatal failure retried: %d submissions", len(backend.calls))
	}
}

func TestExecuteWaitTimeoutReportsPending(t *testing.T) {
	backend := &scriptedBackend{
		script:  []func(chain.Call) (common.Hash, error){accept},
		waitErr: context.DeadlineExceeded,
	}
	o := startOrchestrator(t, backend, fastConfig())

	outcome, err := o.Execute(context.Background(), swapRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Pending {
		t.Fatal("unconfirmable request not reported pending")
	}
	if (outcome.ConfirmationRef == common.Hash{}) {
		t.Fatal("pending outcome lost the ref of the in-flight submission")
	}
	if len(backend.calls) != 1 {
		t.Fatalf("in-flight request resubmitted: %d submissions", len(backend.calls))
	}
}

func TestObserversHearConfirmedOutcomes(t *testing.T) {
	backend := &scriptedBackend{
		script:  []func(chain.Call) (common.Hash, error){accept},
		receipt: &chain.Receipt{Status: chain.StatusApplied},
	}
	o := startOrchestrator(t, backend, fastConfig())

	heard := make(chan ActionOutcome, 1)
	o.Subscribe(ObserverFunc(func(out ActionOutcome) { heard <- out }))

	if _, err := o.Execute(context.Background(), swapRequest()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	select {
	case out := <-heard:
		if out.Kind != ActionSwap || out.Pending {
			t.Fatalf("observer outcome = %+v", out)
		}
	case <-time.After(time.Second):
		t.Fatal("observer never notified")
	}
}

// End to end against the in-process execution environment: the outcome's
// snapshot must reflect this action, not stale pre-action state.
func TestReadAfterWriteAgainstSim(t *testing.T) {
	sim := chain.NewSim(ledger.New(testOwner), chain.SimConfig{Latency: 10 * time.Millisecond})
	o := startOrchestrator(t, sim, fastConfig())

	outcome, err := o.Execute(context.Background(), swapRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Pending {
		t.Fatal("confirmed swap reported pending")
	}
	if outcome.ReserveA.Cmp(ledger.Wad(1001)) != 0 {
		t.Fatalf("post-swap reserveA = %s, want 1001 wad", outcome.ReserveA)
	}
	if outcome.ReserveB.Cmp(ledger.Wad(2000)) >= 0 {
		t.Fatalf("post-swap reserveB = %s, want below genesis", outcome.ReserveB)
	}

	// A second action observes the first one's effects.
	outcome2, err := o.Execute(context.Background(), ActionRequest{
		Kind: ActionAddLiquidity, Caller: testTrader,
		AmountA: outcome.ReserveA, AmountB: outcome.ReserveB,
	})
	if err != nil {
		t.Fatalf("Execute add: %v", err)
	}
	wantA := new(big.Int).Mul(outcome.ReserveA, big.NewInt(2))
	if outcome2.ReserveA.Cmp(wantA) != 0 {
		t.Fatalf("reserveA after doubling = %s, want %s", outcome2.ReserveA, wantA)
	}
}
