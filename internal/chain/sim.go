package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/chainclass/defisim/internal/ledger"
)

var simLog = logrus.WithField("component", "chain.sim")

// SimConfig configures the in-process execution environment.
type SimConfig struct {
	// Latency is the artificial confirmation delay per submission. Zero
	// confirms on the next Wait without delay.
	Latency time.Duration
}

// Sim is an in-process execution environment wrapping the authoritative
// MarketLedger. It assigns a strictly increasing sequence number per
// submission and applies the call only after the configured confirmation
// latency, so reads issued before confirmation observe the old state —
// exactly the partial-visibility window a real network has.
type Sim struct {
	ledger  *ledger.MarketLedger
	latency time.Duration

	mu      sync.Mutex
	nextSeq uint64
	pending map[common.Hash]*simTx
}

type simTx struct {
	seq     uint64
	call    Call
	done    chan struct{}
	receipt *Receipt
}

// NewSim wraps lgr in a simulated execution environment.
func NewSim(lgr *ledger.MarketLedger, cfg SimConfig) *Sim {
	return &Sim{
		ledger:  lgr,
		latency: cfg.Latency,
		nextSeq: 1,
		pending: make(map[common.Hash]*simTx),
	}
}

// Ledger exposes the wrapped ledger. Test hook.
func (s *Sim) Ledger() *ledger.MarketLedger { return s.ledger }

// Submit sequences the call and schedules its application after the
// confirmation latency. The sequence slot is allocated atomically, so a
// well-behaved caller that serializes Submit never collides.
func (s *Sim) Submit(ctx context.Context, call Call) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if err := checkCallShape(call); err != nil {
		return common.Hash{}, err
	}

	s.mu.Lock()
	seq := s.nextSeq
	s.nextSeq++
	ref := simRef(seq, call.RequestID)
	tx := &simTx{seq: seq, call: call, done: make(chan struct{})}
	s.pending[ref] = tx
	s.mu.Unlock()

	simLog.WithFields(logrus.Fields{
		"method": call.Method,
		"seq":    seq,
		"ref":    ref.Hex(),
	}).Debug("submitted")

	if s.latency <= 0 {
		s.apply(ref, tx)
	} else {
		time.AfterFunc(s.latency, func() { s.apply(ref, tx) })
	}
	return ref, nil
}

// Wait blocks until the submission's receipt is terminal or ctx ends.
func (s *Sim) Wait(ctx context.Context, ref common.Hash) (*Receipt, error) {
	s.mu.Lock()
	tx, ok := s.pending[ref]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("chain: unknown submission %s", ref.Hex())
	}
	select {
	case <-tx.done:
		return tx.receipt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Sim) apply(ref common.Hash, tx *simTx) {
	events, err := s.execute(tx.call)
	rcpt := &Receipt{Ref: ref, Sequence: tx.seq}
	if err != nil {
		rcpt.Status = StatusReverted
		rcpt.RevertReason = err.Error()
	} else {
		rcpt.Status = StatusApplied
		rcpt.Events = events
	}
	tx.receipt = rcpt
	close(tx.done)
}

func (s *Sim) execute(call Call) ([]ledger.DomainEvent, error) {
	switch call.Method {
	case MethodSwap:
		_, events, err := s.ledger.Swap(call.Caller, call.Args[0].(*big.Int), call.Args[1].(bool))
		return events, err
	case MethodAddLiquidity:
		_, events, err := s.ledger.AddLiquidity(call.Caller, call.Args[0].(*big.Int), call.Args[1].(*big.Int))
		return events, err
	case MethodRemoveLiquidity:
		_, _, events, err := s.ledger.RemoveLiquidity(call.Caller, call.Args[0].(*big.Int))
		return events, err
	case MethodSnipe:
		_, events, err := s.ledger.Snipe(call.Caller, call.Args[0].(*big.Int))
		return events, err
	case MethodComplete:
		return s.ledger.Complete(call.Caller, call.Args[0].(string), call.Args[1].(*big.Int))
	case MethodReset:
		return nil, s.ledger.Reset(call.Caller)
	case MethodSetActive:
		return nil, s.ledger.SetActive(call.Caller, call.Args[0].(bool))
	}
	return nil, fmt.Errorf("chain: unknown method %q", call.Method)
}

// checkCallShape rejects malformed calls before they consume a sequence slot.
func checkCallShape(call Call) error {
	want := map[string]int{
		MethodSwap:            2,
		MethodAddLiquidity:    2,
		MethodRemoveLiquidity: 1,
		MethodSnipe:           1,
		MethodComplete:        2,
		MethodReset:           0,
		MethodSetActive:       1,
	}
	n, ok := want[call.Method]
	if !ok {
		return fmt.Errorf("chain: unknown method %q", call.Method)
	}
	if len(call.Args) != n {
		return fmt.Errorf("chain: %s expects %d args, got %d", call.Method, n, len(call.Args))
	}
	return nil
}

// Reserves reads the confirmed reserves.
func (s *Sim) Reserves(ctx context.Context) (*big.Int, *big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	a, b := s.ledger.Reserves()
	return a, b, nil
}

// Price reads the confirmed wad-scaled price.
func (s *Sim) Price(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ledger.Price(), nil
}

// UserValue reads the confirmed holdings value of one identity.
func (s *Sim) UserValue(ctx context.Context, id common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ledger.UserValue(id), nil
}

func simRef(seq uint64, requestID string) common.Hash {
	buf := make([]byte, 8, 8+len(requestID))
	binary.BigEndian.PutUint64(buf, seq)
	return crypto.Keccak256Hash(append(buf, requestID...))
}
