package ledger

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketLedger is the authoritative state of a single two-asset constant
// product pool. Every mutating operation either applies in full and returns
// the events it emitted, or rejects with a *ValidationError and leaves the
// state untouched.
//
// The ledger itself is synchronous and in-process; confirmation latency and
// sequencing live in the execution environment that drives it (internal/chain).
type MarketLedger struct {
	mu sync.RWMutex

	owner    common.Address
	genesisA *big.Int
	genesisB *big.Int

	reserveA    *big.Int
	reserveB    *big.Int
	shareSupply *big.Int
	active      bool

	participants map[common.Address]*ParticipantShare

	now func() time.Time
}

// ParticipantShare is the per-identity record of minted liquidity shares and
// sniped balance. Zero balances are a valid terminal state, never deletion.
type ParticipantShare struct {
	Shares *big.Int
	Sniped *big.Int
}

// Snapshot is a consistent copy of the pool state.
type Snapshot struct {
	ReserveA    *big.Int
	ReserveB    *big.Int
	ShareSupply *big.Int
	Active      bool
}

// Genesis reserves of the reference deployment: 1000 token A, 2000 token B.
var (
	GenesisReserveA = Wad(1000)
	GenesisReserveB = Wad(2000)
)

// New creates a ledger at genesis: seed reserves, active, with the genesis
// liquidity attributed to the owner as the initial share supply. Attributing
// shares to the seed liquidity keeps removeLiquidity the exact inverse of
// addLiquidity for later contributors.
func New(owner common.Address) *MarketLedger {
	return NewWithGenesis(owner, GenesisReserveA, GenesisReserveB)
}

// NewWithGenesis creates a ledger with explicit seed reserves.
func NewWithGenesis(owner common.Address, reserveA, reserveB *big.Int) *MarketLedger {
	l := &MarketLedger{
		owner:        owner,
		genesisA:     new(big.Int).Set(reserveA),
		genesisB:     new(big.Int).Set(reserveB),
		participants: make(map[common.Address]*ParticipantShare),
		now:          time.Now,
	}
	l.restoreGenesisLocked()
	return l
}

// SetClock overrides the event timestamp source. Test hook.
func (l *MarketLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Owner returns the identity allowed to reset and (de)activate the pool.
func (l *MarketLedger) Owner() common.Address { return l.owner }

// Swap trades amountIn of one asset for the other under the constant product
// rule. Output is truncated toward zero; the reserve product never decreases.
func (l *MarketLedger) Swap(caller common.Address, amountIn *big.Int, inputIsA bool) (*big.Int, []DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActiveLocked(); err != nil {
		return nil, nil, err
	}
	if err := requirePositive("amountIn", amountIn); err != nil {
		return nil, nil, err
	}

	resIn, resOut := l.reserveA, l.reserveB
	if !inputIsA {
		resIn, resOut = l.reserveB, l.reserveA
	}

	// amountOut = resOut * amountIn / (resIn + amountIn), truncated.
	denom := new(big.Int).Add(resIn, amountIn)
	amountOut := new(big.Int).Mul(resOut, amountIn)
	amountOut.Quo(amountOut, denom)

	if amountOut.Sign() == 0 {
		return nil, nil, reject(ReasonDustOutput, "input too small, output truncates to zero")
	}
	if amountOut.Cmp(resOut) >= 0 {
		return nil, nil, reject(ReasonPoolDrained, "swap would empty the output reserve")
	}

	resIn.Add(resIn, amountIn)
	resOut.Sub(resOut, amountOut)

	ev := TradeExecuted{
		User:      caller,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(amountOut),
		At:        l.now(),
	}
	return amountOut, []DomainEvent{ev}, nil
}

// AddLiquidity contributes both assets at exactly the current reserve ratio
// and mints shares proportional to the contribution.
func (l *MarketLedger) AddLiquidity(caller common.Address, amountA, amountB *big.Int) (*big.Int, []DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActiveLocked(); err != nil {
		return nil, nil, err
	}
	if err := requirePositive("amountA", amountA); err != nil {
		return nil, nil, err
	}
	if err := requirePositive("amountB", amountB); err != nil {
		return nil, nil, err
	}

	// Exact cross-ratio check against the current reserves. At genesis this
	// works out to 1:2, but only because the reserves start 1000:2000.
	left := new(big.Int).Mul(amountA, l.reserveB)
	right := new(big.Int).Mul(amountB, l.reserveA)
	if left.Cmp(right) != 0 {
		return nil, nil, reject(ReasonRatioMismatch,
			"contribution must match the current reserve ratio %s:%s",
			FormatAmount(l.reserveA), FormatAmount(l.reserveB))
	}

	var shares *big.Int
	if l.shareSupply.Sign() == 0 {
		shares = new(big.Int).Set(amountA)
	} else {
		shares = new(big.Int).Mul(l.shareSupply, amountA)
		shares.Quo(shares, l.reserveA)
	}
	if shares.Sign() == 0 {
		return nil, nil, reject(ReasonDustOutput, "contribution too small to mint shares")
	}

	l.reserveA.Add(l.reserveA, amountA)
	l.reserveB.Add(l.reserveB, amountB)
	l.shareSupply.Add(l.shareSupply, shares)

	p := l.participantLocked(caller)
	p.Shares.Add(p.Shares, shares)

	at := l.now()
	events := []DomainEvent{
		LiquidityAdded{
			User:    caller,
			AmountA: new(big.Int).Set(amountA),
			AmountB: new(big.Int).Set(amountB),
			At:      at,
		},
		LiquiditySharesMinted{
			User:   caller,
			Shares: new(big.Int).Set(shares),
			At:     at,
		},
	}
	return shares, events, nil
}

// RemoveLiquidity burns the caller's shares and returns the proportional
// slice of both reserves.
func (l *MarketLedger) RemoveLiquidity(caller common.Address, shares *big.Int) (*big.Int, *big.Int, []DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActiveLocked(); err != nil {
		return nil, nil, nil, err
	}
	if err := requirePositive("shares", shares); err != nil {
		return nil, nil, nil, err
	}

	p := l.participantLocked(caller)
	if shares.Cmp(p.Shares) > 0 {
		return nil, nil, nil, reject(ReasonInsufficientShares,
			"have %s shares, tried to burn %s", FormatAmount(p.Shares), FormatAmount(shares))
	}

	amountA := new(big.Int).Mul(l.reserveA, shares)
	amountA.Quo(amountA, l.shareSupply)
	amountB := new(big.Int).Mul(l.reserveB, shares)
	amountB.Quo(amountB, l.shareSupply)

	// The pool must stay non-empty while active.
	if amountA.Cmp(l.reserveA) >= 0 || amountB.Cmp(l.reserveB) >= 0 {
		return nil, nil, nil, reject(ReasonPoolDrained, "removal would empty a reserve")
	}

	l.reserveA.Sub(l.reserveA, amountA)
	l.reserveB.Sub(l.reserveB, amountB)
	l.shareSupply.Sub(l.shareSupply, shares)
	p.Shares.Sub(p.Shares, shares)

	ev := LiquiditySharesBurned{
		User:    caller,
		Shares:  new(big.Int).Set(shares),
		AmountA: new(big.Int).Set(amountA),
		AmountB: new(big.Int).Set(amountB),
		At:      l.now(),
	}
	return amountA, amountB, []DomainEvent{ev}, nil
}

// Snipe credits the caller with newly minted units without touching the pool
// reserves. It models an out-of-band acquisition, not a swap.
func (l *MarketLedger) Snipe(caller common.Address, amount *big.Int) (*big.Int, []DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActiveLocked(); err != nil {
		return nil, nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, nil, err
	}

	p := l.participantLocked(caller)
	p.Sniped.Add(p.Sniped, amount)

	ev := TokensMinted{
		User:   caller,
		Amount: new(big.Int).Set(amount),
		At:     l.now(),
	}
	return new(big.Int).Set(amount), []DomainEvent{ev}, nil
}

// Complete records a finished teaching scenario. No pool state changes.
func (l *MarketLedger) Complete(caller common.Address, label string, result *big.Int) ([]DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActiveLocked(); err != nil {
		return nil, err
	}
	if label == "" {
		return nil, reject(ReasonBadParams, "label is required")
	}
	if result == nil {
		result = new(big.Int)
	}

	ev := SimulationCompleted{
		Label:  label,
		Result: new(big.Int).Set(result),
		At:     l.now(),
	}
	return []DomainEvent{ev}, nil
}

// Reset restores genesis reserves and the genesis share allocation and zeroes
// every participant record. Owner only; valid in any state.
func (l *MarketLedger) Reset(caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return reject(ReasonNotOwner, "reset is restricted to the pool owner")
	}
	l.restoreGenesisLocked()
	return nil
}

// SetActive gates all other mutating operations. Owner only.
func (l *MarketLedger) SetActive(caller common.Address, flag bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return reject(ReasonNotOwner, "setActive is restricted to the pool owner")
	}
	l.active = flag
	return nil
}

// Reserves returns copies of the current reserves.
func (l *MarketLedger) Reserves() (*big.Int, *big.Int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.reserveA), new(big.Int).Set(l.reserveB)
}

// Price returns reserveB/reserveA scaled to a wad, rounded down.
func (l *MarketLedger) Price() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.priceLocked()
}

// UserValue estimates the redeemable value of an identity's shares at the
// current price plus its sniped balance, quoted in token B.
func (l *MarketLedger) UserValue(id common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	value := new(big.Int)
	p, ok := l.participants[id]
	if !ok {
		return value
	}
	if p.Shares.Sign() > 0 && l.shareSupply.Sign() > 0 {
		redeemA := new(big.Int).Mul(l.reserveA, p.Shares)
		redeemA.Quo(redeemA, l.shareSupply)
		redeemB := new(big.Int).Mul(l.reserveB, p.Shares)
		redeemB.Quo(redeemB, l.shareSupply)

		value.Mul(redeemA, l.priceLocked())
		value.Quo(value, wadScale)
		value.Add(value, redeemB)
	}
	value.Add(value, p.Sniped)
	return value
}

// Participant returns a copy of an identity's share record.
func (l *MarketLedger) Participant(id common.Address) ParticipantShare {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.participants[id]
	if !ok {
		return ParticipantShare{Shares: new(big.Int), Sniped: new(big.Int)}
	}
	return ParticipantShare{
		Shares: new(big.Int).Set(p.Shares),
		Sniped: new(big.Int).Set(p.Sniped),
	}
}

// Snapshot returns a consistent copy of the pool state.
func (l *MarketLedger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		ReserveA:    new(big.Int).Set(l.reserveA),
		ReserveB:    new(big.Int).Set(l.reserveB),
		ShareSupply: new(big.Int).Set(l.shareSupply),
		Active:      l.active,
	}
}

// Active reports whether mutating operations are currently allowed.
func (l *MarketLedger) Active() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

func (l *MarketLedger) priceLocked() *big.Int {
	p := new(big.Int).Mul(l.reserveB, wadScale)
	return p.Quo(p, l.reserveA)
}

func (l *MarketLedger) requireActiveLocked() error {
	if !l.active {
		return reject(ReasonInactive, "pool is inactive")
	}
	return nil
}

func (l *MarketLedger) participantLocked(id common.Address) *ParticipantShare {
	p, ok := l.participants[id]
	if !ok {
		p = &ParticipantShare{Shares: new(big.Int), Sniped: new(big.Int)}
		l.participants[id] = p
	}
	return p
}

func (l *MarketLedger) restoreGenesisLocked() {
	l.reserveA = new(big.Int).Set(l.genesisA)
	l.reserveB = new(big.Int).Set(l.genesisB)
	l.participants = make(map[common.Address]*ParticipantShare)
	l.active = true

	// The seed liquidity is attributed to the owner as the initial supply so
	// share math stays proportional from the first contribution on.
	l.shareSupply = new(big.Int).Set(l.genesisA)
	l.participants[l.owner] = &ParticipantShare{
		Shares: new(big.Int).Set(l.genesisA),
		Sniped: new(big.Int),
	}
}

func requirePositive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return reject(ReasonZeroAmount, "%s must be positive", name)
	}
	return nil
}
