package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind discriminates the DomainEvent variants on the wire.
type EventKind string

const (
	KindTradeExecuted         EventKind = "TradeExecuted"
	KindLiquidityAdded        EventKind = "LiquidityAdded"
	KindLiquiditySharesMinted EventKind = "LiquiditySharesMinted"
	KindLiquiditySharesBurned EventKind = "LiquiditySharesBurned"
	KindTokensMinted          EventKind = "TokensMinted"
	KindSimulationCompleted   EventKind = "SimulationCompleted"
)

// DomainEvent is produced by a successful ledger operation and consumed
// read-only by the orchestrator and the result reporter.
type DomainEvent interface {
	Kind() EventKind
	OccurredAt() time.Time
}

// TradeExecuted 交易成交事件
type TradeExecuted struct {
	User      common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	At        time.Time
}

func (e TradeExecuted) Kind() EventKind       { return KindTradeExecuted }
func (e TradeExecuted) OccurredAt() time.Time { return e.At }

// LiquidityAdded 注入流动性事件
type LiquidityAdded struct {
	User    common.Address
	AmountA *big.Int
	AmountB *big.Int
	At      time.Time
}

func (e LiquidityAdded) Kind() EventKind       { return KindLiquidityAdded }
func (e LiquidityAdded) OccurredAt() time.Time { return e.At }

// LiquiditySharesMinted 份额铸造事件
type LiquiditySharesMinted struct {
	User   common.Address
	Shares *big.Int
	At     time.Time
}

func (e LiquiditySharesMinted) Kind() EventKind       { return KindLiquiditySharesMinted }
func (e LiquiditySharesMinted) OccurredAt() time.Time { return e.At }

// LiquiditySharesBurned 份额销毁事件
type LiquiditySharesBurned struct {
	User    common.Address
	Shares  *big.Int
	AmountA *big.Int
	AmountB *big.Int
	At      time.Time
}

func (e LiquiditySharesBurned) Kind() EventKind       { return KindLiquiditySharesBurned }
func (e LiquiditySharesBurned) OccurredAt() time.Time { return e.At }

// TokensMinted 代币铸造事件（狙击模拟，不经过资金池）
type TokensMinted struct {
	User   common.Address
	Amount *big.Int
	At     time.Time
}

func (e TokensMinted) Kind() EventKind       { return KindTokensMinted }
func (e TokensMinted) OccurredAt() time.Time { return e.At }

// SimulationCompleted 教学场景完成事件
type SimulationCompleted struct {
	Label  string
	Result *big.Int
	At     time.Time
}

func (e SimulationCompleted) Kind() EventKind       { return KindSimulationCompleted }
func (e SimulationCompleted) OccurredAt() time.Time { return e.At }
