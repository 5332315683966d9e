package report

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainclass/defisim/internal/ledger"
	"github.com/chainclass/defisim/internal/orchestrator"
)

// WireEvent is the JSON shape of one domain event, shared by the action
// journal, the outcome stream and the reporter prompt.
type WireEvent struct {
	Kind   string            `json:"kind"`
	User   string            `json:"user,omitempty"`
	Label  string            `json:"label,omitempty"`
	Values map[string]string `json:"values,omitempty"`
	At     time.Time         `json:"at"`
}

// Payload is the JSON shape of one confirmed action outcome.
type Payload struct {
	Kind            string      `json:"kind"`
	ConfirmationRef string      `json:"confirmationRef"`
	Sequence        uint64      `json:"sequence,omitempty"`
	Events          []WireEvent `json:"events"`
	Reserves        Reserves    `json:"reserves"`
	Price           string      `json:"price"`
	Pending         bool        `json:"pending,omitempty"`
}

type Reserves struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPayload converts a confirmed outcome to its wire shape. Amounts are
// rendered in whole-token units, the price with four decimals.
func NewPayload(out orchestrator.ActionOutcome) Payload {
	p := Payload{
		Kind:     string(out.Kind),
		Sequence: out.Sequence,
		Events:   ToWireEvents(out.Events),
		Pending:  out.Pending,
	}
	if out.Pending {
		// A pending outcome may still carry the ref of the unconfirmed
		// submission, so it stays traceable.
		if (out.ConfirmationRef != common.Hash{}) {
			p.ConfirmationRef = out.ConfirmationRef.Hex()
		}
		return p
	}
	p.ConfirmationRef = out.ConfirmationRef.Hex()
	p.Reserves = Reserves{A: ledger.FormatAmount(out.ReserveA), B: ledger.FormatAmount(out.ReserveB)}
	p.Price = ledger.FormatPrice(out.Price)
	return p
}

// ToWireEvents flattens domain events for JSON transport.
func ToWireEvents(events []ledger.DomainEvent) []WireEvent {
	wire := make([]WireEvent, 0, len(events))
	for _, ev := range events {
		w := WireEvent{Kind: string(ev.Kind()), At: ev.OccurredAt()}
		switch e := ev.(type) {
		case ledger.TradeExecuted:
			w.User = e.User.Hex()
			w.Values = map[string]string{
				"amountIn":  ledger.FormatAmount(e.AmountIn),
				"amountOut": ledger.FormatAmount(e.AmountOut),
			}
		case ledger.LiquidityAdded:
			w.User = e.User.Hex()
			w.Values = map[string]string{
				"amountA": ledger.FormatAmount(e.AmountA),
				"amountB": ledger.FormatAmount(e.AmountB),
			}
		case ledger.LiquiditySharesMinted:
			w.User = e.User.Hex()
			w.Values = map[string]string{"shares": ledger.FormatAmount(e.Shares)}
		case ledger.LiquiditySharesBurned:
			w.User = e.User.Hex()
			w.Values = map[string]string{
				"shares":  ledger.FormatAmount(e.Shares),
				"amountA": ledger.FormatAmount(e.AmountA),
				"amountB": ledger.FormatAmount(e.AmountB),
			}
		case ledger.TokensMinted:
			w.User = e.User.Hex()
			w.Values = map[string]string{"amount": ledger.FormatAmount(e.Amount)}
		case ledger.SimulationCompleted:
			w.Label = e.Label
			w.Values = map[string]string{"result": ledger.FormatAmount(e.Result)}
		}
		wire = append(wire, w)
	}
	return wire
}
