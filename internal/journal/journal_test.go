package journal

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainclass/defisim/internal/ledger"
	"github.com/chainclass/defisim/internal/orchestrator"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	trader := common.HexToAddress("0xbb")

	out := orchestrator.ActionOutcome{
		Kind:            orchestrator.ActionSwap,
		Caller:          trader,
		ConfirmationRef: common.HexToHash("0x01"),
		Sequence:        9,
		Events: []ledger.DomainEvent{ledger.TradeExecuted{
			User:      trader,
			AmountIn:  ledger.Wad(1),
			AmountOut: ledger.Wad(1),
			At:        time.Unix(1700000000, 0).UTC(),
		}},
		ReserveA: ledger.Wad(1001),
		ReserveB: ledger.Wad(1999),
		Price:    ledger.Wad(2),
	}
	if err := j.Record(ctx, out); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := j.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Kind != "swap" || e.Caller != trader.Hex() {
		t.Fatalf("entry = %+v", e)
	}
	if e.Sequence != 9 || e.Pending {
		t.Fatalf("entry = %+v", e)
	}
	if len(e.Events) != 1 || e.Events[0].Kind != "TradeExecuted" {
		t.Fatalf("events = %+v", e.Events)
	}
	if e.ReserveA != "1001" || e.Price != "2" {
		t.Fatalf("snapshot = %s / %s", e.ReserveA, e.Price)
	}
	if e.RecordedAt.IsZero() {
		t.Fatal("RecordedAt unset")
	}
}

func TestListNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for _, kind := range []orchestrator.ActionKind{orchestrator.ActionSwap, orchestrator.ActionSnipe, orchestrator.ActionReset} {
		if err := j.Record(ctx, orchestrator.ActionOutcome{Kind: kind}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	entries, err := j.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want limit 2", len(entries))
	}
	if entries[0].Kind != "reset" || entries[1].Kind != "snipe" {
		t.Fatalf("order = %s, %s", entries[0].Kind, entries[1].Kind)
	}
}

func TestRecordPendingOutcome(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.Record(ctx, orchestrator.ActionOutcome{Kind: orchestrator.ActionSwap, Pending: true}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries, err := j.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !entries[0].Pending {
		t.Fatal("pending bit lost")
	}
	if entries[0].ConfirmationRef != "" {
		t.Fatalf("pending entry has ref %q", entries[0].ConfirmationRef)
	}
}
