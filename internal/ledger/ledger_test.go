package ledger

import (
	"math/big"
	"testing"
	"testing/quick"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestGenesisState(t *testing.T) {
	l := New(owner)
	a, b := l.Reserves()
	if a.Cmp(Wad(1000)) != 0 || b.Cmp(Wad(2000)) != 0 {
		t.Fatalf("genesis reserves got (%s, %s), want (1000, 2000)", FormatAmount(a), FormatAmount(b))
	}
	if p := l.Price(); p.Cmp(Wad(2)) != 0 {
		t.Fatalf("genesis price got %s, want 2", FormatAmount(p))
	}
	if !l.Active() {
		t.Fatal("genesis pool should be active")
	}
}

func TestSwapGenesisScenario(t *testing.T) {
	l := New(owner)
	in := Wad(1)

	out, events, err := l.Swap(alice, in, true)
	if err != nil {
		t.Fatalf("swap failed: %v", err)
	}

	// floor(2000e18 * 1e18 / 1001e18)
	want := new(big.Int).Mul(Wad(2000), Wad(1))
	want.Quo(want, Wad(1001))
	if out.Cmp(want) != 0 {
		t.Fatalf("amountOut got %s, want %s", out, want)
	}

	a, b := l.Reserves()
	if a.Cmp(Wad(1001)) != 0 {
		t.Fatalf("reserveA got %s, want 1001", FormatAmount(a))
	}
	if wantB := new(big.Int).Sub(Wad(2000), want); b.Cmp(wantB) != 0 {
		t.Fatalf("reserveB got %s, want %s", b, wantB)
	}

	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	ev, ok := events[0].(TradeExecuted)
	if !ok {
		t.Fatalf("expected TradeExecuted, got %T", events[0])
	}
	if ev.User != alice || ev.AmountIn.Cmp(in) != 0 || ev.AmountOut.Cmp(want) != 0 {
		t.Fatalf("event fields mismatch: %+v", ev)
	}
	if ev.At.IsZero() {
		t.Fatal("event timestamp is zero")
	}
}

func TestSwapRejections(t *testing.T) {
	l := New(owner)

	if _, _, err := l.Swap(alice, big.NewInt(0), true); err == nil {
		t.Fatal("zero amountIn should be rejected")
	}
	// 1 base unit in: out = 2000e18*1/(1000e18+1) = 1 (not dust at wad scale),
	// so use a pool where truncation really hits zero.
	tiny := NewWithGenesis(owner, Wad(1000), big.NewInt(1))
	if _, _, err := tiny.Swap(alice, big.NewInt(5), true); err == nil {
		t.Fatal("dust output should be rejected")
	} else if ve, ok := AsValidation(err); !ok || ve.Reason != ReasonDustOutput {
		t.Fatalf("want dust_output, got %v", err)
	}

	a, b := tiny.Reserves()
	if a.Cmp(Wad(1000)) != 0 || b.Cmp(big.NewInt(1)) != 0 {
		t.Fatal("rejected swap must not change reserves")
	}
}

func TestSwapProductNonDecreasing(t *testing.T) {
	property := func(amounts []uint32, dirs []bool) bool {
		l := New(owner)
		for i, raw := range amounts {
			if i >= len(dirs) {
				break
			}
			in := new(big.Int).Mul(big.NewInt(int64(raw%5000)+1), big.NewInt(1e12))
			a0, b0 := l.Reserves()
			before := new(big.Int).Mul(a0, b0)

			_, _, err := l.Swap(alice, in, dirs[i])

			a1, b1 := l.Reserves()
			after := new(big.Int).Mul(a1, b1)
			if err != nil {
				// rejections must not move state
				if after.Cmp(before) != 0 {
					return false
				}
				continue
			}
			if after.Cmp(before) < 0 {
				return false
			}
			if a1.Sign() <= 0 || b1.Sign() <= 0 {
				return false
			}
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatalf("constant product violated: %v", err)
	}
}

func TestSwapRoundTripLosesValue(t *testing.T) {
	l := New(owner)
	x := Wad(10)

	gotB, _, err := l.Swap(alice, x, true)
	if err != nil {
		t.Fatalf("first swap: %v", err)
	}
	gotA, _, err := l.Swap(alice, gotB, false)
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if gotA.Cmp(x) >= 0 {
		t.Fatalf("round trip returned %s for %s in, expected strict loss", gotA, x)
	}
}

func TestAddLiquidityRatio(t *testing.T) {
	l := New(owner)

	shares, events, err := l.AddLiquidity(alice, Wad(10), Wad(20))
	if err != nil {
		t.Fatalf("matching ratio rejected: %v", err)
	}
	if shares.Cmp(Wad(10)) != 0 {
		t.Fatalf("shares got %s, want 10", FormatAmount(shares))
	}
	a, b := l.Reserves()
	if a.Cmp(Wad(1010)) != 0 || b.Cmp(Wad(2020)) != 0 {
		t.Fatalf("reserves got (%s, %s), want (1010, 2020)", FormatAmount(a), FormatAmount(b))
	}
	if len(events) != 2 {
		t.Fatalf("expected LiquidityAdded + LiquiditySharesMinted, got %d events", len(events))
	}
	if events[0].Kind() != KindLiquidityAdded || events[1].Kind() != KindLiquiditySharesMinted {
		t.Fatalf("unexpected event kinds %s, %s", events[0].Kind(), events[1].Kind())
	}

	fresh := New(owner)
	_, _, err = fresh.AddLiquidity(alice, Wad(10), Wad(10))
	if err == nil {
		t.Fatal("mismatched ratio should be rejected")
	}
	if ve, ok := AsValidation(err); !ok || ve.Reason != ReasonRatioMismatch {
		t.Fatalf("want ratio_mismatch, got %v", err)
	}
	a, b = fresh.Reserves()
	if a.Cmp(Wad(1000)) != 0 || b.Cmp(Wad(2000)) != 0 {
		t.Fatal("rejected add must not change reserves")
	}
}

func TestRemoveLiquidityInverseOfAdd(t *testing.T) {
	l := New(owner)

	shares, _, err := l.AddLiquidity(alice, Wad(10), Wad(20))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	gotA, gotB, events, err := l.RemoveLiquidity(alice, shares)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if gotA.Cmp(Wad(10)) != 0 || gotB.Cmp(Wad(20)) != 0 {
		t.Fatalf("remove returned (%s, %s), want the contributed (10, 20)",
			FormatAmount(gotA), FormatAmount(gotB))
	}
	a, b := l.Reserves()
	if a.Cmp(Wad(1000)) != 0 || b.Cmp(Wad(2000)) != 0 {
		t.Fatal("pool should be back at genesis reserves")
	}
	if len(events) != 1 || events[0].Kind() != KindLiquiditySharesBurned {
		t.Fatalf("expected one LiquiditySharesBurned event, got %+v", events)
	}
	if l.Participant(alice).Shares.Sign() != 0 {
		t.Fatal("alice should hold zero shares after full removal")
	}
}

func TestRemoveLiquidityRejections(t *testing.T) {
	l := New(owner)

	if _, _, _, err := l.RemoveLiquidity(alice, big.NewInt(0)); err == nil {
		t.Fatal("zero shares should be rejected")
	}
	if _, _, _, err := l.RemoveLiquidity(alice, Wad(1)); err == nil {
		t.Fatal("overdrawn shares should be rejected")
	} else if ve, ok := AsValidation(err); !ok || ve.Reason != ReasonInsufficientShares {
		t.Fatalf("want insufficient_shares, got %v", err)
	}

	// The owner holds the full genesis allocation; burning all of it would
	// drain the pool and must be refused.
	if _, _, _, err := l.RemoveLiquidity(owner, Wad(1000)); err == nil {
		t.Fatal("draining removal should be rejected")
	} else if ve, ok := AsValidation(err); !ok || ve.Reason != ReasonPoolDrained {
		t.Fatalf("want pool_drained, got %v", err)
	}
}

func TestSnipeLeavesReservesUntouched(t *testing.T) {
	l := New(owner)
	half, err := ParseAmount("0.5")
	if err != nil {
		t.Fatal(err)
	}

	got, events, err := l.Snipe(bob, half)
	if err != nil {
		t.Fatalf("snipe: %v", err)
	}
	if got.Cmp(half) != 0 {
		t.Fatalf("tokensReceived got %s, want 0.5", FormatAmount(got))
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev, ok := events[0].(TokensMinted)
	if !ok || ev.Amount.Cmp(half) != 0 || ev.User != bob {
		t.Fatalf("unexpected TokensMinted event: %+v", events[0])
	}

	a, b := l.Reserves()
	if a.Cmp(Wad(1000)) != 0 || b.Cmp(Wad(2000)) != 0 {
		t.Fatal("snipe must not touch pool reserves")
	}
	if l.Participant(bob).Sniped.Cmp(half) != 0 {
		t.Fatal("sniped balance not credited")
	}
}

func TestCompleteEmitsEventOnly(t *testing.T) {
	l := New(owner)
	events, err := l.Complete(alice, "amm-basics", Wad(1))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(events) != 1 || events[0].Kind() != KindSimulationCompleted {
		t.Fatalf("expected one SimulationCompleted event, got %+v", events)
	}
	a, b := l.Reserves()
	if a.Cmp(Wad(1000)) != 0 || b.Cmp(Wad(2000)) != 0 {
		t.Fatal("complete must not touch state")
	}

	if _, err := l.Complete(alice, "", nil); err == nil {
		t.Fatal("empty label should be rejected")
	}
}

func TestResetAndSetActive(t *testing.T) {
	l := New(owner)
	if _, _, err := l.Swap(alice, Wad(5), true); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, _, err := l.Snipe(alice, Wad(1)); err != nil {
		t.Fatalf("snipe: %v", err)
	}

	if err := l.Reset(alice); err == nil {
		t.Fatal("non-owner reset should be rejected")
	}
	if err := l.Reset(owner); err != nil {
		t.Fatalf("owner reset: %v", err)
	}
	a, b := l.Reserves()
	if a.Cmp(Wad(1000)) != 0 || b.Cmp(Wad(2000)) != 0 {
		t.Fatal("reset should restore genesis reserves")
	}
	if l.Participant(alice).Sniped.Sign() != 0 {
		t.Fatal("reset should zero participant records")
	}

	if err := l.SetActive(alice, false); err == nil {
		t.Fatal("non-owner setActive should be rejected")
	}
	if err := l.SetActive(owner, false); err != nil {
		t.Fatalf("setActive: %v", err)
	}
	if _, _, err := l.Swap(alice, Wad(1), true); err == nil {
		t.Fatal("inactive pool must reject swaps")
	} else if ve, ok := AsValidation(err); !ok || ve.Reason != ReasonInactive {
		t.Fatalf("want pool_inactive, got %v", err)
	}
	// Reset stays available to the owner while inactive.
	if err := l.Reset(owner); err != nil {
		t.Fatalf("reset while inactive: %v", err)
	}
}

func TestUserValue(t *testing.T) {
	l := New(owner)
	if _, _, err := l.AddLiquidity(alice, Wad(10), Wad(20)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, _, err := l.Snipe(alice, Wad(3)); err != nil {
		t.Fatalf("snipe: %v", err)
	}

	// 10 shares of 1010 supply: redeemA=10, redeemB=20; at price 2 that is
	// 10*2 + 20 = 40 in token B, plus 3 sniped.
	want := Wad(43)
	if got := l.UserValue(alice); got.Cmp(want) != 0 {
		t.Fatalf("userValue got %s, want %s", FormatAmount(got), FormatAmount(want))
	}
	if got := l.UserValue(bob); got.Sign() != 0 {
		t.Fatalf("unknown identity should be worth zero, got %s", got)
	}
}
