package report

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainclass/defisim/internal/ledger"
	"github.com/chainclass/defisim/internal/orchestrator"
)

type stubSynth struct {
	text string
	err  error
}

func (s stubSynth) Synthesize(context.Context, string) (string, error) {
	return s.text, s.err
}

func confirmedSwap() orchestrator.ActionOutcome {
	return orchestrator.ActionOutcome{
		Kind:            orchestrator.ActionSwap,
		Caller:          common.HexToAddress("0xbb"),
		ConfirmationRef: common.HexToHash("0x01"),
		Sequence:        4,
		Events: []ledger.DomainEvent{ledger.TradeExecuted{
			User:      common.HexToAddress("0xbb"),
			AmountIn:  ledger.Wad(1),
			AmountOut: big.NewInt(1998001998001998001),
			At:        time.Unix(1700000000, 0).UTC(),
		}},
		ReserveA: ledger.Wad(1001),
		ReserveB: new(big.Int).Sub(ledger.Wad(2000), big.NewInt(1998001998001998001)),
		Price:    big.NewInt(1996005992009988013),
	}
}

func TestExplainUsesSynthesizer(t *testing.T) {
	r := NewReporter(stubSynth{text: "  Price moved because reserves moved.  "}, time.Second)
	rep := r.Explain(context.Background(), confirmedSwap())
	if rep.Fallback {
		t.Fatal("healthy synthesizer answered with fallback")
	}
	if rep.Narrative != "Price moved because reserves moved." {
		t.Fatalf("narrative = %q", rep.Narrative)
	}
	if rep.Payload.ConfirmationRef == "" || rep.Payload.Price != "1.9960" {
		t.Fatalf("payload = %+v", rep.Payload)
	}
}

func TestExplainFallsBackOnSynthesizerError(t *testing.T) {
	r := NewReporter(stubSynth{err: errors.New("quota exhausted")}, time.Second)
	rep := r.Explain(context.Background(), confirmedSwap())
	if !rep.Fallback {
		t.Fatal("synthesizer error did not trigger fallback")
	}
	if !strings.Contains(rep.Narrative, "constant-product") {
		t.Fatalf("fallback narrative = %q", rep.Narrative)
	}
	if !strings.Contains(rep.Narrative, "1001") {
		t.Fatalf("fallback narrative misses reserves: %q", rep.Narrative)
	}
}

func TestExplainWithoutSynthesizer(t *testing.T) {
	r := NewReporter(nil, time.Second)
	rep := r.Explain(context.Background(), confirmedSwap())
	if !rep.Fallback || rep.Narrative == "" {
		t.Fatalf("report = %+v", rep)
	}
}

func TestExplainPendingOutcome(t *testing.T) {
	r := NewReporter(stubSynth{text: "should not be called"}, time.Second)
	rep := r.Explain(context.Background(), orchestrator.ActionOutcome{
		Kind:    orchestrator.ActionSwap,
		Pending: true,
	})
	if !rep.Fallback {
		t.Fatal("pending outcome asked the synthesizer")
	}
	if !strings.Contains(rep.Narrative, "still unknown") {
		t.Fatalf("pending narrative = %q", rep.Narrative)
	}
	if rep.Payload.ConfirmationRef != "" {
		t.Fatal("pending payload carries a confirmation ref")
	}
}

func TestPayloadWireShape(t *testing.T) {
	p := NewPayload(confirmedSwap())
	if p.Kind != "swap" {
		t.Fatalf("kind = %q", p.Kind)
	}
	if len(p.Events) != 1 {
		t.Fatalf("events = %d", len(p.Events))
	}
	ev := p.Events[0]
	if ev.Kind != "TradeExecuted" {
		t.Fatalf("event kind = %q", ev.Kind)
	}
	if ev.Values["amountIn"] != "1" {
		t.Fatalf("amountIn = %q", ev.Values["amountIn"])
	}
	if p.Reserves.A != "1001" {
		t.Fatalf("reserves.a = %q", p.Reserves.A)
	}
}

func TestGeminiClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasSuffix(req.URL.Path, ":generateContent") {
			t.Errorf("path = %s", req.URL.Path)
		}
		if req.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q", req.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"pools rebalance themselves"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGeminiClient(GeminiConfig{BaseURL: srv.URL, APIKey: "test-key", Timeout: time.Second})
	text, err := g.Synthesize(context.Background(), "explain")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if text != "pools rebalance themselves" {
		t.Fatalf("text = %q", text)
	}
}

func TestGeminiClientErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGeminiClient(GeminiConfig{BaseURL: srv.URL, APIKey: "bad", Timeout: time.Second})
	if _, err := g.Synthesize(context.Background(), "explain"); err == nil {
		t.Fatal("non-2xx status not surfaced")
	}
}
