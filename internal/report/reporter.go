// Package report renders confirmed action outcomes for people: a factual
// wire payload plus a short synthesized narrative. The synthesizer is a
// best-effort collaborator; when it is absent or failing, the reporter
// falls back to a deterministic explanation and the outcome still stands.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainclass/defisim/internal/metrics"
	"github.com/chainclass/defisim/internal/orchestrator"
)

var log = logrus.WithField("component", "report")

const promptPreamble = "You are explaining one action in a liquidity pool teaching simulator " +
	"to a newcomer. In at most three sentences, describe what happened and what it " +
	"teaches about automated market makers. Facts, as JSON:\n"

// Report is the human-facing rendering of one outcome.
type Report struct {
	Payload   Payload `json:"payload"`
	Narrative string  `json:"narrative"`
	// Fallback marks a locally generated narrative.
	Fallback bool `json:"fallback,omitempty"`
}

// Reporter pairs outcomes with narratives.
type Reporter struct {
	synth   Synthesizer
	timeout time.Duration
}

// NewReporter builds a reporter. synth may be nil; every narrative is then
// a fallback.
func NewReporter(synth Synthesizer, timeout time.Duration) *Reporter {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Reporter{synth: synth, timeout: timeout}
}

// Explain renders one outcome. It never fails: a synthesizer problem is
// logged and answered with the fallback narrative.
func (r *Reporter) Explain(ctx context.Context, out orchestrator.ActionOutcome) Report {
	payload := NewPayload(out)
	rep := Report{Payload: payload}

	if r.synth != nil && !out.Pending {
		sctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		text, err := r.synth.Synthesize(sctx, prompt(payload))
		if err == nil && strings.TrimSpace(text) != "" {
			rep.Narrative = strings.TrimSpace(text)
			return rep
		}
		if err != nil {
			log.Warnf("narrative synthesis failed, using fallback: %v", err)
		}
	}

	metrics.NarrativeFallbacks.Add(1)
	rep.Narrative = fallbackNarrative(payload)
	rep.Fallback = true
	return rep
}

func prompt(p Payload) string {
	raw, err := json.Marshal(p)
	if err != nil {
		return promptPreamble + p.Kind
	}
	return promptPreamble + string(raw)
}

// fallbackNarrative is the deterministic explanation used when no
// synthesizer is reachable. Dry but correct.
func fallbackNarrative(p Payload) string {
	if p.Pending {
		return fmt.Sprintf("The %s request was submitted but its confirmation is still unknown. "+
			"No local state was assumed; query the pool again later.", p.Kind)
	}

	var b strings.Builder
	switch orchestrator.ActionKind(p.Kind) {
	case orchestrator.ActionSwap:
		b.WriteString("A swap was executed against the constant-product pool.")
	case orchestrator.ActionAddLiquidity:
		b.WriteString("Liquidity was added at the pool's current ratio and shares were minted.")
	case orchestrator.ActionRemoveLiquidity:
		b.WriteString("Liquidity shares were burned for a proportional part of both reserves.")
	case orchestrator.ActionSnipe:
		b.WriteString("Tokens were minted to the participant directly; the pool reserves are untouched.")
	case orchestrator.ActionComplete:
		b.WriteString("A teaching scenario was marked complete.")
	case orchestrator.ActionReset:
		b.WriteString("The pool was reset to its genesis reserves and share allocation.")
	case orchestrator.ActionSetActive:
		b.WriteString("The pool's active flag was changed.")
	default:
		fmt.Fprintf(&b, "The %s action was confirmed.", p.Kind)
	}
	if p.Reserves.A != "" {
		fmt.Fprintf(&b, " Reserves now stand at %s / %s with a price of %s token B per token A.",
			p.Reserves.A, p.Reserves.B, p.Price)
	}
	return b.String()
}
