package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainclass/defisim/internal/ledger"
	"github.com/chainclass/defisim/internal/orchestrator"
)

// callerHeader carries the simulated participant identity. This is a
// teaching deployment: the header is trusted, not authenticated.
const callerHeader = "X-Caller-Address"

func callerFrom(r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(r.Header.Get(callerHeader))
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

type swapRequest struct {
	AmountIn string `json:"amount_in"`
	InputIsA bool   `json:"input_is_a"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "valid "+callerHeader+" header is required")
		return
	}
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	amountIn, err := ledger.ParseAmount(req.AmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount_in: "+err.Error())
		return
	}
	s.execute(w, r, orchestrator.ActionRequest{
		Kind:     orchestrator.ActionSwap,
		Caller:   caller,
		AmountIn: amountIn,
		InputIsA: req.InputIsA,
	})
}

type addLiquidityRequest struct {
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "valid "+callerHeader+" header is required")
		return
	}
	var req addLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	amountA, err := ledger.ParseAmount(req.AmountA)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount_a: "+err.Error())
		return
	}
	amountB, err := ledger.ParseAmount(req.AmountB)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount_b: "+err.Error())
		return
	}
	s.execute(w, r, orchestrator.ActionRequest{
		Kind:    orchestrator.ActionAddLiquidity,
		Caller:  caller,
		AmountA: amountA,
		AmountB: amountB,
	})
}

type removeLiquidityRequest struct {
	Shares string `json:"shares"`
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "valid "+callerHeader+" header is required")
		return
	}
	var req removeLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	shares, err := ledger.ParseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, "shares: "+err.Error())
		return
	}
	s.execute(w, r, orchestrator.ActionRequest{
		Kind:   orchestrator.ActionRemoveLiquidity,
		Caller: caller,
		Shares: shares,
	})
}

type snipeRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleSnipe(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "valid "+callerHeader+" header is required")
		return
	}
	var req snipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}
	s.execute(w, r, orchestrator.ActionRequest{
		Kind:   orchestrator.ActionSnipe,
		Caller: caller,
		Amount: amount,
	})
}

type completeRequest struct {
	Label  string `json:"label"`
	Result string `json:"result"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "valid "+callerHeader+" header is required")
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	result := new(big.Int)
	if req.Result != "" {
		var err error
		result, err = ledger.ParseAmount(req.Result)
		if err != nil {
			writeError(w, http.StatusBadRequest, "result: "+err.Error())
			return
		}
	}
	s.execute(w, r, orchestrator.ActionRequest{
		Kind:   orchestrator.ActionComplete,
		Caller: caller,
		Label:  strings.TrimSpace(req.Label),
		Result: result,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "valid "+callerHeader+" header is required")
		return
	}
	s.execute(w, r, orchestrator.ActionRequest{Kind: orchestrator.ActionReset, Caller: caller})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "valid "+callerHeader+" header is required")
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s.execute(w, r, orchestrator.ActionRequest{
		Kind:   orchestrator.ActionSetActive,
		Caller: caller,
		Active: req.Active,
	})
}

// execute runs one action and answers with its report. Confirmed actions
// answer 200, unknown dispositions 202, rejections 400.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, req orchestrator.ActionRequest) {
	outcome, err := s.orch.Execute(r.Context(), req)
	if err != nil {
		class, _ := orchestrator.ClassOf(err)
		switch class {
		case orchestrator.ClassValidation:
			writeError(w, http.StatusBadRequest, err.Error())
		case orchestrator.ClassFatal:
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	rep := s.reporter.Explain(r.Context(), *outcome)
	if outcome.Pending {
		// Pending dispositions never reach observers; record them here so
		// the history stays complete.
		if s.journal != nil {
			s.journal.OnOutcome(*outcome)
		}
		writeJSON(w, http.StatusAccepted, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReserves(w http.ResponseWriter, r *http.Request) {
	snap, err := s.queries.PoolSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reserves": map[string]string{
			"a": ledger.FormatAmount(snap.ReserveA),
			"b": ledger.FormatAmount(snap.ReserveB),
		},
		"confirmationRef": refOrEmpty(snap.Ref.Hex(), snap.Ref == common.Hash{}),
		"takenAt":         snap.TakenAt,
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	snap, err := s.queries.PoolSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"price":   ledger.FormatPrice(snap.Price),
		"takenAt": snap.TakenAt,
	})
}

func (s *Server) handleUserValue(w http.ResponseWriter, r *http.Request) {
	raw := pathParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	value, err := s.queries.UserValue(r.Context(), common.HexToAddress(raw))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": common.HexToAddress(raw).Hex(),
		"value":   ledger.FormatAmount(value),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func refOrEmpty(hex string, zero bool) string {
	if zero {
		return ""
	}
	return hex
}
