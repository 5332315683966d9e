package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/chainclass/defisim/internal/ledger"
)

var clientLog = logrus.WithField("component", "chain.client")

// ClientConfig configures the Ethereum-backed execution environment.
type ClientConfig struct {
	RPCURL          string
	ContractAddress common.Address
	ChainID         *big.Int
	PrivateKeyHex   string
	// ReceiptPollInterval is how often Wait polls for the receipt. Default 3s.
	ReceiptPollInterval time.Duration
}

// Client submits pool actions to a deployed simulator contract and decodes
// its event logs back into DomainEvents. It implements Backend.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	poll     time.Duration
}

// NewClient dials the RPC node and prepares the operating identity.
func NewClient(cfg ClientConfig) (*Client, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc node: %w", err)
	}
	parsed, err := ParseSimulatorABI()
	if err != nil {
		return nil, fmt.Errorf("parse simulator abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	poll := cfg.ReceiptPollInterval
	if poll <= 0 {
		poll = 3 * time.Second
	}
	return &Client{
		eth:      eth,
		contract: cfg.ContractAddress,
		abi:      parsed,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  cfg.ChainID,
		poll:     poll,
	}, nil
}

// OperatorAddress is the funded identity that signs every submission.
func (c *Client) OperatorAddress() common.Address { return c.from }

// Submit packs, signs and sends one call. The returned hash is the
// confirmation reference to Wait on.
func (c *Client) Submit(ctx context.Context, call Call) (common.Hash, error) {
	data, err := c.abi.Pack(call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", call.Method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, classifySubmitError(err)
	}

	tx := ethtypes.NewTransaction(nonce, c.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, classifySubmitError(err)
	}

	clientLog.WithFields(logrus.Fields{
		"method": call.Method,
		"tx":     signed.Hash().Hex(),
		"nonce":  nonce,
	}).Debug("submitted")
	return signed.Hash(), nil
}

// Wait polls until the transaction is mined or ctx ends. A ctx error only
// means waiting stopped; the transaction may still be applied later.
func (c *Client) Wait(ctx context.Context, ref common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		rcpt, err := c.eth.TransactionReceipt(ctx, ref)
		if err == nil && rcpt != nil {
			return c.toReceipt(rcpt), nil
		}
		if err != nil && err != ethereum.NotFound {
			clientLog.WithField("tx", ref.Hex()).Warnf("receipt poll failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) toReceipt(rcpt *ethtypes.Receipt) *Receipt {
	out := &Receipt{
		Ref:      rcpt.TxHash,
		Sequence: rcpt.BlockNumber.Uint64(),
	}
	if rcpt.Status != ethtypes.ReceiptStatusSuccessful {
		out.Status = StatusReverted
		out.RevertReason = "execution reverted"
		return out
	}
	out.Status = StatusApplied
	out.Events = c.decodeLogs(rcpt.Logs)
	return out
}

// decodeLogs maps the contract's event logs onto DomainEvents. Unknown
// topics are skipped: the receipt may interleave logs from other contracts.
func (c *Client) decodeLogs(logs []*ethtypes.Log) []ledger.DomainEvent {
	var events []ledger.DomainEvent
	for _, lg := range logs {
		if lg.Address != c.contract || len(lg.Topics) == 0 {
			continue
		}
		ev, err := c.decodeLog(lg)
		if err != nil {
			clientLog.Warnf("undecodable log in tx %s: %v", lg.TxHash.Hex(), err)
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func (c *Client) decodeLog(lg *ethtypes.Log) (ledger.DomainEvent, error) {
	evABI, err := c.abi.EventByID(lg.Topics[0])
	if err != nil {
		return nil, nil // not one of ours
	}
	fields := map[string]any{}
	if err := c.abi.UnpackIntoMap(fields, evABI.Name, lg.Data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", evABI.Name, err)
	}

	var user common.Address
	if len(lg.Topics) > 1 {
		user = common.BytesToAddress(lg.Topics[1].Bytes())
	}
	at := eventTime(fields)

	switch evABI.Name {
	case "TradeExecuted":
		return ledger.TradeExecuted{
			User:      user,
			AmountIn:  bigField(fields, "amountIn"),
			AmountOut: bigField(fields, "amountOut"),
			At:        at,
		}, nil
	case "LiquidityAdded":
		return ledger.LiquidityAdded{
			User:    user,
			AmountA: bigField(fields, "amountA"),
			AmountB: bigField(fields, "amountB"),
			At:      at,
		}, nil
	case "LiquiditySharesMinted":
		return ledger.LiquiditySharesMinted{
			User:   user,
			Shares: bigField(fields, "shares"),
			At:     at,
		}, nil
	case "LiquiditySharesBurned":
		return ledger.LiquiditySharesBurned{
			User:    user,
			Shares:  bigField(fields, "shares"),
			AmountA: bigField(fields, "amountA"),
			AmountB: bigField(fields, "amountB"),
			At:      at,
		}, nil
	case "TokenMinted":
		return ledger.TokensMinted{
			User:   user,
			Amount: bigField(fields, "amount"),
			At:     at,
		}, nil
	case "SimulationCompleted":
		label, _ := fields["concept"].(string)
		return ledger.SimulationCompleted{
			Label:  label,
			Result: bigField(fields, "result"),
			At:     at,
		}, nil
	}
	return nil, nil
}

// Reserves reads the confirmed reserve pair from the contract.
func (c *Client) Reserves(ctx context.Context) (*big.Int, *big.Int, error) {
	outs, err := c.view(ctx, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	if len(outs) != 2 {
		return nil, nil, fmt.Errorf("getReserves: expected 2 outputs, got %d", len(outs))
	}
	a, okA := outs[0].(*big.Int)
	b, okB := outs[1].(*big.Int)
	if !okA || !okB {
		return nil, nil, fmt.Errorf("getReserves: unexpected output types")
	}
	return a, b, nil
}

// Price reads the wad-scaled pool price from the contract.
func (c *Client) Price(ctx context.Context) (*big.Int, error) {
	outs, err := c.view(ctx, "getPrice")
	if err != nil {
		return nil, err
	}
	p, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getPrice: unexpected output type")
	}
	return p, nil
}

// UserValue reads the estimated redeemable value of an identity's holdings.
func (c *Client) UserValue(ctx context.Context, id common.Address) (*big.Int, error) {
	outs, err := c.view(ctx, "getUserValue", id)
	if err != nil {
		return nil, err
	}
	v, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getUserValue: unexpected output type")
	}
	return v, nil
}

func (c *Client) view(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	outs, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s returned no outputs", method)
	}
	return outs, nil
}

// classifySubmitError maps node errors onto the boundary's error classes.
// Anything unrecognized stays as-is and is treated as transient upstream.
func classifySubmitError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", ErrUnderfunded, err)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid sender"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case strings.Contains(msg, "execution reverted"):
		return &RevertError{Reason: err.Error()}
	}
	return err
}

func bigField(fields map[string]any, name string) *big.Int {
	if v, ok := fields[name].(*big.Int); ok {
		return v
	}
	return new(big.Int)
}

func eventTime(fields map[string]any) time.Time {
	if ts, ok := fields["timestamp"].(*big.Int); ok && ts.IsInt64() {
		return time.Unix(ts.Int64(), 0).UTC()
	}
	return time.Time{}
}
