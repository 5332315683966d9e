package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// SimulatorABI is the ABI of the reference pool deployment. The event set
// matches what the ledger emits so receipts decode 1:1 into DomainEvents.
const SimulatorABI = `[
	{"type":"function","name":"simulateAMM","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"isTokenA","type":"bool"}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]},
	{"type":"function","name":"addLiquidity","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"}],
	 "outputs":[{"name":"lpTokens","type":"uint256"}]},
	{"type":"function","name":"removeLiquidity","stateMutability":"nonpayable",
	 "inputs":[{"name":"lpTokens","type":"uint256"}],
	 "outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"}]},
	{"type":"function","name":"simulateTokenSniping","stateMutability":"nonpayable",
	 "inputs":[{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"tokensReceived","type":"uint256"}]},
	{"type":"function","name":"completeSimulation","stateMutability":"nonpayable",
	 "inputs":[{"name":"concept","type":"string"},{"name":"result","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"resetSimulation","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"setActive","stateMutability":"nonpayable",
	 "inputs":[{"name":"active","type":"bool"}],"outputs":[]},
	{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"_reserveA","type":"uint256"},{"name":"_reserveB","type":"uint256"}]},
	{"type":"function","name":"getPrice","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"price","type":"uint256"}]},
	{"type":"function","name":"getUserValue","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],
	 "outputs":[{"name":"value","type":"uint256"}]},
	{"type":"function","name":"contractActive","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},

	{"type":"event","name":"TradeExecuted","anonymous":false,"inputs":[
	 {"name":"user","type":"address","indexed":true},
	 {"name":"amountIn","type":"uint256","indexed":false},
	 {"name":"amountOut","type":"uint256","indexed":false},
	 {"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"LiquidityAdded","anonymous":false,"inputs":[
	 {"name":"user","type":"address","indexed":true},
	 {"name":"amountA","type":"uint256","indexed":false},
	 {"name":"amountB","type":"uint256","indexed":false},
	 {"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"LiquiditySharesMinted","anonymous":false,"inputs":[
	 {"name":"user","type":"address","indexed":true},
	 {"name":"shares","type":"uint256","indexed":false},
	 {"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"LiquiditySharesBurned","anonymous":false,"inputs":[
	 {"name":"user","type":"address","indexed":true},
	 {"name":"shares","type":"uint256","indexed":false},
	 {"name":"amountA","type":"uint256","indexed":false},
	 {"name":"amountB","type":"uint256","indexed":false},
	 {"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokenMinted","anonymous":false,"inputs":[
	 {"name":"to","type":"address","indexed":true},
	 {"name":"amount","type":"uint256","indexed":false},
	 {"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"SimulationCompleted","anonymous":false,"inputs":[
	 {"name":"concept","type":"string","indexed":false},
	 {"name":"result","type":"uint256","indexed":false},
	 {"name":"timestamp","type":"uint256","indexed":false}]}
]`

// ParseSimulatorABI parses the embedded ABI.
func ParseSimulatorABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(SimulatorABI))
}
