// Package chain is the SDK's read/write port over the configured chains. It
// never submits transactions; write operations return calldata for the
// caller to sign and send.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"transferkit/internal/contracts"
	"transferkit/types"
)

// FulfillGasLimit is the gas a receiving-chain fulfill is budgeted at when
// estimating relayer fees.
const FulfillGasLimit = 200_000

// Backend is the per-chain RPC surface the gate needs. *ethclient.Client
// satisfies it; tests stub it.
type Backend interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type handle struct {
	chainId     uint64
	backend     Backend
	txManager   common.Address
	priceOracle common.Address
}

// Gate holds one provider handle per configured chain for the process
// lifetime.
type Gate struct {
	chains       map[uint64]*handle
	txManagerABI abi.ABI
	erc20ABI     abi.ABI
	oracleABI    abi.ABI
}

func NewGate() *Gate {
	return &Gate{
		chains:       make(map[uint64]*handle),
		txManagerABI: mustParseABI(contracts.TransactionManagerABI),
		erc20ABI:     mustParseABI(contracts.ERC20ABI),
		oracleABI:    mustParseABI(contracts.PriceOracleABI),
	}
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// AddChain registers a chain with an already-constructed backend.
func (g *Gate) AddChain(chainId uint64, backend Backend, txManager, priceOracle common.Address) {
	g.chains[chainId] = &handle{
		chainId:     chainId,
		backend:     backend,
		txManager:   txManager,
		priceOracle: priceOracle,
	}
}

// DialChain registers a chain by dialing its RPC endpoint.
func (g *Gate) DialChain(ctx context.Context, chainId uint64, rpcURL string, txManager, priceOracle common.Address) error {
	if rpcURL == "" {
		return fmt.Errorf("rpc url is required for chain %d", chainId)
	}
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return types.WrapError(types.KindRpcError, err, "dial chain %d", chainId)
	}
	g.AddChain(chainId, cli, txManager, priceOracle)
	return nil
}

// IsConfigured reports whether the gate holds a handle for chainId.
func (g *Gate) IsConfigured(chainId uint64) bool {
	_, ok := g.chains[chainId]
	return ok
}

func (g *Gate) handleFor(chainId uint64) (*handle, error) {
	h, ok := g.chains[chainId]
	if !ok {
		return nil, types.NewError(types.KindChainNotConfigured, "chain %d is not configured", chainId)
	}
	return h, nil
}

// TxManagerAddress returns the transaction manager deployed on chainId.
func (g *Gate) TxManagerAddress(chainId uint64) (common.Address, error) {
	h, err := g.handleFor(chainId)
	if err != nil {
		return common.Address{}, err
	}
	return h.txManager, nil
}

// HeadBlock returns the chain's latest block number. Subgraph freshness is
// measured against it.
func (g *Gate) HeadBlock(ctx context.Context, chainId uint64) (uint64, error) {
	h, err := g.handleFor(chainId)
	if err != nil {
		return 0, err
	}
	n, err := h.backend.BlockNumber(ctx)
	if err != nil {
		return 0, types.WrapError(types.KindRpcError, err, "block number on chain %d", chainId)
	}
	return n, nil
}

// IsContract reports whether code is deployed at address on chainId.
func (g *Gate) IsContract(ctx context.Context, chainId uint64, address common.Address) (bool, error) {
	h, err := g.handleFor(chainId)
	if err != nil {
		return false, err
	}
	code, err := h.backend.CodeAt(ctx, address, nil)
	if err != nil {
		return false, types.WrapError(types.KindRpcError, err, "code at %s on chain %d", address.Hex(), chainId)
	}
	return len(code) > 0, nil
}

// RouterLiquidity reads the router's receiving-side balance for asset.
func (g *Gate) RouterLiquidity(ctx context.Context, chainId uint64, router, asset common.Address) (*big.Int, error) {
	h, err := g.handleFor(chainId)
	if err != nil {
		return nil, err
	}
	out, err := g.callView(ctx, h, h.txManager, g.txManagerABI, "routerBalances", router, asset)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveIfNeeded returns an ERC20 approval request when the current
// allowance toward the transaction manager is insufficient. It returns nil
// for the native asset and when the allowance already covers amount.
func (g *Gate) ApproveIfNeeded(ctx context.Context, chainId uint64, owner, asset common.Address, amount *big.Int, infinite bool) (*types.TxRequest, error) {
	if asset == (common.Address{}) {
		return nil, nil
	}
	h, err := g.handleFor(chainId)
	if err != nil {
		return nil, err
	}
	allowance, err := g.callView(ctx, h, asset, g.erc20ABI, "allowance", owner, h.txManager)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil, nil
	}

	approveAmount := amount
	if infinite {
		approveAmount = maxUint256()
	}
	data, err := g.erc20ABI.Pack("approve", h.txManager, approveAmount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return &types.TxRequest{
		ChainId: chainId,
		To:      asset,
		Data:    data,
		Value:   big.NewInt(0),
	}, nil
}

// PreparePrepareRequest builds the sending-chain prepare call.
func (g *Gate) PreparePrepareRequest(chainId uint64, params types.PrepareParams) (*types.TxRequest, error) {
	h, err := g.handleFor(chainId)
	if err != nil {
		return nil, err
	}
	amount, err := parseWireAmount(params.Amount)
	if err != nil {
		return nil, types.ParamError("amount", "%v", err)
	}
	encrypted, err := decodeWireHex(params.EncryptedCallData)
	if err != nil {
		return nil, types.ParamError("encryptedCallData", "%v", err)
	}

	data, err := g.txManagerABI.Pack("prepare",
		toABIInvariant(params.TxData),
		amount,
		new(big.Int).SetUint64(params.Expiry),
		encrypted,
		[]byte(params.EncodedBid),
		[]byte(params.BidSignature),
	)
	if err != nil {
		return nil, fmt.Errorf("pack prepare: %w", err)
	}

	value := big.NewInt(0)
	if params.TxData.SendingAssetId == (common.Address{}) {
		value = amount
	}
	return &types.TxRequest{ChainId: chainId, To: h.txManager, Data: data, Value: value}, nil
}

// PrepareFulfillRequest builds a direct receiving-chain fulfill call.
func (g *Gate) PrepareFulfillRequest(chainId uint64, params types.FulfillParams) (*types.TxRequest, error) {
	h, err := g.handleFor(chainId)
	if err != nil {
		return nil, err
	}
	relayerFee, err := parseWireAmount(params.RelayerFee)
	if err != nil {
		return nil, types.ParamError("relayerFee", "%v", err)
	}
	callData, err := decodeWireHex(params.CallData)
	if err != nil {
		return nil, types.ParamError("callData", "%v", err)
	}
	txData, err := toABITransaction(params.TxData)
	if err != nil {
		return nil, err
	}

	data, err := g.txManagerABI.Pack("fulfill", txData, relayerFee, []byte(params.Signature), callData)
	if err != nil {
		return nil, fmt.Errorf("pack fulfill: %w", err)
	}
	return &types.TxRequest{ChainId: chainId, To: h.txManager, Data: data, Value: big.NewInt(0)}, nil
}

// PrepareCancelRequest builds a cancel call for either chain.
func (g *Gate) PrepareCancelRequest(chainId uint64, params types.CancelParams) (*types.TxRequest, error) {
	h, err := g.handleFor(chainId)
	if err != nil {
		return nil, err
	}
	txData, err := toABITransaction(params.TxData)
	if err != nil {
		return nil, err
	}
	data, err := g.txManagerABI.Pack("cancel", txData, []byte(params.Signature))
	if err != nil {
		return nil, fmt.Errorf("pack cancel: %w", err)
	}
	return &types.TxRequest{ChainId: chainId, To: h.txManager, Data: data, Value: big.NewInt(0)}, nil
}

// EstimateReceivedAmount converts a sending-asset amount into receiving-asset
// units through the receiving chain's price oracle, flooring the result.
func (g *Gate) EstimateReceivedAmount(ctx context.Context, receivingChainId uint64, sendingAsset, receivingAsset common.Address, amount *big.Int) (*big.Int, error) {
	h, err := g.handleFor(receivingChainId)
	if err != nil {
		return nil, err
	}
	if h.priceOracle == (common.Address{}) {
		return nil, types.NewError(types.KindNoPriceOracle, "chain %d has no price oracle", receivingChainId)
	}
	sendingPrice, err := g.callView(ctx, h, h.priceOracle, g.oracleABI, "getTokenPrice", sendingAsset)
	if err != nil {
		return nil, err
	}
	receivingPrice, err := g.callView(ctx, h, h.priceOracle, g.oracleABI, "getTokenPrice", receivingAsset)
	if err != nil {
		return nil, err
	}
	if sendingPrice.Sign() == 0 || receivingPrice.Sign() == 0 {
		return nil, types.NewError(types.KindNoPriceOracle, "oracle returned zero price on chain %d", receivingChainId)
	}
	out := new(big.Int).Mul(amount, sendingPrice)
	return out.Quo(out, receivingPrice), nil
}

// CalculateGasInTokenForFulfill estimates the receiving-token cost of a
// fulfill. Zero signals failure; callers treat it as "no estimate".
func (g *Gate) CalculateGasInTokenForFulfill(ctx context.Context, chainId uint64, receivingAsset common.Address) (*big.Int, error) {
	h, err := g.handleFor(chainId)
	if err != nil {
		return nil, err
	}
	gasPrice, err := h.backend.SuggestGasPrice(ctx)
	if err != nil || gasPrice == nil || h.priceOracle == (common.Address{}) {
		return big.NewInt(0), nil
	}
	nativePrice, err := g.callView(ctx, h, h.priceOracle, g.oracleABI, "getTokenPrice", common.Address{})
	if err != nil || nativePrice.Sign() == 0 {
		return big.NewInt(0), nil
	}
	tokenPrice := nativePrice
	if receivingAsset != (common.Address{}) {
		tokenPrice, err = g.callView(ctx, h, h.priceOracle, g.oracleABI, "getTokenPrice", receivingAsset)
		if err != nil || tokenPrice.Sign() == 0 {
			return big.NewInt(0), nil
		}
	}

	feeWei := new(big.Int).Mul(gasPrice, big.NewInt(FulfillGasLimit))
	fee := new(big.Int).Mul(feeWei, nativePrice)
	return fee.Quo(fee, tokenPrice), nil
}

func (g *Gate) callView(ctx context.Context, h *handle, to common.Address, parsed abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := h.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, types.WrapError(types.KindRpcError, err, "%s on chain %d", method, h.chainId)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, types.WrapError(types.KindRpcError, err, "unpack %s on chain %d", method, h.chainId)
	}
	if len(out) != 1 {
		return nil, types.NewError(types.KindRpcError, "%s returned %d values", method, len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, types.NewError(types.KindRpcError, "%s returned non-integer", method)
	}
	return n, nil
}

// abiInvariant mirrors the transaction manager's invariant tuple.
type abiInvariant struct {
	ReceivingChainTxManagerAddress common.Address
	User                           common.Address
	Router                         common.Address
	Initiator                      common.Address
	SendingAssetId                 common.Address
	ReceivingAssetId               common.Address
	SendingChainFallback           common.Address
	CallTo                         common.Address
	ReceivingAddress               common.Address
	SendingChainId                 *big.Int
	ReceivingChainId               *big.Int
	CallDataHash                   [32]byte
	TransactionId                  [32]byte
}

type abiTransaction struct {
	ReceivingChainTxManagerAddress common.Address
	User                           common.Address
	Router                         common.Address
	Initiator                      common.Address
	SendingAssetId                 common.Address
	ReceivingAssetId               common.Address
	SendingChainFallback           common.Address
	CallTo                         common.Address
	ReceivingAddress               common.Address
	SendingChainId                 *big.Int
	ReceivingChainId               *big.Int
	CallDataHash                   [32]byte
	TransactionId                  [32]byte
	Amount                         *big.Int
	Expiry                         *big.Int
	PreparedBlockNumber            *big.Int
}

func toABIInvariant(d types.InvariantTransactionData) abiInvariant {
	return abiInvariant{
		ReceivingChainTxManagerAddress: d.ReceivingChainTxManagerAddress,
		User:                           d.User,
		Router:                         d.Router,
		Initiator:                      d.Initiator,
		SendingAssetId:                 d.SendingAssetId,
		ReceivingAssetId:               d.ReceivingAssetId,
		SendingChainFallback:           d.SendingChainFallback,
		CallTo:                         d.CallTo,
		ReceivingAddress:               d.ReceivingAddress,
		SendingChainId:                 new(big.Int).SetUint64(d.SendingChainId),
		ReceivingChainId:               new(big.Int).SetUint64(d.ReceivingChainId),
		CallDataHash:                   d.CallDataHash,
		TransactionId:                  d.TransactionId,
	}
}

func toABITransaction(d types.TransactionData) (abiTransaction, error) {
	amount, err := parseWireAmount(d.Amount)
	if err != nil {
		return abiTransaction{}, types.ParamError("txData.amount", "%v", err)
	}
	inv := toABIInvariant(d.InvariantTransactionData)
	return abiTransaction{
		ReceivingChainTxManagerAddress: inv.ReceivingChainTxManagerAddress,
		User:                           inv.User,
		Router:                         inv.Router,
		Initiator:                      inv.Initiator,
		SendingAssetId:                 inv.SendingAssetId,
		ReceivingAssetId:               inv.ReceivingAssetId,
		SendingChainFallback:           inv.SendingChainFallback,
		CallTo:                         inv.CallTo,
		ReceivingAddress:               inv.ReceivingAddress,
		SendingChainId:                 inv.SendingChainId,
		ReceivingChainId:               inv.ReceivingChainId,
		CallDataHash:                   inv.CallDataHash,
		TransactionId:                  inv.TransactionId,
		Amount:                         amount,
		Expiry:                         new(big.Int).SetUint64(d.Expiry),
		PreparedBlockNumber:            new(big.Int).SetUint64(d.PreparedBlockNumber),
	}, nil
}

func parseWireAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return n, nil
}

func decodeWireHex(raw string) ([]byte, error) {
	if raw == "" || raw == "0x" {
		return []byte{}, nil
	}
	return hexutil.Decode(raw)
}

func maxUint256() *big.Int {
	one := big.NewInt(1)
	max := new(big.Int).Lsh(one, 256)
	return max.Sub(max, one)
}
