package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// InvariantTransactionData is the part of a transfer that is identical on the
// sending and receiving chain and is covered by the router's bid signature.
type InvariantTransactionData struct {
	ReceivingChainTxManagerAddress common.Address `json:"receivingChainTxManagerAddress"`
	User                           common.Address `json:"user"`
	Router                         common.Address `json:"router"`
	Initiator                      common.Address `json:"initiator"`
	SendingAssetId                 common.Address `json:"sendingAssetId"`
	ReceivingAssetId               common.Address `json:"receivingAssetId"`
	SendingChainFallback           common.Address `json:"sendingChainFallback"`
	CallTo                         common.Address `json:"callTo"`
	ReceivingAddress               common.Address `json:"receivingAddress"`
	SendingChainId                 uint64         `json:"sendingChainId"`
	ReceivingChainId               uint64         `json:"receivingChainId"`
	CallDataHash                   common.Hash    `json:"callDataHash"`
	TransactionId                  common.Hash    `json:"transactionId"`
}

// TransactionData is the invariant data plus the per-chain variant fields the
// subgraph reports once a transfer is prepared.
type TransactionData struct {
	InvariantTransactionData
	Amount              string `json:"amount"`
	Expiry              uint64 `json:"expiry"`
	PreparedBlockNumber uint64 `json:"preparedBlockNumber"`
}

// AuctionBid is a router's offer. Amounts are decimal strings in the asset's
// smallest unit; the canonical ABI encoding of the bid is what the router
// signs.
type AuctionBid struct {
	User              common.Address `json:"user"`
	Router            common.Address `json:"router"`
	Initiator         common.Address `json:"initiator"`
	SendingChainId    uint64         `json:"sendingChainId"`
	SendingAssetId    common.Address `json:"sendingAssetId"`
	Amount            string         `json:"amount"`
	ReceivingChainId  uint64         `json:"receivingChainId"`
	ReceivingAssetId  common.Address `json:"receivingAssetId"`
	AmountReceived    string         `json:"amountReceived"`
	ReceivingAddress  common.Address `json:"receivingAddress"`
	TransactionId     common.Hash    `json:"transactionId"`
	Expiry            uint64         `json:"expiry"`
	CallDataHash      common.Hash    `json:"callDataHash"`
	CallTo            common.Address `json:"callTo"`
	EncryptedCallData string         `json:"encryptedCallData"`
	BidExpiry         uint64         `json:"bidExpiry"`
}

// AuctionResponse is a signed bid plus the router's gas fee estimate,
// denominated in the receiving token.
type AuctionResponse struct {
	Bid                    AuctionBid    `json:"bid"`
	BidSignature           hexutil.Bytes `json:"bidSignature"`
	GasFeeInReceivingToken string        `json:"gasFeeInReceivingToken"`
}

// QuoteParams is the user's request for a transfer quote.
type QuoteParams struct {
	SendingChainId    uint64
	SendingAssetId    common.Address
	ReceivingChainId  uint64
	ReceivingAssetId  common.Address
	Amount            string
	ReceivingAddress  common.Address
	User              common.Address
	Initiator         common.Address
	CallTo            common.Address
	CallData          string // hex, "0x" when unused
	SlippageTolerance string // percent, two fractional digits, "0.10".."15.00"
	Expiry            uint64 // optional; unix seconds
	TransactionId     common.Hash
	DryRun            bool
	PreferredRouters  []common.Address
}

// PrepareParams is everything the sending-chain prepare call needs.
type PrepareParams struct {
	TxData            InvariantTransactionData
	Amount            string
	Expiry            uint64
	EncryptedCallData string
	BidSignature      hexutil.Bytes
	EncodedBid        hexutil.Bytes
}

// FulfillParams is everything a direct receiving-chain fulfill call needs.
type FulfillParams struct {
	TxData     TransactionData
	RelayerFee string
	Signature  hexutil.Bytes
	CallData   string
}

// CancelParams is everything a cancel call needs on either chain.
type CancelParams struct {
	TxData    TransactionData
	Signature hexutil.Bytes
}

// TxRequest is an unsigned, ready-to-submit transaction. The SDK never
// submits; the caller signs and sends it.
type TxRequest struct {
	ChainId uint64         `json:"chainId"`
	To      common.Address `json:"to"`
	Data    hexutil.Bytes  `json:"data"`
	Value   *big.Int       `json:"value"`
}

// TransferStatus tracks a transfer through the orchestrator's state machine.
type TransferStatus string

const (
	StatusQuoting          TransferStatus = "Quoting"
	StatusQuoted           TransferStatus = "Quoted"
	StatusSenderPrepared   TransferStatus = "SenderPrepared"
	StatusReceiverPrepared TransferStatus = "ReceiverPrepared"
	StatusFulfilled        TransferStatus = "Fulfilled"
	StatusCancelled        TransferStatus = "Cancelled"
	StatusFailed           TransferStatus = "Failed"
)

// Terminal reports whether a status can no longer change.
func (s TransferStatus) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// SubgraphSyncRecord describes how far a chain's subgraph lags its chain head.
type SubgraphSyncRecord struct {
	Synced      bool   `json:"synced"`
	SyncedBlock uint64 `json:"syncedBlock"`
	LatestBlock uint64 `json:"latestBlock"`
}

// ActiveTransaction is an in-flight transfer as reported by the subgraphs.
type ActiveTransaction struct {
	TxData            TransactionData `json:"txData"`
	Status            TransferStatus  `json:"status"`
	Caller            common.Address  `json:"caller"`
	EncryptedCallData string          `json:"encryptedCallData"`
	EncodedBid        string          `json:"encodedBid"`
	BidSignature      hexutil.Bytes   `json:"bidSignature"`
}

// HistoricalTransaction is a settled transfer (fulfilled or cancelled).
type HistoricalTransaction struct {
	TxData          TransactionData `json:"txData"`
	Status          TransferStatus  `json:"status"`
	FulfilledTxHash string          `json:"fulfilledTxHash,omitempty"`
}
