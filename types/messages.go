package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Logical bus subjects. The reply address for an auction is its inbox, not a
// shared subject.
const (
	SubjectAuctionRequest  = "auction.request"
	SubjectAuctionResponse = "auction.response"
	SubjectMetaTxRequest   = "metatx.request"
	SubjectMetaTxResponse  = "metatx.response"
)

// AuctionPayload is what routers see when an auction opens.
type AuctionPayload struct {
	User              common.Address `json:"user"`
	Initiator         common.Address `json:"initiator"`
	SendingChainId    uint64         `json:"sendingChainId"`
	SendingAssetId    common.Address `json:"sendingAssetId"`
	Amount            string         `json:"amount"`
	ReceivingChainId  uint64         `json:"receivingChainId"`
	ReceivingAssetId  common.Address `json:"receivingAssetId"`
	ReceivingAddress  common.Address `json:"receivingAddress"`
	CallTo            common.Address `json:"callTo"`
	CallDataHash      common.Hash    `json:"callDataHash"`
	EncryptedCallData string         `json:"encryptedCallData"`
	Expiry            uint64         `json:"expiry"`
	TransactionId     common.Hash    `json:"transactionId"`
	DryRun            bool           `json:"dryRun"`
}

// AuctionRequestEnvelope carries an auction payload plus the inbox routers
// must reply to.
type AuctionRequestEnvelope struct {
	InboxId string         `json:"inboxId"`
	Payload AuctionPayload `json:"payload"`
}

// AuctionResponseEnvelope is one router's reply. Exactly one of Data and Err
// is meaningful; envelopes with Err set never count as bids.
type AuctionResponseEnvelope struct {
	Inbox string           `json:"inbox"`
	Data  *AuctionResponse `json:"data,omitempty"`
	Err   string           `json:"err,omitempty"`
}

// MetaTxFulfillData is the fulfill-specific body of a meta-tx request.
type MetaTxFulfillData struct {
	RelayerFee string        `json:"relayerFee"`
	Signature  hexutil.Bytes `json:"signature"`
	CallData   string        `json:"callData"`
	TxData     TransactionData `json:"txData"`
}

// MetaTxRequest asks the relayer network to submit a transaction on the
// user's behalf.
type MetaTxRequest struct {
	Type       string            `json:"type"`
	RelayerFee string            `json:"relayerFee"`
	To         common.Address    `json:"to"`
	ChainId    uint64            `json:"chainId"`
	Data       MetaTxFulfillData `json:"data"`
}

// MetaTxType values.
const (
	MetaTxTypeFulfill = "Fulfill"
)

// EventName identifies an indexer event stream.
type EventName string

const (
	SenderTransactionPrepared    EventName = "SenderTransactionPrepared"
	SenderTransactionCancelled   EventName = "SenderTransactionCancelled"
	ReceiverTransactionPrepared  EventName = "ReceiverTransactionPrepared"
	ReceiverTransactionFulfilled EventName = "ReceiverTransactionFulfilled"
	ReceiverTransactionCancelled EventName = "ReceiverTransactionCancelled"
)

// EventNames lists every event the mux understands, in a stable order.
func EventNames() []EventName {
	return []EventName{
		SenderTransactionPrepared,
		SenderTransactionCancelled,
		ReceiverTransactionPrepared,
		ReceiverTransactionFulfilled,
		ReceiverTransactionCancelled,
	}
}

// TransactionPreparedEvent is emitted when either chain's subgraph reports a
// prepared transfer.
type TransactionPreparedEvent struct {
	TxData            TransactionData `json:"txData"`
	Caller            common.Address  `json:"caller"`
	EncryptedCallData string          `json:"encryptedCallData"`
	EncodedBid        string          `json:"encodedBid"`
	BidSignature      hexutil.Bytes   `json:"bidSignature"`
}

// TransactionFulfilledEvent is emitted when the receiving chain's subgraph
// reports a fulfill.
type TransactionFulfilledEvent struct {
	TxData          TransactionData `json:"txData"`
	Signature       hexutil.Bytes   `json:"signature"`
	RelayerFee      string          `json:"relayerFee"`
	CallData        string          `json:"callData"`
	Caller          common.Address  `json:"caller"`
	TransactionHash string          `json:"transactionHash"`
}

// TransactionCancelledEvent is emitted when either chain's subgraph reports a
// cancel.
type TransactionCancelledEvent struct {
	TxData          TransactionData `json:"txData"`
	Caller          common.Address  `json:"caller"`
	TransactionHash string          `json:"transactionHash"`
}
