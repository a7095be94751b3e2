// Package transferkit is a client-side coordinator for hash/time-locked
// cross-chain transfers. It quotes transfers over a router auction, builds
// unsigned prepare/fulfill/cancel transactions, and tracks transfer state
// through per-chain subgraphs. The SDK never holds keys and never submits
// transactions.
package transferkit

import (
	"context"
	"crypto/rand"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/nacl/box"

	"transferkit/auction"
	"transferkit/bidcrypto"
	"transferkit/chain"
	"transferkit/events"
	"transferkit/internal/metrics"
	"transferkit/messaging"
	"transferkit/subgraph"
	"transferkit/txidstore"
	"transferkit/types"
	"transferkit/validation"
)

// MetaTxTimeout bounds the wait for a relayer fulfill to show up on the
// receiving chain's subgraph.
const MetaTxTimeout = 300 * time.Second

// WalletChannel fetches the user's x25519 encryption public key. The SDK
// encrypts callData toward it so only the user can decrypt at fulfill time.
type WalletChannel interface {
	EncryptionPublicKey(ctx context.Context, user common.Address) ([32]byte, error)
}

// chainGate is the slice of the chain gate the orchestrator uses.
type chainGate interface {
	IsConfigured(chainId uint64) bool
	TxManagerAddress(chainId uint64) (common.Address, error)
	IsContract(ctx context.Context, chainId uint64, address common.Address) (bool, error)
	ApproveIfNeeded(ctx context.Context, chainId uint64, owner, asset common.Address, amount *big.Int, infinite bool) (*types.TxRequest, error)
	PreparePrepareRequest(chainId uint64, params types.PrepareParams) (*types.TxRequest, error)
	PrepareFulfillRequest(chainId uint64, params types.FulfillParams) (*types.TxRequest, error)
	PrepareCancelRequest(chainId uint64, params types.CancelParams) (*types.TxRequest, error)
	CalculateGasInTokenForFulfill(ctx context.Context, chainId uint64, receivingAsset common.Address) (*big.Int, error)
}

// indexerGate is the slice of the subgraph gate the orchestrator uses.
type indexerGate interface {
	SyncStatus(ctx context.Context, chainId uint64) types.SubgraphSyncRecord
	CheckSynced(ctx context.Context, chainIds ...uint64) error
	ActiveTransactions(ctx context.Context, user common.Address) ([]types.ActiveTransaction, error)
	HistoricalTransactions(ctx context.Context, user common.Address) ([]types.HistoricalTransaction, error)
}

// auctioneer is the slice of the auction client the orchestrator uses.
type auctioneer interface {
	RunAuction(ctx context.Context, req auction.Request) (*types.AuctionResponse, error)
	Close()
}

// FulfillResult is the outcome of FulfillTransfer: a direct request to sign
// and submit, or the fulfill event observed after a relayer submission.
type FulfillResult struct {
	FulfillRequest *types.TxRequest
	MetaTxResponse *types.TransactionFulfilledEvent
}

// SDK is the transfer orchestrator. One SDK serves one user address.
type SDK struct {
	user    common.Address
	wallet  WalletChannel
	bus     messaging.Bus
	chains  chainGate
	indexer indexerGate
	auction auctioneer
	mux     *events.Mux
	txids   txidstore.Store
	metrics *metrics.Registry
	poller  *subgraph.Poller

	metaTxTimeout time.Duration

	mu       sync.Mutex
	statuses map[common.Hash]types.TransferStatus
}

// New constructs a production SDK from config: it dials every configured
// chain, wires the bundled or configured subgraphs, and prepares (but does
// not connect) the NATS bus. The context bounds chain dialing and scopes the
// background poller.
func New(ctx context.Context, cfg *Config, user common.Address, wallet WalletChannel) (*SDK, error) {
	resolved, err := cfg.resolveChains()
	if err != nil {
		return nil, err
	}

	gate := chain.NewGate()
	subGate := subgraph.NewGate(gate)
	for chainId, rc := range resolved {
		if err := gate.DialChain(ctx, chainId, rc.providerURL, rc.txManager, rc.priceOracle); err != nil {
			return nil, err
		}
		subGate.AddChain(chainId, rc.subgraph, rc.syncBuffer)
	}

	var store txidstore.Store
	switch {
	case cfg.TxIdPostgresDSN != "":
		pg, err := txidstore.NewPostgresStore(ctx, cfg.TxIdPostgresDSN)
		if err != nil {
			return nil, err
		}
		store = pg
	case cfg.TxIdStorePath != "":
		fs, err := txidstore.NewFileStore(cfg.TxIdStorePath)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	m := metrics.NewRegistry()
	bus := messaging.NewNatsBus(cfg.natsURL())
	// Local clusters run without token auth unless an auth service is named.
	if cfg.Network != NetworkLocal || cfg.AuthURL != "" {
		bus.UseAuthService(cfg.authURL())
	}
	sdk := newSDK(user, wallet, bus, gate, subGate, auction.NewClient(bus, gate, m), store, m)

	if !cfg.SkipPolling {
		sdk.poller = subgraph.NewPoller(subGate, sdk.mux, user, cfg.pollInterval())
		sdk.poller.Start(ctx)
	}
	return sdk, nil
}

// newSDK wires collaborators directly. Tests use it with stubs.
func newSDK(user common.Address, wallet WalletChannel, bus messaging.Bus, chains chainGate, indexer indexerGate, auctions auctioneer, store txidstore.Store, m *metrics.Registry) *SDK {
	s := &SDK{
		user:          user,
		wallet:        wallet,
		bus:           bus,
		chains:        chains,
		indexer:       indexer,
		auction:       auctions,
		mux:           events.NewMux(),
		txids:         store,
		metrics:       m,
		metaTxTimeout: MetaTxTimeout,
		statuses:      make(map[common.Hash]types.TransferStatus),
	}
	s.attachStatusHandlers()
	return s
}

// ConnectMessaging brings up the bus session. Connecting twice is a no-op.
func (s *SDK) ConnectMessaging(ctx context.Context) error {
	return s.bus.Connect(ctx)
}

// GetTransferQuote validates the request, checks subgraph freshness,
// encrypts callData when present, and runs the auction. The winning response
// is what PrepareTransfer consumes.
func (s *SDK) GetTransferQuote(ctx context.Context, params types.QuoteParams) (*types.AuctionResponse, error) {
	if params.User == (common.Address{}) {
		params.User = s.user
	}
	if params.Initiator == (common.Address{}) {
		params.Initiator = params.User
	}
	if params.Expiry == 0 {
		params.Expiry = uint64(time.Now().Add(validation.DefaultExpiryBuffer).Unix())
	}
	if params.TransactionId == (common.Hash{}) {
		txId, err := randomTransactionId()
		if err != nil {
			return nil, types.WrapError(types.KindUnknownAuctionError, err, "generate transaction id")
		}
		params.TransactionId = txId
	}

	if err := validation.ValidateQuoteParams(params, s.chains.IsConfigured); err != nil {
		return nil, err
	}
	if err := s.indexer.CheckSynced(ctx, params.SendingChainId, params.ReceivingChainId); err != nil {
		return nil, err
	}

	// The hash commits to the plaintext callData; empty callData hashes to
	// keccak256(""), never the zero hash.
	encryptedCallData := "0x"
	callDataHash := bidcrypto.HashCallData(nil)
	if params.CallData != "" && params.CallData != "0x" {
		encrypted, hash, err := s.encryptCallData(ctx, params.User, params.CallData)
		if err != nil {
			return nil, err
		}
		encryptedCallData = encrypted
		callDataHash = hash
	}

	if err := s.ConnectMessaging(ctx); err != nil {
		return nil, types.WrapError(types.KindUnknownAuctionError, err, "connect messaging")
	}

	s.setStatus(params.TransactionId, types.StatusQuoting)
	resp, err := s.auction.RunAuction(ctx, auction.Request{
		Payload: types.AuctionPayload{
			User:              params.User,
			Initiator:         params.Initiator,
			SendingChainId:    params.SendingChainId,
			SendingAssetId:    params.SendingAssetId,
			Amount:            params.Amount,
			ReceivingChainId:  params.ReceivingChainId,
			ReceivingAssetId:  params.ReceivingAssetId,
			ReceivingAddress:  params.ReceivingAddress,
			CallTo:            params.CallTo,
			CallDataHash:      callDataHash,
			EncryptedCallData: encryptedCallData,
			Expiry:            params.Expiry,
			TransactionId:     params.TransactionId,
			DryRun:            params.DryRun,
		},
		SlippageTolerance: params.SlippageTolerance,
		DryRun:            params.DryRun,
		PreferredRouters:  params.PreferredRouters,
	})
	if err != nil {
		s.setStatus(params.TransactionId, types.StatusFailed)
		return nil, err
	}
	s.setStatus(params.TransactionId, types.StatusQuoted)
	return resp, nil
}

// ApproveForPrepare returns the ERC20 approve the prepare needs, or nil when
// the allowance already covers the amount or the asset is native.
func (s *SDK) ApproveForPrepare(ctx context.Context, resp types.AuctionResponse, infinite bool) (*types.TxRequest, error) {
	amount, ok := new(big.Int).SetString(resp.Bid.Amount, 10)
	if !ok {
		return nil, types.ParamError("bid.amount", "%q is not an integer", resp.Bid.Amount)
	}
	return s.chains.ApproveIfNeeded(ctx, resp.Bid.SendingChainId, resp.Bid.User, resp.Bid.SendingAssetId, amount, infinite)
}

// PrepareTransfer turns a won auction into the sending-chain prepare
// transaction. The returned request locks the user's funds when submitted.
func (s *SDK) PrepareTransfer(ctx context.Context, resp types.AuctionResponse) (*types.TxRequest, error) {
	bid := resp.Bid

	if !s.chains.IsConfigured(bid.SendingChainId) {
		return nil, types.NewError(types.KindChainNotConfigured, "chain %d is not configured", bid.SendingChainId)
	}
	if !s.chains.IsConfigured(bid.ReceivingChainId) {
		return nil, types.NewError(types.KindChainNotConfigured, "chain %d is not configured", bid.ReceivingChainId)
	}
	if err := s.indexer.CheckSynced(ctx, bid.SendingChainId, bid.ReceivingChainId); err != nil {
		return nil, err
	}
	if len(resp.BidSignature) == 0 {
		return nil, types.NewError(types.KindInvalidBidSignature, "auction response carries no bid signature")
	}
	if bid.CallTo != (common.Address{}) {
		isContract, err := s.chains.IsContract(ctx, bid.ReceivingChainId, bid.CallTo)
		if err != nil {
			return nil, err
		}
		if !isContract {
			return nil, types.NewError(types.KindInvalidCallTo, "callTo %s is not a contract on chain %d", bid.CallTo.Hex(), bid.ReceivingChainId)
		}
	}

	if s.txids != nil {
		rec, err := s.txids.Get(ctx, bid.TransactionId)
		if err != nil {
			return nil, types.WrapError(types.KindUnknownAuctionError, err, "transaction id store")
		}
		if rec != nil {
			return nil, types.ParamError("transactionId", "%s was already used", bid.TransactionId.Hex())
		}
	}

	receivingTxManager, err := s.chains.TxManagerAddress(bid.ReceivingChainId)
	if err != nil {
		return nil, err
	}
	encodedBid, err := bidcrypto.EncodeBid(bid)
	if err != nil {
		return nil, err
	}

	req, err := s.chains.PreparePrepareRequest(bid.SendingChainId, types.PrepareParams{
		TxData: types.InvariantTransactionData{
			ReceivingChainTxManagerAddress: receivingTxManager,
			User:                           bid.User,
			Router:                         bid.Router,
			Initiator:                      bid.Initiator,
			SendingAssetId:                 bid.SendingAssetId,
			ReceivingAssetId:               bid.ReceivingAssetId,
			SendingChainFallback:           bid.User,
			CallTo:                         bid.CallTo,
			ReceivingAddress:               bid.ReceivingAddress,
			SendingChainId:                 bid.SendingChainId,
			ReceivingChainId:               bid.ReceivingChainId,
			CallDataHash:                   bid.CallDataHash,
			TransactionId:                  bid.TransactionId,
		},
		Amount:            bid.Amount,
		Expiry:            bid.Expiry,
		EncryptedCallData: bid.EncryptedCallData,
		BidSignature:      resp.BidSignature,
		EncodedBid:        encodedBid,
	})
	if err != nil {
		return nil, err
	}

	if s.txids != nil {
		now := time.Now().UTC()
		if err := s.txids.Save(ctx, bid.TransactionId, txidstore.Record{
			SendingChainId:   bid.SendingChainId,
			ReceivingChainId: bid.ReceivingChainId,
			Status:           types.StatusSenderPrepared,
			CreatedAt:        now,
			UpdatedAt:        now,
		}); err != nil {
			log.Printf("sdk: record transaction id %s: %v", bid.TransactionId.Hex(), err)
		}
	}
	s.setStatus(bid.TransactionId, types.StatusSenderPrepared)
	return req, nil
}

// FulfillTransfer completes a transfer after the receiver-side prepare. With
// useRelayers it publishes a meta-tx request and waits for the indexer to
// confirm the fulfill; otherwise it returns a direct transaction for the
// user to submit on the receiving chain.
func (s *SDK) FulfillTransfer(ctx context.Context, event types.TransactionPreparedEvent, fulfillSignature hexutil.Bytes, decryptedCallData, relayerFee string, useRelayers bool) (*FulfillResult, error) {
	if err := validation.ValidatePrepareEvent(event); err != nil {
		return nil, err
	}
	if len(fulfillSignature) != 65 {
		return nil, types.ParamError("fulfillSignature", "must be 65 bytes, got %d", len(fulfillSignature))
	}
	if relayerFee == "" {
		relayerFee = "0"
	}
	if decryptedCallData == "" {
		decryptedCallData = "0x"
	}
	txData := event.TxData

	if !useRelayers {
		req, err := s.chains.PrepareFulfillRequest(txData.ReceivingChainId, types.FulfillParams{
			TxData:     txData,
			RelayerFee: relayerFee,
			Signature:  fulfillSignature,
			CallData:   decryptedCallData,
		})
		if err != nil {
			return nil, err
		}
		return &FulfillResult{FulfillRequest: req}, nil
	}

	txManager, err := s.chains.TxManagerAddress(txData.ReceivingChainId)
	if err != nil {
		return nil, err
	}
	if err := s.ConnectMessaging(ctx); err != nil {
		return nil, types.WrapError(types.KindUnknownAuctionError, err, "connect messaging")
	}

	// Register before publishing so the confirmation cannot slip between the
	// publish and the wait.
	fulfillCh := make(chan types.TransactionFulfilledEvent, 1)
	token := s.mux.AttachOnce(types.ReceiverTransactionFulfilled, func(payload interface{}) {
		if evt, ok := payload.(types.TransactionFulfilledEvent); ok {
			select {
			case fulfillCh <- evt:
			default:
			}
		}
	}, func(payload interface{}) bool {
		evt, ok := payload.(types.TransactionFulfilledEvent)
		return ok && evt.TxData.TransactionId == txData.TransactionId
	}, 0)
	defer s.mux.DetachToken(types.ReceiverTransactionFulfilled, token)

	if err := s.bus.PublishMetaTxRequest(ctx, types.MetaTxRequest{
		Type:       types.MetaTxTypeFulfill,
		RelayerFee: relayerFee,
		To:         txManager,
		ChainId:    txData.ReceivingChainId,
		Data: types.MetaTxFulfillData{
			RelayerFee: relayerFee,
			Signature:  fulfillSignature,
			CallData:   decryptedCallData,
			TxData:     txData,
		},
	}); err != nil {
		s.metrics.IncMetaTx("publish_error")
		return nil, types.WrapError(types.KindUnknownAuctionError, err, "publish meta-tx request")
	}
	log.Printf("sdk: meta-tx fulfill published for tx %s", txData.TransactionId.Hex())

	timer := time.NewTimer(s.metaTxTimeout)
	defer timer.Stop()
	select {
	case evt := <-fulfillCh:
		s.metrics.IncMetaTx("fulfilled")
		s.setStatus(txData.TransactionId, types.StatusFulfilled)
		return &FulfillResult{MetaTxResponse: &evt}, nil
	case <-timer.C:
		s.metrics.IncMetaTx("timeout")
		return nil, types.NewError(types.KindMetaTxTimeout, "no fulfill observed for tx %s within %s", txData.TransactionId.Hex(), s.metaTxTimeout)
	case <-ctx.Done():
		s.metrics.IncMetaTx("cancelled")
		return nil, ctx.Err()
	}
}

// CancelTransfer builds the cancel transaction for the given chain. Senders
// cancel on the sending chain after expiry; receivers cancel any time.
func (s *SDK) CancelTransfer(ctx context.Context, params types.CancelParams, chainId uint64) (*types.TxRequest, error) {
	if err := validation.ValidateCancel(params); err != nil {
		return nil, err
	}
	req, err := s.chains.PrepareCancelRequest(chainId, params)
	if err != nil {
		return nil, err
	}
	s.setStatus(params.TxData.TransactionId, types.StatusCancelled)
	return req, nil
}

// EstimateFulfillFee estimates the relayer fee for a fulfill, denominated in
// the receiving token. A zero estimate means the oracle could not price the
// asset, which callers must treat as unusable.
func (s *SDK) EstimateFulfillFee(ctx context.Context, receivingChainId uint64, receivingAsset common.Address) (*big.Int, error) {
	fee, err := s.chains.CalculateGasInTokenForFulfill(ctx, receivingChainId, receivingAsset)
	if err != nil {
		return nil, err
	}
	if fee.Sign() == 0 {
		return nil, types.NewError(types.KindInvalidParamStructure, "no fee estimate for asset %s on chain %d", receivingAsset.Hex(), receivingChainId)
	}
	return fee, nil
}

// ActiveTransactions lists the user's in-flight transfers across all chains.
func (s *SDK) ActiveTransactions(ctx context.Context) ([]types.ActiveTransaction, error) {
	return s.indexer.ActiveTransactions(ctx, s.user)
}

// HistoricalTransactions lists the user's settled transfers across all chains.
func (s *SDK) HistoricalTransactions(ctx context.Context) ([]types.HistoricalTransaction, error) {
	return s.indexer.HistoricalTransactions(ctx, s.user)
}

// SyncStatus reports one chain's subgraph freshness.
func (s *SDK) SyncStatus(ctx context.Context, chainId uint64) types.SubgraphSyncRecord {
	return s.indexer.SyncStatus(ctx, chainId)
}

// Attach registers an event handler. See events.Mux.
func (s *SDK) Attach(evt types.EventName, cb events.Handler, filter events.Filter) string {
	return s.mux.Attach(evt, cb, filter)
}

// AttachOnce registers a single-delivery event handler.
func (s *SDK) AttachOnce(evt types.EventName, cb events.Handler, filter events.Filter, timeout time.Duration) string {
	return s.mux.AttachOnce(evt, cb, filter, timeout)
}

// WaitFor blocks until a matching event, the timeout, or cancellation.
func (s *SDK) WaitFor(ctx context.Context, evt types.EventName, timeout time.Duration, filter events.Filter) (interface{}, error) {
	return s.mux.WaitFor(ctx, evt, timeout, filter)
}

// Detach removes registrations for the named events, or all of them.
func (s *SDK) Detach(evts ...types.EventName) {
	s.mux.Detach(evts...)
}

// TransferStatus reports the tracked status of an in-flight transfer.
// Terminal transfers are released and report false.
func (s *SDK) TransferStatus(txId common.Hash) (types.TransferStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[txId]
	return status, ok
}

// Metrics exposes the SDK's prometheus registry for mounting.
func (s *SDK) Metrics() *metrics.Registry {
	return s.metrics
}

// Close stops the poller and releases the auction subscription and the bus.
func (s *SDK) Close() {
	if s.poller != nil {
		s.poller.Stop()
	}
	s.auction.Close()
	s.mux.Detach()
	s.bus.Close()
}

// attachStatusHandlers drives the tracked state machine from indexer events.
func (s *SDK) attachStatusHandlers() {
	s.mux.Attach(types.ReceiverTransactionPrepared, func(payload interface{}) {
		if evt, ok := payload.(types.TransactionPreparedEvent); ok {
			s.setStatus(evt.TxData.TransactionId, types.StatusReceiverPrepared)
		}
	}, nil)
	s.mux.Attach(types.ReceiverTransactionFulfilled, func(payload interface{}) {
		if evt, ok := payload.(types.TransactionFulfilledEvent); ok {
			s.setStatus(evt.TxData.TransactionId, types.StatusFulfilled)
		}
	}, nil)
	cancelled := func(payload interface{}) {
		if evt, ok := payload.(types.TransactionCancelledEvent); ok {
			s.setStatus(evt.TxData.TransactionId, types.StatusCancelled)
		}
	}
	s.mux.Attach(types.SenderTransactionCancelled, cancelled, nil)
	s.mux.Attach(types.ReceiverTransactionCancelled, cancelled, nil)
}

// setStatus records a transition. Terminal statuses release the entry so the
// map only holds in-flight transfers.
func (s *SDK) setStatus(txId common.Hash, status types.TransferStatus) {
	s.mu.Lock()
	if status.Terminal() {
		delete(s.statuses, txId)
	} else {
		s.statuses[txId] = status
	}
	s.mu.Unlock()
	s.metrics.IncTransferTransition(string(status))
}

// encryptCallData seals callData toward the user's encryption key and
// returns the ciphertext plus the keccak hash of the plaintext, which is
// what the bid and the on-chain invariant commit to.
func (s *SDK) encryptCallData(ctx context.Context, user common.Address, callData string) (string, common.Hash, error) {
	plain, err := hexutil.Decode(callData)
	if err != nil {
		return "", common.Hash{}, types.ParamError("callData", "%v", err)
	}
	if s.wallet == nil {
		return "", common.Hash{}, types.NewError(types.KindEncryptionError, "no wallet channel configured")
	}
	pub, err := s.wallet.EncryptionPublicKey(ctx, user)
	if err != nil {
		return "", common.Hash{}, types.WrapError(types.KindEncryptionError, err, "fetch encryption key for %s", user.Hex())
	}
	sealed, err := box.SealAnonymous(nil, plain, &pub, rand.Reader)
	if err != nil {
		return "", common.Hash{}, types.WrapError(types.KindEncryptionError, err, "seal callData")
	}
	return hexutil.Encode(sealed), bidcrypto.HashCallData(plain), nil
}

func randomTransactionId() (common.Hash, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(buf[:]), nil
}
