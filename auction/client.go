// Package auction runs time-bounded bid solicitations over the message bus
// and picks the winning router offer.
package auction

import (
	"context"
	"log"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"transferkit/bidcrypto"
	"transferkit/internal/metrics"
	"transferkit/messaging"
	"transferkit/types"
	"transferkit/validation"
)

// Timeout bounds bid collection for an open auction. Preferred-router
// auctions wait twice as long.
const Timeout = 6 * time.Second

// Rejection reasons carried inside NoValidBids errors.
const (
	ReasonBadSignature = "Invalid router signature on bid"
	ReasonLowLiquidity = "Router's liquidity low"
	ReasonBadPrice     = "Invalid bid price"
	ReasonLiquidityRPC = "Error getting router liquidity"
)

// ChainReader is the slice of the chain gate bid validation needs.
type ChainReader interface {
	RouterLiquidity(ctx context.Context, chainId uint64, router, asset common.Address) (*big.Int, error)
	EstimateReceivedAmount(ctx context.Context, receivingChainId uint64, sendingAsset, receivingAsset common.Address, amount *big.Int) (*big.Int, error)
}

// Request describes one auction.
type Request struct {
	Payload           types.AuctionPayload
	SlippageTolerance string
	DryRun            bool
	PreferredRouters  []common.Address
}

// Client owns one shared bus subscription and routes responses to in-flight
// auctions by inbox.
type Client struct {
	bus     messaging.Bus
	chains  ChainReader
	metrics *metrics.Registry
	timeout time.Duration

	mu       sync.Mutex
	sub      messaging.Subscription
	inflight map[string]chan types.AuctionResponseEnvelope
}

func NewClient(bus messaging.Bus, chains ChainReader, m *metrics.Registry) *Client {
	return &Client{
		bus:      bus,
		chains:   chains,
		metrics:  m,
		timeout:  Timeout,
		inflight: make(map[string]chan types.AuctionResponseEnvelope),
	}
}

// SetTimeout overrides the collection window. Tests use this; production
// keeps the default.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// RunAuction opens an auction and resolves it according to the request's
// policy: dry-run takes the first reply, preferred routers take the first
// valid bid from the set within a doubled window, and open auctions collect,
// validate, and rank everything that arrives in the window.
func (c *Client) RunAuction(ctx context.Context, req Request) (*types.AuctionResponse, error) {
	start := time.Now()
	resp, err := c.runAuction(ctx, req)
	c.metrics.ObserveAuctionDuration(time.Since(start).Seconds())
	if err != nil {
		c.metrics.IncAuction(string(resultKind(err)))
		return nil, err
	}
	c.metrics.IncAuction("won")
	return resp, nil
}

func resultKind(err error) types.ErrorKind {
	if kind := types.KindOf(err); kind != "" {
		return kind
	}
	return types.KindUnknownAuctionError
}

func (c *Client) runAuction(ctx context.Context, req Request) (*types.AuctionResponse, error) {
	inbox, err := messaging.NewInbox()
	if err != nil {
		return nil, types.WrapError(types.KindUnknownAuctionError, err, "open auction")
	}

	if err := c.ensureSubscription(); err != nil {
		return nil, types.WrapError(types.KindUnknownAuctionError, err, "subscribe auction responses")
	}

	ch := c.register(inbox)
	defer c.release(inbox)

	if err := c.bus.PublishAuctionRequest(ctx, types.AuctionRequestEnvelope{
		InboxId: inbox,
		Payload: req.Payload,
	}); err != nil {
		return nil, types.WrapError(types.KindUnknownAuctionError, err, "publish auction request")
	}
	log.Printf("auction %s: opened for tx %s", inbox, req.Payload.TransactionId.Hex())

	window := c.timeout
	if len(req.PreferredRouters) > 0 {
		window = 2 * c.timeout
	}
	timer := time.NewTimer(window)
	defer timer.Stop()

	switch {
	case req.DryRun:
		return c.collectFirst(ctx, ch, timer.C, window)
	case len(req.PreferredRouters) > 0:
		return c.collectPreferred(ctx, req, ch, timer.C, window)
	default:
		return c.collectOpen(ctx, req, ch, timer.C, window)
	}
}

// ensureSubscription lazily creates the single shared subscription. All
// auctions dispatch through it.
func (c *Client) ensureSubscription() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}
	sub, err := c.bus.SubscribeAuctionResponses(c.dispatch)
	if err != nil {
		return err
	}
	c.sub = sub
	return nil
}

func (c *Client) register(inbox string) chan types.AuctionResponseEnvelope {
	ch := make(chan types.AuctionResponseEnvelope, 64)
	c.mu.Lock()
	c.inflight[inbox] = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) release(inbox string) {
	c.mu.Lock()
	delete(c.inflight, inbox)
	c.mu.Unlock()
}

// dispatch routes one bus envelope to the auction owning its inbox. Replies
// for released inboxes are dropped silently.
func (c *Client) dispatch(env types.AuctionResponseEnvelope) {
	c.mu.Lock()
	ch, ok := c.inflight[env.Inbox]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- env:
	default:
		log.Printf("auction %s: response queue full, dropping bid", env.Inbox)
	}
}

// collectFirst implements the dry-run policy: the first non-error reply wins
// without validation.
func (c *Client) collectFirst(ctx context.Context, ch <-chan types.AuctionResponseEnvelope, deadline <-chan time.Time, window time.Duration) (*types.AuctionResponse, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, types.WrapError(types.KindUnknownAuctionError, ctx.Err(), "auction cancelled")
		case <-deadline:
			return nil, types.NewError(types.KindNoBids, "no bids within %s", window)
		case env := <-ch:
			if env.Err != "" {
				log.Printf("auction %s: router error: %s", env.Inbox, env.Err)
				continue
			}
			if env.Data == nil {
				continue
			}
			c.metrics.IncBidReceived()
			return env.Data, nil
		}
	}
}

// collectPreferred waits for the first fully valid bid from a preferred
// router.
func (c *Client) collectPreferred(ctx context.Context, req Request, ch <-chan types.AuctionResponseEnvelope, deadline <-chan time.Time, window time.Duration) (*types.AuctionResponse, error) {
	preferred := make(map[common.Address]bool, len(req.PreferredRouters))
	for _, r := range req.PreferredRouters {
		preferred[r] = true
	}

	sawBid := false
	var reasons []string
	for {
		select {
		case <-ctx.Done():
			return nil, types.WrapError(types.KindUnknownAuctionError, ctx.Err(), "auction cancelled")
		case <-deadline:
			if !sawBid {
				return nil, types.NewError(types.KindNoBids, "no bids within %s", window)
			}
			return nil, &types.Error{Kind: types.KindNoValidBids, Msg: "no valid preferred-router bids", Reasons: reasons}
		case env := <-ch:
			if env.Err != "" || env.Data == nil {
				continue
			}
			sawBid = true
			c.metrics.IncBidReceived()
			if !preferred[env.Data.Bid.Router] {
				reasons = append(reasons, "router not in preferred set")
				continue
			}
			if reason := c.validateBid(ctx, req, *env.Data); reason != "" {
				c.metrics.IncBidRejection(reason)
				reasons = append(reasons, reason)
				continue
			}
			return env.Data, nil
		}
	}
}

// collectOpen accumulates every reply until the window closes, then
// validates in arrival order and ranks the survivors.
func (c *Client) collectOpen(ctx context.Context, req Request, ch <-chan types.AuctionResponseEnvelope, deadline <-chan time.Time, window time.Duration) (*types.AuctionResponse, error) {
	var collected []types.AuctionResponse

collect:
	for {
		select {
		case <-ctx.Done():
			return nil, types.WrapError(types.KindUnknownAuctionError, ctx.Err(), "auction cancelled")
		case <-deadline:
			break collect
		case env := <-ch:
			if env.Err != "" {
				log.Printf("auction %s: router error: %s", env.Inbox, env.Err)
				continue
			}
			if env.Data == nil {
				continue
			}
			c.metrics.IncBidReceived()
			collected = append(collected, *env.Data)
		}
	}

	if len(collected) == 0 {
		return nil, types.NewError(types.KindNoBids, "no bids within %s", window)
	}

	survivors := make([]types.AuctionResponse, 0, len(collected))
	var reasons []string
	for _, resp := range collected {
		if reason := c.validateBid(ctx, req, resp); reason != "" {
			log.Printf("auction: rejecting bid from %s: %s", resp.Bid.Router.Hex(), reason)
			c.metrics.IncBidRejection(reason)
			reasons = append(reasons, reason)
			continue
		}
		survivors = append(survivors, resp)
	}
	if len(survivors) == 0 {
		return nil, &types.Error{Kind: types.KindNoValidBids, Msg: "all bids rejected", Reasons: reasons}
	}

	// Highest amountReceived wins; the stable sort keeps arrival order on
	// ties.
	sort.SliceStable(survivors, func(i, j int) bool {
		a, _ := new(big.Int).SetString(survivors[i].Bid.AmountReceived, 10)
		b, _ := new(big.Int).SetString(survivors[j].Bid.AmountReceived, 10)
		if a == nil || b == nil {
			return false
		}
		return a.Cmp(b) > 0
	})
	winner := survivors[0]
	return &winner, nil
}

// validateBid runs the three gates on a bid. An empty return means the bid
// survives; otherwise the string is the rejection reason.
func (c *Client) validateBid(ctx context.Context, req Request, resp types.AuctionResponse) string {
	bid := resp.Bid

	if err := validation.ValidateAuctionBid(bid, time.Now()); err != nil {
		return err.Error()
	}

	signer, err := bidcrypto.RecoverBidSigner(bid, resp.BidSignature)
	if err != nil || signer != bid.Router {
		return ReasonBadSignature
	}

	amountReceived, ok := new(big.Int).SetString(bid.AmountReceived, 10)
	if !ok {
		return "invalid amountReceived"
	}
	liquidity, err := c.chains.RouterLiquidity(ctx, bid.ReceivingChainId, bid.Router, bid.ReceivingAssetId)
	if err != nil {
		return ReasonLiquidityRPC
	}
	if liquidity.Cmp(amountReceived) < 0 {
		return ReasonLowLiquidity
	}

	if reason := c.checkSlippage(ctx, req, bid, resp.GasFeeInReceivingToken, amountReceived); reason != "" {
		return reason
	}
	return ""
}

// checkSlippage anchors the acceptable floor to the oracle's estimate of the
// receiving amount; when no oracle answer is available the floor degrades to
// the bid's own amount, which always passes.
func (c *Client) checkSlippage(ctx context.Context, req Request, bid types.AuctionBid, gasFee string, amountReceived *big.Int) string {
	slip, err := validation.ParseSlippage(req.SlippageTolerance)
	if err != nil {
		return err.Error()
	}

	amount, ok := new(big.Int).SetString(bid.Amount, 10)
	if !ok {
		return "invalid amount"
	}
	expected, err := c.chains.EstimateReceivedAmount(ctx, bid.ReceivingChainId, bid.SendingAssetId, bid.ReceivingAssetId, amount)
	if err != nil {
		expected = amountReceived
	}

	gas := decimal.Zero
	if gasFee != "" {
		if g, err := decimal.NewFromString(gasFee); err == nil {
			gas = g
		}
	}

	amtMinusGas := decimal.NewFromBigInt(expected, 0).Sub(gas)
	hundred := decimal.NewFromInt(100)
	factor := decimal.NewFromInt(1).Sub(slip.Div(hundred))
	// Integer portion only, matching the protocol's floor-division rule.
	lowerBound := amtMinusGas.Mul(factor).Floor()

	if decimal.NewFromBigInt(amountReceived, 0).LessThan(lowerBound) {
		return ReasonBadPrice
	}
	return ""
}

// Close drops the shared subscription. In-flight auctions resolve through
// their own deadlines.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
}
