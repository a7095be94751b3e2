package subgraph

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"transferkit/events"
	"transferkit/types"
)

// DefaultPollInterval is how often the poller re-reads the subgraphs.
const DefaultPollInterval = 10 * time.Second

const (
	sideSender   = "sender"
	sideReceiver = "receiver"
)

// Poller watches the user's transactions across every registered subgraph
// and publishes one mux event per observed side/status transition.
type Poller struct {
	gate     *Gate
	mux      *events.Mux
	user     common.Address
	interval time.Duration

	mu   sync.Mutex
	seen map[string]struct{}

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewPoller(gate *Gate, mux *events.Mux, user common.Address, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		gate:     gate,
		mux:      mux,
		user:     user,
		interval: interval,
		seen:     make(map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the poll loop until Stop or context cancellation.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		// Poll right away; waiting a full interval would leave freshly
		// attached callers blind to transitions that already happened.
		p.pollOnce(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.pollOnce(ctx)
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight poll to finish.
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

// pollOnce reads every chain's transactions for the user and publishes
// events for transitions not yet seen. Each transactionId/side/status triple
// fires at most once for the poller's lifetime.
func (p *Poller) pollOnce(ctx context.Context) {
	for _, chainId := range p.gate.chainIds() {
		cs := p.gate.chainFor(chainId)
		if cs == nil {
			continue
		}
		for _, status := range []string{sgPrepared, sgFulfilled, sgCancelled} {
			txs, err := cs.client.UserTransactionsByStatus(ctx, p.user, status)
			if err != nil {
				log.Printf("subgraph: poll chain %d status %s: %v", chainId, status, err)
				continue
			}
			for _, tx := range txs {
				p.handle(chainId, status, tx)
			}
		}
	}
}

func (p *Poller) handle(chainId uint64, status string, tx subgraphTransaction) {
	sendingChain, err := parseUintField("sendingChainId", tx.SendingChainId)
	if err != nil {
		return
	}
	side := sideReceiver
	if sendingChain == chainId {
		side = sideSender
	}

	evt, ok := eventFor(side, status)
	if !ok {
		return
	}

	key := tx.TransactionId + "|" + side + "|" + status
	p.mu.Lock()
	if _, dup := p.seen[key]; dup {
		p.mu.Unlock()
		return
	}
	p.seen[key] = struct{}{}
	p.mu.Unlock()

	txData, err := tx.toTxData()
	if err != nil {
		log.Printf("subgraph: malformed transaction %s: %v", tx.TransactionId, err)
		return
	}

	switch evt {
	case types.SenderTransactionPrepared, types.ReceiverTransactionPrepared:
		p.mux.Publish(evt, types.TransactionPreparedEvent{
			TxData:            txData,
			Caller:            common.HexToAddress(tx.PrepareCaller),
			EncryptedCallData: tx.EncryptedCallData,
			EncodedBid:        tx.EncodedBid,
			BidSignature:      tx.bidSignatureBytes(),
		})
	case types.ReceiverTransactionFulfilled:
		var sig []byte
		if tx.Signature != "" {
			sig = common.FromHex(tx.Signature)
		}
		p.mux.Publish(evt, types.TransactionFulfilledEvent{
			TxData:          txData,
			Signature:       sig,
			RelayerFee:      tx.RelayerFee,
			CallData:        tx.CallData,
			Caller:          common.HexToAddress(tx.FulfillCaller),
			TransactionHash: tx.FulfillTransactionHash,
		})
	case types.SenderTransactionCancelled, types.ReceiverTransactionCancelled:
		p.mux.Publish(evt, types.TransactionCancelledEvent{
			TxData:          txData,
			Caller:          common.HexToAddress(tx.CancelCaller),
			TransactionHash: tx.CancelTransactionHash,
		})
	}
}

func eventFor(side, status string) (types.EventName, bool) {
	switch {
	case side == sideSender && status == sgPrepared:
		return types.SenderTransactionPrepared, true
	case side == sideSender && status == sgCancelled:
		return types.SenderTransactionCancelled, true
	case side == sideReceiver && status == sgPrepared:
		return types.ReceiverTransactionPrepared, true
	case side == sideReceiver && status == sgFulfilled:
		return types.ReceiverTransactionFulfilled, true
	case side == sideReceiver && status == sgCancelled:
		return types.ReceiverTransactionCancelled, true
	}
	return "", false
}
