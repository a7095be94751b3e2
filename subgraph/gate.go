package subgraph

import (
	"context"
	"log"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"transferkit/types"
)

// DefaultSyncBuffer is how many blocks a subgraph may trail the chain head
// before it counts as out of sync.
const DefaultSyncBuffer = 50

// HeadReader reports a chain's latest block number. chain.Gate satisfies it.
type HeadReader interface {
	HeadBlock(ctx context.Context, chainId uint64) (uint64, error)
}

type chainSubgraph struct {
	client     *Client
	syncBuffer uint64
}

// Gate fronts the per-chain subgraphs. Missing or unreachable subgraphs
// degrade to an unsynced record rather than an error.
type Gate struct {
	heads HeadReader

	mu     sync.RWMutex
	chains map[uint64]*chainSubgraph
}

func NewGate(heads HeadReader) *Gate {
	return &Gate{heads: heads, chains: make(map[uint64]*chainSubgraph)}
}

// AddChain registers a subgraph endpoint for chainId. A zero syncBuffer gets
// the default.
func (g *Gate) AddChain(chainId uint64, endpoint string, syncBuffer uint64) {
	if syncBuffer == 0 {
		syncBuffer = DefaultSyncBuffer
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chains[chainId] = &chainSubgraph{client: NewClient(endpoint), syncBuffer: syncBuffer}
}

func (g *Gate) HasSubgraph(chainId uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.chains[chainId]
	return ok
}

func (g *Gate) chainFor(chainId uint64) *chainSubgraph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chains[chainId]
}

func (g *Gate) chainIds() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]uint64, 0, len(g.chains))
	for id := range g.chains {
		ids = append(ids, id)
	}
	return ids
}

// SyncStatus compares the subgraph's indexed block against the chain head.
// Any failure yields the zero record, which reads as unsynced.
func (g *Gate) SyncStatus(ctx context.Context, chainId uint64) types.SubgraphSyncRecord {
	cs := g.chainFor(chainId)
	if cs == nil {
		return types.SubgraphSyncRecord{}
	}

	syncedBlock, err := cs.client.SyncedBlock(ctx)
	if err != nil {
		log.Printf("subgraph: synced block for chain %d: %v", chainId, err)
		return types.SubgraphSyncRecord{}
	}
	latestBlock, err := g.heads.HeadBlock(ctx, chainId)
	if err != nil {
		log.Printf("subgraph: head block for chain %d: %v", chainId, err)
		return types.SubgraphSyncRecord{}
	}

	rec := types.SubgraphSyncRecord{SyncedBlock: syncedBlock, LatestBlock: latestBlock}
	rec.Synced = latestBlock <= syncedBlock+cs.syncBuffer
	return rec
}

// CheckSynced fails with SubgraphsNotSynced unless every named chain's
// subgraph is within its buffer of the chain head.
func (g *Gate) CheckSynced(ctx context.Context, chainIds ...uint64) error {
	for _, chainId := range chainIds {
		rec := g.SyncStatus(ctx, chainId)
		if !rec.Synced {
			return types.NewError(types.KindSubgraphsNotSynced,
				"subgraph for chain %d is not synced (synced block %d, latest %d)",
				chainId, rec.SyncedBlock, rec.LatestBlock)
		}
	}
	return nil
}

// ActiveTransactions enumerates the user's in-flight transfers across every
// registered chain. A transfer is SenderPrepared once the sending chain shows
// it prepared, and ReceiverPrepared once the receiving chain does too; the
// returned transaction data is the one for the side the user acts on next.
// Chains that fail to answer are skipped.
func (g *Gate) ActiveTransactions(ctx context.Context, user common.Address) ([]types.ActiveTransaction, error) {
	type prepared struct {
		chainId uint64
		tx      subgraphTransaction
	}
	senderSide := make(map[common.Hash]prepared)
	receiverSide := make(map[common.Hash]prepared)

	for _, chainId := range g.chainIds() {
		cs := g.chainFor(chainId)
		txs, err := cs.client.UserTransactionsByStatus(ctx, user, sgPrepared)
		if err != nil {
			log.Printf("subgraph: active transactions on chain %d: %v", chainId, err)
			continue
		}
		for _, tx := range txs {
			txChain, err := parseUintField("chainId", tx.ChainId)
			if err != nil || txChain != chainId {
				continue
			}
			sendingChain, _ := parseUintField("sendingChainId", tx.SendingChainId)
			id := common.HexToHash(tx.TransactionId)
			if sendingChain == chainId {
				senderSide[id] = prepared{chainId: chainId, tx: tx}
			} else {
				receiverSide[id] = prepared{chainId: chainId, tx: tx}
			}
		}
	}

	var active []types.ActiveTransaction
	for id, sender := range senderSide {
		entry := sender
		status := types.StatusSenderPrepared
		if receiver, ok := receiverSide[id]; ok {
			entry = receiver
			status = types.StatusReceiverPrepared
		}
		txData, err := entry.tx.toTxData()
		if err != nil {
			log.Printf("subgraph: skipping malformed transaction %s: %v", id.Hex(), err)
			continue
		}
		active = append(active, types.ActiveTransaction{
			TxData:            txData,
			Status:            status,
			Caller:            common.HexToAddress(entry.tx.PrepareCaller),
			EncryptedCallData: entry.tx.EncryptedCallData,
			EncodedBid:        entry.tx.EncodedBid,
			BidSignature:      entry.tx.bidSignatureBytes(),
		})
	}
	return active, nil
}

// HistoricalTransactions enumerates settled transfers: fulfills read from the
// receiving chain, cancels from the sending chain.
func (g *Gate) HistoricalTransactions(ctx context.Context, user common.Address) ([]types.HistoricalTransaction, error) {
	var historical []types.HistoricalTransaction

	for _, chainId := range g.chainIds() {
		cs := g.chainFor(chainId)

		fulfilled, err := cs.client.UserTransactionsByStatus(ctx, user, sgFulfilled)
		if err != nil {
			log.Printf("subgraph: fulfilled transactions on chain %d: %v", chainId, err)
		}
		for _, tx := range fulfilled {
			receivingChain, _ := parseUintField("receivingChainId", tx.ReceivingChainId)
			if receivingChain != chainId {
				continue
			}
			txData, err := tx.toTxData()
			if err != nil {
				continue
			}
			historical = append(historical, types.HistoricalTransaction{
				TxData:          txData,
				Status:          types.StatusFulfilled,
				FulfilledTxHash: tx.FulfillTransactionHash,
			})
		}

		cancelled, err := cs.client.UserTransactionsByStatus(ctx, user, sgCancelled)
		if err != nil {
			log.Printf("subgraph: cancelled transactions on chain %d: %v", chainId, err)
		}
		for _, tx := range cancelled {
			sendingChain, _ := parseUintField("sendingChainId", tx.SendingChainId)
			if sendingChain != chainId {
				continue
			}
			txData, err := tx.toTxData()
			if err != nil {
				continue
			}
			historical = append(historical, types.HistoricalTransaction{
				TxData: txData,
				Status: types.StatusCancelled,
			})
		}
	}
	return historical, nil
}

// Close releases every chain client's pooled connections.
func (g *Gate) Close() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, cs := range g.chains {
		cs.client.Close()
	}
}
