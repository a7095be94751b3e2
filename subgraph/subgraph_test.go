package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"transferkit/events"
	"transferkit/types"
)

type stubHeads struct {
	blocks map[uint64]uint64
	err    error
}

func (s *stubHeads) HeadBlock(_ context.Context, chainId uint64) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.blocks[chainId], nil
}

// fakeSubgraph serves canned graph-node responses: a synced block for the
// _meta query and per-status transaction lists otherwise.
type fakeSubgraph struct {
	syncedBlock uint64
	byStatus    map[string][]map[string]interface{}
}

func (f *fakeSubgraph) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")

		if strings.Contains(req.Query, "_meta") {
			fmt.Fprintf(w, `{"data":{"_meta":{"block":{"number":%d}}}}`, f.syncedBlock)
			return
		}

		vars := req.Variables.(map[string]interface{})
		status, _ := vars["status"].(string)
		txs := f.byStatus[status]
		if txs == nil {
			txs = []map[string]interface{}{}
		}
		body, err := json.Marshal(map[string]interface{}{
			"data": map[string]interface{}{"transactions": txs},
		})
		if err != nil {
			t.Fatalf("marshal response: %v", err)
		}
		w.Write(body)
	}))
}

var testUser = common.HexToAddress("0x1000000000000000000000000000000000000001")

func sampleTx(txId string, sendingChain, receivingChain, chainId uint64) map[string]interface{} {
	return map[string]interface{}{
		"transactionId":                  txId,
		"chainId":                        fmt.Sprint(chainId),
		"user":                           map[string]string{"id": testUser.Hex()},
		"router":                         map[string]string{"id": "0x2000000000000000000000000000000000000002"},
		"initiator":                      testUser.Hex(),
		"receivingChainTxManagerAddress": "0x3000000000000000000000000000000000000003",
		"sendingAssetId":                 "0x0000000000000000000000000000000000000000",
		"receivingAssetId":               "0x4000000000000000000000000000000000000004",
		"sendingChainFallback":           testUser.Hex(),
		"callTo":                         "0x0000000000000000000000000000000000000000",
		"receivingAddress":               testUser.Hex(),
		"callDataHash":                   "0x" + strings.Repeat("00", 32),
		"sendingChainId":                 fmt.Sprint(sendingChain),
		"receivingChainId":               fmt.Sprint(receivingChain),
		"amount":                         "1000",
		"expiry":                         "1900000000",
		"preparedBlockNumber":            "42",
		"encryptedCallData":              "0x",
		"encodedBid":                     "0x01",
		"bidSignature":                   "0x" + strings.Repeat("11", 65),
		"prepareCaller":                  testUser.Hex(),
		"fulfillTransactionHash":         "0xfeed",
		"relayerFee":                     "0",
		"callData":                       "0x",
	}
}

func TestSyncStatus(t *testing.T) {
	fake := &fakeSubgraph{syncedBlock: 100}
	srv := fake.server(t)
	defer srv.Close()

	heads := &stubHeads{blocks: map[uint64]uint64{1337: 120}}
	g := NewGate(heads)
	g.AddChain(1337, srv.URL, 50)
	defer g.Close()

	rec := g.SyncStatus(context.Background(), 1337)
	if !rec.Synced || rec.SyncedBlock != 100 || rec.LatestBlock != 120 {
		t.Fatalf("expected synced record, got %+v", rec)
	}

	// Head far beyond the buffer.
	heads.blocks[1337] = 300
	rec = g.SyncStatus(context.Background(), 1337)
	if rec.Synced {
		t.Fatalf("expected unsynced record, got %+v", rec)
	}

	// Unknown chain degrades to the zero record.
	rec = g.SyncStatus(context.Background(), 42)
	if rec.Synced || rec.SyncedBlock != 0 || rec.LatestBlock != 0 {
		t.Fatalf("expected zero record, got %+v", rec)
	}
}

func TestCheckSynced(t *testing.T) {
	fake := &fakeSubgraph{syncedBlock: 100}
	srv := fake.server(t)
	defer srv.Close()

	g := NewGate(&stubHeads{blocks: map[uint64]uint64{1337: 500}})
	g.AddChain(1337, srv.URL, 50)
	defer g.Close()

	err := g.CheckSynced(context.Background(), 1337)
	if types.KindOf(err) != types.KindSubgraphsNotSynced {
		t.Fatalf("expected SubgraphsNotSynced, got %v", err)
	}
}

func TestActiveTransactions(t *testing.T) {
	const txBoth = "0xaa" // prepared on both sides
	const txSenderOnly = "0xbb"

	sending := &fakeSubgraph{byStatus: map[string][]map[string]interface{}{
		sgPrepared: {
			sampleTx(txBoth, 1337, 1338, 1337),
			sampleTx(txSenderOnly, 1337, 1338, 1337),
		},
	}}
	receiving := &fakeSubgraph{byStatus: map[string][]map[string]interface{}{
		sgPrepared: {sampleTx(txBoth, 1337, 1338, 1338)},
	}}
	sSrv := sending.server(t)
	defer sSrv.Close()
	rSrv := receiving.server(t)
	defer rSrv.Close()

	g := NewGate(&stubHeads{})
	g.AddChain(1337, sSrv.URL, 0)
	g.AddChain(1338, rSrv.URL, 0)
	defer g.Close()

	active, err := g.ActiveTransactions(context.Background(), testUser)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active transfers, got %d", len(active))
	}

	byId := make(map[common.Hash]types.ActiveTransaction)
	for _, a := range active {
		byId[a.TxData.TransactionId] = a
	}

	both := byId[common.HexToHash(txBoth)]
	if both.Status != types.StatusReceiverPrepared {
		t.Fatalf("expected ReceiverPrepared, got %s", both.Status)
	}
	if len(both.BidSignature) != 65 {
		t.Fatalf("bid signature not carried through: %d bytes", len(both.BidSignature))
	}

	senderOnly := byId[common.HexToHash(txSenderOnly)]
	if senderOnly.Status != types.StatusSenderPrepared {
		t.Fatalf("expected SenderPrepared, got %s", senderOnly.Status)
	}
}

func TestHistoricalTransactions(t *testing.T) {
	// Fulfill recorded on the receiving chain, cancel on the sending chain.
	receiving := &fakeSubgraph{byStatus: map[string][]map[string]interface{}{
		sgFulfilled: {sampleTx("0xaa", 1337, 1338, 1338)},
	}}
	sending := &fakeSubgraph{byStatus: map[string][]map[string]interface{}{
		sgCancelled: {sampleTx("0xbb", 1337, 1338, 1337)},
	}}
	rSrv := receiving.server(t)
	defer rSrv.Close()
	sSrv := sending.server(t)
	defer sSrv.Close()

	g := NewGate(&stubHeads{})
	g.AddChain(1337, sSrv.URL, 0)
	g.AddChain(1338, rSrv.URL, 0)
	defer g.Close()

	historical, err := g.HistoricalTransactions(context.Background(), testUser)
	if err != nil {
		t.Fatalf("historical: %v", err)
	}
	if len(historical) != 2 {
		t.Fatalf("expected 2 historical transfers, got %d", len(historical))
	}

	var sawFulfilled, sawCancelled bool
	for _, h := range historical {
		switch h.Status {
		case types.StatusFulfilled:
			sawFulfilled = true
			if h.FulfilledTxHash != "0xfeed" {
				t.Fatalf("fulfill hash missing: %+v", h)
			}
		case types.StatusCancelled:
			sawCancelled = true
		}
	}
	if !sawFulfilled || !sawCancelled {
		t.Fatalf("missing statuses: fulfilled=%v cancelled=%v", sawFulfilled, sawCancelled)
	}
}

func TestPollerEmitsOncePerTransition(t *testing.T) {
	sending := &fakeSubgraph{byStatus: map[string][]map[string]interface{}{
		sgPrepared: {sampleTx("0xaa", 1337, 1338, 1337)},
	}}
	srv := sending.server(t)
	defer srv.Close()

	g := NewGate(&stubHeads{})
	g.AddChain(1337, srv.URL, 0)
	defer g.Close()

	mux := events.NewMux()
	var prepared int32
	mux.Attach(types.SenderTransactionPrepared, func(p interface{}) {
		evt := p.(types.TransactionPreparedEvent)
		if evt.TxData.TransactionId != common.HexToHash("0xaa") {
			t.Errorf("unexpected transaction id %s", evt.TxData.TransactionId.Hex())
		}
		atomic.AddInt32(&prepared, 1)
	}, nil)

	p := NewPoller(g, mux, testUser, time.Hour)
	p.pollOnce(context.Background())
	p.pollOnce(context.Background())

	if got := atomic.LoadInt32(&prepared); got != 1 {
		t.Fatalf("expected exactly one event, got %d", got)
	}

	// Fulfill on the receiving side shows up as a new transition.
	receiving := &fakeSubgraph{byStatus: map[string][]map[string]interface{}{
		sgFulfilled: {sampleTx("0xaa", 1337, 1338, 1338)},
	}}
	rSrv := receiving.server(t)
	defer rSrv.Close()
	g.AddChain(1338, rSrv.URL, 0)

	var fulfilled int32
	mux.Attach(types.ReceiverTransactionFulfilled, func(interface{}) {
		atomic.AddInt32(&fulfilled, 1)
	}, nil)

	p.pollOnce(context.Background())
	if got := atomic.LoadInt32(&fulfilled); got != 1 {
		t.Fatalf("expected one fulfill event, got %d", got)
	}
	if got := atomic.LoadInt32(&prepared); got != 1 {
		t.Fatalf("prepared event re-fired: %d", got)
	}
}

func TestPollerPollsImmediatelyOnStart(t *testing.T) {
	sending := &fakeSubgraph{byStatus: map[string][]map[string]interface{}{
		sgPrepared: {sampleTx("0xbb", 1337, 1338, 1337)},
	}}
	srv := sending.server(t)
	defer srv.Close()

	g := NewGate(&stubHeads{})
	g.AddChain(1337, srv.URL, 0)
	defer g.Close()

	mux := events.NewMux()
	var prepared int32
	mux.Attach(types.SenderTransactionPrepared, func(interface{}) {
		atomic.AddInt32(&prepared, 1)
	}, nil)

	// A long interval means the only chance to see the event is the
	// initial poll that Start fires before its first tick.
	p := NewPoller(g, mux, testUser, time.Hour)
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&prepared) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&prepared); got != 1 {
		t.Fatalf("expected one event from the startup poll, got %d", got)
	}
}

func TestPollerStartStop(t *testing.T) {
	g := NewGate(&stubHeads{})
	p := NewPoller(g, events.NewMux(), testUser, 5*time.Millisecond)
	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	p.Stop()
}
