package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"transferkit"
	"transferkit/types"
)

func main() {
	configPath := flag.String("config", "transferkit.json", "path to the JSON config file")
	userHex := flag.String("user", os.Getenv("TRANSFERKIT_USER"), "user address the SDK coordinates for")
	watch := flag.Bool("watch", false, "stay attached and log transfer events")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address")
	flag.Parse()

	if !common.IsHexAddress(*userHex) {
		log.Fatalf("invalid user address %q", *userHex)
	}
	user := common.HexToAddress(*userHex)

	cfg, err := transferkit.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sdk, err := transferkit.New(ctx, cfg, user, nil)
	if err != nil {
		log.Fatalf("sdk error: %v", err)
	}
	defer sdk.Close()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", sdk.Metrics().Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	for key := range cfg.Chains {
		log.Printf("chain %s configured", key)
	}

	active, err := sdk.ActiveTransactions(ctx)
	if err != nil {
		log.Fatalf("active transactions: %v", err)
	}
	for _, tx := range active {
		log.Printf("active %s: %s  %d -> %d  amount %s",
			tx.TxData.TransactionId.Hex(), tx.Status,
			tx.TxData.SendingChainId, tx.TxData.ReceivingChainId, tx.TxData.Amount)
	}

	historical, err := sdk.HistoricalTransactions(ctx)
	if err != nil {
		log.Fatalf("historical transactions: %v", err)
	}
	for _, tx := range historical {
		log.Printf("settled %s: %s", tx.TxData.TransactionId.Hex(), tx.Status)
	}

	if !*watch {
		return
	}

	for _, evt := range types.EventNames() {
		evt := evt
		sdk.Attach(evt, func(payload interface{}) {
			log.Printf("event %s: %+v", evt, payload)
		}, nil)
	}
	log.Printf("watching transfer events for %s", user.Hex())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}
