package validation

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"transferkit/types"
)

func configured(ids ...uint64) func(uint64) bool {
	set := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id uint64) bool { return set[id] }
}

func validQuote() types.QuoteParams {
	return types.QuoteParams{
		SendingChainId:    1337,
		SendingAssetId:    common.HexToAddress("0x01"),
		ReceivingChainId:  1338,
		ReceivingAssetId:  common.HexToAddress("0x02"),
		Amount:            "1000000",
		ReceivingAddress:  common.HexToAddress("0x03"),
		User:              common.HexToAddress("0x04"),
		CallData:          "0x",
		SlippageTolerance: "0.10",
	}
}

func TestValidateQuoteParams(t *testing.T) {
	isCfg := configured(1337, 1338)

	cases := []struct {
		name   string
		mutate func(*types.QuoteParams)
		kind   types.ErrorKind
	}{
		{"valid", func(p *types.QuoteParams) {}, ""},
		{"same chains", func(p *types.QuoteParams) { p.ReceivingChainId = 1337 }, types.KindInvalidParamStructure},
		{"unconfigured sending", func(p *types.QuoteParams) { p.SendingChainId = 9999 }, types.KindChainNotConfigured},
		{"unconfigured receiving", func(p *types.QuoteParams) { p.ReceivingChainId = 9999 }, types.KindChainNotConfigured},
		{"zero amount", func(p *types.QuoteParams) { p.Amount = "0" }, types.KindInvalidParamStructure},
		{"fractional amount", func(p *types.QuoteParams) { p.Amount = "1.5" }, types.KindInvalidParamStructure},
		{"missing receiving address", func(p *types.QuoteParams) { p.ReceivingAddress = common.Address{} }, types.KindInvalidParamStructure},
		{"slippage too low", func(p *types.QuoteParams) { p.SlippageTolerance = "0.001" }, types.KindInvalidSlippage},
		{"slippage too high", func(p *types.QuoteParams) { p.SlippageTolerance = "15.01" }, types.KindInvalidSlippage},
		{"bad callData", func(p *types.QuoteParams) { p.CallData = "zzzz" }, types.KindInvalidParamStructure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validQuote()
			tc.mutate(&p)
			err := ValidateQuoteParams(p, isCfg)
			if tc.kind == "" {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if types.KindOf(err) != tc.kind {
				t.Fatalf("expected kind %s, got %v", tc.kind, err)
			}
		})
	}
}

func TestExpiryBounds(t *testing.T) {
	now := time.Now()

	// Below the 2d1h minimum.
	early := uint64(now.Add(24 * time.Hour).Unix())
	if err := ValidateExpiry(early, now); types.KindOf(err) != types.KindInvalidExpiry {
		t.Fatalf("expected InvalidExpiry for +24h, got %v", err)
	}

	// Above the 4d maximum.
	late := uint64(now.Add(5 * 24 * time.Hour).Unix())
	if err := ValidateExpiry(late, now); types.KindOf(err) != types.KindInvalidExpiry {
		t.Fatalf("expected InvalidExpiry for +5d, got %v", err)
	}

	ok := uint64(now.Add(72 * time.Hour).Unix())
	if err := ValidateExpiry(ok, now); err != nil {
		t.Fatalf("expected +72h to pass, got %v", err)
	}
}

func TestValidateAuctionBid(t *testing.T) {
	now := time.Now()
	bid := types.AuctionBid{
		User:             common.HexToAddress("0x04"),
		Router:           common.HexToAddress("0x05"),
		SendingChainId:   1337,
		ReceivingChainId: 1338,
		Amount:           "100",
		AmountReceived:   "99",
		TransactionId:    common.HexToHash("0xaa"),
		BidExpiry:        uint64(now.Add(time.Minute).Unix()),
	}
	if err := ValidateAuctionBid(bid, now); err != nil {
		t.Fatalf("expected valid bid, got %v", err)
	}

	expired := bid
	expired.BidExpiry = uint64(now.Add(-time.Minute).Unix())
	if err := ValidateAuctionBid(expired, now); err == nil {
		t.Fatalf("expected error for expired bid")
	}

	noRouter := bid
	noRouter.Router = common.Address{}
	if err := ValidateAuctionBid(noRouter, now); err == nil {
		t.Fatalf("expected error for missing router")
	}
}

func TestValidateCancel(t *testing.T) {
	c := types.CancelParams{}
	c.TxData.TransactionId = common.HexToHash("0xaa")
	c.TxData.Amount = "100"
	if err := ValidateCancel(c); err != nil {
		t.Fatalf("expected valid cancel, got %v", err)
	}

	c.Signature = make([]byte, 10)
	if err := ValidateCancel(c); err == nil {
		t.Fatalf("expected error for malformed signature")
	}
}

func TestCanonicalAddress(t *testing.T) {
	addr, err := CanonicalAddress("0x8ba1f109551bd432803012645ac136ddd64dba72")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Hex() != "0x8ba1f109551bD432803012645Ac136ddd64DBA72" {
		t.Fatalf("checksum mismatch: %s", addr.Hex())
	}
	if _, err := CanonicalAddress("nope"); err == nil {
		t.Fatalf("expected error for invalid address")
	}
}
