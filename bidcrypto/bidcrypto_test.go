package bidcrypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"transferkit/types"
)

func sampleBid() types.AuctionBid {
	return types.AuctionBid{
		User:              common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Router:            common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Initiator:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		SendingChainId:    1337,
		SendingAssetId:    common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Amount:            "1000000000000000000",
		ReceivingChainId:  1338,
		ReceivingAssetId:  common.HexToAddress("0x4444444444444444444444444444444444444444"),
		AmountReceived:    "995000000000000000",
		ReceivingAddress:  common.HexToAddress("0x5555555555555555555555555555555555555555"),
		TransactionId:     common.HexToHash("0xaa"),
		Expiry:            1900000000,
		CallDataHash:      crypto.Keccak256Hash([]byte{}),
		CallTo:            common.Address{},
		EncryptedCallData: "0x",
		BidExpiry:         1900000100,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bid := sampleBid()
	bid.EncryptedCallData = "0xdeadbeef"

	encoded, err := EncodeBid(bid)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeBid(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != bid {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, bid)
	}
}

func TestSignAndRecoverBid(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	bid := sampleBid()
	bid.Router = crypto.PubkeyToAddress(key.PublicKey)

	sig, err := SignBid(bid, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(sig))
	}

	recovered, err := RecoverBidSigner(bid, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != bid.Router {
		t.Fatalf("recovered %s, want %s", recovered.Hex(), bid.Router.Hex())
	}
}

func TestRecoverRejectsTamperedBid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	bid := sampleBid()
	bid.Router = crypto.PubkeyToAddress(key.PublicKey)

	sig, err := SignBid(bid, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := bid
	tampered.AmountReceived = "999999999999999999"
	recovered, err := RecoverBidSigner(tampered, sig)
	if err == nil && recovered == bid.Router {
		t.Fatalf("tampered bid still recovered the router address")
	}
}

func TestRecoverRejectsBadSignatureLength(t *testing.T) {
	if _, err := RecoverBidSigner(sampleBid(), []byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected error for short signature")
	}
}

func TestSignAndRecoverFulfill(t *testing.T) {
	key, _ := crypto.GenerateKey()
	user := crypto.PubkeyToAddress(key.PublicKey)
	txid := common.HexToHash("0xbeef")
	manager := common.HexToAddress("0x6666666666666666666666666666666666666666")

	sig, err := SignFulfill(txid, "100", 1338, manager, key)
	if err != nil {
		t.Fatalf("sign fulfill: %v", err)
	}
	recovered, err := RecoverFulfillSigner(txid, "100", 1338, manager, sig)
	if err != nil {
		t.Fatalf("recover fulfill: %v", err)
	}
	if recovered != user {
		t.Fatalf("recovered %s, want %s", recovered.Hex(), user.Hex())
	}

	// A different relayer fee must produce a different digest.
	h1, _ := FulfillHashToSign(txid, "100", 1338, manager)
	h2, _ := FulfillHashToSign(txid, "101", 1338, manager)
	if h1 == h2 {
		t.Fatalf("fulfill digest ignores relayer fee")
	}
}

func TestEncodeBidRejectsBadAmount(t *testing.T) {
	bid := sampleBid()
	bid.Amount = "not-a-number"
	if _, err := EncodeBid(bid); err == nil {
		t.Fatalf("expected error for invalid amount")
	}
}
