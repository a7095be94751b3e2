// Package bidcrypto canonically encodes auction bids and recovers the signer
// addresses behind bid and fulfill signatures. A signer mismatch is not an
// error here; callers compare the recovered address and discard the bid.
package bidcrypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"transferkit/types"
)

// bidArguments is the canonical field order routers sign over. Changing it
// invalidates every signature in flight.
var bidArguments = mustArguments([]argSpec{
	{"user", "address"},
	{"router", "address"},
	{"initiator", "address"},
	{"sendingChainId", "uint256"},
	{"sendingAssetId", "address"},
	{"amount", "uint256"},
	{"receivingChainId", "uint256"},
	{"receivingAssetId", "address"},
	{"amountReceived", "uint256"},
	{"receivingAddress", "address"},
	{"transactionId", "bytes32"},
	{"expiry", "uint256"},
	{"callDataHash", "bytes32"},
	{"callTo", "address"},
	{"encryptedCallData", "bytes"},
	{"bidExpiry", "uint256"},
})

var fulfillArguments = mustArguments([]argSpec{
	{"transactionId", "bytes32"},
	{"relayerFee", "uint256"},
	{"receivingChainId", "uint256"},
	{"txManagerAddress", "address"},
})

type argSpec struct {
	name string
	typ  string
}

func mustArguments(specs []argSpec) abi.Arguments {
	args := make(abi.Arguments, 0, len(specs))
	for _, s := range specs {
		t, err := abi.NewType(s.typ, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %q: %v", s.typ, err))
		}
		args = append(args, abi.Argument{Name: s.name, Type: t})
	}
	return args
}

// EncodeBid produces the canonical byte encoding of a bid.
func EncodeBid(bid types.AuctionBid) ([]byte, error) {
	amount, err := parseAmount(bid.Amount, "amount")
	if err != nil {
		return nil, err
	}
	amountReceived, err := parseAmount(bid.AmountReceived, "amountReceived")
	if err != nil {
		return nil, err
	}
	encrypted, err := decodeHexField(bid.EncryptedCallData)
	if err != nil {
		return nil, fmt.Errorf("encryptedCallData: %w", err)
	}

	return bidArguments.Pack(
		bid.User,
		bid.Router,
		bid.Initiator,
		new(big.Int).SetUint64(bid.SendingChainId),
		bid.SendingAssetId,
		amount,
		new(big.Int).SetUint64(bid.ReceivingChainId),
		bid.ReceivingAssetId,
		amountReceived,
		bid.ReceivingAddress,
		[32]byte(bid.TransactionId),
		new(big.Int).SetUint64(bid.Expiry),
		[32]byte(bid.CallDataHash),
		bid.CallTo,
		encrypted,
		new(big.Int).SetUint64(bid.BidExpiry),
	)
}

// DecodeBid reverses EncodeBid.
func DecodeBid(encoded []byte) (types.AuctionBid, error) {
	values, err := bidArguments.Unpack(encoded)
	if err != nil {
		return types.AuctionBid{}, fmt.Errorf("unpack bid: %w", err)
	}
	if len(values) != len(bidArguments) {
		return types.AuctionBid{}, fmt.Errorf("unpack bid: got %d values", len(values))
	}

	bid := types.AuctionBid{
		User:             values[0].(common.Address),
		Router:           values[1].(common.Address),
		Initiator:        values[2].(common.Address),
		SendingChainId:   values[3].(*big.Int).Uint64(),
		SendingAssetId:   values[4].(common.Address),
		Amount:           values[5].(*big.Int).String(),
		ReceivingChainId: values[6].(*big.Int).Uint64(),
		ReceivingAssetId: values[7].(common.Address),
		AmountReceived:   values[8].(*big.Int).String(),
		ReceivingAddress: values[9].(common.Address),
		TransactionId:    common.Hash(values[10].([32]byte)),
		Expiry:           values[11].(*big.Int).Uint64(),
		CallDataHash:     common.Hash(values[12].([32]byte)),
		CallTo:           values[13].(common.Address),
		BidExpiry:        values[15].(*big.Int).Uint64(),
	}
	if raw := values[14].([]byte); len(raw) > 0 {
		bid.EncryptedCallData = hexutil.Encode(raw)
	} else {
		bid.EncryptedCallData = "0x"
	}
	return bid, nil
}

// RecoverBidSigner returns the address that signed the bid.
func RecoverBidSigner(bid types.AuctionBid, signature []byte) (common.Address, error) {
	encoded, err := EncodeBid(bid)
	if err != nil {
		return common.Address{}, err
	}
	return recoverAddress(crypto.Keccak256(encoded), signature)
}

// SignBid signs the canonical bid encoding with the given key. The returned
// signature uses the 27/28 recovery id convention.
func SignBid(bid types.AuctionBid, key *ecdsa.PrivateKey) ([]byte, error) {
	encoded, err := EncodeBid(bid)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(crypto.Keccak256(encoded), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// HashCallData is the keccak commitment to a transfer's plaintext callData.
// The bid and the on-chain invariant both carry it.
func HashCallData(callData []byte) common.Hash {
	return crypto.Keccak256Hash(callData)
}

// FulfillHashToSign is the digest the user signs to authorize a fulfill,
// optionally relayed by a third party for relayerFee.
func FulfillHashToSign(transactionId common.Hash, relayerFee string, receivingChainId uint64, txManagerAddress common.Address) (common.Hash, error) {
	fee, err := parseAmount(relayerFee, "relayerFee")
	if err != nil {
		return common.Hash{}, err
	}
	encoded, err := fulfillArguments.Pack(
		[32]byte(transactionId),
		fee,
		new(big.Int).SetUint64(receivingChainId),
		txManagerAddress,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack fulfill payload: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// SignFulfill produces the user's fulfill signature.
func SignFulfill(transactionId common.Hash, relayerFee string, receivingChainId uint64, txManagerAddress common.Address, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := FulfillHashToSign(transactionId, relayerFee, receivingChainId, txManagerAddress)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverFulfillSigner returns the address behind a fulfill signature.
func RecoverFulfillSigner(transactionId common.Hash, relayerFee string, receivingChainId uint64, txManagerAddress common.Address, signature []byte) (common.Address, error) {
	digest, err := FulfillHashToSign(transactionId, relayerFee, receivingChainId, txManagerAddress)
	if err != nil {
		return common.Address{}, err
	}
	return recoverAddress(digest.Bytes(), signature)
}

func recoverAddress(digest, signature []byte) (common.Address, error) {
	if len(digest) != 32 {
		return common.Address{}, fmt.Errorf("invalid digest length: %d", len(digest))
	}
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] == 27 || sig[64] == 28 {
		sig[64] -= 27
	}
	if sig[64] != 0 && sig[64] != 1 {
		return common.Address{}, fmt.Errorf("invalid signature v: %d", signature[64])
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover pubkey: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func parseAmount(raw, field string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %s", field, raw)
	}
	return n, nil
}

func decodeHexField(raw string) ([]byte, error) {
	if raw == "" || raw == "0x" {
		return []byte{}, nil
	}
	return hexutil.Decode(raw)
}
