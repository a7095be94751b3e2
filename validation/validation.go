// Package validation gates every user-facing call before it reaches the
// chain, the subgraphs, or the bus.
package validation

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"transferkit/types"
)

// Slippage tolerance is a percent with two fractional digits.
const (
	MinSlippageTolerance     = "0.01"
	MaxSlippageTolerance     = "15.00"
	DefaultSlippageTolerance = "0.10"
)

// Expiry bounds relative to quote time. The minimum leaves the router a full
// day of headroom beyond the 2-day receiver window.
const (
	MinExpiryBuffer     = 49 * time.Hour
	MaxExpiryBuffer     = 96 * time.Hour
	DefaultExpiryBuffer = 72 * time.Hour
)

// ValidateQuoteParams checks a quote request. isConfigured reports whether a
// chain id is part of the SDK's configuration.
func ValidateQuoteParams(p types.QuoteParams, isConfigured func(uint64) bool) error {
	if p.SendingChainId == 0 {
		return types.ParamError("sendingChainId", "must be a positive chain id")
	}
	if p.ReceivingChainId == 0 {
		return types.ParamError("receivingChainId", "must be a positive chain id")
	}
	if p.SendingChainId == p.ReceivingChainId {
		return types.ParamError("receivingChainId", "sending and receiving chain must differ")
	}
	if !isConfigured(p.SendingChainId) {
		return types.NewError(types.KindChainNotConfigured, "chain %d is not configured", p.SendingChainId)
	}
	if !isConfigured(p.ReceivingChainId) {
		return types.NewError(types.KindChainNotConfigured, "chain %d is not configured", p.ReceivingChainId)
	}
	if _, err := ParsePositiveAmount(p.Amount); err != nil {
		return types.ParamError("amount", "%v", err)
	}
	if p.ReceivingAddress == (common.Address{}) {
		return types.ParamError("receivingAddress", "is required")
	}
	if p.User == (common.Address{}) {
		return types.ParamError("user", "is required")
	}
	if err := validateSlippage(p.SlippageTolerance); err != nil {
		return err
	}
	if p.Expiry != 0 {
		if err := ValidateExpiry(p.Expiry, time.Now()); err != nil {
			return err
		}
	}
	if err := validateHexData(p.CallData); err != nil {
		return types.ParamError("callData", "%v", err)
	}
	return nil
}

// ValidateExpiry bounds a transfer expiry relative to now.
func ValidateExpiry(expiry uint64, now time.Time) error {
	min := now.Add(MinExpiryBuffer).Unix()
	max := now.Add(MaxExpiryBuffer).Unix()
	if expiry < uint64(min) {
		return types.NewError(types.KindInvalidExpiry, "expiry %d below minimum %d", expiry, min)
	}
	if expiry > uint64(max) {
		return types.NewError(types.KindInvalidExpiry, "expiry %d above maximum %d", expiry, max)
	}
	return nil
}

// ValidateAuctionBid checks the structure and numeric ranges of a bid.
func ValidateAuctionBid(bid types.AuctionBid, now time.Time) error {
	if bid.Router == (common.Address{}) {
		return types.ParamError("bid.router", "is required")
	}
	if bid.User == (common.Address{}) {
		return types.ParamError("bid.user", "is required")
	}
	if bid.TransactionId == (common.Hash{}) {
		return types.ParamError("bid.transactionId", "is required")
	}
	if bid.SendingChainId == 0 || bid.ReceivingChainId == 0 {
		return types.ParamError("bid", "chain ids must be positive")
	}
	if bid.SendingChainId == bid.ReceivingChainId {
		return types.ParamError("bid", "sending and receiving chain must differ")
	}
	if _, err := ParsePositiveAmount(bid.Amount); err != nil {
		return types.ParamError("bid.amount", "%v", err)
	}
	if _, err := ParsePositiveAmount(bid.AmountReceived); err != nil {
		return types.ParamError("bid.amountReceived", "%v", err)
	}
	if bid.BidExpiry <= uint64(now.Unix()) {
		return types.ParamError("bid.bidExpiry", "bid expired at %d", bid.BidExpiry)
	}
	return nil
}

// ValidatePrepareEvent checks a receiver-side prepared event before it is
// used to build a fulfill.
func ValidatePrepareEvent(e types.TransactionPreparedEvent) error {
	if e.TxData.TransactionId == (common.Hash{}) {
		return types.ParamError("txData.transactionId", "is required")
	}
	if e.TxData.Router == (common.Address{}) {
		return types.ParamError("txData.router", "is required")
	}
	if _, err := ParsePositiveAmount(e.TxData.Amount); err != nil {
		return types.ParamError("txData.amount", "%v", err)
	}
	if e.TxData.Expiry == 0 {
		return types.ParamError("txData.expiry", "is required")
	}
	return nil
}

// ValidateCancel checks cancel parameters.
func ValidateCancel(c types.CancelParams) error {
	if c.TxData.TransactionId == (common.Hash{}) {
		return types.ParamError("txData.transactionId", "is required")
	}
	if _, err := ParsePositiveAmount(c.TxData.Amount); err != nil {
		return types.ParamError("txData.amount", "%v", err)
	}
	if len(c.Signature) != 0 && len(c.Signature) != 65 {
		return types.ParamError("signature", "must be 65 bytes, got %d", len(c.Signature))
	}
	return nil
}

// ParsePositiveAmount parses a decimal-string amount and requires it to be a
// non-negative integer greater than zero.
func ParsePositiveAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsInteger() {
		return decimal.Decimal{}, errFractional
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, errNotPositive
	}
	return d, nil
}

// ParseSlippage parses a slippage tolerance percent and bounds it to the
// supported range.
func ParseSlippage(raw string) (decimal.Decimal, error) {
	if raw == "" {
		raw = DefaultSlippageTolerance
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, types.WrapError(types.KindInvalidSlippage, err, "slippageTolerance %q", raw)
	}
	min, _ := decimal.NewFromString(MinSlippageTolerance)
	max, _ := decimal.NewFromString(MaxSlippageTolerance)
	if d.LessThan(min) || d.GreaterThan(max) {
		return decimal.Decimal{}, types.NewError(types.KindInvalidSlippage,
			"slippageTolerance %s outside [%s, %s]", raw, MinSlippageTolerance, MaxSlippageTolerance)
	}
	return d, nil
}

// CanonicalAddress normalizes a hex address string to checksum form.
func CanonicalAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, types.ParamError("address", "%q is not a hex address", raw)
	}
	return common.HexToAddress(raw), nil
}

func validateSlippage(raw string) error {
	_, err := ParseSlippage(raw)
	return err
}

func validateHexData(raw string) error {
	if raw == "" || raw == "0x" {
		return nil
	}
	_, err := hexutil.Decode(raw)
	return err
}

var (
	errFractional  = decimalError("amount must be an integer")
	errNotPositive = decimalError("amount must be greater than zero")
)

type decimalError string

func (e decimalError) Error() string { return string(e) }
