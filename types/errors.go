package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies SDK failures so callers can branch without string
// matching.
type ErrorKind string

const (
	KindInvalidParamStructure ErrorKind = "InvalidParamStructure"
	KindChainNotConfigured    ErrorKind = "ChainNotConfigured"
	KindInvalidSlippage       ErrorKind = "InvalidSlippage"
	KindInvalidExpiry         ErrorKind = "InvalidExpiry"
	KindInvalidCallTo         ErrorKind = "InvalidCallTo"
	KindEncryptionError       ErrorKind = "EncryptionError"
	KindSubgraphsNotSynced    ErrorKind = "SubgraphsNotSynced"
	KindNoTransactionManager  ErrorKind = "NoTransactionManager"
	KindNoSubgraph            ErrorKind = "NoSubgraph"
	KindNoPriceOracle         ErrorKind = "NoPriceOracle"
	KindNoBids                ErrorKind = "NoBids"
	KindNoValidBids           ErrorKind = "NoValidBids"
	KindUnknownAuctionError   ErrorKind = "UnknownAuctionError"
	KindInvalidBidSignature   ErrorKind = "InvalidBidSignature"
	KindMetaTxTimeout         ErrorKind = "MetaTxTimeout"
	KindRpcError              ErrorKind = "RpcError"
)

// Error is the SDK's error type. Path points at the offending parameter for
// validation failures; Reasons carries per-bid rejection reasons for
// NoValidBids.
type Error struct {
	Kind    ErrorKind
	Msg     string
	Path    string
	Reasons []string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an error of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a new error of the given kind.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// ParamError builds an InvalidParamStructure error pointing at path.
func ParamError(path, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidParamStructure, Path: path, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, unwrapping as needed. Returns the empty
// kind for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
