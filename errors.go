package netpute

import (
	"errors"
	"fmt"

	"github.com/netpute/netpute-sdk-go/chain"
)

// Config errors
var (
	// ErrUnsupportedScheme is returned for RPC URLs that are neither wss:// nor https://
	ErrUnsupportedScheme = errors.New("unsupported rpc scheme, use wss:// or https://")

	// ErrDialFailed is returned when the RPC endpoint cannot be reached
	ErrDialFailed = errors.New("failed to connect to rpc")
)

// Wallet errors
var (
	ErrNotDetected     = errors.New("no wallet detected")
	ErrUserDenied      = errors.New("user denied to enable wallet")
	ErrWalletUnknown   = errors.New("unknown wallet error")
	ErrNotConnected    = errors.New("wallet not connected")
	ErrInvalidAddress  = errors.New("address invalid")
	ErrBadChainID      = errors.New("bad chain id")
	ErrNetworkNotAdded = errors.New("network not added to wallet")
	ErrUserRefused     = errors.New("user refused the network request")
	ErrNotInited       = errors.New("wallet events not initialized")
	ErrNoSuchEvent     = errors.New("no such event")
)

// Collection errors
var (
	ErrNoProvider         = errors.New("no provider initialized")
	ErrNoDeployer         = errors.New("deployer address not set")
	ErrNoWallet           = errors.New("wallet not connected")
	ErrNotANFT            = errors.New("address is not an NFT collection")
	ErrInvalidType        = errors.New("invalid collection type")
	ErrAddressMismatch    = errors.New("deployment address mismatch")
	ErrAmbiguousMintShape = errors.New("give either id and amount or ids and amounts")
)

// Marketplace errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrAddressNotSet       = errors.New("marketplace address not set")
	ErrSignerNotFound      = errors.New("signer not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOwner            = errors.New("caller does not own the token")
	ErrExactlyOneOrder     = errors.New("give exactly one of buy order or sell order")
	ErrMissingOrder        = errors.New("give at least one of buy order or sell order")
)

// Chain failure reasons produced by translation
var (
	ErrInvalidArgument   = errors.New("input invalid")
	ErrExecutionReverted = errors.New("execution reverted")
	ErrUserRejected      = errors.New("user rejected")
	ErrUpstream          = errors.New("upstream error")
)

// sdkError carries the fields shared by every error family
type sdkError struct {
	// Code is an HTTP-like status: 400 bad input, 401 denied, 402 payment,
	// 403 forbidden, 404 missing, 500 failure, 501 upstream.
	Code int
	// Reason is the sentinel this error matches under errors.Is
	Reason error
	// Message overrides Reason's text when set
	Message string
	// Err is the underlying cause, if any
	Err error
}

func (e *sdkError) format(family string) string {
	msg := e.Message
	if msg == "" && e.Reason != nil {
		msg = e.Reason.Error()
	}
	s := fmt.Sprintf("%s error %d: %s", family, e.Code, msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *sdkError) Unwrap() []error {
	var errs []error
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *sdkError) isSDKError() {}

// ConfigError is returned by Config
type ConfigError struct{ sdkError }

func (e *ConfigError) Error() string { return e.format("config") }

// WalletError is returned by Wallet
type WalletError struct{ sdkError }

func (e *WalletError) Error() string { return e.format("wallet") }

// CollectionError is returned by Collection
type CollectionError struct{ sdkError }

func (e *CollectionError) Error() string { return e.format("collection") }

// MarketplaceError is returned by Marketplace
type MarketplaceError struct{ sdkError }

func (e *MarketplaceError) Error() string { return e.format("marketplace") }

func configErr(code int, reason error, msg string, cause error) *ConfigError {
	return &ConfigError{sdkError{Code: code, Reason: reason, Message: msg, Err: cause}}
}

func walletErr(code int, reason error, msg string, cause error) *WalletError {
	return &WalletError{sdkError{Code: code, Reason: reason, Message: msg, Err: cause}}
}

func collectionErr(code int, reason error, msg string, cause error) *CollectionError {
	return &CollectionError{sdkError{Code: code, Reason: reason, Message: msg, Err: cause}}
}

func marketplaceErr(code int, reason error, msg string, cause error) *MarketplaceError {
	return &MarketplaceError{sdkError{Code: code, Reason: reason, Message: msg, Err: cause}}
}

// ErrorCode returns the status code of an SDK error, or 0 if err is not one
func ErrorCode(err error) int {
	var e interface{ code() int }
	if errors.As(err, &e) {
		return e.code()
	}
	return 0
}

func (e *sdkError) code() int { return e.Code }

// isSDK reports whether err already belongs to one of the error families
func isSDK(err error) bool {
	var e interface{ isSDKError() }
	return errors.As(err, &e)
}

// translate maps a raw chain or provider failure onto a status code and reason
func translate(err error) sdkError {
	f := chain.Classify(err)
	switch f.Kind {
	case chain.FailureInvalidArgument:
		return sdkError{Code: 400, Reason: ErrInvalidArgument, Err: err}
	case chain.FailureReverted:
		if f.Reason != "" {
			return sdkError{Code: 400, Reason: ErrExecutionReverted, Message: f.Reason, Err: err}
		}
		return sdkError{Code: 500, Reason: ErrExecutionReverted, Err: err}
	case chain.FailureUserRejected:
		return sdkError{Code: 400, Reason: ErrUserRejected, Err: err}
	default:
		return sdkError{Code: 501, Reason: ErrUpstream, Err: err}
	}
}

func translateCollection(err error) error {
	if err == nil || isSDK(err) {
		return err
	}
	return &CollectionError{translate(err)}
}

// translateMarketplace also moves wallet failures into the marketplace
// family, keeping their code and reason.
func translateMarketplace(err error) error {
	var werr *WalletError
	if errors.As(err, &werr) {
		return &MarketplaceError{sdkError{Code: werr.Code, Reason: werr.Reason, Err: err}}
	}
	if err == nil || isSDK(err) {
		return err
	}
	return &MarketplaceError{translate(err)}
}
