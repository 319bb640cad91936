package netpute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// Provider is an EIP-1193 style wallet: JSON-RPC requests plus change events.
// Request decodes the reply into result, which may be nil.
type Provider interface {
	Request(ctx context.Context, result interface{}, method string, params ...interface{}) error
	Subscribe(ch chan<- ProviderEvent) event.Subscription
}

// Provider event names
const (
	ProviderEventAccountsChanged = "accountsChanged"
	ProviderEventChainChanged    = "chainChanged"
)

// ProviderEvent is a change pushed by the wallet
type ProviderEvent struct {
	Name     string           `json:"event"`
	Accounts []common.Address `json:"accounts,omitempty"`
	ChainID  string           `json:"chainId,omitempty"`
}

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
	CodeInvalidParams     = -32602
)

// ProviderError is a coded wallet failure. It satisfies rpc.Error and
// rpc.DataError so the chain classifier can read it.
type ProviderError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the EIP-1193 or JSON-RPC code
func (e *ProviderError) ErrorCode() int { return e.Code }

// ErrorData returns the attached data, e.g. revert bytes
func (e *ProviderError) ErrorData() interface{} { return e.Data }

var (
	_ rpc.Error     = (*ProviderError)(nil)
	_ rpc.DataError = (*ProviderError)(nil)
)

// providerCode returns the code carried by err, or 0
func providerCode(err error) int {
	var coded rpc.Error
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return 0
}

// TransactionArgs is the eth_sendTransaction parameter object
type TransactionArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

// decodeInto copies value into result through its JSON form
func decodeInto(result interface{}, value interface{}) error {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

// decodeParam decodes params[i] into out
func decodeParam(params []interface{}, i int, out interface{}) error {
	if i >= len(params) {
		return &ProviderError{Code: CodeInvalidParams, Message: fmt.Sprintf("missing param %d", i)}
	}
	if err := decodeInto(out, params[i]); err != nil {
		return &ProviderError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid param %d: %v", i, err)}
	}
	return nil
}
