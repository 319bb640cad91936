package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Chain interaction errors
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNoSender         = errors.New("no sender bound to contract")
	ErrTxFailed         = errors.New("transaction failed")
	ErrUnexpectedOutput = errors.New("unexpected contract output")
)

// JSON-RPC and EIP-1193 error codes the classifier understands
const (
	CodeExecutionReverted = 3
	CodeInvalidParams     = -32602
	CodeUserRejected      = 4001
)

// FailureKind groups chain failures by what the caller can do about them
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureInvalidArgument
	FailureReverted
	FailureUserRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureInvalidArgument:
		return "invalid argument"
	case FailureReverted:
		return "reverted"
	case FailureUserRejected:
		return "user rejected"
	default:
		return "unknown"
	}
}

// Failure is the classified form of a chain error
type Failure struct {
	Kind FailureKind
	// Reason is the revert reason or the upstream message. It may be empty.
	Reason string
}

// Classify maps err to a Failure. It never panics, whatever err is.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}
	msg := err.Error()

	if errors.Is(err, ErrInvalidArgument) {
		return Failure{Kind: FailureInvalidArgument, Reason: msg}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected:
			return Failure{Kind: FailureUserRejected, Reason: rpcErr.Error()}
		case CodeInvalidParams:
			return Failure{Kind: FailureInvalidArgument, Reason: rpcErr.Error()}
		case CodeExecutionReverted:
			return Failure{Kind: FailureReverted, Reason: RevertReason(err)}
		}
	}

	if isRevertMessage(msg) {
		return Failure{Kind: FailureReverted, Reason: RevertReason(err)}
	}
	return Failure{Kind: FailureUnknown, Reason: msg}
}

// IsRevert reports whether err is a contract revert
func IsRevert(err error) bool {
	return err != nil && Classify(err).Kind == FailureReverted
}

// RevertReason extracts the Error(string) reason carried by err, or "" if none
func RevertReason(err error) string {
	if err == nil {
		return ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(s); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}

	const marker = "execution reverted: "
	msg := err.Error()
	if i := strings.Index(msg, marker); i >= 0 {
		return strings.TrimSpace(msg[i+len(marker):])
	}
	return ""
}

func isRevertMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "execution reverted") ||
		strings.Contains(lower, "always failing transaction") ||
		strings.Contains(lower, "gas required exceeds")
}
