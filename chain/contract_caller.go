package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultReceiptPollInterval is how often PendingTx.Wait asks for a receipt
const DefaultReceiptPollInterval = 2 * time.Second

// Backend is the read side of a node connection. *ethclient.Client satisfies it.
type Backend interface {
	ethereum.ContractCaller
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxRequest is a state-changing call handed to a Sender
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Sender submits transactions on behalf of an account
type Sender interface {
	Address() common.Address
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
}

// Contract binds an ABI to a deployed address
type Contract struct {
	address common.Address
	abi     abi.ABI
	backend Backend
	sender  Sender
}

// NewContract creates a new Contract instance. sender may be nil for read-only use.
func NewContract(address common.Address, parsed abi.ABI, backend Backend, sender Sender) *Contract {
	return &Contract{
		address: address,
		abi:     parsed,
		backend: backend,
		sender:  sender,
	}
}

// Address returns the bound contract address
func (c *Contract) Address() common.Address {
	return c.address
}

// Call executes a read-only method and unpacks its single return value into out
func (c *Contract) Call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	return c.call(ctx, ethereum.CallMsg{}, out, method, args...)
}

// DryRun simulates a state-changing method from the sender with value attached
// and unpacks the value it would return.
func (c *Contract) DryRun(ctx context.Context, out interface{}, value *big.Int, method string, args ...interface{}) error {
	if c.sender == nil {
		return ErrNoSender
	}
	return c.call(ctx, ethereum.CallMsg{From: c.sender.Address(), Value: value}, out, method, args...)
}

func (c *Contract) call(ctx context.Context, msg ethereum.CallMsg, out interface{}, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to pack %s: %v", ErrInvalidArgument, method, err)
	}

	msg.To = &c.address
	msg.Data = data
	result, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}

	if out == nil {
		return nil
	}
	if err := c.abi.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnexpectedOutput, method, err)
	}
	return nil
}

// Transact packs method and submits it through the sender
func (c *Contract) Transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*PendingTx, error) {
	if c.sender == nil {
		return nil, ErrNoSender
	}

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack %s: %v", ErrInvalidArgument, method, err)
	}

	hash, err := c.sender.SendTransaction(ctx, TxRequest{
		From:  c.sender.Address(),
		To:    c.address,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}
	return NewPendingTx(hash, c.backend), nil
}

// PendingTx is a submitted transaction awaiting inclusion
type PendingTx struct {
	Hash common.Hash

	backend  Backend
	interval time.Duration
}

// NewPendingTx creates a new PendingTx instance
func NewPendingTx(hash common.Hash, backend Backend) *PendingTx {
	return &PendingTx{Hash: hash, backend: backend, interval: DefaultReceiptPollInterval}
}

// WithPollInterval overrides the receipt polling interval
func (p *PendingTx) WithPollInterval(d time.Duration) *PendingTx {
	if d > 0 {
		p.interval = d
	}
	return p
}

// Wait blocks until the transaction is mined or ctx is done. A mined transaction
// with a failed status returns ErrTxFailed along with its receipt.
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		receipt, err := p.backend.TransactionReceipt(ctx, p.Hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTxFailed, p.Hash.Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", p.Hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for transaction receipt %s: %w", p.Hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// SupportsInterface asks target whether it implements the ERC-165 interface id.
// A reverting call or a short return value counts as unsupported.
func SupportsInterface(ctx context.Context, backend Backend, target common.Address, id [4]byte) (bool, error) {
	data, err := erc165ABI.Pack("supportsInterface", id)
	if err != nil {
		return false, err
	}

	result, err := backend.CallContract(ctx, ethereum.CallMsg{
		To:   &target,
		Data: data,
	}, nil)
	if err != nil {
		if IsRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to call supportsInterface: %w", err)
	}

	return len(result) >= 32 && result[len(result)-1] == 1, nil
}
