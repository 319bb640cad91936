package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type callHandler func(msg ethereum.CallMsg, args []interface{}) ([]interface{}, error)

type fakeBackend struct {
	mu       sync.Mutex
	handlers map[common.Address]map[string]callHandler
	abis     map[common.Address]abi.ABI
	receipts map[common.Hash]*types.Receipt
	polls    int
	calls    []ethereum.CallMsg
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		handlers: make(map[common.Address]map[string]callHandler),
		abis:     make(map[common.Address]abi.ABI),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeBackend) handle(addr common.Address, parsed abi.ABI, method string, h callHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[addr] == nil {
		f.handlers[addr] = make(map[string]callHandler)
	}
	f.abis[addr] = parsed
	f.handlers[addr][method] = h
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	parsed, ok := f.abis[*msg.To]
	handlers := f.handlers[*msg.To]
	f.mu.Unlock()
	if !ok || len(msg.Data) < 4 {
		return nil, nil
	}

	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, nil
	}
	h, ok := handlers[method.Name]
	if !ok {
		return nil, nil
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := h(msg, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

type fakeSender struct {
	addr common.Address
	sent []TxRequest
	err  error
}

func (s *fakeSender) Address() common.Address { return s.addr }

func (s *fakeSender) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if s.err != nil {
		return common.Hash{}, s.err
	}
	s.sent = append(s.sent, req)
	return common.BigToHash(big.NewInt(int64(len(s.sent)))), nil
}

// rpcError mimics the error ethclient surfaces for JSON-RPC failures
type rpcError struct {
	code int
	msg  string
	data interface{}
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorCode() int         { return e.code }
func (e *rpcError) ErrorData() interface{} { return e.data }

var stringArgs = func() abi.Arguments {
	typ, _ := abi.NewType("string", "", nil)
	return abi.Arguments{{Type: typ}}
}()

// marketplaceTuple converts an unpacked tuple into its order struct
func marketplaceTuple[T any](v interface{}) *T {
	return abi.ConvertType(v, new(T)).(*T)
}
