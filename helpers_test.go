package netpute

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"
)

const (
	testKey     = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	testChainID = uint64(1337)
	testRPC     = "https://rpc.netpute.test"
)

var (
	deployerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	marketplaceAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	wethAddr        = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	collectionAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type callHandler func(msg ethereum.CallMsg, args []interface{}) ([]interface{}, error)

// fakeChain answers eth_call per contract and method and reports every
// transaction as mined unless it is marked failed.
type fakeChain struct {
	mu       sync.Mutex
	handlers map[common.Address]map[string]callHandler
	abis     map[common.Address]abi.ABI
	failed   map[common.Hash]bool
	holding  bool
	calls    []ethereum.CallMsg
	closed   bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		handlers: make(map[common.Address]map[string]callHandler),
		abis:     make(map[common.Address]abi.ABI),
		failed:   make(map[common.Hash]bool),
	}
}

func (f *fakeChain) handle(addr common.Address, parsed abi.ABI, method string, h callHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[addr] == nil {
		f.handlers[addr] = make(map[string]callHandler)
	}
	f.abis[addr] = parsed
	f.handlers[addr][method] = h
}

// returns registers a handler with fixed outputs
func (f *fakeChain) returns(addr common.Address, parsed abi.ABI, method string, out ...interface{}) {
	f.handle(addr, parsed, method, func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
		return out, nil
	})
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	parsed, ok := f.abis[*msg.To]
	handlers := f.handlers[*msg.To]
	f.mu.Unlock()
	if !ok || len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}

	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, errors.New("execution reverted")
	}
	h, ok := handlers[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
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

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holding {
		return nil, ethereum.NotFound
	}
	status := types.ReceiptStatusSuccessful
	if f.failed[hash] {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{TxHash: hash, Status: status}, nil
}

// hold keeps every transaction pending until released
func (f *fakeChain) hold(pending bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holding = pending
}

func (f *fakeChain) fail(hash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[hash] = true
}

func (f *fakeChain) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChain) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChain) dialer() Dialer {
	return func(ctx context.Context, rawurl string) (Backend, error) {
		return f, nil
	}
}

// fakeKeyBackend is the node a KeyProvider broadcasts to
type fakeKeyBackend struct {
	mu      sync.Mutex
	chainID uint64
	balance *big.Int
	nonce   uint64
	sent    []*types.Transaction
	sendErr error
}

func newFakeKeyBackend(chainID uint64) *fakeKeyBackend {
	return &fakeKeyBackend{chainID: chainID, balance: new(big.Int)}
}

func (b *fakeKeyBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(b.chainID), nil
}

func (b *fakeKeyBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance), nil
}

func (b *fakeKeyBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *fakeKeyBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeKeyBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *fakeKeyBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}

func (b *fakeKeyBackend) transactions() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// decodeTx returns the method name and arguments of a contract call
func decodeTx(t *testing.T, parsed abi.ABI, tx *types.Transaction) (string, []interface{}) {
	t.Helper()
	require.GreaterOrEqual(t, len(tx.Data()), 4)
	method, err := parsed.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	return method.Name, args
}

// scriptedProvider answers wallet requests from a per-method table
type scriptedProvider struct {
	mu       sync.Mutex
	replies  map[string]func(params []interface{}) (interface{}, error)
	requests []string
	feed     event.Feed
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{replies: make(map[string]func([]interface{}) (interface{}, error))}
}

func (p *scriptedProvider) on(method string, reply func(params []interface{}) (interface{}, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[method] = reply
}

func (p *scriptedProvider) reply(method string, value interface{}, err error) {
	p.on(method, func([]interface{}) (interface{}, error) { return value, err })
}

func (p *scriptedProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	p.mu.Lock()
	p.requests = append(p.requests, method)
	reply, ok := p.replies[method]
	p.mu.Unlock()
	if !ok {
		return &ProviderError{Code: CodeUnsupportedMethod, Message: method}
	}
	value, err := reply(params)
	if err != nil {
		return err
	}
	return decodeInto(result, value)
}

func (p *scriptedProvider) Subscribe(ch chan<- ProviderEvent) event.Subscription {
	return p.feed.Subscribe(ch)
}

func (p *scriptedProvider) requested() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requests...)
}

// connectedScripted returns a wallet connected through a scripted provider
func connectedScripted(t *testing.T, account common.Address, chainID string) (*Wallet, *scriptedProvider) {
	t.Helper()
	p := newScriptedProvider()
	p.reply("eth_requestAccounts", []common.Address{account}, nil)
	p.reply("eth_chainId", chainID, nil)
	w := NewWallet(p)
	_, err := w.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(w.Disconnect)
	return w, p
}

type testEnv struct {
	chain   *fakeChain
	node    *fakeKeyBackend
	keys    *KeyProvider
	config  *Config
	wallet  *Wallet
	account common.Address
}

// newTestEnv wires a Config over a fakeChain and a Wallet connected through a
// KeyProvider whose node is a fakeKeyBackend
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	fc := newFakeChain()
	cfg := NewConfig(WithDialer(fc.dialer()))
	require.NoError(t, cfg.Init(ctx, InitOptions{
		RPC:                testRPC,
		DeployerAddress:    deployerAddr.Hex(),
		MarketplaceAddress: marketplaceAddr.Hex(),
	}))

	node := newFakeKeyBackend(testChainID)
	keys, err := NewKeyProvider(testKey, testChainID, node)
	require.NoError(t, err)

	wallet := NewWallet(keys)
	account, err := wallet.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(wallet.Disconnect)

	return &testEnv{chain: fc, node: node, keys: keys, config: cfg, wallet: wallet, account: account}
}
