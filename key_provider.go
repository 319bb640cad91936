package netpute

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/netpute/netpute-sdk-go/chain"
)

// ErrInvalidPrivateKey is returned for keys that are not 32 hex-encoded bytes
var ErrInvalidPrivateKey = errors.New("invalid private key format")

// KeyBackend is the node surface a KeyProvider signs against.
// *ethclient.Client satisfies it.
type KeyBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeyDialer opens a KeyBackend for an RPC URL
type KeyDialer func(ctx context.Context, rawurl string) (KeyBackend, error)

func dialKeyBackend(ctx context.Context, rawurl string) (KeyBackend, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// KeyProvider is a Provider backed by a local private key. It signs
// transactions and typed data itself and broadcasts through a node per chain.
type KeyProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	dial    KeyDialer
	log     log.Logger

	mu       sync.RWMutex
	chainID  uint64
	backends map[uint64]KeyBackend

	feed event.Feed
}

// KeyProviderOption configures a KeyProvider
type KeyProviderOption func(*KeyProvider)

// WithKeyDialer replaces the dialer used by wallet_addEthereumChain
func WithKeyDialer(dial KeyDialer) KeyProviderOption {
	return func(p *KeyProvider) {
		if dial != nil {
			p.dial = dial
		}
	}
}

// WithKeyProviderLogger sets the logger
func WithKeyProviderLogger(l log.Logger) KeyProviderOption {
	return func(p *KeyProvider) {
		if l != nil {
			p.log = l
		}
	}
}

// NewKeyProvider creates a KeyProvider for hexKey, active on chainID through backend.
// The key may carry a 0x prefix.
func NewKeyProvider(hexKey string, chainID uint64, backend KeyBackend, opts ...KeyProviderOption) (*KeyProvider, error) {
	key, err := parsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}

	p := &KeyProvider{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		dial:     dialKeyBackend,
		log:      log.New("module", "netpute", "component", "key-provider"),
		chainID:  chainID,
		backends: map[uint64]KeyBackend{chainID: backend},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// DialKeyProvider connects to rpcURL and creates a KeyProvider on its chain
func DialKeyProvider(ctx context.Context, hexKey, rpcURL string, opts ...KeyProviderOption) (*KeyProvider, error) {
	backend, err := dialKeyBackend(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		closeBackend(backend)
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	p, err := NewKeyProvider(hexKey, chainID.Uint64(), backend, opts...)
	if err != nil {
		closeBackend(backend)
		return nil, err
	}
	return p, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	cleanKey := strings.TrimPrefix(hexKey, "0x")
	cleanKey = strings.TrimPrefix(cleanKey, "0X")

	if len(cleanKey) != 64 {
		return nil, ErrInvalidPrivateKey
	}

	key, err := crypto.HexToECDSA(cleanKey)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}

// Address returns the account the key controls
func (p *KeyProvider) Address() common.Address {
	return p.address
}

// AddBackend registers a node for chainID so the wallet can switch to it
func (p *KeyProvider) AddBackend(chainID uint64, backend KeyBackend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backends[chainID] = backend
}

// Subscribe delivers chainChanged events on ch
func (p *KeyProvider) Subscribe(ch chan<- ProviderEvent) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Close closes every node connection
func (p *KeyProvider) Close() {
	p.mu.Lock()
	backends := p.backends
	p.backends = make(map[uint64]KeyBackend)
	p.mu.Unlock()

	for _, backend := range backends {
		closeBackend(backend)
	}
}

func closeBackend(backend KeyBackend) {
	if c, ok := backend.(interface{ Close() }); ok {
		c.Close()
	}
}

func (p *KeyProvider) current() (uint64, KeyBackend) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chainID, p.backends[p.chainID]
}

func (p *KeyProvider) backend() (uint64, KeyBackend, error) {
	chainID, backend := p.current()
	if backend == nil {
		return 0, nil, &ProviderError{Code: CodeDisconnected, Message: fmt.Sprintf("no node for chain %d", chainID)}
	}
	return chainID, backend, nil
}

// Request handles the wallet JSON-RPC methods the SDK issues
func (p *KeyProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	p.log.Debug("Provider request", "method", method)

	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return decodeInto(result, []common.Address{p.address})

	case "eth_chainId":
		chainID, _ := p.current()
		return decodeInto(result, hexutil.Uint64(chainID))

	case "eth_getBalance":
		var account common.Address
		if err := decodeParam(params, 0, &account); err != nil {
			return err
		}
		_, backend, err := p.backend()
		if err != nil {
			return err
		}
		balance, err := backend.BalanceAt(ctx, account, nil)
		if err != nil {
			return err
		}
		return decodeInto(result, (*hexutil.Big)(balance))

	case "eth_sendTransaction":
		var args TransactionArgs
		if err := decodeParam(params, 0, &args); err != nil {
			return err
		}
		hash, err := p.sendTransaction(ctx, args)
		if err != nil {
			return err
		}
		return decodeInto(result, hash)

	case "eth_signTypedData_v4":
		sig, err := p.signTypedData(params)
		if err != nil {
			return err
		}
		return decodeInto(result, hexutil.Bytes(sig))

	case "wallet_switchEthereumChain":
		var req switchChainParams
		if err := decodeParam(params, 0, &req); err != nil {
			return err
		}
		return p.switchChain(req.ChainID)

	case "wallet_addEthereumChain":
		var cfg ChainConfig
		if err := decodeParam(params, 0, &cfg); err != nil {
			return err
		}
		return p.addChain(ctx, cfg)

	default:
		return &ProviderError{Code: CodeUnsupportedMethod, Message: "unsupported method " + method}
	}
}

func (p *KeyProvider) sendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if args.From != p.address {
		return common.Hash{}, &ProviderError{Code: CodeUnauthorized, Message: "unknown account " + args.From.Hex()}
	}

	chainID, backend, err := p.backend()
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}

	var gas uint64
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		gas, err = backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  p.address,
			To:    args.To,
			Value: value,
			Data:  args.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       args.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     args.Data,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(new(big.Int).SetUint64(chainID)), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	p.log.Info("Transaction sent", "hash", signedTx.Hash(), "to", args.To, "nonce", nonce)
	return signedTx.Hash(), nil
}

func (p *KeyProvider) signTypedData(params []interface{}) ([]byte, error) {
	var account common.Address
	if err := decodeParam(params, 0, &account); err != nil {
		return nil, err
	}
	if account != p.address {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "unknown account " + account.Hex()}
	}

	var raw string
	if err := decodeParam(params, 1, &raw); err != nil {
		return nil, err
	}
	var td apitypes.TypedData
	if err := json.Unmarshal([]byte(raw), &td); err != nil {
		return nil, &ProviderError{Code: CodeInvalidParams, Message: "invalid typed data: " + err.Error()}
	}

	sig, err := chain.SignTypedData(td, p.key)
	if err != nil {
		return nil, &ProviderError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return sig, nil
}

func (p *KeyProvider) switchChain(hexID string) error {
	id, err := hexutil.DecodeUint64(hexID)
	if err != nil {
		return &ProviderError{Code: CodeInvalidParams, Message: "invalid chain id " + hexID}
	}

	p.mu.Lock()
	if _, ok := p.backends[id]; !ok {
		p.mu.Unlock()
		return &ProviderError{Code: CodeUnrecognizedChain, Message: "unrecognized chain id " + hexID}
	}
	changed := p.chainID != id
	p.chainID = id
	p.mu.Unlock()

	if changed {
		p.log.Info("Switched chain", "chainId", id)
		p.feed.Send(ProviderEvent{Name: ProviderEventChainChanged, ChainID: hexutil.EncodeUint64(id)})
	}
	return nil
}

func (p *KeyProvider) addChain(ctx context.Context, cfg ChainConfig) error {
	id, err := hexutil.DecodeUint64(cfg.ChainID)
	if err != nil {
		return &ProviderError{Code: CodeInvalidParams, Message: "invalid chain id " + cfg.ChainID}
	}

	p.mu.RLock()
	_, known := p.backends[id]
	p.mu.RUnlock()
	if known {
		return nil
	}

	if len(cfg.RPCURLs) == 0 {
		return &ProviderError{Code: CodeInvalidParams, Message: "rpcUrls required"}
	}

	backend, err := p.dial(ctx, cfg.RPCURLs[0])
	if err != nil {
		return &ProviderError{Code: CodeInvalidParams, Message: "failed to connect to " + cfg.RPCURLs[0] + ": " + err.Error()}
	}

	remote, err := backend.ChainID(ctx)
	if err != nil || remote.Uint64() != id {
		closeBackend(backend)
		return &ProviderError{Code: CodeInvalidParams, Message: fmt.Sprintf("rpc %s does not serve chain %d", cfg.RPCURLs[0], id)}
	}

	p.AddBackend(id, backend)
	p.log.Info("Added chain", "chainId", id, "name", cfg.ChainName)
	return nil
}
