package netpute

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/netpute/netpute-sdk-go/chain"
)

// DefaultSkipChecksum is the checksum policy callers usually want for BalanceOf
const DefaultSkipChecksum = true

var chainIDPattern = regexp.MustCompile(`^0x[1-9a-fA-F][0-9a-fA-F]*$`)

// EventKind names a wallet change
type EventKind int

const (
	EventDisconnected EventKind = iota
	EventWalletChanged
	EventNetworkChanged
	numEventKinds
)

func (k EventKind) String() string {
	switch k {
	case EventDisconnected:
		return "disconnected"
	case EventWalletChanged:
		return "walletchanged"
	case EventNetworkChanged:
		return "networkchanged"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to wallet subscribers
type Event struct {
	Kind    EventKind
	Address common.Address
	ChainID uint64
}

// Wallet adapts a Provider into an account session. It is the transaction
// sender and typed-data signer for the facades.
type Wallet struct {
	provider Provider
	log      log.Logger

	mu        sync.RWMutex
	connected bool
	address   common.Address
	chainID   uint64
	sub       event.Subscription
	scope     *event.SubscriptionScope

	feeds [numEventKinds]event.Feed
}

// WalletOption configures a Wallet
type WalletOption func(*Wallet)

// WithWalletLogger sets the logger
func WithWalletLogger(l log.Logger) WalletOption {
	return func(w *Wallet) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWallet creates a disconnected Wallet over provider. A nil provider is
// accepted; Connect then fails with ErrNotDetected.
func NewWallet(provider Provider, opts ...WalletOption) *Wallet {
	w := &Wallet{
		provider: provider,
		log:      log.New("module", "netpute", "component", "wallet"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if provider == nil {
		w.log.Warn("No wallet provider detected")
	}
	return w
}

// Provider returns the underlying provider
func (w *Wallet) Provider() Provider {
	return w.provider
}

// Connect requests account access, records the account and network, and
// starts relaying provider events.
func (w *Wallet) Connect(ctx context.Context) (common.Address, error) {
	if w.provider == nil {
		return common.Address{}, walletErr(404, ErrNotDetected, "", nil)
	}

	var accounts []common.Address
	if err := w.provider.Request(ctx, &accounts, "eth_requestAccounts"); err != nil {
		if providerCode(err) == CodeUserRejected {
			return common.Address{}, walletErr(401, ErrUserDenied, "", err)
		}
		return common.Address{}, walletErr(400, ErrWalletUnknown, "", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, walletErr(400, ErrWalletUnknown, "wallet returned no accounts", nil)
	}

	var chainID hexutil.Uint64
	if err := w.provider.Request(ctx, &chainID, "eth_chainId"); err != nil {
		return common.Address{}, walletErr(400, ErrWalletUnknown, "failed to read chain id", err)
	}

	events := make(chan ProviderEvent, 16)

	sub := w.provider.Subscribe(events)

	w.mu.Lock()
	prev := w.sub
	if w.scope == nil {
		w.scope = new(event.SubscriptionScope)
	}
	w.connected = true
	w.address = accounts[0]
	w.chainID = uint64(chainID)
	w.sub = sub
	w.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
	go w.relay(events, sub)

	w.log.Info("Wallet connected", "address", accounts[0], "chainId", uint64(chainID))
	return accounts[0], nil
}

// Disconnect forgets the session and closes every subscription. Wallet
// access granted by the provider is not revoked.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	sub, scope := w.sub, w.scope
	w.connected = false
	w.address = common.Address{}
	w.chainID = 0
	w.sub = nil
	w.scope = nil
	w.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if scope != nil {
		scope.Close()
	}
}

func (w *Wallet) relay(events <-chan ProviderEvent, sub event.Subscription) {
	for {
		select {
		case ev := <-events:
			w.handle(ev)
		case <-sub.Err():
			return
		}
	}
}

func (w *Wallet) handle(ev ProviderEvent) {
	switch ev.Name {
	case ProviderEventChainChanged:
		id, err := hexutil.DecodeUint64(ev.ChainID)
		if err != nil {
			w.log.Warn("Ignoring malformed chain id", "chainId", ev.ChainID, "err", err)
			return
		}
		w.mu.Lock()
		if !w.connected || w.chainID == id {
			w.mu.Unlock()
			return
		}
		w.chainID = id
		addr := w.address
		w.mu.Unlock()
		w.emit(Event{Kind: EventNetworkChanged, Address: addr, ChainID: id})

	case ProviderEventAccountsChanged:
		if len(ev.Accounts) == 0 {
			w.mu.RLock()
			id := w.chainID
			w.mu.RUnlock()
			w.emit(Event{Kind: EventDisconnected, ChainID: id})
			return
		}
		w.mu.Lock()
		if !w.connected {
			w.mu.Unlock()
			return
		}
		w.address = ev.Accounts[0]
		id := w.chainID
		w.mu.Unlock()
		w.emit(Event{Kind: EventWalletChanged, Address: ev.Accounts[0], ChainID: id})
	}
}

func (w *Wallet) emit(ev Event) {
	w.log.Debug("Wallet event", "kind", ev.Kind, "address", ev.Address, "chainId", ev.ChainID)
	w.feeds[ev.Kind].Send(ev)
}

// Subscribe delivers events of kind on ch until the returned subscription
// is unsubscribed or the wallet disconnects. ch must be drained.
func (w *Wallet) Subscribe(kind EventKind, ch chan<- Event) (event.Subscription, error) {
	w.mu.RLock()
	connected, scope := w.connected, w.scope
	w.mu.RUnlock()

	if !connected || scope == nil {
		return nil, walletErr(400, ErrNotInited, "", nil)
	}
	if kind < 0 || kind >= numEventKinds {
		return nil, walletErr(400, ErrNoSuchEvent, kind.String(), nil)
	}
	return scope.Track(w.feeds[kind].Subscribe(ch)), nil
}

// Connected reports whether a session is active
func (w *Wallet) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Address returns the session account, or the zero address when disconnected
func (w *Wallet) Address() common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.address
}

// Network returns the session chain id, or 0 when disconnected
func (w *Wallet) Network() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID
}

func (w *Wallet) session() (common.Address, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.address, w.connected
}

// BalanceOf returns the native balance of address. With skipChecksum the
// address is lowercased first; otherwise mixed-case input must carry a
// valid EIP-55 checksum.
func (w *Wallet) BalanceOf(ctx context.Context, address string, skipChecksum bool) (*big.Int, error) {
	if !w.Connected() {
		return nil, walletErr(404, ErrNotConnected, "", nil)
	}
	if skipChecksum {
		address = strings.ToLower(address)
	}
	if !validAddress(address) {
		return nil, walletErr(401, ErrInvalidAddress, fmt.Sprintf("invalid address %q", address), nil)
	}

	var balance hexutil.Big
	if err := w.provider.Request(ctx, &balance, "eth_getBalance", address, "latest"); err != nil {
		if providerCode(err) == CodeInvalidParams {
			return nil, walletErr(401, ErrInvalidAddress, "", err)
		}
		return nil, walletErr(500, ErrWalletUnknown, "", err)
	}
	return balance.ToInt(), nil
}

// NormalizeChainID turns a positive integer or a 0x-prefixed hex string
// into the hex form wallets expect.
func NormalizeChainID(id interface{}) (string, error) {
	bad := walletErr(400, ErrBadChainID, fmt.Sprintf("bad chain id %v", id), nil)

	switch v := id.(type) {
	case int:
		if v > 0 {
			return hexutil.EncodeUint64(uint64(v)), nil
		}
	case int64:
		if v > 0 {
			return hexutil.EncodeUint64(uint64(v)), nil
		}
	case uint64:
		if v > 0 {
			return hexutil.EncodeUint64(v), nil
		}
	case uint:
		if v > 0 {
			return hexutil.EncodeUint64(uint64(v)), nil
		}
	case *big.Int:
		if v != nil && v.Sign() > 0 {
			return hexutil.EncodeBig(v), nil
		}
	case string:
		if chainIDPattern.MatchString(v) {
			return v, nil
		}
	}
	return "", bad
}

// SwitchNetwork asks the wallet to change network. When the wallet does not
// know the chain and chainConfig is given, the chain is added and the switch
// retried.
func (w *Wallet) SwitchNetwork(ctx context.Context, chainID interface{}, chainConfig *ChainConfig) error {
	if !w.Connected() {
		return walletErr(404, ErrNotConnected, "", nil)
	}

	hexID, err := NormalizeChainID(chainID)
	if err != nil {
		return err
	}

	err = w.provider.Request(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: hexID})
	if err == nil {
		return nil
	}

	switch providerCode(err) {
	case CodeUnrecognizedChain:
		if chainConfig == nil {
			return walletErr(404, ErrNetworkNotAdded, "", err)
		}
		cfg := *chainConfig
		if cfg.ChainID == "" {
			cfg.ChainID = hexID
		}
		if err := w.provider.Request(ctx, nil, "wallet_addEthereumChain", cfg); err != nil {
			return walletErr(401, ErrUserRefused, "", err)
		}
		if err := w.provider.Request(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: hexID}); err != nil {
			return walletErr(401, ErrUserRefused, "", err)
		}
		return nil
	case CodeUserRejected:
		return walletErr(401, ErrUserRefused, "", err)
	default:
		return walletErr(500, ErrWalletUnknown, "", err)
	}
}

// SendTransaction submits req from the session account through the provider
func (w *Wallet) SendTransaction(ctx context.Context, req chain.TxRequest) (common.Hash, error) {
	from, ok := w.session()
	if !ok {
		return common.Hash{}, walletErr(404, ErrNotConnected, "", nil)
	}

	to := req.To
	args := TransactionArgs{From: from, To: &to, Data: req.Data}
	if req.Value != nil && req.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(req.Value)
	}

	var hash common.Hash
	if err := w.provider.Request(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	w.log.Debug("Transaction submitted", "hash", hash, "to", to)
	return hash, nil
}

// SignTypedData asks the wallet for an eth_signTypedData_v4 signature
func (w *Wallet) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	from, ok := w.session()
	if !ok {
		return nil, walletErr(404, ErrNotConnected, "", nil)
	}

	raw, err := json.Marshal(td)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode typed data: %v", chain.ErrInvalidArgument, err)
	}

	var sig hexutil.Bytes
	if err := w.provider.Request(ctx, &sig, "eth_signTypedData_v4", from.Hex(), string(raw)); err != nil {
		return nil, err
	}
	return sig, nil
}
