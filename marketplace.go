package netpute

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/netpute/netpute-sdk-go/chain"
	"golang.org/x/sync/errgroup"
)

// Marketplace signs orders and settles matches on the Netpute marketplace
type Marketplace struct {
	cfg    *Config
	wallet *Wallet
	log    log.Logger

	mu      sync.Mutex
	bound   common.Address
	backend Backend
	market  *chain.MarketplaceContract
	weth    *chain.WETH
}

// MarketplaceOption configures a Marketplace
type MarketplaceOption func(*Marketplace)

// WithMarketplaceLogger sets the logger
func WithMarketplaceLogger(l log.Logger) MarketplaceOption {
	return func(m *Marketplace) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMarketplace creates a Marketplace. Contracts are bound on first use.
func NewMarketplace(cfg *Config, wallet *Wallet, opts ...MarketplaceOption) *Marketplace {
	m := &Marketplace{
		cfg:    cfg,
		wallet: wallet,
		log:    log.New("module", "netpute", "component", "marketplace"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// contracts returns the marketplace and WETH bindings, binding them again
// when the configured address or connection has changed.
func (m *Marketplace) contracts(ctx context.Context) (*chain.MarketplaceContract, *chain.WETH, error) {
	if m.cfg == nil {
		return nil, nil, marketplaceErr(400, ErrNoProvider, "", nil)
	}
	addr, ok := m.cfg.MarketplaceAddress()
	if !ok {
		return nil, nil, marketplaceErr(400, ErrAddressNotSet, "", nil)
	}
	backend := m.cfg.Backend()
	if backend == nil {
		return nil, nil, marketplaceErr(400, ErrNoProvider, "", nil)
	}
	if m.wallet == nil || !m.wallet.Connected() {
		return nil, nil, marketplaceErr(404, ErrSignerNotFound, "", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.market != nil && m.bound == addr && m.backend == backend {
		return m.market, m.weth, nil
	}

	market := chain.NewMarketplaceContract(addr, backend, m.wallet)
	wethAddr, err := market.WETH(ctx)
	if err != nil {
		return nil, nil, translateMarketplace(err)
	}

	m.bound = addr
	m.backend = backend
	m.market = market
	m.weth = chain.NewWETH(wethAddr, backend, m.wallet)
	m.log.Debug("Marketplace bound", "marketplace", addr, "weth", wethAddr)
	return m.market, m.weth, nil
}

// SignDomain returns the typed-data domain orders are signed under
func (m *Marketplace) SignDomain(ctx context.Context) (apitypes.TypedDataDomain, error) {
	market, _, err := m.contracts(ctx)
	if err != nil {
		return apitypes.TypedDataDomain{}, err
	}
	return m.domain(market), nil
}

func (m *Marketplace) domain(market *chain.MarketplaceContract) apitypes.TypedDataDomain {
	return chain.NewDomain(new(big.Int).SetUint64(m.wallet.Network()), market.Address())
}

func invalidInput(format string, args ...interface{}) error {
	return marketplaceErr(400, ErrInvalidInput, fmt.Sprintf(format, args...), nil)
}

// collectionAddress resolves the collection reference of an order request
func collectionAddress(coll *Collection, address string) (common.Address, error) {
	if coll != nil {
		return coll.Address(), nil
	}
	if !common.IsHexAddress(address) || common.HexToAddress(address) == (common.Address{}) {
		return common.Address{}, invalidInput("invalid collection address %q", address)
	}
	return common.HexToAddress(address), nil
}

// paymentAmount returns wei when given, else the ether price converted to wei
func paymentAmount(name string, wei *big.Int, price string) (*big.Int, error) {
	if wei == nil && price != "" {
		parsed, err := ParseEther(price)
		if err != nil {
			return nil, marketplaceErr(400, ErrInvalidInput, fmt.Sprintf("invalid price %q", price), err)
		}
		wei = parsed
	}
	if !isSet(wei) {
		return nil, invalidInput("%s required", name)
	}
	return cloneBig(wei), nil
}

func requireSet(fields map[string]*big.Int) error {
	for _, name := range []string{"tokenId", "validBefore", "amount", "nonce"} {
		if !isSet(fields[name]) {
			return invalidInput("%s required", name)
		}
	}
	return nil
}

// SignBuyOrder makes sure the wallet can pay, approves the marketplace to
// pull the payment in WETH, and signs the order.
func (m *Marketplace) SignBuyOrder(ctx context.Context, req BuyOrderRequest) (*SignedBuyOrder, error) {
	collection, err := collectionAddress(req.Collection, req.CollectionAddress)
	if err != nil {
		return nil, err
	}
	if err := requireSet(map[string]*big.Int{
		"tokenId": req.TokenID, "validBefore": req.ValidBefore, "amount": req.Amount, "nonce": req.Nonce,
	}); err != nil {
		return nil, err
	}
	maxPayment, err := paymentAmount("maxPayment", req.MaxPayment, req.Price)
	if err != nil {
		return nil, err
	}

	market, weth, err := m.contracts(ctx)
	if err != nil {
		return nil, err
	}
	buyer := m.wallet.Address()

	if !req.SkipCheck {
		if err := m.ensureFunds(ctx, weth, buyer, maxPayment); err != nil {
			return nil, err
		}
	}
	if err := m.ensureAllowance(ctx, weth, buyer, market.Address(), maxPayment); err != nil {
		return nil, err
	}

	order := chain.BuyOrder{
		Buyer:       buyer,
		ValidBefore: cloneBig(req.ValidBefore),
		Collection:  collection,
		TokenId:     cloneBig(req.TokenID),
		Amount:      cloneBig(req.Amount),
		MaxPayment:  maxPayment,
		Nonce:       cloneBig(req.Nonce),
	}
	sig, err := m.wallet.SignTypedData(ctx, chain.BuyOrderTypedData(m.domain(market), order))
	if err != nil {
		return nil, translateMarketplace(err)
	}

	m.log.Debug("Buy order signed", "buyer", buyer, "collection", collection, "tokenId", order.TokenId)
	return &SignedBuyOrder{BuyOrder: order, Signature: sig}, nil
}

// ensureFunds checks that WETH plus native balance covers amount and wraps
// the shortfall of WETH
func (m *Marketplace) ensureFunds(ctx context.Context, weth *chain.WETH, owner common.Address, amount *big.Int) error {
	var wrapped, native *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		balance, err := weth.BalanceOf(gctx, owner)
		wrapped = balance
		return err
	})
	g.Go(func() error {
		balance, err := m.wallet.BalanceOf(gctx, owner.Hex(), DefaultSkipChecksum)
		native = balance
		return err
	})
	if err := g.Wait(); err != nil {
		return translateMarketplace(err)
	}

	total := new(big.Int).Add(wrapped, native)
	if total.Cmp(amount) < 0 {
		return marketplaceErr(402, ErrInsufficientBalance,
			fmt.Sprintf("need %s, have %s", FormatEther(amount), FormatEther(total)), nil)
	}
	if wrapped.Cmp(amount) >= 0 {
		return nil
	}

	deficit := new(big.Int).Sub(amount, wrapped)
	m.log.Info("Wrapping native currency", "amount", FormatEther(deficit))
	tx, err := weth.Deposit(ctx, deficit)
	if err != nil {
		return translateMarketplace(err)
	}
	return waitMined(ctx, tx)
}

func (m *Marketplace) ensureAllowance(ctx context.Context, weth *chain.WETH, owner, spender common.Address, amount *big.Int) error {
	allowance, err := weth.Allowance(ctx, owner, spender)
	if err != nil {
		return translateMarketplace(err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	m.log.Info("Approving marketplace", "spender", spender, "amount", FormatEther(amount))
	tx, err := weth.Approve(ctx, spender, amount)
	if err != nil {
		return translateMarketplace(err)
	}
	return waitMined(ctx, tx)
}

func waitMined(ctx context.Context, tx *chain.PendingTx) error {
	if _, err := tx.Wait(ctx); err != nil {
		return translateMarketplace(err)
	}
	return nil
}

// SignSellOrder checks the wallet holds the tokens, approves the marketplace
// as operator, and signs the order.
func (m *Marketplace) SignSellOrder(ctx context.Context, req SellOrderRequest) (*SignedSellOrder, error) {
	collection, err := collectionAddress(req.Collection, req.CollectionAddress)
	if err != nil {
		return nil, err
	}
	if err := requireSet(map[string]*big.Int{
		"tokenId": req.TokenID, "validBefore": req.ValidBefore, "amount": req.Amount, "nonce": req.Nonce,
	}); err != nil {
		return nil, err
	}
	minReceive, err := paymentAmount("minReceive", req.MinReceive, req.Price)
	if err != nil {
		return nil, err
	}

	market, _, err := m.contracts(ctx)
	if err != nil {
		return nil, err
	}
	seller := m.wallet.Address()

	coll := req.Collection
	if coll == nil {
		coll, err = NewCollection(ctx, m.cfg, m.wallet, collection.Hex(), CollectionTypeUnknown)
		if err != nil {
			return nil, err
		}
	}
	if err := coll.Wait(ctx); err != nil {
		return nil, err
	}

	if !req.SkipCheck {
		if err := m.checkHoldings(ctx, coll, seller, req.TokenID, req.Amount); err != nil {
			return nil, err
		}
	}

	approved, err := coll.IsApprovedForAll(ctx, seller, market.Address())
	if err != nil {
		return nil, err
	}
	if !approved {
		m.log.Info("Approving marketplace as operator", "collection", collection)
		tx, err := coll.SetApprovalForAll(ctx, market.Address(), true)
		if err != nil {
			return nil, err
		}
		if err := waitMined(ctx, tx); err != nil {
			return nil, err
		}
	}

	order := chain.SellOrder{
		Seller:      seller,
		ValidBefore: cloneBig(req.ValidBefore),
		Collection:  collection,
		TokenId:     cloneBig(req.TokenID),
		Amount:      cloneBig(req.Amount),
		MinReceive:  minReceive,
		Nonce:       cloneBig(req.Nonce),
	}
	sig, err := m.wallet.SignTypedData(ctx, chain.SellOrderTypedData(m.domain(market), order))
	if err != nil {
		return nil, translateMarketplace(err)
	}

	m.log.Debug("Sell order signed", "seller", seller, "collection", collection, "tokenId", order.TokenId)
	return &SignedSellOrder{SellOrder: order, Signature: sig}, nil
}

func (m *Marketplace) checkHoldings(ctx context.Context, coll *Collection, seller common.Address, tokenID, amount *big.Int) error {
	switch coll.Type() {
	case CollectionTypeERC721:
		owner, err := coll.OwnerOf(ctx, tokenID)
		if err != nil {
			return err
		}
		if owner != seller {
			return marketplaceErr(402, ErrNotOwner, fmt.Sprintf("token %s is owned by %s", tokenID, owner.Hex()), nil)
		}
	case CollectionTypeERC1155:
		balance, err := coll.BalanceOf(ctx, seller, tokenID)
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return marketplaceErr(402, ErrInsufficientBalance, fmt.Sprintf("hold %s of token %s, need %s", balance, tokenID, amount), nil)
		}
	}
	return nil
}

// match is the argument set of one executeOrder call
type match struct {
	sell       chain.SellOrder
	buy        chain.BuyOrder
	isWETH     bool
	signatures [][]byte
	value      *big.Int
}

// buildMatch fills in the side of req the caller left out. A synthesized
// buy side pays up to MaxUint256, a synthesized sell side asks for nothing.
// Either way the match settles in WETH.
func buildMatch(req ExecuteOrderRequest, caller common.Address) (match, error) {
	if err := checkMatch(req); err != nil {
		return match{}, err
	}

	m := match{isWETH: req.IsWETH}
	var sellSig, buySig []byte
	switch {
	case req.SellOrder == nil:
		m.buy = req.BuyOrder.BuyOrder
		buySig = req.BuyOrder.Signature
		m.sell = chain.CounterSellOrder(m.buy, caller)
		sellSig = chain.UnsignedSignature
		m.isWETH = true
	case req.BuyOrder == nil:
		m.sell = req.SellOrder.SellOrder
		sellSig = req.SellOrder.Signature
		m.buy = chain.CounterBuyOrder(m.sell, caller)
		buySig = chain.UnsignedSignature
		m.isWETH = true
	default:
		m.sell = req.SellOrder.SellOrder
		sellSig = req.SellOrder.Signature
		m.buy = req.BuyOrder.BuyOrder
		buySig = req.BuyOrder.Signature
	}

	m.signatures = [][]byte{orEmpty(sellSig), orEmpty(buySig), orEmpty(req.ServerSignature)}
	if !m.isWETH {
		m.value = sum(req.Shares)
	}
	return m, nil
}

func checkMatch(req ExecuteOrderRequest) error {
	if req.BuyOrder == nil && req.SellOrder == nil {
		return marketplaceErr(400, ErrMissingOrder, "", nil)
	}
	if len(req.Receivers) != len(req.Shares) {
		return invalidInput("%d receivers but %d shares", len(req.Receivers), len(req.Shares))
	}
	return nil
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// ExecuteOrder settles a buy/sell pair. Either side may be omitted, in which
// case the caller takes it.
func (m *Marketplace) ExecuteOrder(ctx context.Context, req ExecuteOrderRequest) (*chain.PendingTx, error) {
	if err := checkMatch(req); err != nil {
		return nil, err
	}

	market, _, err := m.contracts(ctx)
	if err != nil {
		return nil, err
	}

	mt, err := buildMatch(req, m.wallet.Address())
	if err != nil {
		return nil, err
	}

	tx, err := market.ExecuteOrder(ctx, mt.value, mt.sell, mt.buy, req.IsERC721, mt.isWETH, req.Receivers, req.Shares, mt.signatures)
	if err != nil {
		return nil, translateMarketplace(err)
	}

	m.log.Info("Order execution submitted", "collection", mt.sell.Collection, "tokenId", mt.sell.TokenId, "tx", tx.Hash)
	return tx, nil
}

// MarkAsInvalid cancels exactly one of buy or sell on-chain
func (m *Marketplace) MarkAsInvalid(ctx context.Context, buy *chain.BuyOrder, sell *chain.SellOrder) (*chain.PendingTx, error) {
	if (buy == nil) == (sell == nil) {
		return nil, marketplaceErr(400, ErrExactlyOneOrder, "", nil)
	}

	market, _, err := m.contracts(ctx)
	if err != nil {
		return nil, err
	}

	var hash [32]byte
	if buy != nil {
		hash, err = market.HashBuyOrder(ctx, *buy)
	} else {
		hash, err = market.HashSellOrder(ctx, *sell)
	}
	if err != nil {
		return nil, translateMarketplace(err)
	}

	tx, err := market.InvalidateOrder(ctx, hash)
	if err != nil {
		return nil, translateMarketplace(err)
	}

	m.log.Info("Order invalidation submitted", "hash", common.Hash(hash), "tx", tx.Hash)
	return tx, nil
}
