package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Deployer wraps the collection factory
type Deployer struct {
	*Contract
}

// NewDeployer binds the factory at address
func NewDeployer(address common.Address, backend Backend, sender Sender) *Deployer {
	return &Deployer{NewContract(address, deployerABI, backend, sender)}
}

// PredictERC721 dry-runs createERC721 from the sender and returns the address it would deploy to
func (d *Deployer) PredictERC721(ctx context.Context, fee *big.Int, salt [32]byte, name, symbol string, royalty *big.Int, signature []byte) (common.Address, error) {
	var addr common.Address
	err := d.DryRun(ctx, &addr, fee, "createERC721", salt, name, symbol, royalty, signature)
	return addr, err
}

// CreateERC721 deploys an ERC-721 collection
func (d *Deployer) CreateERC721(ctx context.Context, fee *big.Int, salt [32]byte, name, symbol string, royalty *big.Int, signature []byte) (*PendingTx, error) {
	return d.Transact(ctx, fee, "createERC721", salt, name, symbol, royalty, signature)
}

// PredictERC1155 dry-runs createERC1155 from the sender and returns the address it would deploy to
func (d *Deployer) PredictERC1155(ctx context.Context, fee *big.Int, salt [32]byte, royalty *big.Int, signature []byte) (common.Address, error) {
	var addr common.Address
	err := d.DryRun(ctx, &addr, fee, "createERC1155", salt, royalty, signature)
	return addr, err
}

// CreateERC1155 deploys an ERC-1155 collection
func (d *Deployer) CreateERC1155(ctx context.Context, fee *big.Int, salt [32]byte, royalty *big.Int, signature []byte) (*PendingTx, error) {
	return d.Transact(ctx, fee, "createERC1155", salt, royalty, signature)
}

// ERC721 wraps a Netpute ERC-721 collection
type ERC721 struct {
	*Contract
}

// NewERC721 binds an ERC-721 collection at address
func NewERC721(address common.Address, backend Backend, sender Sender) *ERC721 {
	return &ERC721{NewContract(address, erc721ABI, backend, sender)}
}

// OwnerOf returns the owner of tokenID
func (e *ERC721) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	var owner common.Address
	err := e.Call(ctx, &owner, "ownerOf", tokenID)
	return owner, err
}

// IsApprovedForAll reports whether operator may move all of owner's tokens
func (e *ERC721) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	var approved bool
	err := e.Call(ctx, &approved, "isApprovedForAll", owner, operator)
	return approved, err
}

// SetApprovalForAll grants or revokes operator
func (e *ERC721) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*PendingTx, error) {
	return e.Transact(ctx, nil, "setApprovalForAll", operator, approved)
}

// Mint mints tokenID to to
func (e *ERC721) Mint(ctx context.Context, value *big.Int, to common.Address, tokenID *big.Int, feeReceivers []common.Address, fees []*big.Int, signature []byte) (*PendingTx, error) {
	return e.Transact(ctx, value, "mint", to, tokenID, feeReceivers, fees, signature)
}

// ERC1155 wraps a Netpute ERC-1155 collection
type ERC1155 struct {
	*Contract
}

// NewERC1155 binds an ERC-1155 collection at address
func NewERC1155(address common.Address, backend Backend, sender Sender) *ERC1155 {
	return &ERC1155{NewContract(address, erc1155ABI, backend, sender)}
}

// BalanceOf returns account's balance of id
func (e *ERC1155) BalanceOf(ctx context.Context, account common.Address, id *big.Int) (*big.Int, error) {
	var balance *big.Int
	if err := e.Call(ctx, &balance, "balanceOf", account, id); err != nil {
		return nil, err
	}
	return balance, nil
}

// IsApprovedForAll reports whether operator may move all of owner's tokens
func (e *ERC1155) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	var approved bool
	err := e.Call(ctx, &approved, "isApprovedForAll", owner, operator)
	return approved, err
}

// SetApprovalForAll grants or revokes operator
func (e *ERC1155) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*PendingTx, error) {
	return e.Transact(ctx, nil, "setApprovalForAll", operator, approved)
}

// Mint mints amount of id to to
func (e *ERC1155) Mint(ctx context.Context, value *big.Int, to common.Address, id, amount *big.Int, feeReceivers []common.Address, fees []*big.Int, signature []byte) (*PendingTx, error) {
	return e.Transact(ctx, value, "mint", to, id, amount, feeReceivers, fees, signature)
}

// MintBatch mints amounts[i] of ids[i] to to
func (e *ERC1155) MintBatch(ctx context.Context, value *big.Int, to common.Address, ids, amounts []*big.Int, feeReceivers []common.Address, fees []*big.Int, signature []byte) (*PendingTx, error) {
	return e.Transact(ctx, value, "mintBatch", to, ids, amounts, feeReceivers, fees, signature)
}

// MarketplaceContract wraps the Netpute marketplace
type MarketplaceContract struct {
	*Contract
}

// NewMarketplaceContract binds the marketplace at address
func NewMarketplaceContract(address common.Address, backend Backend, sender Sender) *MarketplaceContract {
	return &MarketplaceContract{NewContract(address, marketplaceABI, backend, sender)}
}

// WETH returns the wrapped native token the marketplace settles in
func (m *MarketplaceContract) WETH(ctx context.Context) (common.Address, error) {
	var addr common.Address
	err := m.Call(ctx, &addr, "WETH")
	return addr, err
}

// HashSellOrder returns the marketplace's digest of order
func (m *MarketplaceContract) HashSellOrder(ctx context.Context, order SellOrder) ([32]byte, error) {
	var hash [32]byte
	err := m.Call(ctx, &hash, "hashSellOrder", order.normalized())
	return hash, err
}

// HashBuyOrder returns the marketplace's digest of order
func (m *MarketplaceContract) HashBuyOrder(ctx context.Context, order BuyOrder) ([32]byte, error) {
	var hash [32]byte
	err := m.Call(ctx, &hash, "hashBuyOrder", order.normalized())
	return hash, err
}

// ExecuteOrder settles a matched pair. signatures is [sell, buy, server].
func (m *MarketplaceContract) ExecuteOrder(ctx context.Context, value *big.Int, sell SellOrder, buy BuyOrder, isERC721, isWETH bool, receivers []common.Address, shares []*big.Int, signatures [][]byte) (*PendingTx, error) {
	return m.Transact(ctx, value, "executeOrder", sell.normalized(), buy.normalized(), isERC721, isWETH, receivers, shares, signatures)
}

// InvalidateOrder cancels the order with the given digest
func (m *MarketplaceContract) InvalidateOrder(ctx context.Context, orderHash [32]byte) (*PendingTx, error) {
	return m.Transact(ctx, nil, "invalidateOrder", orderHash)
}

// WETH wraps the wrapped native token
type WETH struct {
	*Contract
}

// NewWETH binds the token at address
func NewWETH(address common.Address, backend Backend, sender Sender) *WETH {
	return &WETH{NewContract(address, wethABI, backend, sender)}
}

// BalanceOf returns owner's token balance
func (w *WETH) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := w.Call(ctx, &balance, "balanceOf", owner); err != nil {
		return nil, err
	}
	return balance, nil
}

// Allowance returns how much spender may pull from owner
func (w *WETH) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var allowance *big.Int
	if err := w.Call(ctx, &allowance, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return allowance, nil
}

// Approve sets spender's allowance to amount
func (w *WETH) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*PendingTx, error) {
	return w.Transact(ctx, nil, "approve", spender, amount)
}

// Deposit wraps amount of the native currency
func (w *WETH) Deposit(ctx context.Context, amount *big.Int) (*PendingTx, error) {
	return w.Transact(ctx, amount, "deposit")
}
