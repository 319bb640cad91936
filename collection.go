package netpute

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/netpute/netpute-sdk-go/chain"
	"golang.org/x/sync/errgroup"
)

// MaxRoyalty is the largest royalty in basis points
const MaxRoyalty = 10_000

// DetectStandard picks the collection type from the two interface probes.
// ERC-721 wins when a contract claims both.
func DetectStandard(probes ProbeResults) CollectionType {
	switch {
	case probes.ERC721:
		return CollectionTypeERC721
	case probes.ERC1155:
		return CollectionTypeERC1155
	default:
		return CollectionTypeUnknown
	}
}

// Collection is a handle on an NFT collection contract. Its type is either
// given up front, detected through ERC-165, or known from the deployment
// that created it.
type Collection struct {
	cfg     *Config
	wallet  *Wallet
	address common.Address
	log     log.Logger

	deployTx *chain.PendingTx

	once sync.Once
	done chan struct{}
	mu   sync.RWMutex
	typ  CollectionType
	err  error
}

func newCollection(cfg *Config, wallet *Wallet, address common.Address) *Collection {
	return &Collection{
		cfg:     cfg,
		wallet:  wallet,
		address: address,
		log:     log.New("module", "netpute", "component", "collection", "address", address),
		done:    make(chan struct{}),
	}
}

// NewCollection binds the collection at address. With an empty typ the
// standard is detected in the background; Wait blocks until it is known.
// wallet may be nil for read-only use.
func NewCollection(ctx context.Context, cfg *Config, wallet *Wallet, address string, typ CollectionType) (*Collection, error) {
	if cfg == nil || !cfg.Initialized() {
		return nil, collectionErr(404, ErrNoProvider, "", nil)
	}
	if !common.IsHexAddress(address) {
		return nil, collectionErr(400, ErrInvalidInput, fmt.Sprintf("invalid collection address %q", address), nil)
	}
	if typ != CollectionTypeUnknown && !typ.Valid() {
		return nil, collectionErr(400, ErrInvalidType, fmt.Sprintf("unknown collection type %q", string(typ)), nil)
	}

	c := newCollection(cfg, wallet, common.HexToAddress(address))
	if typ.Valid() {
		c.resolve(typ, nil)
		return c, nil
	}

	go c.detect(ctx, cfg.Backend())
	return c, nil
}

func (c *Collection) detect(ctx context.Context, backend chain.Backend) {
	var probes ProbeResults

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := chain.SupportsInterface(gctx, backend, c.address, chain.InterfaceIDERC721)
		probes.ERC721 = ok
		return err
	})
	g.Go(func() error {
		ok, err := chain.SupportsInterface(gctx, backend, c.address, chain.InterfaceIDERC1155)
		probes.ERC1155 = ok
		return err
	})
	if err := g.Wait(); err != nil {
		c.resolve(CollectionTypeUnknown, translateCollection(err))
		return
	}

	typ := DetectStandard(probes)
	if typ == CollectionTypeUnknown {
		c.resolve(typ, collectionErr(500, ErrNotANFT, fmt.Sprintf("%s supports neither ERC-721 nor ERC-1155", c.address.Hex()), nil))
		return
	}
	c.log.Debug("Collection type detected", "type", typ)
	c.resolve(typ, nil)
}

// resolve settles the init future. Only the first call has an effect.
func (c *Collection) resolve(typ CollectionType, err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.typ = typ
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

// Wait blocks until the collection is ready to use. For a deployed
// collection that means the deployment is mined.
func (c *Collection) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// confirm resolves a deployed collection once its deployment is mined
func (c *Collection) confirm(ctx context.Context) {
	if _, err := c.deployTx.Wait(ctx); err != nil {
		if errors.Is(err, chain.ErrTxFailed) {
			c.resolve(c.Type(), collectionErr(500, ErrExecutionReverted, "deployment failed", err))
			return
		}
		c.resolve(c.Type(), translateCollection(err))
		return
	}
	c.log.Info("Collection deployed", "type", c.Type(), "tx", c.deployTx.Hash)
	c.resolve(c.Type(), nil)
}

// Done is closed once the collection is resolved
func (c *Collection) Done() <-chan struct{} {
	return c.done
}

// Inited reports whether the collection resolved successfully
func (c *Collection) Inited() bool {
	select {
	case <-c.done:
		return c.Err() == nil
	default:
		return false
	}
}

// usable reports whether c is resolved successfully or still resolving
func (c *Collection) usable() bool {
	select {
	case <-c.done:
		return c.Err() == nil
	default:
		return true
	}
}

// Err returns the init failure, if any
func (c *Collection) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Type returns the collection standard, or CollectionTypeUnknown while
// detection is running
func (c *Collection) Type() CollectionType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typ
}

// Address returns the collection address
func (c *Collection) Address() common.Address {
	return c.address
}

// DeployTx returns the deployment transaction, or nil for a collection that
// was not deployed through Deploy
func (c *Collection) DeployTx() *chain.PendingTx {
	return c.deployTx
}

// Deploy creates a collection through the factory. The deployment is
// simulated first; when params.ExpectedAddress is set and the simulated
// address differs, nothing is sent.
func Deploy(ctx context.Context, cfg *Config, wallet *Wallet, params DeployParams) (*Collection, error) {
	if cfg == nil || !cfg.Initialized() {
		return nil, collectionErr(404, ErrNoProvider, "", nil)
	}
	deployerAddr, ok := cfg.DeployerAddress()
	if !ok {
		return nil, collectionErr(400, ErrNoDeployer, "", nil)
	}
	if wallet == nil || !wallet.Connected() {
		return nil, collectionErr(404, ErrNoWallet, "", nil)
	}
	if !params.Type.Valid() {
		return nil, collectionErr(400, ErrInvalidType, fmt.Sprintf("unknown collection type %q", string(params.Type)), nil)
	}
	if params.Royalty > MaxRoyalty {
		return nil, collectionErr(400, ErrInvalidInput, fmt.Sprintf("royalty %d exceeds %d basis points", params.Royalty, MaxRoyalty), nil)
	}
	if params.ExpectedAddress != "" && !common.IsHexAddress(params.ExpectedAddress) {
		return nil, collectionErr(400, ErrInvalidInput, fmt.Sprintf("invalid expected address %q", params.ExpectedAddress), nil)
	}

	fee := params.Fee
	if fee == nil {
		fee = DefaultDeployFee
	}
	royalty := big.NewInt(int64(params.Royalty))
	deployer := chain.NewDeployer(deployerAddr, cfg.Backend(), wallet)

	var (
		predicted common.Address
		err       error
	)
	if params.Type == CollectionTypeERC721 {
		predicted, err = deployer.PredictERC721(ctx, fee, params.Salt, params.Name, params.Symbol, royalty, params.Signature)
	} else {
		predicted, err = deployer.PredictERC1155(ctx, fee, params.Salt, royalty, params.Signature)
	}
	if err != nil {
		return nil, translateCollection(err)
	}

	if params.ExpectedAddress != "" && !strings.EqualFold(predicted.Hex(), params.ExpectedAddress) {
		return nil, collectionErr(403, ErrAddressMismatch,
			fmt.Sprintf("expected %s, deployer would create %s", params.ExpectedAddress, predicted.Hex()), nil)
	}

	var tx *chain.PendingTx
	if params.Type == CollectionTypeERC721 {
		tx, err = deployer.CreateERC721(ctx, fee, params.Salt, params.Name, params.Symbol, royalty, params.Signature)
	} else {
		tx, err = deployer.CreateERC1155(ctx, fee, params.Salt, royalty, params.Signature)
	}
	if err != nil {
		return nil, translateCollection(err)
	}

	c := newCollection(cfg, wallet, predicted)
	c.typ = params.Type
	c.deployTx = tx.WithPollInterval(params.ReceiptPollInterval)
	c.log.Info("Collection deployment submitted", "type", params.Type, "tx", tx.Hash)

	go c.confirm(context.WithoutCancel(ctx))
	return c, nil
}

func senderOf(w *Wallet) chain.Sender {
	if w == nil {
		return nil
	}
	return w
}

// backend returns the current read connection
func (c *Collection) backend() (Backend, error) {
	backend := c.cfg.Backend()
	if backend == nil {
		return nil, collectionErr(404, ErrNoProvider, "", nil)
	}
	return backend, nil
}

func (c *Collection) erc721() (*chain.ERC721, error) {
	if c.Type() != CollectionTypeERC721 {
		return nil, collectionErr(400, ErrInvalidType, fmt.Sprintf("%s is %s, not ERC-721", c.address.Hex(), c.Type()), nil)
	}
	backend, err := c.backend()
	if err != nil {
		return nil, err
	}
	return chain.NewERC721(c.address, backend, senderOf(c.wallet)), nil
}

func (c *Collection) erc1155() (*chain.ERC1155, error) {
	if c.Type() != CollectionTypeERC1155 {
		return nil, collectionErr(400, ErrInvalidType, fmt.Sprintf("%s is %s, not ERC-1155", c.address.Hex(), c.Type()), nil)
	}
	backend, err := c.backend()
	if err != nil {
		return nil, err
	}
	return chain.NewERC1155(c.address, backend, senderOf(c.wallet)), nil
}

type operatorApprovals interface {
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*chain.PendingTx, error)
}

func (c *Collection) approvals() (operatorApprovals, error) {
	if c.Type() == CollectionTypeERC721 {
		return c.erc721()
	}
	return c.erc1155()
}

func (c *Collection) requireWallet() error {
	if c.wallet == nil || !c.wallet.Connected() {
		return collectionErr(404, ErrNoWallet, "", nil)
	}
	return nil
}

// Mint mints tokens to p.To, or to the connected wallet when p.To is unset
func (c *Collection) Mint(ctx context.Context, p MintParams) (*chain.PendingTx, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.requireWallet(); err != nil {
		return nil, err
	}
	if len(p.FeeReceivers) != len(p.Fees) {
		return nil, collectionErr(400, ErrInvalidInput,
			fmt.Sprintf("%d fee receivers but %d fees", len(p.FeeReceivers), len(p.Fees)), nil)
	}

	to := p.To
	if to == (common.Address{}) {
		to = c.wallet.Address()
	}

	var (
		tx  *chain.PendingTx
		err error
	)
	switch c.Type() {
	case CollectionTypeERC721:
		if p.TokenID == nil {
			return nil, collectionErr(400, ErrInvalidInput, "token id required", nil)
		}
		token, berr := c.erc721()
		if berr != nil {
			return nil, berr
		}
		tx, err = token.Mint(ctx, p.Value, to, p.TokenID, p.FeeReceivers, p.Fees, p.Signature)

	case CollectionTypeERC1155:
		single := p.ID != nil || p.Amount != nil
		batch := len(p.IDs) > 0 || len(p.Amounts) > 0
		if single == batch {
			return nil, collectionErr(400, ErrAmbiguousMintShape, "", nil)
		}
		token, berr := c.erc1155()
		if berr != nil {
			return nil, berr
		}
		if single {
			if p.ID == nil || p.Amount == nil {
				return nil, collectionErr(400, ErrInvalidInput, "id and amount required", nil)
			}
			tx, err = token.Mint(ctx, p.Value, to, p.ID, p.Amount, p.FeeReceivers, p.Fees, p.Signature)
		} else {
			if len(p.IDs) != len(p.Amounts) {
				return nil, collectionErr(400, ErrInvalidInput,
					fmt.Sprintf("%d ids but %d amounts", len(p.IDs), len(p.Amounts)), nil)
			}
			tx, err = token.MintBatch(ctx, p.Value, to, p.IDs, p.Amounts, p.FeeReceivers, p.Fees, p.Signature)
		}

	default:
		return nil, collectionErr(400, ErrInvalidType, "", nil)
	}
	if err != nil {
		return nil, translateCollection(err)
	}

	c.log.Info("Mint submitted", "to", to, "tx", tx.Hash)
	return tx, nil
}

// OwnerOf returns the owner of an ERC-721 token
func (c *Collection) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	if err := c.Wait(ctx); err != nil {
		return common.Address{}, err
	}
	token, err := c.erc721()
	if err != nil {
		return common.Address{}, err
	}
	owner, err := token.OwnerOf(ctx, tokenID)
	if err != nil {
		return common.Address{}, translateCollection(err)
	}
	return owner, nil
}

// BalanceOf returns owner's balance of an ERC-1155 token id
func (c *Collection) BalanceOf(ctx context.Context, owner common.Address, id *big.Int) (*big.Int, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.erc1155()
	if err != nil {
		return nil, err
	}
	balance, err := token.BalanceOf(ctx, owner, id)
	if err != nil {
		return nil, translateCollection(err)
	}
	return balance, nil
}

// IsApprovedForAll reports whether operator may transfer all of owner's tokens
func (c *Collection) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	if err := c.Wait(ctx); err != nil {
		return false, err
	}
	token, err := c.approvals()
	if err != nil {
		return false, err
	}
	approved, err := token.IsApprovedForAll(ctx, owner, operator)
	if err != nil {
		return false, translateCollection(err)
	}
	return approved, nil
}

// SetApprovalForAll grants or revokes operator on the wallet's tokens
func (c *Collection) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*chain.PendingTx, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.requireWallet(); err != nil {
		return nil, err
	}
	token, err := c.approvals()
	if err != nil {
		return nil, err
	}
	tx, err := token.SetApprovalForAll(ctx, operator, approved)
	if err != nil {
		return nil, translateCollection(err)
	}
	return tx, nil
}
