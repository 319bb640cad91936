package netpute

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// DefaultCollectionCacheTTL is how long Client.Collection reuses a handle
const DefaultCollectionCacheTTL = 5 * time.Minute

// Client is the main SDK client
type Client struct {
	config      *Config
	wallet      *Wallet
	marketplace *Marketplace
	provider    Provider
	log         log.Logger

	collectionCache    map[string]cacheEntry
	collectionCacheTTL time.Duration
	cacheMutex         sync.RWMutex
}

type cacheEntry struct {
	collection *Collection
	timestamp  time.Time
}

// ClientConfig holds configuration for creating a Client
type ClientConfig struct {
	RPCURL             string
	DeployerAddress    string
	MarketplaceAddress string
	// Provider is the wallet. It may be nil for read-only use.
	Provider           Provider
	Logger             log.Logger
	Dialer             Dialer
	CollectionCacheTTL time.Duration
}

// NewClient initializes a Config from config and builds the wallet and
// marketplace on top of it. The wallet is not connected; call Connect.
func NewClient(ctx context.Context, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = log.New("module", "netpute")
	}
	if config.CollectionCacheTTL == 0 {
		config.CollectionCacheTTL = DefaultCollectionCacheTTL
	}

	cfg := NewConfig(WithDialer(config.Dialer), WithConfigLogger(logger.With("component", "config")))
	if err := cfg.Init(ctx, InitOptions{
		RPC:                config.RPCURL,
		DeployerAddress:    config.DeployerAddress,
		MarketplaceAddress: config.MarketplaceAddress,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	wallet := NewWallet(config.Provider, WithWalletLogger(logger.With("component", "wallet")))

	return &Client{
		config:             cfg,
		wallet:             wallet,
		marketplace:        NewMarketplace(cfg, wallet, WithMarketplaceLogger(logger.With("component", "marketplace"))),
		provider:           config.Provider,
		log:                logger,
		collectionCache:    make(map[string]cacheEntry),
		collectionCacheTTL: config.CollectionCacheTTL,
	}, nil
}

// Config returns the shared configuration
func (c *Client) Config() *Config { return c.config }

// Wallet returns the wallet adapter
func (c *Client) Wallet() *Wallet { return c.wallet }

// Marketplace returns the marketplace facade
func (c *Client) Marketplace() *Marketplace { return c.marketplace }

// Connect connects the wallet
func (c *Client) Connect(ctx context.Context) (common.Address, error) {
	return c.wallet.Connect(ctx)
}

// Collection returns a handle on the collection at address. Handles are
// cached per address and type; a handle whose detection failed is not reused.
func (c *Client) Collection(ctx context.Context, address string, typ CollectionType) (*Collection, error) {
	key := strings.ToLower(address) + "/" + string(typ)

	c.cacheMutex.RLock()
	entry, ok := c.collectionCache[key]
	c.cacheMutex.RUnlock()
	if ok && time.Since(entry.timestamp) < c.collectionCacheTTL && entry.collection.usable() {
		return entry.collection, nil
	}

	// cached handles outlive the request that created them
	coll, err := NewCollection(context.WithoutCancel(ctx), c.config, c.wallet, address, typ)
	if err != nil {
		return nil, err
	}

	c.cacheMutex.Lock()
	c.collectionCache[key] = cacheEntry{collection: coll, timestamp: time.Now()}
	c.cacheMutex.Unlock()
	return coll, nil
}

// DeployCollection deploys a collection with the connected wallet
func (c *Client) DeployCollection(ctx context.Context, params DeployParams) (*Collection, error) {
	coll, err := Deploy(ctx, c.config, c.wallet, params)
	if err != nil {
		return nil, err
	}

	c.cacheMutex.Lock()
	c.collectionCache[strings.ToLower(coll.Address().Hex())+"/"+string(params.Type)] = cacheEntry{collection: coll, timestamp: time.Now()}
	c.cacheMutex.Unlock()
	return coll, nil
}

// Close disconnects the wallet, drops the read connection and closes the
// provider when it owns resources
func (c *Client) Close() {
	c.wallet.Disconnect()
	c.config.Close()

	switch p := c.provider.(type) {
	case interface{ Close() error }:
		if err := p.Close(); err != nil {
			c.log.Warn("Failed to close provider", "err", err)
		}
	case interface{ Close() }:
		p.Close()
	}
}
