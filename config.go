package netpute

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"github.com/netpute/netpute-sdk-go/chain"
)

// Environment variables read by InitOptionsFromEnv
const (
	EnvRPCURL             = "NETPUTE_RPC_URL"
	EnvDeployerAddress    = "NETPUTE_DEPLOYER_ADDRESS"
	EnvMarketplaceAddress = "NETPUTE_MARKETPLACE_ADDRESS"
)

// Backend is a read connection to a node. *ethclient.Client satisfies it.
type Backend interface {
	chain.Backend
	Close()
}

// Dialer opens a Backend for an RPC URL
type Dialer func(ctx context.Context, rawurl string) (Backend, error)

func dialEthclient(ctx context.Context, rawurl string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// InitOptions holds the values Config.Init applies
type InitOptions struct {
	RPC                string
	DeployerAddress    string
	MarketplaceAddress string
}

// Config holds the read connection and the contract addresses shared by the facades
type Config struct {
	dial Dialer
	log  log.Logger

	mu          sync.RWMutex
	rpc         string
	backend     Backend
	deployer    common.Address
	marketplace common.Address
}

// ConfigOption configures a Config
type ConfigOption func(*Config)

// WithDialer replaces the ethclient dialer
func WithDialer(dial Dialer) ConfigOption {
	return func(c *Config) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// WithConfigLogger sets the logger
func WithConfigLogger(l log.Logger) ConfigOption {
	return func(c *Config) {
		if l != nil {
			c.log = l
		}
	}
}

// NewConfig creates an uninitialized Config
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{
		dial: dialEthclient,
		log:  log.New("module", "netpute", "component", "config"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init connects to opts.RPC and stores the contract addresses. It may be
// called again; the last call wins and the previous connection is closed.
func (c *Config) Init(ctx context.Context, opts InitOptions) error {
	if !strings.HasPrefix(opts.RPC, "wss://") && !strings.HasPrefix(opts.RPC, "https://") {
		return configErr(400, ErrUnsupportedScheme, "", nil)
	}

	deployer, err := optionalAddress("deployer", opts.DeployerAddress)
	if err != nil {
		return err
	}
	marketplace, err := optionalAddress("marketplace", opts.MarketplaceAddress)
	if err != nil {
		return err
	}

	backend, err := c.dial(ctx, opts.RPC)
	if err != nil {
		return configErr(500, ErrDialFailed, "", err)
	}

	c.mu.Lock()
	prev := c.backend
	c.rpc = opts.RPC
	c.backend = backend
	c.deployer = deployer
	c.marketplace = marketplace
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	c.log.Debug("Config initialized", "rpc", opts.RPC, "deployer", deployer, "marketplace", marketplace)
	return nil
}

func optionalAddress(name, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, configErr(400, ErrInvalidAddress, fmt.Sprintf("invalid %s address %q", name, s), nil)
	}
	return common.HexToAddress(s), nil
}

// Initialized reports whether Init has succeeded
func (c *Config) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend != nil
}

// Backend returns the read connection, or nil before Init
func (c *Config) Backend() Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend
}

// RPC returns the configured endpoint
func (c *Config) RPC() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rpc
}

// DeployerAddress returns the collection factory address and whether it is set
func (c *Config) DeployerAddress() (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deployer, c.deployer != (common.Address{})
}

// MarketplaceAddress returns the marketplace address and whether it is set
func (c *Config) MarketplaceAddress() (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.marketplace, c.marketplace != (common.Address{})
}

// Close drops the read connection. The Config can be initialized again.
func (c *Config) Close() {
	c.mu.Lock()
	backend := c.backend
	c.backend = nil
	c.mu.Unlock()

	if backend != nil {
		backend.Close()
	}
}

// InitOptionsFromEnv loads a .env file if present and reads the NETPUTE_*
// variables.
func InitOptionsFromEnv() (InitOptions, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional if env vars are set directly
		if !os.IsNotExist(err) {
			return InitOptions{}, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	opts := InitOptions{
		RPC:                os.Getenv(EnvRPCURL),
		DeployerAddress:    os.Getenv(EnvDeployerAddress),
		MarketplaceAddress: os.Getenv(EnvMarketplaceAddress),
	}
	if opts.RPC == "" {
		return InitOptions{}, fmt.Errorf("missing required config: [%s]", EnvRPCURL)
	}
	return opts, nil
}

// Chain ids with a built-in ChainConfig
const (
	ChainIDEthereumMainnet uint64 = 1
	ChainIDBNBMainnet      uint64 = 56
	ChainIDPolygonMainnet  uint64 = 137
)

// NativeCurrency describes a chain's gas token
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainConfig is the wallet_addEthereumChain payload
type ChainConfig struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

var knownChains = map[uint64]ChainConfig{
	ChainIDEthereumMainnet: {
		ChainID:           "0x1",
		ChainName:         "Ethereum Mainnet",
		NativeCurrency:    NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURLs:           []string{"https://cloudflare-eth.com"},
		BlockExplorerURLs: []string{"https://etherscan.io"},
	},
	ChainIDBNBMainnet: {
		ChainID:           "0x38",
		ChainName:         "BNB Smart Chain Mainnet",
		NativeCurrency:    NativeCurrency{Name: "BNB", Symbol: "BNB", Decimals: 18},
		RPCURLs:           []string{"https://bsc-dataseed.bnbchain.org"},
		BlockExplorerURLs: []string{"https://bscscan.com"},
	},
	ChainIDPolygonMainnet: {
		ChainID:           "0x89",
		ChainName:         "Polygon Mainnet",
		NativeCurrency:    NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		RPCURLs:           []string{"https://polygon-rpc.com"},
		BlockExplorerURLs: []string{"https://polygonscan.com"},
	},
}

// KnownChainConfig returns the built-in ChainConfig for id
func KnownChainConfig(id uint64) (*ChainConfig, bool) {
	cfg, ok := knownChains[id]
	if !ok {
		return nil, false
	}
	cfg.RPCURLs = append([]string(nil), cfg.RPCURLs...)
	cfg.BlockExplorerURLs = append([]string(nil), cfg.BlockExplorerURLs...)
	return &cfg, true
}
