package netpute

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/netpute/netpute-sdk-go/chain"
)

// CollectionType is the token standard a collection implements
type CollectionType string

const (
	CollectionTypeUnknown CollectionType = ""
	CollectionTypeERC721  CollectionType = "ERC-721"
	CollectionTypeERC1155 CollectionType = "ERC-1155"
)

// Valid reports whether t names a supported standard
func (t CollectionType) Valid() bool {
	return t == CollectionTypeERC721 || t == CollectionTypeERC1155
}

func (t CollectionType) String() string {
	if t == CollectionTypeUnknown {
		return "unknown"
	}
	return string(t)
}

// ProbeResults holds the answers of the two supportsInterface probes
type ProbeResults struct {
	ERC721  bool
	ERC1155 bool
}

// DeployParams describes a collection deployment
type DeployParams struct {
	// Salt and Signature are issued by the Netpute backend
	Salt      [32]byte
	Signature []byte
	Type      CollectionType
	// Name and Symbol apply to ERC-721 only
	Name   string
	Symbol string
	// Royalty in basis points, at most 10000
	Royalty uint16
	// ExpectedAddress aborts the deployment when the predicted address differs
	ExpectedAddress string
	// Fee defaults to DefaultDeployFee
	Fee *big.Int
	// ReceiptPollInterval paces the confirmation watch; zero uses
	// chain.DefaultReceiptPollInterval
	ReceiptPollInterval time.Duration
}

// MintParams describes a mint. ERC-721 uses TokenID. ERC-1155 takes either
// ID and Amount or IDs and Amounts.
type MintParams struct {
	// To defaults to the connected wallet
	To      common.Address
	TokenID *big.Int

	ID      *big.Int
	Amount  *big.Int
	IDs     []*big.Int
	Amounts []*big.Int

	FeeReceivers []common.Address
	Fees         []*big.Int
	Signature    []byte
	// Value is the native amount sent with the mint
	Value *big.Int
}

// BuyOrderRequest describes a buy order to sign. Give the collection either
// as CollectionAddress or as Collection, and the payment either as MaxPayment
// in wei or as Price in ether.
type BuyOrderRequest struct {
	CollectionAddress string
	Collection        *Collection
	TokenID           *big.Int
	ValidBefore       *big.Int
	Amount            *big.Int
	MaxPayment        *big.Int
	Price             string
	Nonce             *big.Int
	// SkipCheck skips the balance check and WETH wrapping
	SkipCheck bool
}

// SellOrderRequest describes a sell order to sign. The payment is given
// either as MinReceive in wei or as Price in ether.
type SellOrderRequest struct {
	CollectionAddress string
	Collection        *Collection
	TokenID           *big.Int
	ValidBefore       *big.Int
	Amount            *big.Int
	MinReceive        *big.Int
	Price             string
	Nonce             *big.Int
	// SkipCheck skips the ownership or balance check
	SkipCheck bool
}

// SignedBuyOrder is a buy order with the buyer's signature
type SignedBuyOrder struct {
	chain.BuyOrder
	Signature hexutil.Bytes `json:"signature"`
}

// SignedSellOrder is a sell order with the seller's signature
type SignedSellOrder struct {
	chain.SellOrder
	Signature hexutil.Bytes `json:"signature"`
}

// ExecuteOrderRequest settles a match. At least one of BuyOrder and SellOrder
// is required; the missing side is filled in for the caller.
type ExecuteOrderRequest struct {
	BuyOrder        *SignedBuyOrder
	SellOrder       *SignedSellOrder
	IsERC721        bool
	IsWETH          bool
	Receivers       []common.Address
	Shares          []*big.Int
	ServerSignature []byte
}
