package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712 Domain constants of the Netpute marketplace
const (
	EIP712DomainName    = "NetputeMarketplace"
	EIP712DomainVersion = "1"
)

// Primary type names
const (
	PrimaryTypeSellOrder = "SellOrder"
	PrimaryTypeBuyOrder  = "BuyOrder"
)

// Pre-computed type hashes using keccak256
var (
	// SellOrder(address seller,uint256 validBefore,address collection,uint256 tokenId,uint256 amount,uint256 minReceive,uint256 nonce)
	SellOrderTypeHash = crypto.Keccak256Hash([]byte(
		"SellOrder(address seller,uint256 validBefore,address collection,uint256 tokenId,uint256 amount,uint256 minReceive,uint256 nonce)",
	))

	// BuyOrder(address buyer,uint256 validBefore,address collection,uint256 tokenId,uint256 amount,uint256 maxPayment,uint256 nonce)
	BuyOrderTypeHash = crypto.Keccak256Hash([]byte(
		"BuyOrder(address buyer,uint256 validBefore,address collection,uint256 tokenId,uint256 amount,uint256 maxPayment,uint256 nonce)",
	))
)

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// OrderTypes are the EIP-712 message types. Field order is part of the
// signature and must not change.
var OrderTypes = apitypes.Types{
	PrimaryTypeSellOrder: {
		{Name: "seller", Type: "address"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "collection", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
		{Name: "minReceive", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	PrimaryTypeBuyOrder: {
		{Name: "buyer", Type: "address"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "collection", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
		{Name: "maxPayment", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// SellOrder is the seller's side of a trade. Field names match the
// marketplace tuple components.
type SellOrder struct {
	Seller      common.Address `abi:"seller" json:"seller"`
	ValidBefore *big.Int       `abi:"validBefore" json:"validBefore"`
	Collection  common.Address `abi:"collection" json:"collection"`
	TokenId     *big.Int       `abi:"tokenId" json:"tokenId"`
	Amount      *big.Int       `abi:"amount" json:"amount"`
	MinReceive  *big.Int       `abi:"minReceive" json:"minReceive"`
	Nonce       *big.Int       `abi:"nonce" json:"nonce"`
}

// BuyOrder is the buyer's side of a trade
type BuyOrder struct {
	Buyer       common.Address `abi:"buyer" json:"buyer"`
	ValidBefore *big.Int       `abi:"validBefore" json:"validBefore"`
	Collection  common.Address `abi:"collection" json:"collection"`
	TokenId     *big.Int       `abi:"tokenId" json:"tokenId"`
	Amount      *big.Int       `abi:"amount" json:"amount"`
	MaxPayment  *big.Int       `abi:"maxPayment" json:"maxPayment"`
	Nonce       *big.Int       `abi:"nonce" json:"nonce"`
}

// Message returns the typed-data message. uint256 values are decimal strings
// so they survive JSON without float rounding.
func (o SellOrder) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"seller":      o.Seller.Hex(),
		"validBefore": decimalString(o.ValidBefore),
		"collection":  o.Collection.Hex(),
		"tokenId":     decimalString(o.TokenId),
		"amount":      decimalString(o.Amount),
		"minReceive":  decimalString(o.MinReceive),
		"nonce":       decimalString(o.Nonce),
	}
}

// Message returns the typed-data message
func (o BuyOrder) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"buyer":       o.Buyer.Hex(),
		"validBefore": decimalString(o.ValidBefore),
		"collection":  o.Collection.Hex(),
		"tokenId":     decimalString(o.TokenId),
		"amount":      decimalString(o.Amount),
		"maxPayment":  decimalString(o.MaxPayment),
		"nonce":       decimalString(o.Nonce),
	}
}

func (o SellOrder) normalized() SellOrder {
	o.ValidBefore = orZero(o.ValidBefore)
	o.TokenId = orZero(o.TokenId)
	o.Amount = orZero(o.Amount)
	o.MinReceive = orZero(o.MinReceive)
	o.Nonce = orZero(o.Nonce)
	return o
}

func (o BuyOrder) normalized() BuyOrder {
	o.ValidBefore = orZero(o.ValidBefore)
	o.TokenId = orZero(o.TokenId)
	o.Amount = orZero(o.Amount)
	o.MaxPayment = orZero(o.MaxPayment)
	o.Nonce = orZero(o.Nonce)
	return o
}

// NewDomain returns the marketplace signing domain on chainID
func NewDomain(chainID *big.Int, verifyingContract common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(orZero(chainID))),
		VerifyingContract: verifyingContract.Hex(),
	}
}

// SellOrderTypedData assembles the typed data a seller signs
func SellOrderTypedData(domain apitypes.TypedDataDomain, order SellOrder) apitypes.TypedData {
	return newTypedData(domain, PrimaryTypeSellOrder, order.Message())
}

// BuyOrderTypedData assembles the typed data a buyer signs
func BuyOrderTypedData(domain apitypes.TypedDataDomain, order BuyOrder) apitypes.TypedData {
	return newTypedData(domain, PrimaryTypeBuyOrder, order.Message())
}

func newTypedData(domain apitypes.TypedDataDomain, primaryType string, message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			primaryType:    OrderTypes[primaryType],
		},
		PrimaryType: primaryType,
		Domain:      domain,
		Message:     message,
	}
}

// HashTypedData returns the EIP-712 digest of td
func HashTypedData(td apitypes.TypedData) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// RecoverSigner returns the address that produced signature over td
func RecoverSigner(td apitypes.TypedData, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes", ErrInvalidArgument, crypto.SignatureLength)
	}

	digest, err := HashTypedData(td)
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func decimalString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
