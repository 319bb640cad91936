package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// MaxUint256 is the payment ceiling of a synthesized buy order
var MaxUint256 = new(big.Int).Set(math.MaxBig256)

// UnsignedSignature marks the side of a match the caller synthesized
var UnsignedSignature = []byte{}

// SignTypedData signs td with key. The recovery id is shifted to 27/28.
func SignTypedData(td apitypes.TypedData, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := HashTypedData(td)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27
	return signature, nil
}

// CounterSellOrder builds the sell side that fills buy for seller. It asks for
// nothing in return so any payment up to buy.MaxPayment settles it.
func CounterSellOrder(buy BuyOrder, seller common.Address) SellOrder {
	return SellOrder{
		Seller:      seller,
		ValidBefore: clone(buy.ValidBefore),
		Collection:  buy.Collection,
		TokenId:     clone(buy.TokenId),
		Amount:      clone(buy.Amount),
		MinReceive:  new(big.Int),
		Nonce:       clone(buy.Nonce),
	}
}

// CounterBuyOrder builds the buy side that fills sell for buyer with an
// unbounded payment ceiling.
func CounterBuyOrder(sell SellOrder, buyer common.Address) BuyOrder {
	return BuyOrder{
		Buyer:       buyer,
		ValidBefore: clone(sell.ValidBefore),
		Collection:  sell.Collection,
		TokenId:     clone(sell.TokenId),
		Amount:      clone(sell.Amount),
		MaxPayment:  new(big.Int).Set(MaxUint256),
		Nonce:       clone(sell.Nonce),
	}
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
