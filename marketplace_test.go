package netpute

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/netpute/netpute-sdk-go/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ether(s string) *big.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

// marketplaceEnv binds a marketplace whose WETH holds wrapped for the account
// and has allowed allowance to the marketplace
func marketplaceEnv(t *testing.T, wrapped, allowance *big.Int) (*testEnv, *Marketplace) {
	t.Helper()
	env := newTestEnv(t)
	env.chain.returns(marketplaceAddr, chain.GetMarketplaceABI(), "WETH", wethAddr)
	env.chain.returns(wethAddr, chain.GetWETHABI(), "balanceOf", wrapped)
	env.chain.returns(wethAddr, chain.GetWETHABI(), "allowance", allowance)
	return env, NewMarketplace(env.config, env.wallet)
}

func buyRequest(maxPayment *big.Int) BuyOrderRequest {
	return BuyOrderRequest{
		CollectionAddress: collectionAddr.Hex(),
		TokenID:           big.NewInt(1),
		ValidBefore:       big.NewInt(1_900_000_000),
		Amount:            big.NewInt(1),
		MaxPayment:        maxPayment,
		Nonce:             big.NewInt(77),
	}
}

func TestMarketplaceBindingErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	noAddress := NewConfig(WithDialer(env.chain.dialer()))
	require.NoError(t, noAddress.Init(ctx, InitOptions{RPC: testRPC}))
	_, err := NewMarketplace(noAddress, env.wallet).SignDomain(ctx)
	assert.ErrorIs(t, err, ErrAddressNotSet)
	assert.Equal(t, 400, ErrorCode(err))

	closed := NewConfig(WithDialer(env.chain.dialer()))
	require.NoError(t, closed.Init(ctx, InitOptions{RPC: testRPC, MarketplaceAddress: marketplaceAddr.Hex()}))
	closed.Close()
	_, err = NewMarketplace(closed, env.wallet).SignDomain(ctx)
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.Equal(t, 400, ErrorCode(err))

	_, err = NewMarketplace(env.config, NewWallet(nil)).SignDomain(ctx)
	assert.ErrorIs(t, err, ErrSignerNotFound)
	assert.Equal(t, 404, ErrorCode(err))
}

func TestMarketplaceSignDomain(t *testing.T) {
	env, m := marketplaceEnv(t, new(big.Int), new(big.Int))

	domain, err := m.SignDomain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chain.EIP712DomainName, domain.Name)
	assert.Equal(t, chain.EIP712DomainVersion, domain.Version)
	assert.Equal(t, marketplaceAddr.Hex(), domain.VerifyingContract)
	assert.Equal(t, int64(testChainID), (*big.Int)(domain.ChainId).Int64())

	_, err = m.SignDomain(context.Background())
	require.NoError(t, err)
	wethCalls := 0
	for _, call := range env.chain.calls {
		if *call.To == marketplaceAddr {
			wethCalls++
		}
	}
	assert.Equal(t, 1, wethCalls, "bindings are reused")
}

func TestSignBuyOrderInvalidInput(t *testing.T) {
	_, m := marketplaceEnv(t, new(big.Int), new(big.Int))
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *BuyOrderRequest)
	}{
		{"no collection", func(r *BuyOrderRequest) { r.CollectionAddress = "" }},
		{"zero token", func(r *BuyOrderRequest) { r.TokenID = new(big.Int) }},
		{"no valid before", func(r *BuyOrderRequest) { r.ValidBefore = nil }},
		{"no amount", func(r *BuyOrderRequest) { r.Amount = nil }},
		{"no nonce", func(r *BuyOrderRequest) { r.Nonce = nil }},
		{"no payment", func(r *BuyOrderRequest) { r.MaxPayment = nil }},
		{"bad price", func(r *BuyOrderRequest) { r.MaxPayment, r.Price = nil, "one" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := buyRequest(ether("1"))
			tt.mutate(&req)
			_, err := m.SignBuyOrder(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, 400, ErrorCode(err))
		})
	}
}

func TestSignBuyOrderInsufficientBalance(t *testing.T) {
	env, m := marketplaceEnv(t, ether("1"), new(big.Int))
	env.node.balance = ether("2")

	_, err := m.SignBuyOrder(context.Background(), buyRequest(ether("3.5")))

	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 402, ErrorCode(err))
	assert.Empty(t, env.node.transactions())
}

func TestSignBuyOrderWrapsAndApproves(t *testing.T) {
	env, m := marketplaceEnv(t, ether("1"), new(big.Int))
	env.node.balance = ether("5")
	ctx := context.Background()

	order, err := m.SignBuyOrder(ctx, buyRequest(ether("3")))
	require.NoError(t, err)

	sent := env.node.transactions()
	require.Len(t, sent, 2)

	name, _ := decodeTx(t, chain.GetWETHABI(), sent[0])
	assert.Equal(t, "deposit", name)
	assert.Equal(t, ether("2"), sent[0].Value())
	assert.Equal(t, wethAddr, *sent[0].To())

	name, args := decodeTx(t, chain.GetWETHABI(), sent[1])
	assert.Equal(t, "approve", name)
	assert.Equal(t, marketplaceAddr, args[0])
	assert.Equal(t, ether("3"), args[1])

	req := buyRequest(ether("3"))
	assert.Equal(t, chain.BuyOrder{
		Buyer:       env.account,
		ValidBefore: req.ValidBefore,
		Collection:  collectionAddr,
		TokenId:     req.TokenID,
		Amount:      req.Amount,
		MaxPayment:  req.MaxPayment,
		Nonce:       req.Nonce,
	}, order.BuyOrder)

	domain, err := m.SignDomain(ctx)
	require.NoError(t, err)
	signer, err := chain.RecoverSigner(chain.BuyOrderTypedData(domain, order.BuyOrder), order.Signature)
	require.NoError(t, err)
	assert.Equal(t, env.account, signer)
}

func TestSignBuyOrderSkipCheckWithPrice(t *testing.T) {
	env, m := marketplaceEnv(t, new(big.Int), ether("10"))

	req := buyRequest(nil)
	req.Price = "0.25"
	req.SkipCheck = true
	order, err := m.SignBuyOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ether("0.25"), order.MaxPayment)
	assert.Empty(t, env.node.transactions())
}

func TestSignBuyOrderWalletBalanceFailure(t *testing.T) {
	env, _ := marketplaceEnv(t, new(big.Int), new(big.Int))
	w, p := connectedScripted(t, env.account, "0x539")
	p.reply("eth_getBalance", nil, errors.New("node unavailable"))
	m := NewMarketplace(env.config, w)

	_, err := m.SignBuyOrder(context.Background(), buyRequest(ether("1")))

	var merr *MarketplaceError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 500, merr.Code)
	assert.ErrorIs(t, err, ErrWalletUnknown)
	assert.NotContains(t, p.requested(), "eth_signTypedData_v4")
}

func sellRequest(coll *Collection) SellOrderRequest {
	return SellOrderRequest{
		Collection:  coll,
		TokenID:     big.NewInt(1),
		ValidBefore: big.NewInt(1_900_000_000),
		Amount:      big.NewInt(2),
		MinReceive:  ether("0.1"),
		Nonce:       big.NewInt(5),
	}
}

func TestSignSellOrderERC721(t *testing.T) {
	env, m := marketplaceEnv(t, new(big.Int), new(big.Int))
	ctx := context.Background()
	owner := alice
	env.chain.handle(collectionAddr, chain.GetERC721ABI(), "ownerOf", func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
		return []interface{}{owner}, nil
	})
	env.chain.returns(collectionAddr, chain.GetERC721ABI(), "isApprovedForAll", false)

	coll, err := NewCollection(ctx, env.config, env.wallet, collectionAddr.Hex(), CollectionTypeERC721)
	require.NoError(t, err)

	_, err = m.SignSellOrder(ctx, sellRequest(coll))
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, 402, ErrorCode(err))
	assert.Empty(t, env.node.transactions())

	owner = env.account
	order, err := m.SignSellOrder(ctx, sellRequest(coll))
	require.NoError(t, err)

	sent := env.node.transactions()
	require.Len(t, sent, 1)
	name, args := decodeTx(t, chain.GetERC721ABI(), sent[0])
	assert.Equal(t, "setApprovalForAll", name)
	assert.Equal(t, []interface{}{marketplaceAddr, true}, args)

	req := sellRequest(coll)
	assert.Equal(t, chain.SellOrder{
		Seller:      env.account,
		ValidBefore: req.ValidBefore,
		Collection:  collectionAddr,
		TokenId:     req.TokenID,
		Amount:      req.Amount,
		MinReceive:  req.MinReceive,
		Nonce:       req.Nonce,
	}, order.SellOrder)

	domain, err := m.SignDomain(ctx)
	require.NoError(t, err)
	signer, err := chain.RecoverSigner(chain.SellOrderTypedData(domain, order.SellOrder), order.Signature)
	require.NoError(t, err)
	assert.Equal(t, env.account, signer)
}

func TestSignSellOrderERC1155ByAddress(t *testing.T) {
	env, m := marketplaceEnv(t, new(big.Int), new(big.Int))
	ctx := context.Background()
	probes(env.chain, collectionAddr, chain.InterfaceIDERC1155)
	var held int64 = 1
	env.chain.handle(collectionAddr, chain.GetERC1155ABI(), "balanceOf", func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(held)}, nil
	})
	env.chain.returns(collectionAddr, chain.GetERC1155ABI(), "isApprovedForAll", true)

	req := sellRequest(nil)
	req.CollectionAddress = collectionAddr.Hex()

	_, err := m.SignSellOrder(ctx, req)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 402, ErrorCode(err))

	held = 2
	order, err := m.SignSellOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, env.account, order.Seller)
	assert.Empty(t, env.node.transactions(), "already approved")
}

func TestBuildMatch(t *testing.T) {
	caller := bob
	buy := &SignedBuyOrder{
		BuyOrder: chain.BuyOrder{
			Buyer:       alice,
			ValidBefore: big.NewInt(100),
			Collection:  collectionAddr,
			TokenId:     big.NewInt(3),
			Amount:      big.NewInt(1),
			MaxPayment:  ether("1"),
			Nonce:       big.NewInt(8),
		},
		Signature: []byte{0xb1},
	}
	sell := &SignedSellOrder{
		SellOrder: chain.SellOrder{
			Seller:      alice,
			ValidBefore: big.NewInt(100),
			Collection:  collectionAddr,
			TokenId:     big.NewInt(3),
			Amount:      big.NewInt(1),
			MinReceive:  ether("0.5"),
			Nonce:       big.NewInt(9),
		},
		Signature: []byte{0x51},
	}
	shares := []*big.Int{ether("0.9"), ether("0.1")}
	receivers := []common.Address{alice, deployerAddr}

	t.Run("missing both", func(t *testing.T) {
		_, err := buildMatch(ExecuteOrderRequest{}, caller)
		assert.ErrorIs(t, err, ErrMissingOrder)
	})

	t.Run("receivers and shares differ", func(t *testing.T) {
		_, err := buildMatch(ExecuteOrderRequest{BuyOrder: buy, Receivers: receivers}, caller)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("sell side synthesized", func(t *testing.T) {
		m, err := buildMatch(ExecuteOrderRequest{BuyOrder: buy, Receivers: receivers, Shares: shares, ServerSignature: []byte{0x5e}}, caller)
		require.NoError(t, err)

		assert.Equal(t, caller, m.sell.Seller)
		assert.Zero(t, m.sell.MinReceive.Sign())
		assert.Equal(t, buy.TokenId, m.sell.TokenId)
		assert.True(t, m.isWETH)
		assert.Nil(t, m.value)
		assert.Equal(t, [][]byte{{}, {0xb1}, {0x5e}}, m.signatures)
	})

	t.Run("buy side synthesized", func(t *testing.T) {
		m, err := buildMatch(ExecuteOrderRequest{SellOrder: sell, Receivers: receivers, Shares: shares}, caller)
		require.NoError(t, err)

		assert.Equal(t, caller, m.buy.Buyer)
		assert.Equal(t, chain.MaxUint256, m.buy.MaxPayment)
		assert.Equal(t, sell.TokenId, m.buy.TokenId)
		assert.True(t, m.isWETH)
		assert.Nil(t, m.value)
		assert.Equal(t, [][]byte{{0x51}, {}, {}}, m.signatures)
	})

	t.Run("both sides paid natively", func(t *testing.T) {
		m, err := buildMatch(ExecuteOrderRequest{BuyOrder: buy, SellOrder: sell, Receivers: receivers, Shares: shares}, caller)
		require.NoError(t, err)

		assert.False(t, m.isWETH)
		assert.Equal(t, ether("1"), m.value)
	})

	t.Run("both sides", func(t *testing.T) {
		m, err := buildMatch(ExecuteOrderRequest{BuyOrder: buy, SellOrder: sell, IsWETH: true}, caller)
		require.NoError(t, err)

		assert.Equal(t, alice, m.buy.Buyer)
		assert.Equal(t, alice, m.sell.Seller)
		assert.True(t, m.isWETH)
		assert.Nil(t, m.value)
		assert.Equal(t, [][]byte{{0x51}, {0xb1}, {}}, m.signatures)
	})
}

func TestExecuteOrder(t *testing.T) {
	env, m := marketplaceEnv(t, new(big.Int), new(big.Int))
	ctx := context.Background()

	_, err := m.ExecuteOrder(ctx, ExecuteOrderRequest{})
	assert.ErrorIs(t, err, ErrMissingOrder)
	assert.Equal(t, 400, ErrorCode(err))

	sell := &SignedSellOrder{
		SellOrder: chain.SellOrder{
			Seller:      alice,
			ValidBefore: big.NewInt(100),
			Collection:  collectionAddr,
			TokenId:     big.NewInt(3),
			Amount:      big.NewInt(1),
			MinReceive:  ether("0.5"),
			Nonce:       big.NewInt(9),
		},
		Signature: []byte{0x51},
	}
	tx, err := m.ExecuteOrder(ctx, ExecuteOrderRequest{
		SellOrder:       sell,
		IsERC721:        true,
		Receivers:       []common.Address{alice},
		Shares:          []*big.Int{ether("0.6")},
		ServerSignature: []byte{0x5e},
	})
	require.NoError(t, err)

	sent := env.node.transactions()
	require.Len(t, sent, 1)
	assert.Equal(t, tx.Hash, sent[0].Hash())
	assert.Equal(t, marketplaceAddr, *sent[0].To())
	assert.Zero(t, sent[0].Value().Sign())

	name, args := decodeTx(t, chain.GetMarketplaceABI(), sent[0])
	assert.Equal(t, "executeOrder", name)
	buy := abi.ConvertType(args[1], new(chain.BuyOrder)).(*chain.BuyOrder)
	assert.Equal(t, env.account, buy.Buyer)
	assert.Equal(t, chain.MaxUint256, buy.MaxPayment)
	assert.Equal(t, true, args[2])
	assert.Equal(t, true, args[3])
	assert.Equal(t, [][]byte{{0x51}, {}, {0x5e}}, args[6])

	_, err = m.ExecuteOrder(ctx, ExecuteOrderRequest{SellOrder: sell, Receivers: []common.Address{alice}})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, env.node.transactions(), 1)
}

func TestMarkAsInvalid(t *testing.T) {
	env, m := marketplaceEnv(t, new(big.Int), new(big.Int))
	ctx := context.Background()
	digest := [32]byte{0xfe, 0xed}
	env.chain.returns(marketplaceAddr, chain.GetMarketplaceABI(), "hashBuyOrder", digest)

	buy := &chain.BuyOrder{Buyer: env.account, TokenId: big.NewInt(1), Nonce: big.NewInt(2)}
	sell := &chain.SellOrder{Seller: env.account}

	_, err := m.MarkAsInvalid(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrExactlyOneOrder)
	assert.Equal(t, 400, ErrorCode(err))

	_, err = m.MarkAsInvalid(ctx, buy, sell)
	assert.ErrorIs(t, err, ErrExactlyOneOrder)

	_, err = m.MarkAsInvalid(ctx, buy, nil)
	require.NoError(t, err)

	sent := env.node.transactions()
	require.Len(t, sent, 1)
	name, args := decodeTx(t, chain.GetMarketplaceABI(), sent[0])
	assert.Equal(t, "invalidateOrder", name)
	assert.Equal(t, digest, args[0])
}
