package netpute

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/netpute/netpute-sdk-go/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingProvider struct {
	*scriptedProvider
	closed bool
}

func (p *closingProvider) Close() error {
	p.closed = true
	return nil
}

func newTestClient(t *testing.T, fc *fakeChain, provider Provider) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), ClientConfig{
		RPCURL:             testRPC,
		DeployerAddress:    deployerAddr.Hex(),
		MarketplaceAddress: marketplaceAddr.Hex(),
		Provider:           provider,
		Dialer:             fc.dialer(),
	})
	require.NoError(t, err)
	return c
}

func TestNewClientConfigError(t *testing.T) {
	_, err := NewClient(context.Background(), ClientConfig{RPCURL: "http://rpc.netpute.test"})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
	assert.Contains(t, err.Error(), "failed to initialize config")
}

func TestClientConnect(t *testing.T) {
	p := newScriptedProvider()
	p.reply("eth_requestAccounts", []string{alice.Hex()}, nil)
	p.reply("eth_chainId", "0x539", nil)
	c := newTestClient(t, newFakeChain(), p)

	addr, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, alice, addr)
	assert.Equal(t, testChainID, c.Wallet().Network())

	market, ok := c.Config().MarketplaceAddress()
	assert.True(t, ok)
	assert.Equal(t, marketplaceAddr, market)
	assert.NotNil(t, c.Marketplace())
}

func TestClientCollectionCache(t *testing.T) {
	fc := newFakeChain()
	probes(fc, collectionAddr, chain.InterfaceIDERC721)
	c := newTestClient(t, fc, nil)
	ctx := context.Background()

	first, err := c.Collection(ctx, collectionAddr.Hex(), CollectionTypeUnknown)
	require.NoError(t, err)
	require.NoError(t, waitCollection(t, first))

	again, err := c.Collection(ctx, strings.ToLower(collectionAddr.Hex()), CollectionTypeUnknown)
	require.NoError(t, err)
	assert.Same(t, first, again)

	typed, err := c.Collection(ctx, collectionAddr.Hex(), CollectionTypeERC721)
	require.NoError(t, err)
	assert.NotSame(t, first, typed)

	c.collectionCacheTTL = time.Nanosecond
	time.Sleep(time.Millisecond)
	expired, err := c.Collection(ctx, collectionAddr.Hex(), CollectionTypeUnknown)
	require.NoError(t, err)
	assert.NotSame(t, first, expired)
}

func TestClientCollectionOutlivesRequestContext(t *testing.T) {
	fc := newFakeChain()
	probes(fc, collectionAddr, chain.InterfaceIDERC1155)
	c := newTestClient(t, fc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	coll, err := c.Collection(ctx, collectionAddr.Hex(), CollectionTypeUnknown)
	require.NoError(t, err)

	require.NoError(t, waitCollection(t, coll))
	assert.Equal(t, CollectionTypeERC1155, coll.Type())

	again, err := c.Collection(context.Background(), collectionAddr.Hex(), CollectionTypeUnknown)
	require.NoError(t, err)
	assert.Same(t, coll, again)
}

func TestClientCollectionFailedDetectionNotReused(t *testing.T) {
	fc := newFakeChain()
	c := newTestClient(t, fc, nil)
	ctx := context.Background()

	first, err := c.Collection(ctx, collectionAddr.Hex(), CollectionTypeUnknown)
	require.NoError(t, err)
	assert.ErrorIs(t, waitCollection(t, first), ErrNotANFT)

	again, err := c.Collection(ctx, collectionAddr.Hex(), CollectionTypeUnknown)
	require.NoError(t, err)
	assert.NotSame(t, first, again)
}

func TestClientClose(t *testing.T) {
	fc := newFakeChain()
	p := &closingProvider{scriptedProvider: newScriptedProvider()}
	p.reply("eth_requestAccounts", []string{alice.Hex()}, nil)
	p.reply("eth_chainId", "0x1", nil)
	c := newTestClient(t, fc, p)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	c.Close()

	assert.True(t, p.closed)
	assert.True(t, fc.isClosed())
	assert.False(t, c.Wallet().Connected())
	assert.Nil(t, c.Config().Backend())
}
