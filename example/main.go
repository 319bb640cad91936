// Example usage of the Netpute SDK Go
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"
	netpute "github.com/netpute/netpute-sdk-go"
)

func main() {
	gethlog.SetDefault(gethlog.NewLogger(gethlog.NewTerminalHandlerWithLevel(os.Stderr, gethlog.LevelInfo, true)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// NETPUTE_RPC_URL, NETPUTE_DEPLOYER_ADDRESS and NETPUTE_MARKETPLACE_ADDRESS
	// are read from the environment or a .env file
	opts, err := netpute.InitOptionsFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	provider, err := newProvider(ctx, opts.RPC)
	if err != nil {
		log.Fatalf("Failed to create wallet provider: %v", err)
	}

	client, err := netpute.NewClient(ctx, netpute.ClientConfig{
		RPCURL:             opts.RPC,
		DeployerAddress:    opts.DeployerAddress,
		MarketplaceAddress: opts.MarketplaceAddress,
		Provider:           provider,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	// Example: Connect the wallet
	fmt.Println("Connecting wallet...")
	address, err := client.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect wallet: %v", err)
	}
	fmt.Printf("Connected %s on chain %d\n", address.Hex(), client.Wallet().Network())

	// Example: Native balance
	balance, err := client.Wallet().BalanceOf(ctx, address.Hex(), netpute.DefaultSkipChecksum)
	if err != nil {
		log.Printf("Failed to get balance: %v", err)
	} else {
		fmt.Printf("Balance: %s\n", netpute.FormatEther(balance))
	}

	collectionAddr := os.Getenv("NETPUTE_COLLECTION_ADDRESS")
	if collectionAddr == "" {
		fmt.Println("Set NETPUTE_COLLECTION_ADDRESS to try the collection and marketplace calls")
		return
	}

	// Example: Detect a collection
	fmt.Println("\nDetecting collection type...")
	collection, err := client.Collection(ctx, collectionAddr, netpute.CollectionTypeUnknown)
	if err != nil {
		log.Fatalf("Failed to bind collection: %v", err)
	}
	if err := collection.Wait(ctx); err != nil {
		log.Fatalf("Failed to detect collection: %v", err)
	}
	fmt.Printf("Collection %s is %s\n", collection.Address().Hex(), collection.Type())

	// Example: Sign a sell order for token 1, valid for a day
	fmt.Println("\nSigning sell order...")
	order, err := client.Marketplace().SignSellOrder(ctx, netpute.SellOrderRequest{
		Collection:  collection,
		TokenID:     big.NewInt(1),
		ValidBefore: big.NewInt(time.Now().Add(24 * time.Hour).Unix()),
		Amount:      big.NewInt(1),
		Price:       "0.01",
		Nonce:       big.NewInt(time.Now().UnixNano()),
	})
	if err != nil {
		log.Printf("Failed to sign sell order: %v", err)
	} else {
		fmt.Printf("Sell order: %+v\nSignature: %s\n", order.SellOrder, order.Signature)
	}
}

// newProvider relays to a browser wallet when NETPUTE_BRIDGE_URL is set and
// otherwise signs locally with NETPUTE_PRIVATE_KEY
func newProvider(ctx context.Context, rpcURL string) (netpute.Provider, error) {
	if bridgeURL := os.Getenv("NETPUTE_BRIDGE_URL"); bridgeURL != "" {
		bridge := netpute.NewBridgeProvider(netpute.BridgeConfig{
			Endpoint: bridgeURL,
			Session:  os.Getenv("NETPUTE_BRIDGE_SESSION"),
		})
		if err := bridge.Connect(ctx); err != nil {
			return nil, err
		}
		return bridge, nil
	}

	key := os.Getenv("NETPUTE_PRIVATE_KEY")
	if key == "" {
		return nil, fmt.Errorf("missing required config: [NETPUTE_PRIVATE_KEY]")
	}
	return netpute.DialKeyProvider(ctx, key, rpcURL)
}
