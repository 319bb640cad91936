package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ERC-165 interface ids probed during collection type detection
var (
	InterfaceIDERC721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	InterfaceIDERC1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
)

// ERC165 ABI JSON for supportsInterface
const erc165ABIJSON = `[
	{
		"inputs": [{"name": "interfaceId", "type": "bytes4"}],
		"name": "supportsInterface",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Deployer ABI JSON for the collection factory
const deployerABIJSON = `[
	{
		"inputs": [
			{"name": "salt", "type": "bytes32"},
			{"name": "name", "type": "string"},
			{"name": "symbol", "type": "string"},
			{"name": "royalty", "type": "uint96"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "createERC721",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "salt", "type": "bytes32"},
			{"name": "royalty", "type": "uint96"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "createERC1155",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// CollectionERC721 ABI JSON
const erc721ABIJSON = `[
	{
		"inputs": [{"name": "interfaceId", "type": "bytes4"}],
		"name": "supportsInterface",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "operator", "type": "address"},
			{"name": "approved", "type": "bool"}
		],
		"name": "setApprovalForAll",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"},
			{"name": "feeReceivers", "type": "address[]"},
			{"name": "fees", "type": "uint256[]"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "mint",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// CollectionERC1155 ABI JSON
const erc1155ABIJSON = `[
	{
		"inputs": [{"name": "interfaceId", "type": "bytes4"}],
		"name": "supportsInterface",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "account", "type": "address"},
			{"name": "id", "type": "uint256"}
		],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "operator", "type": "address"},
			{"name": "approved", "type": "bool"}
		],
		"name": "setApprovalForAll",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "id", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "feeReceivers", "type": "address[]"},
			{"name": "fees", "type": "uint256[]"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "mint",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "ids", "type": "uint256[]"},
			{"name": "amounts", "type": "uint256[]"},
			{"name": "feeReceivers", "type": "address[]"},
			{"name": "fees", "type": "uint256[]"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "mintBatch",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

const sellOrderComponents = `[
	{"name": "seller", "type": "address"},
	{"name": "validBefore", "type": "uint256"},
	{"name": "collection", "type": "address"},
	{"name": "tokenId", "type": "uint256"},
	{"name": "amount", "type": "uint256"},
	{"name": "minReceive", "type": "uint256"},
	{"name": "nonce", "type": "uint256"}
]`

const buyOrderComponents = `[
	{"name": "buyer", "type": "address"},
	{"name": "validBefore", "type": "uint256"},
	{"name": "collection", "type": "address"},
	{"name": "tokenId", "type": "uint256"},
	{"name": "amount", "type": "uint256"},
	{"name": "maxPayment", "type": "uint256"},
	{"name": "nonce", "type": "uint256"}
]`

// Marketplace ABI JSON
var marketplaceABIJSON = `[
	{
		"inputs": [],
		"name": "WETH",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"components": ` + sellOrderComponents + `, "name": "order", "type": "tuple"}],
		"name": "hashSellOrder",
		"outputs": [{"name": "", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"components": ` + buyOrderComponents + `, "name": "order", "type": "tuple"}],
		"name": "hashBuyOrder",
		"outputs": [{"name": "", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"components": ` + sellOrderComponents + `, "name": "sellOrder", "type": "tuple"},
			{"components": ` + buyOrderComponents + `, "name": "buyOrder", "type": "tuple"},
			{"name": "isERC721", "type": "bool"},
			{"name": "isWETH", "type": "bool"},
			{"name": "receivers", "type": "address[]"},
			{"name": "shares", "type": "uint256[]"},
			{"name": "signatures", "type": "bytes[]"}
		],
		"name": "executeOrder",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"name": "orderHash", "type": "bytes32"}],
		"name": "invalidateOrder",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// WETH ABI JSON for balance, allowance, approve and deposit
const wethABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [],
		"name": "deposit",
		"outputs": [],
		"payable": true,
		"stateMutability": "payable",
		"type": "function"
	}
]`

var (
	erc165ABI      = mustParseABI("ERC165", erc165ABIJSON)
	deployerABI    = mustParseABI("Deployer", deployerABIJSON)
	erc721ABI      = mustParseABI("CollectionERC721", erc721ABIJSON)
	erc1155ABI     = mustParseABI("CollectionERC1155", erc1155ABIJSON)
	marketplaceABI = mustParseABI("Marketplace", marketplaceABIJSON)
	wethABI        = mustParseABI("WETH", wethABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}

// GetERC165ABI returns the parsed ERC165 ABI
func GetERC165ABI() abi.ABI { return erc165ABI }

// GetDeployerABI returns the parsed Deployer ABI
func GetDeployerABI() abi.ABI { return deployerABI }

// GetERC721ABI returns the parsed CollectionERC721 ABI
func GetERC721ABI() abi.ABI { return erc721ABI }

// GetERC1155ABI returns the parsed CollectionERC1155 ABI
func GetERC1155ABI() abi.ABI { return erc1155ABI }

// GetMarketplaceABI returns the parsed Marketplace ABI
func GetMarketplaceABI() abi.ABI { return marketplaceABI }

// GetWETHABI returns the parsed WETH ABI
func GetWETHABI() abi.ABI { return wethABI }
