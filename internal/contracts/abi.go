// Package contracts holds the ABI fragments the SDK packs calldata against.
package contracts

// TransactionManagerABI covers the three protocol operations plus the router
// liquidity view. The invariant tuple layout must match the canonical bid
// encoding side of the protocol.
const TransactionManagerABI = `[
  {
    "type": "function",
    "name": "prepare",
    "stateMutability": "payable",
    "inputs": [
      {
        "name": "invariantData",
        "type": "tuple",
        "components": [
          {"name": "receivingChainTxManagerAddress", "type": "address"},
          {"name": "user", "type": "address"},
          {"name": "router", "type": "address"},
          {"name": "initiator", "type": "address"},
          {"name": "sendingAssetId", "type": "address"},
          {"name": "receivingAssetId", "type": "address"},
          {"name": "sendingChainFallback", "type": "address"},
          {"name": "callTo", "type": "address"},
          {"name": "receivingAddress", "type": "address"},
          {"name": "sendingChainId", "type": "uint256"},
          {"name": "receivingChainId", "type": "uint256"},
          {"name": "callDataHash", "type": "bytes32"},
          {"name": "transactionId", "type": "bytes32"}
        ]
      },
      {"name": "amount", "type": "uint256"},
      {"name": "expiry", "type": "uint256"},
      {"name": "encryptedCallData", "type": "bytes"},
      {"name": "encodedBid", "type": "bytes"},
      {"name": "bidSignature", "type": "bytes"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "fulfill",
    "stateMutability": "nonpayable",
    "inputs": [
      {
        "name": "txData",
        "type": "tuple",
        "components": [
          {"name": "receivingChainTxManagerAddress", "type": "address"},
          {"name": "user", "type": "address"},
          {"name": "router", "type": "address"},
          {"name": "initiator", "type": "address"},
          {"name": "sendingAssetId", "type": "address"},
          {"name": "receivingAssetId", "type": "address"},
          {"name": "sendingChainFallback", "type": "address"},
          {"name": "callTo", "type": "address"},
          {"name": "receivingAddress", "type": "address"},
          {"name": "sendingChainId", "type": "uint256"},
          {"name": "receivingChainId", "type": "uint256"},
          {"name": "callDataHash", "type": "bytes32"},
          {"name": "transactionId", "type": "bytes32"},
          {"name": "amount", "type": "uint256"},
          {"name": "expiry", "type": "uint256"},
          {"name": "preparedBlockNumber", "type": "uint256"}
        ]
      },
      {"name": "relayerFee", "type": "uint256"},
      {"name": "signature", "type": "bytes"},
      {"name": "callData", "type": "bytes"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "cancel",
    "stateMutability": "nonpayable",
    "inputs": [
      {
        "name": "txData",
        "type": "tuple",
        "components": [
          {"name": "receivingChainTxManagerAddress", "type": "address"},
          {"name": "user", "type": "address"},
          {"name": "router", "type": "address"},
          {"name": "initiator", "type": "address"},
          {"name": "sendingAssetId", "type": "address"},
          {"name": "receivingAssetId", "type": "address"},
          {"name": "sendingChainFallback", "type": "address"},
          {"name": "callTo", "type": "address"},
          {"name": "receivingAddress", "type": "address"},
          {"name": "sendingChainId", "type": "uint256"},
          {"name": "receivingChainId", "type": "uint256"},
          {"name": "callDataHash", "type": "bytes32"},
          {"name": "transactionId", "type": "bytes32"},
          {"name": "amount", "type": "uint256"},
          {"name": "expiry", "type": "uint256"},
          {"name": "preparedBlockNumber", "type": "uint256"}
        ]
      },
      {"name": "signature", "type": "bytes"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "routerBalances",
    "stateMutability": "view",
    "inputs": [
      {"name": "router", "type": "address"},
      {"name": "assetId", "type": "address"}
    ],
    "outputs": [
      {"name": "", "type": "uint256"}
    ]
  }
]`

// ERC20ABI is the minimal allowance surface the approval helper needs.
const ERC20ABI = `[
  {
    "type": "function",
    "name": "allowance",
    "stateMutability": "view",
    "inputs": [
      {"name": "owner", "type": "address"},
      {"name": "spender", "type": "address"}
    ],
    "outputs": [
      {"name": "", "type": "uint256"}
    ]
  },
  {
    "type": "function",
    "name": "approve",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "spender", "type": "address"},
      {"name": "amount", "type": "uint256"}
    ],
    "outputs": [
      {"name": "", "type": "bool"}
    ]
  }
]`

// PriceOracleABI reads USD-denominated token prices; address zero is the
// chain's native asset.
const PriceOracleABI = `[
  {
    "type": "function",
    "name": "getTokenPrice",
    "stateMutability": "view",
    "inputs": [
      {"name": "token", "type": "address"}
    ],
    "outputs": [
      {"name": "", "type": "uint256"}
    ]
  }
]`
