// Package contracts holds the call interfaces of the already deployed
// contracts this module talks to: the ERC-4337 EntryPoint v0.7, the smart
// account and its factory, and the batch token factory.
package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const smartAccountFactoryABI = `[
  {
    "type": "function",
    "name": "createAccount",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "owner", "type": "address"},
      {"name": "salt", "type": "uint256"}
    ],
    "outputs": [{"name": "", "type": "address"}]
  },
  {
    "type": "function",
    "name": "getAddress",
    "stateMutability": "view",
    "inputs": [
      {"name": "owner", "type": "address"},
      {"name": "salt", "type": "uint256"}
    ],
    "outputs": [{"name": "", "type": "address"}]
  }
]`

const smartAccountABI = `[
  {
    "type": "function",
    "name": "nonce",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "owner",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "address"}]
  },
  {
    "type": "function",
    "name": "execute",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "target", "type": "address"},
      {"name": "value", "type": "uint256"},
      {"name": "data", "type": "bytes"}
    ],
    "outputs": []
  }
]`

const batchTokenFactoryABI = `[
  {
    "type": "function",
    "name": "batchDeployTokens",
    "stateMutability": "nonpayable",
    "inputs": [
      {
        "name": "params",
        "type": "tuple[]",
        "internalType": "struct BatchTokenFactory.TokenParams[]",
        "components": [
          {"name": "name", "type": "string"},
          {"name": "symbol", "type": "string"},
          {"name": "initialSupply", "type": "uint256"}
        ]
      }
    ],
    "outputs": [{"name": "tokens", "type": "address[]"}]
  },
  {
    "type": "event",
    "name": "TokenDeployed",
    "anonymous": false,
    "inputs": [
      {"name": "token", "type": "address", "indexed": true},
      {"name": "owner", "type": "address", "indexed": true},
      {"name": "name", "type": "string", "indexed": false},
      {"name": "symbol", "type": "string", "indexed": false},
      {"name": "initialSupply", "type": "uint256", "indexed": false}
    ]
  }
]`

const entryPointABI = `[
  {
    "type": "function",
    "name": "handleOps",
    "stateMutability": "nonpayable",
    "inputs": [
      {
        "name": "ops",
        "type": "tuple[]",
        "internalType": "struct PackedUserOperation[]",
        "components": [
          {"name": "sender", "type": "address"},
          {"name": "nonce", "type": "uint256"},
          {"name": "initCode", "type": "bytes"},
          {"name": "callData", "type": "bytes"},
          {"name": "accountGasLimits", "type": "bytes32"},
          {"name": "preVerificationGas", "type": "uint256"},
          {"name": "gasFees", "type": "bytes32"},
          {"name": "paymasterAndData", "type": "bytes"},
          {"name": "signature", "type": "bytes"}
        ]
      },
      {"name": "beneficiary", "type": "address", "internalType": "address payable"}
    ],
    "outputs": []
  },
  {
    "type": "event",
    "name": "UserOperationEvent",
    "anonymous": false,
    "inputs": [
      {"name": "userOpHash", "type": "bytes32", "indexed": true},
      {"name": "sender", "type": "address", "indexed": true},
      {"name": "paymaster", "type": "address", "indexed": true},
      {"name": "nonce", "type": "uint256", "indexed": false},
      {"name": "success", "type": "bool", "indexed": false},
      {"name": "actualGasCost", "type": "uint256", "indexed": false},
      {"name": "actualGasUsed", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "UserOperationRevertReason",
    "anonymous": false,
    "inputs": [
      {"name": "userOpHash", "type": "bytes32", "indexed": true},
      {"name": "sender", "type": "address", "indexed": true},
      {"name": "nonce", "type": "uint256", "indexed": false},
      {"name": "revertReason", "type": "bytes", "indexed": false}
    ]
  },
  {
    "type": "error",
    "name": "FailedOp",
    "inputs": [
      {"name": "opIndex", "type": "uint256"},
      {"name": "reason", "type": "string"}
    ]
  },
  {
    "type": "error",
    "name": "FailedOpWithRevert",
    "inputs": [
      {"name": "opIndex", "type": "uint256"},
      {"name": "reason", "type": "string"},
      {"name": "inner", "type": "bytes"}
    ]
  }
]`

var (
	SmartAccountFactory = mustParse(smartAccountFactoryABI)
	SmartAccount        = mustParse(smartAccountABI)
	BatchTokenFactory   = mustParse(batchTokenFactoryABI)
	EntryPoint          = mustParse(entryPointABI)
)

// AccountSalt is the CREATE2 salt passed to the account factory. One account
// per owner.
var AccountSalt = big.NewInt(0)

// TokenParams is one element of the batchDeployTokens tuple array. Field names
// follow the ABI component names.
type TokenParams struct {
	Name          string
	Symbol        string
	InitialSupply *big.Int
}

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
