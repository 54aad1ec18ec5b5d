package order

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/flash/pkg/crypto"
)

// Event signatures: keccak256 of the canonical event text, i.e. topic 0.
var (
	AssetReceiveEventSig   = eventSig("AssetReceive(bytes32)")
	AssetSendEventSig      = eventSig("AssetSend(bytes32)")
	AssetLiqSendEventSig   = eventSig("AssetLiqSend(bytes32,bytes32,address)")
	AssetNoSendEventSig    = eventSig("AssetNoSend(bytes32,bytes32,address)")
	AssetNoReceiveEventSig = eventSig("AssetNoReceive(bytes32,bytes32,address)")

	CollateralConfirmEventSig       = eventSig("CollateralConfirm(bytes32)")
	CollateralSlashEventSig         = eventSig("CollateralSlash(bytes32,address)")
	CollateralLiqSlashEventSig      = eventSig("CollateralLiqSlash(bytes32,address)")
	BitcoinCollateralLockEventSig   = eventSig("BitcoinCollateralLock(bytes32)")
	BitcoinCollateralUnlockEventSig = eventSig("BitcoinCollateralUnlock(bytes32)")
)

var eventNames = map[common.Hash]string{
	AssetReceiveEventSig:            "AssetReceive",
	AssetSendEventSig:               "AssetSend",
	AssetLiqSendEventSig:            "AssetLiqSend",
	AssetNoSendEventSig:             "AssetNoSend",
	AssetNoReceiveEventSig:          "AssetNoReceive",
	CollateralConfirmEventSig:       "CollateralConfirm",
	CollateralSlashEventSig:         "CollateralSlash",
	CollateralLiqSlashEventSig:      "CollateralLiqSlash",
	BitcoinCollateralLockEventSig:   "BitcoinCollateralLock",
	BitcoinCollateralUnlockEventSig: "BitcoinCollateralUnlock",
}

func eventSig(text string) common.Hash {
	return ethcrypto.Keccak256Hash([]byte(text))
}

// EventName returns the short name for a known signature, "" otherwise
func EventName(sig common.Hash) string {
	return eventNames[sig]
}

// EventSigByName is the inverse of EventName
func EventSigByName(name string) (common.Hash, bool) {
	for sig, n := range eventNames {
		if n == name {
			return sig, true
		}
	}
	return common.Hash{}, false
}

// EventHash identifies an event off-chain:
// keccak256(abi.encode(bytes32 signature, bytes32 key)), where key is topic 1.
func EventHash(sig, key common.Hash) common.Hash {
	data, err := crypto.ABIEncode([]string{"bytes32", "bytes32"}, [32]byte(sig), [32]byte(key))
	if err != nil {
		panic(err)
	}
	return ethcrypto.Keccak256Hash(data)
}

func ReceiveEventHash(orderHash common.Hash) common.Hash {
	return EventHash(AssetReceiveEventSig, orderHash)
}

func SendEventHash(orderHash common.Hash) common.Hash {
	return EventHash(AssetSendEventSig, orderHash)
}

func LiqSendEventHash(orderHash common.Hash, liquidator common.Address) common.Hash {
	return EventHash(AssetLiqSendEventSig, OrderActorHash(orderHash, liquidator))
}

func NoSendEventHash(orderHash common.Hash, reporter common.Address) common.Hash {
	return EventHash(AssetNoSendEventSig, OrderActorHash(orderHash, reporter))
}

func NoReceiveEventHash(orderHash common.Hash, actor common.Address) common.Hash {
	return EventHash(AssetNoReceiveEventSig, OrderActorHash(orderHash, actor))
}
