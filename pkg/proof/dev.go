package proof

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/order"
)

var devProofTypes = []string{"bytes32", "bytes32", "uint256"}

// Dev trusts any well-formed proof naming the event's signature, key and
// chain. Devnets and tests only.
type Dev struct{}

// DevProof builds abi.encode(bytes32 signature, bytes32 key, uint256 chain)
func DevProof(sig, key common.Hash, chain *big.Int) ([]byte, error) {
	return crypto.ABIEncode(devProofTypes, [32]byte(sig), [32]byte(key), chain)
}

func (Dev) VerifyHashEventProof(proof []byte, eventHash common.Hash, chain *big.Int) error {
	vals, err := crypto.ABIDecode(devProofTypes, proof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	sig, ok1 := vals[0].([32]byte)
	key, ok2 := vals[1].([32]byte)
	proofChain, ok3 := vals[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return fmt.Errorf("%w: malformed dev proof", ErrInvalidProof)
	}
	if err := checkHash(order.EventHash(sig, key), eventHash); err != nil {
		return err
	}
	return checkChain(proofChain, chain)
}
