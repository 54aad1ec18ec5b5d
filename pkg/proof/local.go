package proof

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/crypto"
)

var hashChainTypes = []string{"bytes32", "uint256"}

// MarkerReader answers whether an event was committed locally
type MarkerReader interface {
	HasMarker(eventHash common.Hash) (bool, error)
	ChainID() *big.Int
}

// Local accepts events this node's own ledger committed
type Local struct {
	markers MarkerReader
}

func NewLocal(markers MarkerReader) *Local {
	return &Local{markers: markers}
}

// LocalProof builds abi.encode(bytes32 eventHash, uint256 chain)
func LocalProof(eventHash common.Hash, chain *big.Int) ([]byte, error) {
	return crypto.ABIEncode(hashChainTypes, [32]byte(eventHash), chain)
}

func decodeHashChain(proof []byte) (common.Hash, *big.Int, error) {
	vals, err := crypto.ABIDecode(hashChainTypes, proof)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	h, ok1 := vals[0].([32]byte)
	chain, ok2 := vals[1].(*big.Int)
	if !ok1 || !ok2 {
		return common.Hash{}, nil, fmt.Errorf("%w: malformed header", ErrInvalidProof)
	}
	return h, chain, nil
}

func (v *Local) VerifyHashEventProof(proof []byte, eventHash common.Hash, chain *big.Int) error {
	h, proofChain, err := decodeHashChain(proof)
	if err != nil {
		return err
	}
	if err := checkHash(h, eventHash); err != nil {
		return err
	}
	if err := checkChain(proofChain, chain); err != nil {
		return err
	}
	if err := checkChain(v.markers.ChainID(), chain); err != nil {
		return err
	}
	ok, err := v.markers.HasMarker(eventHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: event %s not committed on chain %s", ErrInvalidProof, eventHash.Hex(), chain)
	}
	return nil
}
