package proof

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/flash/pkg/crypto"
)

var committeeProofTypes = []string{"bytes32", "uint256", "uint256", "bytes"}

// Committee accepts an aggregate BLS attestation by at least threshold of
// its members. Bit i of the signer bitmap stands for Members[i].
type Committee struct {
	Members   []*crypto.BLSPubKey
	Threshold int
}

func NewCommittee(members []*crypto.BLSPubKey, threshold int) (*Committee, error) {
	if len(members) == 0 {
		return nil, errors.New("committee has no members")
	}
	if threshold < 1 || threshold > len(members) {
		return nil, fmt.Errorf("threshold %d out of range 1..%d", threshold, len(members))
	}
	return &Committee{Members: members, Threshold: threshold}, nil
}

// AttestationMessage is what members sign: keccak256(abi.encode(eventHash, chain))
func AttestationMessage(eventHash common.Hash, chain *big.Int) []byte {
	data, err := crypto.ABIEncode(hashChainTypes, [32]byte(eventHash), chain)
	if err != nil {
		panic(err)
	}
	return ethcrypto.Keccak256(data)
}

// CommitteeProof builds abi.encode(bytes32 eventHash, uint256 chain,
// uint256 signerBitmap, bytes aggregateSignature)
func CommitteeProof(eventHash common.Hash, chain, bitmap *big.Int, aggSig []byte) ([]byte, error) {
	return crypto.ABIEncode(committeeProofTypes, [32]byte(eventHash), chain, bitmap, aggSig)
}

func (c *Committee) VerifyHashEventProof(proof []byte, eventHash common.Hash, chain *big.Int) error {
	vals, err := crypto.ABIDecode(committeeProofTypes, proof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	h, ok1 := vals[0].([32]byte)
	proofChain, ok2 := vals[1].(*big.Int)
	bitmap, ok3 := vals[2].(*big.Int)
	aggSig, ok4 := vals[3].([]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return fmt.Errorf("%w: malformed committee proof", ErrInvalidProof)
	}
	if err := checkHash(h, eventHash); err != nil {
		return err
	}
	if err := checkChain(proofChain, chain); err != nil {
		return err
	}
	if bitmap.BitLen() > len(c.Members) {
		return fmt.Errorf("%w: bitmap names unknown members", ErrInvalidProof)
	}

	signers := make([]*crypto.BLSPubKey, 0, len(c.Members))
	for i, pk := range c.Members {
		if bitmap.Bit(i) == 1 {
			signers = append(signers, pk)
		}
	}
	if len(signers) < c.Threshold {
		return fmt.Errorf("%w: %d signers below threshold %d", ErrInvalidProof, len(signers), c.Threshold)
	}
	if !crypto.VerifyAggregateSameMsg(signers, AttestationMessage(eventHash, chain), aggSig) {
		return fmt.Errorf("%w: aggregate signature mismatch", ErrInvalidProof)
	}
	return nil
}
