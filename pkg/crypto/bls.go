package crypto

import (
	"errors"
	"fmt"

	bls "github.com/cloudflare/circl/sign/bls"
	"github.com/ethereum/go-ethereum/crypto"
)

type scheme = bls.KeyG1SigG2

type BLSPubKey = bls.PublicKey[scheme]
type BLSSignature = []byte

// BLSSigner signs committee attestations
type BLSSigner struct {
	sk *bls.PrivateKey[scheme]
	pk *BLSPubKey
}

// NewBLSSignerFromSeed derives a key deterministically from seed.
// The seed is stretched with keccak256 so short registry seeds are accepted.
func NewBLSSignerFromSeed(seed []byte) (*BLSSigner, error) {
	ikm := crypto.Keccak256(seed)
	sk, err := bls.KeyGen[scheme](ikm, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("bls keygen: %w", err)
	}
	return &BLSSigner{sk: sk, pk: sk.PublicKey()}, nil
}

func (s *BLSSigner) Pubkey() *BLSPubKey { return s.pk }

func (s *BLSSigner) Sign(msg []byte) BLSSignature {
	return bls.Sign(s.sk, msg)
}

func Verify(pk *BLSPubKey, sig BLSSignature, msg []byte) bool {
	return bls.Verify(pk, msg, bls.Signature(sig))
}

// MarshalBLSPubKey returns the compressed encoding of pk
func MarshalBLSPubKey(pk *BLSPubKey) ([]byte, error) {
	return pk.MarshalBinary()
}

func UnmarshalBLSPubKey(b []byte) (*BLSPubKey, error) {
	pk := new(BLSPubKey)
	if err := pk.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("bls pubkey: %w", err)
	}
	return pk, nil
}

// Aggregate combines signatures over the same message
func Aggregate(sigs []BLSSignature) (BLSSignature, error) {
	list := make([]bls.Signature, 0, len(sigs))
	for _, sb := range sigs {
		if len(sb) == 0 {
			continue
		}
		list = append(list, bls.Signature(sb))
	}
	if len(list) == 0 {
		return nil, errors.New("bls: nothing to aggregate")
	}
	return bls.Aggregate(bls.G1{}, list)
}

// VerifyAggregateSameMsg checks an aggregate of signatures by pks over one message
func VerifyAggregateSameMsg(pks []*BLSPubKey, msg []byte, aggSig BLSSignature) bool {
	msgs := make([][]byte, len(pks))
	for i := range pks {
		msgs[i] = msg
	}
	return bls.VerifyAggregate(pks, msgs, bls.Signature(aggSig))
}
