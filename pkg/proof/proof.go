// Package proof verifies that a settlement event happened on some chain.
// Proofs are always checked against an externally computable event hash,
// never against raw event payloads.
package proof

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/order"
)

var (
	ErrInvalidProof    = errors.New("invalid proof")
	ErrUnexpectedHash  = errors.New("unexpected event hash")
	ErrUnexpectedChain = errors.New("unexpected event chain")
	ErrNoVerifier      = errors.New("no verifier for chain")
)

func init() {
	order.RegisterClass(order.ClassAuthorization, ErrInvalidProof, ErrUnexpectedHash, ErrUnexpectedChain)
	order.RegisterClass(order.ClassState, ErrNoVerifier)
}

// Verifier returns nil when proof attests eventHash on chain
type Verifier interface {
	VerifyHashEventProof(proof []byte, eventHash common.Hash, chain *big.Int) error
}

// VerifierFunc adapts a function to Verifier
type VerifierFunc func(proof []byte, eventHash common.Hash, chain *big.Int) error

func (f VerifierFunc) VerifyHashEventProof(proof []byte, eventHash common.Hash, chain *big.Int) error {
	return f(proof, eventHash, chain)
}

func checkHash(got, want common.Hash) error {
	if got != want {
		return fmt.Errorf("%w: proof for %s, expected %s", ErrUnexpectedHash, got.Hex(), want.Hex())
	}
	return nil
}

func checkChain(got, want *big.Int) error {
	if got == nil || want == nil || got.Cmp(want) != 0 {
		return fmt.Errorf("%w: proof for chain %v, expected %v", ErrUnexpectedChain, got, want)
	}
	return nil
}
