package proof

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Router picks a verifier by chain, falling back to a default when set
type Router struct {
	mu       sync.RWMutex
	byChain  map[string]Verifier
	fallback Verifier
}

func NewRouter(fallback Verifier) *Router {
	return &Router{byChain: make(map[string]Verifier), fallback: fallback}
}

func (r *Router) Route(chain *big.Int, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChain[chain.String()] = v
}

func (r *Router) verifier(chain *big.Int) Verifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.byChain[chain.String()]; ok {
		return v
	}
	return r.fallback
}

func (r *Router) VerifyHashEventProof(proof []byte, eventHash common.Hash, chain *big.Int) error {
	if chain == nil {
		return fmt.Errorf("%w: nil chain", ErrUnexpectedChain)
	}
	v := r.verifier(chain)
	if v == nil {
		return fmt.Errorf("%w %s", ErrNoVerifier, chain)
	}
	return v.VerifyHashEventProof(proof, eventHash, chain)
}
