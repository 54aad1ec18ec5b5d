package p2p

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/proof"
)

var (
	ErrUnknownCommittee = errors.New("no committee for chain")
	ErrUnknownMember    = errors.New("unknown committee member")
	ErrBadAttestation   = errors.New("attestation signature mismatch")
)

// Attestor signs attestations for every committee it belongs to
type Attestor struct {
	signer  *crypto.BLSSigner
	members map[string]int // chain id → member index
}

// NewAttestor finds signer's index in each committee
func NewAttestor(signer *crypto.BLSSigner, committees map[string]*proof.Committee) (*Attestor, error) {
	self, err := crypto.MarshalBLSPubKey(signer.Pubkey())
	if err != nil {
		return nil, err
	}
	a := &Attestor{signer: signer, members: make(map[string]int)}
	for chain, c := range committees {
		for i, pk := range c.Members {
			b, err := crypto.MarshalBLSPubKey(pk)
			if err != nil {
				return nil, err
			}
			if string(b) == string(self) {
				a.members[chain] = i
				break
			}
		}
	}
	return a, nil
}

// Attest returns false when the signer sits on no committee for chain
func (a *Attestor) Attest(eventHash common.Hash, chain *big.Int) (AttestationWire, bool) {
	idx, ok := a.members[chain.String()]
	if !ok {
		return AttestationWire{}, false
	}
	return AttestationWire{
		EventHash: eventHash,
		Chain:     chain.Bytes(),
		Member:    idx,
		Signature: a.signer.Sign(proof.AttestationMessage(eventHash, chain)),
	}, true
}

type attestKey struct {
	hash  common.Hash
	chain string
}

// Aggregator collects attestations until a committee threshold is met and
// keeps the resulting committee proofs
type Aggregator struct {
	committees map[string]*proof.Committee

	mu      sync.Mutex
	pending map[attestKey]map[int][]byte
	proofs  map[common.Hash][]byte
}

func NewAggregator(committees map[string]*proof.Committee) *Aggregator {
	return &Aggregator{
		committees: committees,
		pending:    make(map[attestKey]map[int][]byte),
		proofs:     make(map[common.Hash][]byte),
	}
}

// Add verifies and records att. It returns the committee proof once the
// threshold is first reached.
func (g *Aggregator) Add(att AttestationWire) ([]byte, bool, error) {
	chain := att.ChainID()
	c, ok := g.committees[chain.String()]
	if !ok {
		return nil, false, fmt.Errorf("%w %s", ErrUnknownCommittee, chain)
	}
	if att.Member < 0 || att.Member >= len(c.Members) {
		return nil, false, fmt.Errorf("%w %d", ErrUnknownMember, att.Member)
	}
	msg := proof.AttestationMessage(att.EventHash, chain)
	if !crypto.Verify(c.Members[att.Member], att.Signature, msg) {
		return nil, false, fmt.Errorf("%w: member %d, event %s", ErrBadAttestation, att.Member, att.EventHash.Hex())
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, done := g.proofs[att.EventHash]; done {
		return nil, false, nil
	}
	key := attestKey{hash: att.EventHash, chain: chain.String()}
	sigs := g.pending[key]
	if sigs == nil {
		sigs = make(map[int][]byte)
		g.pending[key] = sigs
	}
	sigs[att.Member] = att.Signature
	if len(sigs) < c.Threshold {
		return nil, false, nil
	}

	members := make([]int, 0, len(sigs))
	for i := range sigs {
		members = append(members, i)
	}
	sort.Ints(members)
	bitmap := new(big.Int)
	list := make([]crypto.BLSSignature, 0, len(members))
	for _, i := range members {
		bitmap.SetBit(bitmap, i, 1)
		list = append(list, sigs[i])
	}
	agg, err := crypto.Aggregate(list)
	if err != nil {
		return nil, false, err
	}
	p, err := proof.CommitteeProof(att.EventHash, chain, bitmap, agg)
	if err != nil {
		return nil, false, err
	}
	g.proofs[att.EventHash] = p
	delete(g.pending, key)
	return p, true, nil
}

// Proof returns the assembled committee proof for eventHash
func (g *Aggregator) Proof(eventHash common.Hash) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.proofs[eventHash]
	return p, ok
}

// Pending reports how many attestations are held for an unfinished event
func (g *Aggregator) Pending(eventHash common.Hash, chain *big.Int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending[attestKey{hash: eventHash, chain: chain.String()}])
}
