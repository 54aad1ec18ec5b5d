package order

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/crypto"
)

// ApprovingAccount is a programmable account that can vouch for signatures
// made on its behalf (the ERC-1271 isValidSignature capability).
type ApprovingAccount interface {
	IsValidSignature(hash common.Hash, signature []byte) bool
}

// AccountLookup resolves an address to an approving account, if it is one
type AccountLookup interface {
	Account(addr common.Address) (ApprovingAccount, bool)
}

// SignatureVerifier checks that a hash was authorized by a claimed signer.
// Raw key recovery is tried first; approving accounts are consulted when
// recovery does not match the claimed signer.
type SignatureVerifier struct {
	accounts AccountLookup
}

// NewSignatureVerifier builds a verifier; accounts may be nil (raw keys only)
func NewSignatureVerifier(accounts AccountLookup) *SignatureVerifier {
	return &SignatureVerifier{accounts: accounts}
}

// Verify returns ErrInvalidSignature unless signer authorized hash
func (v *SignatureVerifier) Verify(hash common.Hash, signature []byte, signer common.Address) error {
	recovered, err := crypto.RecoverAddress(hash, signature)
	if err == nil && recovered == signer {
		return nil
	}
	if v.accounts != nil {
		if acc, ok := v.accounts.Account(signer); ok && acc.IsValidSignature(hash, signature) {
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return fmt.Errorf("%w: recovered %s, want %s", ErrInvalidSignature, recovered.Hex(), signer.Hex())
}

// DelegatedAccount approves signatures made by any of its delegate keys,
// plus individually approved (hash, signature) pairs.
type DelegatedAccount struct {
	mu        sync.RWMutex
	address   common.Address
	delegates map[common.Address]bool
	approved  map[common.Hash]map[string]bool
}

func NewDelegatedAccount(address common.Address, delegates ...common.Address) *DelegatedAccount {
	a := &DelegatedAccount{
		address:   address,
		delegates: make(map[common.Address]bool),
		approved:  make(map[common.Hash]map[string]bool),
	}
	for _, d := range delegates {
		a.delegates[d] = true
	}
	return a
}

func (a *DelegatedAccount) Address() common.Address { return a.address }

func (a *DelegatedAccount) AddDelegate(d common.Address) {
	a.mu.Lock()
	a.delegates[d] = true
	a.mu.Unlock()
}

func (a *DelegatedAccount) RemoveDelegate(d common.Address) {
	a.mu.Lock()
	delete(a.delegates, d)
	a.mu.Unlock()
}

// Approve marks one exact signature over hash as valid
func (a *DelegatedAccount) Approve(hash common.Hash, signature []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.approved[hash] == nil {
		a.approved[hash] = make(map[string]bool)
	}
	a.approved[hash][string(signature)] = true
}

func (a *DelegatedAccount) IsValidSignature(hash common.Hash, signature []byte) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.approved[hash][string(signature)] {
		return true
	}
	recovered, err := crypto.RecoverAddress(hash, signature)
	if err != nil {
		return false
	}
	return a.delegates[recovered]
}

// AccountRegistry is an in-memory AccountLookup
type AccountRegistry struct {
	mu       sync.RWMutex
	accounts map[common.Address]ApprovingAccount
}

func NewAccountRegistry() *AccountRegistry {
	return &AccountRegistry{accounts: make(map[common.Address]ApprovingAccount)}
}

func (r *AccountRegistry) Register(addr common.Address, acc ApprovingAccount) {
	r.mu.Lock()
	r.accounts[addr] = acc
	r.mu.Unlock()
}

func (r *AccountRegistry) Account(addr common.Address) (ApprovingAccount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[addr]
	return acc, ok
}
