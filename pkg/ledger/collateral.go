package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/storage"
)

// CollateralState holds the per-(actor, chain) counters. Counters only grow,
// except LockCounter which a Bitcoin unlock cancels back down.
type CollateralState struct {
	Deposited     *big.Int `json:"deposited"`
	LockCounter   *big.Int `json:"lockCounter"`
	UnlockCounter *big.Int `json:"unlockCounter"`
	Slashed       *big.Int `json:"slashed"`
}

// Locked = lockCounter - unlockCounter - slashed, never below zero. It is
// zero on a collateral ledger that resolves orders received elsewhere.
func (c CollateralState) Locked() *big.Int {
	out := new(big.Int).Sub(c.LockCounter, c.UnlockCounter)
	out.Sub(out, c.Slashed)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// Available = deposited - locked
func (c CollateralState) Available() *big.Int {
	return new(big.Int).Sub(c.Deposited, c.Locked())
}

// Payout is one recipient of slashed collateral
type Payout struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// PoolAddress is the account that holds deposited collateral for a chain
func PoolAddress(chain *big.Int) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("flash.collateral.pool"), common.BigToHash(chain).Bytes()))
}

func readCollateral(v *storage.View, actor common.Address, chain *big.Int) (CollateralState, error) {
	var (
		st  CollateralState
		err error
	)
	if st.Deposited, err = v.Counter(storage.CounterDeposited, actor, chain); err != nil {
		return st, err
	}
	if st.LockCounter, err = v.Counter(storage.CounterLock, actor, chain); err != nil {
		return st, err
	}
	if st.UnlockCounter, err = v.Counter(storage.CounterUnlock, actor, chain); err != nil {
		return st, err
	}
	if st.Slashed, err = v.Counter(storage.CounterSlashed, actor, chain); err != nil {
		return st, err
	}
	return st, nil
}

// Collateral reads committed counters
func (l *Ledger) Collateral(actor common.Address, chain *big.Int) (CollateralState, error) {
	return readCollateral(l.store.View(), actor, chain)
}

// CollateralToken returns the token collateral on chain is held in
func (l *Ledger) CollateralToken(chain *big.Int) (common.Address, error) {
	token, ok := l.collateral[chain.String()]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownCollateralChain, chain)
	}
	return token, nil
}

func (tx *Tx) Collateral(actor common.Address, chain *big.Int) (CollateralState, error) {
	return readCollateral(&tx.View, actor, chain)
}

// CommitLock reserves amount of actor's collateral. It refuses when the
// cumulative lock counter would pass floor or when available collateral
// cannot cover amount. A nil floor is zero.
func (tx *Tx) CommitLock(actor common.Address, chain, amount, floor *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if floor == nil {
		floor = new(big.Int)
	}
	st, err := tx.Collateral(actor, chain)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(st.LockCounter, amount)
	if next.Cmp(floor) > 0 {
		return fmt.Errorf("%w: lock counter %s exceeds unlocked floor %s", order.ErrLockRefusal, next, floor)
	}
	if st.Available().Cmp(amount) < 0 {
		return fmt.Errorf("%w: available %s, need %s", order.ErrLockRefusal, st.Available(), amount)
	}
	return tx.SetCounter(storage.CounterLock, actor, chain, next)
}

// CancelLock undoes a lock that will never resolve
func (tx *Tx) CancelLock(actor common.Address, chain, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	st, err := tx.Collateral(actor, chain)
	if err != nil {
		return err
	}
	if st.Locked().Cmp(amount) < 0 {
		return fmt.Errorf("%w: cancel %s, locked %s", ErrInsufficientCollateral, amount, st.Locked())
	}
	return tx.SetCounter(storage.CounterLock, actor, chain, st.LockCounter.Sub(st.LockCounter, amount))
}

// CommitUnlock advances the unlock counter on confirm. The lock may have
// been committed on another ledger, so the bound is the deposit.
func (tx *Tx) CommitUnlock(actor common.Address, chain, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	st, err := tx.Collateral(actor, chain)
	if err != nil {
		return err
	}
	if st.Deposited.Cmp(amount) < 0 {
		return fmt.Errorf("%w: unlock %s, deposited %s", ErrInsufficientCollateral, amount, st.Deposited)
	}
	return tx.SetCounter(storage.CounterUnlock, actor, chain, st.UnlockCounter.Add(st.UnlockCounter, amount))
}

// CommitSlash takes deposited collateral from actor and pays it out of the
// chain's pool in the collateral token
func (tx *Tx) CommitSlash(actor common.Address, chain *big.Int, payouts []Payout) error {
	total := new(big.Int)
	for _, p := range payouts {
		if err := checkAmount(p.Amount); err != nil {
			return err
		}
		total.Add(total, p.Amount)
	}
	st, err := tx.Collateral(actor, chain)
	if err != nil {
		return err
	}
	if st.Deposited.Cmp(total) < 0 {
		return fmt.Errorf("%w: slash %s, deposited %s", ErrInsufficientCollateral, total, st.Deposited)
	}
	token, err := tx.l.CollateralToken(chain)
	if err != nil {
		return err
	}

	if err := tx.SetCounter(storage.CounterSlashed, actor, chain, st.Slashed.Add(st.Slashed, total)); err != nil {
		return err
	}
	if err := tx.SetCounter(storage.CounterDeposited, actor, chain, st.Deposited.Sub(st.Deposited, total)); err != nil {
		return err
	}
	pool := PoolAddress(chain)
	for _, p := range payouts {
		if p.Amount.Sign() == 0 {
			continue
		}
		if err := tx.Transfer(token, pool, p.To, p.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Deposit moves collateral tokens from actor into the chain's pool
func (tx *Tx) Deposit(actor common.Address, chain, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	token, err := tx.l.CollateralToken(chain)
	if err != nil {
		return err
	}
	if err := tx.Transfer(token, actor, PoolAddress(chain), amount); err != nil {
		return err
	}
	dep, err := tx.Counter(storage.CounterDeposited, actor, chain)
	if err != nil {
		return err
	}
	return tx.SetCounter(storage.CounterDeposited, actor, chain, dep.Add(dep, amount))
}

// Withdraw returns available collateral to actor
func (tx *Tx) Withdraw(actor common.Address, chain, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	st, err := tx.Collateral(actor, chain)
	if err != nil {
		return err
	}
	if st.Available().Cmp(amount) < 0 {
		return fmt.Errorf("%w: withdraw %s, available %s", ErrInsufficientCollateral, amount, st.Available())
	}
	token, err := tx.l.CollateralToken(chain)
	if err != nil {
		return err
	}
	if err := tx.SetCounter(storage.CounterDeposited, actor, chain, st.Deposited.Sub(st.Deposited, amount)); err != nil {
		return err
	}
	return tx.Transfer(token, PoolAddress(chain), actor, amount)
}
