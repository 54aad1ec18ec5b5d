package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/order"
)

var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrNegativeAmount         = errors.New("negative amount")
	ErrUnknownCollateralChain = errors.New("unknown collateral chain")
)

func init() {
	order.RegisterClass(order.ClassResource, ErrInsufficientBalance, ErrInsufficientCollateral)
	order.RegisterClass(order.ClassState, ErrNegativeAmount, ErrUnknownCollateralChain)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeAmount, amount)
	}
	return nil
}

func (tx *Tx) BalanceOf(token, owner common.Address) (*big.Int, error) {
	return tx.Balance(token, owner)
}

func (tx *Tx) Credit(token, owner common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	bal, err := tx.Balance(token, owner)
	if err != nil {
		return err
	}
	return tx.SetBalance(token, owner, bal.Add(bal, amount))
}

func (tx *Tx) Debit(token, owner common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	bal, err := tx.Balance(token, owner)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, owner.Hex(), bal, token.Hex(), amount)
	}
	return tx.SetBalance(token, owner, bal.Sub(bal, amount))
}

// Transfer moves amount of token from one owner to another
func (tx *Tx) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := tx.Debit(token, from, amount); err != nil {
		return err
	}
	return tx.Credit(token, to, amount)
}
