package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/flash/pkg/storage"
)

type GenesisBalance struct {
	Token  common.Address
	Owner  common.Address
	Amount *big.Int
}

// GenesisCollateral is minted to the actor and deposited in one step
type GenesisCollateral struct {
	Actor  common.Address
	Chain  *big.Int
	Amount *big.Int
}

type Genesis struct {
	Balances   []GenesisBalance
	Collateral []GenesisCollateral
}

var genesisMarker = crypto.Keccak256Hash([]byte("flash.genesis"))

// ApplyGenesis seeds a fresh ledger. It reports false when the ledger was
// already seeded.
func (l *Ledger) ApplyGenesis(ctx context.Context, g Genesis) (bool, error) {
	applied := false
	err := l.Execute(ctx, func(tx *Tx) error {
		added, err := storage.Markers.Add(tx.Batch, genesisMarker)
		if err != nil || !added {
			return err
		}
		for _, b := range g.Balances {
			if err := tx.Credit(b.Token, b.Owner, b.Amount); err != nil {
				return err
			}
		}
		for _, c := range g.Collateral {
			token, err := l.CollateralToken(c.Chain)
			if err != nil {
				return err
			}
			if err := tx.Credit(token, c.Actor, c.Amount); err != nil {
				return err
			}
			if err := tx.Deposit(c.Actor, c.Chain, c.Amount); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}
