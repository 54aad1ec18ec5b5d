package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/storage"
)

// ReceiveOrderAsset escrows the from-asset to the committing counterparty.
// The caller must be the order's to-actor and must be able to lock
// collateralAmount on the collateral chain.
func (s *Service) ReceiveOrderAsset(ctx context.Context, caller common.Address, o *order.Order, fromSig []byte) (common.Hash, error) {
	o = o.Normalized()
	hash, err := s.codec.OrderHash(o)
	if err != nil {
		return common.Hash{}, err
	}
	err = s.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		return s.receive(tx, caller, hash, o, fromSig)
	})
	if err != nil {
		return hash, err
	}
	s.log.Infow("settlement_receive", "order", hash.Hex(), "to_actor", caller.Hex(), "amount", o.FromAmount.String())
	return hash, nil
}

// ReceiveOrderBitcoinAsset is ReceiveOrderAsset for an order whose to-leg
// settles on Bitcoin
func (s *Service) ReceiveOrderBitcoinAsset(ctx context.Context, caller common.Address, ob *order.OrderBitcoin, fromSig []byte) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	err = s.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		st, err := bitcoinState(tx, hash)
		if err != nil {
			return err
		}
		if st != BitcoinPending {
			return fmt.Errorf("%w: bitcoin collateral is %s", order.ErrOrderAlreadyReceived, st)
		}
		return s.receive(tx, caller, hash, &ob.Order, fromSig)
	})
	if err != nil {
		return hash, err
	}
	s.log.Infow("settlement_receive_bitcoin", "order", hash.Hex(), "to_actor", caller.Hex(), "to_address", ob.ToActorBitcoin)
	return hash, nil
}

func (s *Service) receive(tx *ledger.Tx, caller common.Address, hash common.Hash, o *order.Order, fromSig []byte) error {
	if caller != o.ToActor {
		return fmt.Errorf("%w: caller %s, to-actor %s", order.ErrReceiveCallerMismatch, caller.Hex(), o.ToActor.Hex())
	}
	if err := s.sigs.Verify(hash, fromSig, o.FromActor); err != nil {
		return err
	}
	received, err := has(tx, storage.Received, hash)
	if err != nil {
		return err
	}
	if received {
		return order.ErrOrderAlreadyReceived
	}
	if big.NewInt(tx.Now()).Cmp(o.Deadline) > 0 {
		return fmt.Errorf("%w: deadline %s, now %d", order.ErrOrderReceiveExpired, o.Deadline, tx.Now())
	}

	if err := tx.CommitLock(caller, o.CollateralChain, o.CollateralAmount, o.CollateralUnlocked); err != nil {
		return err
	}
	if err := tx.Transfer(o.FromToken, o.FromActor, caller, o.FromAmount); err != nil {
		return err
	}
	if _, err := storage.Received.Add(tx.Batch, hash); err != nil {
		return err
	}
	_, err = tx.Emit(order.AssetReceiveEventSig, hash, hash, caller)
	return err
}
