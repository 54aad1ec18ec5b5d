package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/storage"
)

// BitcoinCollateralState only moves forward: Pending → Locked → Unlocked
type BitcoinCollateralState uint8

const (
	BitcoinPending BitcoinCollateralState = iota
	BitcoinLocked
	BitcoinUnlocked
)

func (st BitcoinCollateralState) String() string {
	switch st {
	case BitcoinPending:
		return "pending"
	case BitcoinLocked:
		return "locked"
	case BitcoinUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(st))
	}
}

func (st BitcoinCollateralState) MarshalText() ([]byte, error) {
	return []byte(st.String()), nil
}

func (st *BitcoinCollateralState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*st = BitcoinPending
	case "locked":
		*st = BitcoinLocked
	case "unlocked":
		*st = BitcoinUnlocked
	default:
		return fmt.Errorf("unknown bitcoin collateral state %q", b)
	}
	return nil
}

func bitcoinState(tx *ledger.Tx, hash common.Hash) (BitcoinCollateralState, error) {
	st, err := tx.BitcoinState(hash)
	return BitcoinCollateralState(st), err
}

// LockOrderBitcoinCollateral commits the to-actor's collateral for an order
// whose from-leg is paid on Bitcoin. With the wildcard from-address the
// to-address is reserved for this order for good.
func (s *Service) LockOrderBitcoinCollateral(ctx context.Context, caller common.Address, ob *order.OrderBitcoin, fromSig []byte) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	err = s.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		return s.lock(tx, caller, hash, ob, fromSig)
	})
	if err != nil {
		return hash, err
	}
	s.log.Infow("settlement_bitcoin_lock", "order", hash.Hex(), "to_actor", caller.Hex(), "to_address", ob.ToActorBitcoin, "any_address", ob.UsesAnyBitcoinAddress())
	return hash, nil
}

// UnlockOrderBitcoinCollateral returns locked collateral once it is proven
// the Bitcoin payment never arrived. Any address reservation stays.
func (s *Service) UnlockOrderBitcoinCollateral(ctx context.Context, caller common.Address, ob *order.OrderBitcoin, noReceiveProof []byte) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	err = s.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		return s.unlock(tx, caller, hash, ob, noReceiveProof)
	})
	if err != nil {
		return hash, err
	}
	s.log.Infow("settlement_bitcoin_unlock", "order", hash.Hex(), "to_actor", caller.Hex())
	return hash, nil
}

func (s *Service) lock(tx *ledger.Tx, caller common.Address, hash common.Hash, ob *order.OrderBitcoin, fromSig []byte) error {
	if caller != ob.ToActor {
		return fmt.Errorf("%w: caller %s, to-actor %s", order.ErrBitcoinLockerMismatch, caller.Hex(), ob.ToActor.Hex())
	}
	if err := s.sigs.Verify(hash, fromSig, ob.FromActor); err != nil {
		return err
	}
	st, err := bitcoinState(tx, hash)
	if err != nil {
		return err
	}
	if st != BitcoinPending {
		return fmt.Errorf("%w: collateral is %s", order.ErrBitcoinLockRefusal, st)
	}
	// a receive already committed collateral under this identity
	received, err := has(tx, storage.Received, hash)
	if err != nil {
		return err
	}
	if received {
		return fmt.Errorf("%w: order was received", order.ErrBitcoinLockRefusal)
	}
	if s.btcNet != nil {
		if err := order.ValidateBitcoinAddresses(ob, s.btcNet); err != nil {
			return err
		}
	}

	if ob.UsesAnyBitcoinAddress() {
		used, reserved, err := tx.AddressUsage(ob.ToActorBitcoin)
		if err != nil {
			return err
		}
		if reserved && used != hash {
			return fmt.Errorf("%w: %s reserved by order %s", order.ErrBitcoinLockRefusal, ob.ToActorBitcoin, used.Hex())
		}
		if err := tx.SetAddressUsage(ob.ToActorBitcoin, hash); err != nil {
			return err
		}
	}

	if err := tx.CommitLock(caller, ob.CollateralChain, ob.CollateralAmount, ob.CollateralUnlocked); err != nil {
		return err
	}
	if err := tx.SetBitcoinState(hash, uint8(BitcoinLocked)); err != nil {
		return err
	}
	_, err = tx.Emit(order.BitcoinCollateralLockEventSig, hash, hash, caller)
	return err
}

func (s *Service) unlock(tx *ledger.Tx, caller common.Address, hash common.Hash, ob *order.OrderBitcoin, noReceiveProof []byte) error {
	if caller != ob.ToActor {
		return fmt.Errorf("%w: caller %s, to-actor %s", order.ErrBitcoinLockerMismatch, caller.Hex(), ob.ToActor.Hex())
	}
	st, err := bitcoinState(tx, hash)
	if err != nil {
		return err
	}
	if st != BitcoinLocked {
		return fmt.Errorf("%w: collateral is %s", order.ErrBitcoinUnlockRefusal, st)
	}
	// resolution already settled this collateral
	if err := s.checkUnresolved(tx, hash); err != nil {
		return fmt.Errorf("%w: %v", order.ErrBitcoinUnlockRefusal, err)
	}
	if err := s.verifyProof("no-receive", noReceiveProof, order.NoReceiveEventHash(hash, ob.ToActor), ob.FromChain); err != nil {
		return err
	}
	if err := tx.CancelLock(ob.ToActor, ob.CollateralChain, ob.CollateralAmount); err != nil {
		return err
	}
	if err := tx.SetBitcoinState(hash, uint8(BitcoinUnlocked)); err != nil {
		return err
	}
	_, err = tx.Emit(order.BitcoinCollateralUnlockEventSig, hash, hash, caller)
	return err
}

// checkNotUnlocked keeps resolution away from collateral a Bitcoin unlock
// already returned
func (s *Service) checkNotUnlocked(tx *ledger.Tx, hash common.Hash) error {
	st, err := bitcoinState(tx, hash)
	if err != nil {
		return err
	}
	if st == BitcoinUnlocked {
		return fmt.Errorf("%w: bitcoin collateral was unlocked", order.ErrOrderAlreadyResolved)
	}
	return nil
}

func (s *Service) ConfirmOrderBitcoinAssetSend(ctx context.Context, ob *order.OrderBitcoin, receiveProof, sendProof []byte) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execResolve(ctx, "settlement_confirm_bitcoin", hash, func(tx *ledger.Tx) error {
		if err := s.checkNotUnlocked(tx, hash); err != nil {
			return err
		}
		return s.confirm(tx, hash, &ob.Order, receiveProof, sendProof)
	})
}

func (s *Service) SlashOrderBitcoinCollateral(ctx context.Context, ob *order.OrderBitcoin, reporter common.Address, receiveProof, noSendProof []byte) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execResolve(ctx, "settlement_slash_bitcoin", hash, func(tx *ledger.Tx) error {
		if err := s.checkNotUnlocked(tx, hash); err != nil {
			return err
		}
		return s.slash(tx, hash, &ob.Order, reporter, receiveProof, noSendProof)
	})
}

func (s *Service) SlashOrderBitcoinLiqCollateral(ctx context.Context, ob *order.OrderBitcoin, reporter common.Address, receiveProof, liqSendProof []byte) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execResolve(ctx, "settlement_slash_liq_bitcoin", hash, func(tx *ledger.Tx) error {
		if err := s.checkNotUnlocked(tx, hash); err != nil {
			return err
		}
		return s.slashLiq(tx, hash, &ob.Order, reporter, receiveProof, liqSendProof)
	})
}
