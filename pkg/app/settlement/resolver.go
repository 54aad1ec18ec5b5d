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

// SlashSplit is how a slashed collateralAmount is divided
type SlashSplit struct {
	Reporter *big.Int
	Receiver *big.Int
}

// SplitSlash pays min(collateralRewardable, collateralAmount) to the
// reporter and the rest to collateralReceiver. A from-actor reporting its
// own order gets nothing.
func SplitSlash(o *order.Order, reporter common.Address) SlashSplit {
	amount := new(big.Int)
	if o.CollateralAmount != nil {
		amount.Set(o.CollateralAmount)
	}
	reward := new(big.Int)
	if reporter != o.FromActor && o.CollateralRewardable != nil {
		reward.Set(o.CollateralRewardable)
		if reward.Cmp(amount) > 0 {
			reward.Set(amount)
		}
	}
	return SlashSplit{Reporter: reward, Receiver: amount.Sub(amount, reward)}
}

func (sp SlashSplit) payouts(o *order.Order, reporter common.Address) []ledger.Payout {
	return []ledger.Payout{
		{To: reporter, Amount: sp.Reporter},
		{To: o.CollateralReceiver, Amount: sp.Receiver},
	}
}

// ConfirmOrderAssetSend releases the to-actor's collateral once both the
// receive and the plain send are proven
func (s *Service) ConfirmOrderAssetSend(ctx context.Context, o *order.Order, receiveProof, sendProof []byte) (common.Hash, error) {
	o = o.Normalized()
	hash, err := s.codec.OrderHash(o)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execResolve(ctx, "settlement_confirm", hash, func(tx *ledger.Tx) error {
		return s.confirm(tx, hash, o, receiveProof, sendProof)
	})
}

// SlashOrderCollateral pays out the to-actor's collateral on proof that
// reporter reported a no-send
func (s *Service) SlashOrderCollateral(ctx context.Context, o *order.Order, reporter common.Address, receiveProof, noSendProof []byte) (common.Hash, error) {
	o = o.Normalized()
	hash, err := s.codec.OrderHash(o)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execResolve(ctx, "settlement_slash", hash, func(tx *ledger.Tx) error {
		return s.slash(tx, hash, o, reporter, receiveProof, noSendProof)
	})
}

// SlashOrderLiqCollateral pays the whole collateral to the liquidator that
// delivered in the liquidation window
func (s *Service) SlashOrderLiqCollateral(ctx context.Context, o *order.Order, reporter common.Address, receiveProof, liqSendProof []byte) (common.Hash, error) {
	o = o.Normalized()
	hash, err := s.codec.OrderHash(o)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execResolve(ctx, "settlement_slash_liq", hash, func(tx *ledger.Tx) error {
		return s.slashLiq(tx, hash, o, reporter, receiveProof, liqSendProof)
	})
}

func (s *Service) execResolve(ctx context.Context, event string, hash common.Hash, fn func(tx *ledger.Tx) error) error {
	if err := s.ledger.Execute(ctx, fn); err != nil {
		return err
	}
	s.log.Infow(event, "order", hash.Hex())
	return nil
}

func (s *Service) checkUnresolved(tx *ledger.Tx, hash common.Hash) error {
	resolved, err := has(tx, storage.Resolved, hash)
	if err != nil {
		return err
	}
	if resolved {
		return order.ErrOrderAlreadyResolved
	}
	return nil
}

func (s *Service) verifyReceived(hash common.Hash, o *order.Order, receiveProof []byte) error {
	return s.verifyProof("receive", receiveProof, order.ReceiveEventHash(hash), o.FromChain)
}

func (s *Service) confirm(tx *ledger.Tx, hash common.Hash, o *order.Order, receiveProof, sendProof []byte) error {
	if err := s.checkUnresolved(tx, hash); err != nil {
		return err
	}
	if err := s.verifyReceived(hash, o, receiveProof); err != nil {
		return err
	}
	if err := s.verifyProof("send", sendProof, order.SendEventHash(hash), o.ToChain); err != nil {
		return err
	}
	if err := tx.CommitUnlock(o.ToActor, o.CollateralChain, o.CollateralAmount); err != nil {
		return err
	}
	if _, err := storage.Resolved.Add(tx.Batch, hash); err != nil {
		return err
	}
	_, err := tx.Emit(order.CollateralConfirmEventSig, hash, hash, o.ToActor)
	return err
}

func (s *Service) slash(tx *ledger.Tx, hash common.Hash, o *order.Order, reporter common.Address, receiveProof, noSendProof []byte) error {
	if err := s.checkUnresolved(tx, hash); err != nil {
		return err
	}
	if err := s.verifyReceived(hash, o, receiveProof); err != nil {
		return err
	}
	if err := s.verifyProof("no-send", noSendProof, order.NoSendEventHash(hash, reporter), o.ToChain); err != nil {
		return err
	}
	split := SplitSlash(o, reporter)
	if err := tx.CommitSlash(o.ToActor, o.CollateralChain, split.payouts(o, reporter)); err != nil {
		return fmt.Errorf("slash %s: %w", hash.Hex(), err)
	}
	if _, err := storage.Resolved.Add(tx.Batch, hash); err != nil {
		return err
	}
	_, err := tx.Emit(order.CollateralSlashEventSig, hash, hash, reporter)
	return err
}

func (s *Service) slashLiq(tx *ledger.Tx, hash common.Hash, o *order.Order, reporter common.Address, receiveProof, liqSendProof []byte) error {
	if err := s.checkUnresolved(tx, hash); err != nil {
		return err
	}
	if err := s.verifyReceived(hash, o, receiveProof); err != nil {
		return err
	}
	if err := s.verifyProof("liquidation send", liqSendProof, order.LiqSendEventHash(hash, reporter), o.ToChain); err != nil {
		return err
	}
	payout := []ledger.Payout{{To: reporter, Amount: o.CollateralAmount}}
	if err := tx.CommitSlash(o.ToActor, o.CollateralChain, payout); err != nil {
		return fmt.Errorf("slash %s: %w", hash.Hex(), err)
	}
	if _, err := storage.Resolved.Add(tx.Batch, hash); err != nil {
		return err
	}
	_, err := tx.Emit(order.CollateralLiqSlashEventSig, hash, hash, reporter)
	return err
}
