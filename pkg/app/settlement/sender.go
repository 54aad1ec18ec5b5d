package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/storage"
)

// Delivery windows, all anchored at order.deadline:
//
//	[.., deadline+timeToSend)                          to-actor only
//	[deadline+timeToSend, +timeToLiqSend)              any caller (liquidation)
//	[deadline+timeToSend+timeToLiqSend, ..)            no-send may be reported

// SendOrderAsset delivers the to-asset to the from-actor's receiver. The
// to-actor sends during its exclusive window; anyone else sends as a
// liquidator once that window is over.
func (s *Service) SendOrderAsset(ctx context.Context, caller common.Address, o *order.Order) (common.Hash, error) {
	o = o.Normalized()
	hash, err := s.codec.OrderHash(o)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execSend(ctx, "settlement_send", caller, hash, o, s.send)
}

// SendOrderLiqAsset is an explicit liquidation send; it fails before the
// exclusive window has ended
func (s *Service) SendOrderLiqAsset(ctx context.Context, caller common.Address, o *order.Order) (common.Hash, error) {
	o = o.Normalized()
	hash, err := s.codec.OrderHash(o)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execSend(ctx, "settlement_liq_send", caller, hash, o, s.liqSend)
}

// ReportOrderNoSend records that caller observed no delivery after every
// window lapsed. Each reporter gets its own marker.
func (s *Service) ReportOrderNoSend(ctx context.Context, caller common.Address, o *order.Order) (common.Hash, error) {
	o = o.Normalized()
	hash, err := s.codec.OrderHash(o)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execSend(ctx, "settlement_report_no_send", caller, hash, o, s.reportNoSend)
}

func (s *Service) SendOrderBitcoinAsset(ctx context.Context, caller common.Address, ob *order.OrderBitcoin) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execSend(ctx, "settlement_send_bitcoin", caller, hash, &ob.Order, s.send)
}

func (s *Service) SendOrderBitcoinLiqAsset(ctx context.Context, caller common.Address, ob *order.OrderBitcoin) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execSend(ctx, "settlement_liq_send_bitcoin", caller, hash, &ob.Order, s.liqSend)
}

func (s *Service) ReportOrderBitcoinNoSend(ctx context.Context, caller common.Address, ob *order.OrderBitcoin) (common.Hash, error) {
	ob = ob.Normalized()
	hash, err := s.codec.OrderBitcoinHash(ob)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, s.execSend(ctx, "settlement_report_no_send_bitcoin", caller, hash, &ob.Order, s.reportNoSend)
}

type sendStep func(tx *ledger.Tx, caller common.Address, hash common.Hash, o *order.Order) error

func (s *Service) execSend(ctx context.Context, event string, caller common.Address, hash common.Hash, o *order.Order, step sendStep) error {
	err := s.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		return step(tx, caller, hash, o)
	})
	if err != nil {
		return err
	}
	s.log.Infow(event, "order", hash.Hex(), "caller", caller.Hex())
	return nil
}

func (s *Service) send(tx *ledger.Tx, caller common.Address, hash common.Hash, o *order.Order) error {
	if err := s.checkNotSent(tx, hash); err != nil {
		return err
	}
	now := tx.Now()
	sendEnd := o.SendDeadline()
	if caller == o.ToActor {
		if reached(now, sendEnd) {
			return fmt.Errorf("%w: window closed at %s, now %d", order.ErrOrderSendExpired, sendEnd, now)
		}
		return s.deliver(tx, caller, hash, o, false)
	}
	if !reached(now, sendEnd) {
		return fmt.Errorf("%w: caller %s, to-actor %s", order.ErrSendCallerMismatch, caller.Hex(), o.ToActor.Hex())
	}
	if err := checkLiqWindow(now, o); err != nil {
		return err
	}
	return s.deliver(tx, caller, hash, o, true)
}

func (s *Service) liqSend(tx *ledger.Tx, caller common.Address, hash common.Hash, o *order.Order) error {
	if err := s.checkNotSent(tx, hash); err != nil {
		return err
	}
	now := tx.Now()
	if sendEnd := o.SendDeadline(); !reached(now, sendEnd) {
		return fmt.Errorf("%w: opens at %s, now %d", order.ErrOrderLiqSendUnreached, sendEnd, now)
	}
	if err := checkLiqWindow(now, o); err != nil {
		return err
	}
	return s.deliver(tx, caller, hash, o, true)
}

func checkLiqWindow(now int64, o *order.Order) error {
	if liqEnd := o.LiqSendDeadline(); reached(now, liqEnd) {
		return fmt.Errorf("%w: window closed at %s, now %d", order.ErrOrderLiqSendExpired, liqEnd, now)
	}
	return nil
}

func (s *Service) checkNotSent(tx *ledger.Tx, hash common.Hash) error {
	sent, err := has(tx, storage.Sent, hash)
	if err != nil {
		return err
	}
	if sent {
		return order.ErrOrderAlreadySent
	}
	return nil
}

func (s *Service) deliver(tx *ledger.Tx, caller common.Address, hash common.Hash, o *order.Order, liquidation bool) error {
	if err := tx.Transfer(o.ToToken, caller, o.FromActorReceiver, o.ToAmount); err != nil {
		return err
	}
	if _, err := storage.Sent.Add(tx.Batch, hash); err != nil {
		return err
	}
	if !liquidation {
		_, err := tx.Emit(order.AssetSendEventSig, hash, hash, caller)
		return err
	}
	if err := tx.SetLiquidator(hash, caller); err != nil {
		return err
	}
	_, err := tx.Emit(order.AssetLiqSendEventSig, order.OrderActorHash(hash, caller), hash, caller)
	return err
}

func (s *Service) reportNoSend(tx *ledger.Tx, caller common.Address, hash common.Hash, o *order.Order) error {
	now := tx.Now()
	if liqEnd := o.LiqSendDeadline(); !reached(now, liqEnd) {
		return fmt.Errorf("%w: reportable from %s, now %d", order.ErrOrderNoSendUnreached, liqEnd, now)
	}
	if err := s.checkNotSent(tx, hash); err != nil {
		return err
	}
	// a repeated report by the same reporter changes nothing
	marked, err := has(tx, storage.Markers, order.NoSendEventHash(hash, caller))
	if err != nil || marked {
		return err
	}
	_, err = tx.Emit(order.AssetNoSendEventSig, order.OrderActorHash(hash, caller), hash, caller)
	return err
}
