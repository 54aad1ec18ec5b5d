package transaction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/pkg/app/settlement"
	"github.com/uhyunpark/flash/pkg/util"
)

// Result is what a successfully applied transaction reports back
type Result struct {
	Type      TxType         `json:"type"`
	OrderHash common.Hash    `json:"orderHash"`
	Caller    common.Address `json:"caller"`
}

// Dispatcher authenticates envelopes and applies them to the settlement
// service
type Dispatcher struct {
	svc      *settlement.Service
	verifier *Verifier
	log      *zap.SugaredLogger
}

func NewDispatcher(svc *settlement.Service, verifier *Verifier, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{svc: svc, verifier: verifier, log: util.Sugar(logger)}
}

// Submit decodes raw JSON and applies it
func (d *Dispatcher) Submit(ctx context.Context, raw []byte) (Result, error) {
	tx, err := Deserialize(raw)
	if err != nil {
		return Result{}, err
	}
	return d.Apply(ctx, tx)
}

func (d *Dispatcher) Apply(ctx context.Context, tx *SignedTransaction) (Result, error) {
	dec, err := d.verifier.Verify(tx)
	if err != nil {
		d.log.Warnw("tx_rejected", "type", tx.Type, "caller", tx.Caller, "err", err)
		return Result{}, err
	}
	res := Result{Type: tx.Type, OrderHash: dec.OrderHash, Caller: dec.Caller}

	proofs, err := decodeProofs(tx.Proofs)
	if err != nil {
		return res, err
	}
	if _, err := d.apply(ctx, dec, proofs); err != nil {
		d.log.Warnw("tx_failed", "type", tx.Type, "order", dec.OrderHash.Hex(), "caller", dec.Caller.Hex(), "err", err)
		return res, err
	}
	d.log.Debugw("tx_applied", "type", tx.Type, "order", dec.OrderHash.Hex())
	return res, nil
}

type rawProofs struct {
	receive, send, liqSend, noSend, noReceive []byte
}

func decodeProofs(p Proofs) (rawProofs, error) {
	var (
		out rawProofs
		err error
	)
	for _, f := range []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"receive proof", p.Receive, &out.receive},
		{"send proof", p.Send, &out.send},
		{"liquidation-send proof", p.LiqSend, &out.liqSend},
		{"no-send proof", p.NoSend, &out.noSend},
		{"no-receive proof", p.NoReceive, &out.noReceive},
	} {
		if *f.dst, err = decodeHex(f.name, f.src); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *Dispatcher) apply(ctx context.Context, dec *Decoded, p rawProofs) (common.Hash, error) {
	tx, o, ob, caller := dec.Tx, dec.Order, dec.OrderBitcoin, dec.Caller
	switch tx.Type {
	case TxReceive:
		return d.svc.ReceiveOrderAsset(ctx, caller, o, dec.Signature)
	case TxSend:
		return d.svc.SendOrderAsset(ctx, caller, o)
	case TxLiqSend:
		return d.svc.SendOrderLiqAsset(ctx, caller, o)
	case TxReportNoSend:
		return d.svc.ReportOrderNoSend(ctx, caller, o)
	case TxConfirm:
		return d.svc.ConfirmOrderAssetSend(ctx, o, p.receive, p.send)
	case TxSlash:
		return d.svc.SlashOrderCollateral(ctx, o, tx.ReporterAddress(), p.receive, p.noSend)
	case TxSlashLiq:
		return d.svc.SlashOrderLiqCollateral(ctx, o, tx.ReporterAddress(), p.receive, p.liqSend)

	case TxBitcoinReceive:
		return d.svc.ReceiveOrderBitcoinAsset(ctx, caller, ob, dec.Signature)
	case TxBitcoinSend:
		return d.svc.SendOrderBitcoinAsset(ctx, caller, ob)
	case TxBitcoinLiqSend:
		return d.svc.SendOrderBitcoinLiqAsset(ctx, caller, ob)
	case TxBitcoinReportNoSend:
		return d.svc.ReportOrderBitcoinNoSend(ctx, caller, ob)
	case TxBitcoinLock:
		return d.svc.LockOrderBitcoinCollateral(ctx, caller, ob, dec.Signature)
	case TxBitcoinUnlock:
		return d.svc.UnlockOrderBitcoinCollateral(ctx, caller, ob, p.noReceive)
	case TxBitcoinConfirm:
		return d.svc.ConfirmOrderBitcoinAssetSend(ctx, ob, p.receive, p.send)
	case TxBitcoinSlash:
		return d.svc.SlashOrderBitcoinCollateral(ctx, ob, tx.ReporterAddress(), p.receive, p.noSend)
	case TxBitcoinSlashLiq:
		return d.svc.SlashOrderBitcoinLiqCollateral(ctx, ob, tx.ReporterAddress(), p.receive, p.liqSend)
	}
	return common.Hash{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, tx.Type)
}
