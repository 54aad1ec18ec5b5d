package transaction

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/flash/pkg/app/settlement"
	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/proof"
	"github.com/uhyunpark/flash/pkg/storage"
	"github.com/uhyunpark/flash/pkg/util"
)

const deadline = 1_700_000_000

var (
	fromChain = big.NewInt(31337)
	toChain   = big.NewInt(1337)
	colChain  = big.NewInt(13037)
	fromToken = common.HexToAddress("0x1000000000000000000000000000000000000001")
	toToken   = common.HexToAddress("0x1000000000000000000000000000000000000002")
	colToken  = common.HexToAddress("0x1000000000000000000000000000000000000003")
	colRecv   = common.HexToAddress("0xC0C0000000000000000000000000000000000000")
)

type fixture struct {
	t          *testing.T
	dispatcher *Dispatcher
	svc        *settlement.Service
	codec      *order.Codec
	clock      *util.ManualClock
	from, to   *crypto.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	from, _ := crypto.GenerateKey()
	to, _ := crypto.GenerateKey()
	clock := util.NewManualClockUnix(deadline - 100)
	l := ledger.New(store, ledger.Config{
		ChainID:          fromChain,
		Clock:            clock,
		CollateralTokens: map[string]common.Address{colChain.String(): colToken},
	})
	_, err = l.ApplyGenesis(context.Background(), ledger.Genesis{
		Balances: []ledger.GenesisBalance{
			{Token: fromToken, Owner: from.Address(), Amount: big.NewInt(123)},
			{Token: toToken, Owner: to.Address(), Amount: big.NewInt(100)},
		},
		Collateral: []ledger.GenesisCollateral{{Actor: to.Address(), Chain: colChain, Amount: big.NewInt(30)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	codec := order.NewCodec(crypto.DefaultDomain())
	sigs := order.NewSignatureVerifier(nil)
	svc := settlement.NewService(settlement.Config{Ledger: l, Codec: codec, Signatures: sigs, Proofs: proof.Dev{}})
	return &fixture{
		t:          t,
		dispatcher: NewDispatcher(svc, NewVerifier(codec, sigs), nil),
		svc:        svc,
		codec:      codec,
		clock:      clock,
		from:       from,
		to:         to,
	}
}

func (f *fixture) order() *order.Order {
	return &order.Order{
		FromActor:            f.from.Address(),
		FromActorReceiver:    f.from.Address(),
		FromChain:            fromChain,
		FromToken:            fromToken,
		FromAmount:           big.NewInt(65),
		ToActor:              f.to.Address(),
		ToChain:              toChain,
		ToToken:              toToken,
		ToAmount:             big.NewInt(43),
		CollateralReceiver:   colRecv,
		CollateralChain:      colChain,
		CollateralAmount:     big.NewInt(21),
		CollateralRewardable: big.NewInt(4),
		CollateralUnlocked:   big.NewInt(25),
		Deadline:             big.NewInt(deadline),
		TimeToSend:           big.NewInt(600),
		TimeToLiqSend:        big.NewInt(1200),
		Nonce:                big.NewInt(7),
	}
}

// envelope builds a transaction signed by caller
func (f *fixture) envelope(typ TxType, o *order.Order, caller *crypto.Signer) *SignedTransaction {
	f.t.Helper()
	h, err := f.codec.OrderHash(o)
	if err != nil {
		f.t.Fatal(err)
	}
	callHash, err := CallHash(f.codec.Domain(), typ, h, caller.Address())
	if err != nil {
		f.t.Fatal(err)
	}
	callSig, err := caller.SignHash(callHash)
	if err != nil {
		f.t.Fatal(err)
	}
	tx := &SignedTransaction{
		Type:            typ,
		Order:           order.FromOrder(o),
		Caller:          caller.Address().Hex(),
		CallerSignature: hexutil.Encode(callSig),
	}
	if typ == TxReceive {
		sig, err := f.from.SignHash(h)
		if err != nil {
			f.t.Fatal(err)
		}
		tx.Signature = hexutil.Encode(sig)
	}
	return tx
}

func devProofHex(t *testing.T, sig, key common.Hash, chain *big.Int) string {
	t.Helper()
	p, err := proof.DevProof(sig, key, chain)
	if err != nil {
		t.Fatal(err)
	}
	return hexutil.Encode(p)
}

func TestDispatchLifecycle(t *testing.T) {
	f := newFixture(t)
	o := f.order()
	ctx := context.Background()

	res, err := f.dispatcher.Apply(ctx, f.envelope(TxReceive, o, f.to))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	want, _ := f.codec.OrderHash(o)
	if res.OrderHash != want || res.Caller != f.to.Address() {
		t.Fatalf("result = %+v", res)
	}

	raw, err := f.envelope(TxSend, o, f.to).Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.dispatcher.Submit(ctx, raw); err != nil {
		t.Fatalf("send: %v", err)
	}

	// anyone may confirm; the proofs carry the weight
	confirm := f.envelope(TxConfirm, o, f.from)
	confirm.Proofs = Proofs{
		Receive: devProofHex(t, order.AssetReceiveEventSig, want, fromChain),
		Send:    devProofHex(t, order.AssetSendEventSig, want, toChain),
	}
	if _, err := f.dispatcher.Apply(ctx, confirm); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if ok, _ := f.svc.OrderResolved(want); !ok {
		t.Error("order not resolved")
	}
}

func TestDispatchSlashDefaultsReporterToCaller(t *testing.T) {
	f := newFixture(t)
	o := f.order()
	ctx := context.Background()
	if _, err := f.dispatcher.Apply(ctx, f.envelope(TxReceive, o, f.to)); err != nil {
		t.Fatal(err)
	}
	h, _ := f.codec.OrderHash(o)

	reporter, _ := crypto.GenerateKey()
	f.clock.SetUnix(deadline + 600 + 1200)
	if _, err := f.dispatcher.Apply(ctx, f.envelope(TxReportNoSend, o, reporter)); err != nil {
		t.Fatalf("report: %v", err)
	}

	slash := f.envelope(TxSlash, o, reporter)
	slash.Proofs = Proofs{
		Receive: devProofHex(t, order.AssetReceiveEventSig, h, fromChain),
		NoSend:  devProofHex(t, order.AssetNoSendEventSig, order.OrderActorHash(h, reporter.Address()), toChain),
	}
	if _, err := f.dispatcher.Apply(ctx, slash); err != nil {
		t.Fatalf("slash: %v", err)
	}
	if b, _ := f.svc.Balance(colToken, reporter.Address()); b.Int64() != 4 {
		t.Errorf("reporter reward = %s, want 4", b)
	}
}

func TestDispatchRejectsForgedCaller(t *testing.T) {
	f := newFixture(t)
	o := f.order()

	// signed by the from-actor but claiming to be the to-actor
	tx := f.envelope(TxReceive, o, f.from)
	tx.Caller = f.to.Address().Hex()
	_, err := f.dispatcher.Apply(context.Background(), tx)
	if !errors.Is(err, order.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	// a call signed for another action does not carry over
	tx = f.envelope(TxSend, o, f.to)
	tx.Type = TxReceive
	tx.Signature = f.envelope(TxReceive, o, f.to).Signature
	if _, err := f.dispatcher.Apply(context.Background(), tx); !errors.Is(err, order.ErrInvalidSignature) {
		t.Errorf("replayed call signature: %v", err)
	}
	h, _ := f.codec.OrderHash(o)
	if ok, _ := f.svc.OrderAssetReceived(h); ok {
		t.Error("rejected transaction took effect")
	}
}

func TestDispatchSurfacesSettlementErrors(t *testing.T) {
	f := newFixture(t)
	o := f.order()
	_, err := f.dispatcher.Apply(context.Background(), f.envelope(TxSend, o, f.from))
	if !errors.Is(err, order.ErrSendCallerMismatch) {
		t.Errorf("expected ErrSendCallerMismatch, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	o := f.order()
	tests := []struct {
		name   string
		mutate func(tx *SignedTransaction)
	}{
		{"missing type", func(tx *SignedTransaction) { tx.Type = "" }},
		{"unknown type", func(tx *SignedTransaction) { tx.Type = "withdraw" }},
		{"bad caller", func(tx *SignedTransaction) { tx.Caller = "bob" }},
		{"no caller signature", func(tx *SignedTransaction) { tx.CallerSignature = "" }},
		{"no order", func(tx *SignedTransaction) { tx.Order = nil }},
		{"bitcoin type without bitcoin order", func(tx *SignedTransaction) { tx.Type = TxBitcoinSend }},
		{"receive without order signature", func(tx *SignedTransaction) { tx.Signature = "" }},
		{"confirm without proofs", func(tx *SignedTransaction) { tx.Type = TxConfirm }},
		{"bad reporter", func(tx *SignedTransaction) { tx.Reporter = "0x12" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := f.envelope(TxReceive, o, f.to)
			tt.mutate(tx)
			if err := tx.Validate(); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
	if err := f.envelope(TxReceive, o, f.to).Validate(); err != nil {
		t.Errorf("valid envelope rejected: %v", err)
	}
}

func TestDeserializeGarbage(t *testing.T) {
	if _, err := Deserialize([]byte("O:GTC:BTC")); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
	f := newFixture(t)
	tx := f.envelope(TxReceive, f.order(), f.to)
	tx.CallerSignature = "0xzz"
	if _, err := f.dispatcher.Apply(context.Background(), tx); !errors.Is(err, ErrMalformed) {
		t.Errorf("bad hex: %v", err)
	}
}
