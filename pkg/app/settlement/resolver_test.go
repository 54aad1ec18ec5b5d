package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/proof"
)

func receiveProof(t *testing.T, h common.Hash) []byte {
	return devProof(t, order.AssetReceiveEventSig, h, fromChain)
}

func sendProof(t *testing.T, h common.Hash) []byte {
	return devProof(t, order.AssetSendEventSig, h, toChain)
}

func noSendProof(t *testing.T, h common.Hash, who common.Address) []byte {
	return devProof(t, order.AssetNoSendEventSig, order.OrderActorHash(h, who), toChain)
}

func liqSendProof(t *testing.T, h common.Hash, who common.Address) []byte {
	return devProof(t, order.AssetLiqSendEventSig, order.OrderActorHash(h, who), toChain)
}

func TestConfirmEndToEnd(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	h := env.receive(o)
	if _, err := env.svc.SendOrderAsset(context.Background(), toActor, o); err != nil {
		t.Fatal(err)
	}
	if got := env.balance(toToken, o.FromActorReceiver); got != 43 {
		t.Fatalf("from-actor receiver = %d, want 43", got)
	}

	if _, err := env.svc.ConfirmOrderAssetSend(context.Background(), o, receiveProof(t, h), sendProof(t, h)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	st := env.collateral()
	if st.UnlockCounter.Int64() != 21 || st.Locked().Sign() != 0 || st.Available().Int64() != 30 {
		t.Errorf("collateral after confirm: %+v", st)
	}
	if !env.status(h).Resolved {
		t.Error("order not resolved")
	}
	names := env.eventNames()
	want := []string{"AssetReceive", "AssetSend", "CollateralConfirm"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestSlashEndToEnd(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	h := env.receive(o)
	env.at(liqEnd)
	if _, err := env.svc.ReportOrderNoSend(context.Background(), reporter, o); err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.SlashOrderCollateral(context.Background(), o, reporter, receiveProof(t, h), noSendProof(t, h, reporter)); err != nil {
		t.Fatalf("slash: %v", err)
	}
	if got := env.balance(colToken, reporter); got != 4 {
		t.Errorf("reporter = %d, want 4", got)
	}
	if got := env.balance(colToken, colRecv); got != 17 {
		t.Errorf("collateral receiver = %d, want 17", got)
	}
	st := env.collateral()
	if st.Slashed.Int64() != 21 || st.Deposited.Int64() != 9 || st.Locked().Sign() != 0 {
		t.Errorf("collateral after slash: %+v", st)
	}
}

// the collateral ledger holds only the deposit; receive happened on the
// from-chain and is known here through its proof
func TestResolveOnCollateralLedger(t *testing.T) {
	env := newEnv(t)
	confirmed := env.order()
	h, err := env.svc.ConfirmOrderAssetSend(context.Background(), confirmed, receiveProof(t, mustHash(t, env, confirmed)), sendProof(t, mustHash(t, env, confirmed)))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if st := env.collateral(); st.UnlockCounter.Int64() != 21 || st.Available().Int64() != 30 {
		t.Errorf("collateral after confirm: %+v", st)
	}
	if !env.status(h).Resolved {
		t.Error("order not resolved")
	}

	slashed := env.order().WithNonce(big.NewInt(8))
	sh := mustHash(t, env, slashed)
	if _, err := env.svc.SlashOrderCollateral(context.Background(), slashed, reporter, receiveProof(t, sh), noSendProof(t, sh, reporter)); err != nil {
		t.Fatalf("slash: %v", err)
	}
	if got := env.balance(colToken, reporter); got != 4 {
		t.Errorf("reporter = %d, want 4", got)
	}
	if got := env.balance(colToken, colRecv); got != 17 {
		t.Errorf("collateral receiver = %d, want 17", got)
	}
	if st := env.collateral(); st.Deposited.Int64() != 9 || st.Available().Int64() != 9 {
		t.Errorf("collateral after slash: %+v", st)
	}
}

func mustHash(t *testing.T, env *testEnv, o *order.Order) common.Hash {
	t.Helper()
	h, err := env.codec.OrderHash(o)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestSlashWithAnotherReportersProof(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	h := env.receive(o)

	// liquidator claims the reward with a proof the reporter earned
	_, err := env.svc.SlashOrderCollateral(context.Background(), o, liquidator, receiveProof(t, h), noSendProof(t, h, reporter))
	if !errors.Is(err, proof.ErrUnexpectedHash) {
		t.Fatalf("expected ErrUnexpectedHash, got %v", err)
	}
	if order.ClassOf(err) != order.ClassAuthorization {
		t.Errorf("class = %s", order.ClassOf(err))
	}
	if env.status(h).Resolved || env.balance(colToken, liquidator) != 0 {
		t.Error("failed slash changed state")
	}
}

func TestSplitSlash(t *testing.T) {
	env := newEnv(t)
	tests := []struct {
		name         string
		rewardable   int64
		reporter     common.Address
		wantReporter int64
		wantReceiver int64
	}{
		{"no reward", 0, reporter, 0, 21},
		{"partial reward", 4, reporter, 4, 17},
		{"whole amount", 21, reporter, 21, 0},
		{"reward capped at amount", 25, reporter, 21, 0},
		{"from-actor reports itself", 4, env.from.Address(), 0, 21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := env.order()
			o.CollateralRewardable = big.NewInt(tt.rewardable)
			sp := SplitSlash(o, tt.reporter)
			if sp.Reporter.Int64() != tt.wantReporter || sp.Receiver.Int64() != tt.wantReceiver {
				t.Errorf("split = %s/%s, want %d/%d", sp.Reporter, sp.Receiver, tt.wantReporter, tt.wantReceiver)
			}
			if total := new(big.Int).Add(sp.Reporter, sp.Receiver); total.Cmp(o.CollateralAmount) != 0 {
				t.Errorf("split total %s, collateral %s", total, o.CollateralAmount)
			}
		})
	}
}

func TestSlashLiqPaysLiquidator(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	h := env.receive(o)
	env.at(sendEnd + 5)
	if _, err := env.svc.SendOrderAsset(context.Background(), liquidator, o); err != nil {
		t.Fatal(err)
	}

	// a liquidation send cannot stand in for a plain one
	if _, err := env.svc.ConfirmOrderAssetSend(context.Background(), o, receiveProof(t, h), liqSendProof(t, h, liquidator)); !errors.Is(err, proof.ErrUnexpectedHash) {
		t.Fatalf("confirm with liquidation proof: %v", err)
	}

	if _, err := env.svc.SlashOrderLiqCollateral(context.Background(), o, liquidator, receiveProof(t, h), liqSendProof(t, h, liquidator)); err != nil {
		t.Fatalf("liquidation slash: %v", err)
	}
	if got := env.balance(colToken, liquidator); got != 21 {
		t.Errorf("liquidator collateral = %d, want 21", got)
	}
	if got := env.balance(colToken, colRecv); got != 0 {
		t.Errorf("collateral receiver = %d, want 0", got)
	}
	if names := env.eventNames(); names[len(names)-1] != "CollateralLiqSlash" {
		t.Errorf("last event = %s", names[len(names)-1])
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	h := env.receive(o)
	if _, err := env.svc.SendOrderAsset(context.Background(), toActor, o); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.ConfirmOrderAssetSend(context.Background(), o, receiveProof(t, h), sendProof(t, h)); err != nil {
		t.Fatal(err)
	}

	_, err := env.svc.ConfirmOrderAssetSend(context.Background(), o, receiveProof(t, h), sendProof(t, h))
	if !errors.Is(err, order.ErrOrderAlreadyResolved) {
		t.Errorf("second confirm: %v", err)
	}
	_, err = env.svc.SlashOrderCollateral(context.Background(), o, reporter, receiveProof(t, h), noSendProof(t, h, reporter))
	if !errors.Is(err, order.ErrOrderAlreadyResolved) {
		t.Errorf("slash after confirm: %v", err)
	}
	if st := env.collateral(); st.UnlockCounter.Int64() != 21 || st.Slashed.Sign() != 0 {
		t.Errorf("collateral = %+v", st)
	}
}

func TestConfirmRequiresReceiveProofOnFromChain(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	h := env.receive(o)
	if _, err := env.svc.SendOrderAsset(context.Background(), toActor, o); err != nil {
		t.Fatal(err)
	}
	wrongChain := devProof(t, order.AssetReceiveEventSig, h, toChain)
	_, err := env.svc.ConfirmOrderAssetSend(context.Background(), o, wrongChain, sendProof(t, h))
	if !errors.Is(err, proof.ErrUnexpectedChain) {
		t.Errorf("expected ErrUnexpectedChain, got %v", err)
	}
	_, err = env.svc.ConfirmOrderAssetSend(context.Background(), o, []byte{0x01}, sendProof(t, h))
	if !errors.Is(err, proof.ErrInvalidProof) {
		t.Errorf("expected ErrInvalidProof, got %v", err)
	}
}
