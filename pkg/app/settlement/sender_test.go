package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/order"
)

func TestSendWindows(t *testing.T) {
	type sendFn func(s *Service, ctx context.Context, caller common.Address, o *order.Order) (common.Hash, error)
	var (
		send    sendFn = (*Service).SendOrderAsset
		liqSend sendFn = (*Service).SendOrderLiqAsset
	)

	tests := []struct {
		name      string
		now       int64
		caller    common.Address
		call      sendFn
		wantErr   error
		wantLiq   bool
		wantEvent string
	}{
		{"early send by to-actor", deadline - 50, toActor, send, nil, false, "AssetSend"},
		{"last second of exclusive window", sendEnd - 1, toActor, send, nil, false, "AssetSend"},
		{"to-actor after exclusive window", sendEnd, toActor, send, order.ErrOrderSendExpired, false, ""},
		{"to-actor after every window", liqEnd + 30, toActor, send, order.ErrOrderSendExpired, false, ""},
		{"stranger inside exclusive window", deadline + 10, liquidator, send, order.ErrSendCallerMismatch, false, ""},
		{"explicit liquidation too early", sendEnd - 1, liquidator, liqSend, order.ErrOrderLiqSendUnreached, false, ""},
		{"liquidation at window start", sendEnd, liquidator, send, nil, true, "AssetLiqSend"},
		{"explicit liquidation", liqEnd - 1, liquidator, liqSend, nil, true, "AssetLiqSend"},
		{"liquidation after window", liqEnd, liquidator, send, order.ErrOrderLiqSendExpired, false, ""},
		{"explicit liquidation after window", liqEnd, liquidator, liqSend, order.ErrOrderLiqSendExpired, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			o := env.order()
			env.receive(o)
			env.at(tt.now)
			receiverBefore := env.balance(toToken, o.FromActorReceiver)
			callerBefore := env.balance(toToken, tt.caller)

			h, err := tt.call(env.svc, context.Background(), tt.caller, o)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			st := env.status(h)
			if tt.wantErr != nil {
				if st.Sent || env.balance(toToken, tt.caller) != callerBefore {
					t.Error("failed send changed state")
				}
				return
			}

			if !st.Sent {
				t.Error("sent flag not set")
			}
			if got := env.balance(toToken, o.FromActorReceiver) - receiverBefore; got != 43 {
				t.Errorf("receiver got %d, want 43", got)
			}
			if got := callerBefore - env.balance(toToken, tt.caller); got != 43 {
				t.Errorf("caller paid %d, want 43", got)
			}
			names := env.eventNames()
			if last := names[len(names)-1]; last != tt.wantEvent {
				t.Errorf("last event = %s, want %s", last, tt.wantEvent)
			}
			if tt.wantLiq {
				if st.Liquidator != tt.caller {
					t.Errorf("liquidator = %s, want %s", st.Liquidator.Hex(), tt.caller.Hex())
				}
				if ok, _ := env.svc.HasMarker(order.LiqSendEventHash(h, tt.caller)); !ok {
					t.Error("liquidation-send marker missing")
				}
				if ok, _ := env.svc.HasMarker(order.SendEventHash(h)); ok {
					t.Error("liquidation must not set the plain send marker")
				}
			} else {
				if st.Liquidator != (common.Address{}) {
					t.Errorf("liquidator recorded for plain send: %s", st.Liquidator.Hex())
				}
				if ok, _ := env.svc.HasMarker(order.SendEventHash(h)); !ok {
					t.Error("send marker missing")
				}
			}
		})
	}
}

func TestSendOnlyOnce(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	env.receive(o)
	if _, err := env.svc.SendOrderAsset(context.Background(), toActor, o); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.svc.SendOrderAsset(context.Background(), toActor, o); !errors.Is(err, order.ErrOrderAlreadySent) {
		t.Errorf("second send: %v", err)
	}
	env.at(sendEnd)
	if _, err := env.svc.SendOrderLiqAsset(context.Background(), liquidator, o); !errors.Is(err, order.ErrOrderAlreadySent) {
		t.Errorf("liquidation after send: %v", err)
	}
	if got := env.balance(toToken, o.FromActorReceiver); got != 43 {
		t.Errorf("receiver = %d, want 43", got)
	}
}

func TestLiquidationNeighbourOrders(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	env.at(sendEnd + 1)
	h1, err := env.svc.SendOrderLiqAsset(context.Background(), liquidator, o)
	if err != nil {
		t.Fatal(err)
	}
	neighbour := o.WithNonce(big.NewInt(8))
	h2, err := env.svc.SendOrderLiqAsset(context.Background(), liquidator, neighbour)
	if err != nil {
		t.Fatalf("neighbour liquidation: %v", err)
	}
	if h1 == h2 {
		t.Fatal("neighbour shares identity")
	}
	for _, h := range []common.Hash{h1, h2} {
		if ok, _ := env.svc.HasMarker(order.LiqSendEventHash(h, liquidator)); !ok {
			t.Errorf("marker missing for %s", h.Hex())
		}
	}
}

func TestReportOrderNoSend(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	env.receive(o)

	env.at(liqEnd - 1)
	if _, err := env.svc.ReportOrderNoSend(context.Background(), reporter, o); !errors.Is(err, order.ErrOrderNoSendUnreached) {
		t.Fatalf("early report: %v", err)
	}

	env.at(liqEnd)
	h, err := env.svc.ReportOrderNoSend(context.Background(), reporter, o)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if ok, _ := env.svc.HasMarker(order.NoSendEventHash(h, reporter)); !ok {
		t.Fatal("no-send marker missing")
	}
	events := len(env.sink.events)

	// same reporter again: no-op, no new event
	if _, err := env.svc.ReportOrderNoSend(context.Background(), reporter, o); err != nil {
		t.Fatalf("repeat report: %v", err)
	}
	if len(env.sink.events) != events {
		t.Error("repeat report emitted an event")
	}

	// a different reporter gets an independent marker
	if _, err := env.svc.ReportOrderNoSend(context.Background(), liquidator, o); err != nil {
		t.Fatalf("second reporter: %v", err)
	}
	if ok, _ := env.svc.HasMarker(order.NoSendEventHash(h, liquidator)); !ok {
		t.Error("second reporter marker missing")
	}
}

func TestReportNoSendAfterSend(t *testing.T) {
	env := newEnv(t)
	o := env.order()
	env.receive(o)
	if _, err := env.svc.SendOrderAsset(context.Background(), toActor, o); err != nil {
		t.Fatal(err)
	}
	env.at(liqEnd)
	if _, err := env.svc.ReportOrderNoSend(context.Background(), reporter, o); !errors.Is(err, order.ErrOrderAlreadySent) {
		t.Errorf("expected ErrOrderAlreadySent, got %v", err)
	}
}

func TestErrorClasses(t *testing.T) {
	cases := map[error]order.Class{
		order.ErrSendCallerMismatch:    order.ClassAuthorization,
		order.ErrOrderAlreadySent:      order.ClassState,
		order.ErrOrderLiqSendExpired:   order.ClassTemporal,
		order.ErrOrderNoSendUnreached:  order.ClassTemporal,
		order.ErrLockRefusal:           order.ClassResource,
		order.ErrBitcoinLockRefusal:    order.ClassState,
		order.ErrBitcoinLockerMismatch: order.ClassAuthorization,
	}
	for err, want := range cases {
		if got := order.ClassOf(err); got != want {
			t.Errorf("ClassOf(%v) = %s, want %s", err, got, want)
		}
	}
}
