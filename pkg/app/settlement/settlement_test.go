package settlement

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/proof"
	"github.com/uhyunpark/flash/pkg/storage"
	"github.com/uhyunpark/flash/pkg/util"
)

const (
	deadline      = 1_700_000_000
	timeToSend    = 600
	timeToLiqSend = 1200
	sendEnd       = deadline + timeToSend
	liqEnd        = sendEnd + timeToLiqSend
)

var (
	fromChain    = big.NewInt(31337)
	toChain      = big.NewInt(1337)
	colChain     = big.NewInt(13037)
	bitcoinChain = big.NewInt(8332)

	fromToken = common.HexToAddress("0x1000000000000000000000000000000000000001")
	toToken   = common.HexToAddress("0x1000000000000000000000000000000000000002")
	colToken  = common.HexToAddress("0x1000000000000000000000000000000000000003")

	toActor    = common.HexToAddress("0xB0B0000000000000000000000000000000000000")
	colRecv    = common.HexToAddress("0xC0C0000000000000000000000000000000000000")
	reporter   = common.HexToAddress("0xEE00000000000000000000000000000000000000")
	liquidator = common.HexToAddress("0xDD00000000000000000000000000000000000000")
)

type recordingSink struct{ events []ledger.Event }

func (r *recordingSink) OnCommit(events []ledger.Event) { r.events = append(r.events, events...) }

type testEnv struct {
	t      *testing.T
	svc    *Service
	ledger *ledger.Ledger
	clock  *util.ManualClock
	codec  *order.Codec
	from   *crypto.Signer
	sink   *recordingSink
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvWithNet(t, nil)
}

func newEnvWithNet(t *testing.T, net *chaincfg.Params) *testEnv {
	t.Helper()
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	from, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	clock := util.NewManualClockUnix(deadline - 100)
	l := ledger.New(store, ledger.Config{
		ChainID:          fromChain,
		Clock:            clock,
		CollateralTokens: map[string]common.Address{colChain.String(): colToken},
	})
	sink := &recordingSink{}
	l.AddSink(sink)
	codec := order.NewCodec(crypto.DefaultDomain())

	env := &testEnv{
		t:      t,
		ledger: l,
		clock:  clock,
		codec:  codec,
		from:   from,
		sink:   sink,
		svc: NewService(Config{
			Ledger:     l,
			Codec:      codec,
			Proofs:     proof.Dev{},
			BitcoinNet: net,
		}),
	}

	// genesis: from-actor holds the from-asset, the to-actor and a
	// liquidator hold the to-asset, the to-actor has 30 collateral
	env.exec(func(tx *ledger.Tx) error {
		for _, c := range []struct {
			tok, owner common.Address
			amount     int64
		}{
			{fromToken, from.Address(), 123},
			{toToken, toActor, 100},
			{toToken, liquidator, 100},
			{colToken, toActor, 30},
		} {
			if err := tx.Credit(c.tok, c.owner, big.NewInt(c.amount)); err != nil {
				return err
			}
		}
		return tx.Deposit(toActor, colChain, big.NewInt(30))
	})
	return env
}

func (e *testEnv) exec(fn func(tx *ledger.Tx) error) {
	e.t.Helper()
	if err := e.ledger.Execute(context.Background(), fn); err != nil {
		e.t.Fatalf("execute: %v", err)
	}
}

func (e *testEnv) order() *order.Order {
	return &order.Order{
		FromActor:            e.from.Address(),
		FromActorReceiver:    e.from.Address(),
		FromChain:            fromChain,
		FromToken:            fromToken,
		FromAmount:           big.NewInt(65),
		ToActor:              toActor,
		ToChain:              toChain,
		ToToken:              toToken,
		ToAmount:             big.NewInt(43),
		CollateralReceiver:   colRecv,
		CollateralChain:      colChain,
		CollateralAmount:     big.NewInt(21),
		CollateralRewardable: big.NewInt(4),
		CollateralUnlocked:   big.NewInt(25),
		Deadline:             big.NewInt(deadline),
		TimeToSend:           big.NewInt(timeToSend),
		TimeToLiqSend:        big.NewInt(timeToLiqSend),
		Nonce:                big.NewInt(7),
	}
}

func (e *testEnv) orderBitcoin() *order.OrderBitcoin {
	o := e.order()
	o.FromChain = bitcoinChain
	return &order.OrderBitcoin{
		Order:                *o,
		FromActorBitcoin:     "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		ToActorBitcoin:       "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		CreatedAtBitcoin:     big.NewInt(deadline - 3600),
		TimeToReceiveBitcoin: big.NewInt(3600),
		TimeToSubmitBitcoin:  big.NewInt(3600),
	}
}

func (e *testEnv) sign(o *order.Order) []byte {
	e.t.Helper()
	h, err := e.codec.OrderHash(o)
	if err != nil {
		e.t.Fatal(err)
	}
	sig, err := e.from.SignHash(h)
	if err != nil {
		e.t.Fatal(err)
	}
	return sig
}

func (e *testEnv) signBitcoin(ob *order.OrderBitcoin) []byte {
	e.t.Helper()
	h, err := e.codec.OrderBitcoinHash(ob)
	if err != nil {
		e.t.Fatal(err)
	}
	sig, err := e.from.SignHash(h)
	if err != nil {
		e.t.Fatal(err)
	}
	return sig
}

func (e *testEnv) at(unix int64) { e.clock.Set(time.Unix(unix, 0)) }

func (e *testEnv) balance(tok, owner common.Address) int64 {
	e.t.Helper()
	b, err := e.svc.Balance(tok, owner)
	if err != nil {
		e.t.Fatal(err)
	}
	return b.Int64()
}

func (e *testEnv) collateral() ledger.CollateralState {
	e.t.Helper()
	st, err := e.svc.Collateral(toActor, colChain)
	if err != nil {
		e.t.Fatal(err)
	}
	return st
}

func (e *testEnv) status(h common.Hash) OrderStatus {
	e.t.Helper()
	st, err := e.svc.OrderStatus(h)
	if err != nil {
		e.t.Fatal(err)
	}
	return st
}

func (e *testEnv) receive(o *order.Order) common.Hash {
	e.t.Helper()
	h, err := e.svc.ReceiveOrderAsset(context.Background(), toActor, o, e.sign(o))
	if err != nil {
		e.t.Fatalf("receive: %v", err)
	}
	return h
}

// devProof attests (sig, key) on chain
func devProof(t *testing.T, sig, key common.Hash, chain *big.Int) []byte {
	t.Helper()
	p, err := proof.DevProof(sig, key, chain)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func (e *testEnv) eventNames() []string {
	names := make([]string, len(e.sink.events))
	for i, ev := range e.sink.events {
		names[i] = ev.Name
	}
	return names
}
