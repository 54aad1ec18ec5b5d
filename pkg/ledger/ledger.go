package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/storage"
	"github.com/uhyunpark/flash/pkg/util"
)

// Event is a committed settlement event. Hash is the off-chain identifier
// proofs are presented against.
type Event struct {
	Seq       uint64         `json:"seq"`
	Name      string         `json:"name"`
	Signature common.Hash    `json:"signature"`
	Key       common.Hash    `json:"key"`
	Hash      common.Hash    `json:"hash"`
	OrderHash common.Hash    `json:"orderHash"`
	Actor     common.Address `json:"actor"`
	Chain     *big.Int       `json:"chain"`
	Time      int64          `json:"time"`
}

// Sink observes events after their transaction committed
type Sink interface {
	OnCommit(events []Event)
}

type Config struct {
	ChainID *big.Int
	Clock   util.Clock
	// CollateralTokens maps a collateral chain id (decimal) to its token
	CollateralTokens map[string]common.Address
	Logger           *zap.SugaredLogger
}

// Ledger serializes every state transition into one all-or-nothing batch.
// There is no intra-operation suspension: Execute holds the lock for the
// whole transaction.
type Ledger struct {
	mu         sync.Mutex
	store      *storage.Store
	chainID    *big.Int
	clock      util.Clock
	collateral map[string]common.Address
	sinks      []Sink
	log        *zap.SugaredLogger
}

func New(store *storage.Store, cfg Config) *Ledger {
	clock := cfg.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	chainID := cfg.ChainID
	if chainID == nil {
		chainID = big.NewInt(0)
	}
	tokens := make(map[string]common.Address, len(cfg.CollateralTokens))
	for k, v := range cfg.CollateralTokens {
		tokens[k] = v
	}
	return &Ledger{
		store:      store,
		chainID:    new(big.Int).Set(chainID),
		clock:      clock,
		collateral: tokens,
		log:        util.Sugar(cfg.Logger),
	}
}

// AddSink registers s; sinks run in registration order under the ledger lock
func (l *Ledger) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

func (l *Ledger) ChainID() *big.Int { return new(big.Int).Set(l.chainID) }

// Now is the ledger clock in unix seconds
func (l *Ledger) Now() int64 { return l.clock.Now().Unix() }

// View reads committed state
func (l *Ledger) View() *storage.View { return l.store.View() }

// HasMarker reports whether an event with this hash was committed here
func (l *Ledger) HasMarker(eventHash common.Hash) (bool, error) {
	return storage.Markers.Has(l.store.View(), eventHash)
}

// Execute runs fn in a fresh transaction. The batch commits only when fn
// returns nil; any error discards every write fn made.
func (l *Ledger) Execute(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &Tx{
		Batch: l.store.NewBatch(),
		l:     l,
		now:   l.Now(),
	}
	if err := fn(tx); err != nil {
		tx.Batch.Discard()
		return err
	}
	if err := tx.sequence(); err != nil {
		tx.Batch.Discard()
		return err
	}
	if err := tx.Batch.Commit(); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}

	if len(tx.events) == 0 {
		return nil
	}
	for _, ev := range tx.events {
		l.log.Debugw("ledger_event", "name", ev.Name, "order", ev.OrderHash.Hex(), "hash", ev.Hash.Hex())
	}
	for _, s := range l.sinks {
		s.OnCommit(tx.events)
	}
	return nil
}

// Tx is one open transaction. It is only valid inside Execute.
type Tx struct {
	*storage.Batch
	l      *Ledger
	now    int64
	events []Event
}

// Now is fixed for the lifetime of the transaction
func (tx *Tx) Now() int64 { return tx.now }

func (tx *Tx) ChainID() *big.Int { return tx.l.ChainID() }

// Emit records the event marker for (sig, key) and queues the event for
// sinks. Re-emitting an already-marked event is tolerated.
func (tx *Tx) Emit(sig, key, orderHash common.Hash, actor common.Address) (common.Hash, error) {
	h := order.EventHash(sig, key)
	if _, err := storage.Markers.Add(tx.Batch, h); err != nil {
		return common.Hash{}, err
	}
	tx.events = append(tx.events, Event{
		Name:      order.EventName(sig),
		Signature: sig,
		Key:       key,
		Hash:      h,
		OrderHash: orderHash,
		Actor:     actor,
		Chain:     tx.l.ChainID(),
		Time:      tx.now,
	})
	return h, nil
}

// sequence numbers queued events after the last committed one
func (tx *Tx) sequence() error {
	if len(tx.events) == 0 {
		return nil
	}
	seq, err := tx.EventSeq()
	if err != nil {
		return err
	}
	for i := range tx.events {
		seq++
		tx.events[i].Seq = seq
	}
	return tx.SetEventSeq(seq)
}

// Events returns what this transaction emitted so far
func (tx *Tx) Events() []Event { return tx.events }
