package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
)

// Store is the Pebble-backed settlement state.
// Writes only happen through a Batch; the ledger serializes batches.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at path
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a Store backed by an in-memory filesystem (tests, devnet)
func OpenInMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// View reads committed state
func (s *Store) View() *View { return &View{r: s.db} }

// NewBatch starts an indexed batch: reads see the batch's own writes
func (s *Store) NewBatch() *Batch {
	b := s.db.NewIndexedBatch()
	return &Batch{View: View{r: b}, b: b}
}

// Meta identifies what a database was created for
type Meta struct {
	ChainID string
	Domain  string
}

// EnsureMeta records m on first use and rejects a database created for
// a different chain or domain
func (s *Store) EnsureMeta(m Meta) error {
	val, ok, err := s.View().get([]byte(keyMeta))
	if err != nil {
		return err
	}
	if !ok {
		enc, err := encodeGob(m)
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
		return s.db.Set([]byte(keyMeta), enc, pebble.Sync)
	}
	var have Meta
	if err := decodeGob(val, &have); err != nil {
		return fmt.Errorf("decode meta: %w", err)
	}
	if have != m {
		return fmt.Errorf("store belongs to chain %s domain %q, not chain %s domain %q", have.ChainID, have.Domain, m.ChainID, m.Domain)
	}
	return nil
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// View exposes typed reads over the store or an open batch
type View struct {
	r reader
}

// get copies the value out; pebble values are only valid until the closer runs
func (v *View) get(key []byte) ([]byte, bool, error) {
	val, closer, err := v.r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %x: %w", key, err)
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (v *View) Liquidator(orderHash common.Hash) (common.Address, error) {
	val, _, err := v.get(liquidatorKey(orderHash))
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(val), nil
}

// BitcoinState returns the raw state byte; 0 when never written
func (v *View) BitcoinState(orderHash common.Hash) (uint8, error) {
	val, ok, err := v.get(bitcoinStateKey(orderHash))
	if err != nil || !ok || len(val) == 0 {
		return 0, err
	}
	return val[0], nil
}

// AddressUsage returns the order that reserved btcAddress, if any
func (v *View) AddressUsage(btcAddress string) (common.Hash, bool, error) {
	val, ok, err := v.get(addressUsageKey(btcAddress))
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(val), true, nil
}

func (v *View) Balance(token, owner common.Address) (*big.Int, error) {
	val, _, err := v.get(balanceKey(token, owner))
	if err != nil {
		return nil, err
	}
	return decodeBig(val), nil
}

func (v *View) Counter(kind CounterKind, actor common.Address, chain *big.Int) (*big.Int, error) {
	val, _, err := v.get(counterKey(kind, actor, chain))
	if err != nil {
		return nil, err
	}
	return decodeBig(val), nil
}

// EventSeq is the sequence number of the last committed event
func (v *View) EventSeq() (uint64, error) {
	val, ok, err := v.get([]byte(keySeq))
	if err != nil || !ok || len(val) != 8 {
		return 0, err
	}
	return binary.BigEndian.Uint64(val), nil
}

// Batch is an all-or-nothing unit of writes. Exactly one of Commit or
// Discard must be called.
type Batch struct {
	View
	b *pebble.Batch
}

func (b *Batch) set(key, val []byte) error {
	if err := b.b.Set(key, val, nil); err != nil {
		return fmt.Errorf("failed to set key %x: %w", key, err)
	}
	return nil
}

func (b *Batch) Commit() error {
	if err := b.b.Commit(pebble.Sync); err != nil {
		b.b.Close()
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return b.b.Close()
}

func (b *Batch) Discard() {
	b.b.Close()
}

func (b *Batch) SetLiquidator(orderHash common.Hash, liquidator common.Address) error {
	return b.set(liquidatorKey(orderHash), liquidator.Bytes())
}

func (b *Batch) SetBitcoinState(orderHash common.Hash, state uint8) error {
	return b.set(bitcoinStateKey(orderHash), []byte{state})
}

func (b *Batch) SetAddressUsage(btcAddress string, orderHash common.Hash) error {
	return b.set(addressUsageKey(btcAddress), orderHash.Bytes())
}

func (b *Batch) SetBalance(token, owner common.Address, amount *big.Int) error {
	return b.set(balanceKey(token, owner), encodeBig(amount))
}

func (b *Batch) SetCounter(kind CounterKind, actor common.Address, chain *big.Int, amount *big.Int) error {
	return b.set(counterKey(kind, actor, chain), encodeBig(amount))
}

func (b *Batch) SetEventSeq(seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return b.set([]byte(keySeq), buf[:])
}
