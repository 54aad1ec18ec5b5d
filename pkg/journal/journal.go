// Package journal keeps a queryable copy of every committed settlement
// event in SQLite. Pebble stays the source of truth; the journal can be
// rebuilt from gossip or dropped.
package journal

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/util"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// EventRecord is one row of event_records
type EventRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Seq       uint64 `gorm:"index"`
	Name      string `gorm:"index"`
	Signature string
	Key       string
	Hash      string `gorm:"index"`
	OrderHash string `gorm:"index"`
	Actor     string
	Chain     string
	Time      int64
	Source    string
	CreatedAt time.Time
}

// Journal implements ledger.Sink
type Journal struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// Open opens (or creates) the journal database at path
func Open(path string, log *zap.SugaredLogger) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return New(db, log)
}

// New migrates db and wraps it
func New(db *gorm.DB, log *zap.SugaredLogger) (*Journal, error) {
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return &Journal{db: db, log: util.Sugar(log)}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(ev ledger.Event, source string) EventRecord {
	chain := ""
	if ev.Chain != nil {
		chain = ev.Chain.String()
	}
	return EventRecord{
		Seq:       ev.Seq,
		Name:      ev.Name,
		Signature: ev.Signature.Hex(),
		Key:       ev.Key.Hex(),
		Hash:      ev.Hash.Hex(),
		OrderHash: ev.OrderHash.Hex(),
		Actor:     ev.Actor.Hex(),
		Chain:     chain,
		Time:      ev.Time,
		Source:    source,
	}
}

// Event converts a row back into a ledger event
func (r EventRecord) Event() ledger.Event {
	chain, _ := new(big.Int).SetString(r.Chain, 10)
	return ledger.Event{
		Seq:       r.Seq,
		Name:      r.Name,
		Signature: common.HexToHash(r.Signature),
		Key:       common.HexToHash(r.Key),
		Hash:      common.HexToHash(r.Hash),
		OrderHash: common.HexToHash(r.OrderHash),
		Actor:     common.HexToAddress(r.Actor),
		Chain:     chain,
		Time:      r.Time,
	}
}

// Append stores events from source ("local" or a peer id) in one
// transaction
func (j *Journal) Append(source string, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]EventRecord, len(events))
	for i, ev := range events {
		rows[i] = toRecord(ev, source)
	}
	return j.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// OnCommit journals locally committed events. A journal failure never
// rolls back the ledger; it is logged.
func (j *Journal) OnCommit(events []ledger.Event) {
	if err := j.Append("local", events); err != nil {
		j.log.Errorw("journal_append_failed", "events", len(events), "err", err)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Recent lists the newest events first
func (j *Journal) Recent(limit int) ([]EventRecord, error) {
	var rows []EventRecord
	err := j.db.Order("id desc").Limit(clampLimit(limit)).Find(&rows).Error
	return rows, err
}

// ByOrder lists an order's events oldest first
func (j *Journal) ByOrder(orderHash common.Hash, limit int) ([]EventRecord, error) {
	var rows []EventRecord
	err := j.db.Where("order_hash = ?", orderHash.Hex()).Order("id asc").Limit(clampLimit(limit)).Find(&rows).Error
	return rows, err
}

// ByHash returns the first journaled event with this event hash
func (j *Journal) ByHash(eventHash common.Hash) (*EventRecord, error) {
	var row EventRecord
	err := j.db.Where("hash = ?", eventHash.Hex()).Order("id asc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Count returns how many events the journal holds
func (j *Journal) Count() (int64, error) {
	var n int64
	err := j.db.Model(&EventRecord{}).Count(&n).Error
	return n, err
}
