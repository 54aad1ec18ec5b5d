// Package settlement runs the order lifecycle: escrow on receive, delivery
// with a liquidation fallback, and exactly-once collateral resolution.
package settlement

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/proof"
	"github.com/uhyunpark/flash/pkg/storage"
	"github.com/uhyunpark/flash/pkg/util"
)

type Config struct {
	Ledger     *ledger.Ledger
	Codec      *order.Codec
	Signatures *order.SignatureVerifier
	Proofs     proof.Verifier
	// BitcoinNet enables Bitcoin address validation on lock
	BitcoinNet *chaincfg.Params
	Logger     *zap.SugaredLogger
}

// Service exposes every settlement operation. Each call is one serialized
// ledger transaction: it either applies in full or not at all.
type Service struct {
	ledger *ledger.Ledger
	codec  *order.Codec
	sigs   *order.SignatureVerifier
	proofs proof.Verifier
	btcNet *chaincfg.Params
	log    *zap.SugaredLogger
}

func NewService(cfg Config) *Service {
	sigs := cfg.Signatures
	if sigs == nil {
		sigs = order.NewSignatureVerifier(nil)
	}
	return &Service{
		ledger: cfg.Ledger,
		codec:  cfg.Codec,
		sigs:   sigs,
		proofs: cfg.Proofs,
		btcNet: cfg.BitcoinNet,
		log:    util.Sugar(cfg.Logger),
	}
}

func (s *Service) Codec() *order.Codec    { return s.codec }
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

func (s *Service) verifyProof(what string, p []byte, eventHash common.Hash, chain *big.Int) error {
	if err := s.proofs.VerifyHashEventProof(p, eventHash, chain); err != nil {
		return fmt.Errorf("%s proof: %w", what, err)
	}
	return nil
}

// reached reports whether now is at or past t
func reached(now int64, t *big.Int) bool {
	return big.NewInt(now).Cmp(t) >= 0
}

func has(tx *ledger.Tx, set storage.HashSet, h common.Hash) (bool, error) {
	return set.Has(&tx.View, h)
}
