package storage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema. Every key is a short ASCII prefix followed by fixed-width
// binary parts, so prefixes never collide:
//
//   mrk:<hash32>                    → event marker (write-once set)
//   rcv:<orderHash>                 → received flag
//   snt:<orderHash>                 → sent flag
//   res:<orderHash>                 → resolved flag
//   liq:<orderHash>                 → liquidator address
//   btc:<orderHash>                 → bitcoin collateral state (1 byte)
//   adr:<bitcoin address>           → orderHash that reserved it
//   bal:<token20><owner20>          → asset balance
//   col:<kind><actor20><chain32>    → collateral counter
//   seq                             → last event sequence number (uint64)
//   meta                            → store metadata (gob)
const (
	prefixMarker     = "mrk:"
	prefixReceived   = "rcv:"
	prefixSent       = "snt:"
	prefixResolved   = "res:"
	prefixLiquidator = "liq:"
	prefixBitcoin    = "btc:"
	prefixAddress    = "adr:"
	prefixBalance    = "bal:"
	prefixCollateral = "col:"
	keySeq           = "seq"
	keyMeta          = "meta"
)

func hashKey(prefix string, h common.Hash) []byte {
	return append([]byte(prefix), h[:]...)
}

func liquidatorKey(orderHash common.Hash) []byte {
	return hashKey(prefixLiquidator, orderHash)
}

func bitcoinStateKey(orderHash common.Hash) []byte {
	return hashKey(prefixBitcoin, orderHash)
}

func addressUsageKey(btcAddress string) []byte {
	return append([]byte(prefixAddress), btcAddress...)
}

func balanceKey(token, owner common.Address) []byte {
	k := make([]byte, 0, len(prefixBalance)+40)
	k = append(k, prefixBalance...)
	k = append(k, token[:]...)
	return append(k, owner[:]...)
}

// CounterKind selects one of the per-(actor, chain) collateral counters
type CounterKind byte

const (
	CounterDeposited CounterKind = 'd'
	CounterLock      CounterKind = 'l'
	CounterUnlock    CounterKind = 'u'
	CounterSlashed   CounterKind = 's'
)

func counterKey(kind CounterKind, actor common.Address, chain *big.Int) []byte {
	k := make([]byte, 0, len(prefixCollateral)+1+20+32)
	k = append(k, prefixCollateral...)
	k = append(k, byte(kind))
	k = append(k, actor[:]...)
	return append(k, common.BigToHash(chain).Bytes()...)
}
