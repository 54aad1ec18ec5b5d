package p2p

import (
	"bytes"
	"encoding/gob"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/ledger"
)

func init() {
	gob.Register(EventsWire{})
	gob.Register(AttestationWire{})
}

// EventsWire carries one committed ledger transaction's events
type EventsWire struct {
	Origin string // peer id of the committing node
	Events []ledger.Event
}

// AttestationWire is one committee member's BLS signature over
// AttestationMessage(EventHash, Chain)
type AttestationWire struct {
	EventHash common.Hash
	Chain     []byte // big-endian chain id
	Member    int
	Signature []byte
}

func (a AttestationWire) ChainID() *big.Int {
	return new(big.Int).SetBytes(a.Chain)
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
