package storage

import "github.com/ethereum/go-ethereum/common"

// HashSet is a write-once set of 32-byte hashes under one key prefix.
// Members are never counted or removed.
type HashSet struct {
	prefix string
}

var (
	Markers  = HashSet{prefix: prefixMarker}
	Received = HashSet{prefix: prefixReceived}
	Sent     = HashSet{prefix: prefixSent}
	Resolved = HashSet{prefix: prefixResolved}
)

var present = []byte{1}

func (s HashSet) Has(v *View, h common.Hash) (bool, error) {
	_, ok, err := v.get(hashKey(s.prefix, h))
	return ok, err
}

// Add inserts h and reports whether it was newly added
func (s HashSet) Add(b *Batch, h common.Hash) (bool, error) {
	ok, err := s.Has(&b.View, h)
	if err != nil || ok {
		return false, err
	}
	return true, b.set(hashKey(s.prefix, h), present)
}
