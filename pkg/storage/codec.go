package storage

import (
	"bytes"
	"encoding/gob"
	"math/big"
)

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// amounts are stored as big-endian magnitudes; an absent key reads as zero
func encodeBig(x *big.Int) []byte {
	if x == nil {
		return []byte{}
	}
	return x.Bytes()
}

func decodeBig(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
