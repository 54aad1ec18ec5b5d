package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer manages a secp256k1 key pair (Ethereum-compatible)
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateKey creates a new random secp256k1 key pair
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(privateKey), nil
}

// FromPrivateKeyHex creates a Signer from a hex-encoded private key
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	if len(hexKey) >= 2 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newSigner(privateKey), nil
}

func newSigner(privateKey *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

func (s *Signer) Address() common.Address { return s.address }

// PrivateKeyHex returns the private key as hex string (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// SignHash signs a 32-byte digest and returns [R || S || V] with V in {27, 28},
// the form wallets return from eth_signTypedData_v4
func (s *Signer) SignHash(hash common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27
	return signature, nil
}

// RecoverAddress recovers the signer's address from a digest and signature.
// Accepts 65-byte signatures with V in {0, 1, 27, 28} and 64-byte EIP-2098
// compact signatures.
func RecoverAddress(hash common.Hash, signature []byte) (common.Address, error) {
	sig, err := normalizeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}

	publicKeyBytes, err := crypto.Ecrecover(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// VerifySignature reports whether signature over hash was produced by address
func VerifySignature(address common.Address, hash common.Hash, signature []byte) bool {
	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		return false
	}
	return recovered == address
}

// ToCompact converts a 65-byte signature into the EIP-2098 64-byte form
func ToCompact(signature []byte) ([]byte, error) {
	sig, err := normalizeSignature(signature)
	if err != nil {
		return nil, err
	}
	compact := make([]byte, 64)
	copy(compact, sig[:64])
	if sig[64] == 1 {
		compact[32] |= 0x80
	}
	return compact, nil
}

// normalizeSignature returns a copy in go-ethereum's [R || S || V] form with V in {0, 1}
func normalizeSignature(signature []byte) ([]byte, error) {
	switch len(signature) {
	case 65:
		sig := make([]byte, 65)
		copy(sig, signature)
		if sig[64] >= 27 {
			sig[64] -= 27
		}
		if sig[64] > 1 {
			return nil, fmt.Errorf("invalid signature recovery id: %d", signature[64])
		}
		if !crypto.ValidateSignatureValues(sig[64], bigFrom(sig[:32]), bigFrom(sig[32:64]), true) {
			return nil, fmt.Errorf("invalid signature values")
		}
		return sig, nil
	case 64:
		sig := make([]byte, 65)
		copy(sig, signature)
		sig[64] = sig[32] >> 7
		sig[32] &= 0x7f
		return normalizeSignature(sig)
	default:
		return nil, fmt.Errorf("invalid signature length: %d", len(signature))
	}
}

func bigFrom(b []byte) *big.Int { return new(big.Int).SetBytes(b) }
