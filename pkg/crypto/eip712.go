package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string         // Protocol name (e.g., "Flash")
	Version           string         // Protocol version (e.g., "1")
	ChainID           *big.Int       // Chain ID of the settlement ledger
	VerifyingContract common.Address // Settlement contract address (or zero for off-chain)
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// DefaultDomain returns the default EIP-712 domain for a local devnet
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "Flash",
		Version:           "1",
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.Address{},
	}
}

// TypedData builds the full EIP-712 document for a single primary type
func (d EIP712Domain) TypedData(primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			primaryType:    fields,
		},
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: message,
	}
}

// Separator returns the domain separator hash
func (d EIP712Domain) Separator() (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{"EIP712Domain": domainType},
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
	}
	sep, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(sep), nil
}

// TypeHash returns keccak256 of the encoded type string of primaryType
func TypeHash(primaryType string, fields []apitypes.Type) common.Hash {
	typedData := apitypes.TypedData{Types: apitypes.Types{primaryType: fields}}
	return common.BytesToHash(typedData.TypeHash(primaryType))
}

// HashTypedData hashes a message according to EIP-712
// Returns the digest that should be signed
func (d EIP712Domain) HashTypedData(primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) (common.Hash, error) {
	typedData := d.TypedData(primaryType, fields, message)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData), nil
}

// TypedDataJSON renders the document wallets expect for eth_signTypedData_v4
func (d EIP712Domain) TypedDataJSON(primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) (string, error) {
	doc := map[string]interface{}{
		"types": map[string]interface{}{
			"EIP712Domain": domainType,
			primaryType:    fields,
		},
		"primaryType": primaryType,
		"domain": map[string]interface{}{
			"name":              d.Name,
			"version":           d.Version,
			"chainId":           d.ChainID.String(),
			"verifyingContract": d.VerifyingContract.Hex(),
		},
		"message": message,
	}

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
