package transaction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/order"
)

const CallPrimaryType = "Call"

var callFields = []apitypes.Type{
	{Name: "action", Type: "string"},
	{Name: "orderHash", Type: "bytes32"},
	{Name: "caller", Type: "address"},
}

func callMessage(action TxType, orderHash common.Hash, caller common.Address) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"action":    string(action),
		"orderHash": orderHash.Hex(),
		"caller":    caller.Hex(),
	}
}

// CallHash is the EIP-712 digest a caller signs to invoke action on an order
func CallHash(domain crypto.EIP712Domain, action TxType, orderHash common.Hash, caller common.Address) (common.Hash, error) {
	return domain.HashTypedData(CallPrimaryType, callFields, callMessage(action, orderHash, caller))
}

// CallTypedData renders the Call document for wallet signing
func CallTypedData(domain crypto.EIP712Domain, action TxType, orderHash common.Hash, caller common.Address) (string, error) {
	return domain.TypedDataJSON(CallPrimaryType, callFields, callMessage(action, orderHash, caller))
}

// SignatureChecker is satisfied by order.SignatureVerifier
type SignatureChecker interface {
	Verify(hash common.Hash, signature []byte, signer common.Address) error
}

// Verifier decodes envelopes and authenticates their caller
type Verifier struct {
	codec *order.Codec
	sigs  SignatureChecker
}

func NewVerifier(codec *order.Codec, sigs SignatureChecker) *Verifier {
	if sigs == nil {
		sigs = order.NewSignatureVerifier(nil)
	}
	return &Verifier{codec: codec, sigs: sigs}
}

// Decoded is an envelope with its order parsed and caller authenticated
type Decoded struct {
	Tx           *SignedTransaction
	Order        *order.Order
	OrderBitcoin *order.OrderBitcoin
	OrderHash    common.Hash
	Caller       common.Address
	Signature    []byte
}

// Verify validates tx, derives its order identity and checks that the
// caller signed Call{type, orderHash, caller}
func (v *Verifier) Verify(tx *SignedTransaction) (*Decoded, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	d := &Decoded{Tx: tx, Caller: common.HexToAddress(tx.Caller)}

	var err error
	if tx.Type.IsBitcoin() {
		if d.OrderBitcoin, err = tx.OrderBitcoin.ToOrderBitcoin(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		d.Order = &d.OrderBitcoin.Order
		d.OrderHash, err = v.codec.OrderBitcoinHash(d.OrderBitcoin)
	} else {
		if d.Order, err = tx.Order.ToOrder(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		d.OrderHash, err = v.codec.OrderHash(d.Order)
	}
	if err != nil {
		return nil, err
	}

	if d.Signature, err = decodeHex("signature", tx.Signature); err != nil {
		return nil, err
	}
	callerSig, err := decodeHex("caller signature", tx.CallerSignature)
	if err != nil {
		return nil, err
	}
	callHash, err := CallHash(v.codec.Domain(), tx.Type, d.OrderHash, d.Caller)
	if err != nil {
		return nil, err
	}
	if err := v.sigs.Verify(callHash, callerSig, d.Caller); err != nil {
		return nil, fmt.Errorf("caller: %w", err)
	}
	return d, nil
}
