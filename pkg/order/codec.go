package order

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/uhyunpark/flash/pkg/crypto"
)

const (
	OrderPrimaryType        = "Order"
	OrderBitcoinPrimaryType = "OrderBitcoin"
)

// Field order is part of the identity; never reorder.
var orderFields = []apitypes.Type{
	{Name: "fromActor", Type: "address"},
	{Name: "fromActorReceiver", Type: "address"},
	{Name: "fromChain", Type: "uint256"},
	{Name: "fromToken", Type: "address"},
	{Name: "fromAmount", Type: "uint256"},
	{Name: "toActor", Type: "address"},
	{Name: "toChain", Type: "uint256"},
	{Name: "toToken", Type: "address"},
	{Name: "toAmount", Type: "uint256"},
	{Name: "collateralReceiver", Type: "address"},
	{Name: "collateralChain", Type: "uint256"},
	{Name: "collateralAmount", Type: "uint256"},
	{Name: "collateralRewardable", Type: "uint256"},
	{Name: "collateralUnlocked", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
	{Name: "timeToSend", Type: "uint256"},
	{Name: "timeToLiqSend", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
}

var orderBitcoinFields = []apitypes.Type{
	{Name: "fromActor", Type: "address"},
	{Name: "fromActorReceiver", Type: "address"},
	{Name: "fromActorBitcoin", Type: "string"},
	{Name: "fromChain", Type: "uint256"},
	{Name: "fromToken", Type: "address"},
	{Name: "fromAmount", Type: "uint256"},
	{Name: "toActor", Type: "address"},
	{Name: "toActorBitcoin", Type: "string"},
	{Name: "toChain", Type: "uint256"},
	{Name: "toToken", Type: "address"},
	{Name: "toAmount", Type: "uint256"},
	{Name: "collateralReceiver", Type: "address"},
	{Name: "collateralChain", Type: "uint256"},
	{Name: "collateralAmount", Type: "uint256"},
	{Name: "collateralRewardable", Type: "uint256"},
	{Name: "collateralUnlocked", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
	{Name: "createdAtBitcoin", Type: "uint256"},
	{Name: "timeToReceiveBitcoin", Type: "uint256"},
	{Name: "timeToSubmitBitcoin", Type: "uint256"},
	{Name: "timeToSend", Type: "uint256"},
	{Name: "timeToLiqSend", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
}

// Codec derives order identities under one EIP-712 domain
type Codec struct {
	domain crypto.EIP712Domain
}

func NewCodec(domain crypto.EIP712Domain) *Codec {
	return &Codec{domain: domain}
}

func (c *Codec) Domain() crypto.EIP712Domain { return c.domain }

// OrderHash is the identity of o
func (c *Codec) OrderHash(o *Order) (common.Hash, error) {
	h, err := c.domain.HashTypedData(OrderPrimaryType, orderFields, orderMessage(o))
	if err != nil {
		return common.Hash{}, fmt.Errorf("order hash: %w", err)
	}
	return h, nil
}

// OrderBitcoinHash is the identity of o. It never collides with OrderHash
// because the primary type differs.
func (c *Codec) OrderBitcoinHash(o *OrderBitcoin) (common.Hash, error) {
	h, err := c.domain.HashTypedData(OrderBitcoinPrimaryType, orderBitcoinFields, orderBitcoinMessage(o))
	if err != nil {
		return common.Hash{}, fmt.Errorf("order bitcoin hash: %w", err)
	}
	return h, nil
}

// OrderTypedData renders o for wallet signing (eth_signTypedData_v4)
func (c *Codec) OrderTypedData(o *Order) (string, error) {
	return c.domain.TypedDataJSON(OrderPrimaryType, orderFields, orderMessage(o))
}

func (c *Codec) OrderBitcoinTypedData(o *OrderBitcoin) (string, error) {
	return c.domain.TypedDataJSON(OrderBitcoinPrimaryType, orderBitcoinFields, orderBitcoinMessage(o))
}

func OrderTypeHash() common.Hash {
	return crypto.TypeHash(OrderPrimaryType, orderFields)
}

func OrderBitcoinTypeHash() common.Hash {
	return crypto.TypeHash(OrderBitcoinPrimaryType, orderBitcoinFields)
}

// OrderActorHash scopes a per-actor event to one order:
// keccak256(abi.encode(bytes32 orderHash, address actor))
func OrderActorHash(orderHash common.Hash, actor common.Address) common.Hash {
	data, err := crypto.ABIEncode([]string{"bytes32", "address"}, [32]byte(orderHash), actor)
	if err != nil {
		// static types only, cannot fail
		panic(err)
	}
	return ethcrypto.Keccak256Hash(data)
}

func orderMessage(o *Order) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"fromActor":            o.FromActor.Hex(),
		"fromActorReceiver":    o.FromActorReceiver.Hex(),
		"fromChain":            num(o.FromChain).String(),
		"fromToken":            o.FromToken.Hex(),
		"fromAmount":           num(o.FromAmount).String(),
		"toActor":              o.ToActor.Hex(),
		"toChain":              num(o.ToChain).String(),
		"toToken":              o.ToToken.Hex(),
		"toAmount":             num(o.ToAmount).String(),
		"collateralReceiver":   o.CollateralReceiver.Hex(),
		"collateralChain":      num(o.CollateralChain).String(),
		"collateralAmount":     num(o.CollateralAmount).String(),
		"collateralRewardable": num(o.CollateralRewardable).String(),
		"collateralUnlocked":   num(o.CollateralUnlocked).String(),
		"deadline":             num(o.Deadline).String(),
		"timeToSend":           num(o.TimeToSend).String(),
		"timeToLiqSend":        num(o.TimeToLiqSend).String(),
		"nonce":                num(o.Nonce).String(),
	}
}

func orderBitcoinMessage(o *OrderBitcoin) apitypes.TypedDataMessage {
	msg := orderMessage(&o.Order)
	msg["fromActorBitcoin"] = o.FromActorBitcoin
	msg["toActorBitcoin"] = o.ToActorBitcoin
	msg["createdAtBitcoin"] = num(o.CreatedAtBitcoin).String()
	msg["timeToReceiveBitcoin"] = num(o.TimeToReceiveBitcoin).String()
	msg["timeToSubmitBitcoin"] = num(o.TimeToSubmitBitcoin).String()
	return msg
}
