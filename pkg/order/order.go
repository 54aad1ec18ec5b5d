package order

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is the signed, immutable term sheet of a cross-chain exchange
// plus its collateral guarantee.
type Order struct {
	FromActor         common.Address
	FromActorReceiver common.Address
	FromChain         *big.Int
	FromToken         common.Address
	FromAmount        *big.Int

	ToActor  common.Address
	ToChain  *big.Int
	ToToken  common.Address
	ToAmount *big.Int

	CollateralReceiver   common.Address
	CollateralChain      *big.Int
	CollateralAmount     *big.Int
	CollateralRewardable *big.Int
	CollateralUnlocked   *big.Int

	Deadline      *big.Int // unix seconds, anchor of every window
	TimeToSend    *big.Int
	TimeToLiqSend *big.Int
	Nonce         *big.Int
}

// OrderBitcoin is an Order with one leg on a Bitcoin-like chain
type OrderBitcoin struct {
	Order

	FromActorBitcoin     string
	ToActorBitcoin       string
	CreatedAtBitcoin     *big.Int
	TimeToReceiveBitcoin *big.Int
	TimeToSubmitBitcoin  *big.Int
}

// SendDeadline is the end of the designated actor's exclusive window
func (o *Order) SendDeadline() *big.Int {
	return new(big.Int).Add(num(o.Deadline), num(o.TimeToSend))
}

// LiqSendDeadline is the end of the permissionless liquidation window
func (o *Order) LiqSendDeadline() *big.Int {
	return new(big.Int).Add(o.SendDeadline(), num(o.TimeToLiqSend))
}

// WithNonce returns a copy of o with a different nonce (a neighbour order)
func (o Order) WithNonce(nonce *big.Int) *Order {
	o.Nonce = new(big.Int).Set(nonce)
	return &o
}

// Normalized returns a copy of o in which every nil number is zero, the
// value it is signed as
func (o Order) Normalized() *Order {
	for _, f := range []**big.Int{
		&o.FromChain, &o.FromAmount, &o.ToChain, &o.ToAmount,
		&o.CollateralChain, &o.CollateralAmount, &o.CollateralRewardable, &o.CollateralUnlocked,
		&o.Deadline, &o.TimeToSend, &o.TimeToLiqSend, &o.Nonce,
	} {
		if *f == nil {
			*f = new(big.Int)
		}
	}
	return &o
}

// Normalized is Order.Normalized over the Bitcoin fields as well
func (o OrderBitcoin) Normalized() *OrderBitcoin {
	o.Order = *o.Order.Normalized()
	for _, f := range []**big.Int{&o.CreatedAtBitcoin, &o.TimeToReceiveBitcoin, &o.TimeToSubmitBitcoin} {
		if *f == nil {
			*f = new(big.Int)
		}
	}
	return &o
}

// UsesAnyBitcoinAddress reports whether the from-actor Bitcoin address is the wildcard
func (o *OrderBitcoin) UsesAnyBitcoinAddress() bool {
	return o.FromActorBitcoin == AnyBitcoinAddress
}

var zero = new(big.Int)

// num treats a nil amount as zero
func num(x *big.Int) *big.Int {
	if x == nil {
		return zero
	}
	return x
}
