package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Payload is the JSON form of an Order. Big integers travel as decimal
// strings so wallets and the CLI never lose precision.
type Payload struct {
	FromActor         string `json:"fromActor"`
	FromActorReceiver string `json:"fromActorReceiver"`
	FromChain         string `json:"fromChain"`
	FromToken         string `json:"fromToken"`
	FromAmount        string `json:"fromAmount"`

	ToActor  string `json:"toActor"`
	ToChain  string `json:"toChain"`
	ToToken  string `json:"toToken"`
	ToAmount string `json:"toAmount"`

	CollateralReceiver   string `json:"collateralReceiver"`
	CollateralChain      string `json:"collateralChain"`
	CollateralAmount     string `json:"collateralAmount"`
	CollateralRewardable string `json:"collateralRewardable"`
	CollateralUnlocked   string `json:"collateralUnlocked"`

	Deadline      string `json:"deadline"`
	TimeToSend    string `json:"timeToSend"`
	TimeToLiqSend string `json:"timeToLiqSend"`
	Nonce         string `json:"nonce"`
}

// BitcoinPayload is the JSON form of an OrderBitcoin
type BitcoinPayload struct {
	Payload

	FromActorBitcoin     string `json:"fromActorBitcoin"`
	ToActorBitcoin       string `json:"toActorBitcoin"`
	CreatedAtBitcoin     string `json:"createdAtBitcoin"`
	TimeToReceiveBitcoin string `json:"timeToReceiveBitcoin"`
	TimeToSubmitBitcoin  string `json:"timeToSubmitBitcoin"`
}

type fieldParser struct {
	err error
}

func (p *fieldParser) address(name, v string) common.Address {
	if p.err != nil {
		return common.Address{}
	}
	if !common.IsHexAddress(v) {
		p.err = fmt.Errorf("invalid %s: %q", name, v)
		return common.Address{}
	}
	return common.HexToAddress(v)
}

func (p *fieldParser) number(name, v string) *big.Int {
	if p.err != nil {
		return nil
	}
	if v == "" {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(v, 0)
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		p.err = fmt.Errorf("invalid %s: %q", name, v)
		return nil
	}
	return n
}

// ToOrder parses and validates the payload
func (pl *Payload) ToOrder() (*Order, error) {
	var p fieldParser
	o := &Order{
		FromActor:            p.address("fromActor", pl.FromActor),
		FromActorReceiver:    p.address("fromActorReceiver", pl.FromActorReceiver),
		FromChain:            p.number("fromChain", pl.FromChain),
		FromToken:            p.address("fromToken", pl.FromToken),
		FromAmount:           p.number("fromAmount", pl.FromAmount),
		ToActor:              p.address("toActor", pl.ToActor),
		ToChain:              p.number("toChain", pl.ToChain),
		ToToken:              p.address("toToken", pl.ToToken),
		ToAmount:             p.number("toAmount", pl.ToAmount),
		CollateralReceiver:   p.address("collateralReceiver", pl.CollateralReceiver),
		CollateralChain:      p.number("collateralChain", pl.CollateralChain),
		CollateralAmount:     p.number("collateralAmount", pl.CollateralAmount),
		CollateralRewardable: p.number("collateralRewardable", pl.CollateralRewardable),
		CollateralUnlocked:   p.number("collateralUnlocked", pl.CollateralUnlocked),
		Deadline:             p.number("deadline", pl.Deadline),
		TimeToSend:           p.number("timeToSend", pl.TimeToSend),
		TimeToLiqSend:        p.number("timeToLiqSend", pl.TimeToLiqSend),
		Nonce:                p.number("nonce", pl.Nonce),
	}
	if p.err != nil {
		return nil, p.err
	}
	return o, nil
}

func (pl *BitcoinPayload) ToOrderBitcoin() (*OrderBitcoin, error) {
	base, err := pl.Payload.ToOrder()
	if err != nil {
		return nil, err
	}
	var p fieldParser
	o := &OrderBitcoin{
		Order:                *base,
		FromActorBitcoin:     pl.FromActorBitcoin,
		ToActorBitcoin:       pl.ToActorBitcoin,
		CreatedAtBitcoin:     p.number("createdAtBitcoin", pl.CreatedAtBitcoin),
		TimeToReceiveBitcoin: p.number("timeToReceiveBitcoin", pl.TimeToReceiveBitcoin),
		TimeToSubmitBitcoin:  p.number("timeToSubmitBitcoin", pl.TimeToSubmitBitcoin),
	}
	if p.err != nil {
		return nil, p.err
	}
	return o, nil
}

// FromOrder converts an Order to its JSON payload
func FromOrder(o *Order) *Payload {
	return &Payload{
		FromActor:            o.FromActor.Hex(),
		FromActorReceiver:    o.FromActorReceiver.Hex(),
		FromChain:            num(o.FromChain).String(),
		FromToken:            o.FromToken.Hex(),
		FromAmount:           num(o.FromAmount).String(),
		ToActor:              o.ToActor.Hex(),
		ToChain:              num(o.ToChain).String(),
		ToToken:              o.ToToken.Hex(),
		ToAmount:             num(o.ToAmount).String(),
		CollateralReceiver:   o.CollateralReceiver.Hex(),
		CollateralChain:      num(o.CollateralChain).String(),
		CollateralAmount:     num(o.CollateralAmount).String(),
		CollateralRewardable: num(o.CollateralRewardable).String(),
		CollateralUnlocked:   num(o.CollateralUnlocked).String(),
		Deadline:             num(o.Deadline).String(),
		TimeToSend:           num(o.TimeToSend).String(),
		TimeToLiqSend:        num(o.TimeToLiqSend).String(),
		Nonce:                num(o.Nonce).String(),
	}
}

func FromOrderBitcoin(o *OrderBitcoin) *BitcoinPayload {
	return &BitcoinPayload{
		Payload:              *FromOrder(&o.Order),
		FromActorBitcoin:     o.FromActorBitcoin,
		ToActorBitcoin:       o.ToActorBitcoin,
		CreatedAtBitcoin:     num(o.CreatedAtBitcoin).String(),
		TimeToReceiveBitcoin: num(o.TimeToReceiveBitcoin).String(),
		TimeToSubmitBitcoin:  num(o.TimeToSubmitBitcoin).String(),
	}
}
