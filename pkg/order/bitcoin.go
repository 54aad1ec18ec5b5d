package order

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// AnyBitcoinAddress as fromActorBitcoin lets the from-actor pay from any
// address, in exchange for single-use enforcement of toActorBitcoin.
const AnyBitcoinAddress = "Any address, one transaction"

// BitcoinNetwork maps a config name to chain parameters
func BitcoinNetwork(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin network %q", name)
	}
}

// ValidateBitcoinAddress checks that addr decodes for net
func ValidateBitcoinAddress(addr string, net *chaincfg.Params) error {
	decoded, err := btcutil.DecodeAddress(addr, net)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidBitcoinAddress, addr, err)
	}
	if !decoded.IsForNet(net) {
		return fmt.Errorf("%w %q: not a %s address", ErrInvalidBitcoinAddress, addr, net.Name)
	}
	return nil
}

// ValidateBitcoinAddresses checks both Bitcoin legs of o; the wildcard
// from-address is exempt
func ValidateBitcoinAddresses(o *OrderBitcoin, net *chaincfg.Params) error {
	if err := ValidateBitcoinAddress(o.ToActorBitcoin, net); err != nil {
		return err
	}
	if o.UsesAnyBitcoinAddress() {
		return nil
	}
	return ValidateBitcoinAddress(o.FromActorBitcoin, net)
}
