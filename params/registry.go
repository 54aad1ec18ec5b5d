package params

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Proof modes a chain can be verified with
const (
	ProofDev       = "dev"
	ProofLocal     = "local"
	ProofCommittee = "committee"
)

const defaultDecimals = 18

// Registry describes the chains, tokens, accounts and genesis state a node
// starts from
type Registry struct {
	Chains   []ChainSpec   `yaml:"chains"`
	Tokens   []TokenSpec   `yaml:"tokens"`
	Accounts []AccountSpec `yaml:"accounts"`
	Genesis  Genesis       `yaml:"genesis"`
}

type ChainSpec struct {
	ID              int64          `yaml:"id"`
	Name            string         `yaml:"name"`
	Proof           string         `yaml:"proof"`
	CollateralToken string         `yaml:"collateral_token"`
	Committee       *CommitteeSpec `yaml:"committee"`
}

// CommitteeSpec lists BLS public keys (hex) in bitmap order
type CommitteeSpec struct {
	Threshold int      `yaml:"threshold"`
	Members   []string `yaml:"members"`
}

type TokenSpec struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
}

// AccountSpec is a delegated approver account
type AccountSpec struct {
	Address   string   `yaml:"address"`
	Delegates []string `yaml:"delegates"`
}

type Genesis struct {
	Balances   []BalanceSpec    `yaml:"balances"`
	Collateral []CollateralSpec `yaml:"collateral"`
}

// Amounts are decimal strings in whole token units ("12.5")
type BalanceSpec struct {
	Token  string `yaml:"token"`
	Owner  string `yaml:"owner"`
	Amount string `yaml:"amount"`
}

type CollateralSpec struct {
	Actor  string `yaml:"actor"`
	Chain  int64  `yaml:"chain"`
	Amount string `yaml:"amount"`
}

// LoadRegistry reads and validates a YAML registry file
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	return &r, nil
}

func (r *Registry) Validate() error {
	seen := make(map[int64]bool)
	for _, c := range r.Chains {
		if seen[c.ID] {
			return fmt.Errorf("duplicate chain %d", c.ID)
		}
		seen[c.ID] = true
		switch c.Proof {
		case ProofDev, ProofLocal:
		case ProofCommittee:
			if c.Committee == nil || len(c.Committee.Members) == 0 {
				return fmt.Errorf("chain %d: committee proof needs members", c.ID)
			}
			if c.Committee.Threshold < 1 || c.Committee.Threshold > len(c.Committee.Members) {
				return fmt.Errorf("chain %d: threshold %d out of range", c.ID, c.Committee.Threshold)
			}
		default:
			return fmt.Errorf("chain %d: unknown proof mode %q", c.ID, c.Proof)
		}
		if c.CollateralToken != "" && !common.IsHexAddress(c.CollateralToken) {
			return fmt.Errorf("chain %d: bad collateral token %q", c.ID, c.CollateralToken)
		}
	}
	for _, t := range r.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("token %s: bad address %q", t.Symbol, t.Address)
		}
	}
	for _, a := range r.Accounts {
		if !common.IsHexAddress(a.Address) {
			return fmt.Errorf("account: bad address %q", a.Address)
		}
		for _, d := range a.Delegates {
			if !common.IsHexAddress(d) {
				return fmt.Errorf("account %s: bad delegate %q", a.Address, d)
			}
		}
	}
	for _, b := range r.Genesis.Balances {
		if !common.IsHexAddress(b.Token) || !common.IsHexAddress(b.Owner) {
			return fmt.Errorf("genesis balance: bad address in %+v", b)
		}
		if _, err := ParseAmount(b.Amount, r.Decimals(common.HexToAddress(b.Token))); err != nil {
			return fmt.Errorf("genesis balance %s: %w", b.Owner, err)
		}
	}
	for _, c := range r.Genesis.Collateral {
		chain, ok := r.Chain(c.Chain)
		if !ok {
			return fmt.Errorf("genesis collateral: unknown chain %d", c.Chain)
		}
		if chain.CollateralToken == "" {
			return fmt.Errorf("genesis collateral: chain %d has no collateral token", c.Chain)
		}
		if !common.IsHexAddress(c.Actor) {
			return fmt.Errorf("genesis collateral: bad actor %q", c.Actor)
		}
		if _, err := ParseAmount(c.Amount, r.Decimals(common.HexToAddress(chain.CollateralToken))); err != nil {
			return fmt.Errorf("genesis collateral %s: %w", c.Actor, err)
		}
	}
	return nil
}

func (r *Registry) Chain(id int64) (ChainSpec, bool) {
	for _, c := range r.Chains {
		if c.ID == id {
			return c, true
		}
	}
	return ChainSpec{}, false
}

// Decimals returns the token's registered decimals, 18 when unlisted
func (r *Registry) Decimals(token common.Address) int32 {
	for _, t := range r.Tokens {
		if common.HexToAddress(t.Address) == token {
			return t.Decimals
		}
	}
	return defaultDecimals
}

// ParseAmount scales a decimal string by decimals into base units. Amounts
// finer than one base unit are rejected.
func ParseAmount(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", amount)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders base units as a decimal string
func FormatAmount(units *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(units, -decimals).String()
}
