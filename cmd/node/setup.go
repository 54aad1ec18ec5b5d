package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/params"
	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/proof"
	"github.com/uhyunpark/flash/pkg/util"
)

// loadRegistry returns an empty registry when the file does not exist
func loadRegistry(path string, log *zap.SugaredLogger) (*params.Registry, error) {
	reg, err := params.LoadRegistry(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warnw("registry_missing", "path", path)
		return &params.Registry{}, nil
	}
	return reg, err
}

func domainFrom(cfg params.Config) (crypto.EIP712Domain, error) {
	if !common.IsHexAddress(cfg.Domain.VerifyingContract) {
		return crypto.EIP712Domain{}, fmt.Errorf("bad verifying contract %q", cfg.Domain.VerifyingContract)
	}
	return crypto.EIP712Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           big.NewInt(cfg.Node.ChainID),
		VerifyingContract: common.HexToAddress(cfg.Domain.VerifyingContract),
	}, nil
}

func collateralTokens(reg *params.Registry) map[string]common.Address {
	out := make(map[string]common.Address)
	for _, c := range reg.Chains {
		if c.CollateralToken != "" {
			out[big.NewInt(c.ID).String()] = common.HexToAddress(c.CollateralToken)
		}
	}
	return out
}

// genesisFrom scales the registry's decimal amounts into base units
func genesisFrom(reg *params.Registry) (ledger.Genesis, error) {
	var g ledger.Genesis
	for _, b := range reg.Genesis.Balances {
		token := common.HexToAddress(b.Token)
		amt, err := params.ParseAmount(b.Amount, reg.Decimals(token))
		if err != nil {
			return g, err
		}
		g.Balances = append(g.Balances, ledger.GenesisBalance{Token: token, Owner: common.HexToAddress(b.Owner), Amount: amt})
	}
	for _, c := range reg.Genesis.Collateral {
		chain, _ := reg.Chain(c.Chain)
		amt, err := params.ParseAmount(c.Amount, reg.Decimals(common.HexToAddress(chain.CollateralToken)))
		if err != nil {
			return g, err
		}
		g.Collateral = append(g.Collateral, ledger.GenesisCollateral{
			Actor:  common.HexToAddress(c.Actor),
			Chain:  big.NewInt(c.Chain),
			Amount: amt,
		})
	}
	return g, nil
}

func accountsFrom(reg *params.Registry) *order.AccountRegistry {
	accounts := order.NewAccountRegistry()
	for _, a := range reg.Accounts {
		var delegates []common.Address
		for _, d := range a.Delegates {
			delegates = append(delegates, common.HexToAddress(d))
		}
		addr := common.HexToAddress(a.Address)
		accounts.Register(addr, order.NewDelegatedAccount(addr, delegates...))
	}
	return accounts
}

// committeesFrom decodes the BLS member keys of every committee chain,
// keyed by decimal chain id
func committeesFrom(reg *params.Registry) (map[string]*proof.Committee, error) {
	out := make(map[string]*proof.Committee)
	for _, c := range reg.Chains {
		if c.Proof != params.ProofCommittee {
			continue
		}
		members := make([]*crypto.BLSPubKey, 0, len(c.Committee.Members))
		for i, m := range c.Committee.Members {
			raw, err := hexutil.Decode(m)
			if err != nil {
				return nil, fmt.Errorf("chain %d member %d: %w", c.ID, i, err)
			}
			pk, err := crypto.UnmarshalBLSPubKey(raw)
			if err != nil {
				return nil, fmt.Errorf("chain %d member %d: %w", c.ID, i, err)
			}
			members = append(members, pk)
		}
		committee, err := proof.NewCommittee(members, c.Committee.Threshold)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", c.ID, err)
		}
		out[big.NewInt(c.ID).String()] = committee
	}
	return out, nil
}

// proofRouter routes each registered chain to its verifier. A registry
// without chains accepts dev proofs everywhere.
func proofRouter(reg *params.Registry, l *ledger.Ledger, committees map[string]*proof.Committee, log *zap.SugaredLogger) *proof.Router {
	log = util.Sugar(log)
	if len(reg.Chains) == 0 {
		log.Warnw("proof_dev_fallback", "reason", "no chains registered")
		return proof.NewRouter(proof.Dev{})
	}
	r := proof.NewRouter(nil)
	for _, c := range reg.Chains {
		chain := big.NewInt(c.ID)
		switch c.Proof {
		case params.ProofDev:
			r.Route(chain, proof.Dev{})
		case params.ProofLocal:
			r.Route(chain, proof.NewLocal(l))
		case params.ProofCommittee:
			r.Route(chain, committees[chain.String()])
		}
		log.Infow("proof_route", "chain", c.ID, "name", c.Name, "mode", c.Proof)
	}
	return r
}
