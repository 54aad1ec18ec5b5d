package main

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/flash/params"
	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/proof"
	"github.com/uhyunpark/flash/pkg/storage"
	"github.com/uhyunpark/flash/pkg/util"
)

const registryYAML = `
chains:
  - id: 1337
    name: dest
    proof: dev
  - id: 13037
    name: collateral
    proof: local
    collateral_token: "0x1000000000000000000000000000000000000003"
tokens:
  - address: "0x1000000000000000000000000000000000000003"
    symbol: COL
    decimals: 6
genesis:
  balances:
    - token: "0x1000000000000000000000000000000000000001"
      owner: "0x00000000000000000000000000000000000000aa"
      amount: "1.5"
  collateral:
    - actor: "0x00000000000000000000000000000000000000bb"
      chain: 13037
      amount: "2.25"
`

func TestGenesisFromRegistry(t *testing.T) {
	reg, err := params.ParseRegistry([]byte(registryYAML))
	if err != nil {
		t.Fatal(err)
	}
	g, err := genesisFrom(reg)
	if err != nil {
		t.Fatal(err)
	}
	// unlisted token defaults to 18 decimals
	want := new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	if len(g.Balances) != 1 || g.Balances[0].Amount.Cmp(want) != 0 {
		t.Errorf("balances = %+v", g.Balances)
	}
	if len(g.Collateral) != 1 || g.Collateral[0].Amount.Cmp(big.NewInt(2_250_000)) != 0 {
		t.Errorf("collateral = %+v", g.Collateral)
	}
	tokens := collateralTokens(reg)
	if tokens["13037"] != common.HexToAddress("0x1000000000000000000000000000000000000003") || len(tokens) != 1 {
		t.Errorf("collateral tokens = %v", tokens)
	}
}

func TestProofRouterModes(t *testing.T) {
	reg, err := params.ParseRegistry([]byte(registryYAML))
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	l := ledger.New(store, ledger.Config{ChainID: big.NewInt(13037), Clock: util.RealClock{}})

	r := proofRouter(reg, l, nil, nil)
	h := common.HexToHash("0x01")
	dev, _ := proof.DevProof(order.AssetSendEventSig, h, big.NewInt(1337))
	if err := r.VerifyHashEventProof(dev, order.SendEventHash(h), big.NewInt(1337)); err != nil {
		t.Errorf("dev chain: %v", err)
	}

	// the local chain wants a committed marker
	local, _ := proof.LocalProof(order.SendEventHash(h), big.NewInt(13037))
	if err := r.VerifyHashEventProof(local, order.SendEventHash(h), big.NewInt(13037)); err == nil {
		t.Error("local chain accepted an unknown event")
	}

	if err := r.VerifyHashEventProof(dev, order.SendEventHash(h), big.NewInt(5)); !errors.Is(err, proof.ErrNoVerifier) {
		t.Errorf("unregistered chain: %v", err)
	}
}

func TestCommitteesFromRegistry(t *testing.T) {
	var members []string
	for _, seed := range []string{"a", "b"} {
		s, err := crypto.NewBLSSignerFromSeed([]byte(seed))
		if err != nil {
			t.Fatal(err)
		}
		raw, err := crypto.MarshalBLSPubKey(s.Pubkey())
		if err != nil {
			t.Fatal(err)
		}
		members = append(members, hexutil.Encode(raw))
	}
	reg := &params.Registry{Chains: []params.ChainSpec{{
		ID:        7,
		Proof:     params.ProofCommittee,
		Committee: &params.CommitteeSpec{Threshold: 2, Members: members},
	}}}
	committees, err := committeesFrom(reg)
	if err != nil {
		t.Fatal(err)
	}
	c, ok := committees["7"]
	if !ok || len(c.Members) != 2 || c.Threshold != 2 {
		t.Fatalf("committees = %+v", committees)
	}

	reg.Chains[0].Committee.Members[1] = "0xdead"
	if _, err := committeesFrom(reg); err == nil {
		t.Error("bad member key accepted")
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	reg, err := loadRegistry(filepath.Join(t.TempDir(), "none.yaml"), util.Sugar(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(reg.Chains) != 0 {
		t.Errorf("registry = %+v", reg)
	}
}
