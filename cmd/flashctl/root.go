package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/order"
)

type domainFlags struct {
	name     string
	version  string
	chainID  int64
	contract string
}

func (f *domainFlags) domain() (crypto.EIP712Domain, error) {
	if !common.IsHexAddress(f.contract) {
		return crypto.EIP712Domain{}, fmt.Errorf("bad verifying contract %q", f.contract)
	}
	return crypto.EIP712Domain{
		Name:              f.name,
		Version:           f.version,
		ChainID:           big.NewInt(f.chainID),
		VerifyingContract: common.HexToAddress(f.contract),
	}, nil
}

func (f *domainFlags) codec() (*order.Codec, error) {
	d, err := f.domain()
	if err != nil {
		return nil, err
	}
	return order.NewCodec(d), nil
}

func Root() *cobra.Command {
	df := &domainFlags{}
	def := crypto.DefaultDomain()
	cmd := &cobra.Command{
		Use:               "flashctl",
		Short:             "Flash order and proof tooling",
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().StringVar(&df.name, "domain-name", def.Name, "EIP-712 domain name")
	cmd.PersistentFlags().StringVar(&df.version, "domain-version", def.Version, "EIP-712 domain version")
	cmd.PersistentFlags().Int64Var(&df.chainID, "chain-id", def.ChainID.Int64(), "EIP-712 domain chain id")
	cmd.PersistentFlags().StringVar(&df.contract, "verifying-contract", def.VerifyingContract.Hex(), "EIP-712 verifying contract")

	cmd.AddCommand(Keygen())
	cmd.AddCommand(Order(df))
	cmd.AddCommand(Call(df))
	cmd.AddCommand(ActorHash())
	cmd.AddCommand(EventHash())
	cmd.AddCommand(Proof())
	cmd.AddCommand(Units())
	return cmd
}

// signerFrom takes the key flag, falling back to FLASH_PRIVATE_KEY
func signerFrom(key string) (*crypto.Signer, error) {
	if key == "" {
		key = os.Getenv("FLASH_PRIVATE_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("no private key: pass --key or set FLASH_PRIVATE_KEY")
	}
	return crypto.FromPrivateKeyHex(key)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseHash(s string) (common.Hash, error) {
	b, err := decodeHex(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("bad 32-byte hash %q", s)
	}
	return common.BytesToHash(b), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("bad address %q", s)
	}
	return common.HexToAddress(s), nil
}

func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse order file: %w", err)
	}
	return nil
}
