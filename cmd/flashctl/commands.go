package main

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/flash/params"
	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/proof"
	"github.com/uhyunpark/flash/pkg/transaction"
)

func Keygen() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 key pair",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			s, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), map[string]string{
				"address":    s.Address().Hex(),
				"privateKey": s.PrivateKeyHex(),
			})
		},
		DisableAutoGenTag: true,
	}
}

// orderFile reads an order or, with bitcoin set, an OrderBitcoin payload
type orderFile struct {
	path    string
	bitcoin bool
}

func (f *orderFile) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "file", "f", "", "order JSON file")
	cmd.Flags().BoolVar(&f.bitcoin, "bitcoin", false, "the file holds an OrderBitcoin")
	cmd.MarkFlagRequired("file")
}

// hash returns the order hash and its typed-data document
func (f *orderFile) hash(codec *order.Codec) (common.Hash, string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return common.Hash{}, "", err
	}
	if f.bitcoin {
		var p order.BitcoinPayload
		if err := jsonUnmarshal(data, &p); err != nil {
			return common.Hash{}, "", err
		}
		ob, err := p.ToOrderBitcoin()
		if err != nil {
			return common.Hash{}, "", err
		}
		h, err := codec.OrderBitcoinHash(ob)
		if err != nil {
			return common.Hash{}, "", err
		}
		doc, err := codec.OrderBitcoinTypedData(ob)
		return h, doc, err
	}
	var p order.Payload
	if err := jsonUnmarshal(data, &p); err != nil {
		return common.Hash{}, "", err
	}
	o, err := p.ToOrder()
	if err != nil {
		return common.Hash{}, "", err
	}
	h, err := codec.OrderHash(o)
	if err != nil {
		return common.Hash{}, "", err
	}
	doc, err := codec.OrderTypedData(o)
	return h, doc, err
}

func Order(df *domainFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "order",
		Short:             "Hash, sign or render an order",
		DisableAutoGenTag: true,
	}

	var hf orderFile
	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the EIP-712 order hash",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			codec, err := df.codec()
			if err != nil {
				return err
			}
			h, _, err := hf.hash(codec)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), h.Hex())
			return nil
		},
	}
	hf.register(hashCmd)

	var (
		sf  orderFile
		key string
	)
	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign the order hash with a private key",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			codec, err := df.codec()
			if err != nil {
				return err
			}
			s, err := signerFrom(key)
			if err != nil {
				return err
			}
			h, _, err := sf.hash(codec)
			if err != nil {
				return err
			}
			sig, err := s.SignHash(h)
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), map[string]string{
				"hash":      h.Hex(),
				"signer":    s.Address().Hex(),
				"signature": hexutil.Encode(sig),
			})
		},
	}
	sf.register(signCmd)
	signCmd.Flags().StringVarP(&key, "key", "k", "", "hex private key (default $FLASH_PRIVATE_KEY)")

	var tf orderFile
	typedCmd := &cobra.Command{
		Use:   "typed-data",
		Short: "Print the EIP-712 typed-data document for wallets",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			codec, err := df.codec()
			if err != nil {
				return err
			}
			_, doc, err := tf.hash(codec)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), doc)
			return nil
		},
	}
	tf.register(typedCmd)

	cmd.AddCommand(hashCmd, signCmd, typedCmd)
	return cmd
}

// Call signs the caller authentication a transaction envelope carries
func Call(df *domainFlags) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "call <action> <orderHash>",
		Short: "Sign a call for a transaction envelope",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			d, err := df.domain()
			if err != nil {
				return err
			}
			h, err := parseHash(args[1])
			if err != nil {
				return err
			}
			s, err := signerFrom(key)
			if err != nil {
				return err
			}
			callHash, err := transaction.CallHash(d, transaction.TxType(args[0]), h, s.Address())
			if err != nil {
				return err
			}
			sig, err := s.SignHash(callHash)
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), map[string]string{
				"caller":          s.Address().Hex(),
				"callHash":        callHash.Hex(),
				"callerSignature": hexutil.Encode(sig),
			})
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "hex private key (default $FLASH_PRIVATE_KEY)")
	return cmd
}

func ActorHash() *cobra.Command {
	return &cobra.Command{
		Use:   "actor-hash <orderHash> <actor>",
		Short: "Print keccak256(abi.encode(orderHash, actor))",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			h, err := parseHash(args[0])
			if err != nil {
				return err
			}
			actor, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), order.OrderActorHash(h, actor).Hex())
			return nil
		},
		DisableAutoGenTag: true,
	}
}

func eventSig(name string) (common.Hash, error) {
	if sig, ok := order.EventSigByName(name); ok {
		return sig, nil
	}
	return parseHash(name)
}

func EventHash() *cobra.Command {
	return &cobra.Command{
		Use:   "event-hash <event> <key>",
		Short: "Print the event hash; event is a name like AssetSend or a signature hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			sig, err := eventSig(args[0])
			if err != nil {
				return err
			}
			key, err := parseHash(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), order.EventHash(sig, key).Hex())
			return nil
		},
		DisableAutoGenTag: true,
	}
}

func Proof() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "proof",
		Short:             "Build proofs",
		DisableAutoGenTag: true,
	}
	dev := &cobra.Command{
		Use:   "dev <event> <key> <chain>",
		Short: "Build a dev proof abi.encode(signature, key, chain)",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			sig, err := eventSig(args[0])
			if err != nil {
				return err
			}
			key, err := parseHash(args[1])
			if err != nil {
				return err
			}
			chain, ok := new(big.Int).SetString(args[2], 10)
			if !ok {
				return fmt.Errorf("bad chain %q", args[2])
			}
			p, err := proof.DevProof(sig, key, chain)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), hexutil.Encode(p))
			return nil
		},
	}
	cmd.AddCommand(dev)
	return cmd
}

func Units() *cobra.Command {
	var decimals int32
	cmd := &cobra.Command{
		Use:               "units",
		Short:             "Convert between decimal amounts and base units",
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().Int32VarP(&decimals, "decimals", "d", 18, "token decimals")

	to := &cobra.Command{
		Use:   "to <amount>",
		Short: "Scale a decimal amount into base units",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			units, err := params.ParseAmount(args[0], decimals)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), units.String())
			return nil
		},
	}
	from := &cobra.Command{
		Use:   "from <units>",
		Short: "Render base units as a decimal amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			units, ok := new(big.Int).SetString(strings.TrimSpace(args[0]), 10)
			if !ok {
				return fmt.Errorf("bad units %q", args[0])
			}
			fmt.Fprintln(c.OutOrStdout(), params.FormatAmount(units, decimals))
			return nil
		},
	}
	cmd.AddCommand(to, from)
	return cmd
}
