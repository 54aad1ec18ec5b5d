package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/flash/pkg/order"
)

// TxType names the settlement operation a transaction invokes
type TxType string

const (
	TxReceive      TxType = "receive"
	TxSend         TxType = "send"
	TxLiqSend      TxType = "liq_send"
	TxReportNoSend TxType = "report_no_send"
	TxConfirm      TxType = "confirm"
	TxSlash        TxType = "slash"
	TxSlashLiq     TxType = "slash_liq"

	TxBitcoinReceive      TxType = "btc_receive"
	TxBitcoinSend         TxType = "btc_send"
	TxBitcoinLiqSend      TxType = "btc_liq_send"
	TxBitcoinReportNoSend TxType = "btc_report_no_send"
	TxBitcoinLock         TxType = "btc_lock"
	TxBitcoinUnlock       TxType = "btc_unlock"
	TxBitcoinConfirm      TxType = "btc_confirm"
	TxBitcoinSlash        TxType = "btc_slash"
	TxBitcoinSlashLiq     TxType = "btc_slash_liq"
)

var ErrMalformed = errors.New("malformed transaction")

// IsBitcoin reports whether t operates on an OrderBitcoin identity
func (t TxType) IsBitcoin() bool {
	return strings.HasPrefix(string(t), "btc_")
}

func (t TxType) known() bool {
	switch t {
	case TxReceive, TxSend, TxLiqSend, TxReportNoSend, TxConfirm, TxSlash, TxSlashLiq,
		TxBitcoinReceive, TxBitcoinSend, TxBitcoinLiqSend, TxBitcoinReportNoSend,
		TxBitcoinLock, TxBitcoinUnlock, TxBitcoinConfirm, TxBitcoinSlash, TxBitcoinSlashLiq:
		return true
	}
	return false
}

// Proofs carries hex-encoded event proofs; which ones are needed depends
// on the transaction type
type Proofs struct {
	Receive   string `json:"receive,omitempty"`
	Send      string `json:"send,omitempty"`
	LiqSend   string `json:"liqSend,omitempty"`
	NoSend    string `json:"noSend,omitempty"`
	NoReceive string `json:"noReceive,omitempty"`
}

// SignedTransaction is the envelope submitted to POST /api/v1/tx.
// Signature is the from-actor's order signature (receive and lock only).
// CallerSignature authorizes Call{action, orderHash, caller}.
type SignedTransaction struct {
	Type            TxType                `json:"type"`
	Order           *order.Payload        `json:"order,omitempty"`
	OrderBitcoin    *order.BitcoinPayload `json:"orderBitcoin,omitempty"`
	Signature       string                `json:"signature,omitempty"`
	Reporter        string                `json:"reporter,omitempty"`
	Proofs          Proofs                `json:"proofs"`
	Caller          string                `json:"caller"`
	CallerSignature string                `json:"callerSignature"`
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &tx, nil
}

// Validate checks the envelope shape, not signatures or proofs
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !tx.Type.known() {
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, tx.Type)
	}
	if !common.IsHexAddress(tx.Caller) {
		return fmt.Errorf("%w: caller %q is not an address", ErrMalformed, tx.Caller)
	}
	if tx.CallerSignature == "" {
		return fmt.Errorf("%w: missing caller signature", ErrMalformed)
	}
	if tx.Type.IsBitcoin() {
		if tx.OrderBitcoin == nil {
			return fmt.Errorf("%w: %s requires orderBitcoin", ErrMalformed, tx.Type)
		}
	} else if tx.Order == nil {
		return fmt.Errorf("%w: %s requires order", ErrMalformed, tx.Type)
	}

	switch tx.Type {
	case TxReceive, TxBitcoinReceive, TxBitcoinLock:
		if tx.Signature == "" {
			return fmt.Errorf("%w: %s requires the from-actor signature", ErrMalformed, tx.Type)
		}
	case TxConfirm, TxBitcoinConfirm:
		if tx.Proofs.Receive == "" || tx.Proofs.Send == "" {
			return fmt.Errorf("%w: %s requires receive and send proofs", ErrMalformed, tx.Type)
		}
	case TxSlash, TxBitcoinSlash:
		if tx.Proofs.Receive == "" || tx.Proofs.NoSend == "" {
			return fmt.Errorf("%w: %s requires receive and no-send proofs", ErrMalformed, tx.Type)
		}
	case TxSlashLiq, TxBitcoinSlashLiq:
		if tx.Proofs.Receive == "" || tx.Proofs.LiqSend == "" {
			return fmt.Errorf("%w: %s requires receive and liquidation-send proofs", ErrMalformed, tx.Type)
		}
	case TxBitcoinUnlock:
		if tx.Proofs.NoReceive == "" {
			return fmt.Errorf("%w: %s requires a no-receive proof", ErrMalformed, tx.Type)
		}
	}
	if tx.Reporter != "" && !common.IsHexAddress(tx.Reporter) {
		return fmt.Errorf("%w: reporter %q is not an address", ErrMalformed, tx.Reporter)
	}
	return nil
}

// ReporterAddress defaults to the caller
func (tx *SignedTransaction) ReporterAddress() common.Address {
	if tx.Reporter == "" {
		return common.HexToAddress(tx.Caller)
	}
	return common.HexToAddress(tx.Reporter)
}

// decodeHex accepts hex with or without the 0x prefix
func decodeHex(what, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, what, err)
	}
	return b, nil
}
