package api

import (
	"github.com/uhyunpark/flash/pkg/ledger"
)

// API response types for REST endpoints and WebSocket messages.
// Amounts are decimal strings; hashes and addresses are 0x hex.

// ==============================
// REST Response Types
// ==============================

type HashResponse struct {
	Hash string `json:"hash"`
}

// MarkerInfo tells whether an event hash was committed on this ledger
type MarkerInfo struct {
	Hash    string `json:"hash"`
	Present bool   `json:"present"`
}

// CollateralInfo is one actor's collateral on one chain
type CollateralInfo struct {
	Actor         string `json:"actor"`
	Chain         string `json:"chain"`
	Deposited     string `json:"deposited"`
	LockCounter   string `json:"lockCounter"`
	UnlockCounter string `json:"unlockCounter"`
	Slashed       string `json:"slashed"`
	Locked        string `json:"locked"`
	Available     string `json:"available"`
}

type BalanceInfo struct {
	Owner   string `json:"owner"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

// AddressUsageInfo reports a wildcard reservation of a Bitcoin address
type AddressUsageInfo struct {
	Address  string `json:"address"`
	Reserved bool   `json:"reserved"`
	Order    string `json:"order,omitempty"`
}

// EventInfo is a journaled event
type EventInfo struct {
	Seq       uint64 `json:"seq"`
	Name      string `json:"name"`
	Hash      string `json:"hash"`
	Key       string `json:"key"`
	OrderHash string `json:"orderHash"`
	Actor     string `json:"actor"`
	Chain     string `json:"chain"`
	Time      int64  `json:"time"`
	Source    string `json:"source,omitempty"`
}

type ProofInfo struct {
	EventHash string `json:"eventHash"`
	Proof     string `json:"proof"`
}

// SubmitTxResponse is the response from POST /api/v1/tx
type SubmitTxResponse struct {
	Status    string `json:"status"` // "applied"
	Type      string `json:"type"`
	OrderHash string `json:"orderHash"`
	Caller    string `json:"caller"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Class   string `json:"class,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients:
// {"op":"subscribe","channels":["events","order:0x…"]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// EventUpdate is pushed on the events channel and the order's channel
type EventUpdate struct {
	Type   string       `json:"type"` // "event"
	Source string       `json:"source"`
	Event  ledger.Event `json:"event"`
}
