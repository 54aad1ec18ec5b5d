package journal

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func event(seq uint64, sig, orderHash common.Hash) ledger.Event {
	return ledger.Event{
		Seq:       seq,
		Name:      order.EventName(sig),
		Signature: sig,
		Key:       orderHash,
		Hash:      order.EventHash(sig, orderHash),
		OrderHash: orderHash,
		Actor:     common.HexToAddress("0xB0B0000000000000000000000000000000000000"),
		Chain:     big.NewInt(31337),
		Time:      1_700_000_000 + int64(seq),
	}
}

func TestOnCommitAndQueries(t *testing.T) {
	j := setupJournal(t)
	a := common.HexToHash("0xaa")
	b := common.HexToHash("0xbb")

	j.OnCommit([]ledger.Event{event(1, order.AssetReceiveEventSig, a)})
	j.OnCommit([]ledger.Event{event(2, order.AssetReceiveEventSig, b), event(3, order.AssetSendEventSig, a)})

	n, err := j.Count()
	if err != nil || n != 3 {
		t.Fatalf("count = %d, err = %v", n, err)
	}

	rows, err := j.ByOrder(a, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Name != "AssetReceive" || rows[1].Name != "AssetSend" {
		t.Fatalf("rows for a = %+v", rows)
	}

	recent, err := j.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Seq != 3 || recent[1].Seq != 2 {
		t.Errorf("recent = %+v", recent)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	j := setupJournal(t)
	ev := event(7, order.AssetNoSendEventSig, common.HexToHash("0xcc"))
	if err := j.Append("12D3KooWpeer", []ledger.Event{ev}); err != nil {
		t.Fatal(err)
	}
	row, err := j.ByHash(ev.Hash)
	if err != nil || row == nil {
		t.Fatalf("row = %v, err = %v", row, err)
	}
	if row.Source != "12D3KooWpeer" {
		t.Errorf("source = %s", row.Source)
	}
	got := row.Event()
	if got.Hash != ev.Hash || got.OrderHash != ev.OrderHash || got.Actor != ev.Actor || got.Chain.Cmp(ev.Chain) != 0 || got.Seq != 7 {
		t.Errorf("event = %+v, want %+v", got, ev)
	}

	missing, err := j.ByHash(common.HexToHash("0x01"))
	if err != nil || missing != nil {
		t.Errorf("missing = %v, err = %v", missing, err)
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
