package p2p

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/proof"
)

var watchedChain = big.NewInt(1337)

func newCommittee(t *testing.T, n, threshold int) ([]*crypto.BLSSigner, map[string]*proof.Committee) {
	t.Helper()
	signers := make([]*crypto.BLSSigner, n)
	pks := make([]*crypto.BLSPubKey, n)
	for i := range signers {
		s, err := crypto.NewBLSSignerFromSeed([]byte(fmt.Sprintf("member-%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		signers[i], pks[i] = s, s.Pubkey()
	}
	c, err := proof.NewCommittee(pks, threshold)
	if err != nil {
		t.Fatal(err)
	}
	return signers, map[string]*proof.Committee{watchedChain.String(): c}
}

func attestor(t *testing.T, s *crypto.BLSSigner, committees map[string]*proof.Committee) *Attestor {
	t.Helper()
	a, err := NewAttestor(s, committees)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAggregatorBuildsCommitteeProof(t *testing.T) {
	signers, committees := newCommittee(t, 3, 2)
	agg := NewAggregator(committees)
	ev := order.SendEventHash(common.HexToHash("0x42"))

	att0, ok := attestor(t, signers[0], committees).Attest(ev, watchedChain)
	if !ok || att0.Member != 0 {
		t.Fatalf("attest: ok=%v member=%d", ok, att0.Member)
	}
	if _, complete, err := agg.Add(att0); err != nil || complete {
		t.Fatalf("first attestation: complete=%v err=%v", complete, err)
	}
	// the same member twice does not reach the threshold
	if _, complete, _ := agg.Add(att0); complete {
		t.Fatal("duplicate member counted twice")
	}
	if got := agg.Pending(ev, watchedChain); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}

	att2, _ := attestor(t, signers[2], committees).Attest(ev, watchedChain)
	p, complete, err := agg.Add(att2)
	if err != nil || !complete {
		t.Fatalf("second attestation: complete=%v err=%v", complete, err)
	}
	if err := committees[watchedChain.String()].VerifyHashEventProof(p, ev, watchedChain); err != nil {
		t.Fatalf("assembled proof rejected: %v", err)
	}
	if stored, ok := agg.Proof(ev); !ok || string(stored) != string(p) {
		t.Error("proof not stored")
	}

	// late attestations are ignored once the proof exists
	att1, _ := attestor(t, signers[1], committees).Attest(ev, watchedChain)
	if _, complete, err := agg.Add(att1); err != nil || complete {
		t.Errorf("late attestation: complete=%v err=%v", complete, err)
	}
}

func TestAggregatorRejects(t *testing.T) {
	signers, committees := newCommittee(t, 3, 2)
	agg := NewAggregator(committees)
	ev := order.SendEventHash(common.HexToHash("0x42"))
	att, _ := attestor(t, signers[0], committees).Attest(ev, watchedChain)

	forged := att
	forged.Member = 1
	if _, _, err := agg.Add(forged); !errors.Is(err, ErrBadAttestation) {
		t.Errorf("signature under another member: %v", err)
	}

	out := att
	out.Member = 3
	if _, _, err := agg.Add(out); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("member out of range: %v", err)
	}

	other := att
	other.Chain = big.NewInt(1).Bytes()
	if _, _, err := agg.Add(other); !errors.Is(err, ErrUnknownCommittee) {
		t.Errorf("unwatched chain: %v", err)
	}

	wrongEvent := att
	wrongEvent.EventHash = order.ReceiveEventHash(common.HexToHash("0x42"))
	if _, _, err := agg.Add(wrongEvent); !errors.Is(err, ErrBadAttestation) {
		t.Errorf("signature over another event: %v", err)
	}
}

func TestAttestorOutsideCommittee(t *testing.T) {
	_, committees := newCommittee(t, 2, 1)
	outsider, err := crypto.NewBLSSignerFromSeed([]byte("outsider"))
	if err != nil {
		t.Fatal(err)
	}
	a := attestor(t, outsider, committees)
	if _, ok := a.Attest(common.HexToHash("0x01"), watchedChain); ok {
		t.Error("outsider attested")
	}
}

func TestEventsWire(t *testing.T) {
	in := EventsWire{Origin: "12D3KooWorigin", Events: []ledger.Event{{
		Seq:       9,
		Name:      "AssetSend",
		Signature: order.AssetSendEventSig,
		Key:       common.HexToHash("0x42"),
		Hash:      order.SendEventHash(common.HexToHash("0x42")),
		OrderHash: common.HexToHash("0x42"),
		Actor:     common.HexToAddress("0xB0B0000000000000000000000000000000000000"),
		Chain:     watchedChain,
		Time:      1_700_000_000,
	}}}
	data, err := gobEncode(in)
	if err != nil {
		t.Fatal(err)
	}
	var out EventsWire
	if err := gobDecode(data, &out); err != nil {
		t.Fatal(err)
	}
	got := out.Events[0]
	if out.Origin != in.Origin || got.Hash != in.Events[0].Hash || got.Chain.Cmp(watchedChain) != 0 || got.Seq != 9 {
		t.Errorf("decoded %+v", out)
	}
}

type markers struct {
	chain *big.Int
	set   map[common.Hash]bool
}

func (m *markers) ChainID() *big.Int { return m.chain }

func (m *markers) HasMarker(h common.Hash) (bool, error) { return m.set[h], nil }

type journal struct{ got []ledger.Event }

func (j *journal) Append(_ string, events []ledger.Event) error {
	j.got = append(j.got, events...)
	return nil
}

func memberNet(t *testing.T, src EventSource) (*Libp2pNet, map[string]*proof.Committee) {
	t.Helper()
	signers, committees := newCommittee(t, 1, 1)
	return &Libp2pNet{
		log:      zap.NewNop().Sugar(),
		attestor: attestor(t, signers[0], committees),
		source:   src,
		agg:      NewAggregator(committees),
	}, committees
}

func TestGossipedEventsAreNotAttested(t *testing.T) {
	n, _ := memberNet(t, &markers{chain: watchedChain, set: map[common.Hash]bool{}})
	j := &journal{}
	n.journal = j

	forged := order.NoSendEventHash(common.HexToHash("0xabcdef"), common.HexToAddress("0xbad1"))
	n.observe(EventsWire{Origin: "12D3KooWpeer", Events: []ledger.Event{{Hash: forged, Chain: watchedChain}}})

	if len(j.got) != 1 {
		t.Fatalf("journaled %d events, want 1", len(j.got))
	}
	if _, ok := n.agg.Proof(forged); ok {
		t.Fatal("committee proof built for a gossiped event")
	}
	if got := n.agg.Pending(forged, watchedChain); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestAttestOnlyMarkedLocalEvents(t *testing.T) {
	marked := order.SendEventHash(common.HexToHash("0x42"))
	unmarked := order.ReceiveEventHash(common.HexToHash("0x42"))
	src := &markers{chain: watchedChain, set: map[common.Hash]bool{marked: true}}
	n, committees := memberNet(t, src)

	atts := n.attestations([]ledger.Event{
		{Hash: unmarked, Chain: watchedChain},
		{Hash: marked, Chain: big.NewInt(1)},
		{Hash: marked},
	})
	if len(atts) != 0 {
		t.Fatalf("attested %d events without a local marker on the chain", len(atts))
	}

	atts = n.attestations([]ledger.Event{{Hash: marked, Chain: watchedChain}})
	if len(atts) != 1 || atts[0].EventHash != marked {
		t.Fatalf("attestations = %+v", atts)
	}
	p, ok := n.agg.Proof(marked)
	if !ok {
		t.Fatal("no proof for a committed event")
	}
	if err := committees[watchedChain.String()].VerifyHashEventProof(p, marked, watchedChain); err != nil {
		t.Fatalf("proof rejected: %v", err)
	}
}

func TestAttestorNeedsEventSource(t *testing.T) {
	signers, committees := newCommittee(t, 1, 1)
	_, err := NewLibp2pNet(context.Background(), Libp2pConfig{Attestor: attestor(t, signers[0], committees)})
	if !errors.Is(err, errNoEventSource) {
		t.Fatalf("err = %v", err)
	}
}
