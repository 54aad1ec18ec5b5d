package p2p

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/util"
)

const (
	topicEvents = "flash-events"
	topicAttest = "flash-attest"
)

// EventAppender stores events observed from other nodes
type EventAppender interface {
	Append(source string, events []ledger.Event) error
}

// EventSource is the committed state an attestor answers for. Only events
// marked on its own chain are ever signed.
type EventSource interface {
	ChainID() *big.Int
	HasMarker(eventHash common.Hash) (bool, error)
}

var errNoEventSource = errors.New("p2p: attestor configured without an event source")

// Libp2pNet gossips committed events and committee attestations. It is a
// ledger.Sink: local commits are published as they happen.
type Libp2pNet struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger
	ctx context.Context

	tEvents, tAttest     *pubsub.Topic
	subEvents, subAttest *pubsub.Subscription

	attestor *Attestor
	source   EventSource
	agg      *Aggregator
	journal  EventAppender

	muH      sync.RWMutex
	onRemote func(source string, events []ledger.Event)
}

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	// Attestor is nil on nodes outside every committee
	Attestor   *Attestor
	// Source must be set whenever Attestor is
	Source     EventSource
	Aggregator *Aggregator
	Journal    EventAppender
	Logger     *zap.SugaredLogger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (*Libp2pNet, error) {
	if cfg.Attestor != nil && cfg.Source == nil {
		return nil, errNoEventSource
	}
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	agg := cfg.Aggregator
	if agg == nil {
		agg = NewAggregator(nil)
	}
	net := &Libp2pNet{
		h: h, ps: ps, log: util.Sugar(cfg.Logger), ctx: ctx,
		attestor: cfg.Attestor,
		source:   cfg.Source,
		agg:      agg,
		journal:  cfg.Journal,
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			net.log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if err := net.joinTopics(); err != nil {
		h.Close()
		return nil, err
	}

	go net.handleEvents(ctx)
	go net.handleAttest(ctx)

	net.log.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "attestor", cfg.Attestor != nil)
	return net, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Libp2pNet) joinTopics() error {
	var err error
	if n.tEvents, err = n.ps.Join(topicEvents); err != nil {
		return err
	}
	if n.tAttest, err = n.ps.Join(topicAttest); err != nil {
		return err
	}
	if n.subEvents, err = n.tEvents.Subscribe(); err != nil {
		return err
	}
	if n.subAttest, err = n.tAttest.Subscribe(); err != nil {
		return err
	}
	return nil
}

func (n *Libp2pNet) Host() host.Host { return n.h }

func (n *Libp2pNet) Aggregator() *Aggregator { return n.agg }

// OnRemoteEvents registers a callback for events gossiped by other nodes
func (n *Libp2pNet) OnRemoteEvents(fn func(source string, events []ledger.Event)) {
	n.muH.Lock()
	n.onRemote = fn
	n.muH.Unlock()
}

func (n *Libp2pNet) Close() error {
	n.subEvents.Cancel()
	n.subAttest.Cancel()
	return n.h.Close()
}

// OnCommit publishes locally committed events and attests them
func (n *Libp2pNet) OnCommit(events []ledger.Event) {
	data, err := gobEncode(EventsWire{Origin: n.h.ID().String(), Events: events})
	if err != nil {
		n.log.Errorw("events_encode_failed", "err", err)
		return
	}
	if err := n.tEvents.Publish(n.ctx, data); err != nil {
		n.log.Warnw("events_publish_failed", "err", err)
	}
	for _, att := range n.attestations(events) {
		data, err := gobEncode(att)
		if err != nil {
			n.log.Errorw("attestation_encode_failed", "err", err)
			continue
		}
		if err := n.tAttest.Publish(n.ctx, data); err != nil {
			n.log.Warnw("attestation_publish_failed", "event", att.EventHash.Hex(), "err", err)
		}
	}
}

// attestations signs and collects the events this node can vouch for
func (n *Libp2pNet) attestations(events []ledger.Event) []AttestationWire {
	if n.attestor == nil {
		return nil
	}
	var out []AttestationWire
	for _, ev := range events {
		if !n.committed(ev) {
			continue
		}
		att, ok := n.attestor.Attest(ev.Hash, ev.Chain)
		if !ok {
			continue
		}
		n.collect(att)
		out = append(out, att)
	}
	return out
}

func (n *Libp2pNet) committed(ev ledger.Event) bool {
	if ev.Chain == nil || ev.Chain.Cmp(n.source.ChainID()) != 0 {
		return false
	}
	ok, err := n.source.HasMarker(ev.Hash)
	if err != nil {
		n.log.Warnw("marker_lookup_failed", "event", ev.Hash.Hex(), "err", err)
		return false
	}
	if !ok {
		n.log.Debugw("attest_skipped_unmarked", "event", ev.Hash.Hex())
	}
	return ok
}

func (n *Libp2pNet) collect(att AttestationWire) {
	_, complete, err := n.agg.Add(att)
	if err != nil {
		n.log.Debugw("attestation_rejected", "event", att.EventHash.Hex(), "member", att.Member, "err", err)
		return
	}
	if complete {
		n.log.Infow("committee_proof_ready", "event", att.EventHash.Hex(), "chain", att.ChainID().String())
	}
}

// inbound

func (n *Libp2pNet) handleEvents(ctx context.Context) {
	for {
		msg, err := n.subEvents.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		var w EventsWire
		if err := gobDecode(msg.Data, &w); err != nil {
			n.log.Debugw("events_decode_failed", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		n.observe(w)
	}
}

// observe journals events gossiped by another node. They are hearsay: the
// owning chain's committee attests them from its own ledger, never from here.
func (n *Libp2pNet) observe(w EventsWire) {
	if n.journal != nil {
		if err := n.journal.Append(w.Origin, w.Events); err != nil {
			n.log.Warnw("journal_append_failed", "origin", w.Origin, "err", err)
		}
	}
	n.muH.RLock()
	fn := n.onRemote
	n.muH.RUnlock()
	if fn != nil {
		fn(w.Origin, w.Events)
	}
}

func (n *Libp2pNet) handleAttest(ctx context.Context) {
	for {
		msg, err := n.subAttest.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		var att AttestationWire
		if err := gobDecode(msg.Data, &att); err != nil {
			continue
		}
		n.collect(att)
	}
}
