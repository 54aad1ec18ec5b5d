package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/pkg/util"
)

// Subscription channels. Per-order channels are "order:" + order hash hex.
const (
	ChannelEvents      = "events"
	channelOrderPrefix = "order:"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 60 * time.Second
	wsPingEvery    = wsIdleTimeout * 9 / 10
	wsReadLimit    = 4096
	wsQueueLen     = 256
)

var errUnknownOp = errors.New("unknown websocket op")

// the REST router owns CORS
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans event updates out to websocket subscribers by channel
type Hub struct {
	log    *zap.SugaredLogger
	nextID atomic.Uint64

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{log: util.Sugar(log), subs: make(map[*subscriber]struct{})}
}

// Run blocks until done is closed, then drops every subscriber
func (h *Hub) Run(done <-chan struct{}) {
	<-done
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		close(s.out)
		delete(h.subs, s)
	}
}

func (h *Hub) attach(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	h.log.Debugw("ws_connected", "client", s.id, "total", len(h.subs))
	return true
}

func (h *Hub) detach(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.out)
	h.log.Debugw("ws_disconnected", "client", s.id, "total", len(h.subs))
}

// BroadcastToChannel queues data for every subscriber of channel. A full
// queue drops the message for that subscriber only.
func (h *Hub) BroadcastToChannel(channel string, data interface{}) {
	msg, err := json.Marshal(data)
	if err != nil {
		h.log.Errorw("ws_marshal_failed", "channel", channel, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.channels.has(channel) {
			continue
		}
		select {
		case s.out <- msg:
		default:
			h.log.Debugw("ws_dropped", "client", s.id, "channel", channel)
		}
	}
}

// Clients is the number of attached subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type channelSet struct {
	mu sync.RWMutex
	m  map[string]struct{}
}

func (cs *channelSet) has(ch string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.m[ch]
	return ok
}

func (cs *channelSet) set(chs []string, on bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.m == nil {
		cs.m = make(map[string]struct{})
	}
	for _, ch := range chs {
		if on {
			cs.m[ch] = struct{}{}
		} else {
			delete(cs.m, ch)
		}
	}
}

type subscriber struct {
	id       uint64
	conn     *websocket.Conn
	out      chan []byte
	channels channelSet
}

func (s *subscriber) dispatch(req WSSubscribeRequest) error {
	switch req.Op {
	case "subscribe":
		s.channels.set(req.Channels, true)
	case "unsubscribe":
		s.channels.set(req.Channels, false)
	default:
		return fmt.Errorf("%w %q", errUnknownOp, req.Op)
	}
	return nil
}

// readLoop applies subscription requests until the peer goes away
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.detach(s)
		s.conn.Close()
	}()

	extend := func(string) error { return s.conn.SetReadDeadline(time.Now().Add(wsIdleTimeout)) }
	s.conn.SetReadLimit(wsReadLimit)
	s.conn.SetPongHandler(extend)
	extend("")

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debugw("ws_read_failed", "client", s.id, "err", err)
			}
			return
		}
		var req WSSubscribeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.log.Debugw("ws_invalid_message", "client", s.id, "err", err)
			continue
		}
		if err := s.dispatch(req); err != nil {
			h.log.Debugw("ws_request_rejected", "client", s.id, "err", err)
		}
	}
}

// writeLoop drains the subscriber queue and keeps the peer alive with pings.
// A closed queue ends the connection.
func (h *Hub) writeLoop(s *subscriber) {
	ping := time.NewTicker(wsPingEvery)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		kind, payload := websocket.PingMessage, []byte(nil)
		select {
		case msg, ok := <-s.out:
			if !ok {
				kind = websocket.CloseMessage
			} else {
				kind, payload = websocket.TextMessage, msg
			}
		case <-ping.C:
		}
		s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := s.conn.WriteMessage(kind, payload); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

// handleWebSocket upgrades the request. Channels given as ?channel= are
// joined before the first broadcast can reach the subscriber.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	sub := &subscriber{
		id:   s.hub.nextID.Add(1),
		conn: conn,
		out:  make(chan []byte, wsQueueLen),
	}
	sub.channels.set(r.URL.Query()["channel"], true)
	if !s.hub.attach(sub) {
		conn.Close()
		return
	}
	go s.hub.writeLoop(sub)
	go s.hub.readLoop(sub)
}
