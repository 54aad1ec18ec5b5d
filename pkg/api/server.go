package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/pkg/app/settlement"
	"github.com/uhyunpark/flash/pkg/journal"
	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/transaction"
	"github.com/uhyunpark/flash/pkg/util"
)

const maxBodyBytes = 1 << 20

// EventLister is the journal's query surface
type EventLister interface {
	Recent(limit int) ([]journal.EventRecord, error)
	ByOrder(orderHash common.Hash, limit int) ([]journal.EventRecord, error)
}

// ProofSource serves assembled committee proofs
type ProofSource interface {
	Proof(eventHash common.Hash) ([]byte, bool)
}

type Config struct {
	Settlement     *settlement.Service
	Dispatcher     *transaction.Dispatcher
	Journal        EventLister
	Proofs         ProofSource
	AllowedOrigins []string
	Logger         *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections. It is a ledger.Sink:
// committed events are pushed to WebSocket subscribers.
type Server struct {
	svc        *settlement.Service
	dispatcher *transaction.Dispatcher
	journal    EventLister
	proofs     ProofSource
	origins    []string
	router     *mux.Router
	hub        *Hub
	log        *zap.SugaredLogger
}

func NewServer(cfg Config) *Server {
	log := util.Sugar(cfg.Logger)
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	s := &Server{
		svc:        cfg.Settlement,
		dispatcher: cfg.Dispatcher,
		journal:    cfg.Journal,
		proofs:     cfg.Proofs,
		origins:    origins,
		router:     mux.NewRouter(),
		hub:        NewHub(log),
		log:        log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order identities
	api.HandleFunc("/orders/hash", s.handleOrderHash).Methods("POST")
	api.HandleFunc("/orders/bitcoin/hash", s.handleOrderBitcoinHash).Methods("POST")
	api.HandleFunc("/orders/typed-data", s.handleOrderTypedData).Methods("POST")

	// State
	api.HandleFunc("/orders/{hash}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/markers/{hash}", s.handleGetMarker).Methods("GET")
	api.HandleFunc("/collateral/{address}/{chain}", s.handleGetCollateral).Methods("GET")
	api.HandleFunc("/balances/{address}/{token}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/bitcoin/addresses/{address}", s.handleGetAddressUsage).Methods("GET")
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")
	api.HandleFunc("/proofs/{eventHash}", s.handleGetProof).Methods("GET")

	// Transactions
	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx.Done())

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// Order identities
// ==============================

func (s *Server) handleOrderHash(w http.ResponseWriter, r *http.Request) {
	var p order.Payload
	if !decodeBody(w, r, &p) {
		return
	}
	o, err := p.ToOrder()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	h, err := s.svc.Codec().OrderHash(o)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to hash order", err.Error())
		return
	}
	respondJSON(w, HashResponse{Hash: h.Hex()})
}

func (s *Server) handleOrderBitcoinHash(w http.ResponseWriter, r *http.Request) {
	var p order.BitcoinPayload
	if !decodeBody(w, r, &p) {
		return
	}
	ob, err := p.ToOrderBitcoin()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	h, err := s.svc.Codec().OrderBitcoinHash(ob)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to hash order", err.Error())
		return
	}
	respondJSON(w, HashResponse{Hash: h.Hex()})
}

// handleOrderTypedData renders the EIP-712 document to sign. A body with
// Bitcoin addresses is treated as an OrderBitcoin.
func (s *Server) handleOrderTypedData(w http.ResponseWriter, r *http.Request) {
	var p order.BitcoinPayload
	if !decodeBody(w, r, &p) {
		return
	}
	var (
		doc string
		err error
	)
	if p.FromActorBitcoin != "" || p.ToActorBitcoin != "" {
		var ob *order.OrderBitcoin
		if ob, err = p.ToOrderBitcoin(); err == nil {
			doc, err = s.svc.Codec().OrderBitcoinTypedData(ob)
		}
	} else {
		var o *order.Order
		if o, err = p.Payload.ToOrder(); err == nil {
			doc, err = s.svc.Codec().OrderTypedData(o)
		}
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, doc)
}

// ==============================
// State
// ==============================

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	h, ok := hashVar(w, r, "hash")
	if !ok {
		return
	}
	st, err := s.svc.OrderStatus(h)
	if err != nil {
		respondInternal(w, err)
		return
	}
	respondJSON(w, st)
}

func (s *Server) handleGetMarker(w http.ResponseWriter, r *http.Request) {
	h, ok := hashVar(w, r, "hash")
	if !ok {
		return
	}
	present, err := s.svc.HasMarker(h)
	if err != nil {
		respondInternal(w, err)
		return
	}
	respondJSON(w, MarkerInfo{Hash: h.Hex(), Present: present})
}

func (s *Server) handleGetCollateral(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	actor, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	chain, ok := new(big.Int).SetString(vars["chain"], 10)
	if !ok || chain.Sign() < 0 {
		respondError(w, http.StatusBadRequest, "invalid chain", vars["chain"])
		return
	}
	st, err := s.svc.Collateral(actor, chain)
	if err != nil {
		respondInternal(w, err)
		return
	}
	respondJSON(w, CollateralInfo{
		Actor:         actor.Hex(),
		Chain:         chain.String(),
		Deposited:     st.Deposited.String(),
		LockCounter:   st.LockCounter.String(),
		UnlockCounter: st.UnlockCounter.String(),
		Slashed:       st.Slashed.String(),
		Locked:        st.Locked().String(),
		Available:     st.Available().String(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	token, ok := addressVar(w, r, "token")
	if !ok {
		return
	}
	bal, err := s.svc.Balance(token, owner)
	if err != nil {
		respondInternal(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Owner: owner.Hex(), Token: token.Hex(), Balance: bal.String()})
}

func (s *Server) handleGetAddressUsage(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	used, reserved, err := s.svc.BitcoinAddressUsage(addr)
	if err != nil {
		respondInternal(w, err)
		return
	}
	info := AddressUsageInfo{Address: addr, Reserved: reserved}
	if reserved {
		info.Order = used.Hex()
	}
	respondJSON(w, info)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		respondError(w, http.StatusServiceUnavailable, "journal disabled", "")
		return
	}
	q := r.URL.Query()
	limit := 0
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
			return
		}
		limit = n
	}

	var (
		rows []journal.EventRecord
		err  error
	)
	if o := q.Get("order"); o != "" {
		h, ok := parseHash(o)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid order hash", o)
			return
		}
		rows, err = s.journal.ByOrder(h, limit)
	} else {
		rows, err = s.journal.Recent(limit)
	}
	if err != nil {
		respondInternal(w, err)
		return
	}

	out := make([]EventInfo, len(rows))
	for i, row := range rows {
		out[i] = EventInfo{
			Seq:       row.Seq,
			Name:      row.Name,
			Hash:      row.Hash,
			Key:       row.Key,
			OrderHash: row.OrderHash,
			Actor:     row.Actor,
			Chain:     row.Chain,
			Time:      row.Time,
			Source:    row.Source,
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	h, ok := hashVar(w, r, "eventHash")
	if !ok {
		return
	}
	if s.proofs == nil {
		respondError(w, http.StatusNotFound, "proof not available", h.Hex())
		return
	}
	p, found := s.proofs.Proof(h)
	if !found {
		respondError(w, http.StatusNotFound, "proof not available", h.Hex())
		return
	}
	respondJSON(w, ProofInfo{EventHash: h.Hex(), Proof: hexutil.Encode(p)})
}

// ==============================
// Transactions
// ==============================

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", err.Error())
		return
	}
	res, err := s.dispatcher.Submit(r.Context(), body)
	if err != nil {
		respondTxError(w, err)
		return
	}
	respondJSON(w, SubmitTxResponse{
		Status:    "applied",
		Type:      string(res.Type),
		OrderHash: res.OrderHash.Hex(),
		Caller:    res.Caller.Hex(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast
// ==============================

// OnCommit pushes locally committed events to subscribers
func (s *Server) OnCommit(events []ledger.Event) {
	s.BroadcastEvents("local", events)
}

// BroadcastEvents pushes events to the events channel and to each
// order's channel
func (s *Server) BroadcastEvents(source string, events []ledger.Event) {
	for _, ev := range events {
		update := EventUpdate{Type: "event", Source: source, Event: ev}
		s.hub.BroadcastToChannel(ChannelEvents, update)
		s.hub.BroadcastToChannel(channelOrderPrefix+ev.OrderHash.Hex(), update)
	}
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps a failure class to an HTTP status
func statusFor(err error) int {
	if errors.Is(err, transaction.ErrMalformed) {
		return http.StatusBadRequest
	}
	switch order.ClassOf(err) {
	case order.ClassAuthorization:
		return http.StatusForbidden
	case order.ClassState:
		return http.StatusConflict
	case order.ClassTemporal, order.ClassResource:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondTxError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	class := ""
	if c := order.ClassOf(err); c != order.ClassUnknown {
		class = c.String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   "transaction rejected",
		Message: err.Error(),
		Class:   class,
	})
}

func respondInternal(w http.ResponseWriter, err error) {
	respondError(w, http.StatusInternalServerError, "internal error", err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func hashVar(w http.ResponseWriter, r *http.Request, name string) (common.Hash, bool) {
	v := mux.Vars(r)[name]
	h, ok := parseHash(v)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid "+name, v)
	}
	return h, ok
}

func addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid "+name, v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}
