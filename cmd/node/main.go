package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"github.com/uhyunpark/flash/params"
	"github.com/uhyunpark/flash/pkg/api"
	"github.com/uhyunpark/flash/pkg/app/settlement"
	"github.com/uhyunpark/flash/pkg/crypto"
	"github.com/uhyunpark/flash/pkg/journal"
	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/p2p"
	"github.com/uhyunpark/flash/pkg/storage"
	"github.com/uhyunpark/flash/pkg/transaction"
	"github.com/uhyunpark/flash/pkg/util"
)

func main() {
	// Priority: ENV > .env file > defaults
	cfg := params.LoadFromEnv("")

	// Setup logging (write to both console and file)
	rot := util.LogRotation{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
	}
	logger, err := util.NewLoggerWithFile(cfg.Log.File, rot, cfg.Log.Verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "verbose", cfg.Log.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
	sugar.Info("node_stopped")
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	reg, err := loadRegistry(cfg.Node.RegistryFile, sugar)
	if err != nil {
		return err
	}
	domain, err := domainFrom(cfg)
	if err != nil {
		return err
	}

	// ---- Storage ----
	store, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureMeta(storage.Meta{ChainID: big.NewInt(cfg.Node.ChainID).String(), Domain: domain.Name + "/" + domain.Version}); err != nil {
		return err
	}

	// ---- Ledger ----
	l := ledger.New(store, ledger.Config{
		ChainID:          big.NewInt(cfg.Node.ChainID),
		Clock:            util.RealClock{},
		CollateralTokens: collateralTokens(reg),
		Logger:           sugar,
	})
	genesis, err := genesisFrom(reg)
	if err != nil {
		return err
	}
	applied, err := l.ApplyGenesis(ctx, genesis)
	if err != nil {
		return err
	}
	sugar.Infow("genesis", "applied", applied, "balances", len(genesis.Balances), "collateral", len(genesis.Collateral))

	// ---- Journal ----
	var events *journal.Journal
	if cfg.Node.JournalPath != "" {
		events, err = journal.Open(cfg.Node.JournalPath, sugar)
		if err != nil {
			return err
		}
		defer events.Close()
		l.AddSink(events)
	}

	// ---- Proofs ----
	committees, err := committeesFrom(reg)
	if err != nil {
		return err
	}
	router := proofRouter(reg, l, committees, sugar)

	// ---- Settlement ----
	var btcNet *chaincfg.Params
	if cfg.Node.BitcoinNetwork != "" {
		if btcNet, err = order.BitcoinNetwork(cfg.Node.BitcoinNetwork); err != nil {
			return err
		}
	}
	codec := order.NewCodec(domain)
	sigs := order.NewSignatureVerifier(accountsFrom(reg))
	svc := settlement.NewService(settlement.Config{
		Ledger:     l,
		Codec:      codec,
		Signatures: sigs,
		Proofs:     router,
		BitcoinNet: btcNet,
		Logger:     sugar,
	})

	// ---- P2P ----
	var attestor *p2p.Attestor
	if cfg.Node.AttestSeed != "" {
		signer, err := crypto.NewBLSSignerFromSeed([]byte(cfg.Node.AttestSeed))
		if err != nil {
			return err
		}
		if attestor, err = p2p.NewAttestor(signer, committees); err != nil {
			return err
		}
	}
	cfgP2P := p2p.Libp2pConfig{
		ListenAddr: cfg.Node.Listen,
		Bootstrap:  cfg.Node.Bootstrap,
		Attestor:   attestor,
		Source:     l,
		Aggregator: p2p.NewAggregator(committees),
		Logger:     sugar,
	}
	if events != nil {
		cfgP2P.Journal = events
	}
	net, err := p2p.NewLibp2pNet(ctx, cfgP2P)
	if err != nil {
		return err
	}
	defer net.Close()
	l.AddSink(net)

	// ---- API Server ----
	apiCfg := api.Config{
		Settlement: svc,
		Dispatcher: transaction.NewDispatcher(svc, transaction.NewVerifier(codec, sigs), sugar),
		Proofs:     net.Aggregator(),
		Logger:     sugar,
	}
	if events != nil {
		apiCfg.Journal = events
	}
	apiServer := api.NewServer(apiCfg)
	l.AddSink(apiServer)
	net.OnRemoteEvents(apiServer.BroadcastEvents)

	sugar.Infow("node_starting",
		"chain_id", cfg.Node.ChainID,
		"chains", len(reg.Chains),
		"committees", len(committees),
		"attestor", attestor != nil,
		"bitcoin_network", cfg.Node.BitcoinNetwork)

	return apiServer.Start(ctx, cfg.Node.APIAddr)
}
