package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gsccoin/blockchain/app/services/node/handlers"
	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
	"github.com/gsccoin/blockchain/foundation/blockchain/p2p"
	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
	"github.com/gsccoin/blockchain/foundation/blockchain/signature"
	"github.com/gsccoin/blockchain/foundation/blockchain/state"
	"github.com/gsccoin/blockchain/foundation/blockchain/storage"
	"github.com/gsccoin/blockchain/foundation/blockchain/worker"
	"github.com/gsccoin/blockchain/foundation/events"
	"github.com/gsccoin/blockchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		P2P struct {
			Host       string   `conf:"default:0.0.0.0:10080"`
			MaxInbound int      `conf:"default:64"`
			MaxPerIP   int      `conf:"default:4"`
			KnownPeers []string `conf:"default:0.0.0.0:10080;0.0.0.0:10180"`
		}
		State struct {
			MinerKeyPath     string `conf:"default:zblock/accounts/miner1.ecdsa"`
			GenesisPath      string `conf:"default:zblock/genesis.json"`
			SnapshotPath     string `conf:"default:zblock/chain.json"`
			BanDBPath        string `conf:"default:zblock/bans"`
			SelectStrategy   string `conf:"default:fee"`
			AllowEmptyBlocks bool   `conf:"default:false"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Blockchain Support

	// Need to load the private key file for the configured miner so the
	// address can be credited with rewards and fees.
	privateKey, err := crypto.LoadECDSA(cfg.State.MinerKeyPath)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}
	minerAddress := signature.AddressFromPublicKey(privateKey.PublicKey)
	log.Infow("startup", "status", "miner address", "address", minerAddress)

	// Load the network parameters all nodes must agree on.
	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	// A peer set is a collection of known nodes in the network so
	// transactions and blocks can be shared.
	peerSet := peer.NewPeerSet()
	for _, host := range cfg.P2P.KnownPeers {
		peerSet.Add(peer.New(host, peer.DirOutbound))
	}

	// The ban list persists peer misbehavior across restarts.
	banList, err := peer.NewBanList(cfg.State.BanDBPath)
	if err != nil {
		return fmt.Errorf("unable to open ban list: %w", err)
	}
	defer banList.Close()

	// Snapshot storage for the chain, mempool and balances.
	strg, err := storage.New(cfg.State.SnapshotPath)
	if err != nil {
		return fmt.Errorf("unable to open snapshot storage: %w", err)
	}

	// The blockchain packages accept a function of this signature to allow
	// the application to log. These raw messages are also sent to any
	// websocket client connected through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value represents the blockchain node and manages the chain
	// and provides an API for application support.
	st, err := state.New(state.Config{
		MinerAddress:     minerAddress,
		Host:             cfg.P2P.Host,
		Genesis:          gen,
		Storage:          strg,
		SelectStrategy:   cfg.State.SelectStrategy,
		KnownPeers:       peerSet,
		AllowEmptyBlocks: cfg.State.AllowEmptyBlocks,
		EvHandler:        ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The client performs the outbound protocol exchanges.
	client := p2p.NewClient(cfg.P2P.Host, gen)
	client.Status = func() (uint64, string) {
		latest := st.LatestBlock()
		return latest.Index, latest.Hash
	}

	// The worker package implements the different workflows such as mining,
	// transaction sharing and chain synchronization. The worker will
	// register itself with the state.
	worker.Run(st, client, ev)

	// The p2p server answers inbound protocol requests.
	srv := p2p.NewServer(p2p.Config{
		Host:       cfg.P2P.Host,
		State:      st,
		BanList:    banList,
		EvHandler:  ev,
		MaxInbound: cfg.P2P.MaxInbound,
		MaxPerIP:   cfg.P2P.MaxPerIP,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("unable to start p2p server: %w", err)
	}
	defer srv.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the
	// debug related endpoints. This includes the standard library endpoints.
	debugMux := handlers.DebugMux(build, log)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		BanList:  banList,
		Evts:     evts,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		BanList:  banList,
	})

	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
