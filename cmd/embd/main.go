// Package main provides embd, the swap daemon. It keeps one swap session
// and exposes it over JSON-RPC and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/embarcadero/internal/backend"
	"github.com/Klingon-tech/embarcadero/internal/chain"
	"github.com/Klingon-tech/embarcadero/internal/config"
	"github.com/Klingon-tech/embarcadero/internal/inbox"
	"github.com/Klingon-tech/embarcadero/internal/metrics"
	"github.com/Klingon-tech/embarcadero/internal/rpc"
	"github.com/Klingon-tech/embarcadero/internal/storage"
	"github.com/Klingon-tech/embarcadero/internal/swap"
	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.embarcadero", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		remoteURL   = flag.String("remote", "", "Swap service URL, overrides config")
		rpcAddr     = flag.String("rpc", "", "JSON-RPC address, overrides config")
		metricsAddr = flag.String("metrics", "", "Prometheus address, enables metrics")
		inboxDir    = flag.String("inbox", "", "Inbox directory, enables the inbox watcher")
		exportDir   = flag.String("export-dir", "", "Directory for exported transactions, overrides config")
		zen         = flag.Bool("zen", false, "Use the Zen testnet")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("embd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := *dataDir
	if *zen {
		effectiveDataDir = filepath.Join(*dataDir, "zen")
	}

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
	} else {
		cfg, err = config.Load(effectiveDataDir)
	}
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// CLI flags take precedence over the config file.
	cfg.Storage.DataDir = effectiveDataDir
	if *zen {
		cfg.NetworkType = config.NetworkZen
	}
	if *remoteURL != "" {
		cfg.Remote.URL = *remoteURL
	}
	if *rpcAddr != "" {
		cfg.RPC.Addr = *rpcAddr
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *metricsAddr
	}
	if *inboxDir != "" {
		cfg.Inbox.Enabled = true
		cfg.Inbox.Dir = *inboxDir
	}
	if *exportDir != "" {
		cfg.Export.Dir = *exportDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config", "error", err)
	}

	output, closeLog, err := logging.OpenFile(config.ExpandPath(cfg.Logging.File))
	if err != nil {
		log.Fatal("Failed to open log file", "error", err)
	}
	defer closeLog()
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
		Output:     output,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.Path(effectiveDataDir), "network", cfg.NetworkType)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Daemon failed", "error", err)
	}
	log.Info("Goodbye!")
}

func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	store, err := storage.New(&storage.Config{DataDir: config.ExpandPath(cfg.Storage.DataDir)})
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("Storage initialized", "path", store.Path())

	m := metrics.New()

	client := backend.NewClient(&backend.Config{
		URL:          cfg.Remote.URL,
		Timeout:      cfg.Remote.Timeout,
		RateLimit:    cfg.Remote.RateLimit,
		MinRequests:  cfg.Remote.Breaker.MinRequests,
		FailureRatio: cfg.Remote.Breaker.FailureRatio,
		OpenTimeout:  cfg.Remote.Breaker.OpenTimeout,
		Recorder:     m,
		Logger:       log.Component("backend"),
	})

	sessionLog := log.Component("session")
	session := swap.NewSession(&swap.SessionConfig{
		Remote: client,
		Navigator: swap.NavigatorFunc(func(to swap.Route) {
			sessionLog.Debug("Route redirect", "to", to)
		}),
		PollInterval: cfg.Polling.Interval,
		PollTimeout:  cfg.Remote.Timeout,
		ExportPrefix: cfg.Export.Prefix,
		OnPollTick:   m.PollTick,
		Logger:       sessionLog,
	})
	defer session.Close()

	session.OnEvent(storage.NewJournal(store, log.Component("journal")).Handle)
	session.OnEvent(m.Observe)
	session.OnEvent(func(ev swap.Event) {
		if ev.Type == swap.EventSummaryChanged {
			sessionLog.Info("Swap updated", "id", ev.SwapID, "status", ev.Status)
		}
	})

	var monitor *chain.Monitor
	var consensus rpc.ConsensusSource
	if cfg.Consensus.Enabled {
		monitor = chain.NewMonitor(&chain.MonitorConfig{
			Source:   client,
			Interval: cfg.Consensus.Interval,
			Logger:   log.Component("consensus"),
		})
		consensus = monitor
	}

	rpcServer := rpc.NewServer(&rpc.Config{
		Session:   session,
		Store:     store,
		Consensus: consensus,
		ExportDir: config.ExpandPath(cfg.Export.Dir),
		Logger:    log.Component("rpc"),
	})
	if err := rpcServer.Start(cfg.RPC.Addr); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if monitor != nil {
		monitor.OnReading(func(r chain.Reading) {
			m.SetConsensus(&backend.Consensus{Synced: r.Synced, Height: r.Height, CurrentBlock: r.CurrentBlock})
			rpcServer.BroadcastConsensus(r)
		})
		g.Go(func() error { return monitor.Run(gctx) })
	}

	if cfg.Inbox.Enabled {
		watcher := inbox.New(&inbox.Config{
			Dir:    config.ExpandPath(cfg.Inbox.Dir),
			Loader: session,
			Logger: log.Component("inbox"),
		})
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr, m, log.Component("metrics")) })
	}

	printBanner(log, cfg, rpcServer.Addr())

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		return rpcServer.Stop()
	})

	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Metrics server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func printBanner(log *logging.Logger, cfg *config.Config, apiAddr string) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  Embarcadero Swap Daemon (%s)", cfg.NetworkType)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Swap service: %s", cfg.Remote.URL)
	log.Infof("  API: http://%s", apiAddr)
	log.Infof("  WS:  ws://%s/ws", apiAddr)
	if cfg.Metrics.Enabled {
		log.Infof("  Metrics: http://%s/metrics", cfg.Metrics.Addr)
	}
	if cfg.Inbox.Enabled {
		log.Infof("  Inbox: %s", config.ExpandPath(cfg.Inbox.Dir))
	}
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
